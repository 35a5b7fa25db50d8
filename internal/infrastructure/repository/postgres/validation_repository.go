package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type ValidationRepository struct {
	db *sql.DB
}

func NewValidationRepository(db *sql.DB) *ValidationRepository {
	return &ValidationRepository{db: db}
}

// Save upserts on extraction_id so concurrent validations of one extraction
// still leave a single row.
func (r *ValidationRepository) Save(ctx context.Context, result *domain.ValidationResult) error {
	rules, err := marshalJSON(result.ValidationRules)
	if err != nil {
		return err
	}
	errs, err := marshalJSON(result.ValidationErrors)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO validation_results (id, extraction_id, validation_rules, validation_status, validation_errors, validated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (extraction_id) DO UPDATE SET
	id = EXCLUDED.id,
	validation_rules = EXCLUDED.validation_rules,
	validation_status = EXCLUDED.validation_status,
	validation_errors = EXCLUDED.validation_errors,
	validated_at = EXCLUDED.validated_at
`, result.ID, result.ExtractionID, rules, string(result.ValidationStatus), errs, result.ValidatedAt)
	if err != nil {
		return fmt.Errorf("upsert validation result: %w", err)
	}
	return nil
}

func (r *ValidationRepository) LatestByExtraction(ctx context.Context, extractionID string) (*domain.ValidationResult, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT id, extraction_id, validation_rules, validation_status, validation_errors, validated_at
FROM validation_results
WHERE extraction_id = $1
`, extractionID)

	var (
		result      domain.ValidationResult
		status      string
		rules, errs []byte
	)
	if err := row.Scan(&result.ID, &result.ExtractionID, &rules, &status, &errs, &result.ValidatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("validation result for extraction", extractionID)
		}
		return nil, fmt.Errorf("scan validation result: %w", err)
	}
	result.ValidationStatus = domain.ValidationStatus(status)
	result.ValidationRules = map[string]any{}
	result.ValidationErrors = []domain.ValidationError{}
	if err := unmarshalJSON(rules, &result.ValidationRules); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(errs, &result.ValidationErrors); err != nil {
		return nil, err
	}
	return &result, nil
}
