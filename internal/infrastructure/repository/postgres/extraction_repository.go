package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type ExtractionRepository struct {
	db *sql.DB
}

func NewExtractionRepository(db *sql.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

func (r *ExtractionRepository) Create(ctx context.Context, e *domain.Extraction) error {
	data, err := marshalJSON(e.StructuredData)
	if err != nil {
		return err
	}
	scores, err := marshalJSON(e.ConfidenceScores)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(e.ExtractionMetadata)
	if err != nil {
		return err
	}

	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO extractions (id, document_id, extraction_method, raw_text, structured_data, confidence_scores, extraction_metadata, extracted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, e.ID, e.DocumentID, string(e.ExtractionMethod), e.RawText, data, scores, meta, e.ExtractedAt)
	if err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

func (r *ExtractionRepository) LatestByDocument(ctx context.Context, documentID string) (*domain.Extraction, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT id, document_id, extraction_method, raw_text, structured_data, confidence_scores, extraction_metadata, extracted_at
FROM extractions
WHERE document_id = $1
ORDER BY extracted_at DESC, created_at DESC
LIMIT 1
`, documentID)

	var (
		e                  domain.Extraction
		method             string
		rawText            sql.NullString
		data, scores, meta []byte
	)
	err := row.Scan(&e.ID, &e.DocumentID, &method, &rawText, &data, &scores, &meta, &e.ExtractedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("extraction for document", documentID)
		}
		return nil, fmt.Errorf("scan extraction: %w", err)
	}
	e.ExtractionMethod = domain.ExtractionMethod(method)
	e.RawText = rawText.String
	e.StructuredData = map[string]any{}
	e.ConfidenceScores = map[string]float64{}
	e.ExtractionMetadata = map[string]any{}
	if err := unmarshalJSON(data, &e.StructuredData); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(scores, &e.ConfidenceScores); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(meta, &e.ExtractionMetadata); err != nil {
		return nil, err
	}
	return &e, nil
}
