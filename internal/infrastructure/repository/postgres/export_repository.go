package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type ExportRepository struct {
	db *sql.DB
}

func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

func (r *ExportRepository) GetByDocument(ctx context.Context, documentID string) (*domain.Export, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT id, document_id, exported_to, export_payload, export_status, exported_at, retry_count, error_message
FROM exports
WHERE document_id = $1
`, documentID)

	var (
		export     domain.Export
		payload    []byte
		status     string
		exportedAt sql.NullTime
		errMessage sql.NullString
	)
	if err := row.Scan(&export.ID, &export.DocumentID, &export.ExportedTo, &payload, &status, &exportedAt, &export.RetryCount, &errMessage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("export for document", documentID)
		}
		return nil, fmt.Errorf("scan export: %w", err)
	}
	if err := unmarshalJSON(payload, &export.ExportPayload); err != nil {
		return nil, err
	}
	export.ExportStatus = domain.ExportStatus(status)
	if exportedAt.Valid {
		t := exportedAt.Time
		export.ExportedAt = &t
	}
	if errMessage.Valid {
		export.ErrorMessage = &errMessage.String
	}
	return &export, nil
}

// Save upserts the latest attempt; retry history lives in retry_count.
func (r *ExportRepository) Save(ctx context.Context, export *domain.Export) error {
	payload, err := marshalJSON(export.ExportPayload)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO exports (id, document_id, exported_to, export_payload, export_status, exported_at, retry_count, error_message)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (document_id) DO UPDATE
SET exported_to = EXCLUDED.exported_to,
	export_payload = EXCLUDED.export_payload,
	export_status = EXCLUDED.export_status,
	exported_at = EXCLUDED.exported_at,
	retry_count = EXCLUDED.retry_count,
	error_message = EXCLUDED.error_message
`, export.ID, export.DocumentID, export.ExportedTo, payload, string(export.ExportStatus), export.ExportedAt, export.RetryCount, export.ErrorMessage)
	if err != nil {
		return fmt.Errorf("save export: %w", err)
	}
	return nil
}
