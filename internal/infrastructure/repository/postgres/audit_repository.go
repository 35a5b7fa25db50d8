package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditTrail) error {
	changes, err := marshalJSON(entry.Changes)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO audit_trails (id, document_id, action, performed_by, performed_at, changes)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.ID, entry.DocumentID, string(entry.Action), entry.PerformedBy, entry.PerformedAt, changes)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.AuditTrail, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT id, document_id, action, performed_by, performed_at, changes
FROM audit_trails
WHERE document_id = $1
ORDER BY performed_at, id
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditTrail, 0)
	for rows.Next() {
		var (
			entry   domain.AuditTrail
			action  string
			changes []byte
		)
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &action, &entry.PerformedBy, &entry.PerformedAt, &changes); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = domain.AuditAction(action)
		entry.Changes = map[string]any{}
		if err := unmarshalJSON(changes, &entry.Changes); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit trail: %w", err)
	}
	return out, nil
}
