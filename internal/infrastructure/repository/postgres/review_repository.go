package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) GetByDocument(ctx context.Context, documentID string) (*domain.Review, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT id, document_id, reviewed_by, reviewed_at, corrections, review_status, review_notes
FROM reviews
WHERE document_id = $1
`, documentID)

	var (
		review      domain.Review
		status      string
		corrections []byte
		notes       sql.NullString
	)
	if err := row.Scan(&review.ID, &review.DocumentID, &review.ReviewedBy, &review.ReviewedAt, &corrections, &status, &notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("review for document", documentID)
		}
		return nil, fmt.Errorf("scan review: %w", err)
	}
	review.ReviewStatus = domain.ReviewStatus(status)
	review.Corrections = map[string]any{}
	if err := unmarshalJSON(corrections, &review.Corrections); err != nil {
		return nil, err
	}
	if notes.Valid {
		review.ReviewNotes = &notes.String
	}
	return &review, nil
}

// Save upserts on document_id; a document never has more than one review.
func (r *ReviewRepository) Save(ctx context.Context, review *domain.Review) error {
	corrections, err := marshalJSON(review.Corrections)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO reviews (id, document_id, reviewed_by, reviewed_at, corrections, review_status, review_notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (document_id) DO UPDATE
SET reviewed_by = EXCLUDED.reviewed_by,
	reviewed_at = EXCLUDED.reviewed_at,
	corrections = EXCLUDED.corrections,
	review_status = EXCLUDED.review_status,
	review_notes = EXCLUDED.review_notes
`, review.ID, review.DocumentID, review.ReviewedBy, review.ReviewedAt, corrections, string(review.ReviewStatus), review.ReviewNotes)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return nil
}
