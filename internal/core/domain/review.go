package domain

import "time"

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

type Review struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	ReviewedBy   string         `json:"reviewed_by"`
	Corrections  map[string]any `json:"corrections"`
	ReviewStatus ReviewStatus   `json:"review_status"`
	ReviewNotes  *string        `json:"review_notes,omitempty"`
	ReviewedAt   time.Time      `json:"reviewed_at"`
}

// ReviewInput carries a reviewer's submission. Corrections only list changed fields.
type ReviewInput struct {
	Corrections map[string]any `json:"corrections"`
	ReviewNotes *string        `json:"review_notes,omitempty"`
}

func (r *Review) Approve(by string, now time.Time) {
	r.ReviewStatus = ReviewApproved
	r.ReviewedBy = by
	r.ReviewedAt = now
}

func (r *Review) Reject(by string, notes *string, now time.Time) {
	r.ReviewStatus = ReviewRejected
	r.ReviewedBy = by
	if notes != nil {
		r.ReviewNotes = notes
	}
	r.ReviewedAt = now
}
