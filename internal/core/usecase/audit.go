package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// AuditRecorder appends audit rows; it never updates or deletes them.
type AuditRecorder struct {
	repo ports.AuditRepository
	now  func() time.Time
}

func NewAuditRecorder(repo ports.AuditRepository) *AuditRecorder {
	return &AuditRecorder{repo: repo, now: utcNow}
}

func (r *AuditRecorder) Record(
	ctx context.Context,
	documentID string,
	action domain.AuditAction,
	performedBy string,
	changes map[string]any,
) error {
	if performedBy == "" {
		performedBy = domain.SystemActorID
	}
	if changes == nil {
		changes = map[string]any{}
	}
	entry := &domain.AuditTrail{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		Action:      action,
		PerformedBy: performedBy,
		Changes:     changes,
		PerformedAt: r.now(),
	}
	if err := r.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit %s: %w", action, err)
	}
	return nil
}

func (r *AuditRecorder) List(ctx context.Context, documentID string) ([]domain.AuditTrail, error) {
	entries, err := r.repo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	return entries, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
