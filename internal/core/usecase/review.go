package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type ReviewDocumentUseCase struct {
	docs        ports.DocumentRepository
	extractions ports.ExtractionRepository
	results     ports.ValidationRepository
	reviews     ports.ReviewRepository
	audit       *AuditRecorder
	tx          ports.TxManager
	exporter    ports.DocumentExporter
	destination string
	now         func() time.Time
}

func NewReviewDocumentUseCase(
	docs ports.DocumentRepository,
	extractions ports.ExtractionRepository,
	results ports.ValidationRepository,
	reviews ports.ReviewRepository,
	audit *AuditRecorder,
	tx ports.TxManager,
	exporter ports.DocumentExporter,
	destination string,
) *ReviewDocumentUseCase {
	return &ReviewDocumentUseCase{
		docs:        docs,
		extractions: extractions,
		results:     results,
		reviews:     reviews,
		audit:       audit,
		tx:          tx,
		exporter:    exporter,
		destination: destination,
		now:         utcNow,
	}
}

// Submit creates or updates the document's single review. The extraction must
// have a validation result that did not fail; nothing is written otherwise.
func (uc *ReviewDocumentUseCase) Submit(ctx context.Context, documentID string, input domain.ReviewInput, actor domain.Actor) (*domain.Review, error) {
	var review *domain.Review
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := uc.docs.GetByID(ctx, documentID)
		if err != nil {
			return fmt.Errorf("fetch document by id: %w", err)
		}
		if err := uc.checkGate(ctx, documentID); err != nil {
			return err
		}

		now := uc.now()
		if err := doc.Apply(domain.EventReview, now); err != nil {
			return err
		}

		corrections := input.Corrections
		if corrections == nil {
			corrections = map[string]any{}
		}
		review, err = uc.reviews.GetByDocument(ctx, documentID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			review = &domain.Review{ID: uuid.NewString(), DocumentID: documentID}
		default:
			return fmt.Errorf("fetch review: %w", err)
		}
		review.ReviewedBy = actor.ID
		review.Corrections = corrections
		review.ReviewNotes = input.ReviewNotes
		review.ReviewStatus = domain.ReviewPending
		review.ReviewedAt = now
		if err := uc.reviews.Save(ctx, review); err != nil {
			return fmt.Errorf("save review: %w", err)
		}

		if len(corrections) > 0 {
			doc.IncrementVersion(now)
			if err := uc.audit.Record(ctx, documentID, domain.AuditCorrect, actor.ID, map[string]any{
				"corrections": corrections,
				"version":     doc.Version,
			}); err != nil {
				return err
			}
		}
		if err := uc.docs.Update(ctx, doc); err != nil {
			return fmt.Errorf("set status=reviewed: %w", err)
		}
		return uc.audit.Record(ctx, documentID, domain.AuditReview, actor.ID, map[string]any{
			"review_id":     review.ID,
			"review_status": string(review.ReviewStatus),
			"corrections":   corrections,
		})
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (uc *ReviewDocumentUseCase) checkGate(ctx context.Context, documentID string) error {
	const op = "review gate"
	extraction, err := uc.extractions.LatestByDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.WrapError(domain.ErrPrecondition, op, fmt.Errorf("document %s has no extraction", documentID))
		}
		return fmt.Errorf("fetch latest extraction: %w", err)
	}
	result, err := uc.results.LatestByExtraction(ctx, extraction.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.WrapError(domain.ErrPrecondition, op, fmt.Errorf("extraction %s has not been validated", extraction.ID))
		}
		return fmt.Errorf("fetch validation result: %w", err)
	}
	if result.ValidationStatus == domain.ValidationFailed {
		return domain.WrapError(domain.ErrPrecondition, op, fmt.Errorf("validation failed with %d error(s)", len(result.ValidationErrors)))
	}
	return nil
}

// Approve marks the review APPROVED and exports to the default destination.
// The approval stays committed when the export fails.
func (uc *ReviewDocumentUseCase) Approve(ctx context.Context, documentID string, actor domain.Actor) (*domain.Review, *domain.Export, error) {
	review, err := uc.decide(ctx, documentID, func(r *domain.Review, now time.Time) {
		r.Approve(actor.ID, now)
	}, actor)
	if err != nil {
		return nil, nil, err
	}
	export, err := uc.exporter.Export(ctx, documentID, uc.destination, actor)
	if err != nil {
		return review, export, fmt.Errorf("export approved document: %w", err)
	}
	return review, export, nil
}

// Reject leaves the document status alone; a later Submit reopens the review.
func (uc *ReviewDocumentUseCase) Reject(ctx context.Context, documentID string, notes *string, actor domain.Actor) (*domain.Review, error) {
	return uc.decide(ctx, documentID, func(r *domain.Review, now time.Time) {
		r.Reject(actor.ID, notes, now)
	}, actor)
}

func (uc *ReviewDocumentUseCase) decide(
	ctx context.Context,
	documentID string,
	apply func(*domain.Review, time.Time),
	actor domain.Actor,
) (*domain.Review, error) {
	var review *domain.Review
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := uc.docs.GetByID(ctx, documentID)
		if err != nil {
			return fmt.Errorf("fetch document by id: %w", err)
		}
		if doc.Status != domain.StatusReviewed {
			return domain.WrapError(domain.ErrInvalidTransition, "decide review", fmt.Errorf("document %s is %s, expected %s", documentID, doc.Status, domain.StatusReviewed))
		}
		review, err = uc.reviews.GetByDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("fetch review: %w", err)
		}
		apply(review, uc.now())
		if err := uc.reviews.Save(ctx, review); err != nil {
			return fmt.Errorf("save review: %w", err)
		}
		changes := map[string]any{
			"review_id":     review.ID,
			"review_status": string(review.ReviewStatus),
		}
		if review.ReviewNotes != nil {
			changes["review_notes"] = *review.ReviewNotes
		}
		return uc.audit.Record(ctx, documentID, domain.AuditReview, actor.ID, changes)
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}
