package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/validation"
)

type ValidateDocumentUseCase struct {
	docs        ports.DocumentRepository
	extractions ports.ExtractionRepository
	results     ports.ValidationRepository
	audit       *AuditRecorder
	tx          ports.TxManager
	engine      *validation.Engine
	observer    PipelineObserver
	now         func() time.Time
}

func NewValidateDocumentUseCase(
	docs ports.DocumentRepository,
	extractions ports.ExtractionRepository,
	results ports.ValidationRepository,
	audit *AuditRecorder,
	tx ports.TxManager,
	engine *validation.Engine,
	observer PipelineObserver,
) *ValidateDocumentUseCase {
	return &ValidateDocumentUseCase{
		docs:        docs,
		extractions: extractions,
		results:     results,
		audit:       audit,
		tx:          tx,
		engine:      engine,
		observer:    observerOrNoop(observer),
		now:         utcNow,
	}
}

// Validate runs the rule engine over the latest extraction and supersedes any
// earlier result for it. The document becomes VALIDATED whatever the outcome.
func (uc *ValidateDocumentUseCase) Validate(ctx context.Context, documentID string, actor domain.Actor) (*domain.ValidationResult, error) {
	var result *domain.ValidationResult
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := uc.docs.GetByID(ctx, documentID)
		if err != nil {
			return fmt.Errorf("fetch document by id: %w", err)
		}
		extraction, err := uc.extractions.LatestByDocument(ctx, documentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.WrapError(domain.ErrPrecondition, "validate document", fmt.Errorf("document %s has no extraction", documentID))
			}
			return fmt.Errorf("fetch latest extraction: %w", err)
		}

		now := uc.now()
		if err := doc.Apply(domain.EventValidate, now); err != nil {
			return err
		}

		errs := uc.engine.Validate(doc.DocumentType, extraction.StructuredData)
		result = &domain.ValidationResult{
			ID:               uuid.NewString(),
			ExtractionID:     extraction.ID,
			ValidationRules:  map[string]any{"document_type": string(doc.DocumentType)},
			ValidationStatus: validation.Status(errs),
			ValidationErrors: errs,
			ValidatedAt:      now,
		}

		if err := uc.results.Save(ctx, result); err != nil {
			return fmt.Errorf("save validation: %w", err)
		}
		if err := uc.docs.Update(ctx, doc); err != nil {
			return fmt.Errorf("set status=validated: %w", err)
		}
		return uc.audit.Record(ctx, documentID, domain.AuditValidate, actor.ID, map[string]any{
			"extraction_id":     extraction.ID,
			"validation_status": string(result.ValidationStatus),
			"error_count":       len(errs),
		})
	})
	if err != nil {
		return nil, err
	}
	uc.observer.ObserveValidation(result.ValidationStatus)
	return result, nil
}
