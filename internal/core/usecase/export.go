package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type ExportDeps struct {
	Documents   ports.DocumentRepository
	Extractions ports.ExtractionRepository
	Reviews     ports.ReviewRepository
	Exports     ports.ExportRepository
	Audit       *AuditRecorder
	Tx          ports.TxManager
	Sink        ports.ExportSink
	Observer    PipelineObserver
	// DefaultDestination is used when a caller names none.
	DefaultDestination string
}

// ExportDocumentUseCase is the only path that moves a document to EXPORTED.
type ExportDocumentUseCase struct {
	deps     ExportDeps
	observer PipelineObserver
	now      func() time.Time
}

func NewExportDocumentUseCase(deps ExportDeps) *ExportDocumentUseCase {
	return &ExportDocumentUseCase{
		deps:     deps,
		observer: observerOrNoop(deps.Observer),
		now:      utcNow,
	}
}

// Export sends the approved, corrected data to destination. On sink failure the
// attempt is recorded as FAILED, the document stays REVIEWED and the error is returned.
func (uc *ExportDocumentUseCase) Export(ctx context.Context, documentID, destination string, actor domain.Actor) (*domain.Export, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		destination = uc.deps.DefaultDestination
	}
	if destination == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export document", errors.New("destination is required"))
	}

	export, err := uc.prepare(ctx, documentID, destination)
	if err != nil {
		return nil, err
	}

	sendErr := uc.deps.Sink.Send(ctx, destination, export.ExportPayload)
	if err := uc.finish(ctx, export, actor, sendErr); err != nil {
		if sendErr != nil {
			return export, fmt.Errorf("send export: %w; record failure: %v", sendErr, err)
		}
		return export, err
	}
	uc.observer.ObserveExport(export.ExportStatus)
	if sendErr != nil {
		return export, fmt.Errorf("send export: %w", sendErr)
	}
	return export, nil
}

func (uc *ExportDocumentUseCase) prepare(ctx context.Context, documentID, destination string) (*domain.Export, error) {
	var export *domain.Export
	err := uc.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := uc.deps.Documents.GetByID(ctx, documentID)
		if err != nil {
			return fmt.Errorf("fetch document by id: %w", err)
		}
		if !domain.CanApply(doc.Status, domain.EventExport) {
			return domain.WrapError(domain.ErrInvalidTransition, "export document", fmt.Errorf("document %s is %s, expected %s", documentID, doc.Status, domain.StatusReviewed))
		}

		review, err := uc.deps.Reviews.GetByDocument(ctx, documentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.WrapError(domain.ErrPrecondition, "export document", fmt.Errorf("document %s has no review", documentID))
			}
			return fmt.Errorf("fetch review: %w", err)
		}
		if review.ReviewStatus != domain.ReviewApproved {
			return domain.WrapError(domain.ErrPrecondition, "export document", fmt.Errorf("review is %s, expected %s", review.ReviewStatus, domain.ReviewApproved))
		}

		extraction, err := uc.deps.Extractions.LatestByDocument(ctx, documentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.WrapError(domain.ErrPrecondition, "export document", fmt.Errorf("document %s has no extraction", documentID))
			}
			return fmt.Errorf("fetch latest extraction: %w", err)
		}

		payload := domain.ExportPayload{
			DocumentID:       doc.ID,
			DocumentType:     doc.DocumentType,
			OriginalFilename: doc.OriginalFilename,
			Data:             domain.MergeCorrections(extraction.StructuredData, review.Corrections),
			ExportedAt:       uc.now(),
		}

		// A previous failed attempt is reused so retry_count keeps counting.
		existing, err := uc.deps.Exports.GetByDocument(ctx, documentID)
		switch {
		case err == nil:
			export = existing
		case errors.Is(err, domain.ErrNotFound):
			export = &domain.Export{ID: uuid.NewString(), DocumentID: documentID}
		default:
			return fmt.Errorf("fetch export: %w", err)
		}
		export.ExportedTo = destination
		export.ExportPayload = payload
		export.ExportStatus = domain.ExportPending
		export.ExportedAt = nil

		if err := uc.deps.Exports.Save(ctx, export); err != nil {
			return fmt.Errorf("save pending export: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

func (uc *ExportDocumentUseCase) finish(ctx context.Context, export *domain.Export, actor domain.Actor, sendErr error) error {
	return uc.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if sendErr != nil {
			export.MarkFailed(sendErr.Error())
			slog.Warn("export_failed", "document_id", export.DocumentID, "destination", export.ExportedTo, "retry_count", export.RetryCount, "error", sendErr)
			if err := uc.deps.Exports.Save(ctx, export); err != nil {
				return fmt.Errorf("save failed export: %w", err)
			}
			return uc.deps.Audit.Record(ctx, export.DocumentID, domain.AuditExport, actor.ID, map[string]any{
				"export_id":     export.ID,
				"exported_to":   export.ExportedTo,
				"export_status": string(export.ExportStatus),
				"retry_count":   export.RetryCount,
				"error":         sendErr.Error(),
			})
		}

		// The row and the delivered payload carry the same export time.
		now := export.ExportPayload.ExportedAt
		export.MarkSuccess(now)
		if err := uc.deps.Exports.Save(ctx, export); err != nil {
			return fmt.Errorf("save export: %w", err)
		}
		doc, err := uc.deps.Documents.GetByID(ctx, export.DocumentID)
		if err != nil {
			return fmt.Errorf("reload document: %w", err)
		}
		if err := doc.Apply(domain.EventExport, now); err != nil {
			return err
		}
		if err := uc.deps.Documents.Update(ctx, doc); err != nil {
			return fmt.Errorf("set status=exported: %w", err)
		}
		return uc.deps.Audit.Record(ctx, export.DocumentID, domain.AuditExport, actor.ID, map[string]any{
			"export_id":     export.ID,
			"exported_to":   export.ExportedTo,
			"export_status": string(export.ExportStatus),
		})
	})
}
