package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

type DocumentsDeps struct {
	Documents   ports.DocumentRepository
	Extractions ports.ExtractionRepository
	Validations ports.ValidationRepository
	Reviews     ports.ReviewRepository
	Exports     ports.ExportRepository
	Audit       *AuditRecorder
	Tx          ports.TxManager
	Storage     ports.ObjectStorage
	Queue       ports.ExtractionQueue
}

// DocumentsUseCase serves reads, deletes and reprocess requests.
type DocumentsUseCase struct {
	deps DocumentsDeps
	now  func() time.Time
}

func NewDocumentsUseCase(deps DocumentsDeps) *DocumentsUseCase {
	return &DocumentsUseCase{deps: deps, now: utcNow}
}

func (uc *DocumentsUseCase) List(ctx context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.DocumentPage{}, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown status %q", filter.Status))
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultPageLimit
	case filter.Limit > MaxPageLimit:
		filter.Limit = MaxPageLimit
	}
	page, err := uc.deps.Documents.List(ctx, filter)
	if err != nil {
		return domain.DocumentPage{}, fmt.Errorf("list documents: %w", err)
	}
	return page, nil
}

func (uc *DocumentsUseCase) Get(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.deps.Documents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

// Download returns the stored bytes and their content type.
func (uc *DocumentsUseCase) Download(ctx context.Context, id string) ([]byte, string, error) {
	doc, err := uc.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data, err := uc.deps.Storage.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, "", fmt.Errorf("load document bytes: %w", err)
	}
	contentType, ok := AllowedFileTypes[doc.FileType]
	if !ok {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// Delete removes the document and, by cascade, everything it owns. The blob is
// removed best-effort afterwards. The audit rows go with the document, so the
// deletion itself is only logged.
func (uc *DocumentsUseCase) Delete(ctx context.Context, id string, actor domain.Actor) error {
	var storagePath string
	err := uc.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := uc.deps.Documents.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch document by id: %w", err)
		}
		storagePath = doc.StoragePath
		if err := uc.deps.Documents.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := uc.deps.Storage.Delete(ctx, storagePath); err != nil {
		slog.Warn("blob_delete_failed", "document_id", id, "storage_path", storagePath, "error", err)
	}
	slog.Info("document_deleted",
		"document_id", id,
		"action", string(domain.AuditDelete),
		"performed_by", actor.ID,
	)
	return nil
}

// Reprocess queues a fresh extraction and returns immediately. The transition
// itself happens when the job runs.
func (uc *DocumentsUseCase) Reprocess(ctx context.Context, id string, actor domain.Actor) (*domain.Document, error) {
	doc, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := domain.NextStatus(doc.Status, domain.EventReprocess); err != nil {
		return nil, err
	}
	job := domain.ExtractionJob{
		DocumentID:  doc.ID,
		Reprocess:   true,
		RequestedBy: actor.ID,
		EnqueuedAt:  uc.now(),
	}
	if err := uc.deps.Queue.Submit(ctx, job); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "submit reprocess job", err)
	}
	return doc, nil
}

func (uc *DocumentsUseCase) Extraction(ctx context.Context, id string) (*domain.Extraction, error) {
	if _, err := uc.Get(ctx, id); err != nil {
		return nil, err
	}
	extraction, err := uc.deps.Extractions.LatestByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch latest extraction: %w", err)
	}
	return extraction, nil
}

func (uc *DocumentsUseCase) Validation(ctx context.Context, id string) (*domain.ValidationResult, error) {
	extraction, err := uc.Extraction(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := uc.deps.Validations.LatestByExtraction(ctx, extraction.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch validation result: %w", err)
	}
	return result, nil
}

func (uc *DocumentsUseCase) Review(ctx context.Context, id string) (*domain.Review, error) {
	if _, err := uc.Get(ctx, id); err != nil {
		return nil, err
	}
	review, err := uc.deps.Reviews.GetByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch review: %w", err)
	}
	return review, nil
}

func (uc *DocumentsUseCase) Export(ctx context.Context, id string) (*domain.Export, error) {
	if _, err := uc.Get(ctx, id); err != nil {
		return nil, err
	}
	export, err := uc.deps.Exports.GetByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch export: %w", err)
	}
	return export, nil
}

func (uc *DocumentsUseCase) AuditTrail(ctx context.Context, id string) ([]domain.AuditTrail, error) {
	if _, err := uc.Get(ctx, id); err != nil {
		return nil, err
	}
	return uc.deps.Audit.List(ctx, id)
}
