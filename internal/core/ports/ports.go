package ports

import (
	"context"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// DocumentRepository persists and reads document state. Missing rows surface as
// domain.ErrDocumentNotFound.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	List(ctx context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error)
	Delete(ctx context.Context, id string) error
}

type ExtractionRepository interface {
	Create(ctx context.Context, extraction *domain.Extraction) error
	LatestByDocument(ctx context.Context, documentID string) (*domain.Extraction, error)
}

// ValidationRepository keeps one live result per extraction; Save supersedes
// any earlier one.
type ValidationRepository interface {
	Save(ctx context.Context, result *domain.ValidationResult) error
	LatestByExtraction(ctx context.Context, extractionID string) (*domain.ValidationResult, error)
}

// ReviewRepository keeps at most one review per document.
type ReviewRepository interface {
	GetByDocument(ctx context.Context, documentID string) (*domain.Review, error)
	Save(ctx context.Context, review *domain.Review) error
}

// ExportRepository keeps the latest export attempt per document.
type ExportRepository interface {
	GetByDocument(ctx context.Context, documentID string) (*domain.Export, error)
	Save(ctx context.Context, export *domain.Export) error
}

// AuditRepository is append-only.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditTrail) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.AuditTrail, error)
}

// TxManager runs fn in a single transaction carried by the context passed to fn.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
