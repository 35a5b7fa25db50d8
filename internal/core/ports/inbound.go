package ports

import (
	"context"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// UploadRequest is the inbound upload command.
type UploadRequest struct {
	Filename string
	Data     []byte
	Actor    domain.Actor
}

// DocumentUploader is the inbound contract for document upload orchestration.
type DocumentUploader interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous extraction.
type DocumentProcessor interface {
	Process(ctx context.Context, job domain.ExtractionJob) error
}

// DocumentService is the read/delete/reprocess model for documents.
type DocumentService interface {
	List(ctx context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	Download(ctx context.Context, id string) ([]byte, string, error)
	Delete(ctx context.Context, id string, actor domain.Actor) error
	Reprocess(ctx context.Context, id string, actor domain.Actor) (*domain.Document, error)
	Extraction(ctx context.Context, id string) (*domain.Extraction, error)
	Validation(ctx context.Context, id string) (*domain.ValidationResult, error)
	Review(ctx context.Context, id string) (*domain.Review, error)
	Export(ctx context.Context, id string) (*domain.Export, error)
	AuditTrail(ctx context.Context, id string) ([]domain.AuditTrail, error)
}

type DocumentValidator interface {
	Validate(ctx context.Context, documentID string, actor domain.Actor) (*domain.ValidationResult, error)
}

type ReviewService interface {
	Submit(ctx context.Context, documentID string, input domain.ReviewInput, actor domain.Actor) (*domain.Review, error)
	Approve(ctx context.Context, documentID string, actor domain.Actor) (*domain.Review, *domain.Export, error)
	Reject(ctx context.Context, documentID string, notes *string, actor domain.Actor) (*domain.Review, error)
}

type DocumentExporter interface {
	Export(ctx context.Context, documentID, destination string, actor domain.Actor) (*domain.Export, error)
}
