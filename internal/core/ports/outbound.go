package ports

import (
	"context"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// OCR turns stored bytes into text. Layout blocks are best-effort.
type OCR interface {
	ExtractText(ctx context.Context, data []byte, fileType string) (domain.OCRResult, error)
}

// FieldExtractor fills a per-type schema from OCR text.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text, docType string, schema domain.Schema) (domain.FieldExtractionResult, error)
}

// LLMClassifier answers the uncertain-band fallback prompt.
type LLMClassifier interface {
	ClassifyDocument(ctx context.Context, prompt string) (domain.LLMClassification, error)
}

// ObjectStorage stores source documents and export artifacts.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ExportSink delivers an approved payload to a destination system.
type ExportSink interface {
	Send(ctx context.Context, destination string, payload domain.ExportPayload) error
}

// ExtractionQueue publishes/consumes extraction jobs.
type ExtractionQueue interface {
	Submit(ctx context.Context, job domain.ExtractionJob) error
	Consume(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error
}

// PDFInspector reads structural facts from PDF bytes without rendering them.
type PDFInspector interface {
	PageCount(data []byte) (int, error)
}
