package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	maxFilenameLength     = 255
)

// AllowedFileTypes maps accepted extensions to their served content type.
var AllowedFileTypes = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
}

type UploadDocumentUseCase struct {
	docs      ports.DocumentRepository
	audit     *AuditRecorder
	tx        ports.TxManager
	storage   ports.ObjectStorage
	queue     ports.ExtractionQueue
	inspector ports.PDFInspector
	maxBytes  int64
	now       func() time.Time
}

func NewUploadDocumentUseCase(
	docs ports.DocumentRepository,
	audit *AuditRecorder,
	tx ports.TxManager,
	storage ports.ObjectStorage,
	queue ports.ExtractionQueue,
	inspector ports.PDFInspector,
	maxBytes int64,
) *UploadDocumentUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadDocumentUseCase{
		docs:      docs,
		audit:     audit,
		tx:        tx,
		storage:   storage,
		queue:     queue,
		inspector: inspector,
		maxBytes:  maxBytes,
		now:       utcNow,
	}
}

// Upload stores the file, records the document and queues extraction. A failed
// queue submission is logged only: the document stays UPLOADED and can be reprocessed.
func (uc *UploadDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	ext, err := uc.validate(req.Filename, req.Data)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{
		"filename":  req.Filename,
		"file_size": len(req.Data),
	}
	if ext == "pdf" && uc.inspector != nil {
		if pages, err := uc.inspector.PageCount(req.Data); err != nil {
			slog.Warn("pdf_inspection_failed", "filename", req.Filename, "error", err)
		} else {
			changes["page_count"] = pages
		}
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s", id, sanitizeFilename(req.Filename))
	if err := uc.storage.Put(ctx, storageKey, req.Data); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := uc.now()
	doc := &domain.Document{
		ID:               id,
		OriginalFilename: req.Filename,
		FileType:         ext,
		FileSize:         int64(len(req.Data)),
		StoragePath:      storageKey,
		UploadedBy:       req.Actor.ID,
		Status:           domain.StatusUploaded,
		DocumentType:     domain.TypeUnknown,
		Version:          1,
		UploadedAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := uc.docs.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document metadata: %w", err)
		}
		return uc.audit.Record(ctx, doc.ID, domain.AuditUpload, req.Actor.ID, changes)
	})
	if err != nil {
		if delErr := uc.storage.Delete(ctx, storageKey); delErr != nil {
			slog.Warn("orphan_blob_cleanup_failed", "storage_path", storageKey, "error", delErr)
		}
		return nil, err
	}

	job := domain.ExtractionJob{DocumentID: doc.ID, RequestedBy: req.Actor.ID, EnqueuedAt: now}
	if err := uc.queue.Submit(ctx, job); err != nil {
		slog.Error("extraction_submit_failed", "document_id", doc.ID, "error", err)
	}
	return doc, nil
}

func (uc *UploadDocumentUseCase) validate(filename string, data []byte) (string, error) {
	const op = "validate upload"
	name := strings.TrimSpace(filename)
	switch {
	case name == "":
		return "", domain.WrapError(domain.ErrInvalidInput, op, errors.New("filename is required"))
	case len(name) > maxFilenameLength:
		return "", domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("filename longer than %d characters", maxFilenameLength))
	case strings.ContainsAny(name, `/\`) || strings.Contains(name, ".."):
		return "", domain.WrapError(domain.ErrInvalidInput, op, errors.New("filename must not contain path elements"))
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := AllowedFileTypes[ext]; !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("file type %q not allowed, allowed types: %s", ext, allowedTypesList()))
	}
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, op, errors.New("file is empty"))
	}
	if int64(len(data)) > uc.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("file size exceeds maximum of %d bytes", uc.maxBytes))
	}
	if !contentMatchesExtension(ext, data) {
		return "", domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("file content does not match extension %q", ext))
	}
	return ext, nil
}

func allowedTypesList() string {
	return "pdf, png, jpg, jpeg, tif, tiff"
}

var (
	tiffLittleEndian = []byte("II*\x00")
	tiffBigEndian    = []byte("MM\x00*")
)

// contentMatchesExtension sniffs magic bytes. TIFF is checked by hand because
// http.DetectContentType does not know it.
func contentMatchesExtension(ext string, data []byte) bool {
	if ext == "tif" || ext == "tiff" {
		return bytes.HasPrefix(data, tiffLittleEndian) || bytes.HasPrefix(data, tiffBigEndian)
	}
	detected := http.DetectContentType(data)
	return strings.HasPrefix(detected, AllowedFileTypes[ext])
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
