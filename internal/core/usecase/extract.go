package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/classification"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// ExtractDeps wires the extraction pipeline. LLMClassifier and Validator are optional:
// a nil LLMClassifier disables the classification fallback, a nil Validator disables
// validation right after extraction.
type ExtractDeps struct {
	Documents      ports.DocumentRepository
	Extractions    ports.ExtractionRepository
	Audit          *AuditRecorder
	Tx             ports.TxManager
	Storage        ports.ObjectStorage
	OCR            ports.OCR
	Classifier     *classification.Classifier
	LLMClassifier  ports.LLMClassifier
	FieldExtractor ports.FieldExtractor
	Validator      ports.DocumentValidator
	Observer       PipelineObserver
}

// settleTimeout bounds the transactions that record an extraction outcome.
const settleTimeout = 10 * time.Second

type ExtractDocumentUseCase struct {
	deps     ExtractDeps
	observer PipelineObserver
	now      func() time.Time
}

func NewExtractDocumentUseCase(deps ExtractDeps) *ExtractDocumentUseCase {
	return &ExtractDocumentUseCase{
		deps:     deps,
		observer: observerOrNoop(deps.Observer),
		now:      utcNow,
	}
}

type pipelineOutput struct {
	classification domain.ClassificationResult
	extraction     *domain.Extraction
}

// Process runs one extraction job. PROCESSING, the outcome and the failure path
// each commit in their own transaction so a failed pipeline still leaves a
// visible FAILED document.
func (uc *ExtractDocumentUseCase) Process(ctx context.Context, job domain.ExtractionJob) error {
	doc, err := uc.begin(ctx, job)
	if err != nil {
		return err
	}
	actor := extractionActor(job, doc)

	out, err := uc.runPipeline(ctx, doc)

	// The outcome is written even after the job ctx expires so the document
	// never stays PROCESSING.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err == nil {
		err = uc.complete(settleCtx, doc.ID, actor, out)
	}
	if err != nil {
		if failErr := uc.fail(settleCtx, doc.ID, actor, err); failErr != nil {
			slog.Error("mark_failed_status_failed", "document_id", doc.ID, "cause", err, "error", failErr)
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if uc.deps.Validator != nil {
		if _, err := uc.deps.Validator.Validate(ctx, doc.ID, domain.SystemActor()); err != nil {
			slog.Warn("auto_validation_failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

func (uc *ExtractDocumentUseCase) begin(ctx context.Context, job domain.ExtractionJob) (*domain.Document, error) {
	event := domain.EventBeginExtraction
	if job.Reprocess {
		event = domain.EventReprocess
	}

	var doc *domain.Document
	err := uc.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		loaded, err := uc.deps.Documents.GetByID(ctx, job.DocumentID)
		if err != nil {
			return fmt.Errorf("fetch document by id: %w", err)
		}
		if err := loaded.Apply(event, uc.now()); err != nil {
			return domain.WrapError(domain.ErrInvalidTransition, "begin extraction", err)
		}
		if err := uc.deps.Documents.Update(ctx, loaded); err != nil {
			return fmt.Errorf("set status=processing: %w", err)
		}
		doc = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (uc *ExtractDocumentUseCase) runPipeline(ctx context.Context, doc *domain.Document) (pipelineOutput, error) {
	data, err := uc.deps.Storage.Get(ctx, doc.StoragePath)
	if err != nil {
		return pipelineOutput{}, fmt.Errorf("load document bytes: %w", err)
	}

	ocr, err := uc.deps.OCR.ExtractText(ctx, data, doc.FileType)
	if err != nil {
		return pipelineOutput{}, fmt.Errorf("ocr extract text: %w", err)
	}

	result := uc.deps.Classifier.ClassifyWithConfidence(
		ctx,
		ocr.Text,
		classification.Metadata{Filename: doc.OriginalFilename},
		uc.deps.LLMClassifier,
	)
	uc.observer.ObserveClassification(result)

	extraction := uc.extractFields(ctx, doc.ID, ocr, result)
	return pipelineOutput{classification: result, extraction: extraction}, nil
}

// extractFields degrades to an OCR-only extraction when the field extractor
// fails; the OCR text is kept either way.
func (uc *ExtractDocumentUseCase) extractFields(
	ctx context.Context,
	documentID string,
	ocr domain.OCRResult,
	result domain.ClassificationResult,
) *domain.Extraction {
	extraction := &domain.Extraction{
		ID:                 uuid.NewString(),
		DocumentID:         documentID,
		ExtractionMethod:   domain.ExtractionOCRLLM,
		RawText:            ocr.Text,
		StructuredData:     map[string]any{},
		ConfidenceScores:   map[string]float64{},
		ExtractionMetadata: map[string]any{},
		ExtractedAt:        uc.now(),
	}

	schema := domain.ExtractionSchema(result.DocumentType)
	fields, err := uc.deps.FieldExtractor.ExtractFields(ctx, ocr.Text, string(result.DocumentType), schema)
	if err != nil {
		slog.Warn("field_extraction_degraded", "document_id", documentID, "error", err)
		extraction.ExtractionMethod = domain.ExtractionOCROnly
		extraction.ExtractionMetadata = map[string]any{
			"fallback":   "ocr_only",
			"error":      err.Error(),
			"error_type": errorType(err),
		}
	} else {
		if fields.StructuredData != nil {
			extraction.StructuredData = fields.StructuredData
		}
		for field, score := range fields.ConfidenceScores {
			if _, ok := extraction.StructuredData[field]; !ok || math.IsNaN(score) {
				continue
			}
			extraction.ConfidenceScores[field] = min(max(score, 0), 1)
		}
		for k, v := range fields.Metadata {
			extraction.ExtractionMetadata[k] = v
		}
	}

	extraction.ExtractionMetadata["classification"] = classificationSummary(result)
	if len(ocr.Layout) > 0 {
		extraction.ExtractionMetadata["layout_blocks"] = len(ocr.Layout)
	}
	return extraction
}

func (uc *ExtractDocumentUseCase) complete(ctx context.Context, documentID, actor string, out pipelineOutput) error {
	return uc.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := uc.deps.Documents.GetByID(ctx, documentID)
		if err != nil {
			return fmt.Errorf("reload document: %w", err)
		}
		if err := uc.deps.Extractions.Create(ctx, out.extraction); err != nil {
			return fmt.Errorf("save extraction: %w", err)
		}

		now := uc.now()
		doc.Classify(out.classification.DocumentType, now)
		if err := doc.Apply(domain.EventExtractionSucceeded, now); err != nil {
			return domain.WrapError(domain.ErrInvalidTransition, "complete extraction", err)
		}
		if err := uc.deps.Documents.Update(ctx, doc); err != nil {
			return fmt.Errorf("set status=extracted: %w", err)
		}

		changes := classificationSummary(out.classification)
		changes["extraction_id"] = out.extraction.ID
		changes["extraction_method"] = out.extraction.ExtractionMethod
		changes["field_count"] = len(out.extraction.StructuredData)
		return uc.deps.Audit.Record(ctx, documentID, domain.AuditExtract, actor, changes)
	})
}

func (uc *ExtractDocumentUseCase) fail(ctx context.Context, documentID, actor string, cause error) error {
	return uc.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := uc.deps.Documents.GetByID(ctx, documentID)
		if err != nil {
			return fmt.Errorf("reload document: %w", err)
		}
		if err := doc.Apply(domain.EventExtractionFailed, uc.now()); err != nil {
			return err
		}
		if err := uc.deps.Documents.Update(ctx, doc); err != nil {
			return fmt.Errorf("set status=failed: %w", err)
		}
		return uc.deps.Audit.Record(ctx, documentID, domain.AuditExtract, actor, map[string]any{
			"status": string(domain.StatusFailed),
			"error":  cause.Error(),
		})
	})
}

// extractionActor attributes extraction to whoever asked for it, then the
// uploader, then the system actor.
func extractionActor(job domain.ExtractionJob, doc *domain.Document) string {
	switch {
	case job.RequestedBy != "":
		return job.RequestedBy
	case doc.UploadedBy != "":
		return doc.UploadedBy
	default:
		return domain.SystemActorID
	}
}

func classificationSummary(r domain.ClassificationResult) map[string]any {
	summary := map[string]any{
		"document_type":             string(r.DocumentType),
		"classification_confidence": r.Confidence,
		"classification_method":     string(r.Method),
	}
	if r.RunnerUpType != nil {
		summary["runner_up_type"] = string(*r.RunnerUpType)
		summary["runner_up_confidence"] = r.RunnerUpConfidence
	}
	return summary
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrTemporary):
		return "temporary"
	case errors.Is(err, domain.ErrPermanent):
		return "permanent"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}
