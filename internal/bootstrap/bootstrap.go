package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/classification"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/core/validation"
	"github.com/kirillkom/docflow/internal/infrastructure/exportsink"
	"github.com/kirillkom/docflow/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docflow/internal/infrastructure/ocr/pdftext"
	"github.com/kirillkom/docflow/internal/infrastructure/ocr/remote"
	"github.com/kirillkom/docflow/internal/infrastructure/pdfinspect"
	"github.com/kirillkom/docflow/internal/infrastructure/queue/inprocess"
	"github.com/kirillkom/docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/azureblob"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue     ports.ExtractionQueue
	Uploader  ports.DocumentUploader
	Documents ports.DocumentService
	Validator ports.DocumentValidator
	Reviews   ports.ReviewService
	Exporter  ports.DocumentExporter
	Processor ports.DocumentProcessor

	closers []func()
}

type Options struct {
	// Observer receives pipeline outcomes; nil disables them.
	Observer usecase.PipelineObserver
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := postgres.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	executor := NewExecutor(cfg)

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := newQueue(cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init extraction queue: %w", err)
	}
	app.Queue = queue
	if q, ok := queue.(*nats.Queue); ok {
		app.closers = append(app.closers, q.Close)
	}

	classifier, err := NewClassifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{ResilienceExecutor: executor})

	docs := postgres.NewDocumentRepository(db)
	extractions := postgres.NewExtractionRepository(db)
	results := postgres.NewValidationRepository(db)
	reviews := postgres.NewReviewRepository(db)
	exports := postgres.NewExportRepository(db)
	audit := usecase.NewAuditRecorder(postgres.NewAuditRepository(db))
	tx := postgres.NewTxManager(db)

	validateUC := usecase.NewValidateDocumentUseCase(docs, extractions, results, audit, tx, validation.NewEngine(), opts.Observer)
	exportUC := usecase.NewExportDocumentUseCase(usecase.ExportDeps{
		Documents:          docs,
		Extractions:        extractions,
		Reviews:            reviews,
		Exports:            exports,
		Audit:              audit,
		Tx:                 tx,
		Sink:               newExportSink(cfg, storage, executor),
		Observer:           opts.Observer,
		DefaultDestination: cfg.TMSDefaultDestination,
	})

	extractDeps := usecase.ExtractDeps{
		Documents:      docs,
		Extractions:    extractions,
		Audit:          audit,
		Tx:             tx,
		Storage:        storage,
		OCR:            newOCR(cfg, executor),
		Classifier:     classifier,
		FieldExtractor: ollama.NewFieldExtractor(ollamaClient),
		LLMClassifier:  NewLLMClassifier(cfg, executor),
		Observer:       opts.Observer,
	}
	if cfg.AutoValidate {
		extractDeps.Validator = validateUC
	}

	app.Uploader = usecase.NewUploadDocumentUseCase(docs, audit, tx, storage, queue, pdfinspect.New(), cfg.MaxUploadBytes)
	app.Documents = usecase.NewDocumentsUseCase(usecase.DocumentsDeps{
		Documents:   docs,
		Extractions: extractions,
		Validations: results,
		Reviews:     reviews,
		Exports:     exports,
		Audit:       audit,
		Tx:          tx,
		Storage:     storage,
		Queue:       queue,
	})
	app.Validator = validateUC
	app.Exporter = exportUC
	app.Reviews = usecase.NewReviewDocumentUseCase(docs, extractions, results, reviews, audit, tx, exportUC, cfg.TMSDefaultDestination)
	app.Processor = usecase.NewExtractDocumentUseCase(extractDeps)

	slog.Info("bootstrap_ready",
		"queue", cfg.QueueProvider,
		"storage", cfg.StorageProvider,
		"ocr", cfg.OCRProvider,
		"llm_fallback", cfg.LLMClassificationFallback,
		"auto_validate", cfg.AutoValidate,
	)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func NewExecutor(cfg config.Config) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryJitter:             cfg.RetryJitter,
		RetryAfterCap:           cfg.RetryAfterCap,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	})
}

// NewClassifier loads keyword profiles from CLASSIFICATION_PROFILES_PATH, or the
// built-in set when unset.
func NewClassifier(cfg config.Config) (*classification.Classifier, error) {
	var (
		store *classification.ProfileStore
		err   error
	)
	if cfg.ClassificationProfilesPath != "" {
		store, err = classification.LoadProfiles(cfg.ClassificationProfilesPath)
	} else {
		store, err = classification.DefaultProfiles()
	}
	if err != nil {
		return nil, err
	}
	return classification.NewClassifier(store), nil
}

// NewLLMClassifier returns nil when the fallback is disabled.
func NewLLMClassifier(cfg config.Config, executor *resilience.Executor) ports.LLMClassifier {
	if !cfg.LLMClassificationFallback {
		return nil
	}
	client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{ResilienceExecutor: executor})
	return ollama.NewClassifier(client)
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageProvider {
	case config.StorageAzure:
		s, err := azureblob.New(cfg.AzureConnectionString, cfg.AzureContainer)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageLocal:
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.StorageProvider)
	}
}

func newQueue(cfg config.Config, executor *resilience.Executor) (ports.ExtractionQueue, error) {
	switch cfg.QueueProvider {
	case config.QueueNATS:
		return nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			DeadLetterSubject:  cfg.NATSDeadLetter,
			DrainTimeout:       cfg.WorkerJobTimeout + time.Minute,
		})
	case config.QueueInProcess:
		return inprocess.New(cfg.InProcessCapacity, cfg.WorkerConcurrency), nil
	default:
		return nil, fmt.Errorf("unknown queue provider %q", cfg.QueueProvider)
	}
}

func newOCR(cfg config.Config, executor *resilience.Executor) ports.OCR {
	if cfg.OCRProvider == config.OCRHTTP {
		return remote.New(cfg.OCRURL, remote.Options{ResilienceExecutor: executor})
	}
	return pdftext.New()
}

// newExportSink sends to the TMS unless the destination names the archive.
func newExportSink(cfg config.Config, storage ports.ObjectStorage, executor *resilience.Executor) ports.ExportSink {
	router := exportsink.NewRouter(exportsink.NewTMSSink(cfg.TMSAPIURL, exportsink.TMSOptions{
		APIKey:             cfg.TMSAPIKey,
		ResilienceExecutor: executor,
	}))
	if cfg.ExportArchiveEnabled {
		router.Handle(exportsink.ArchiveDestination, exportsink.NewArchiveSink(storage))
	}
	return router
}
