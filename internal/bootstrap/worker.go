package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

// RunWorker consumes extraction jobs until ctx is done. Each job gets its own
// timeout. m may be nil.
func (a *App) RunWorker(ctx context.Context, service string, m *metrics.WorkerMetrics) error {
	slog.Info("worker_consuming", "service", service)
	return a.Queue.Consume(ctx, a.jobHandler(m))
}

func (a *App) jobHandler(m *metrics.WorkerMetrics) func(context.Context, domain.ExtractionJob) error {
	timeout := a.Config.WorkerJobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return func(ctx context.Context, job domain.ExtractionJob) error {
		started := time.Now()
		finish := func(error) {}
		if m != nil {
			finish = m.TrackExtraction(job.EnqueuedAt)
		}

		jobCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := a.Processor.Process(jobCtx, job)

		elapsed := time.Since(started)
		finish(err)
		if err != nil {
			slog.Error("extraction_failed",
				"document_id", job.DocumentID,
				"reprocess", job.Reprocess,
				"duration_ms", elapsed.Milliseconds(),
				"error", err,
			)
			return err
		}
		slog.Info("extraction_completed",
			"document_id", job.DocumentID,
			"reprocess", job.Reprocess,
			"duration_ms", elapsed.Milliseconds(),
		)
		return nil
	}
}
