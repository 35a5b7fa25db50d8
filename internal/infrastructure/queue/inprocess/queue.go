package inprocess

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docflow/internal/core/domain"
)

var ErrQueueFull = errors.New("extraction queue is full")

// Queue runs extraction jobs inside the API process. It is meant for single-node
// deployments and tests; jobs still buffered at shutdown are lost.
type Queue struct {
	jobs        chan domain.ExtractionJob
	concurrency int
}

func New(capacity, concurrency int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Queue{
		jobs:        make(chan domain.ExtractionJob, capacity),
		concurrency: concurrency,
	}
}

// Submit never blocks; a full buffer is reported as a temporary failure.
func (q *Queue) Submit(ctx context.Context, job domain.ExtractionJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "submit extraction job", ErrQueueFull)
	}
}

// Consume runs up to concurrency handlers at once until ctx is done, then waits
// for the running ones. Handler errors are logged and do not stop the loop.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(q.concurrency)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case job := <-q.jobs:
			g.Go(func() error {
				if err := handler(gctx, job); err != nil {
					slog.Error("extraction_job_failed", "document_id", job.DocumentID, "reprocess", job.Reprocess, "error", err)
				}
				return nil
			})
		}
	}
}
