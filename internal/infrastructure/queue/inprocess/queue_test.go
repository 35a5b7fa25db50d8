package inprocess

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestSubmitRejectsWhenFull(t *testing.T) {
	q := New(1, 1)
	if err := q.Submit(context.Background(), domain.ExtractionJob{DocumentID: "a"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	err := q.Submit(context.Background(), domain.ExtractionJob{DocumentID: "b"})
	if !errors.Is(err, ErrQueueFull) || !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary queue full error, got %v", err)
	}
}

func TestConsumeRunsJobsWithBoundedConcurrency(t *testing.T) {
	q := New(10, 2)
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := q.Submit(context.Background(), domain.ExtractionJob{DocumentID: id}); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu       sync.Mutex
		seen     []string
		running  atomic.Int32
		peak     atomic.Int32
		finished sync.WaitGroup
	)
	finished.Add(4)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(_ context.Context, job domain.ExtractionJob) error {
			defer finished.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			mu.Lock()
			seen = append(seen, job.DocumentID)
			mu.Unlock()
			if job.DocumentID == "b" {
				return errors.New("pipeline failed")
			}
			return nil
		})
	}()

	finished.Wait()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 jobs handled, got %v", seen)
	}
	if peak.Load() > 2 {
		t.Fatalf("concurrency limit exceeded: %d", peak.Load())
	}
}
