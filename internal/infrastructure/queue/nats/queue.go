package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

// Queue carries extraction jobs over core NATS with a shared queue group, so
// each job reaches exactly one worker.
type Queue struct {
	conn       *nats.Conn
	subject    string
	deadLetter string
	executor   *resilience.Executor
	drainWait  time.Duration
	now        func() time.Time
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// DeadLetterSubject receives jobs whose handler failed. Empty disables it.
	DeadLetterSubject string
	// DrainTimeout bounds how long Consume waits for in-flight jobs at stop.
	DrainTimeout time.Duration
}

// DeadLetter is published for every job the worker could not complete.
type DeadLetter struct {
	ID              string               `json:"id"`
	OriginalSubject string               `json:"original_subject"`
	Job             domain.ExtractionJob `json:"job"`
	RawPayload      string               `json:"raw_payload,omitempty"`
	ErrorMessage    string               `json:"error_message"`
	ErrorCategory   string               `json:"error_category"`
	FailedAt        time.Time            `json:"failed_at"`
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	drainWait := options.DrainTimeout
	if drainWait <= 0 {
		drainWait = 30 * time.Second
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docflow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		deadLetter: options.DeadLetterSubject,
		executor:   options.ResilienceExecutor,
		drainWait:  drainWait,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Submit(ctx context.Context, job domain.ExtractionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode extraction job: %w", err)
	}
	return q.publish(ctx, q.subject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	return resilience.Run(ctx, q.executor, "nats.publish", func(context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
}

// Consume blocks until ctx is done, handing each job to handler. Handlers run
// detached from ctx, and the subscription is drained before returning, so
// in-flight and already buffered jobs finish instead of being dropped.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error {
	jobCtx := context.WithoutCancel(ctx)
	sub, err := q.conn.QueueSubscribe(q.subject, "workers", func(msg *nats.Msg) {
		q.handleMessage(jobCtx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := waitDrained(sub, q.drainWait); err != nil {
		return err
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// waitDrained blocks until Drain has delivered every buffered message and the
// subscription is gone. Drain itself returns immediately.
func waitDrained(sub *nats.Subscription, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for sub.IsValid() {
		if time.Now().After(deadline) {
			return fmt.Errorf("nats drain: jobs still running after %s", timeout)
		}
		<-ticker.C
	}
	return nil
}

func (q *Queue) handleMessage(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.ExtractionJob) error) {
	var job domain.ExtractionJob
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.DocumentID == "" {
		if err == nil {
			err = errors.New("job has no document_id")
		}
		slog.Error("extraction_job_decode_failed", "subject", msg.Subject, "error", err)
		q.sendDeadLetter(ctx, DeadLetter{RawPayload: string(msg.Data)}, err)
		return
	}
	if err := handler(ctx, job); err != nil {
		slog.Error("extraction_job_failed", "document_id", job.DocumentID, "reprocess", job.Reprocess, "error", err)
		q.sendDeadLetter(ctx, DeadLetter{Job: job}, err)
	}
}

func (q *Queue) sendDeadLetter(ctx context.Context, letter DeadLetter, cause error) {
	if q.deadLetter == "" {
		return
	}
	letter.ID = uuid.NewString()
	letter.OriginalSubject = q.subject
	letter.ErrorMessage = cause.Error()
	letter.ErrorCategory = string(resilience.Categorize(cause).Category)
	letter.FailedAt = q.now()

	payload, err := json.Marshal(letter)
	if err != nil {
		slog.Error("dead_letter_encode_failed", "error", err)
		return
	}
	if err := q.publish(ctx, q.deadLetter, payload); err != nil {
		slog.Error("dead_letter_publish_failed", "document_id", letter.Job.DocumentID, "error", err)
	}
}
