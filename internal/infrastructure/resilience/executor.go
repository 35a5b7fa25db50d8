package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// ErrRetriesExhausted marks a retryable failure that kept failing until the
// attempt budget ran out. It is always wrapped together with domain.ErrTemporary.
var ErrRetriesExhausted = errors.New("retries exhausted")

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor retries calls to one external collaborator and keeps a circuit
// breaker per operation name ("ollama.extract_fields", "tms.send", ...).
type Executor struct {
	cfg    Config
	jitter func() float64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		jitter:   rand.Float64,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute runs fn until it succeeds, fails permanently or runs out of attempts.
// The whole retry sequence counts as one call for the breaker.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return errors.New("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, op, fn, classifier)
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classifier)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classifier ErrorClassifier) error {
	steps := e.cfg.schedule()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil || !classifier(err).Retryable {
			return err
		}
		if attempt >= e.cfg.RetryMaxAttempts {
			return domain.WrapError(domain.ErrTemporary, op,
				fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, attempt, err))
		}

		wait := e.wait(steps.advance(), err)
		slog.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// wait is the jittered backoff, stretched to a server Retry-After hint up to
// RetryAfterCap.
func (e *Executor) wait(step time.Duration, err error) time.Duration {
	wait := e.delay(step)
	var hinted interface{ RetryAfterHint() time.Duration }
	if errors.As(err, &hinted) {
		if hint := min(hinted.RetryAfterHint(), e.cfg.RetryAfterCap); hint > wait {
			wait = hint
		}
	}
	return wait
}

// delay adds jitter to backoff and caps the result at RetryMaxBackoff.
func (e *Executor) delay(backoff time.Duration) time.Duration {
	wait := backoff
	if e.cfg.RetryJitter > 0 && e.jitter != nil {
		wait += time.Duration(float64(backoff) * e.cfg.RetryJitter * e.jitter())
	}
	return min(wait, e.cfg.RetryMaxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) breaker(op string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[op] = cb
	return cb
}

// BreakerState reports the breaker state for op, or "none" before its first call.
func (e *Executor) BreakerState(op string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[op]; ok {
		return cb.State().String()
	}
	return "none"
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
