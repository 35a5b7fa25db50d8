package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const maxErrorBody = 2048

// StatusError is a non-2xx answer from an HTTP collaborator (Ollama, the OCR
// service, the TMS). RetryAfter is zero when the server sent no hint.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

// NewStatusError drains at most 2 KiB of the body for the message.
func NewStatusError(service string, resp *http.Response, now time.Time) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now),
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s status %d: %s", e.Service, e.StatusCode, e.Body)
}

// RetryAfterHint lets Executor wait as long as the server asked.
func (e *StatusError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// ClassifyStatus: 408, 429 and 5xx are worth another attempt; 401 and 403 mean
// the collaborator is misconfigured and count against the breaker; any other
// 4xx rejects this request only.
func ClassifyStatus(code int) ErrorClassification {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrorClassification{RecordFailure: true}
	default:
		return ErrorClassification{}
	}
}

// ControlClassification settles the errors every collaborator shares: caller
// cancellation, an exhausted retry budget and an open breaker.
func ControlClassification(err error) (ErrorClassification, bool) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{}, true
	case errors.Is(err, ErrRetriesExhausted):
		return ErrorClassification{RecordFailure: true}, true
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	return ErrorClassification{}, false
}

// HTTPClassifier is the ErrorClassifier for JSON-over-HTTP collaborators.
func HTTPClassifier(err error) ErrorClassification {
	if c, ok := ControlClassification(err); ok {
		return c
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{RecordFailure: true}
}

// Run calls fn through executor, or directly when executor is nil. Failures
// the classifier deems retryable, and open breakers, come back wrapped as
// domain.ErrTemporary under operation.
func Run(ctx context.Context, executor *Executor, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if classifier == nil {
		classifier = defaultClassifier
	}
	var err error
	if executor != nil {
		err = executor.Execute(ctx, operation, fn, classifier)
	} else {
		err = fn(ctx)
	}
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
