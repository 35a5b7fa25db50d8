package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestNewStatusErrorReadsBodyAndHint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resp := &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Retry-After": []string{"3"}},
		Body:       io.NopCloser(strings.NewReader("  ocr engine warming up \n")),
	}
	err := NewStatusError("ocr service", resp, now)
	if err.Error() != "ocr service status 503: ocr engine warming up" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err.RetryAfterHint() != 3*time.Second {
		t.Fatalf("expected 3s hint, got %s", err.RetryAfterHint())
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]time.Duration{
		"":                              0,
		"5":                             5 * time.Second,
		"-1":                            0,
		"soon":                          0,
		"Sun, 01 Mar 2026 12:00:10 GMT": 10 * time.Second,
		"Sun, 01 Mar 2026 11:59:00 GMT": 0,
	}
	for raw, want := range cases {
		if got := parseRetryAfter(raw, now); got != want {
			t.Fatalf("parseRetryAfter(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestHTTPClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"503", &StatusError{StatusCode: 503}, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"429", fmt.Errorf("send: %w", &StatusError{StatusCode: 429}), ErrorClassification{Retryable: true, RecordFailure: true}},
		{"401", &StatusError{StatusCode: 401}, ErrorClassification{RecordFailure: true}},
		{"422", &StatusError{StatusCode: 422}, ErrorClassification{}},
		{"canceled", context.Canceled, ErrorClassification{}},
		{"exhausted", fmt.Errorf("%w: x", ErrRetriesExhausted), ErrorClassification{RecordFailure: true}},
		{"open breaker", gobreaker.ErrOpenState, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"net timeout", timeoutErr{}, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"decode", errors.New("decode response: unexpected EOF"), ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPClassifier(tc.err); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestRunWrapsRetryableFailuresAsTemporary(t *testing.T) {
	unavailable := &StatusError{Service: "tms", StatusCode: 503}
	err := Run(context.Background(), nil, "tms send", func(context.Context) error { return unavailable }, HTTPClassifier)
	if !errors.Is(err, domain.ErrTemporary) || !errors.Is(err, unavailable) {
		t.Fatalf("expected temporary wrap of the status error, got %v", err)
	}

	rejected := &StatusError{Service: "tms", StatusCode: 400}
	err = Run(context.Background(), nil, "tms send", func(context.Context) error { return rejected }, HTTPClassifier)
	if errors.Is(err, domain.ErrTemporary) || !errors.Is(err, rejected) {
		t.Fatalf("expected the rejection as is, got %v", err)
	}

	if err := Run(context.Background(), nil, "op", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestRunThroughExecutorDoesNotDoubleWrap(t *testing.T) {
	exec := NewExecutor(Config{RetryMaxAttempts: 2, RetryInitialBackoff: time.Millisecond, RetryMaxBackoff: time.Millisecond})
	err := Run(context.Background(), exec, "ocr.extract", func(context.Context) error {
		return &StatusError{Service: "ocr service", StatusCode: 502}
	}, HTTPClassifier)
	if !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected exhausted temporary error, got %v", err)
	}
	if strings.Count(err.Error(), domain.ErrTemporary.Error()) != 1 {
		t.Fatalf("expected a single temporary marker, got %q", err.Error())
	}
}
