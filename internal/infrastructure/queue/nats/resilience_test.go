package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "no servers", err: fmt.Errorf("publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "timeout", err: nats.ErrTimeout, retryable: true, record: true},
		{name: "reconnect buffer", err: nats.ErrReconnectBufExceeded, retryable: true, record: true},
		{name: "canceled", err: context.Canceled},
		{name: "exhausted", err: fmt.Errorf("%w: %w", resilience.ErrRetriesExhausted, nats.ErrTimeout), record: true},
		{name: "bad subject", err: nats.ErrBadSubject, record: true},
		{name: "max payload", err: nats.ErrMaxPayload, record: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNATSError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("expected retryable=%v record=%v, got %+v", tc.retryable, tc.record, got)
			}
		})
	}
}

func TestPublishFailuresSurfaceAsTemporaryOnlyWhenTransient(t *testing.T) {
	run := func(cause error) error {
		return resilience.Run(context.Background(), nil, "nats.publish", func(context.Context) error {
			return fmt.Errorf("nats publish: %w", cause)
		}, classifyNATSError)
	}
	if err := run(nats.ErrConnectionClosed); !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary wrap, got %v", err)
	}
	if err := run(nats.ErrBadSubject); errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("bad subject must stay permanent, got %v", err)
	}
}
