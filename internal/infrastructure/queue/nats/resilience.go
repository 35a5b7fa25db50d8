package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

// Connection-level failures that a reconnect can clear. Anything else, such
// as a bad subject or an oversized payload, fails the same way on every try.
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrReconnectBufExceeded,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if c, ok := resilience.ControlClassification(err); ok {
		return c
	}
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
