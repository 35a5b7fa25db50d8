package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Category names the failure class of an error from an external collaborator.
type Category string

const (
	CategoryNetwork          Category = "network_error"
	CategoryTimeout          Category = "timeout"
	CategoryRateLimit        Category = "rate_limit"
	CategoryAuthTokenExpired Category = "auth_token_expired"
	CategoryAuthentication   Category = "authentication_error"
	CategoryValidation       Category = "validation_error"
	CategoryFileFormat       Category = "file_format_error"
	CategoryCanceled         Category = "canceled"
	CategoryUnknown          Category = "unknown_error"
)

type Categorization struct {
	Category  Category
	Retryable bool
}

// Categorize sorts err into retryable and permanent classes. Typed errors are
// checked first; message heuristics cover errors from clients that only return
// strings. Anything unrecognised is treated as retryable.
func Categorize(err error) Categorization {
	if err == nil {
		return Categorization{}
	}
	msg := strings.ToLower(err.Error())

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return Categorization{Category: CategoryCanceled}
	case errors.Is(err, context.DeadlineExceeded):
		return Categorization{Category: CategoryTimeout, Retryable: true}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return Categorization{Category: CategoryTimeout, Retryable: true}
		}
		return Categorization{Category: CategoryNetwork, Retryable: true}
	case IsCircuitOpen(err), errors.Is(err, domain.ErrTemporary):
		return Categorization{Category: CategoryNetwork, Retryable: true}
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
		if strings.Contains(msg, "expired") {
			return Categorization{Category: CategoryAuthTokenExpired, Retryable: true}
		}
		return Categorization{Category: CategoryAuthentication}
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrPermanent):
		return Categorization{Category: CategoryValidation}
	}

	switch {
	case containsAny(msg, "connection", "network", "temporary", "unavailable"):
		return Categorization{Category: CategoryNetwork, Retryable: true}
	case containsAny(msg, "timeout", "timed out"):
		return Categorization{Category: CategoryTimeout, Retryable: true}
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return Categorization{Category: CategoryRateLimit, Retryable: true}
	case containsAny(msg, "unauthorized", "forbidden", "401", "403"):
		if containsAny(msg, "expired", "token") {
			return Categorization{Category: CategoryAuthTokenExpired, Retryable: true}
		}
		return Categorization{Category: CategoryAuthentication}
	case containsAny(msg, "invalid", "validation"):
		return Categorization{Category: CategoryValidation}
	case containsAny(msg, "format", "unsupported"):
		return Categorization{Category: CategoryFileFormat}
	}
	return Categorization{Category: CategoryUnknown, Retryable: true}
}

// CategoryClassifier adapts Categorize for Executor. Cancellation is neither
// retried nor counted against the breaker.
func CategoryClassifier(err error) ErrorClassification {
	c := Categorize(err)
	return ErrorClassification{
		Retryable:     c.Retryable,
		RecordFailure: c.Category != CategoryCanceled,
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
