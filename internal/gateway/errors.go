package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a gateway failure for the orchestrator's retry decision.
type Kind string

const (
	KindValidation    Kind = "Validation"
	KindRateLimited   Kind = "RateLimited"
	KindNetwork       Kind = "Network"
	KindServerError   Kind = "ServerError"
	KindRenderError   Kind = "RenderError"
	KindProviderError Kind = "ProviderError"
)

// Error is the typed failure every gateway returns. RetryAfter carries the
// upstream's Retry-After hint when one was present (rate limiting).
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the orchestrator may reissue the failed step.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindNetwork, KindServerError:
		return true
	}
	return false
}

// Errf builds a gateway error of the given kind.
func Errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a typed gateway error; unknown errors (context timeouts,
// transport failures surfaced raw) are treated as Network failures so the
// orchestrator retries them.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: KindNetwork, Message: err.Error()}
}
