package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Failure reasons reported by ClassifyError.
const (
	ReasonTimeout         = "timeout"
	ReasonUnavailable     = "unavailable"
	ReasonRateLimited     = "rate_limited"
	ReasonStatus          = "status"
	ReasonInvalidResponse = "invalid_response"
	ReasonUnconfigured    = "unconfigured"
)

var (
	// ErrUnconfigured marks a provider that lacks the settings it needs.
	ErrUnconfigured = errors.New("provider not configured")
	// ErrInvalidResponse marks a reply that could not be interpreted.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// StatusError is a non-2xx reply from a remote provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the status is one a later attempt may clear.
func (e *StatusError) Retryable() bool {
	return IsRetryableHTTPStatus(e.StatusCode)
}

// ClassifyError maps a provider failure to a short reason label.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrUnconfigured):
		return ReasonUnconfigured
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == 429 {
			return ReasonRateLimited
		}
		return ReasonStatus
	case errors.Is(err, ErrInvalidResponse):
		return ReasonInvalidResponse
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	default:
		return ReasonUnavailable
	}
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
