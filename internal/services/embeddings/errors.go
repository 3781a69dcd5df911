package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrServiceMisconfigured means retrying cannot help: bad credentials, unknown model, missing key.
var ErrServiceMisconfigured = errors.New("embedding service misconfigured")

// APIError is an error response from an embedding endpoint
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration // from the Retry-After header, 0 if absent
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("embedding API returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("embedding API returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrServiceMisconfigured) match credential and model errors
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusNotFound:
		return ErrServiceMisconfigured
	default:
		return nil
	}
}

// Retryable reports whether the request may succeed if sent again later
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// IsRetryable classifies an Embed error: rate limits, server errors, timeouts, dropped
// connections and an open circuit are worth another attempt after a backoff.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrServiceMisconfigured) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryAfter extracts a server-requested delay, 0 if none
func retryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
