package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// TransientError marks a failure worth retrying: network errors, timeouts,
// provider-unavailable. The dispatcher re-queues these up to the retry cap.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Reason, e.Err)
	}
	return "transient: " + e.Reason
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// StructuralError marks a permanent failure: malformed oracle response,
// loop-prevention violation, invalid payload shape. Never retried.
type StructuralError struct {
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("structural: %s: %v", e.Reason, e.Err)
	}
	return "structural: " + e.Reason
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IsTransient classifies an error for the dispatcher's retry decision.
// HTTP 429 and 5xx are transient; other HTTP statuses are not. Plain network
// errors are transient. A StructuralError is never transient, even when it
// wraps one.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var structErr *StructuralError
	if errors.As(err, &structErr) {
		return false
	}

	var transErr *TransientError
	if errors.As(err, &transErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Non-HTTP errors (network, DNS, etc.) — retryable.
	return true
}
