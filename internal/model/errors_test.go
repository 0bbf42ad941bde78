package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient error", &TransientError{Reason: "oracle timeout"}, true},
		{"structural error", &StructuralError{Reason: "invalid response"}, false},
		{"structural wrapping transient", &StructuralError{Reason: "bad shape", Err: &TransientError{Reason: "x"}}, false},
		{"wrapped transient", fmt.Errorf("analyze: %w", &TransientError{Reason: "timeout"}), true},
		{"http 429", &HTTPError{StatusCode: 429}, true},
		{"http 503", &HTTPError{StatusCode: 503}, true},
		{"http 404", &HTTPError{StatusCode: 404}, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"plain network error", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("fetch: %w", &HTTPError{StatusCode: 500, Err: inner})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatal("errors.As failed to find HTTPError")
	}
	if httpErr.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", httpErr.StatusCode)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is failed to find wrapped error")
	}
}
