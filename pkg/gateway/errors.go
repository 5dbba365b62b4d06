package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the boundary. Message carries whatever
// human-readable detail the body contained.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the failure is worth retrying in place. Only
// server-side errors qualify; 4xx responses are permanent.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// SubmissionError is a boundary rejection of the initial submission: malformed
// job graph or no capacity. It is fatal and never retried.
type SubmissionError struct {
	StatusCode int
	Reason     string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected (HTTP %d): %s", e.StatusCode, e.Reason)
}

// IsNotFound reports whether err is a boundary 404. Callers must not assume a
// 404 is terminal: for freshly issued tickets it may be propagation delay.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsTemporary reports whether err is safe to retry against the same identifier:
// a connection-level failure or a 5xx response. Caller-side cancellation and
// boundary rejections are permanent.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Anything else never reached the boundary (dial failure, reset, EOF).
	return true
}
