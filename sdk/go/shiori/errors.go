// Package shiori provides a Go client for the Shiori query API.
package shiori

import (
	"errors"
	"fmt"
)

// Error represents an error from the Shiori API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("shiori: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsTimeout returns true if the error is a 504 (the pipeline's overall or
// stage deadline expired server-side).
func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 504
	}
	return false
}

// IsBackendUnavailable returns true if the error is a 502 (a retrieval,
// reranker, or LLM backend failed).
func IsBackendUnavailable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 502
	}
	return false
}
