// Package nighterrors provides structured error types for nightwatch.
package nighterrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyOpen      = errors.New("session already open")
	ErrAlreadyClosed    = errors.New("session already closed")
	ErrSessionClosed    = errors.New("session no longer accepting messages")
	ErrInvalidWindow    = errors.New("invalid quiet-hours window")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// APIError represents an error from a remote messaging API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient. Nightwatch never
// retries remote sends or deletes itself; this exists for callers that warn
// differently on transient failures.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
