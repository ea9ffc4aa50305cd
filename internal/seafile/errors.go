// Package seafile provides an HTTP client for the Seafile Web API v2
// with automatic retry, backoff, and error classification.
package seafile

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, seafile.ErrNotFound) to check.
var (
	ErrBadRequest       = errors.New("seafile: bad request")
	ErrUnauthorized     = errors.New("seafile: unauthorized")
	ErrPermissionDenied = errors.New("seafile: permission denied")
	ErrNotFound         = errors.New("seafile: not found")
	ErrConflict         = errors.New("seafile: conflict")
	ErrThrottled        = errors.New("seafile: throttled")
	ErrQuotaExceeded    = errors.New("seafile: storage quota exceeded")
	ErrServerError      = errors.New("seafile: server error")

	// ErrInvalidResponse indicates a 2xx response whose body could not be
	// decoded as the expected shape.
	ErrInvalidResponse = errors.New("seafile: invalid response")

	// ErrIncorrectPassword is returned by SetLibraryPassword when the server
	// rejects the password for an encrypted library.
	ErrIncorrectPassword = errors.New("seafile: incorrect library password")
)

// Seafile signals an exhausted storage quota with a nonstandard 443 status
// on upload.
const statusQuotaExceeded = 443

// APIError wraps a sentinel error with the HTTP status code and the API
// error message body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("seafile: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	case statusQuotaExceeded:
		return ErrQuotaExceeded
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
