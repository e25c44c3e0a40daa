package cloud

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors. They are the only errors returned synchronously to the
// caller; every other failure is delivered through the sinks.
var (
	ErrEmptyToken       = errors.New("token is empty")
	ErrEmptyFolder      = errors.New("folder is empty")
	ErrEmptyFileName    = errors.New("file name is empty")
	ErrEmptyPayload     = errors.New("payload is empty")
	ErrPayloadTooLarge  = errors.New("payload exceeds size limit")
	ErrInvalidDomain    = errors.New("invalid control endpoint domain")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)

// Terminal failure causes
var (
	// ErrRetriesExhausted wraps the first transport error once every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrResolveFailed is reported when no usable upload URL was obtained.
	ErrResolveFailed = errors.New("failed to resolve transfer URL")
	// ErrFileNameMismatch is reported when the resolution answer names another file.
	ErrFileNameMismatch = errors.New("resolved location does not match the requested file")
)

// ValidationError describes a request rejected before any network call.
type ValidationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Detail)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(field string, err error, detail string) *ValidationError {
	return &ValidationError{Field: field, Err: err, Detail: detail}
}

// IsValidationError reports whether err was raised by request validation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StatusError is a control request that completed with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// IsNetworkError checks if an error looks like a transport failure.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	networkIndicators := []string{
		"connection",    // connection refused, connection reset, etc.
		"timeout",       // i/o timeout, dial timeout, etc.
		"network",       // network unreachable, network error, etc.
		"eof",           // unexpected EOF
		"broken pipe",   // broken pipe
		"tls handshake", // TLS handshake errors
		"no such host",  // DNS
	}

	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
