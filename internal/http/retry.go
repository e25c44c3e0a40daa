package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// ErrorType represents different classes of errors for retry logging
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (403, expired URL)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeCancelled indicates the caller cancelled the transfer
	ErrorTypeCancelled
	// ErrorTypeFatal indicates anything else
	ErrorTypeFatal
)

// ClassifyError labels an error for log lines and terminal reports.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	// Pre-signed URLs that expired or were tampered with
	if strings.Contains(errStr, "expired") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "signature") ||
		strings.Contains(errStr, "invalid sas") {
		return ErrorTypeCredential
	}

	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	return ErrorTypeFatal
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeCancelled:
		return "cancelled"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RetryPolicy is a bounded, fixed-delay retry policy.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int
	// Delay is the constant wait between two attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns 5 attempts separated by 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: constants.MaxAttempts,
		Delay:       constants.RetryDelay,
	}
}

// FixedBackoff is a retryablehttp.Backoff that always waits min.
func FixedBackoff(min, max time.Duration, attemptNum int, resp *nethttp.Response) time.Duration {
	return min
}

// AttemptTracker is the CheckRetry hook of one logical request.
// Only transport errors are retried; any completed response ends the loop
// whatever its status. The first transport error is kept so the terminal
// report names the root cause rather than a later secondary failure.
type AttemptTracker struct {
	mu       sync.Mutex
	attempts int
	failures int
	firstErr error
	lastErr  error

	label  string
	logger *logging.Logger
}

// NewAttemptTracker creates a tracker. label names the request in log lines.
func NewAttemptTracker(label string, logger *logging.Logger) *AttemptTracker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AttemptTracker{label: label, logger: logger}
}

// CheckRetry implements retryablehttp.CheckRetry.
func (t *AttemptTracker) CheckRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	t.mu.Lock()
	t.attempts++
	attempt := t.attempts
	if err != nil {
		t.failures++
		if t.firstErr == nil {
			t.firstErr = err
		}
		t.lastErr = err
	}
	t.mu.Unlock()

	// Cancellation stops the loop and is never counted as a transient failure.
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}

	errType := ErrorTypeName(ClassifyError(err))
	if attempt == 1 {
		t.logger.Warn().
			Str("request", t.label).
			Int("attempt", attempt).
			Str("error_type", errType).
			Err(err).
			Msg("Request failed, retrying")
	} else {
		t.logger.Debug().
			Str("request", t.label).
			Int("attempt", attempt).
			Str("error_type", errType).
			Err(err).
			Msg("Request failed again")
	}
	return true, nil
}

// Attempts returns how many attempts completed so far.
func (t *AttemptTracker) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// FirstError returns the first transport error seen, or nil.
func (t *AttemptTracker) FirstError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstErr
}

// LastError returns the most recent transport error seen, or nil.
func (t *AttemptTracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// NewRetryClient wraps client in a retryablehttp client driven by policy
// and tracker. One retry client serves one logical request.
func NewRetryClient(client *nethttp.Client, policy RetryPolicy, tracker *AttemptTracker, logger *logging.Logger) *retryablehttp.Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = client
	rc.RetryMax = maxAttempts - 1
	rc.RetryWaitMin = policy.Delay
	rc.RetryWaitMax = policy.Delay
	rc.Backoff = FixedBackoff
	rc.CheckRetry = tracker.CheckRetry
	rc.Logger = logging.NewRetryLogger(logger)
	return rc
}
