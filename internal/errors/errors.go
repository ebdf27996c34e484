package errors

import "fmt"

// ErrorCode represents a promptpack error code.
type ErrorCode string

const (
	ErrInvalidConfig   ErrorCode = "INVALID_CONFIG"   // fatal, no fallback
	ErrSelectionFailed ErrorCode = "SELECTION_FAILED" // recovered by rule-based fallback
	ErrRemoteThrottled ErrorCode = "REMOTE_THROTTLED" // rate limited, retry budget exhausted
	ErrRemoteRejected  ErrorCode = "REMOTE_REJECTED"  // auth/structural, never retried
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrInternal        ErrorCode = "INTERNAL"
)

// PackError represents a structured error with code and details.
type PackError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *PackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PackError) Unwrap() error {
	return e.Cause
}

// NewInvalidConfig creates an error for an invalid or missing configuration option.
func NewInvalidConfig(msg string) *PackError {
	return &PackError{
		Code:    ErrInvalidConfig,
		Message: msg,
	}
}

// NewSelectionFailed creates an error for a strategy that could not produce a usable ranking.
func NewSelectionFailed(strategy, reason string, cause error) *PackError {
	return &PackError{
		Code:    ErrSelectionFailed,
		Message: fmt.Sprintf("strategy %q failed: %s", strategy, reason),
		Details: map[string]any{"strategy": strategy},
		Cause:   cause,
	}
}

// NewRemoteThrottled creates an error for a remote call whose retry budget is exhausted.
func NewRemoteThrottled(operation string, attempts int) *PackError {
	return &PackError{
		Code:    ErrRemoteThrottled,
		Message: fmt.Sprintf("remote %s rate limited after %d attempts", operation, attempts),
		Details: map[string]any{"operation": operation, "attempts": attempts},
	}
}

// NewRemoteRejected creates an error for an auth or structural remote failure.
func NewRemoteRejected(operation string, status int, msg string) *PackError {
	return &PackError{
		Code:    ErrRemoteRejected,
		Message: fmt.Sprintf("remote %s rejected (status %d): %s", operation, status, msg),
		Details: map[string]any{"operation": operation, "status": status},
	}
}

// NewNotFound creates an error for a missing run or file.
func NewNotFound(identifier string) *PackError {
	return &PackError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *PackError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PackError{
		Code:    ErrInternal,
		Message: msg,
		Cause:   err,
	}
}

// Is checks if an error is a PackError with the given code.
func Is(err error, code ErrorCode) bool {
	if pErr, ok := err.(*PackError); ok {
		return pErr.Code == code
	}
	return false
}
