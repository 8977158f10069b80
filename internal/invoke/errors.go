package invoke

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy for remote
// procedure invocations. The lifecycle engine treats every category
// identically for state purposes (no partial transition commits); the
// category exists for user-facing messaging and diagnostics.
type ErrorCategory string

const (
	// ErrorTimeout indicates the procedure did not respond before the
	// deadline. The remote effect is unknown: the call is abandoned locally,
	// not cancelled remotely.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorNetworkUnavailable indicates the procedure endpoint could not be
	// reached at all.
	ErrorNetworkUnavailable ErrorCategory = "network_unavailable"

	// ErrorServiceUnavailable indicates the procedure endpoint responded with
	// a server-side failure (5xx equivalent).
	ErrorServiceUnavailable ErrorCategory = "service_unavailable"

	// ErrorUnauthorized indicates credential or permission issues.
	ErrorUnauthorized ErrorCategory = "unauthorized"

	// ErrorGeneric indicates any other failure, with the message preserved.
	ErrorGeneric ErrorCategory = "generic"
)

// Error wraps invocation failures with normalized categorization.
type Error struct {
	Category   ErrorCategory
	Procedure  string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("procedure %s [%s]: %s: %v", e.Procedure, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("procedure %s [%s]: %s", e.Procedure, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a normalized invocation error. Timeouts are marked
// non-retryable: the caller must re-query entity state first, because the
// remote side may still have applied the effect.
func NewError(category ErrorCategory, procedure, message string, underlying error) *Error {
	retryable := category == ErrorNetworkUnavailable ||
		category == ErrorServiceUnavailable

	return &Error{
		Category:   category,
		Procedure:  procedure,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// CategoryOf extracts the category from an invocation error, or ErrorGeneric
// when err carries none.
func CategoryOf(err error) ErrorCategory {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ErrorGeneric
}

// IsTimeout reports whether err is a timed-out invocation.
func IsTimeout(err error) bool {
	return CategoryOf(err) == ErrorTimeout
}

// IsRetryable checks if an error is worth retrying without re-reading state.
func IsRetryable(err error) bool {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}
