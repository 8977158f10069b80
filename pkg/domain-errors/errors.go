// Package domainerrors provides coded errors shared by every service in the
// platform. A code is a stable, user-safe category label; the message is the
// human-readable explanation returned to callers. Wrapped causes are kept for
// diagnostics and never conflated with the user-facing message.
package domainerrors

import "errors"

// Code classifies a domain error. Transport layers map codes onto protocol
// status codes; services branch on them with HasCode.
type Code string

const (
	// CodeValidation: caller-supplied parameters violate a field constraint.
	CodeValidation Code = "validation_failed"
	// CodeInvalidTransition: the requested action is not legal from the
	// entity's current status.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeConflict: the entity changed concurrently; the caller must re-read
	// current state and retry the intent explicitly.
	CodeConflict Code = "conflict"
	// CodeNotFound: the referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeBadRequest: the request is malformed before any domain rule applies.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized: no resolved actor identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden: the actor is resolved but not allowed.
	CodeForbidden Code = "forbidden"
	// CodeInvariantViolation: a domain invariant would be broken; constructors
	// and models return this, services translate it for callers.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeTimeout: a remote step exceeded its deadline. The remote effect is
	// unknown; the caller must re-query entity state before retrying.
	CodeTimeout Code = "timeout"
	// CodeRemoteFailed: a remote step failed cleanly; no local state changed.
	CodeRemoteFailed Code = "remote_invocation_failed"
	// CodeAuditUnavailable: the audit trail rejected the append; the enclosing
	// operation fails because a change without a record must not happen.
	CodeAuditUnavailable Code = "audit_unavailable"
	// CodeInternal: unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error with an optional remediation hint and a
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	Hint    string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with a user-safe message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and user-safe message to an underlying cause. The
// cause stays reachable through errors.Is/As for diagnostics.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// WithHint returns a copy of err carrying a remediation hint, when err is a
// coded error; otherwise err is returned unchanged.
func WithHint(err error, hint string) error {
	var de *Error
	if errors.As(err, &de) {
		clone := *de
		clone.Hint = hint
		return &clone
	}
	return err
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HintOf extracts the remediation hint from err, if any.
func HintOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Hint
	}
	return ""
}

// Is allows comparing against sentinel targets wrapped inside coded errors.
func Is(err, target error) bool { return errors.Is(err, target) }
