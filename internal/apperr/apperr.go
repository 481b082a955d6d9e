package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so handlers can map it to a transport response.
type Kind int

const (
	// KindValidation covers malformed or empty input. No partial writes occur.
	KindValidation Kind = iota
	// KindNotFound covers absent chats, messages and memberships.
	KindNotFound
	// KindForbidden covers membership and ownership violations. Checked
	// before any mutation.
	KindForbidden
	// KindConflict covers unique-index violations. Idempotent callers treat
	// it as success; explicit duplicate adds surface it.
	KindConflict
	// KindStore covers I/O failures against the durable store. Never retried
	// inside the core.
	KindStore
)

// Error carries a kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation builds a validation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// NotFound builds a not-found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Forbidden builds a forbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Conflict builds a conflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// Store wraps a durable-store failure.
func Store(err error) *Error { return Wrap(KindStore, "store operation failed", err) }

// KindOf extracts the kind from err, defaulting to KindStore for unclassified
// errors so callers fail safe.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStore
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
