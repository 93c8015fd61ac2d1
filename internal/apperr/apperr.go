// Package apperr defines the engine's error taxonomy. Every operation
// classifies its failures with a machine-readable Kind so transport layers
// can map them to status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error class.
type Kind int

const (
	// KindInternal is an unclassified failure (store I/O, encoding).
	KindInternal Kind = iota
	// KindNotFound covers missing sessions/items/participants/questions and
	// sessions that are not live when liveness is required.
	KindNotFound
	// KindForbidden covers callers lacking host rights or participants
	// acting outside their own session.
	KindForbidden
	// KindInvalidArgument covers bad indexes, bad options, malformed reply
	// targets and missing required fields.
	KindInvalidArgument
	// KindPollInactive covers expired or deactivated polls rejecting votes.
	KindPollInactive
	// KindConflict covers uniqueness collisions, e.g. PIN generation.
	KindConflict
)

// Error is the domain error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a domain error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound creates a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Forbidden creates a KindForbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// InvalidArgument creates a KindInvalidArgument error.
func InvalidArgument(message string) *Error { return New(KindInvalidArgument, message) }

// PollInactive creates a KindPollInactive error.
func PollInactive(message string) *Error { return New(KindPollInactive, message) }

// Conflict creates a KindConflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// Internal wraps an unclassified failure.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
