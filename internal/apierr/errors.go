// Package apierr defines the control plane's error taxonomy: stable Kind
// strings surfaced to tool callers and API responses, distinct from the
// internal Go error chain they wrap. Kind values are the literal surface
// names of the specification's error taxonomy.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies a stable, user-facing error category. Callers match on
// Kind (via errors.As + Error.Kind) rather than parsing messages.
type Kind string

const (
	// Session layer.
	KindAdapterUnavailable  Kind = "ADAPTER_UNAVAILABLE"
	KindAdapterDead         Kind = "ADAPTER_DEAD"
	KindSessionNotFound     Kind = "SESSION_NOT_FOUND"
	KindColdStartImpossible Kind = "COLD_START_IMPOSSIBLE"

	// Orchestrator.
	KindDelegationDepthExceeded Kind = "DELEGATION_DEPTH_EXCEEDED"
	KindUnknownSpecialist       Kind = "UNKNOWN_SPECIALIST"
	KindTaskNotFound            Kind = "TASK_NOT_FOUND"
	KindSpawnFailed             Kind = "SPAWN_FAILED"

	// Tool endpoint.
	KindToolInvalidArgs    Kind = "TOOL_INVALID_ARGS"
	KindToolNotAuthorized  Kind = "TOOL_NOT_AUTHORIZED"
	KindToolExecutionFailed Kind = "TOOL_EXECUTION_FAILED"

	// External triggers.
	KindSignatureInvalid Kind = "SIGNATURE_INVALID"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindUpstreamError    Kind = "UPSTREAM_ERROR"

	// Persistence.
	KindVersionConflict  Kind = "VERSION_CONFLICT"
	KindPersistenceError Kind = "PERSISTENCE_ERROR"
)

// Error is a structured control-plane failure. It preserves message and
// causal context while still implementing the standard error interface, and
// carries a Kind so callers can branch on category without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with a fixed message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an internal cause. The
// internal cause is preserved for logs via Unwrap but is never included in
// Error() — external callers only ever see Message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface with a single-line, user-visible
// message, per the specification's "All user-visible failures yield a
// single-line error string" propagation policy.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the internal cause for errors.Is/As and structured logs. It
// is never surfaced to tool callers directly.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
