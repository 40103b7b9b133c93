// Package apperrors defines error kinds for expected failures.
//
// The control plane treats all expected failures (transport, parse,
// authorization, unavailable, workflow) as values tagged with a kind; only
// programming bugs propagate as unwinding errors. Components wrap causes with
// a kind at the boundary and callers branch on the kind, never on error
// strings.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an expected failure.
type Kind string

const (
	// KindTransport is a network failure talking to stores, LLMs, or lambdas.
	// Retried on idempotent operations; surfaced after the retry budget.
	KindTransport Kind = "transport"

	// KindParse is a malformed CloudEvent, LLM response, or approval callback.
	// Never retried; mapped to HTTP 400 at the ingress.
	KindParse Kind = "parse"

	// KindAuthorization is an approval rejection or scope-violating request.
	// Terminal, never retried.
	KindAuthorization Kind = "authorization"

	// KindUnavailable is a failed lambda health probe. Terminal; tagged
	// cannot-fix and raises a failure ticket.
	KindUnavailable Kind = "unavailable"

	// KindWorkflow is a logic violation (missing selector result, missing
	// required labels). Terminal; recorded in the task schema.
	KindWorkflow Kind = "workflow"

	// KindObservability is a telemetry failure. Swallowed and logged once per
	// process, never propagated to the caller.
	KindObservability Kind = "observability"
)

// Sentinel errors shared across services.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrDuplicateInFlight is returned when a second event with an in-flight
	// correlation ID arrives while the first pass still owns it.
	ErrDuplicateInFlight = errors.New("correlation id already in flight")

	// ErrSelectionFailed is returned when every selector phase fails.
	ErrSelectionFailed = errors.New("selection_failed")

	// ErrWorkflowTimeout is returned when a workflow exceeds its overall budget.
	ErrWorkflowTimeout = errors.New("workflow_timeout")
)

// Error is an expected failure tagged with its kind.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "lambda.invoke"
	Err  error  // underlying cause, may be nil

	// CannotFix marks unavailable-lambda failures so the workflow skips
	// retries and raises a ticket instead.
	CannotFix bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a tagged error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Unavailable creates a cannot-fix unavailable error (failed health probe).
func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err, CannotFix: true}
}

// KindOf returns the kind of err, or "" if err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is tagged with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsCannotFix reports whether err is tagged cannot-fix (lambda unreachable).
func IsCannotFix(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.CannotFix
	}
	return false
}

// IsRetryable reports whether the workflow may retry the failed operation.
// Only transport errors on idempotent operations are retryable; cannot-fix
// failures never are.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindTransport && !e.CannotFix
}
