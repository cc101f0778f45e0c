package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide whether to degrade,
// record or surface them.
type ErrorKind string

const (
	// KindUpstreamUnavailable covers embedding, generation and invocation
	// failures (including timeouts). Always degraded to a fallback.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	// KindMalformedGeneration marks structured output that failed to parse.
	KindMalformedGeneration ErrorKind = "malformed_generation"
	// KindCircularDependency marks a cycle in the sub-question graph.
	KindCircularDependency ErrorKind = "circular_dependency"
	// KindUnknownDependency marks a dependency id that references no sub-question.
	KindUnknownDependency ErrorKind = "unknown_dependency"
	// KindPartialStepFailure is recorded on a failed execution step.
	KindPartialStepFailure ErrorKind = "partial_step_failure"
	// KindTimeout marks a call that exceeded its budget.
	KindTimeout ErrorKind = "timeout"
	// KindDuplicateName marks a registry name collision.
	KindDuplicateName ErrorKind = "duplicate_name"
	// KindEmptyRegistry marks an operation against a registry with no tools.
	KindEmptyRegistry ErrorKind = "empty_registry"
	// KindInvalidInput marks caller supplied input that cannot be processed.
	KindInvalidInput ErrorKind = "invalid_input"
)

// Sentinel errors usable with errors.Is.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedGeneration = errors.New("malformed generation")
	ErrCircularDependency  = errors.New("circular dependency detected")
	ErrUnknownDependency   = errors.New("unknown dependency")
	ErrPartialStepFailure  = errors.New("step failed")
	ErrTimeout             = errors.New("timeout")
	ErrDuplicateName       = errors.New("duplicate tool name")
	ErrEmptyRegistry       = errors.New("capability registry is empty")
	ErrInvalidInput        = errors.New("invalid input")
	ErrToolNotFound        = errors.New("tool not found")
)

var kindSentinels = map[ErrorKind]error{
	KindUpstreamUnavailable: ErrUpstreamUnavailable,
	KindMalformedGeneration: ErrMalformedGeneration,
	KindCircularDependency:  ErrCircularDependency,
	KindUnknownDependency:   ErrUnknownDependency,
	KindPartialStepFailure:  ErrPartialStepFailure,
	KindTimeout:             ErrTimeout,
	KindDuplicateName:       ErrDuplicateName,
	KindEmptyRegistry:       ErrEmptyRegistry,
	KindInvalidInput:        ErrInvalidInput,
}

// Error is the structured error type used across toolmesh.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "semantic.embed"
	ID   string // offending identifier (tool name, sub-question id), optional
	Err  error  // underlying cause, optional
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (%s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel belonging to e.Kind. A timeout
// also matches ErrUpstreamUnavailable.
func (e *Error) Is(target error) bool {
	if s, ok := kindSentinels[e.Kind]; ok && s == target {
		return true
	}
	return e.Kind == KindTimeout && target == ErrUpstreamUnavailable
}

// NewError constructs an *Error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Upstream wraps err as an upstream failure. Deadline errors are classified
// as KindTimeout, which still matches ErrUpstreamUnavailable.
func Upstream(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindUpstreamUnavailable, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// IsUpstream reports whether err is a recoverable upstream failure.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
