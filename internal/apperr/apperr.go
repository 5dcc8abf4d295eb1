// Package apperr defines the error kinds reported by the maintenance engine.
// Every error returned across a package boundary carries a Kind so that
// callers (HTTP handlers, jobs) can branch on it without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindInvalidState      Kind = "INVALID_STATE"
	KindNotFound          Kind = "NOT_FOUND"
	KindBatchFailure      Kind = "BATCH_FAILURE"
	KindForbidden         Kind = "FORBIDDEN"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// Error is the structured error type.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "lifecycle.promote"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind. A sentinel is an *Error with only Kind set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrBatchFailure      = &Error{Kind: KindBatchFailure}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports a malformed or missing field, or an unknown reference.
func Validation(op, format string, args ...any) error {
	return newf(KindValidation, op, format, args...)
}

// InvalidTransition reports an illegal status change.
func InvalidTransition(op, format string, args ...any) error {
	return newf(KindInvalidTransition, op, format, args...)
}

// InvalidState reports an operation not permitted in the current status.
func InvalidState(op, format string, args ...any) error {
	return newf(KindInvalidState, op, format, args...)
}

// NotFound reports an unknown task or property id.
func NotFound(op, format string, args ...any) error {
	return newf(KindNotFound, op, format, args...)
}

// Forbidden reports a caller whose role does not permit the operation.
func Forbidden(op, format string, args ...any) error {
	return newf(KindForbidden, op, format, args...)
}

// Batch wraps the cause of a failed all-or-nothing batch. The cause stays
// reachable through errors.Is / errors.As.
func Batch(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindBatchFailure, Op: op, Msg: "batch aborted, no changes applied", Err: cause}
}
