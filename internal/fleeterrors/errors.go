// Package fleeterrors is the typed error taxonomy the core distinguishes
// by behavior: transient transport failures and malformed messages are
// logged and swallowed inside the core, while NotFound and Conflict are
// the only conditions that propagate to a caller.
package fleeterrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error by the caller-visible behavior it demands.
type Kind string

const (
	KindNotFound Kind = "not_found"
	KindConflict Kind = "conflict"
	KindInvalid  Kind = "invalid"
)

// Sentinels for errors.Is comparisons against a Kind.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
)

// Error is a structured error carrying the operation that failed, its
// Kind, and optionally a wrapped cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// New constructs an *Error. Err may be nil.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NotFound constructs a KindNotFound error for op.
func NotFound(op string, err error) *Error { return New(op, KindNotFound, err) }

// Conflict constructs a KindConflict error for op.
func Conflict(op string, err error) *Error { return New(op, KindConflict, err) }

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, fleeterrors.ErrNotFound) succeed whenever e's Kind
// matches the target sentinel, regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrInvalid:
		return e.Kind == KindInvalid
	default:
		return false
	}
}
