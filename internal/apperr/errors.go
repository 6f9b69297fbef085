// Package apperr defines the error taxonomy shared by the view, storage and
// schema packages. Callers branch on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for control flow and exit-code mapping.
type Kind int

const (
	KindUnknown    Kind = iota
	KindValidation      // Bad name, id or path; never retried
	KindNotFound        // View or project absent; never retried
	KindConflict        // Duplicate view name or data table
	KindStorage         // Open/query/DDL failure; wraps the driver cause
	KindPartial         // Secondary step failed, primary step succeeded
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Error is the tagged error carried across package boundaries.
type Error struct {
	Kind      Kind
	Op        string // Operation that failed, e.g. "view.create"
	Message   string
	Err       error // Underlying cause, may be nil
	Transient bool  // Storage faults the caller may retry (busy/locked)
}

// Sentinel values for errors.Is comparisons. They match any *Error of the same kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrStorage    = &Error{Kind: KindStorage}
	ErrPartial    = &Error{Kind: KindPartial}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// Validation returns a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error.
func Conflict(op, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a driver or filesystem failure.
func Storage(op string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorage, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// Partial wraps a failure of a secondary step that did not block the operation.
func Partial(op string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindPartial, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound returns true if err indicates a missing view or project.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict returns true if err is a uniqueness conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsStorage returns true if err is a storage failure.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }

// IsTransient returns true if err is a storage failure the caller may retry.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindStorage && e.Transient
	}
	return false
}
