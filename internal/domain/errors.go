package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the engine.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInvalidInput       ErrorKind = "INVALID_INPUT"
	KindInvariantViolation ErrorKind = "INVARIANT_VIOLATION"
	KindConflict           ErrorKind = "CONFLICT"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrConflict           = errors.New("conflict")
)

// Error carries enough structure (field, code, message) for validation UIs and retry logic.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Kind, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap exposes the cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrInvariantViolation:
		return e.Kind == KindInvariantViolation
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

// NotFound builds a NotFound error.
func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput builds an InvalidInput error bound to a field.
func InvalidInput(field, code, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvariantViolation builds an InvariantViolation error.
func InvariantViolation(code, format string, args ...any) *Error {
	return &Error{Kind: KindInvariantViolation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a Conflict error.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// KindOf returns the kind of a domain error anywhere in the chain, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
