package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported to callers.
type ErrorKind string

// Error kinds.
const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindAuthorization ErrorKind = "authorization"
	KindInvalidState  ErrorKind = "invalid_state"
	KindConflict      ErrorKind = "conflict"
)

// Error is a recoverable failure with a kind and a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches the kind sentinels below, so errors.Is(err, ErrConflict) holds
// for any conflict error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrInvalidState  = &Error{Kind: KindInvalidState}
	ErrConflict      = &Error{Kind: KindConflict}
)

func newError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf returns a validation error.
func Validationf(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

// NotFoundf returns a not-found error.
func NotFoundf(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

// Authorizationf returns an authorization error.
func Authorizationf(format string, args ...any) error {
	return newError(KindAuthorization, format, args...)
}

// InvalidStatef returns an invalid-state error.
func InvalidStatef(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

// Conflictf returns a conflict error.
func Conflictf(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
