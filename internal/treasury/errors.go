package treasury

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is a stable, machine-readable error category.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindConflict          ErrorKind = "CONFLICT"
	KindAuthorization     ErrorKind = "AUTHORIZATION_ERROR"
	KindInvalidState      ErrorKind = "INVALID_STATE"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindInternal          ErrorKind = "INTERNAL_ERROR"
)

// Error is returned by the service for every rejected operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " "))
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can compare against the
// sentinels below regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Kind == e.Kind && t.Message == ""
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnauthorized      = &Error{Kind: KindAuthorization}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal when err is not a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// Conflict wraps a storage unique-violation so it surfaces as ErrConflict.
func Conflict(err error) error {
	return &Error{Kind: KindConflict, Message: "duplicate record", Err: err}
}

// NotFound reports a missing record of the named kind.
func NotFound(what string) error {
	return newError(KindNotFound, "%s not found", what)
}
