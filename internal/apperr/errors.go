// Package apperr defines the error kinds every attendance operation reports.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without inspecting messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindInsufficientBalance
	KindUnauthorized
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindUnauthorized:
		return "unauthorized"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed or missing input.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced session, leave request or user that does not exist.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// InvalidState reports an illegal state transition.
func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientBalance reports a leave debit that would drive the balance negative.
func InsufficientBalance(format string, args ...any) error {
	return &Error{Kind: KindInsufficientBalance, Msg: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a failed identity check.
func Unauthorized(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps a storage failure. A nil err returns nil.
func Persistence(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPersistence, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
