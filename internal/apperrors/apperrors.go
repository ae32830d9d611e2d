// Package apperrors defines the closed set of error kinds returned by the
// progression, event and market engines.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindAlreadyCompleted  Kind = "ALREADY_COMPLETED"
	KindConflict          Kind = "CONFLICT"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
	KindInternal          Kind = "INTERNAL"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAlreadyCompleted  = &Error{Kind: KindAlreadyCompleted}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrInternal          = &Error{Kind: KindInternal}
)

// Error carries a kind plus enough context to log without a stack trace.
type Error struct {
	Kind     Kind
	Op       string
	PlayerID uint
	EntityID string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.PlayerID != 0 || e.EntityID != "" {
		fmt.Fprintf(&b, " (player=%d, entity=%s)", e.PlayerID, e.EntityID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same kind. Sentinels
// carry only a kind, so errors.Is(err, ErrConflict) matches any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds an error of the given kind.
func E(kind Kind, op string, playerID uint, entityID string, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		PlayerID: playerID,
		EntityID: entityID,
		Message:  fmt.Sprintf(format, args...),
	}
}

func NotFound(op string, playerID uint, entityID string, format string, args ...any) *Error {
	return E(KindNotFound, op, playerID, entityID, format, args...)
}

func AlreadyCompleted(op string, playerID uint, entityID string, format string, args ...any) *Error {
	return E(KindAlreadyCompleted, op, playerID, entityID, format, args...)
}

func Conflict(op string, playerID uint, entityID string, format string, args ...any) *Error {
	return E(KindConflict, op, playerID, entityID, format, args...)
}

func InsufficientFunds(op string, playerID uint, entityID string, format string, args ...any) *Error {
	return E(KindInsufficientFunds, op, playerID, entityID, format, args...)
}

func InvalidArgument(op string, playerID uint, entityID string, format string, args ...any) *Error {
	return E(KindInvalidArgument, op, playerID, entityID, format, args...)
}

// Internal wraps an unexpected failure, typically from persistence.
func Internal(op string, playerID uint, entityID string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, PlayerID: playerID, EntityID: entityID, Err: err}
}

// Wrap returns err unchanged when it already carries a kind, otherwise wraps
// it as Internal with the given context.
func Wrap(op string, playerID uint, entityID string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Internal(op, playerID, entityID, err)
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
