package dispatch

import (
	"errors"
	"fmt"
)

// Kind classifies dispatch errors.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindPermission    Kind = "permission"
	KindStateConflict Kind = "state_conflict"
	KindPersistence   Kind = "persistence"
	KindDelivery      Kind = "delivery"
)

// Error is the error type returned by the coordinator.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels of the same kind, so errors.Is(err, ErrNotFound)
// works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrPermission    = &Error{Kind: KindPermission}
	ErrStateConflict = &Error{Kind: KindStateConflict}
	ErrPersistence   = &Error{Kind: KindPersistence}
	ErrDelivery      = &Error{Kind: KindDelivery}
)

// KindOf returns the kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationError(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func notFoundError(op, what, id string, cause error) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("%s %s not found", what, id), Err: cause}
}

func permissionError(op, format string, args ...any) error {
	return &Error{Kind: KindPermission, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func persistenceError(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Msg: "store unavailable", Err: err}
}

func deliveryError(op string, err error) error {
	return &Error{Kind: KindDelivery, Op: op, Msg: "delivery failed", Err: err}
}
