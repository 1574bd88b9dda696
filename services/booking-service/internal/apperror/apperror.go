// Package apperror is the error taxonomy shared by the booking core and its
// HTTP surface.
package apperror

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindSlotConflict        Kind = "slot_conflict"
	KindNotFound            Kind = "not_found"
	KindTooLate             Kind = "too_late"
	KindUnauthorized        Kind = "unauthorized"
	KindInfrastructureFault Kind = "internal"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrSlotConflict        = &Error{Kind: KindSlotConflict, Message: "slot already booked"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrTooLate             = &Error{Kind: KindTooLate, Message: "too late to cancel"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInfrastructureFault = &Error{Kind: KindInfrastructureFault, Message: "internal error"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidInput(message string) *Error { return New(KindInvalidInput, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

// Infrastructure wraps a storage or dependency failure.
func Infrastructure(message string, err error) *Error {
	return Wrap(KindInfrastructureFault, message, err)
}

// KindOf returns the kind of err; unknown errors are infrastructure faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructureFault
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindSlotConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTooLate:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the status, code and message safe to show a client.
// Infrastructure faults never expose their cause.
func Public(err error) (status int, code, message string) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInfrastructureFault {
		return http.StatusInternalServerError, string(KindInfrastructureFault), "internal error"
	}
	return HTTPStatus(e.Kind), string(e.Kind), e.Message
}
