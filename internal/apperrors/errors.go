// Package apperrors defines the error kinds the HTTP layer turns into status codes.
//
// Domain code returns an *Error (or wraps one); handlers call Status to pick the response code
// without knowing which layer produced the error.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an Error.
type Kind uint8

// Error kinds. The zero Kind is never used so a bare &Error{} matches nothing.
const (
	KindNotFound Kind = iota + 1
	KindInvalidInput
	KindConflict
	KindUnprocessable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidInput:
		return "invalid input"
	case KindConflict:
		return "conflict"
	case KindUnprocessable:
		return "unprocessable"
	default:
		return "error"
	}
}

// Sentinels for errors.Is. They carry only a Kind, so any Error of that kind matches.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrUnprocessable = &Error{Kind: KindUnprocessable}
)

// Error is an application error whose message is safe to return to API clients.
type Error struct {
	Kind Kind
	// Subject is the resource or field the error is about (e.g. "article", "article_id").
	Subject string
	Message string
}

// NotFound reports a missing resource, e.g. NotFound("embedding job").
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Subject: resource}
}

// InvalidInput reports a rejected field value.
func InvalidInput(field, message string) *Error {
	return &Error{Kind: KindInvalidInput, Subject: field, Message: message}
}

// Conflict reports a state conflict, e.g. a job that is no longer processing.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Unprocessable reports a well-formed request the current data cannot satisfy.
func Unprocessable(message string) *Error {
	return &Error{Kind: KindUnprocessable, Message: message}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Subject != "" && e.Kind == KindNotFound:
		return e.Subject + " not found"
	case e.Subject != "":
		return e.Kind.String() + ": " + e.Subject
	default:
		return e.Kind.String()
	}
}

// Is matches kind sentinels (an Error with only Kind set) of the same kind. Other targets match by identity,
// which errors.Is has already checked.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.Kind == e.Kind && t.Subject == "" && t.Message == ""
}

// Status maps err to an HTTP status code: the kind's status when err wraps an *Error, else 500.
func Status(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe message of the wrapped *Error, or fallback when there is none.
func PublicMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}

	return fallback
}
