// Package apperr defines the error kinds returned by the club and event
// managers and maps them onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies a failure
type Kind int

const (
	Internal Kind = iota
	NotFound
	Conflict
	Forbidden
	CapacityExceeded
	InvalidTiming
	ValidationFailed
)

var kindNames = map[Kind]string{
	Internal:         "internal",
	NotFound:         "not_found",
	Conflict:         "conflict",
	Forbidden:        "forbidden",
	CapacityExceeded: "capacity_exceeded",
	InvalidTiming:    "invalid_timing",
	ValidationFailed: "validation_failed",
}

var kindStatus = map[Kind]int{
	Internal:         http.StatusInternalServerError,
	NotFound:         http.StatusNotFound,
	Conflict:         http.StatusConflict,
	Forbidden:        http.StatusForbidden,
	CapacityExceeded: http.StatusConflict,
	InvalidTiming:    http.StatusUnprocessableEntity,
	ValidationFailed: http.StatusBadRequest,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "internal"
}

// HTTPStatus returns the response status for the kind
func (k Kind) HTTPStatus() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a classified error with a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == Internal {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a sentinel error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err. The message is what clients see.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is shorthand for a ValidationFailed error
func Validation(message string) *Error {
	return New(ValidationFailed, message)
}

// KindOf reports the kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Message returns the client-facing message for err
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}

// Is reports whether err is classified with kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// JSON writes err as {"error": message} with the kind's status code
func JSON(c *gin.Context, err error) {
	kind := KindOf(err)
	c.JSON(kind.HTTPStatus(), gin.H{"error": Message(err), "kind": kind.String()})
}
