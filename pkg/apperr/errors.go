package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an expected, caller-recoverable outcome. Infrastructure
// failures (network, serialization) are never wrapped in these codes and
// propagate as plain errors.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeForbidden         Code = "FORBIDDEN"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeConflict          Code = "CONFLICT"
)

// ErrNotFound is returned when an entity id cannot be resolved.
var ErrNotFound = &Error{Code: CodeNotFound, Message: "resource not found"}

// ErrConflict is returned when a conditional write loses against a
// concurrent update (optimistic precondition failure).
var ErrConflict = &Error{Code: CodeConflict, Message: "concurrent modification detected"}

// Error is a tagged outcome carrying machine-checkable context. The HTTP
// layer maps codes to status codes; the message is never localized here.
type Error struct {
	Code    Code
	Message string

	// Transition context, set for CodeInvalidTransition.
	From string
	To   string

	// Field names that failed validation, set for CodeValidation.
	Fields []string
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeInvalidTransition:
		return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
	case CodeValidation:
		return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
	default:
		return e.Message
	}
}

// Is matches on code so sentinel comparisons like errors.Is(err, ErrConflict)
// work regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// InvalidTransition reports a state-graph violation, keeping both labels
// for UI messaging.
func InvalidTransition(from, to string) *Error {
	return &Error{Code: CodeInvalidTransition, From: from, To: to}
}

// Forbidden reports an authorization denial with a machine-readable reason.
func Forbidden(reason string) *Error {
	return &Error{Code: CodeForbidden, Message: reason}
}

// Validation reports a payload-level failure naming the offending fields.
func Validation(fields ...string) *Error {
	return &Error{Code: CodeValidation, Fields: fields}
}

// NotFound reports an unresolvable entity id.
func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: resource + " not found"}
}

// CodeOf extracts the outcome code from an error chain, or "" when the
// error is not a tagged outcome.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an outcome code to its HTTP status. Untagged errors map
// to 500; they are infrastructure failures, not expected outcomes.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return 404
	case CodeInvalidTransition:
		return 400
	case CodeForbidden:
		return 403
	case CodeValidation:
		return 422
	case CodeConflict:
		return 409
	default:
		return 500
	}
}
