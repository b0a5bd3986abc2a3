// Package errors provides the structured error type (ConfgateError) used by
// the core engines, with kind-based classification mapped onto HTTP status
// codes by the adapter in this package.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a ConfgateError for callers and the HTTP layer.
type ErrorKind string

const (
	// Caller mistakes: bad env name, malformed YAML, missing required field.
	KindInvalidInput ErrorKind = "invalid_input"
	// Missing file, commit, or record.
	KindNotFound ErrorKind = "not_found"
	// Transition not allowed from the current state, or self-approval blocked.
	KindStateConflict ErrorKind = "state_conflict"
	// Underlying git operation failed.
	KindGitFailure ErrorKind = "git_failure"
	// Filesystem read/write failed.
	KindIOFailure ErrorKind = "io_failure"
	// Unclassified.
	KindInternal ErrorKind = "internal"
	// Missing or invalid credentials.
	KindUnauthenticated ErrorKind = "unauthenticated"
)

// ContextFields carries structured context for ConfgateError.
type ContextFields map[string]any

// ConfgateError is a structured error with a kind and optional context.
type ConfgateError struct {
	Kind    ErrorKind     `json:"kind"`
	Message string        `json:"message"`
	Cause   error         `json:"-"`
	Context ContextFields `json:"context,omitempty"`

	// httpStatus overrides the default kind mapping when non-zero.
	// state_conflict surfaces as 400 by default and 403 for blocked
	// self-approval.
	httpStatus int
}

// Error implements the error interface.
func (e *ConfgateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping.
func (e *ConfgateError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ConfgateError) WithContext(key string, value any) *ConfgateError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithHTTPStatus overrides the HTTP status the adapter renders.
func (e *ConfgateError) WithHTTPStatus(status int) *ConfgateError {
	e.httpStatus = status
	return e
}

// HTTPStatus returns the status code this error renders as.
func (e *ConfgateError) HTTPStatus() int {
	if e.httpStatus != 0 {
		return e.httpStatus
	}
	switch e.Kind {
	case KindInvalidInput, KindStateConflict:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new ConfgateError.
func New(kind ErrorKind, message string) *ConfgateError {
	return &ConfgateError{Kind: kind, Message: message}
}

// Newf creates a new ConfgateError with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *ConfgateError {
	return &ConfgateError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a ConfgateError that wraps an existing error.
func Wrap(err error, kind ErrorKind, message string) *ConfgateError {
	return &ConfgateError{Kind: kind, Message: message, Cause: err}
}

// InvalidInput creates an invalid_input error.
func InvalidInput(message string) *ConfgateError { return New(KindInvalidInput, message) }

// NotFound creates a not_found error.
func NotFound(message string) *ConfgateError { return New(KindNotFound, message) }

// StateConflict creates a state_conflict error.
func StateConflict(message string) *ConfgateError { return New(KindStateConflict, message) }

// Forbidden creates a state_conflict error that renders as 403.
func Forbidden(message string) *ConfgateError {
	return New(KindStateConflict, message).WithHTTPStatus(http.StatusForbidden)
}

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(message string) *ConfgateError { return New(KindUnauthenticated, message) }

// GitFailure wraps a git toolkit error.
func GitFailure(err error, message string) *ConfgateError {
	return Wrap(err, KindGitFailure, message)
}

// IOFailure wraps a filesystem error.
func IOFailure(err error, message string) *ConfgateError {
	return Wrap(err, KindIOFailure, message)
}

// Internal wraps an unclassified error.
func Internal(err error, message string) *ConfgateError {
	return Wrap(err, KindInternal, message)
}

// KindOf extracts the kind from an error chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var ce *ConfgateError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *ConfgateError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// HTTPStatus returns the status code any error renders as.
func HTTPStatus(err error) int {
	return AsConfgate(err).HTTPStatus()
}

// AsConfgate returns the ConfgateError in the chain, wrapping foreign errors
// as internal so the HTTP adapter always has a structured error to render.
func AsConfgate(err error) *ConfgateError {
	var ce *ConfgateError
	if errors.As(err, &ce) {
		return ce
	}
	return Internal(err, "unexpected error")
}
