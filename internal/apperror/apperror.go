// Package apperror defines the application-wide error taxonomy.
//
// Every layer returns these domain errors instead of raw driver or library
// errors. The HTTP handlers map them to status codes, the transport maps them
// to tagged error events, and tests match them with errors.Is — no layer ever
// string-compares error text.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth covers every authentication failure: missing token, bad
	// signature, malformed payload, expired. Callers must not be able to
	// tell these apart, so there is exactly one sentinel for all of them.
	ErrAuth = errors.New("authentication failed")

	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrStorage marks a persistence failure (local or remote store).
	ErrStorage = errors.New("storage error")

	// ErrUpstream marks a failure of the external catalog API.
	ErrUpstream = errors.New("upstream error")
)

// AppError carries a sentinel kind plus a human-readable message.
// It implements Unwrap so errors.Is can match the sentinel anywhere
// in a wrapped chain.
type AppError struct {
	Err     error  // one of the sentinels above
	Message string // human-readable error message
	Field   string // optional: field causing a validation error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Auth returns the single user-visible authentication error. The message is
// deliberately generic — token validation internals must not leak to callers.
func Auth() *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: "valid session required",
	}
}

// Storage wraps a persistence failure with context about the operation.
func Storage(op string, err error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: fmt.Sprintf("storage failure during %s: %v", op, err),
	}
}

// Upstream wraps a catalog API failure with context about the call.
func Upstream(op string, err error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: fmt.Sprintf("catalog request %s failed: %v", op, err),
	}
}
