package errors

import (
	"errors"
	"fmt"
)

// Well-known error codes shared across packages. Domain packages define
// their own string constants using the same AppError type (see
// pkg/queue, pkg/subscription, pkg/journal, pkg/transport).
const (
	CodeInternal        = "INTERNAL"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeCanceled         = "CANCELED"
)

// AppError is the structured error type used throughout the module. It
// carries a stable machine-readable Code, a human-readable Message, and
// optionally wraps an underlying cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap makes AppError compatible with errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code, message and optional cause.
func New(code string, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

// Wrap attaches a message to an existing error. If err is already an
// AppError its code is preserved; otherwise the error is classified as
// CodeInternal.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Err: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// Code returns the code of err if it is (or wraps) an AppError, and
// CodeInternal otherwise.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err's code matches the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}

// Unwrap is re-exported so callers of this package never need to import
// the standard errors package alongside it.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// As is re-exported for the same reason as Unwrap.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
