package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a wardrobe error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// TrackerError represents a structured error with code, status, and details.
type TrackerError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TrackerError {
	return &TrackerError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnknownField creates a 400 error for a manual edit naming a key outside the schema.
func NewUnknownField(field string) *TrackerError {
	return &TrackerError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: fmt.Sprintf("unknown field: %s", field),
		Details: map[string]any{"field": field},
	}
}

// NewNotFound creates a 404 error for an owner that has never been tracked.
func NewNotFound(owner string) *TrackerError {
	return &TrackerError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("owner not found: %s", owner),
		Details: map[string]any{"owner": owner},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *TrackerError {
	return &TrackerError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by its context.
func NewCancelled(op string) *TrackerError {
	return &TrackerError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TrackerError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TrackerError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a TrackerError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TrackerError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}

// As extracts a TrackerError from err, wrapping anything else as internal.
func As(err error) *TrackerError {
	var tErr *TrackerError
	if stderrors.As(err, &tErr) {
		return tErr
	}
	return NewInternal(err)
}
