package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeForbidden              ErrorCode = "FORBIDDEN"
	ErrCodeConflict               ErrorCode = "CONFLICT"
	ErrCodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	ErrCodeDeviceUnavailable      ErrorCode = "DEVICE_UNAVAILABLE"
	ErrCodeDirectory              ErrorCode = "DIRECTORY_ERROR"
	ErrCodeConstraintApplyFailure ErrorCode = "CONSTRAINT_APPLY_FAILURE"
	ErrCodeSurface                ErrorCode = "SESSION_SURFACE_ERROR"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Recoverable reports whether the user can retry or navigate away and continue.
// Only internal errors are treated as unrecoverable.
func (e *AppError) Recoverable() bool {
	return e.Code != ErrCodeInternal
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewPermissionDeniedError(err error) *AppError {
	return WrapError(err, ErrCodePermissionDenied, "capture device access was refused", http.StatusForbidden)
}

func NewDeviceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeDeviceUnavailable, message, http.StatusConflict)
}

// NewDirectoryError reports that the directory store was unreachable or rejected a write.
func NewDirectoryError(operation string, err error) *AppError {
	return WrapError(err, ErrCodeDirectory, fmt.Sprintf("directory %s failed", operation), http.StatusBadGateway).
		WithContext("operation", operation)
}

func WrapDeviceUnavailableError(err error, message string) *AppError {
	return WrapError(err, ErrCodeDeviceUnavailable, message, http.StatusConflict)
}

func NewConstraintApplyError(err error) *AppError {
	return WrapError(err, ErrCodeConstraintApplyFailure, "capture constraints could not be applied", http.StatusUnprocessableEntity)
}

// NewSurfaceError reports that the conferencing backend refused or dropped the session.
func NewSurfaceError(err error) *AppError {
	return WrapError(err, ErrCodeSurface, "session surface unavailable", http.StatusBadGateway)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
