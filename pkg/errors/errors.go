package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error for callers and for HTTP mapping
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeVersionConflict ErrorType = "VERSION_CONFLICT"
	ErrorTypeLockHeld        ErrorType = "LOCK_HELD"
	ErrorTypeNotLockHolder   ErrorType = "NOT_LOCK_HOLDER"
	ErrorTypeInvariant       ErrorType = "INVARIANT_VIOLATION"
	ErrorTypeUnauthorized    ErrorType = "UNAUTHORIZED"

	// Infrastructure errors
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrorTypeDatabase    ErrorType = "DATABASE"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error for a resource
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewVersionConflictError reports a lost optimistic-concurrency race.
// The caller should re-fetch the item and retry with the new version.
func NewVersionConflictError(resource string, expectedVersion int) *AppError {
	return &AppError{
		Type:       ErrorTypeVersionConflict,
		Message:    fmt.Sprintf("%s was modified concurrently (expected version %d)", resource, expectedVersion),
		HTTPStatus: http.StatusConflict,
		Details: map[string]interface{}{
			"expectedVersion": expectedVersion,
		},
	}
}

// NewLockHeldError reports that another editor holds the advisory lock
func NewLockHeldError(podID, holder string) *AppError {
	return &AppError{
		Type:       ErrorTypeLockHeld,
		Message:    fmt.Sprintf("pod %s is being edited by someone else", podID),
		HTTPStatus: http.StatusConflict,
		Details: map[string]interface{}{
			"podId":  podID,
			"holder": holder,
		},
	}
}

// NewNotLockHolderError reports a release attempt by a non-holder
func NewNotLockHolderError(podID string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotLockHolder,
		Message:    fmt.Sprintf("caller does not hold the lock on pod %s", podID),
		HTTPStatus: http.StatusConflict,
	}
}

// NewInvariantError reports a structural invariant violation.
// Operations that hit one must abort whole, never partially apply.
func NewInvariantError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvariant,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewUnavailableError creates a service unavailable error
func NewUnavailableError(service string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Message:    fmt.Sprintf("service '%s' is unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDatabase,
		Message:    fmt.Sprintf("database operation '%s' failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsVersionConflict checks if an error is an optimistic-concurrency conflict
func IsVersionConflict(err error) bool {
	return IsType(err, ErrorTypeVersionConflict)
}

// IsLockHeld checks if an error is an advisory-lock contention error
func IsLockHeld(err error) bool {
	return IsType(err, ErrorTypeLockHeld)
}

// IsNotLockHolder checks if an error is a non-holder release error
func IsNotLockHolder(err error) bool {
	return IsType(err, ErrorTypeNotLockHolder)
}

// IsInvariantViolation checks if an error is a structural invariant violation
func IsInvariantViolation(err error) bool {
	return IsType(err, ErrorTypeInvariant)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsUnauthorized checks if an error is an unauthorized error
func IsUnauthorized(err error) bool {
	return IsType(err, ErrorTypeUnauthorized)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
