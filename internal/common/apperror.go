package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeAccountLocked     = "ACCOUNT_LOCKED"
	CodeOverloaded        = "OVERLOADED"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL"
)

// AppError is the error shape surfaced by every API endpoint.
type AppError struct {
	Code    string      `json:"code"`
	Status  int         `json:"-"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails attaches structured detail (field errors, rejection lists).
func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func ValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeConflict, Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

func IllegalTransitionError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeIllegalTransition, Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

func UnauthorizedError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func ForbiddenError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeForbidden, Status: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

func AccountLockedError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeAccountLocked, Status: http.StatusLocked, Message: fmt.Sprintf(format, args...)}
}

func OverloadedError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeOverloaded, Status: http.StatusServiceUnavailable, Message: fmt.Sprintf(format, args...)}
}

func TimeoutError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeTimeout, Status: http.StatusGatewayTimeout, Message: fmt.Sprintf(format, args...)}
}

func InternalError(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: fmt.Sprintf(format, args...)}
}

// AsAppError extracts an *AppError from an error chain; unclassified errors
// map to INTERNAL without leaking internals to the client.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error"}
}
