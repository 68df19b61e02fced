package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// newAppError creates an AppError wrapping cause, which may be nil.
func newAppError(status int, code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: cause}
}

// NotFoundError is a 404 carrying cause.
func NotFoundError(cause error) *AppError {
	return newAppError(http.StatusNotFound, "ERR_NOT_FOUND", cause.Error(), cause)
}

// ConflictError is a 409 carrying cause.
func ConflictError(cause error) *AppError {
	return newAppError(http.StatusConflict, "ERR_CONFLICT", cause.Error(), cause)
}
