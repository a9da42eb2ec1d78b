package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse is the error payload shape returned by the backend.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a classified application error.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
		Status:  http.StatusNotFound,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// NewAPIError classifies a non-2xx backend response. message is the text the
// backend supplied, which may be empty.
func NewAPIError(status int, message string) *AppError {
	code := "API_ERROR"
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = "UNAUTHORIZED"
	case status == http.StatusNotFound:
		code = "NOT_FOUND"
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		code = "VALIDATION_ERROR"
	case status >= 500:
		code = "INTERNAL_ERROR"
	}
	return &AppError{Code: code, Message: message, Status: status}
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == "NOT_FOUND"
}

// IsUnauthorized reports whether err is an unauthorized AppError.
func IsUnauthorized(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == "UNAUTHORIZED"
}

// UserMessage derives banner text for a failed user-initiated action. The
// backend's message is preferred; transport failures get the fallback.
func UserMessage(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" && appErr.Code != "INTERNAL_ERROR" {
		return appErr.Message
	}
	return fallback
}
