package common

import "errors"

// AppError represents an error with an attached code and HTTP status.
// Message is the client-facing text; Err carries the sentinel chain for errors.Is.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// CodeOf returns the machine-readable code attached to err, or "" when err is
// not an AppError.
func CodeOf(err error) string {
	var target *AppError
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}

// StatusOf returns the HTTP status attached to err, or fallback when err is not an AppError.
func StatusOf(err error, fallback int) int {
	var target *AppError
	if errors.As(err, &target) && target.HTTPStatus > 0 {
		return target.HTTPStatus
	}
	return fallback
}
