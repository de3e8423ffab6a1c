package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
)

var statusByCode = map[string]int{
	CodeNotFound:        http.StatusNotFound,
	CodeValidation:      http.StatusUnprocessableEntity,
	CodeConflict:        http.StatusConflict,
	CodeInternal:        http.StatusInternalServerError,
	CodeTimeout:         http.StatusGatewayTimeout,
	CodeUnavailable:     http.StatusServiceUnavailable,
	CodeInvalidInput:    http.StatusBadRequest,
	CodeTooManyRequests: http.StatusTooManyRequests,
}

// AppError is an error that knows how it is reported over HTTP.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

// New builds an AppError whose status follows from code. Unknown codes are
// reported as 500.
func New(code, message string) *AppError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithStatus overrides the status derived from the code.
func (e *AppError) WithStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

func NotFoundWithID(resource, id string) *AppError {
	e := New(CodeNotFound, fmt.Sprintf("%s not found", resource))
	e.Details = map[string]any{
		"resource": resource,
		"id":       id,
	}
	return e
}

// Validation reports a bid or form that was read but refused.
func Validation(message string, details map[string]any) *AppError {
	e := New(CodeValidation, message)
	e.Details = details
	return e
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// Conflict reports a request that is well formed but not acceptable in the
// auction's current state, e.g. a bid outside of an open round.
func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

func Internal(message string, err error) *AppError {
	e := New(CodeInternal, message)
	e.Err = err
	return e
}

func Timeout(message string) *AppError {
	return New(CodeTimeout, message)
}

func Unavailable(service string, err error) *AppError {
	e := New(CodeUnavailable, fmt.Sprintf("%s is temporarily unavailable", service))
	e.Err = err
	return e
}

func TooManyRequests(message string) *AppError {
	return New(CodeTooManyRequests, message)
}

// AsAppError finds the first AppError in err's chain; anything else becomes
// an internal error wrapping err.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}
