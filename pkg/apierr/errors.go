// Package apierr defines the error taxonomy shared by the request pipeline
// and the business handlers. Every error that can reach a client is one of
// these kinds; anything else is logged and surfaced as an internal error.
package apierr

import (
	"errors"
	"net/http"
)

// Machine-readable error codes returned in response bodies.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimited   = "RATE_LIMIT_EXCEEDED"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeInternal      = "INTERNAL_ERROR"
)

// Error is an API error with an HTTP status and a machine code.
type Error struct {
	StatusCode int
	Code       string
	Message    string

	// RetryAfter is set for rate-limit errors, in seconds.
	RetryAfter int
}

func (e *Error) Error() string {
	return e.Message
}

// Validation returns a 400 error for malformed input.
func Validation(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

// Unauthorized returns a 401 error for a missing or invalid credential.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Unauthorized"
	}
	return &Error{StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// Forbidden returns a 403 error for a valid credential lacking a permission.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden"
	}
	return &Error{StatusCode: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return &Error{StatusCode: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// Conflict returns a 409 error for a unique-constraint violation.
func Conflict(message string) *Error {
	return &Error{StatusCode: http.StatusConflict, Code: CodeConflict, Message: message}
}

// RateLimited returns a 429 error with a retry hint in seconds.
func RateLimited(retryAfter int) *Error {
	return &Error{
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "Rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// QuotaExceeded returns a 429 error for an exhausted monthly quota.
func QuotaExceeded(message string) *Error {
	if message == "" {
		message = "Monthly quota exceeded"
	}
	return &Error{StatusCode: http.StatusTooManyRequests, Code: CodeQuotaExceeded, Message: message}
}

// Internal returns a 500 error. The message is what the client sees, so it
// must never carry driver or stack detail.
func Internal() *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error"}
}

// From converts an arbitrary error into an *Error. Unknown errors map to
// Internal so raw store-driver errors never leak to clients.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal()
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
