// Package errs defines the typed failures shared by the resolution pipeline
// and their mapping onto HTTP status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// Caller errors
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeMalformedSnapshot Code = "MALFORMED_SNAPSHOT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeRateLimited       Code = "RATE_LIMITED"

	// Degraded upstream, recoverable by serving the cached record
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout     Code = "UPSTREAM_TIMEOUT"

	// Nothing cached and nothing fetched
	CodeResolutionFailed Code = "RESOLUTION_FAILED"

	// Operational faults
	CodeNoValidToken Code = "NO_VALID_TOKEN"
	CodeCanceled     Code = "CANCELED"
	CodeInternal     Code = "INTERNAL"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// abandoned before a response was ready.
const StatusClientClosedRequest = 499

// AppError is an error carrying a Code, a human message and an optional cause.
type AppError struct {
	Err     error
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an error code.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost AppError in the chain, or
// CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether any AppError in the chain of err carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// Public renders err for API clients as "CODE: message". Internal failures
// and foreign errors render as the bare INTERNAL code so causes such as
// database errors or file paths stay in the logs.
func Public(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code == CodeInternal {
		return string(CodeInternal)
	}
	return string(appErr.Code) + ": " + appErr.Message
}

// IsUpstream reports whether err is a degraded-upstream condition.
func IsUpstream(err error) bool {
	return Is(err, CodeUpstreamUnavailable) || Is(err, CodeUpstreamTimeout)
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeMalformedSnapshot:
		return http.StatusUnprocessableEntity
	case CodeResolutionFailed:
		if Is(err, CodeUpstreamTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case CodeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
