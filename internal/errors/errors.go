// Package errors provides standardized error handling for the gateway.
//
// It implements a consistent error format across all HTTP endpoints and
// maps the error kinds recognized by the core (transient backend failures,
// capacity exhaustion, session-not-found/not-ready, bridge startup failure,
// and VM auth failure) onto HTTP status codes and WebSocket close codes.
//
// Usage patterns:
//
//	return errors.SessionNotFound(sessionID)
//	return errors.Wrap(errors.CodeTransientBackend, "list_containers failed", err)
//	c.JSON(err.StatusCode, err.ToResponse())
package errors

import (
	"fmt"
	"net/http"
)

// AppError represents a standardized application error with HTTP context.
type AppError struct {
	// Code is a machine-readable error identifier, UPPER_SNAKE_CASE.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Details provides additional context for debugging (optional).
	Details string `json:"details,omitempty"`

	// StatusCode is the HTTP status code to return. Not serialized.
	StatusCode int `json:"-"`

	// WSCloseCode is the WebSocket close code to use when this error
	// terminates a WebSocket leg (0 if not applicable).
	WSCloseCode int `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON error response shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error kinds from the core's error taxonomy.
const (
	// CodeTransientBackend: orchestrator RPC failure, 5xx from upstream.
	// Logged, operation returns empty/false; caller retries on its own cadence.
	CodeTransientBackend = "TRANSIENT_BACKEND"

	// CodeNoCapacity: allocate found nothing and scale-up has not yet
	// produced a workload.
	CodeNoCapacity = "NO_CAPACITY"

	// CodeSessionNotFound: terminal for a WebSocket leg; close 1008.
	CodeSessionNotFound = "SESSION_NOT_FOUND"

	// CodeSessionNotReady: session exists but state != ready; close 1008.
	CodeSessionNotReady = "SESSION_NOT_READY"

	// CodeBridgeStartupFailure: adapter did not bind in time; close 1011.
	CodeBridgeStartupFailure = "BRIDGE_STARTUP_FAILURE"

	// CodeUpstreamClosed: normal close, not an error.
	CodeUpstreamClosed = "UPSTREAM_CLOSED"

	// CodeAuthFailure: cluster VM VNC auth rejected; close 1011, no
	// retry under the same session without a fresh token fetch.
	CodeAuthFailure = "AUTH_FAILURE"

	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInternalServer     = "INTERNAL_SERVER_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// WebSocket close codes used by the gateway.
const (
	WSClosePolicy        = 1008
	WSCloseInternalError = 1011
	WSCloseNormal        = 1000
	WSCloseGoingAway     = 1001
)

func New(code, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		StatusCode:  statusForCode(code),
		WSCloseCode: wsCloseForCode(code),
	}
}

func NewWithDetails(code, message, details string) *AppError {
	e := New(code, message)
	e.Details = details
	return e
}

func Wrap(code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

func statusForCode(code string) int {
	switch code {
	case CodeBadRequest, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeSessionNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeSessionNotReady:
		return http.StatusConflict
	case CodeNoCapacity, CodeServiceUnavailable, CodeBridgeStartupFailure:
		return http.StatusServiceUnavailable
	case CodeAuthFailure:
		return http.StatusUnauthorized
	case CodeTransientBackend, CodeInternalServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func wsCloseForCode(code string) int {
	switch code {
	case CodeSessionNotFound, CodeSessionNotReady:
		return WSClosePolicy
	case CodeBridgeStartupFailure, CodeAuthFailure, CodeTransientBackend:
		return WSCloseInternalError
	case CodeUpstreamClosed:
		return WSCloseNormal
	default:
		return 0
	}
}

func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Code,
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	}
}

// Common constructors.

func BadRequest(message string) *AppError { return New(CodeBadRequest, message) }

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError { return New(CodeConflict, message) }

func ValidationFailed(message string) *AppError { return New(CodeValidationFailed, message) }

func SessionNotFound(sessionID string) *AppError {
	return New(CodeSessionNotFound, fmt.Sprintf("session not found: %s", sessionID))
}

func SessionNotReady(sessionID, state string) *AppError {
	return New(CodeSessionNotReady, fmt.Sprintf("session not ready: %s", state)).withDetail(sessionID)
}

func (e *AppError) withDetail(d string) *AppError {
	e.Details = d
	return e
}

func NoCapacity(targetType string) *AppError {
	return New(CodeNoCapacity, fmt.Sprintf("no capacity available for target type %s", targetType))
}

func BridgeStartupFailure(sessionID string, err error) *AppError {
	return Wrap(CodeBridgeStartupFailure, fmt.Sprintf("bridge failed to start for session %s", sessionID), err)
}

func AuthFailure(message string) *AppError { return New(CodeAuthFailure, message) }

func TransientBackend(op string, err error) *AppError {
	return Wrap(CodeTransientBackend, fmt.Sprintf("%s failed", op), err)
}

func InternalServer(message string) *AppError { return New(CodeInternalServer, message) }

func ServiceUnavailable(service string) *AppError {
	return New(CodeServiceUnavailable, fmt.Sprintf("%s is currently unavailable", service))
}
