package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of an error
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeExternal       ErrorType = "external"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeCircuitOpen    ErrorType = "circuit_open"
)

// AppError represents an application error with context. Retryability is
// fixed at the point the error is raised so callers never have to inspect
// messages to decide whether another attempt can succeed.
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether another attempt at the failed operation can
// reasonably succeed
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// WithCause attaches an underlying cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail field to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID attaches a request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithRetryable overrides the default retryability of the error
func (e *AppError) WithRetryable(retryable bool) *AppError {
	e.Retryable = retryable
	return e
}

func newError(errType ErrorType, code, message string, retryable bool) *AppError {
	return &AppError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now(),
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, "VALIDATION_FAILED", message, false)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return newError(ErrorTypeAuthentication, "AUTHENTICATION_FAILED", message, false)
}

// NewAuthorizationError creates an authorization error
func NewAuthorizationError(message string) *AppError {
	return newError(ErrorTypeAuthorization, "AUTHORIZATION_FAILED", message, false)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return newError(ErrorTypeNotFound, "RESOURCE_NOT_FOUND", fmt.Sprintf("%s not found", resource), false)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return newError(ErrorTypeConflict, "RESOURCE_CONFLICT", message, false)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(message string) *AppError {
	return newError(ErrorTypeRateLimit, "RATE_LIMIT_EXCEEDED", message, true)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return newError(ErrorTypeInternal, "INTERNAL_ERROR", message, false)
}

// NewExternalError creates an external service error
func NewExternalError(service, message string) *AppError {
	return newError(ErrorTypeExternal, "EXTERNAL_SERVICE_ERROR", fmt.Sprintf("%s: %s", service, message), true)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return newError(ErrorTypeTimeout, "OPERATION_TIMEOUT", fmt.Sprintf("%s timed out", operation), true)
}

// NewUnavailableError creates an error for a resource that is shut down or
// otherwise permanently unable to serve
func NewUnavailableError(message string) *AppError {
	return newError(ErrorTypeUnavailable, "RESOURCE_UNAVAILABLE", message, false)
}

// NewConnectionLostError creates an error for a dropped or refused connection
func NewConnectionLostError(message string) *AppError {
	return newError(ErrorTypeExternal, "CONNECTION_LOST", message, true)
}

// NewCircuitOpenError creates an error for a call rejected by an open
// circuit breaker
func NewCircuitOpenError(operation string) *AppError {
	return newError(ErrorTypeCircuitOpen, "CIRCUIT_OPEN", fmt.Sprintf("circuit breaker open for %s", operation), false)
}

// IsType checks whether an error is an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// GetType extracts the error type from an error, defaulting to internal
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetCode extracts the error code from an error
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// retryableCapable is implemented by errors that know their own retryability
type retryableCapable interface {
	IsRetryable() bool
}

// IsRetryable walks the error chain and reports whether the failure is worth
// retrying. Errors that do not declare retryability are treated as not
// retryable; opaque third-party errors should be adapted at the boundary
// with FromOpaque or RetryableByPatterns.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if rc, ok := e.(retryableCapable); ok {
			return rc.IsRetryable()
		}
	}
	return false
}

// As re-exports the standard errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is re-exports the standard errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}
