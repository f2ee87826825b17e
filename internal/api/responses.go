// Package api exposes the monitoring daemon over HTTP: health probes,
// monitor control, alert and silence management, anomaly queries, and
// the resilience surfaces (circuit breakers, connection pool).
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/errors"
)

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries a machine-readable code alongside the message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func requestID(c *gin.Context) string {
	if id, ok := c.Get("request_id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

func respond(c *gin.Context, statusCode int, data interface{}, apiErr *APIError) {
	c.JSON(statusCode, APIResponse{
		Success:   apiErr == nil,
		Data:      data,
		Error:     apiErr,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// SuccessResponse sends a 200 response wrapping data in the standard envelope.
func SuccessResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, data, nil)
}

// CreatedResponse sends a 201 Created response.
func CreatedResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, data, nil)
}

// ErrorResponseFromError maps an application error onto the matching
// HTTP status. Errors outside the application taxonomy become opaque
// 500s so internals do not leak to callers.
func ErrorResponseFromError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		respond(c, http.StatusInternalServerError, nil, &APIError{
			Code:    "UNKNOWN_ERROR",
			Message: "An unknown error occurred",
		})
		return
	}

	var statusCode int
	switch appErr.Type {
	case errors.ErrorTypeValidation:
		statusCode = http.StatusBadRequest
	case errors.ErrorTypeAuthentication:
		statusCode = http.StatusUnauthorized
	case errors.ErrorTypeAuthorization:
		statusCode = http.StatusForbidden
	case errors.ErrorTypeNotFound:
		statusCode = http.StatusNotFound
	case errors.ErrorTypeConflict:
		statusCode = http.StatusConflict
	case errors.ErrorTypeRateLimit:
		statusCode = http.StatusTooManyRequests
	case errors.ErrorTypeTimeout:
		statusCode = http.StatusRequestTimeout
	case errors.ErrorTypeUnavailable, errors.ErrorTypeCircuitOpen:
		statusCode = http.StatusServiceUnavailable
	case errors.ErrorTypeExternal:
		statusCode = http.StatusBadGateway
	default:
		statusCode = http.StatusInternalServerError
	}

	apiErr := &APIError{
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	if len(appErr.Details) > 0 {
		apiErr.Details = appErr.Details
	}

	respond(c, statusCode, nil, apiErr)
}

// BadRequestResponse sends a 400 Bad Request response.
func BadRequestResponse(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, nil, &APIError{Code: "BAD_REQUEST", Message: message})
}

// UnauthorizedResponse sends a 401 Unauthorized response.
func UnauthorizedResponse(c *gin.Context, message string) {
	respond(c, http.StatusUnauthorized, nil, &APIError{Code: "UNAUTHORIZED", Message: message})
}

// NotFoundResponse sends a 404 Not Found response.
func NotFoundResponse(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, nil, &APIError{Code: "NOT_FOUND", Message: message})
}

// InternalErrorResponse sends a 500 Internal Server Error response.
func InternalErrorResponse(c *gin.Context, message string) {
	respond(c, http.StatusInternalServerError, nil, &APIError{Code: "INTERNAL_ERROR", Message: message})
}

// TooManyRequestsResponse sends a 429 Too Many Requests response.
func TooManyRequestsResponse(c *gin.Context, message string) {
	respond(c, http.StatusTooManyRequests, nil, &APIError{Code: "RATE_LIMIT_EXCEEDED", Message: message})
}

// Request types

// UpdateMonitorRequest changes a source's scheduling. At least one
// field must be set. Interval uses Go duration syntax, e.g. "45s".
type UpdateMonitorRequest struct {
	Enabled  *bool  `json:"enabled"`
	Interval string `json:"interval"`
}

// CreateRuleRequest registers an alert rule. Duration uses Go duration
// syntax; an empty severity defaults to warning and an absent enabled
// flag defaults to true.
type CreateRuleRequest struct {
	Name      string  `json:"name" binding:"required"`
	Source    string  `json:"source" binding:"required"`
	Metric    string  `json:"metric" binding:"required"`
	Operator  string  `json:"operator" binding:"required,oneof=gt lt eq trend_up trend_down"`
	Threshold float64 `json:"threshold"`
	Duration  string  `json:"duration"`
	Severity  string  `json:"severity" binding:"omitempty,oneof=info warning critical fatal"`
	Enabled   *bool   `json:"enabled"`
}

func (r *CreateRuleRequest) toRule() (*alerting.Rule, error) {
	rule := &alerting.Rule{
		Name:      r.Name,
		Source:    r.Source,
		Condition: alerting.Condition{Metric: r.Metric, Operator: alerting.Operator(r.Operator)},
		Threshold: r.Threshold,
		Severity:  alerting.Severity(r.Severity),
		Enabled:   true,
	}
	if r.Severity == "" {
		rule.Severity = alerting.SeverityWarning
	}
	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
	if r.Duration != "" {
		duration, err := time.ParseDuration(r.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", r.Duration, err)
		}
		if duration < 0 {
			return nil, fmt.Errorf("duration cannot be negative")
		}
		rule.Duration = duration
	}
	return rule, nil
}

// CreateSilenceRequest registers a silence window. At least one of
// source, level and pattern must be set; a zero starts_at means now.
type CreateSilenceRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Source   string    `json:"source"`
	Level    string    `json:"level" binding:"omitempty,oneof=info warning critical fatal"`
	Pattern  string    `json:"pattern"`
	Reason   string    `json:"reason"`
	Enabled  *bool     `json:"enabled"`
}

func (r *CreateSilenceRequest) toSilence() *alerting.SilenceConfig {
	silence := &alerting.SilenceConfig{
		Enabled:  true,
		StartsAt: r.StartsAt,
		EndsAt:   r.EndsAt,
		Source:   r.Source,
		Level:    alerting.Severity(r.Level),
		Pattern:  r.Pattern,
		Reason:   r.Reason,
	}
	if r.Enabled != nil {
		silence.Enabled = *r.Enabled
	}
	if silence.StartsAt.IsZero() {
		silence.StartsAt = time.Now()
	}
	return silence
}
