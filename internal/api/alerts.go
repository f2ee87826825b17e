package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/errors"
)

// AlertHandler serves alerts, alert rules, silences and anomaly queries.
// Rules and silences live in the engine; fired alerts are read from the
// store.
type AlertHandler struct {
	store  monitoring.Store
	engine *alerting.Engine
}

// NewAlertHandler creates an alert handler.
func NewAlertHandler(store monitoring.Store, engine *alerting.Engine) *AlertHandler {
	return &AlertHandler{
		store:  store,
		engine: engine,
	}
}

// ListAlerts returns stored alerts, newest first, filtered by source,
// severity and resolution state.
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	if h.store == nil {
		ErrorResponseFromError(c, errors.NewUnavailableError("alert storage is not configured"))
		return
	}

	filter := monitoring.AlertFilter{
		Source:   c.Query("source"),
		Severity: alerting.Severity(c.Query("severity")),
	}
	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			BadRequestResponse(c, "Invalid resolved filter: "+err.Error())
			return
		}
		filter.Resolved = &resolved
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	filter.Limit = limit

	alerts, err := h.store.GetAlerts(c.Request.Context(), filter)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlert marks a stored alert resolved.
func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	if h.store == nil {
		ErrorResponseFromError(c, errors.NewUnavailableError("alert storage is not configured"))
		return
	}

	id := c.Param("id")
	if err := h.store.ResolveAlert(c.Request.Context(), id); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"id":       id,
		"resolved": true,
	})
}

// ListRules returns every alert rule sorted by name.
func (h *AlertHandler) ListRules(c *gin.Context) {
	rules := h.engine.Rules()
	SuccessResponse(c, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule returns one alert rule.
func (h *AlertHandler) GetRule(c *gin.Context) {
	rule, ok := h.engine.GetRule(c.Param("id"))
	if !ok {
		NotFoundResponse(c, "Alert rule not found")
		return
	}
	SuccessResponse(c, rule)
}

// CreateRule registers a new alert rule.
func (h *AlertHandler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return
	}

	rule, err := req.toRule()
	if err != nil {
		BadRequestResponse(c, err.Error())
		return
	}
	if err := h.engine.AddRule(c.Request.Context(), rule); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	CreatedResponse(c, rule)
}

// EnableRule turns a rule on.
func (h *AlertHandler) EnableRule(c *gin.Context) {
	h.setRuleEnabled(c, true)
}

// DisableRule turns a rule off.
func (h *AlertHandler) DisableRule(c *gin.Context) {
	h.setRuleEnabled(c, false)
}

func (h *AlertHandler) setRuleEnabled(c *gin.Context, enabled bool) {
	id := c.Param("id")
	if err := h.engine.SetRuleEnabled(c.Request.Context(), id, enabled); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	rule, ok := h.engine.GetRule(id)
	if !ok {
		NotFoundResponse(c, "Alert rule not found")
		return
	}
	SuccessResponse(c, rule)
}

// DeleteRule removes a rule from the engine and the store.
func (h *AlertHandler) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.DeleteRule(c.Request.Context(), id); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"id":      id,
		"deleted": true,
	})
}

// ListSilences returns every silence sorted by creation time.
func (h *AlertHandler) ListSilences(c *gin.Context) {
	silences := h.engine.Silences()
	SuccessResponse(c, gin.H{
		"silences": silences,
		"count":    len(silences),
	})
}

// CreateSilence registers a silence window.
func (h *AlertHandler) CreateSilence(c *gin.Context) {
	var req CreateSilenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return
	}

	silence := req.toSilence()
	if err := h.engine.AddSilence(c.Request.Context(), silence); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	CreatedResponse(c, silence)
}

// DeleteSilence removes a silence from the engine and the store.
func (h *AlertHandler) DeleteSilence(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.DeleteSilence(c.Request.Context(), id); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"id":      id,
		"deleted": true,
	})
}

// GetAnomaly checks whether the latest value of a source metric is a
// statistical outlier against its recent history.
func (h *AlertHandler) GetAnomaly(c *gin.Context) {
	anomaly, err := h.engine.DetectAnomalies(c.Request.Context(), c.Param("source"), c.Param("metric"))
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if anomaly == nil {
		SuccessResponse(c, gin.H{
			"detected": false,
			"anomaly":  nil,
		})
		return
	}
	SuccessResponse(c, gin.H{
		"detected": true,
		"anomaly":  anomaly,
	})
}
