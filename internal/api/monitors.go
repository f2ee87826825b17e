package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
)

// MonitorHandler serves the monitored-source endpoints.
type MonitorHandler struct {
	service *monitoring.Service
}

// NewMonitorHandler creates a monitor handler.
func NewMonitorHandler(service *monitoring.Service) *MonitorHandler {
	return &MonitorHandler{service: service}
}

// ListMonitors returns every monitored source with its scheduling state.
func (h *MonitorHandler) ListMonitors(c *gin.Context) {
	statuses := h.service.Statuses()
	SuccessResponse(c, gin.H{
		"monitors": statuses,
		"count":    len(statuses),
	})
}

// GetMonitor returns one source's status.
func (h *MonitorHandler) GetMonitor(c *gin.Context) {
	status, err := h.service.Status(c.Param("name"))
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, status)
}

// GetTrend returns the trend analysis over a source's recent history.
func (h *MonitorHandler) GetTrend(c *gin.Context) {
	trend, err := h.service.Trend(c.Param("name"))
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, trend)
}

// GetHistory returns a source's recent check results, oldest first.
func (h *MonitorHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	history, err := h.service.History(c.Param("name"), limit)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// TriggerCheck runs one source's probe immediately. The result flows
// through the same persistence and alerting path as scheduled checks.
func (h *MonitorHandler) TriggerCheck(c *gin.Context) {
	result, err := h.service.TriggerCheck(c.Request.Context(), c.Param("name"))
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, result)
}

// TriggerRecovery runs one source's recovery strategy.
func (h *MonitorHandler) TriggerRecovery(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.Recover(c.Request.Context(), name); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"monitor":   name,
		"recovered": true,
	})
}

// UpdateMonitor changes a source's scheduling: the enabled flag, the
// check interval, or both.
func (h *MonitorHandler) UpdateMonitor(c *gin.Context) {
	var req UpdateMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Enabled == nil && req.Interval == "" {
		BadRequestResponse(c, "Request must set enabled, interval or both")
		return
	}

	name := c.Param("name")
	if req.Interval != "" {
		interval, err := time.ParseDuration(req.Interval)
		if err != nil {
			BadRequestResponse(c, "Invalid interval: "+err.Error())
			return
		}
		if err := h.service.SetInterval(c.Request.Context(), name, interval); err != nil {
			ErrorResponseFromError(c, err)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.service.SetEnabled(c.Request.Context(), name, *req.Enabled); err != nil {
			ErrorResponseFromError(c, err)
			return
		}
	}

	status, err := h.service.Status(name)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, status)
}

// AggregateHealth returns the weighted health report across all sources.
func (h *MonitorHandler) AggregateHealth(c *gin.Context) {
	SuccessResponse(c, h.service.AggregateHealthChecks(c.Request.Context()))
}
