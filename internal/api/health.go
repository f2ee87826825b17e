package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/audiocove/audiocove-monitoring/internal/storage"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler serves the process health endpoints.
type HealthHandler struct {
	db    *storage.DB
	redis *storage.RedisClient
}

// NewHealthHandler creates a health handler. Either dependency may be
// nil; it is then left out of the checks.
func NewHealthHandler(db *storage.DB, redis *storage.RedisClient) *HealthHandler {
	return &HealthHandler{
		db:    db,
		redis: redis,
	}
}

// HealthResponse is the body of the health and readiness endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthCheck is one dependency's contribution to the health endpoint.
type HealthCheck struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

func (h *HealthHandler) runChecks(ctx context.Context) (map[string]HealthCheck, bool) {
	checks := make(map[string]HealthCheck)
	healthy := true

	if h.db != nil {
		start := time.Now()
		err := h.db.Health(ctx)
		latency := time.Since(start)

		if err != nil {
			healthy = false
			checks["database"] = HealthCheck{Status: "unhealthy", Message: err.Error(), Latency: latency}
		} else {
			checks["database"] = HealthCheck{Status: "healthy", Latency: latency}
		}
	}

	if h.redis != nil {
		start := time.Now()
		err := h.redis.Health(ctx)
		latency := time.Since(start)

		if err != nil {
			healthy = false
			checks["redis"] = HealthCheck{Status: "unhealthy", Message: err.Error(), Latency: latency}
		} else {
			checks["redis"] = HealthCheck{Status: "healthy", Latency: latency}
		}
	}

	return checks, healthy
}

// Health reports the daemon's own dependencies: the store database and
// the cache.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   serviceVersion,
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if !healthy {
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// Live reports process liveness only. It never touches dependencies so
// a struggling backend cannot get the daemon restarted.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// Ready reports whether the daemon can serve traffic.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": checks,
	})
}
