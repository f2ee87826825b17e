package api

import (
	"github.com/gin-gonic/gin"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/resilience"
)

// ResilienceHandler exposes circuit breaker and connection pool state.
type ResilienceHandler struct {
	registry *resilience.BreakerRegistry
	pool     *resilience.ConnPool
}

// NewResilienceHandler creates a resilience handler. Either dependency
// may be nil; the matching endpoints then report it as not configured.
func NewResilienceHandler(registry *resilience.BreakerRegistry, pool *resilience.ConnPool) *ResilienceHandler {
	return &ResilienceHandler{
		registry: registry,
		pool:     pool,
	}
}

// ListBreakers returns a snapshot of every created circuit breaker.
func (h *ResilienceHandler) ListBreakers(c *gin.Context) {
	if h.registry == nil {
		ErrorResponseFromError(c, errors.NewUnavailableError("breaker registry is not configured"))
		return
	}

	snapshots := h.registry.Snapshots()
	SuccessResponse(c, gin.H{
		"breakers": snapshots,
		"count":    len(snapshots),
	})
}

// ResetBreaker forces one breaker back to the closed state.
func (h *ResilienceHandler) ResetBreaker(c *gin.Context) {
	if h.registry == nil {
		ErrorResponseFromError(c, errors.NewUnavailableError("breaker registry is not configured"))
		return
	}

	name := c.Param("name")
	if !h.registry.Reset(name) {
		NotFoundResponse(c, "Circuit breaker not found")
		return
	}
	SuccessResponse(c, h.registry.Get(name).Snapshot())
}

// ResetAllBreakers forces every breaker back to the closed state.
func (h *ResilienceHandler) ResetAllBreakers(c *gin.Context) {
	if h.registry == nil {
		ErrorResponseFromError(c, errors.NewUnavailableError("breaker registry is not configured"))
		return
	}

	count := len(h.registry.Names())
	h.registry.ResetAll()
	SuccessResponse(c, gin.H{
		"reset": count,
	})
}

// PoolStats returns the managed connection pool counters.
func (h *ResilienceHandler) PoolStats(c *gin.Context) {
	if h.pool == nil {
		ErrorResponseFromError(c, errors.NewUnavailableError("connection pool is not configured"))
		return
	}
	SuccessResponse(c, h.pool.Stats())
}
