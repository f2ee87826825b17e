package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/internal/storage"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/config"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
	"github.com/audiocove/audiocove-monitoring/pkg/resilience"
	"github.com/audiocove/audiocove-monitoring/pkg/tracing"
)

const serviceVersion = "1.0.0"

// NewRouter creates and configures the API router. db, redis, store,
// registry, pool, m and tracer may each be nil; the endpoints and
// middleware they back then degrade instead of failing.
func NewRouter(
	cfg *config.Config,
	db *storage.DB,
	redis *storage.RedisClient,
	store monitoring.Store,
	monitors *monitoring.Service,
	engine *alerting.Engine,
	registry *resilience.BreakerRegistry,
	pool *resilience.ConnPool,
	m *metrics.Metrics,
	tracer *tracing.TracingService,
) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	logger := logging.GetLogger()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(ErrorHandlingMiddleware())
	router.Use(corsMiddleware())
	router.Use(SecurityHeadersMiddleware())
	if tracer != nil {
		router.Use(tracer.TracingMiddleware())
	}
	if m != nil {
		router.Use(m.PrometheusMiddleware())
	}
	router.Use(RateLimitMiddleware(redis, logger))

	healthHandler := NewHealthHandler(db, redis)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/live", healthHandler.Live)
	router.GET("/health/ready", healthHandler.Ready)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	router.GET("/api/v1", func(c *gin.Context) {
		SuccessResponse(c, map[string]interface{}{
			"name":    "AudioCove Monitoring API",
			"version": serviceVersion,
			"status":  "ok",
		})
	})

	monitorHandler := NewMonitorHandler(monitors)
	alertHandler := NewAlertHandler(store, engine)
	resilienceHandler := NewResilienceHandler(registry, pool)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/monitors", monitorHandler.ListMonitors)
		v1.GET("/monitors/:name", monitorHandler.GetMonitor)
		v1.GET("/monitors/:name/trend", monitorHandler.GetTrend)
		v1.GET("/monitors/:name/history", monitorHandler.GetHistory)
		v1.GET("/health/aggregate", monitorHandler.AggregateHealth)

		v1.GET("/alerts", alertHandler.ListAlerts)
		v1.GET("/alert-rules", alertHandler.ListRules)
		v1.GET("/alert-rules/:id", alertHandler.GetRule)
		v1.GET("/silences", alertHandler.ListSilences)
		v1.GET("/anomalies/:source/:metric", alertHandler.GetAnomaly)

		v1.GET("/breakers", resilienceHandler.ListBreakers)
		v1.GET("/pool/stats", resilienceHandler.PoolStats)

		// Everything that changes state requires authentication.
		protected := v1.Group("")
		protected.Use(AuthMiddleware(cfg))
		{
			protected.POST("/monitors/:name/check", monitorHandler.TriggerCheck)
			protected.POST("/monitors/:name/recover", monitorHandler.TriggerRecovery)
			protected.PATCH("/monitors/:name", monitorHandler.UpdateMonitor)

			protected.POST("/alerts/:id/resolve", alertHandler.ResolveAlert)

			protected.POST("/alert-rules", alertHandler.CreateRule)
			protected.DELETE("/alert-rules/:id", alertHandler.DeleteRule)
			protected.POST("/alert-rules/:id/enable", alertHandler.EnableRule)
			protected.POST("/alert-rules/:id/disable", alertHandler.DisableRule)

			protected.POST("/silences", alertHandler.CreateSilence)
			protected.DELETE("/silences/:id", alertHandler.DeleteSilence)

			protected.POST("/breakers/reset", resilienceHandler.ResetAllBreakers)
			protected.POST("/breakers/:name/reset", resilienceHandler.ResetBreaker)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "Endpoint not found")
	})

	return router
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Request-ID")
	return cors.New(corsConfig)
}
