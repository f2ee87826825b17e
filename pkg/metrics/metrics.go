package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Health check metrics
	ChecksTotal         *prometheus.CounterVec
	CheckDuration       *prometheus.HistogramVec
	ConsecutiveFailures *prometheus.GaugeVec
	MonitorStatus       *prometheus.GaugeVec
	HealthScore         *prometheus.GaugeVec

	// Resilience metrics
	RetryAttempts      *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	BreakerRejections  *prometheus.CounterVec

	// Connection pool metrics
	PoolConnections     *prometheus.GaugeVec
	PoolAcquireDuration *prometheus.HistogramVec
	PoolAcquireTimeouts *prometheus.CounterVec

	// Alerting metrics
	AlertsTotal        *prometheus.CounterVec
	AlertsSilenced     *prometheus.CounterVec
	AnomaliesDetected  *prometheus.CounterVec
	RecoveryAttempts   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	NotificationDuration *prometheus.HistogramVec

	// Storage metrics
	DatabaseQueryDuration  *prometheus.HistogramVec
	CacheOperationDuration *prometheus.HistogramVec
	CacheHitRatio          *prometheus.GaugeVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "audiocove",
		Subsystem: "monitoring",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),

		// Health check metrics
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "checks_total",
				Help:      "Total number of health checks performed",
			},
			[]string{"monitor", "status"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "check_duration_seconds",
				Help:      "Health check duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"monitor"},
		),
		ConsecutiveFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "consecutive_failures",
				Help:      "Number of consecutive failed checks per monitor",
			},
			[]string{"monitor"},
		),
		MonitorStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "monitor_status",
				Help:      "Monitor status (0=healthy, 1=degraded, 2=unhealthy)",
			},
			[]string{"monitor"},
		),
		HealthScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "health_score",
				Help:      "Aggregated system health score from 0 to 100",
			},
			[]string{"scope"},
		),

		// Resilience metrics
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation", "outcome"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"breaker", "from", "to"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"breaker"},
		),
		BreakerRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "breaker_rejections_total",
				Help:      "Total number of calls rejected by an open circuit breaker",
			},
			[]string{"breaker"},
		),

		// Connection pool metrics
		PoolConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "pool_connections",
				Help:      "Number of pooled connections by state",
			},
			[]string{"pool", "state"},
		),
		PoolAcquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "pool_acquire_duration_seconds",
				Help:      "Time spent acquiring a pooled connection",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
			},
			[]string{"pool"},
		),
		PoolAcquireTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "pool_acquire_timeouts_total",
				Help:      "Total number of pool acquisitions that timed out",
			},
			[]string{"pool"},
		),

		// Alerting metrics
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "alerts_total",
				Help:      "Total number of alerts raised",
			},
			[]string{"severity", "source"},
		),
		AlertsSilenced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "alerts_silenced_total",
				Help:      "Total number of alerts suppressed by silences",
			},
			[]string{"source"},
		),
		AnomaliesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "anomalies_detected_total",
				Help:      "Total number of statistical anomalies detected",
			},
			[]string{"metric", "direction"},
		),
		RecoveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "recovery_attempts_total",
				Help:      "Total number of automated recovery attempts",
			},
			[]string{"monitor", "action", "status"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "notifications_total",
				Help:      "Total number of notification deliveries",
			},
			[]string{"channel", "status"},
		),
		NotificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "notification_duration_seconds",
				Help:      "Notification delivery duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"channel", "status"},
		),

		// Storage metrics
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "database_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation", "table"},
		),
		CacheOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation", "cache_type"},
		),
		CacheHitRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_hit_ratio",
				Help:      "Cache hit ratio",
			},
			[]string{"cache_type"},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"component", "error_type"},
		),
		PanicsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "panics_total",
				Help:      "Total number of panics",
			},
			[]string{"component"},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ChecksTotal,
		m.CheckDuration,
		m.ConsecutiveFailures,
		m.MonitorStatus,
		m.HealthScore,
		m.RetryAttempts,
		m.BreakerTransitions,
		m.BreakerState,
		m.BreakerRejections,
		m.PoolConnections,
		m.PoolAcquireDuration,
		m.PoolAcquireTimeouts,
		m.AlertsTotal,
		m.AlertsSilenced,
		m.AnomaliesDetected,
		m.RecoveryAttempts,
		m.NotificationsTotal,
		m.NotificationDuration,
		m.DatabaseQueryDuration,
		m.CacheOperationDuration,
		m.CacheHitRatio,
		m.ErrorsTotal,
		m.PanicsTotal,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordCheck records a single health check result
func (m *Metrics) RecordCheck(monitor, status string, duration time.Duration) {
	if m.ChecksTotal == nil {
		return
	}

	m.ChecksTotal.WithLabelValues(monitor, status).Inc()
	m.CheckDuration.WithLabelValues(monitor).Observe(duration.Seconds())
}

// UpdateConsecutiveFailures updates the consecutive failure gauge for a monitor
func (m *Metrics) UpdateConsecutiveFailures(monitor string, count int) {
	if m.ConsecutiveFailures == nil {
		return
	}

	m.ConsecutiveFailures.WithLabelValues(monitor).Set(float64(count))
}

// UpdateMonitorStatus updates the status gauge for a monitor
func (m *Metrics) UpdateMonitorStatus(monitor string, status string) {
	if m.MonitorStatus == nil {
		return
	}

	var value float64
	switch status {
	case "healthy":
		value = 0
	case "degraded":
		value = 1
	default:
		value = 2
	}
	m.MonitorStatus.WithLabelValues(monitor).Set(value)
}

// UpdateHealthScore updates the aggregated health score gauge
func (m *Metrics) UpdateHealthScore(scope string, score float64) {
	if m.HealthScore == nil {
		return
	}

	m.HealthScore.WithLabelValues(scope).Set(score)
}

// RecordRetryAttempt records a retry attempt outcome
func (m *Metrics) RecordRetryAttempt(operation, outcome string) {
	if m.RetryAttempts == nil {
		return
	}

	m.RetryAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(breaker, from, to string) {
	if m.BreakerTransitions == nil {
		return
	}

	m.BreakerTransitions.WithLabelValues(breaker, from, to).Inc()
	m.updateBreakerState(breaker, to)
}

func (m *Metrics) updateBreakerState(breaker, state string) {
	if m.BreakerState == nil {
		return
	}

	var value float64
	switch state {
	case "closed":
		value = 0
	case "half_open":
		value = 1
	default:
		value = 2
	}
	m.BreakerState.WithLabelValues(breaker).Set(value)
}

// RecordBreakerRejection records a call rejected by an open breaker
func (m *Metrics) RecordBreakerRejection(breaker string) {
	if m.BreakerRejections == nil {
		return
	}

	m.BreakerRejections.WithLabelValues(breaker).Inc()
}

// UpdatePoolConnections updates pool state gauges
func (m *Metrics) UpdatePoolConnections(pool string, active, idle, waiting int) {
	if m.PoolConnections == nil {
		return
	}

	m.PoolConnections.WithLabelValues(pool, "active").Set(float64(active))
	m.PoolConnections.WithLabelValues(pool, "idle").Set(float64(idle))
	m.PoolConnections.WithLabelValues(pool, "waiting").Set(float64(waiting))
}

// RecordPoolAcquire records how long a connection acquisition took
func (m *Metrics) RecordPoolAcquire(pool string, duration time.Duration) {
	if m.PoolAcquireDuration == nil {
		return
	}

	m.PoolAcquireDuration.WithLabelValues(pool).Observe(duration.Seconds())
}

// RecordPoolAcquireTimeout records an acquisition that gave up waiting
func (m *Metrics) RecordPoolAcquireTimeout(pool string) {
	if m.PoolAcquireTimeouts == nil {
		return
	}

	m.PoolAcquireTimeouts.WithLabelValues(pool).Inc()
}

// RecordAlert records a raised alert
func (m *Metrics) RecordAlert(severity, source string) {
	if m.AlertsTotal == nil {
		return
	}

	m.AlertsTotal.WithLabelValues(severity, source).Inc()
}

// RecordSilencedAlert records an alert suppressed by a silence
func (m *Metrics) RecordSilencedAlert(source string) {
	if m.AlertsSilenced == nil {
		return
	}

	m.AlertsSilenced.WithLabelValues(source).Inc()
}

// RecordAnomaly records a detected statistical anomaly
func (m *Metrics) RecordAnomaly(metric, direction string) {
	if m.AnomaliesDetected == nil {
		return
	}

	m.AnomaliesDetected.WithLabelValues(metric, direction).Inc()
}

// RecordRecoveryAttempt records an automated recovery attempt
func (m *Metrics) RecordRecoveryAttempt(monitor, action, status string) {
	if m.RecoveryAttempts == nil {
		return
	}

	m.RecoveryAttempts.WithLabelValues(monitor, action, status).Inc()
}

// RecordNotification records a notification delivery attempt
func (m *Metrics) RecordNotification(channel, status string, duration time.Duration) {
	if m.NotificationsTotal == nil {
		return
	}

	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
	m.NotificationDuration.WithLabelValues(channel, status).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func (m *Metrics) RecordDatabaseQuery(operation, table string, duration time.Duration) {
	if m.DatabaseQueryDuration == nil {
		return
	}

	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordCacheOperation records cache operation metrics
func (m *Metrics) RecordCacheOperation(operation, cacheType string, duration time.Duration) {
	if m.CacheOperationDuration == nil {
		return
	}

	m.CacheOperationDuration.WithLabelValues(operation, cacheType).Observe(duration.Seconds())
}

// UpdateCacheHitRatio updates cache hit ratio metrics
func (m *Metrics) UpdateCacheHitRatio(cacheType string, ratio float64) {
	if m.CacheHitRatio == nil {
		return
	}

	m.CacheHitRatio.WithLabelValues(cacheType).Set(ratio)
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordPanic records panic metrics
func (m *Metrics) RecordPanic(component string) {
	if m.PanicsTotal == nil {
		return
	}

	m.PanicsTotal.WithLabelValues(component).Inc()
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.HTTPRequestsInFlight != nil {
			m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
			defer m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Dec()
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
