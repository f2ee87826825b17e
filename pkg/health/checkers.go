package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audiocove/audiocove-monitoring/pkg/resilience"
)

// Pinger is the minimal surface of a SQL database handle
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DatabaseChecker probes a SQL database with a ping
type DatabaseChecker struct {
	db        Pinger
	warnAfter time.Duration
}

// NewDatabaseChecker creates a database health checker. Pings slower
// than warnAfter degrade the check instead of passing it.
func NewDatabaseChecker(db Pinger, warnAfter time.Duration) *DatabaseChecker {
	if warnAfter <= 0 {
		warnAfter = time.Second
	}
	return &DatabaseChecker{db: db, warnAfter: warnAfter}
}

// Check probes the database
func (dc *DatabaseChecker) Check(ctx context.Context) *CheckResult {
	start := time.Now()
	result := &CheckResult{Timestamp: start}

	if dc.db == nil {
		result.Status = CheckFail
		result.Message = "database connection is nil"
		result.Duration = time.Since(start)
		return result
	}

	if err := dc.db.PingContext(ctx); err != nil {
		result.Status = CheckFail
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	result.Duration = time.Since(start)
	result.Metrics = map[string]float64{
		"response_time_ms": float64(result.Duration.Milliseconds()),
	}

	if result.Duration > dc.warnAfter {
		result.Status = CheckWarn
		result.Message = fmt.Sprintf("database ping took %s", result.Duration)
	} else {
		result.Status = CheckPass
		result.Message = "database is healthy"
	}
	return result
}

// RedisChecker probes a Redis server
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis health checker
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Check probes Redis and reports client pool counters
func (rc *RedisChecker) Check(ctx context.Context) *CheckResult {
	start := time.Now()
	result := &CheckResult{Timestamp: start}

	if rc.client == nil {
		result.Status = CheckFail
		result.Message = "redis client is nil"
		result.Duration = time.Since(start)
		return result
	}

	if err := rc.client.Ping(ctx).Err(); err != nil {
		result.Status = CheckFail
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	stats := rc.client.PoolStats()
	result.Status = CheckPass
	result.Message = "redis is healthy"
	result.Duration = time.Since(start)
	result.Metrics = map[string]float64{
		"response_time_ms": float64(result.Duration.Milliseconds()),
		"total_conns":      float64(stats.TotalConns),
		"idle_conns":       float64(stats.IdleConns),
		"stale_conns":      float64(stats.StaleConns),
	}
	return result
}

// HTTPChecker probes an HTTP endpoint and maps the status class to a
// check outcome: 2xx pass, 5xx fail, anything else warn
type HTTPChecker struct {
	url    string
	client *http.Client
}

// NewHTTPChecker creates an HTTP health checker
func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Check probes the endpoint
func (hc *HTTPChecker) Check(ctx context.Context) *CheckResult {
	start := time.Now()
	result := &CheckResult{Timestamp: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.url, nil)
	if err != nil {
		result.Status = CheckFail
		result.Message = fmt.Sprintf("failed to create request: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		result.Status = CheckFail
		result.Message = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Duration = time.Since(start)
	result.Metrics = map[string]float64{
		"response_time_ms": float64(result.Duration.Milliseconds()),
		"status_code":      float64(resp.StatusCode),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Status = CheckPass
		result.Message = "endpoint is healthy"
	case resp.StatusCode >= 500:
		result.Status = CheckFail
		result.Message = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	default:
		result.Status = CheckWarn
		result.Message = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	return result
}

// healthEnvelope is the response shape of a remote monitoring endpoint
type healthEnvelope struct {
	Status   string             `json:"status"`
	Services map[string]string  `json:"services,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// EnvelopeChecker probes a remote health endpoint that reports an
// overall status plus per-service statuses and metrics
type EnvelopeChecker struct {
	url    string
	client *http.Client
}

// NewEnvelopeChecker creates a health-envelope checker
func NewEnvelopeChecker(url string, timeout time.Duration) *EnvelopeChecker {
	return &EnvelopeChecker{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Check fetches and interprets the remote health envelope
func (ec *EnvelopeChecker) Check(ctx context.Context) *CheckResult {
	start := time.Now()
	result := &CheckResult{Timestamp: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ec.url, nil)
	if err != nil {
		result.Status = CheckFail
		result.Message = fmt.Sprintf("failed to create request: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	resp, err := ec.client.Do(req)
	if err != nil {
		result.Status = CheckFail
		result.Message = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	var envelope healthEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		result.Status = CheckFail
		result.Message = fmt.Sprintf("invalid health response: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Duration = time.Since(start)
	result.Metrics = envelope.Metrics

	switch Status(envelope.Status) {
	case StatusHealthy:
		result.Status = CheckPass
	case StatusDegraded:
		result.Status = CheckWarn
	default:
		result.Status = CheckFail
	}
	result.Message = fmt.Sprintf("remote reports %s", envelope.Status)

	if len(envelope.Services) > 0 {
		result.Metadata = make(map[string]interface{}, len(envelope.Services))
		for service, status := range envelope.Services {
			result.Metadata[service] = status
		}
	}
	return result
}

// PooledConnChecker exercises a connection pool end to end: it acquires
// a connection, which validates it with a ping, and releases it
type PooledConnChecker struct {
	pool *resilience.ConnPool
}

// NewPooledConnChecker creates a checker that probes through the pool
func NewPooledConnChecker(pool *resilience.ConnPool) *PooledConnChecker {
	return &PooledConnChecker{pool: pool}
}

// Check acquires and releases one pooled connection
func (pc *PooledConnChecker) Check(ctx context.Context) *CheckResult {
	start := time.Now()
	result := &CheckResult{Timestamp: start}

	conn, err := pc.pool.Acquire(ctx)
	if err != nil {
		result.Status = CheckFail
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	conn.Release(nil)

	result.Status = CheckPass
	result.Message = "pool connection is healthy"
	result.Duration = time.Since(start)
	result.Metrics = map[string]float64{
		"acquire_time_ms": float64(result.Duration.Milliseconds()),
	}
	return result
}

// PoolUtilizationChecker watches a pool's own saturation
type PoolUtilizationChecker struct {
	pool      *resilience.ConnPool
	warnRatio float64
}

// NewPoolUtilizationChecker creates a self-probe over pool stats. The
// check degrades when active connections exceed warnRatio of capacity
// and fails when acquirers are queued.
func NewPoolUtilizationChecker(pool *resilience.ConnPool, warnRatio float64) *PoolUtilizationChecker {
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = 0.8
	}
	return &PoolUtilizationChecker{pool: pool, warnRatio: warnRatio}
}

// Check inspects pool statistics
func (pu *PoolUtilizationChecker) Check(ctx context.Context) *CheckResult {
	start := time.Now()
	stats := pu.pool.Stats()

	utilization := 0.0
	if stats.MaxSize > 0 {
		utilization = float64(stats.Active) / float64(stats.MaxSize)
	}

	result := &CheckResult{
		Timestamp: start,
		Duration:  time.Since(start),
		Metrics: map[string]float64{
			"active":      float64(stats.Active),
			"idle":        float64(stats.Idle),
			"waiting":     float64(stats.Waiting),
			"utilization": utilization,
		},
	}

	switch {
	case stats.Waiting > 0:
		result.Status = CheckFail
		result.Message = fmt.Sprintf("pool %s is exhausted with %d waiters", stats.Name, stats.Waiting)
	case utilization >= pu.warnRatio:
		result.Status = CheckWarn
		result.Message = fmt.Sprintf("pool %s is running low", stats.Name)
	default:
		result.Status = CheckPass
		result.Message = fmt.Sprintf("pool %s is healthy", stats.Name)
	}
	return result
}
