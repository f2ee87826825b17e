//go:build integration
// +build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/config"
	apperrors "github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/health"
	"github.com/audiocove/audiocove-monitoring/pkg/security"
)

// TestStorageIntegration exercises the store against live PostgreSQL
// and, when TEST_REDIS_HOST is set, a live Redis.
// Run with: go test -tags=integration ./internal/storage
func TestStorageIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}

	cfg := &config.DatabaseConfig{
		Host:            getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:            5432,
		Name:            getEnvOrDefault("TEST_DB_NAME", "audiocove_monitoring_test"),
		User:            getEnvOrDefault("TEST_DB_USER", "audiocove"),
		Password:        getEnvOrDefault("TEST_DB_PASSWORD", "audiocove_dev_password"),
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	migrator, err := NewMigrator(cfg, "../../migrations")
	require.NoError(t, err, "failed to create migrator")
	require.NoError(t, migrator.Up(), "failed to run migrations")
	migrator.Close()

	db, err := NewDB(cfg)
	require.NoError(t, err, "failed to connect to database")
	defer db.Close()

	require.NoError(t, db.Health(context.Background()))

	store := NewPostgresStore(db, &PostgresStoreConfig{
		DefaultRetentionDays: 30,
		Crypto:               security.NewEncryptionService("integration-test-key"),
	})

	t.Run("MonitoringRecords", func(t *testing.T) { testMonitoringRecords(t, store) })
	t.Run("Alerts", func(t *testing.T) { testAlerts(t, store) })
	t.Run("AlertRules", func(t *testing.T) { testAlertRules(t, store) })
	t.Run("Silences", func(t *testing.T) { testSilences(t, store) })
	t.Run("MonitoringConfigs", func(t *testing.T) { testMonitoringConfigs(t, store) })
	t.Run("MetricSeries", func(t *testing.T) { testMetricSeries(t, store) })
	t.Run("Cleanup", func(t *testing.T) { testCleanup(t, store) })
	t.Run("NotificationChannels", func(t *testing.T) { testNotificationChannels(t, db, store) })

	if os.Getenv("TEST_REDIS_HOST") != "" {
		t.Run("RecordCache", testRecordCache)
		t.Run("CachedStore", testCachedStoreWithRedis)
	}
}

func testSource(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

func testMonitoringRecords(t *testing.T, store *PostgresStore) {
	ctx := context.Background()
	source := testSource("records")
	base := time.Now().UTC().Truncate(time.Millisecond)

	statuses := []health.Status{health.StatusHealthy, health.StatusDegraded, health.StatusUnhealthy}
	for i, status := range statuses {
		id, err := store.SaveMonitoringRecord(ctx, &monitoring.MonitoringRecord{
			Source:       source,
			Status:       status,
			Message:      "check outcome",
			ResponseTime: time.Duration(i+1) * 100 * time.Millisecond,
			Metrics:      map[string]float64{"latency_ms": float64((i + 1) * 100)},
			Metadata:     map[string]interface{}{"attempt": float64(i)},
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	records, err := store.GetMonitoringRecords(ctx, monitoring.RecordFilter{Source: source})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, health.StatusUnhealthy, records[0].Status)
	assert.Equal(t, health.StatusHealthy, records[2].Status)
	assert.Equal(t, 300*time.Millisecond, records[0].ResponseTime)
	assert.Equal(t, map[string]float64{"latency_ms": 300}, records[0].Metrics)

	records, err = store.GetMonitoringRecords(ctx, monitoring.RecordFilter{Source: source, Status: health.StatusDegraded})
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = store.GetMonitoringRecords(ctx, monitoring.RecordFilter{
		Source: source,
		Start:  base.Add(30 * time.Second),
		End:    base.Add(90 * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, health.StatusDegraded, records[0].Status)

	records, err = store.GetMonitoringRecords(ctx, monitoring.RecordFilter{Source: source, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func testAlerts(t *testing.T, store *PostgresStore) {
	ctx := context.Background()
	source := testSource("alerts")

	alert := &alerting.Alert{
		Title:    "Database latency",
		Message:  "latency_ms gt is 512.00 (critical threshold 100.00)",
		Severity: alerting.SeverityCritical,
		Source:   source,
		Metadata: map[string]interface{}{"metric": "latency_ms"},
	}
	require.NoError(t, store.SaveAlert(ctx, alert))
	require.NotEmpty(t, alert.ID)

	alerts, err := store.GetAlerts(ctx, monitoring.AlertFilter{Source: source})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Resolved)
	assert.Nil(t, alerts[0].ResolvedAt)

	require.NoError(t, store.ResolveAlert(ctx, alert.ID))

	resolved := true
	alerts, err = store.GetAlerts(ctx, monitoring.AlertFilter{Source: source, Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Resolved)
	require.NotNil(t, alerts[0].ResolvedAt)

	err = store.ResolveAlert(ctx, uuid.New().String())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func testAlertRules(t *testing.T, store *PostgresStore) {
	ctx := context.Background()
	source := testSource("rules")

	rule := &alerting.Rule{
		ID:     uuid.New().String(),
		Name:   "Latency threshold",
		Source: source,
		Condition: alerting.Condition{
			Metric:   "latency_ms",
			Operator: alerting.OperatorGT,
		},
		Threshold: 100,
		Duration:  30 * time.Second,
		Severity:  alerting.SeverityWarning,
		Enabled:   true,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.SaveAlertRule(ctx, rule))

	rules, err := store.GetAlertRules(ctx, source)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.Condition, rules[0].Condition)
	assert.Equal(t, 30*time.Second, rules[0].Duration)

	rule.Threshold = 250
	rule.Enabled = false
	require.NoError(t, store.SaveAlertRule(ctx, rule))

	rules, err = store.GetAlertRules(ctx, source)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, float64(250), rules[0].Threshold)
	assert.False(t, rules[0].Enabled)

	require.NoError(t, store.DeleteAlertRule(ctx, rule.ID))
	err = store.DeleteAlertRule(ctx, rule.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func testSilences(t *testing.T, store *PostgresStore) {
	ctx := context.Background()
	source := testSource("silences")

	silence := &alerting.SilenceConfig{
		ID:        uuid.New().String(),
		Enabled:   true,
		StartsAt:  time.Now().UTC().Truncate(time.Millisecond),
		Source:    source,
		Reason:    "planned maintenance",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.SaveSilence(ctx, silence))

	silences, err := store.GetSilences(ctx)
	require.NoError(t, err)

	var found *alerting.SilenceConfig
	for _, s := range silences {
		if s.ID == silence.ID {
			found = s
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.EndsAt.IsZero())
	assert.Equal(t, "planned maintenance", found.Reason)

	silence.EndsAt = silence.StartsAt.Add(4 * time.Hour)
	require.NoError(t, store.SaveSilence(ctx, silence))

	silences, err = store.GetSilences(ctx)
	require.NoError(t, err)
	for _, s := range silences {
		if s.ID == silence.ID {
			assert.Equal(t, silence.EndsAt, s.EndsAt)
		}
	}

	require.NoError(t, store.DeleteSilence(ctx, silence.ID))
	err = store.DeleteSilence(ctx, silence.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func testMonitoringConfigs(t *testing.T, store *PostgresStore) {
	ctx := context.Background()
	source := testSource("configs")

	_, err := store.GetMonitoringConfig(ctx, source)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	cfg := &monitoring.SourceConfig{
		Source:        source,
		Enabled:       true,
		Interval:      45 * time.Second,
		RetentionDays: 14,
	}
	require.NoError(t, store.SaveMonitoringConfig(ctx, cfg))

	stored, err := store.GetMonitoringConfig(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, stored.Interval)
	assert.Equal(t, 14, stored.RetentionDays)
	assert.True(t, stored.Enabled)

	cfg.Enabled = false
	require.NoError(t, store.SaveMonitoringConfig(ctx, cfg))

	stored, err = store.GetMonitoringConfig(ctx, source)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

func testMetricSeries(t *testing.T, store *PostgresStore) {
	ctx := context.Background()
	source := testSource("series")
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, err := store.SaveMonitoringRecord(ctx, &monitoring.MonitoringRecord{
			Source:    source,
			Status:    health.StatusHealthy,
			Metrics:   map[string]float64{"latency_ms": float64(100 + i*10)},
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	values, err := store.GetMetricSeries(ctx, source, "latency_ms", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 110, 120, 130, 140}, values)

	values, err = store.GetMetricSeries(ctx, source, "latency_ms", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{120, 130, 140}, values)

	values, err = store.GetMetricSeries(ctx, source, "missing_metric", 10)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func testCleanup(t *testing.T, store *PostgresStore) {
	ctx := context.Background()
	shortRetention := testSource("cleanup-short")
	defaultRetention := testSource("cleanup-default")

	require.NoError(t, store.SaveMonitoringConfig(ctx, &monitoring.SourceConfig{
		Source:        shortRetention,
		Enabled:       true,
		Interval:      time.Minute,
		RetentionDays: 1,
	}))

	// Expired under the per-source window.
	_, err := store.SaveMonitoringRecord(ctx, &monitoring.MonitoringRecord{
		Source:    shortRetention,
		Status:    health.StatusHealthy,
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	// Fresh for the same source.
	_, err = store.SaveMonitoringRecord(ctx, &monitoring.MonitoringRecord{
		Source:    shortRetention,
		Status:    health.StatusHealthy,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	// Expired under the store default window.
	_, err = store.SaveMonitoringRecord(ctx, &monitoring.MonitoringRecord{
		Source:    defaultRetention,
		Status:    health.StatusHealthy,
		Timestamp: time.Now().UTC().Add(-40 * 24 * time.Hour),
	})
	require.NoError(t, err)

	removed, err := store.CleanupExpiredData(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(2))

	records, err := store.GetMonitoringRecords(ctx, monitoring.RecordFilter{Source: shortRetention})
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = store.GetMonitoringRecords(ctx, monitoring.RecordFilter{Source: defaultRetention})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testNotificationChannels(t *testing.T, db *DB, store *PostgresStore) {
	ctx := context.Background()
	name := testSource("slack-ops")

	channel := &NotificationChannel{
		Name:        name,
		Type:        "slack",
		MinSeverity: alerting.SeverityWarning,
		Settings: map[string]string{
			"webhook_url": "https://hooks.example.com/T0/B0/secret",
			"channel":     "#ops",
		},
		Enabled: true,
	}
	require.NoError(t, store.SaveNotificationChannel(ctx, channel))
	require.NotEmpty(t, channel.ID)

	// Settings must not be readable straight off the table.
	var raw string
	require.NoError(t, db.GetContext(ctx, &raw, `SELECT settings FROM notification_channels WHERE id = $1`, channel.ID))
	assert.NotContains(t, raw, "hooks.example.com")

	channels, err := store.GetNotificationChannels(ctx)
	require.NoError(t, err)

	var stored *NotificationChannel
	for _, c := range channels {
		if c.ID == channel.ID {
			stored = c
		}
	}
	require.NotNil(t, stored)
	assert.Equal(t, channel.Settings, stored.Settings)
	assert.Equal(t, alerting.SeverityWarning, stored.MinSeverity)

	channel.Settings["channel"] = "#ops-alerts"
	require.NoError(t, store.SaveNotificationChannel(ctx, channel))

	channels, err = store.GetNotificationChannels(ctx)
	require.NoError(t, err)
	matches := 0
	for _, c := range channels {
		if c.Name == name {
			matches++
			assert.Equal(t, "#ops-alerts", c.Settings["channel"])
		}
	}
	assert.Equal(t, 1, matches)

	require.NoError(t, store.DeleteNotificationChannel(ctx, channel.ID))
	err = store.DeleteNotificationChannel(ctx, channel.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func newTestRedis(t *testing.T) *RedisClient {
	t.Helper()

	client, err := NewRedisClient(&config.RedisConfig{
		Host:     getEnvOrDefault("TEST_REDIS_HOST", "localhost"),
		Port:     6379,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
		DB:       15,
		PoolSize: 5,
	})
	require.NoError(t, err, "failed to connect to Redis")
	t.Cleanup(func() { client.Close() })

	return client
}

func testRecordCache(t *testing.T) {
	ctx := context.Background()
	redis := newTestRedis(t)
	cache := NewRecordCache(redis, &RecordCacheConfig{RecordTTL: time.Minute, MaxRecords: 2})
	source := testSource("cache")

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, cache.StoreRecord(ctx, &monitoring.MonitoringRecord{
			ID:        uuid.New().String(),
			Source:    source,
			Status:    health.StatusHealthy,
			Metrics:   map[string]float64{"latency_ms": float64(i)},
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	// MaxRecords caps the list at the two newest entries.
	records, err := cache.RecentRecords(ctx, source, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, float64(2), records[0].Metrics["latency_ms"])
	assert.Equal(t, float64(1), records[1].Metrics["latency_ms"])

	latest, err := cache.LatestRecord(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, float64(2), latest.Metrics["latency_ms"])

	ttl, err := redis.TTL(ctx, cacheKey{Prefix: prefixRecent, ID: source}.String())
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = cache.RecentRecords(ctx, testSource("cache-empty"), 10)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = cache.LatestRecord(ctx, testSource("cache-empty"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func testCachedStoreWithRedis(t *testing.T) {
	ctx := context.Background()
	redis := newTestRedis(t)
	cache := NewRecordCache(redis, DefaultRecordCacheConfig())
	backing := &fakeBackingStore{}
	store := NewCachedStore(backing, cache, nil)
	source := testSource("cached")

	for i := 0; i < 3; i++ {
		_, err := store.SaveMonitoringRecord(ctx, &monitoring.MonitoringRecord{
			Source:    source,
			Status:    health.StatusHealthy,
			Metrics:   map[string]float64{"latency_ms": float64(i)},
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	records, err := store.GetMonitoringRecords(ctx, monitoring.RecordFilter{Source: source, Limit: 2})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, float64(2), records[0].Metrics["latency_ms"])

	// The write-through cache serves the read without touching the
	// backing store.
	assert.Equal(t, 0, backing.getCalls)
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
