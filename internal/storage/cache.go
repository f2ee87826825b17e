package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/pkg/errors"
)

// Cache key prefixes.
const (
	prefixRecent = "monitor_recent"
	prefixLatest = "monitor_latest"
)

// cacheKey builds namespaced cache keys.
type cacheKey struct {
	Prefix string
	ID     string
}

// String returns the formatted cache key.
func (k cacheKey) String() string {
	return fmt.Sprintf("%s:%s", k.Prefix, k.ID)
}

// RecordCacheConfig tunes the Redis hot cache.
type RecordCacheConfig struct {
	// RecordTTL bounds how long cached entries outlive the last write.
	RecordTTL time.Duration `json:"record_ttl"`
	// MaxRecords caps the per-source recent list length.
	MaxRecords int `json:"max_records"`
}

// DefaultRecordCacheConfig returns the default cache tuning.
func DefaultRecordCacheConfig() *RecordCacheConfig {
	return &RecordCacheConfig{
		RecordTTL:  15 * time.Minute,
		MaxRecords: 50,
	}
}

// RecordCache keeps the most recent monitoring records per source in
// Redis so hot read paths skip PostgreSQL. Each source has a capped
// list of recent records, newest first, plus a latest snapshot key.
type RecordCache struct {
	redis  *RedisClient
	config *RecordCacheConfig
}

// NewRecordCache creates a record cache on redis.
func NewRecordCache(redis *RedisClient, config *RecordCacheConfig) *RecordCache {
	if config == nil {
		config = DefaultRecordCacheConfig()
	}

	return &RecordCache{
		redis:  redis,
		config: config,
	}
}

// StoreRecord pushes a record onto the source's recent list and
// refreshes the latest snapshot.
func (c *RecordCache) StoreRecord(ctx context.Context, record *monitoring.MonitoringRecord) error {
	if record == nil || record.Source == "" {
		return errors.NewValidationError("monitoring record with a source is required")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return errors.NewInternalError("failed to serialize monitoring record").WithCause(err)
	}

	key := cacheKey{Prefix: prefixRecent, ID: record.Source}.String()
	if err := c.redis.LPush(ctx, key, string(data)); err != nil {
		return err
	}
	if err := c.redis.LTrim(ctx, key, 0, int64(c.config.MaxRecords-1)); err != nil {
		return err
	}
	if err := c.redis.Expire(ctx, key, c.config.RecordTTL); err != nil {
		return err
	}

	latest := cacheKey{Prefix: prefixLatest, ID: record.Source}.String()
	return c.redis.Set(ctx, latest, string(data), c.config.RecordTTL)
}

// RecentRecords returns up to limit cached records for a source,
// newest first. An empty list is a not-found error.
func (c *RecordCache) RecentRecords(ctx context.Context, source string, limit int) ([]*monitoring.MonitoringRecord, error) {
	if source == "" {
		return nil, errors.NewValidationError("source is required")
	}
	if limit <= 0 || limit > c.config.MaxRecords {
		limit = c.config.MaxRecords
	}

	key := cacheKey{Prefix: prefixRecent, ID: source}.String()
	items, err := c.redis.LRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.NewNotFoundError("cached records")
	}

	records := make([]*monitoring.MonitoringRecord, 0, len(items))
	for _, item := range items {
		var record monitoring.MonitoringRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, errors.NewInternalError("failed to parse cached record").WithCause(err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// LatestRecord returns the newest cached record for a source.
func (c *RecordCache) LatestRecord(ctx context.Context, source string) (*monitoring.MonitoringRecord, error) {
	if source == "" {
		return nil, errors.NewValidationError("source is required")
	}

	key := cacheKey{Prefix: prefixLatest, ID: source}.String()
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var record monitoring.MonitoringRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, errors.NewInternalError("failed to parse cached record").WithCause(err)
	}

	return &record, nil
}

// StoreRecent replaces the cached list for a source with records
// ordered newest first, refreshing the latest snapshot along the way.
func (c *RecordCache) StoreRecent(ctx context.Context, source string, records []*monitoring.MonitoringRecord) error {
	if source == "" {
		return errors.NewValidationError("source is required")
	}

	key := cacheKey{Prefix: prefixRecent, ID: source}.String()
	if _, err := c.redis.Del(ctx, key); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	// LPush leaves the last pushed value at the head, so push oldest
	// first to keep the newest record at index 0.
	values := make([]interface{}, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		data, err := json.Marshal(records[i])
		if err != nil {
			return errors.NewInternalError("failed to serialize monitoring record").WithCause(err)
		}
		values = append(values, string(data))
	}

	if err := c.redis.LPush(ctx, key, values...); err != nil {
		return err
	}
	if err := c.redis.LTrim(ctx, key, 0, int64(c.config.MaxRecords-1)); err != nil {
		return err
	}
	if err := c.redis.Expire(ctx, key, c.config.RecordTTL); err != nil {
		return err
	}

	data, err := json.Marshal(records[0])
	if err != nil {
		return errors.NewInternalError("failed to serialize monitoring record").WithCause(err)
	}

	latest := cacheKey{Prefix: prefixLatest, ID: source}.String()
	return c.redis.Set(ctx, latest, string(data), c.config.RecordTTL)
}
