package storage

import (
	"context"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
)

// recordCache is the slice of RecordCache the cached store relies on.
type recordCache interface {
	StoreRecord(ctx context.Context, record *monitoring.MonitoringRecord) error
	RecentRecords(ctx context.Context, source string, limit int) ([]*monitoring.MonitoringRecord, error)
	LatestRecord(ctx context.Context, source string) (*monitoring.MonitoringRecord, error)
	StoreRecent(ctx context.Context, source string, records []*monitoring.MonitoringRecord) error
}

// CachedStore layers the Redis hot cache over another store. Writes go
// through to the backing store first; recent single-source reads are
// served from cache when possible. Cache failures never fail the
// underlying operation.
type CachedStore struct {
	monitoring.Store
	cache  recordCache
	logger *logging.Logger
}

// NewCachedStore wraps store with cache.
func NewCachedStore(store monitoring.Store, cache recordCache, logger *logging.Logger) *CachedStore {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &CachedStore{
		Store:  store,
		cache:  cache,
		logger: logger,
	}
}

// SaveMonitoringRecord persists the record and refreshes the cache.
func (s *CachedStore) SaveMonitoringRecord(ctx context.Context, record *monitoring.MonitoringRecord) (string, error) {
	id, err := s.Store.SaveMonitoringRecord(ctx, record)
	if err != nil {
		return "", err
	}

	if cacheErr := s.cache.StoreRecord(ctx, record); cacheErr != nil {
		s.logger.Debug("Failed to cache monitoring record",
			"source", record.Source, "error", cacheErr.Error())
	}

	return id, nil
}

// GetMonitoringRecords serves recent single-source queries from cache
// and falls back to the backing store, repopulating the cache on a
// miss.
func (s *CachedStore) GetMonitoringRecords(ctx context.Context, filter monitoring.RecordFilter) ([]*monitoring.MonitoringRecord, error) {
	if !cacheableRecordQuery(filter) {
		return s.Store.GetMonitoringRecords(ctx, filter)
	}

	if filter.Limit == 1 {
		if record, err := s.cache.LatestRecord(ctx, filter.Source); err == nil {
			return []*monitoring.MonitoringRecord{record}, nil
		}
	} else if records, err := s.cache.RecentRecords(ctx, filter.Source, filter.Limit); err == nil && len(records) >= filter.Limit {
		return records[:filter.Limit], nil
	}

	records, err := s.Store.GetMonitoringRecords(ctx, filter)
	if err != nil {
		return nil, err
	}

	if cacheErr := s.cache.StoreRecent(ctx, filter.Source, records); cacheErr != nil {
		s.logger.Debug("Failed to repopulate record cache",
			"source", filter.Source, "error", cacheErr.Error())
	}

	return records, nil
}

// cacheableRecordQuery reports whether the filter is a plain "recent
// records for one source" query the cache can answer. Queries with a
// status or time range, or without an explicit limit, always go to the
// backing store.
func cacheableRecordQuery(filter monitoring.RecordFilter) bool {
	return filter.Source != "" &&
		filter.Status == "" &&
		filter.Start.IsZero() &&
		filter.End.IsZero() &&
		filter.Limit > 0
}
