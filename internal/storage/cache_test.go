package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyString(t *testing.T) {
	assert.Equal(t, "monitor_recent:database", cacheKey{Prefix: prefixRecent, ID: "database"}.String())
	assert.Equal(t, "monitor_latest:api", cacheKey{Prefix: prefixLatest, ID: "api"}.String())
}

func TestDefaultRecordCacheConfig(t *testing.T) {
	cfg := DefaultRecordCacheConfig()
	assert.Equal(t, 15*time.Minute, cfg.RecordTTL)
	assert.Equal(t, 50, cfg.MaxRecords)
}

func TestNewRecordCacheAppliesDefaults(t *testing.T) {
	cache := NewRecordCache(nil, nil)
	assert.Equal(t, DefaultRecordCacheConfig(), cache.config)
}
