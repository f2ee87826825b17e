package monitoring

import (
	"context"
	"time"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/health"
)

// MonitoringRecord is one persisted check outcome for a source.
type MonitoringRecord struct {
	ID           string                 `json:"id" db:"id"`
	Source       string                 `json:"source" db:"source"`
	Status       health.Status          `json:"status" db:"status"`
	Message      string                 `json:"message,omitempty" db:"message"`
	ResponseTime time.Duration          `json:"response_time" db:"response_time"`
	Metrics      map[string]float64     `json:"metrics,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp" db:"timestamp"`
}

// RecordFilter narrows a monitoring record query. Zero values mean
// "any"; Limit 0 lets the store apply its own cap.
type RecordFilter struct {
	Source string
	Status health.Status
	Start  time.Time
	End    time.Time
	Limit  int
}

// AlertFilter narrows an alert query.
type AlertFilter struct {
	Source   string
	Severity alerting.Severity
	Resolved *bool
	Start    time.Time
	End      time.Time
	Limit    int
}

// SourceConfig is the persisted per-source monitoring configuration.
type SourceConfig struct {
	Source        string        `json:"source" db:"source"`
	Enabled       bool          `json:"enabled" db:"enabled"`
	Interval      time.Duration `json:"interval" db:"interval"`
	RetentionDays int           `json:"retention_days" db:"retention_days"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Store is the persistence contract for monitoring data. It subsumes
// alerting.Store so one backend serves both the aggregator and the
// alert engine.
type Store interface {
	// SaveMonitoringRecord persists a check outcome and returns its id.
	SaveMonitoringRecord(ctx context.Context, record *MonitoringRecord) (string, error)
	// GetMonitoringRecords returns matching records ordered by timestamp,
	// newest first.
	GetMonitoringRecords(ctx context.Context, filter RecordFilter) ([]*MonitoringRecord, error)

	SaveAlert(ctx context.Context, alert *alerting.Alert) error
	// ResolveAlert marks an alert resolved and stamps the resolution time.
	ResolveAlert(ctx context.Context, id string) error
	GetAlerts(ctx context.Context, filter AlertFilter) ([]*alerting.Alert, error)

	SaveAlertRule(ctx context.Context, rule *alerting.Rule) error
	DeleteAlertRule(ctx context.Context, id string) error
	GetAlertRules(ctx context.Context, source string) ([]*alerting.Rule, error)

	SaveSilence(ctx context.Context, silence *alerting.SilenceConfig) error
	DeleteSilence(ctx context.Context, id string) error
	GetSilences(ctx context.Context) ([]*alerting.SilenceConfig, error)

	SaveMonitoringConfig(ctx context.Context, config *SourceConfig) error
	// GetMonitoringConfig returns the stored config for a source, or a
	// not-found error when none exists.
	GetMonitoringConfig(ctx context.Context, source string) (*SourceConfig, error)

	// GetMetricSeries returns up to limit values of one metric for a
	// source, oldest first, for anomaly detection.
	GetMetricSeries(ctx context.Context, source, metric string, limit int) ([]float64, error)

	// CleanupExpiredData removes records and resolved alerts older than
	// each source's retention window and returns how many rows went away.
	CleanupExpiredData(ctx context.Context) (int64, error)
}
