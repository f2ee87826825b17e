package alerting

import (
	"time"
)

// Severity indicates how urgent an alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityFatal    Severity = "fatal"
)

// Rank orders severities so that aggregation can pick the worst one.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	case SeverityFatal:
		return 4
	default:
		return 0
	}
}

// Operator selects how a rule compares a metric against its threshold.
type Operator string

const (
	// OperatorGT fires when the live metric is greater than the threshold.
	OperatorGT Operator = "gt"
	// OperatorLT fires when the live metric is less than the threshold.
	OperatorLT Operator = "lt"
	// OperatorEQ fires when the live metric equals the threshold.
	OperatorEQ Operator = "eq"
	// OperatorTrendUp fires when the metric's trend slope is greater than the threshold.
	OperatorTrendUp Operator = "trend_up"
	// OperatorTrendDown fires when the metric's trend slope is less than the threshold.
	OperatorTrendDown Operator = "trend_down"
)

// Condition names the metric a rule watches and the comparison it applies.
type Condition struct {
	Metric   string   `json:"metric" db:"metric"`
	Operator Operator `json:"operator" db:"operator"`
}

// Rule describes a threshold or trend check evaluated on every pass.
type Rule struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Source    string        `json:"source" db:"source"`
	Condition Condition     `json:"condition"`
	Threshold float64       `json:"threshold" db:"threshold"`
	Duration  time.Duration `json:"duration" db:"duration"`
	Severity  Severity      `json:"severity" db:"severity"`
	Enabled   bool          `json:"enabled" db:"enabled"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Alert is a fired rule violation, possibly synthesized from several.
type Alert struct {
	ID         string                 `json:"id" db:"id"`
	RuleID     string                 `json:"rule_id,omitempty" db:"rule_id"`
	Title      string                 `json:"title" db:"title"`
	Message    string                 `json:"message" db:"message"`
	Severity   Severity               `json:"severity" db:"severity"`
	Source     string                 `json:"source" db:"source"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Resolved   bool                   `json:"resolved" db:"resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty" db:"resolved_at"`
}

// AggregationStrategySeverity collapses a burst into one alert carrying
// the worst constituent severity. It is the only strategy implemented;
// unknown values fall back to it.
const AggregationStrategySeverity = "severity"

// AggregationConfig collapses alert storms on a single source into one
// synthetic alert. A window with more than MaxAlerts candidates produces
// a single alert carrying the constituent rule ids.
type AggregationConfig struct {
	Enabled    bool          `json:"enabled"`
	MaxAlerts  int           `json:"max_alerts"`
	TimeWindow time.Duration `json:"time_window"`
	Strategy   string        `json:"strategy,omitempty"`
}

// SilenceConfig suppresses matching alerts during its window. A silence
// matches on exact source, exact level, or a case-insensitive substring
// of the alert title and message.
type SilenceConfig struct {
	ID        string    `json:"id" db:"id"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	StartsAt  time.Time `json:"starts_at" db:"starts_at"`
	EndsAt    time.Time `json:"ends_at" db:"ends_at"`
	Source    string    `json:"source,omitempty" db:"source"`
	Level     Severity  `json:"level,omitempty" db:"level"`
	Pattern   string    `json:"pattern,omitempty" db:"pattern"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Active reports whether the silence applies at the given instant.
func (s *SilenceConfig) Active(now time.Time) bool {
	if s == nil || !s.Enabled {
		return false
	}
	if now.Before(s.StartsAt) {
		return false
	}
	if !s.EndsAt.IsZero() && now.After(s.EndsAt) {
		return false
	}
	return true
}

// Anomaly is a statistical outlier in a metric series.
type Anomaly struct {
	Source     string    `json:"source"`
	Metric     string    `json:"metric"`
	Type       string    `json:"type"`
	Value      float64   `json:"value"`
	Mean       float64   `json:"mean"`
	StdDev     float64   `json:"std_dev"`
	ZScore     float64   `json:"z_score"`
	DetectedAt time.Time `json:"detected_at"`
}

const (
	// AnomalySpike marks a value far above the series mean.
	AnomalySpike = "spike"
	// AnomalyDip marks a value far below the series mean.
	AnomalyDip = "dip"
)
