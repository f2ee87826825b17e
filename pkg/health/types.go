// Package health provides continuous health monitoring for the
// platform's dependencies: probes, per-monitor check history, trend
// analysis over that history, and automatic recovery.
package health

import (
	"context"
	"time"
)

// CheckStatus is the outcome of a single probe
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Status represents the health of a monitored component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Health maps a check outcome to a component health status
func (s CheckStatus) Health() Status {
	switch s {
	case CheckPass:
		return StatusHealthy
	case CheckWarn:
		return StatusDegraded
	case CheckFail:
		return StatusUnhealthy
	default:
		return StatusUnknown
	}
}

// CheckResult is the record of one probe execution
type CheckResult struct {
	Status    CheckStatus            `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Metrics   map[string]float64     `json:"metrics,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Checker probes one dependency. Implementations decide what healthy
// means for their target; the monitor only interprets the status.
type Checker interface {
	Check(ctx context.Context) *CheckResult
}

// CheckerFunc adapts a plain function to the Checker interface
type CheckerFunc func(ctx context.Context) *CheckResult

// Check implements Checker
func (f CheckerFunc) Check(ctx context.Context) *CheckResult {
	return f(ctx)
}

// TrendDirection describes where a monitor's health is heading
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDegrading TrendDirection = "degrading"
)

// MetricTrend is the fitted trend of one metric over the analysis window
type MetricTrend struct {
	Current    float64        `json:"current"`
	Slope      float64        `json:"slope"`
	Prediction float64        `json:"prediction"`
	Direction  TrendDirection `json:"direction"`
}

// TrendAnalysis is the combined trend over a monitor's recent history
type TrendAnalysis struct {
	Monitor    string                  `json:"monitor"`
	Direction  TrendDirection          `json:"direction"`
	Confidence float64                 `json:"confidence"`
	Samples    int                     `json:"samples"`
	Metrics    map[string]*MetricTrend `json:"metrics,omitempty"`
	AnalyzedAt time.Time               `json:"analyzed_at"`
}

// MonitorStatus is a point-in-time view of a monitor
type MonitorStatus struct {
	Name                string       `json:"name"`
	Monitoring          bool         `json:"monitoring"`
	Health              Status       `json:"health"`
	LastResult          *CheckResult `json:"last_result,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastSuccess         time.Time    `json:"last_success,omitempty"`
	HistoryCount        int          `json:"history_count"`
	Recovering          bool         `json:"recovering"`
}

// RecoveryAction is one step a monitor can take to restore a dependency
type RecoveryAction struct {
	// Name identifies the action in logs and events
	Name string
	// Timeout bounds a single run of the action
	Timeout time.Duration
	// Run performs the action
	Run func(ctx context.Context) error
}

// RecoveryStrategy controls automatic recovery for a monitor. Actions
// run in order and the attempt stops at the first one that succeeds.
type RecoveryStrategy struct {
	Enabled      bool
	TriggerAfter int
	MaxAttempts  int
	Delay        time.Duration
	Actions      []RecoveryAction
}
