// Package monitoring aggregates per-source health monitors, persists
// their results, and drives alert evaluation and data retention.
package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/health"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
)

const (
	storeWriteTimeout = 10 * time.Second
	cleanupTimeout    = 5 * time.Minute
)

// Config holds aggregator configuration
type Config struct {
	// DefaultInterval is the check cadence for sources that do not set
	// their own.
	DefaultInterval time.Duration `json:"default_interval"`
	// RetentionInterval is how often expired data is cleaned up.
	RetentionInterval time.Duration `json:"retention_interval"`
}

// DefaultConfig returns default aggregator configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultInterval:   30 * time.Second,
		RetentionInterval: 24 * time.Hour,
	}
}

// SourceOptions configures one registered source.
type SourceOptions struct {
	// Interval overrides the service default check cadence.
	Interval time.Duration
	// Disabled registers the source without scheduling it.
	Disabled bool
	// Monitor tunes the underlying health monitor (history, timeouts,
	// trend window, recovery).
	Monitor health.MonitorConfig
}

// SourceStatus is a monitor status plus its scheduling state.
type SourceStatus struct {
	health.MonitorStatus
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
}

// AggregateReport summarizes health across all monitored sources.
type AggregateReport struct {
	Status    health.Status            `json:"status"`
	Score     float64                  `json:"score"`
	Sources   map[string]health.Status `json:"sources"`
	Healthy   int                      `json:"healthy"`
	Degraded  int                      `json:"degraded"`
	Unhealthy int                      `json:"unhealthy"`
	CheckedAt time.Time                `json:"checked_at"`
}

type monitorEntry struct {
	monitor  *health.Monitor
	interval time.Duration
	enabled  bool
}

// Service keeps a named registry of health monitors, writes every
// completed check through the store, feeds the alert engine, and runs
// the retention loop.
type Service struct {
	mu       sync.RWMutex
	monitors map[string]*monitorEntry
	latest   map[string]*health.CheckResult
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	store   Store
	engine  *alerting.Engine
	metrics *metrics.Metrics
	config  *Config
	logger  *logging.Logger
}

// NewService creates a monitoring aggregator. Store, engine and metrics
// may each be nil; the service then skips persistence, alert evaluation
// or instrumentation respectively.
func NewService(store Store, engine *alerting.Engine, m *metrics.Metrics, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = 30 * time.Second
	}
	if config.RetentionInterval <= 0 {
		config.RetentionInterval = 24 * time.Hour
	}

	return &Service{
		monitors: make(map[string]*monitorEntry),
		latest:   make(map[string]*health.CheckResult),
		store:    store,
		engine:   engine,
		metrics:  m,
		config:   config,
		logger:   logging.GetLogger(),
	}
}

// Register adds a named source backed by the given checker. A stored
// per-source config, when present, overrides the enabled flag and
// interval. Registering while the service runs schedules the source
// immediately.
func (s *Service) Register(ctx context.Context, name string, checker health.Checker, opts SourceOptions) error {
	if name == "" {
		return errors.NewValidationError("monitor name is required")
	}
	if checker == nil {
		return errors.NewValidationError("monitor checker is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = s.config.DefaultInterval
	}
	enabled := !opts.Disabled

	if s.store != nil {
		if stored, err := s.store.GetMonitoringConfig(ctx, name); err == nil && stored != nil {
			enabled = stored.Enabled
			if stored.Interval > 0 {
				interval = stored.Interval
			}
		}
	}

	userHook := opts.Monitor.OnResult
	cfg := opts.Monitor
	cfg.OnResult = func(result *health.CheckResult) {
		s.handleResult(name, result)
		if userHook != nil {
			userHook(result)
		}
	}
	monitor := health.NewMonitor(name, checker, cfg)

	s.mu.Lock()
	if _, exists := s.monitors[name]; exists {
		s.mu.Unlock()
		return errors.NewConflictError("monitor " + name + " is already registered")
	}
	s.monitors[name] = &monitorEntry{monitor: monitor, interval: interval, enabled: enabled}
	running := s.running
	s.mu.Unlock()

	s.logger.Info("Monitor registered", "monitor", name, "interval", interval.String(), "enabled", enabled)

	if running && enabled {
		if err := monitor.StartContinuous(interval); err != nil {
			return err
		}
	}
	return nil
}

// StartMonitoring schedules every enabled source on its own cadence and
// starts the retention loop.
func (s *Service) StartMonitoring() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.NewConflictError("monitoring service is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh

	type scheduled struct {
		monitor  *health.Monitor
		interval time.Duration
	}
	var toStart []scheduled
	for _, entry := range s.monitors {
		if entry.enabled {
			toStart = append(toStart, scheduled{entry.monitor, entry.interval})
		}
	}
	s.mu.Unlock()

	for _, sc := range toStart {
		if err := sc.monitor.StartContinuous(sc.interval); err != nil {
			s.logger.Warn("Failed to start monitor", "monitor", sc.monitor.Name(), "error", err.Error())
		}
	}

	go s.retentionLoop(stopCh, doneCh)

	s.logger.Info("Monitoring started", "monitors", len(toStart))
	return nil
}

// StopMonitoring halts every monitor and waits for the retention loop
// to exit. Safe to call when not running.
func (s *Service) StopMonitoring() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	var monitors []*health.Monitor
	for _, entry := range s.monitors {
		monitors = append(monitors, entry.monitor)
	}
	s.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
	<-doneCh

	s.logger.Info("Monitoring stopped")
}

// TriggerCheck runs one source's probe immediately, even when the
// source is disabled. The result flows through the same persistence and
// alerting path as scheduled checks.
func (s *Service) TriggerCheck(ctx context.Context, name string) (*health.CheckResult, error) {
	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.monitor.RunCheck(ctx), nil
}

// TriggerAllChecks runs every registered probe concurrently and returns
// the results keyed by source.
func (s *Service) TriggerAllChecks(ctx context.Context) map[string]*health.CheckResult {
	s.mu.RLock()
	monitors := make(map[string]*health.Monitor, len(s.monitors))
	for name, entry := range s.monitors {
		monitors[name] = entry.monitor
	}
	s.mu.RUnlock()

	results := make(map[string]*health.CheckResult, len(monitors))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	for name, monitor := range monitors {
		wg.Add(1)
		go func(name string, monitor *health.Monitor) {
			defer wg.Done()
			result := monitor.RunCheck(ctx)
			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		}(name, monitor)
	}
	wg.Wait()

	return results
}

// SetEnabled enables or disables a source, reschedules it when the
// service runs, and persists the change.
func (s *Service) SetEnabled(ctx context.Context, name string, enabled bool) error {
	s.mu.Lock()
	entry, ok := s.monitors[name]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("monitor " + name)
	}
	changed := entry.enabled != enabled
	entry.enabled = enabled
	interval := entry.interval
	running := s.running
	monitor := entry.monitor
	s.mu.Unlock()

	if changed && running {
		if enabled {
			if err := monitor.StartContinuous(interval); err != nil {
				return err
			}
		} else {
			monitor.Stop()
		}
	}

	return s.persistSourceConfig(ctx, name, enabled, interval)
}

// SetInterval changes a source's check cadence, restarts its schedule
// when live, and persists the change.
func (s *Service) SetInterval(ctx context.Context, name string, interval time.Duration) error {
	if interval <= 0 {
		return errors.NewValidationError("check interval must be positive")
	}

	s.mu.Lock()
	entry, ok := s.monitors[name]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("monitor " + name)
	}
	entry.interval = interval
	enabled := entry.enabled
	running := s.running
	monitor := entry.monitor
	s.mu.Unlock()

	if running && enabled {
		monitor.Stop()
		if err := monitor.StartContinuous(interval); err != nil {
			return err
		}
	}

	return s.persistSourceConfig(ctx, name, enabled, interval)
}

func (s *Service) persistSourceConfig(ctx context.Context, name string, enabled bool, interval time.Duration) error {
	if s.store == nil {
		return nil
	}

	cfg := &SourceConfig{Source: name}
	if stored, err := s.store.GetMonitoringConfig(ctx, name); err == nil && stored != nil {
		cfg = stored
	}
	cfg.Enabled = enabled
	cfg.Interval = interval
	cfg.UpdatedAt = time.Now()

	return s.store.SaveMonitoringConfig(ctx, cfg)
}

// Names returns all registered source names, sorted.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.monitors))
	for name := range s.monitors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns one source's status.
func (s *Service) Status(name string) (*SourceStatus, error) {
	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	status := entry.monitor.Status()

	s.mu.RLock()
	enabled, interval := entry.enabled, entry.interval
	s.mu.RUnlock()

	return &SourceStatus{MonitorStatus: status, Enabled: enabled, Interval: interval}, nil
}

// Statuses returns every source's status, sorted by name.
func (s *Service) Statuses() []*SourceStatus {
	statuses := make([]*SourceStatus, 0)
	for _, name := range s.Names() {
		if status, err := s.Status(name); err == nil {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

// Trend returns one source's trend analysis.
func (s *Service) Trend(name string) (*health.TrendAnalysis, error) {
	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.monitor.AnalyzeTrend(), nil
}

// Recover runs one source's recovery strategy.
func (s *Service) Recover(ctx context.Context, name string) error {
	entry, err := s.entry(name)
	if err != nil {
		return err
	}
	return entry.monitor.ManualRecovery(ctx)
}

// History returns a source's recent check results, oldest first.
func (s *Service) History(name string, limit int) ([]*health.CheckResult, error) {
	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.monitor.History(limit), nil
}

func (s *Service) entry(name string) (*monitorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.monitors[name]
	if !ok {
		return nil, errors.NewNotFoundError("monitor " + name)
	}
	return entry, nil
}

// handleResult runs after every recorded check: it updates the in-memory
// snapshot, persists the record, and evaluates the alert engine against
// the full snapshot and per-source trends.
func (s *Service) handleResult(name string, result *health.CheckResult) {
	s.mu.Lock()
	s.latest[name] = result
	snapshot := make(map[string]*health.CheckResult, len(s.latest))
	for source, r := range s.latest {
		snapshot[source] = r
	}
	monitors := make(map[string]*health.Monitor, len(s.monitors))
	for source, entry := range s.monitors {
		monitors[source] = entry.monitor
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.UpdateMonitorStatus(name, string(result.Status.Health()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	if s.store != nil {
		record := recordFromResult(name, result)
		if _, err := s.store.SaveMonitoringRecord(ctx, record); err != nil {
			s.logger.Error("Failed to persist monitoring record", "source", name, "error", err.Error())
		}
	}

	if s.engine == nil {
		return
	}
	trends := make(map[string]*health.TrendAnalysis, len(monitors))
	for source, monitor := range monitors {
		trends[source] = monitor.AnalyzeTrend()
	}
	s.engine.EvaluateAlerts(ctx, snapshot, trends)
}

// recordFromResult converts a check result into its persisted form.
func recordFromResult(source string, result *health.CheckResult) *MonitoringRecord {
	return &MonitoringRecord{
		ID:           uuid.New().String(),
		Source:       source,
		Status:       result.Status.Health(),
		Message:      result.Message,
		ResponseTime: result.Duration,
		Metrics:      result.Metrics,
		Metadata:     result.Metadata,
		Timestamp:    result.Timestamp,
	}
}

// AggregateHealthChecks reads the latest status per source, preferring
// the store and falling back to the in-memory snapshot, and scores the
// fleet: 100 minus 25 per degraded source and 50 per unhealthy source,
// floored at zero. Overall status is the worst observed.
func (s *Service) AggregateHealthChecks(ctx context.Context) *AggregateReport {
	s.mu.RLock()
	names := make([]string, 0, len(s.monitors))
	for name := range s.monitors {
		names = append(names, name)
	}
	latest := make(map[string]*health.CheckResult, len(s.latest))
	for source, result := range s.latest {
		latest[source] = result
	}
	s.mu.RUnlock()
	sort.Strings(names)

	report := &AggregateReport{
		Sources:   make(map[string]health.Status, len(names)),
		CheckedAt: time.Now(),
	}

	for _, name := range names {
		status := health.StatusUnknown
		if s.store != nil {
			records, err := s.store.GetMonitoringRecords(ctx, RecordFilter{Source: name, Limit: 1})
			if err == nil && len(records) > 0 {
				status = records[0].Status
			}
		}
		if status == health.StatusUnknown {
			if result, ok := latest[name]; ok {
				status = result.Status.Health()
			}
		}
		if status == health.StatusUnknown {
			continue
		}

		report.Sources[name] = status
		switch status {
		case health.StatusHealthy:
			report.Healthy++
		case health.StatusDegraded:
			report.Degraded++
		case health.StatusUnhealthy:
			report.Unhealthy++
		}
	}

	score := 100 - 25*float64(report.Degraded) - 50*float64(report.Unhealthy)
	if score < 0 {
		score = 0
	}
	report.Score = score

	switch {
	case report.Unhealthy > 0:
		report.Status = health.StatusUnhealthy
	case report.Degraded > 0:
		report.Status = health.StatusDegraded
	case report.Healthy > 0:
		report.Status = health.StatusHealthy
	default:
		report.Status = health.StatusUnknown
	}

	if s.metrics != nil {
		s.metrics.UpdateHealthScore("overall", report.Score)
	}

	return report
}

// retentionLoop invokes the store's cleanup on the configured cadence.
func (s *Service) retentionLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Service) runCleanup() {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	removed, err := s.store.CleanupExpiredData(ctx)
	if err != nil {
		s.logger.Error("Retention cleanup failed", "error", err.Error())
		return
	}
	s.logger.Info("Retention cleanup completed", "removed", removed)
}
