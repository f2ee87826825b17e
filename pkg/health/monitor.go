package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
)

const (
	defaultHistorySize     = 1000
	defaultCheckTimeout    = 10 * time.Second
	defaultTrendWindow     = 20
	defaultTrendMinSamples = 10
)

// MonitorConfig holds configuration for a monitor
type MonitorConfig struct {
	// HistorySize bounds the in-memory check history ring
	HistorySize int
	// CheckTimeout bounds each probe run on the continuous cadence
	CheckTimeout time.Duration
	// TrendWindow is how many recent results trend analysis looks at
	TrendWindow int
	// TrendMinSamples is the minimum history before a trend is reported
	TrendMinSamples int
	// Recovery enables automatic recovery for this monitor
	Recovery *RecoveryStrategy
	// OnResult is called after every recorded check, outside the
	// monitor's lock. It must not call back into the monitor's
	// mutating methods.
	OnResult func(result *CheckResult)
}

// Monitor runs a Checker against one dependency, keeps a bounded history
// of results, and drives trend analysis and recovery from that history.
type Monitor struct {
	name            string
	checker         Checker
	historySize     int
	checkTimeout    time.Duration
	trendWindow     int
	trendMinSamples int
	recovery        *RecoveryStrategy
	onResult        func(result *CheckResult)

	mu                  sync.Mutex
	history             []*CheckResult // ring, oldest at head
	head                int
	count               int
	consecutiveFailures int
	lastSuccess         time.Time
	lastResult          *CheckResult
	monitoring          bool
	recovering          bool
	stopCh              chan struct{}
	doneCh              chan struct{}

	logger *logging.Logger
}

// NewMonitor creates a monitor for the named dependency
func NewMonitor(name string, checker Checker, config MonitorConfig) *Monitor {
	if config.HistorySize <= 0 {
		config.HistorySize = defaultHistorySize
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = defaultCheckTimeout
	}
	if config.TrendWindow <= 0 {
		config.TrendWindow = defaultTrendWindow
	}
	if config.TrendMinSamples <= 0 {
		config.TrendMinSamples = defaultTrendMinSamples
	}

	return &Monitor{
		name:            name,
		checker:         checker,
		historySize:     config.HistorySize,
		checkTimeout:    config.CheckTimeout,
		trendWindow:     config.TrendWindow,
		trendMinSamples: config.TrendMinSamples,
		recovery:        config.Recovery,
		onResult:        config.OnResult,
		history:         make([]*CheckResult, config.HistorySize),
		logger:          logging.GetLogger(),
	}
}

// Name returns the monitor's name
func (m *Monitor) Name() string {
	return m.name
}

// RunCheck executes the probe once and records the result. A probe that
// panics or returns nil is recorded as a failed check.
func (m *Monitor) RunCheck(ctx context.Context) *CheckResult {
	result := m.safeCheck(ctx)
	m.record(ctx, result)
	return result
}

// safeCheck runs the probe, converting panics and nil results to FAIL
func (m *Monitor) safeCheck(ctx context.Context) (result *CheckResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			m.logger.LogPanic(ctx, r, fmt.Sprintf("probe for %s panicked", m.name))
			result = &CheckResult{
				Status:    CheckFail,
				Message:   fmt.Sprintf("probe panicked: %v", r),
				Timestamp: start,
				Duration:  time.Since(start),
			}
		}
	}()

	result = m.checker.Check(ctx)
	if result == nil {
		return &CheckResult{
			Status:    CheckFail,
			Message:   "probe returned no result",
			Timestamp: start,
			Duration:  time.Since(start),
		}
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = start
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result
}

// record appends the result to the ring and updates failure accounting
func (m *Monitor) record(ctx context.Context, result *CheckResult) {
	m.mu.Lock()

	if m.count < m.historySize {
		m.history[(m.head+m.count)%m.historySize] = result
		m.count++
	} else {
		m.history[m.head] = result
		m.head = (m.head + 1) % m.historySize
	}

	m.lastResult = result
	switch result.Status {
	case CheckFail:
		m.consecutiveFailures++
	case CheckPass:
		m.consecutiveFailures = 0
		m.lastSuccess = result.Timestamp
	}

	failures := m.consecutiveFailures
	shouldRecover := m.recovery != nil &&
		m.recovery.Enabled &&
		len(m.recovery.Actions) > 0 &&
		failures >= m.recovery.triggerAfter() &&
		!m.recovering
	m.mu.Unlock()

	m.logger.LogCheckEvent(ctx, "check_completed", m.name, string(result.Status), result.Duration, logging.Fields{
		"consecutive_failures": failures,
	})

	if m.onResult != nil {
		m.onResult(result)
	}

	if shouldRecover {
		go func() {
			if err := m.ManualRecovery(context.Background()); err != nil && !errors.IsType(err, errors.ErrorTypeConflict) {
				m.logger.Error("Automatic recovery failed",
					"monitor", m.name,
					"error", err.Error(),
				)
			}
		}()
	}
}

// StartContinuous begins checking on the given interval. It errors when
// the monitor is already running.
func (m *Monitor) StartContinuous(interval time.Duration) error {
	if interval <= 0 {
		return errors.NewValidationError("monitoring interval must be positive")
	}

	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return errors.NewConflictError(fmt.Sprintf("monitor %s is already running", m.name))
	}
	m.monitoring = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	m.stopCh = stopCh
	m.doneCh = doneCh
	m.mu.Unlock()

	go m.loop(interval, stopCh, doneCh)

	m.logger.Info("Monitor started",
		"monitor", m.name,
		"interval", interval.String(),
	)
	return nil
}

func (m *Monitor) loop(interval time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// A stop racing the tick wins
			select {
			case <-stopCh:
				return
			default:
			}

			ctx, cancel := context.WithTimeout(context.Background(), m.checkTimeout)
			m.RunCheck(ctx)
			cancel()
		}
	}
}

// Stop halts continuous checking. When it returns no further checks will
// run. Stopping a monitor that is not running is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return
	}
	m.monitoring = false
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.stopCh = nil
	m.doneCh = nil
	m.mu.Unlock()

	close(stopCh)
	<-doneCh

	m.logger.Info("Monitor stopped", "monitor", m.name)
}

// Status returns a point-in-time view of the monitor
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := StatusUnknown
	if m.lastResult != nil {
		health = m.lastResult.Status.Health()
	}

	return MonitorStatus{
		Name:                m.name,
		Monitoring:          m.monitoring,
		Health:              health,
		LastResult:          m.lastResult,
		ConsecutiveFailures: m.consecutiveFailures,
		LastSuccess:         m.lastSuccess,
		HistoryCount:        m.count,
		Recovering:          m.recovering,
	}
}

// History returns up to limit recent results, oldest first. A limit of 0
// or less returns the full history.
func (m *Monitor) History(limit int) []*CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.count
	if limit > 0 && limit < n {
		n = limit
	}

	results := make([]*CheckResult, n)
	for i := 0; i < n; i++ {
		idx := (m.head + m.count - n + i) % m.historySize
		results[i] = m.history[idx]
	}
	return results
}

// ConsecutiveFailures returns the current consecutive failure count
func (m *Monitor) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures
}

func (s *RecoveryStrategy) triggerAfter() int {
	if s.TriggerAfter <= 0 {
		return 3
	}
	return s.TriggerAfter
}
