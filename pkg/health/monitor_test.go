package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
)

func TestMain(m *testing.M) {
	// Continuous checks are chatty at info level
	logger, err := logging.NewLogger(&logging.Config{
		Level:       "error",
		Format:      "json",
		Output:      "stderr",
		ServiceName: "test",
		Version:     "test",
	})
	if err != nil {
		panic(err)
	}
	logging.SetGlobalLogger(logger)
	os.Exit(m.Run())
}

func passChecker(message string) CheckerFunc {
	return func(ctx context.Context) *CheckResult {
		return &CheckResult{Status: CheckPass, Message: message}
	}
}

func statusChecker(statuses ...CheckStatus) CheckerFunc {
	i := 0
	return func(ctx context.Context) *CheckResult {
		status := statuses[len(statuses)-1]
		if i < len(statuses) {
			status = statuses[i]
			i++
		}
		return &CheckResult{Status: status}
	}
}

func TestMonitor_RunCheckRecordsResult(t *testing.T) {
	m := NewMonitor("database", passChecker("all good"), MonitorConfig{})

	result := m.RunCheck(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, CheckPass, result.Status)
	assert.False(t, result.Timestamp.IsZero())

	status := m.Status()
	assert.Equal(t, "database", status.Name)
	assert.Equal(t, StatusHealthy, status.Health)
	assert.Equal(t, 1, status.HistoryCount)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.False(t, status.LastSuccess.IsZero())
	assert.False(t, status.Monitoring)
}

func TestMonitor_StatusUnknownBeforeFirstCheck(t *testing.T) {
	m := NewMonitor("database", passChecker("ok"), MonitorConfig{})

	status := m.Status()
	assert.Equal(t, StatusUnknown, status.Health)
	assert.Nil(t, status.LastResult)
	assert.Equal(t, 0, status.HistoryCount)
}

func TestMonitor_HistoryRingEvictsOldest(t *testing.T) {
	seq := 0
	m := NewMonitor("database", CheckerFunc(func(ctx context.Context) *CheckResult {
		result := &CheckResult{Status: CheckPass, Message: fmt.Sprintf("%d", seq)}
		seq++
		return result
	}), MonitorConfig{})

	for i := 0; i < 1100; i++ {
		m.RunCheck(context.Background())
	}

	history := m.History(0)
	require.Len(t, history, 1000)
	assert.Equal(t, "100", history[0].Message)
	assert.Equal(t, "1099", history[999].Message)
	assert.Equal(t, 1000, m.Status().HistoryCount)
}

func TestMonitor_HistoryLimit(t *testing.T) {
	seq := 0
	m := NewMonitor("database", CheckerFunc(func(ctx context.Context) *CheckResult {
		result := &CheckResult{Status: CheckPass, Message: fmt.Sprintf("%d", seq)}
		seq++
		return result
	}), MonitorConfig{})

	for i := 0; i < 5; i++ {
		m.RunCheck(context.Background())
	}

	history := m.History(3)
	require.Len(t, history, 3)
	assert.Equal(t, "2", history[0].Message)
	assert.Equal(t, "4", history[2].Message)
}

func TestMonitor_ConsecutiveFailures(t *testing.T) {
	m := NewMonitor("database", statusChecker(
		CheckFail, CheckFail, CheckWarn, CheckFail, CheckPass,
	), MonitorConfig{})

	m.RunCheck(context.Background())
	m.RunCheck(context.Background())
	assert.Equal(t, 2, m.ConsecutiveFailures())

	// A warning neither increments nor resets
	m.RunCheck(context.Background())
	assert.Equal(t, 2, m.ConsecutiveFailures())

	m.RunCheck(context.Background())
	assert.Equal(t, 3, m.ConsecutiveFailures())

	m.RunCheck(context.Background())
	assert.Equal(t, 0, m.ConsecutiveFailures())
	assert.False(t, m.Status().LastSuccess.IsZero())
}

func TestMonitor_PanickingProbeConvertsToFail(t *testing.T) {
	m := NewMonitor("database", CheckerFunc(func(ctx context.Context) *CheckResult {
		panic("probe blew up")
	}), MonitorConfig{})

	result := m.RunCheck(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, CheckFail, result.Status)
	assert.Contains(t, result.Message, "probe panicked")
	assert.Equal(t, 1, m.ConsecutiveFailures())
	assert.Equal(t, 1, m.Status().HistoryCount)
}

func TestMonitor_NilProbeResultConvertsToFail(t *testing.T) {
	m := NewMonitor("database", CheckerFunc(func(ctx context.Context) *CheckResult {
		return nil
	}), MonitorConfig{})

	result := m.RunCheck(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, CheckFail, result.Status)
	assert.Contains(t, result.Message, "no result")
}

func TestMonitor_StartStopLifecycle(t *testing.T) {
	var checks atomic.Int64
	m := NewMonitor("database", CheckerFunc(func(ctx context.Context) *CheckResult {
		checks.Add(1)
		return &CheckResult{Status: CheckPass}
	}), MonitorConfig{})

	require.NoError(t, m.StartContinuous(20*time.Millisecond))
	assert.True(t, m.Status().Monitoring)

	// Starting twice errors
	err := m.StartContinuous(20 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	require.Eventually(t, func() bool {
		return checks.Load() >= 3
	}, time.Second, 10*time.Millisecond)

	m.Stop()
	assert.False(t, m.Status().Monitoring)

	// No further checks run once Stop has returned
	after := checks.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, after, checks.Load())

	// Stopping again is a no-op
	m.Stop()
}

func TestMonitor_StartContinuousRejectsBadInterval(t *testing.T) {
	m := NewMonitor("database", passChecker("ok"), MonitorConfig{})

	err := m.StartContinuous(0)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestMonitor_RestartAfterStop(t *testing.T) {
	var checks atomic.Int64
	m := NewMonitor("database", CheckerFunc(func(ctx context.Context) *CheckResult {
		checks.Add(1)
		return &CheckResult{Status: CheckPass}
	}), MonitorConfig{})

	require.NoError(t, m.StartContinuous(15*time.Millisecond))
	require.Eventually(t, func() bool { return checks.Load() >= 1 }, time.Second, 5*time.Millisecond)
	m.Stop()

	before := checks.Load()
	require.NoError(t, m.StartContinuous(15*time.Millisecond))
	require.Eventually(t, func() bool { return checks.Load() > before }, time.Second, 5*time.Millisecond)
	m.Stop()
}

func TestMonitor_OnResultHook(t *testing.T) {
	var mu sync.Mutex
	var seen []CheckStatus

	m := NewMonitor("database", statusChecker(CheckPass, CheckFail), MonitorConfig{
		OnResult: func(result *CheckResult) {
			mu.Lock()
			seen = append(seen, result.Status)
			mu.Unlock()
		},
	})

	m.RunCheck(context.Background())
	m.RunCheck(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []CheckStatus{CheckPass, CheckFail}, seen)
}

func TestCheckStatus_Health(t *testing.T) {
	assert.Equal(t, StatusHealthy, CheckPass.Health())
	assert.Equal(t, StatusDegraded, CheckWarn.Health())
	assert.Equal(t, StatusUnhealthy, CheckFail.Health())
	assert.Equal(t, StatusUnknown, CheckStatus("bogus").Health())
}
