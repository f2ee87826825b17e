package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/audiocove/audiocove-monitoring/pkg/errors"
)

func TestCircuitBreaker_DefaultBehavior(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name: "test-cb",
	})

	// Initially closed
	assert.Equal(t, StateClosed, cb.State())

	// Successful requests should keep it closed
	for i := 0; i < 5; i++ {
		result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, StateClosed, cb.State())
	}
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		ResetTimeout:     time.Second,
	})

	// Failures below the threshold leave the circuit closed
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 2, cb.FailureCount())

	// The threshold failure opens it
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
	})

	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})
	assert.Equal(t, StateOpen, cb.State())

	invoked := false
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		invoked = true
		return "should not execute", nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.True(t, IsCircuitOpenError(err))
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		ResetTimeout:     time.Second,
	})

	cb.ReportFailure()
	cb.ReportFailure()
	assert.Equal(t, 2, cb.FailureCount())

	cb.ReportSuccess()
	assert.Equal(t, 0, cb.FailureCount())

	// The counter starts over, so two more failures do not trip it
	cb.ReportFailure()
	cb.ReportFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_MonitoringWindowRestartsCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		ResetTimeout:     time.Second,
		MonitoringWindow: 40 * time.Millisecond,
	})

	cb.ReportFailure()
	cb.ReportFailure()
	assert.Equal(t, 2, cb.FailureCount())

	// A failure beyond the window starts a fresh count
	time.Sleep(60 * time.Millisecond)
	cb.ReportFailure()
	assert.Equal(t, 1, cb.FailureCount())
	assert.Equal(t, StateClosed, cb.State())

	// Failures inside the window accumulate and trip
	cb.ReportFailure()
	cb.ReportFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:              "test-cb",
		FailureThreshold:  2,
		ResetTimeout:      50 * time.Millisecond,
		HalfOpenSuccesses: 2,
	})

	// Trip the circuit breaker
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	// Wait for the reset timeout
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// First probe success keeps it half-open
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Second probe success closes it
	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	// Failing the probe opens the circuit again
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())

	// And the reset timeout starts over
	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "should not execute", nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitOpenError(err))
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 1,
		ResetTimeout:     50 * time.Millisecond,
	})

	cb.ReportFailure()
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	// First Allow claims the probe slot
	require.NoError(t, cb.Allow())

	// A concurrent caller is rejected while the probe is in flight
	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, IsCircuitOpenError(err))

	// Cancel releases the slot without recording an outcome
	cb.Cancel()
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_Panic(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 5,
	})

	assert.Panics(t, func() {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			panic("test panic")
		})
	})

	// The panic counts as a failure
	assert.Equal(t, 1, cb.FailureCount())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})

	cb.ReportFailure()
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())

	// Calls flow again immediately
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "payments",
		FailureThreshold: 5,
	})

	cb.ReportFailure()
	cb.ReportFailure()

	snapshot := cb.Snapshot()
	assert.Equal(t, "payments", snapshot.Name)
	assert.Equal(t, "closed", snapshot.State)
	assert.Equal(t, 2, snapshot.FailureCount)
	assert.False(t, snapshot.LastFailure.IsZero())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cb := NewCircuitBreaker(BreakerConfig{
		Name:              "test-cb",
		FailureThreshold:  1,
		ResetTimeout:      30 * time.Millisecond,
		HalfOpenSuccesses: 1,
		OnStateChange: func(name string, from, to CircuitState) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	cb.ReportFailure()
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, cb.Allow())
	cb.ReportSuccess()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}

func TestIsCircuitOpenError(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	cb.ReportFailure()

	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, IsCircuitOpenError(err))
	assert.False(t, IsCircuitOpenError(errors.New("regular error")))
	assert.False(t, IsCircuitOpenError(apperrors.NewTimeoutError("op")))
}
