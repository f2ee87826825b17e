package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/audiocove/audiocove-monitoring/pkg/errors"
)

func TestRetryPolicy_DelayWithoutJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	assert.Equal(t, 10*time.Millisecond, policy.Delay(0))
	assert.Equal(t, 20*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 40*time.Millisecond, policy.Delay(2))
	assert.Equal(t, 80*time.Millisecond, policy.Delay(3))
}

func TestRetryPolicy_DelayCappedAtMaxDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   150 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false,
	}

	assert.Equal(t, 100*time.Millisecond, policy.Delay(0))
	assert.Equal(t, 150*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 150*time.Millisecond, policy.Delay(5))
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	// Jitter adds up to a second on top of the exponential delay
	for i := 0; i < 100; i++ {
		delay := policy.Delay(0)
		assert.GreaterOrEqual(t, delay, 50*time.Millisecond)
		assert.Less(t, delay, 50*time.Millisecond+time.Second)
	}
}

func TestRetryPolicy_JitterAppliedAfterCap(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     true,
	}

	// The cap bounds the exponential part; jitter can still exceed it
	for i := 0; i < 100; i++ {
		delay := policy.Delay(4)
		assert.GreaterOrEqual(t, delay, 100*time.Millisecond)
		assert.Less(t, delay, 100*time.Millisecond+time.Second)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, 1*time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
	assert.Equal(t, 2.0, policy.Multiplier)
	assert.True(t, policy.Jitter)
	assert.NotNil(t, policy.RetryableErrors)
}

func TestRetryPolicy_Normalized(t *testing.T) {
	policy := RetryPolicy{MaxRetries: -1}.normalized()

	assert.Equal(t, 0, policy.MaxRetries)
	assert.Equal(t, 1*time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
	assert.Equal(t, 2.0, policy.Multiplier)
	assert.NotNil(t, policy.RetryableErrors)
}

func TestDefaultRetryableErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "timeout error",
			err:  apperrors.NewTimeoutError("query"),
			want: true,
		},
		{
			name: "connection lost error",
			err:  apperrors.NewConnectionLostError("connection reset by peer"),
			want: true,
		},
		{
			name: "external service error",
			err:  apperrors.NewExternalError("slack", "http 502"),
			want: true,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("check failed: %w", apperrors.NewTimeoutError("ping")),
			want: true,
		},
		{
			name: "validation error",
			err:  apperrors.NewValidationError("bad input"),
			want: false,
		},
		{
			name: "internal error",
			err:  apperrors.NewInternalError("corrupt state"),
			want: false,
		},
		{
			name: "circuit open error",
			err:  apperrors.NewCircuitOpenError("database"),
			want: false,
		},
		{
			name: "opaque error treated as permanent",
			err:  errors.New("something broke"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryableErrors(tt.err))
		})
	}
}
