package resilience

import (
	"math"
	"math/rand"
	"time"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
)

// RetryPolicy holds configuration for retry behavior
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt,
	// so an operation runs at most MaxRetries+1 times
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff delay
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Jitter adds up to one second of randomness to each delay
	// to avoid thundering herd
	Jitter bool
	// RetryableErrors decides whether an error is worth retrying
	RetryableErrors func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		RetryableErrors: DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors reports whether an error is retryable. It trusts
// the retryability carried by typed errors; opaque errors are treated as
// permanent, so boundaries that produce them should classify first.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	if IsCircuitOpenError(err) {
		return false
	}
	return errors.IsRetryable(err)
}

// normalized returns a copy of the policy with defaults applied
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if p.RetryableErrors == nil {
		p.RetryableErrors = DefaultRetryableErrors
	}
	return p
}

// Delay returns the backoff delay before the given retry. The first
// retry is 0. The exponential delay is capped at MaxDelay before jitter
// is added.
func (p RetryPolicy) Delay(retry int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retry))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	d := time.Duration(delay)
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(time.Second)))
	}
	return d
}
