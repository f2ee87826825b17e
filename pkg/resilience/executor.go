package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
)

// Executor runs operations under a retry policy with a named circuit
// breaker around the whole retry sequence. The breaker sees one outcome
// per sequence: a success on any successful attempt, or a single failure
// once every attempt has been exhausted.
type Executor struct {
	registry *BreakerRegistry
	policy   RetryPolicy
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithDefaultPolicy sets the retry policy used when a call provides none
func WithDefaultPolicy(policy RetryPolicy) ExecutorOption {
	return func(e *Executor) {
		e.policy = policy
	}
}

// WithMetrics wires Prometheus metrics into the executor
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an executor backed by the given breaker registry
func NewExecutor(registry *BreakerRegistry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		policy:   DefaultRetryPolicy(),
		logger:   logging.GetLogger(),
		metrics:  &metrics.Metrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the breaker registry backing this executor
func (e *Executor) Registry() *BreakerRegistry {
	return e.registry
}

// callSettings holds per-call overrides
type callSettings struct {
	policy   RetryPolicy
	fallback func(context.Context) (interface{}, error)
}

// CallOption configures a single Execute call
type CallOption func(*callSettings)

// WithPolicy overrides the retry policy for this call
func WithPolicy(policy RetryPolicy) CallOption {
	return func(cs *callSettings) {
		cs.policy = policy
	}
}

// WithFallback provides a value to return when the circuit is open
// instead of the rejection error
func WithFallback(fallback func(context.Context) (interface{}, error)) CallOption {
	return func(cs *callSettings) {
		cs.fallback = fallback
	}
}

// Execute runs op under the named breaker with retries. A rejected call
// returns the circuit-open error unless a fallback is provided. A
// non-retryable error aborts immediately without charging the breaker.
func (e *Executor) Execute(ctx context.Context, name string, op func(context.Context) (interface{}, error), opts ...CallOption) (interface{}, error) {
	call := callSettings{policy: e.policy}
	for _, opt := range opts {
		opt(&call)
	}
	policy := call.policy.normalized()

	cb := e.registry.Get(name)
	if err := cb.Allow(); err != nil {
		e.metrics.RecordBreakerRejection(name)
		if call.fallback != nil {
			e.logger.Warn("Circuit open, serving fallback",
				"operation", name,
			)
			return call.fallback(ctx)
		}
		return nil, err
	}

	claimed := true
	defer func() {
		if r := recover(); r != nil {
			if claimed {
				cb.ReportFailure()
			}
			panic(r)
		}
	}()

	var lastErr error
	attempts := policy.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			cb.Cancel()
			claimed = false
			return nil, err
		}

		result, err := op(ctx)
		if err == nil {
			cb.ReportSuccess()
			claimed = false
			if attempt > 0 {
				e.metrics.RecordRetryAttempt(name, "recovered")
				e.logger.Info("Operation succeeded after retry",
					"operation", name,
					"attempt", attempt+1,
					"attempts", attempts,
				)
			}
			return result, nil
		}

		lastErr = err

		if !policy.RetryableErrors(err) {
			cb.Cancel()
			claimed = false
			e.logger.Debug("Error is not retryable, stopping",
				"operation", name,
				"error", err.Error(),
				"attempt", attempt+1,
			)
			return nil, err
		}

		if attempt == attempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		e.metrics.RecordRetryAttempt(name, "retry")

		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}

		e.logger.Debug("Operation failed, retrying",
			"operation", name,
			"error", err.Error(),
			"attempt", attempt+1,
			"attempts", attempts,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			cb.Cancel()
			claimed = false
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	cb.ReportFailure()
	claimed = false
	e.metrics.RecordRetryAttempt(name, "exhausted")
	e.logger.Error("Operation failed after all retry attempts",
		"operation", name,
		"error", lastErr.Error(),
		"attempts", attempts,
	)

	return nil, fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// ExecuteVoid runs an operation that returns no result
func (e *Executor) ExecuteVoid(ctx context.Context, name string, op func(context.Context) error, opts ...CallOption) error {
	_, err := e.Execute(ctx, name, func(ctx context.Context) (interface{}, error) {
		return nil, op(ctx)
	}, opts...)
	return err
}

// ExecuteWithResult runs op under the executor and returns a typed result
func ExecuteWithResult[T any](ctx context.Context, e *Executor, name string, op func(context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T

	result, err := e.Execute(ctx, name, func(ctx context.Context) (interface{}, error) {
		return op(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	value, ok := result.(T)
	if !ok {
		return zero, errors.NewInternalError(fmt.Sprintf("operation %s returned unexpected type %T", name, result))
	}
	return value, nil
}
