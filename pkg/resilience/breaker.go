package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, calls flow through
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, calls are rejected
	StateOpen
	// StateHalfOpen - circuit is probing, a single call is allowed through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds configuration for a circuit breaker
type BreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of recorded failures that opens the circuit
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing
	ResetTimeout time.Duration
	// MonitoringWindow bounds how far apart failures may be and still
	// accumulate; a failure further than this from the previous one
	// restarts the count. Zero disables windowing.
	MonitoringWindow time.Duration
	// HalfOpenSuccesses is the number of consecutive successful probes
	// required to close the circuit again
	HalfOpenSuccesses int
	// OnStateChange is called whenever the state of the circuit breaker changes.
	// It runs with the breaker lock held and must not call back into the breaker.
	OnStateChange func(name string, from, to CircuitState)
}

// CircuitBreaker is a state machine that blocks calls to a dependency
// that keeps failing, and probes it cautiously once it has had time to recover.
type CircuitBreaker struct {
	name              string
	failureThreshold  int
	resetTimeout      time.Duration
	monitoringWindow  time.Duration
	halfOpenSuccesses int
	onStateChange     func(name string, from, to CircuitState)

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	successCount  int
	lastFailure   time.Time
	probeInFlight bool

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenSuccesses <= 0 {
		config.HalfOpenSuccesses = 3
	}

	return &CircuitBreaker{
		name:              config.Name,
		failureThreshold:  config.FailureThreshold,
		resetTimeout:      config.ResetTimeout,
		monitoringWindow:  config.MonitoringWindow,
		halfOpenSuccesses: config.HalfOpenSuccesses,
		onStateChange:     config.OnStateChange,
		state:             StateClosed,
		logger:            logging.GetLogger(),
	}
}

// Allow reports whether a call may proceed. In the half-open state it
// claims the single probe slot; the caller must follow up with
// ReportSuccess, ReportFailure, or Cancel to release the claim.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.advance(now)

	switch cb.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if cb.probeInFlight {
			return errors.NewCircuitOpenError(cb.name).WithDetail("state", cb.state.String())
		}
		cb.probeInFlight = true
		return nil
	default:
		return errors.NewCircuitOpenError(cb.name).WithDetail("state", cb.state.String())
	}
}

// ReportSuccess records a successful call outcome
func (cb *CircuitBreaker) ReportSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.probeInFlight = false
		cb.successCount++
		if cb.successCount >= cb.halfOpenSuccesses {
			cb.setState(StateClosed, time.Now())
		}
	}
}

// ReportFailure records a failed call outcome
func (cb *CircuitBreaker) ReportFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.state {
	case StateClosed:
		if cb.monitoringWindow > 0 && !cb.lastFailure.IsZero() && now.Sub(cb.lastFailure) > cb.monitoringWindow {
			cb.failureCount = 1
		} else {
			cb.failureCount++
		}
		cb.lastFailure = now
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.probeInFlight = false
		cb.lastFailure = now
		cb.setState(StateOpen, now)
	case StateOpen:
		cb.lastFailure = now
	}
}

// Cancel releases a claim taken by Allow without recording an outcome.
// Use it when the call was abandoned for reasons that say nothing about
// the health of the dependency.
func (cb *CircuitBreaker) Cancel() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
	}
}

// Execute runs the given call under the breaker, recording its outcome
func (cb *CircuitBreaker) Execute(ctx context.Context, call func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.Allow(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.ReportFailure()
			panic(r)
		}
	}()

	result, err := call(ctx)
	if err != nil {
		cb.ReportFailure()
		return result, err
	}

	cb.ReportSuccess()
	return result, nil
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(time.Now())
	return cb.state
}

// FailureCount returns the current failure count
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the breaker back to the closed state with zeroed counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed, time.Now())
	cb.failureCount = 0
	cb.successCount = 0
	cb.probeInFlight = false
	cb.lastFailure = time.Time{}
}

// Snapshot returns a point-in-time view of the breaker for reporting
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(time.Now())
	return BreakerSnapshot{
		Name:         cb.name,
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		LastFailure:  cb.lastFailure,
	}
}

// BreakerSnapshot is a point-in-time view of a circuit breaker
type BreakerSnapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// advance applies the time-based open to half-open transition.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.lastFailure) >= cb.resetTimeout {
		cb.setState(StateHalfOpen, now)
	}
}

// setState transitions to the given state. Callers must hold cb.mu.
func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	switch state {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.probeInFlight = false
	case StateHalfOpen:
		cb.successCount = 0
		cb.probeInFlight = false
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"failure_count", cb.failureCount,
	)
}

// IsCircuitOpenError checks if an error came from an open circuit breaker
func IsCircuitOpenError(err error) bool {
	return errors.IsType(err, errors.ErrorTypeCircuitOpen)
}
