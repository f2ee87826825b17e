package resilience

import (
	"sort"
	"sync"

	"github.com/audiocove/audiocove-monitoring/pkg/logging"
)

// BreakerRegistry owns the circuit breakers for a process. Breakers are
// created lazily per name so callers share one breaker per dependency.
// The registry is handed to whoever needs it; there is no package-level
// instance.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	configs  map[string]BreakerConfig
	defaults BreakerConfig

	logger *logging.Logger
}

// NewBreakerRegistry creates a registry that stamps out breakers from the
// given default configuration
func NewBreakerRegistry(defaults BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		configs:  make(map[string]BreakerConfig),
		defaults: defaults,
		logger:   logging.GetLogger(),
	}
}

// Configure sets a per-name configuration used when the breaker for that
// name is first created. It has no effect on an already-created breaker.
func (r *BreakerRegistry) Configure(name string, config BreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	config.Name = name
	r.configs[name] = config
}

// Get returns the breaker for the given name, creating it on first use
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	config, ok := r.configs[name]
	if !ok {
		config = r.defaults
	}
	config.Name = name
	if config.OnStateChange == nil {
		config.OnStateChange = r.defaults.OnStateChange
	}

	cb = NewCircuitBreaker(config)
	r.breakers[name] = cb
	return cb
}

// Reset resets the named breaker to the closed state. It reports whether
// a breaker with that name existed.
func (r *BreakerRegistry) Reset(name string) bool {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	cb.Reset()
	r.logger.Info("Circuit breaker reset", "name", name)
	return true
}

// ResetAll resets every breaker to the closed state
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
	r.logger.Info("All circuit breakers reset", "count", len(breakers))
}

// Names returns the names of all created breakers, sorted
func (r *BreakerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots returns point-in-time views of all created breakers, sorted by name
func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	snapshots := make([]BreakerSnapshot, 0, len(breakers))
	for _, cb := range breakers {
		snapshots = append(snapshots, cb.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Name < snapshots[j].Name })
	return snapshots
}

// Clear drops all breakers. Intended for shutdown and tests.
func (r *BreakerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakers = make(map[string]*CircuitBreaker)
}
