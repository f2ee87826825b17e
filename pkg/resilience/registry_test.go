package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerRegistry_SameInstancePerName(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{FailureThreshold: 5})

	cb1 := registry.Get("database")
	cb2 := registry.Get("database")
	cb3 := registry.Get("redis")

	assert.Same(t, cb1, cb2)
	assert.NotSame(t, cb1, cb3)
	assert.Equal(t, "database", cb1.Name())
	assert.Equal(t, "redis", cb3.Name())
}

func TestBreakerRegistry_Configure(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{FailureThreshold: 5})
	registry.Configure("slack", BreakerConfig{FailureThreshold: 1})

	// The configured breaker trips on a single failure
	slack := registry.Get("slack")
	slack.ReportFailure()
	assert.Equal(t, StateOpen, slack.State())

	// Others still use the defaults
	other := registry.Get("email")
	other.ReportFailure()
	assert.Equal(t, StateClosed, other.State())
}

func TestBreakerRegistry_ConfigureAfterCreationHasNoEffect(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{FailureThreshold: 5})

	cb := registry.Get("database")
	registry.Configure("database", BreakerConfig{FailureThreshold: 1})

	cb.ReportFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.Same(t, cb, registry.Get("database"))
}

func TestBreakerRegistry_DefaultOnStateChange(t *testing.T) {
	var mu sync.Mutex
	var changed []string

	registry := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to CircuitState) {
			mu.Lock()
			changed = append(changed, name)
			mu.Unlock()
		},
	})

	registry.Get("database").ReportFailure()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"database"}, changed)
}

func TestBreakerRegistry_Reset(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	cb := registry.Get("database")
	cb.ReportFailure()
	assert.Equal(t, StateOpen, cb.State())

	assert.True(t, registry.Reset("database"))
	assert.Equal(t, StateClosed, cb.State())

	assert.False(t, registry.Reset("never-created"))
}

func TestBreakerRegistry_ResetAll(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	registry.Get("database").ReportFailure()
	registry.Get("redis").ReportFailure()

	registry.ResetAll()

	assert.Equal(t, StateClosed, registry.Get("database").State())
	assert.Equal(t, StateClosed, registry.Get("redis").State())
}

func TestBreakerRegistry_NamesAndSnapshots(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{})

	registry.Get("redis")
	registry.Get("database")
	registry.Get("slack")

	assert.Equal(t, []string{"database", "redis", "slack"}, registry.Names())

	snapshots := registry.Snapshots()
	require.Len(t, snapshots, 3)
	assert.Equal(t, "database", snapshots[0].Name)
	assert.Equal(t, "closed", snapshots[0].State)
	assert.Equal(t, "slack", snapshots[2].Name)
}

func TestBreakerRegistry_ConcurrentGet(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{})

	var wg sync.WaitGroup
	breakers := make([]*CircuitBreaker, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = registry.Get("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < 50; i++ {
		assert.Same(t, breakers[0], breakers[i])
	}
	assert.Len(t, registry.Names(), 1)
}

func TestBreakerRegistry_Clear(t *testing.T) {
	registry := NewBreakerRegistry(BreakerConfig{})

	registry.Get("database")
	registry.Clear()

	assert.Empty(t, registry.Names())
}
