// Package resilience provides circuit breaking, retry with exponential
// backoff, and connection pooling for calls the monitoring system makes
// to external dependencies.
//
// This package implements the following patterns:
//
// # Circuit Breaker Pattern
//
// The circuit breaker prevents cascading failures by counting
// consecutive failures within a monitoring window and temporarily
// rejecting calls once a threshold is crossed. After a reset timeout
// the breaker admits a single probe at a time; a run of probe
// successes closes it again.
//
//	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
//		Name:             "payment-gateway",
//		FailureThreshold: 5,
//		ResetTimeout:     60 * time.Second,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return gateway.Charge(ctx, order)
//	})
//
// Breakers for different dependencies are kept in a BreakerRegistry,
// which creates them on first use:
//
//	registry := resilience.NewBreakerRegistry(resilience.BreakerConfig{})
//	registry.Configure("slack", resilience.BreakerConfig{FailureThreshold: 3})
//	cb := registry.Get("slack")
//
// # Retry with Exponential Backoff
//
// A RetryPolicy computes delays that double after each attempt, capped
// at MaxDelay, with up to a second of jitter to avoid thundering herd
// problems. The Executor combines a policy with the registry so one
// call gets both behaviors, with the breaker observing the outcome of
// the whole retry sequence rather than each attempt:
//
//	executor := resilience.NewExecutor(registry)
//	err := executor.ExecuteVoid(ctx, "database", func(ctx context.Context) error {
//		return store.Save(ctx, record)
//	})
//
// Typed results go through the generic form:
//
//	user, err := resilience.ExecuteWithResult(ctx, executor, "database",
//		func(ctx context.Context) (*User, error) {
//			return store.GetUser(ctx, id)
//		})
//
// A fallback can serve degraded responses while the circuit is open:
//
//	result, err := executor.Execute(ctx, "geoip", lookup,
//		resilience.WithFallback(func(ctx context.Context) (interface{}, error) {
//			return cachedRegion, nil
//		}))
//
// # Connection Pooling
//
// ConnPool maintains a bounded set of connections with strict FIFO
// waiting, idle validation, and a background reaper that drops stale
// connections and keeps MinIdle warm.
//
//	pool, err := resilience.NewConnPool(resilience.PoolConfig{
//		Name:    "postgres",
//		MaxSize: 10,
//		Factory: func(ctx context.Context) (resilience.Conn, error) {
//			return dialDatabase(ctx)
//		},
//	})
//
//	pc, err := pool.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	err = useConnection(pc.Conn())
//	pc.Release(err)
//
// The package is designed to be thread-safe and can handle the
// high-concurrency check scheduling typical of the monitoring service.
package resilience
