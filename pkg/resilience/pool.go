package resilience

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
)

// Conn is a connection that can be pooled
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Factory creates new connections for a pool
type Factory func(ctx context.Context) (Conn, error)

// PoolConfig holds configuration for a connection pool
type PoolConfig struct {
	// Name of the pool for logging/metrics
	Name string
	// Factory creates connections on demand
	Factory Factory
	// MaxSize is the maximum number of connections, in use plus idle
	MaxSize int
	// MinIdle is the number of idle connections the reaper keeps warm
	MinIdle int
	// AcquireTimeout bounds how long Acquire waits for a free connection
	AcquireTimeout time.Duration
	// IdleTimeout is how long a connection may sit idle before it is reaped
	IdleTimeout time.Duration
	// ReapInterval is how often the reaper runs
	ReapInterval time.Duration
	// Metrics receives pool gauges and counters when set
	Metrics *metrics.Metrics
}

// PoolStats is a point-in-time view of pool state
type PoolStats struct {
	Name               string `json:"name"`
	MaxSize            int    `json:"max_size"`
	Active             int    `json:"active"`
	Idle               int    `json:"idle"`
	Waiting            int    `json:"waiting"`
	Created            int64  `json:"created"`
	Acquired           int64  `json:"acquired"`
	Released           int64  `json:"released"`
	Destroyed          int64  `json:"destroyed"`
	Timeouts           int64  `json:"timeouts"`
	ConnectionErrors   int64  `json:"connection_errors"`
	ValidationFailures int64  `json:"validation_failures"`
}

// PooledConn is a connection checked out of a pool. It must be returned
// with Release exactly once.
type PooledConn struct {
	id       string
	conn     Conn
	pool     *ConnPool
	lastUsed time.Time
	parked   bool
}

// ID identifies the connection across checkouts.
func (pc *PooledConn) ID() string {
	return pc.id
}

// Conn returns the underlying connection
func (pc *PooledConn) Conn() Conn {
	return pc.conn
}

// Release returns the connection to the pool. Pass the error the
// connection was last involved in, if any; a connection-lost error
// discards the connection instead of parking it.
func (pc *PooledConn) Release(err error) {
	pc.pool.release(pc, err)
}

// ConnPool is a bounded connection pool with strict FIFO waiting.
// Acquirers that find the pool exhausted queue up and are served in
// arrival order as connections come back.
type ConnPool struct {
	name           string
	factory        Factory
	maxSize        int
	minIdle        int
	acquireTimeout time.Duration
	idleTimeout    time.Duration
	reapInterval   time.Duration

	mu      sync.Mutex
	idle    []*PooledConn // oldest first
	waiters *list.List    // of chan *PooledConn, buffered size 1
	total   int           // connections that exist plus reserved creation slots
	closed  bool

	created            int64
	acquired           int64
	released           int64
	destroyed          int64
	timeouts           int64
	connectionErrors   int64
	validationFailures int64

	closeCh    chan struct{}
	drainCh    chan struct{}
	reaperDone chan struct{}

	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewConnPool creates a connection pool and starts its reaper. MinIdle
// connections are warmed in the background.
func NewConnPool(config PoolConfig) (*ConnPool, error) {
	if config.Factory == nil {
		return nil, errors.NewValidationError("pool factory is required")
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 10
	}
	if config.MinIdle < 0 {
		config.MinIdle = 0
	}
	if config.MinIdle > config.MaxSize {
		config.MinIdle = config.MaxSize
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 5 * time.Second
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = time.Minute
	}
	if config.Metrics == nil {
		config.Metrics = &metrics.Metrics{}
	}

	p := &ConnPool{
		name:           config.Name,
		factory:        config.Factory,
		maxSize:        config.MaxSize,
		minIdle:        config.MinIdle,
		acquireTimeout: config.AcquireTimeout,
		idleTimeout:    config.IdleTimeout,
		reapInterval:   config.ReapInterval,
		waiters:        list.New(),
		closeCh:        make(chan struct{}),
		drainCh:        make(chan struct{}, 1),
		reaperDone:     make(chan struct{}),
		logger:         logging.GetLogger(),
		metrics:        config.Metrics,
	}

	go p.reaper()
	go p.ensureMinIdle()

	return p, nil
}

// Acquire returns a connection from the pool, creating one if there is
// room and waiting FIFO behind earlier acquirers otherwise. Idle
// connections are validated with Ping before being handed out.
func (p *ConnPool) Acquire(ctx context.Context) (*PooledConn, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	for {
		if err := ctx.Err(); err != nil {
			return nil, p.acquireErr(err)
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errors.NewUnavailableError(fmt.Sprintf("connection pool %s is closed", p.name))
		}

		// Reuse the most recently parked connection
		if n := len(p.idle); n > 0 {
			pc := p.idle[n-1]
			p.idle = p.idle[:n-1]
			pc.parked = false
			p.mu.Unlock()

			if err := pc.conn.Ping(ctx); err != nil {
				p.logger.Debug("Discarding idle connection that failed validation",
					"pool", p.name,
					"error", err.Error(),
				)
				p.mu.Lock()
				p.validationFailures++
				p.mu.Unlock()
				p.destroyConn(pc)
				continue
			}

			p.mu.Lock()
			p.acquired++
			p.mu.Unlock()
			p.metrics.RecordPoolAcquire(p.name, time.Since(start))
			return pc, nil
		}

		// Reserve a slot and create outside the lock
		if p.total < p.maxSize {
			p.total++
			p.mu.Unlock()

			conn, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.connectionErrors++
				p.notifyWaiterLocked(nil)
				p.mu.Unlock()
				return nil, err
			}

			p.mu.Lock()
			p.created++
			p.acquired++
			p.mu.Unlock()

			p.metrics.RecordPoolAcquire(p.name, time.Since(start))
			return &PooledConn{id: uuid.New().String(), conn: conn, pool: p, lastUsed: time.Now()}, nil
		}

		// Pool exhausted: queue up behind earlier acquirers
		ch := make(chan *PooledConn, 1)
		elem := p.waiters.PushBack(ch)
		p.mu.Unlock()

		select {
		case pc := <-ch:
			if pc == nil {
				// A slot opened without a connection to hand over; race for it
				continue
			}
			p.mu.Lock()
			p.acquired++
			p.mu.Unlock()
			p.metrics.RecordPoolAcquire(p.name, time.Since(start))
			return pc, nil

		case <-ctx.Done():
			p.mu.Lock()
			p.waiters.Remove(elem)
			// A release may have handed us a connection in the gap
			// between the deadline firing and taking the lock; pass it
			// on so the slot is not leaked.
			select {
			case pc := <-ch:
				if pc != nil {
					pc.parked = true
					if p.notifyWaiterLocked(pc) {
						break
					}
					p.idle = append(p.idle, pc)
				}
			default:
			}
			p.timeouts++
			p.mu.Unlock()

			p.metrics.RecordPoolAcquireTimeout(p.name)
			return nil, p.acquireErr(ctx.Err())

		case <-p.closeCh:
			p.mu.Lock()
			p.waiters.Remove(elem)
			p.mu.Unlock()
			return nil, errors.NewUnavailableError(fmt.Sprintf("connection pool %s is closed", p.name))
		}
	}
}

func (p *ConnPool) acquireErr(err error) error {
	if err == context.DeadlineExceeded {
		return errors.NewTimeoutError(fmt.Sprintf("acquiring connection from pool %s", p.name))
	}
	return err
}

// Execute runs op with a pooled connection and releases it on every exit
// path, panics included. The error op returns is passed to Release, so a
// connection-lost failure retires the connection instead of parking it.
func (p *ConnPool) Execute(ctx context.Context, op func(ctx context.Context, conn Conn) error) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	var opErr error
	defer func() {
		pc.Release(opErr)
	}()

	opErr = op(ctx, pc.conn)
	return opErr
}

// release returns a connection to the pool or destroys it
func (p *ConnPool) release(pc *PooledConn, err error) {
	p.mu.Lock()
	if pc.parked {
		p.mu.Unlock()
		return
	}
	p.released++

	if p.closed {
		p.mu.Unlock()
		p.destroyConn(pc)
		return
	}

	if err != nil && errors.IsConnectionLost(err) {
		p.connectionErrors++
		p.mu.Unlock()
		p.logger.Warn("Discarding lost connection",
			"pool", p.name,
			"error", err.Error(),
		)
		p.destroyConn(pc)
		return
	}

	pc.lastUsed = time.Now()
	if p.notifyWaiterLocked(pc) {
		p.mu.Unlock()
		return
	}

	pc.parked = true
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
}

// notifyWaiterLocked hands a connection to the longest waiting acquirer,
// or signals a freed slot when pc is nil. Callers must hold p.mu.
func (p *ConnPool) notifyWaiterLocked(pc *PooledConn) bool {
	front := p.waiters.Front()
	if front == nil {
		return false
	}
	p.waiters.Remove(front)

	if pc != nil {
		pc.parked = false
	}
	front.Value.(chan *PooledConn) <- pc
	return true
}

// destroyConn closes a connection and frees its slot
func (p *ConnPool) destroyConn(pc *PooledConn) {
	if err := pc.conn.Close(); err != nil {
		p.logger.Debug("Error closing pooled connection",
			"pool", p.name,
			"error", err.Error(),
		)
	}

	p.mu.Lock()
	p.total--
	p.destroyed++
	p.notifyWaiterLocked(nil)
	p.mu.Unlock()

	p.nudgeDrain()
}

func (p *ConnPool) nudgeDrain() {
	select {
	case p.drainCh <- struct{}{}:
	default:
	}
}

// reaper periodically drops connections that have sat idle too long and
// replenishes the pool back up to MinIdle
func (p *ConnPool) reaper() {
	defer close(p.reaperDone)

	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCh:
			return
		case <-ticker.C:
			p.reap()
			p.ensureMinIdle()
			p.updateGauges()
		}
	}
}

func (p *ConnPool) reap() {
	now := time.Now()
	var expired []*PooledConn

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	for len(p.idle) > p.minIdle {
		pc := p.idle[0]
		if now.Sub(pc.lastUsed) <= p.idleTimeout {
			break
		}
		p.idle = p.idle[1:]
		expired = append(expired, pc)
	}
	p.mu.Unlock()

	for _, pc := range expired {
		p.logger.Debug("Reaping idle connection",
			"pool", p.name,
			"idle_for", now.Sub(pc.lastUsed).String(),
		)
		p.destroyConn(pc)
	}
}

// ensureMinIdle creates connections until MinIdle are available
func (p *ConnPool) ensureMinIdle() {
	for {
		p.mu.Lock()
		if p.closed || p.total >= p.minIdle {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := p.factory(ctx)
		cancel()
		if err != nil {
			p.mu.Lock()
			p.total--
			p.connectionErrors++
			p.mu.Unlock()
			p.logger.Warn("Failed to replenish pool",
				"pool", p.name,
				"error", err.Error(),
			)
			return
		}

		pc := &PooledConn{id: uuid.New().String(), conn: conn, pool: p, lastUsed: time.Now()}
		p.mu.Lock()
		if p.closed {
			p.total--
			p.mu.Unlock()
			_ = conn.Close()
			return
		}
		p.created++
		if !p.notifyWaiterLocked(pc) {
			pc.parked = true
			p.idle = append(p.idle, pc)
		}
		p.mu.Unlock()
	}
}

func (p *ConnPool) updateGauges() {
	p.mu.Lock()
	active := p.total - len(p.idle)
	idle := len(p.idle)
	waiting := p.waiters.Len()
	p.mu.Unlock()

	p.metrics.UpdatePoolConnections(p.name, active, idle, waiting)
}

// Stats returns a point-in-time view of the pool
func (p *ConnPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Name:               p.name,
		MaxSize:            p.maxSize,
		Active:             p.total - len(p.idle),
		Idle:               len(p.idle),
		Waiting:            p.waiters.Len(),
		Created:            p.created,
		Acquired:           p.acquired,
		Released:           p.released,
		Destroyed:          p.destroyed,
		Timeouts:           p.timeouts,
		ConnectionErrors:   p.connectionErrors,
		ValidationFailures: p.validationFailures,
	}
}

// Close drains the pool. Idle connections are closed immediately;
// connections still in use get until the context deadline to come home
// before Close gives up and reports the stragglers.
func (p *ConnPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	idle := p.idle
	p.idle = nil
	for _, pc := range idle {
		pc.parked = false
	}
	p.mu.Unlock()

	<-p.reaperDone

	for _, pc := range idle {
		p.destroyConn(pc)
	}

	for {
		p.mu.Lock()
		remaining := p.total
		p.mu.Unlock()
		if remaining == 0 {
			p.logger.Info("Connection pool closed", "pool", p.name)
			return nil
		}

		select {
		case <-ctx.Done():
			p.logger.Warn("Pool close grace period expired",
				"pool", p.name,
				"remaining", remaining,
			)
			return errors.NewTimeoutError(fmt.Sprintf("draining connection pool %s", p.name))
		case <-p.drainCh:
		}
	}
}
