package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arannis/docpool/internal/transport"
	"github.com/arannis/docpool/pkg/target"
)

// Pool is the connection pool state machine. It tracks idle/in-use/broken
// connections, a FIFO waiter queue with timeouts, and the elastic sizing
// policy (min/max, idle reaping, lifetime/usage retirement).
type Pool struct {
	mu sync.Mutex

	name   string
	target target.Target
	dialer transport.Dialer

	connections map[uint64]*pooledConnection
	idle        []*pooledConnection // LIFO: append/pop at the tail
	waiters     waiterQueue
	creating    int
	closed      bool
	nextID      atomic.Uint64

	stats statsRecorder

	stopHealth chan struct{}
	healthWG   sync.WaitGroup
}

// New validates t, applies its defaults, eagerly constructs MinSize
// connections through dialer, and starts the background health maintainer.
// If any of the initial connections fail to construct after exhausting the
// retry policy, every connection already built is torn down and New returns
// the error.
func New(name string, t target.Target, dialer transport.Dialer) (*Pool, error) {
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return nil, configError("target %s: %v", name, err)
	}

	p := &Pool{
		name:        name,
		target:      t,
		dialer:      dialer,
		connections: make(map[uint64]*pooledConnection, t.MaxSize),
		idle:        make([]*pooledConnection, 0, t.MaxSize),
		stats:       newStatsRecorder(name),
		stopHealth:  make(chan struct{}),
	}

	if err := p.warmUp(); err != nil {
		return nil, err
	}

	p.healthWG.Add(1)
	go p.maintenanceLoop()

	return p, nil
}

// warmUp concurrently constructs MinSize connections, bootstraps the schema
// on the first one if configured, and tears everything down if any
// construction fails.
func (p *Pool) warmUp() error {
	type result struct {
		pc  *pooledConnection
		err error
	}

	results := make([]result, p.target.MinSize)
	var wg sync.WaitGroup
	for i := 0; i < p.target.MinSize; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			pc, err := p.createConnection(context.Background())
			results[idx] = result{pc: pc, err: err}
		}(i)
	}
	wg.Wait()

	var firstErr error
	built := make([]*pooledConnection, 0, p.target.MinSize)
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		built = append(built, r.pc)
	}

	if firstErr != nil {
		for _, pc := range built {
			pc.close()
		}
		return createError(p.name, firstErr)
	}

	if p.target.SchemaBootstrap != "" && len(built) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.target.ConnectionTimeout)
		_, err := built[0].session.Execute(ctx, p.target.SchemaBootstrap, nil)
		cancel()
		if err != nil {
			for _, pc := range built {
				pc.close()
			}
			return fmt.Errorf("pool %s: schema bootstrap failed: %w", p.name, err)
		}
	}

	p.mu.Lock()
	for _, pc := range built {
		p.connections[pc.id] = pc
		p.idle = append(p.idle, pc)
		p.stats.recordConnectionCreated()
	}
	p.syncGaugesLocked()
	p.mu.Unlock()

	return nil
}

// Acquire borrows a connection, blocking as needed. ctx's deadline is
// clamped to AcquisitionTimeout from now if it is absent or later than that.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	ctx, cancel := p.clampDeadline(ctx)
	defer cancel()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if pc := p.popValidIdleLocked(); pc != nil {
			pc.markUsed()
			p.stats.recordAcquisition()
			p.syncGaugesLocked()
			p.mu.Unlock()
			return p.wrap(pc), nil
		}

		if len(p.connections)+p.creating < p.target.MaxSize {
			p.creating++
			p.mu.Unlock()

			pc, err := p.createConnection(ctx)

			p.mu.Lock()
			p.creating--
			if err != nil {
				p.stats.recordError("create_failed")
				wrapped := createError(p.name, err)
				for w := p.waiters.popFront(); w != nil; w = p.waiters.popFront() {
					if w.tryDeliver(waiterResult{err: wrapped}) {
						break
					}
				}
				p.syncGaugesLocked()
				p.mu.Unlock()
				return nil, wrapped
			}
			p.connections[pc.id] = pc
			pc.markUsed()
			p.stats.recordConnectionCreated()
			p.stats.recordAcquisition()
			p.syncGaugesLocked()
			p.mu.Unlock()
			return p.wrap(pc), nil
		}

		w := newWaiter()
		enqueuedAt := time.Now()
		p.waiters.pushBack(w)
		p.syncGaugesLocked()
		p.mu.Unlock()

		select {
		case res := <-w.deliver:
			if res.err != nil {
				return nil, res.err
			}
			p.mu.Lock()
			p.stats.recordAcquisition()
			p.stats.recordQueueWait(time.Since(enqueuedAt))
			p.syncGaugesLocked()
			p.mu.Unlock()
			return p.wrap(res.conn), nil

		case <-ctx.Done():
			if w.markDead() {
				p.mu.Lock()
				p.stats.recordTimeout()
				p.syncGaugesLocked()
				p.mu.Unlock()
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, ErrAcquireTimeout
				}
				return nil, ctx.Err()
			}
			// Lost the race: a connection was already committed to this
			// waiter. Take delivery rather than leak it.
			res := <-w.deliver
			if res.err != nil {
				return nil, res.err
			}
			p.mu.Lock()
			p.stats.recordAcquisition()
			p.stats.recordQueueWait(time.Since(enqueuedAt))
			p.syncGaugesLocked()
			p.mu.Unlock()
			return p.wrap(res.conn), nil
		}
	}
}

// WithConn acquires a connection, invokes fn, and guarantees release on
// every exit path including panics.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			c.pc.markUnhealthy()
			c.Release(Failed)
			panic(r)
		}
	}()

	err = fn(c)
	c.ReleaseErr(err)
	return err
}

// release is called by (*Conn).Release and implements the retire/reset/
// reuse decision for a returned connection.
func (p *Pool) release(pc *pooledConnection, outcome Outcome) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pc.close()
		return
	}

	if outcome == Failed || !pc.isHealthy() {
		pc.markUnhealthy()
		p.retireLocked(pc)
		p.stats.recordUnhealthyDetected()
		p.stats.recordRelease()
		p.syncGaugesLocked()
		p.mu.Unlock()
		pc.close()
		p.refillAsync()
		return
	}

	if pc.usage() >= uint64(p.target.MaxUsageCount) || pc.age() >= p.target.MaxLifetime {
		p.retireLocked(pc)
		p.stats.recordRelease()
		p.syncGaugesLocked()
		p.mu.Unlock()
		pc.close()
		p.refillAsync()
		return
	}

	if p.target.ResetOnReturn {
		p.mu.Unlock()
		err := p.resetConnection(pc)
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			pc.close()
			return
		}
		if err != nil {
			pc.markUnhealthy()
			p.retireLocked(pc)
			p.stats.recordUnhealthyDetected()
			p.stats.recordRelease()
			p.syncGaugesLocked()
			p.mu.Unlock()
			pc.close()
			p.refillAsync()
			return
		}
	}

	p.offerToWaiterOrIdleLocked(pc)
	p.stats.recordRelease()
	p.syncGaugesLocked()
	p.mu.Unlock()
}

// Close is idempotent: it drains every waiter with ErrPoolClosed, closes
// every connection (outside the lock), and stops the health maintainer.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopHealth)

	p.waiters.drain(ErrPoolClosed)

	toClose := make([]*pooledConnection, 0, len(p.connections))
	for _, pc := range p.connections {
		toClose = append(toClose, pc)
		p.stats.recordConnectionClosed()
	}
	p.connections = nil
	p.idle = nil
	p.syncGaugesLocked()
	p.mu.Unlock()

	for _, pc := range toClose {
		pc.close()
	}

	p.healthWG.Wait()

	log.Printf("[pool] %s: closed (%d connections closed)", p.name, len(toClose))
	return nil
}

// Stats returns a consistent snapshot of the pool's counters and gauges.
func (p *Pool) Stats() StatsSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshot()
}

// Name returns the pool's registry name.
func (p *Pool) Name() string { return p.name }

// ── internals ────────────────────────────────────────────────────────────

// clampDeadline ensures ctx's effective deadline is no later than
// AcquisitionTimeout from now.
func (p *Pool) clampDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	max := time.Now().Add(p.target.AcquisitionTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(max) {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, max)
}

func (p *Pool) wrap(pc *pooledConnection) *Conn {
	return &Conn{pool: p, pc: pc}
}

// syncGaugesLocked recomputes the level-triggered stats gauges from the
// pool's current connection/idle/waiter sets. Must be called with the lock
// held, after any mutation to p.connections, p.idle, or p.waiters.
func (p *Pool) syncGaugesLocked() {
	size := len(p.connections)
	inUse := size - len(p.idle)
	p.stats.syncGauges(size, inUse, p.waiters.len())
}

// popValidIdleLocked pops connections off the idle LIFO stack, closing and
// discarding any that meet a retirement criterion, until it finds one to
// hand out or the stack is empty. Must be called with the lock held; closes
// discarded connections outside the lock by briefly releasing it.
func (p *Pool) popValidIdleLocked() *pooledConnection {
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		pc := p.idle[n]
		p.idle = p.idle[:n]

		if p.retirementReasonLocked(pc) == "" {
			return pc
		}

		p.retireLocked(pc)
		p.syncGaugesLocked()
		p.mu.Unlock()
		pc.close()
		p.mu.Lock()

		if p.closed {
			return nil
		}
	}
	return nil
}

// retirementReasonLocked reports why pc should be retired, or "" if it
// remains eligible for reuse. Must be called with the lock held (it reads
// len(p.connections)).
func (p *Pool) retirementReasonLocked(pc *pooledConnection) string {
	if !pc.isHealthy() {
		return "unhealthy"
	}
	if pc.usage() >= uint64(p.target.MaxUsageCount) {
		return "max_usage"
	}
	if pc.age() >= p.target.MaxLifetime {
		return "max_lifetime"
	}
	if p.target.MaxIdleTime > 0 && pc.idleDuration() >= p.target.MaxIdleTime && len(p.connections) > p.target.MinSize {
		return "max_idle"
	}
	return ""
}

// retireLocked removes pc from the connection set and records the closure.
// The caller is responsible for actually closing pc outside the lock.
func (p *Pool) retireLocked(pc *pooledConnection) {
	delete(p.connections, pc.id)
	p.stats.recordConnectionClosed()
}

// offerToWaiterOrIdleLocked hands pc to the next live waiter, retrying
// against subsequent waiters if tryDeliver loses a race to a waiter's own
// timeout, falling back to the idle LIFO stack once no live waiter remains.
func (p *Pool) offerToWaiterOrIdleLocked(pc *pooledConnection) {
	for {
		w := p.waiters.popFront()
		if w == nil {
			pc.markFree()
			p.idle = append(p.idle, pc)
			return
		}
		pc.markUsed()
		if w.tryDeliver(waiterResult{conn: pc}) {
			return
		}
	}
}

// createConnection runs the retry policy around one session construction:
// dial, authenticate, and select namespace/database, each attempt bounded
// by ConnectionTimeout. Authentication failures are never retried.
func (p *Pool) createConnection(ctx context.Context) (*pooledConnection, error) {
	attempts := p.target.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(p.target.RetryDelay):
			case <-ctx.Done():
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, ctx.Err()
			}
		}

		pc, err := p.attemptConnect(ctx)
		if err == nil {
			return pc, nil
		}
		if errors.Is(err, ErrAuthenticationFailed) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *Pool) attemptConnect(ctx context.Context) (*pooledConnection, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.target.ConnectionTimeout)
	defer cancel()

	session, err := p.dialer.Dial(attemptCtx, p.target.URI, p.target.TLSConfig, p.target.ConnectionTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	if err := session.Authenticate(attemptCtx, p.target.Credentials); err != nil {
		session.Close()
		if transport.Fatal(err) {
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if p.target.Namespace != "" || p.target.Database != "" {
		if err := session.Use(attemptCtx, p.target.Namespace, p.target.Database); err != nil {
			session.Close()
			return nil, fmt.Errorf("use: %w", err)
		}
	}

	id := p.nextID.Add(1)
	return newPooledConnection(id, session), nil
}

// resetConnection re-issues namespace/database selection to clear session
// state before returning a connection to idle. Bounded by ConnectionTimeout.
func (p *Pool) resetConnection(pc *pooledConnection) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.target.ConnectionTimeout)
	defer cancel()
	return pc.session.Use(ctx, p.target.Namespace, p.target.Database)
}

// refillAsync launches background construction to restore MinSize after a
// retirement, and, when waiters are queued, to build enough additional
// connections (bounded by MaxSize) to serve them too, subject to the retry
// policy. Failures are logged, never propagated: background tasks never
// raise to callers.
func (p *Pool) refillAsync() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	toMin := p.target.MinSize - (len(p.connections) + p.creating)
	if toMin < 0 {
		toMin = 0
	}
	headroom := p.target.MaxSize - (len(p.connections) + p.creating)
	forWaiters := p.waiters.len()
	if forWaiters > headroom {
		forWaiters = headroom
	}
	if forWaiters < 0 {
		forWaiters = 0
	}
	n := toMin
	if forWaiters > n {
		n = forWaiters
	}
	if n <= 0 {
		p.mu.Unlock()
		return
	}
	p.creating += n
	p.mu.Unlock()

	go func() {
		for i := 0; i < n; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), p.target.ConnectionTimeout*time.Duration(p.target.RetryAttempts+1))
			pc, err := p.createConnection(ctx)
			cancel()

			p.mu.Lock()
			p.creating--
			if p.closed {
				p.mu.Unlock()
				if err == nil {
					pc.close()
				}
				return
			}
			if err != nil {
				log.Printf("[pool] %s: background refill failed: %v", p.name, err)
				p.mu.Unlock()
				continue
			}
			p.connections[pc.id] = pc
			p.stats.recordConnectionCreated()
			p.offerToWaiterOrIdleLocked(pc)
			p.syncGaugesLocked()
			p.mu.Unlock()
		}
	}()
}
