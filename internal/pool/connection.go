// Package pool implements the connection pool's concurrency core: the
// pooled-connection wrapper (this file), the waiter queue (waiter.go), the
// stats recorder (stats.go), the pool state machine (pool.go), and the
// background health maintainer (health.go).
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/arannis/docpool/internal/metrics"
	"github.com/arannis/docpool/internal/transport"
)

// connState tracks a pooledConnection's lifecycle stage.
type connState int

const (
	connIdle connState = iota
	connActive
	connChecking // temporarily removed from idle by the health maintainer
	connClosed
)

// pooledConnection wraps one transport.Session with usage/health
// bookkeeping. It owns its session exclusively: only the current holder (an
// acquirer, or the pool itself during reset/probe/close) ever calls into
// session.
type pooledConnection struct {
	mu sync.Mutex

	id      uint64
	session transport.Session

	state      connState
	healthy    bool
	usageCount uint64

	createdAt  time.Time
	lastUsedAt time.Time
}

func newPooledConnection(id uint64, session transport.Session) *pooledConnection {
	now := time.Now()
	return &pooledConnection{
		id:         id,
		session:    session,
		state:      connIdle,
		healthy:    true,
		createdAt:  now,
		lastUsedAt: now,
	}
}

// markUsed transitions the connection to active, stamping usage.
func (c *pooledConnection) markUsed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = connActive
	c.usageCount++
	c.lastUsedAt = time.Now()
}

// markFree transitions the connection back to idle. lastUsedAt is restamped
// only when the connection was in use; a connection coming back from a
// health probe keeps its previous stamp so idle reaping still sees it.
func (c *pooledConnection) markFree() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == connActive {
		c.lastUsedAt = time.Now()
	}
	c.state = connIdle
}

// markChecking marks the connection as transiently removed from idle by the
// health maintainer, preserving invariants 3 and 5 while it is off the idle
// slice but not yet handed to a caller.
func (c *pooledConnection) markChecking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = connChecking
}

// markUnhealthy marks the connection unhealthy. Idempotent; once false,
// healthy never returns to true.
func (c *pooledConnection) markUnhealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = false
}

func (c *pooledConnection) isHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

func (c *pooledConnection) usage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usageCount
}

func (c *pooledConnection) age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.createdAt)
}

func (c *pooledConnection) idleDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastUsedAt)
}

// close terminates the underlying session. Idempotent.
func (c *pooledConnection) close() error {
	c.mu.Lock()
	if c.state == connClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = connClosed
	c.mu.Unlock()
	return c.session.Close()
}

// Conn is the handle callers receive from Pool.Acquire. It wraps the
// internal pooledConnection plus a back-reference to the pool so Release
// can be called without exposing pool internals.
type Conn struct {
	pool *Pool
	pc   *pooledConnection

	released bool
	mu       sync.Mutex
}

// Outcome describes how the caller's use of a connection went, driving the
// retirement decision in Pool.Release.
type Outcome int

const (
	// Ok indicates the connection is healthy and safe to reuse.
	Ok Outcome = iota
	// Failed indicates the caller observed a failure that may have broken
	// the underlying session; the connection is retired.
	Failed
)

// Session returns the underlying transport session for the caller to issue
// RPCs against. It is only valid between Acquire and Release.
func (c *Conn) Session() transport.Session {
	return c.pc.session
}

// Execute runs statement against the underlying session and records its
// duration, so callers get RPC-level timing without instrumenting every call
// site themselves.
func (c *Conn) Execute(ctx context.Context, statement string, params map[string]any) (transport.Result, error) {
	start := time.Now()
	res, err := c.pc.session.Execute(ctx, statement, params)
	metrics.RPCDuration.WithLabelValues(c.pool.name).Observe(time.Since(start).Seconds())
	return res, err
}

// Release returns the connection to its pool with the given outcome. It is
// safe to call at most once; subsequent calls are no-ops.
func (c *Conn) Release(outcome Outcome) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.mu.Unlock()
	c.pool.release(c.pc, outcome)
}

// ReleaseErr is a convenience wrapper: any non-nil err is treated as Failed,
// marking the connection unhealthy before release.
func (c *Conn) ReleaseErr(err error) {
	if err != nil {
		c.pc.markUnhealthy()
		c.Release(Failed)
		return
	}
	c.Release(Ok)
}
