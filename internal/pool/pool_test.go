package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arannis/docpool/pkg/target"
)

func testTarget() target.Target {
	return target.Target{
		Name:                "t1",
		URI:                 "ws://fake/rpc",
		MinSize:             2,
		MaxSize:             4,
		ConnectionTimeout:   time.Second,
		AcquisitionTimeout:  2 * time.Second,
		MaxIdleTime:         time.Hour,
		MaxLifetime:         time.Hour,
		MaxUsageCount:       1000,
		HealthCheckInterval: time.Hour, // disabled for most tests
		RetryAttempts:       1,
		RetryDelay:          time.Millisecond,
	}
}

// S1: a fresh pool has MinSize idle connections and no one in use.
func TestNew_WarmsUpToMinSize(t *testing.T) {
	d := &fakeDialer{}
	p, err := New("t1", testTarget(), d)
	require.NoError(t, err)
	defer p.Close()

	stats := p.Stats()
	assert.EqualValues(t, 2, stats.CurrentSize)
	assert.EqualValues(t, 0, stats.CurrentInUse)
	assert.EqualValues(t, 2, stats.ConnectionsCreated)
}

// New tears down every connection it built if any construction in the
// initial batch fails.
func TestNew_WarmUpFailureTearsDownEverything(t *testing.T) {
	d := &fakeDialer{failAuth: true}
	p, err := New("t1", testTarget(), d)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrAuthenticationFailed))

	for _, s := range d.sessions {
		assert.True(t, s.isClosed())
	}
}

// S2: Acquire hands out an idle connection without dialing when one is
// available.
func TestAcquire_ReusesIdleConnection(t *testing.T) {
	d := &fakeDialer{}
	p, err := New("t1", testTarget(), d)
	require.NoError(t, err)
	defer p.Close()

	before := d.dialCount.Load()
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, d.dialCount.Load())

	c.Release(Ok)
}

// S3: Acquire grows the pool by dialing a new connection when no idle
// connection exists and the pool is below MaxSize.
func TestAcquire_GrowsUnderDemand(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 2
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	before := d.dialCount.Load()

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, d.dialCount.Load())

	c1.Release(Ok)
	c2.Release(Ok)
}

// S4: Acquire enqueues as a waiter once MaxSize is reached and is served
// when a connection is released.
func TestAcquire_WaitsThenServedOnRelease(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var waited *Conn
	var waitErr error
	go func() {
		defer wg.Done()
		waited, waitErr = p.Acquire(context.Background())
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine enqueue
	assert.EqualValues(t, 1, p.Stats().CurrentWaiters)

	c1.Release(Ok)
	wg.Wait()

	require.NoError(t, waitErr)
	require.NotNil(t, waited)
	waited.Release(Ok)
}

// S5: Acquire returns ErrAcquireTimeout when no connection becomes
// available before the context deadline.
func TestAcquire_TimesOut(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	tg.AcquisitionTimeout = 50 * time.Millisecond
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer c1.Release(Ok)

	_, err = p.Acquire(context.Background())
	assert.True(t, errors.Is(err, ErrAcquireTimeout))
}

// Acquire respects a caller-supplied context deadline shorter than
// AcquisitionTimeout.
func TestAcquire_RespectsCallerDeadline(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer c1.Release(Ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = p.Acquire(ctx)
	assert.Less(t, time.Since(start), time.Second)
	assert.Error(t, err)
}

// A connection released with Failed is retired, not returned to idle.
func TestRelease_FailedOutcomeRetiresConnection(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	fs := c.Session().(*fakeSession)
	c.Release(Failed)

	assert.True(t, fs.isClosed())

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.ConnectionsClosed)
}

// A failed release under MaxSize with a waiter queued must build a fresh
// connection for that waiter rather than only topping back up to MinSize.
func TestRelease_FailedOutcomeServesQueuedWaiterUnderMaxSize(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 2
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var waited *Conn
	var waitErr error
	go func() {
		defer wg.Done()
		waited, waitErr = p.Acquire(context.Background())
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine enqueue
	assert.EqualValues(t, 1, p.Stats().CurrentWaiters)

	a.Release(Failed)
	wg.Wait()

	require.NoError(t, waitErr)
	require.NotNil(t, waited)
	waited.Release(Ok)
	b.Release(Ok)
}

// Release is idempotent: calling it twice must not double-count or panic.
func TestRelease_Idempotent(t *testing.T) {
	d := &fakeDialer{}
	p, err := New("t1", testTarget(), d)
	require.NoError(t, err)
	defer p.Close()

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)

	c.Release(Ok)
	c.Release(Ok)

	assert.EqualValues(t, 1, p.Stats().Releases)
}

// S6: after Close, Acquire returns ErrPoolClosed and every connection is
// closed exactly once.
func TestClose_RejectsAcquireAndClosesConnections(t *testing.T) {
	d := &fakeDialer{}
	p, err := New("t1", testTarget(), d)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close()) // idempotent

	_, err = p.Acquire(context.Background())
	assert.True(t, errors.Is(err, ErrPoolClosed))

	for _, s := range d.sessions {
		assert.Equal(t, 1, s.closeCount)
	}
}

// Close wakes every blocked waiter with ErrPoolClosed instead of leaving it
// hanging.
func TestClose_DrainsWaiters(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	p, err := New("t1", tg, d)
	require.NoError(t, err)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer c1.Release(Ok)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrPoolClosed))
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken by Close")
	}
}

// WithConn releases the connection on every exit path, including panics.
func TestWithConn_ReleasesOnPanic(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	assert.Panics(t, func() {
		_ = p.WithConn(context.Background(), func(c *Conn) error {
			panic("boom")
		})
	})

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c.Release(Ok)
}

// WithConn propagates fn's error and releases as Failed.
func TestWithConn_PropagatesError(t *testing.T) {
	d := &fakeDialer{}
	p, err := New("t1", testTarget(), d)
	require.NoError(t, err)
	defer p.Close()

	sentinel := errors.New("boom")
	err = p.WithConn(context.Background(), func(c *Conn) error {
		return sentinel
	})
	assert.Equal(t, sentinel, err)
}

// Connections retired by usage/lifetime limits are never handed out again.
func TestAcquire_RetiresConnectionPastMaxUsage(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	tg.MaxUsageCount = 1
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	fs1 := c1.Session().(*fakeSession)
	c1.Release(Ok)

	// background refill may or may not have completed; Acquire must dial a
	// fresh connection regardless, since the first exceeded MaxUsageCount.
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	fs2 := c2.Session().(*fakeSession)
	assert.NotSame(t, fs1, fs2)
	c2.Release(Ok)
}
