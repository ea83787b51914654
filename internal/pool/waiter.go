package pool

import "sync/atomic"

// waiterResult is the one-shot delivery payload for a waiter: either a
// connection or a terminal error, never both.
type waiterResult struct {
	conn *pooledConnection
	err  error
}

// waiter is one acquirer enrolled in the FIFO queue because no capacity was
// available at enrollment time. deliver is buffered (capacity 1) so the
// delivering side never blocks on a waiter that has already timed out or
// been cancelled.
type waiter struct {
	deliver chan waiterResult
	dead    atomic.Bool
}

func newWaiter() *waiter {
	return &waiter{deliver: make(chan waiterResult, 1)}
}

// markDead marks the waiter so a racing deliverer skips it. Returns true the
// first time it transitions to dead (so only one caller treats this as "I
// own removing it from the queue").
func (w *waiter) markDead() bool {
	return w.dead.CompareAndSwap(false, true)
}

func (w *waiter) isDead() bool {
	return w.dead.Load()
}

// tryDeliver attempts to hand the waiter its result. Returns false if the
// waiter is already dead, in which case the caller must find another home
// for the connection: a waiter must never be delivered to twice.
func (w *waiter) tryDeliver(res waiterResult) bool {
	if !w.dead.CompareAndSwap(false, true) {
		return false
	}
	w.deliver <- res
	return true
}

// waiterQueue is a FIFO of *waiter with O(1) amortized enqueue/dequeue. It is
// backed by a slice with a head index rather than container/list to avoid
// per-node allocation; the slice is compacted once the popped head run
// reaches half its length, keeping amortized cost O(1) per op.
type waiterQueue struct {
	items []*waiter
	head  int
}

func (q *waiterQueue) pushBack(w *waiter) {
	q.items = append(q.items, w)
}

// popFront removes and returns the first live waiter, skipping and
// discarding any dead ones it encounters. Returns nil if the queue is empty
// of live waiters.
func (q *waiterQueue) popFront() *waiter {
	for q.head < len(q.items) {
		w := q.items[q.head]
		q.head++
		q.compactIfNeeded()
		if !w.isDead() {
			return w
		}
	}
	q.reset()
	return nil
}

// len reports the number of waiters believed live (may transiently
// overcount a waiter that died but hasn't been popped yet; current_waiters
// is a best-effort gauge, not a hard invariant target).
func (q *waiterQueue) len() int {
	return len(q.items) - q.head
}

// remove marks w dead in place. The waiter stays in the slice until it is
// popped (or the queue is compacted), giving O(1) removal cost at the
// expense of transient overcounting in len().
func (q *waiterQueue) remove(w *waiter) {
	w.markDead()
}

func (q *waiterQueue) compactIfNeeded() {
	if q.head > 0 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
}

func (q *waiterQueue) reset() {
	q.items = q.items[:0]
	q.head = 0
}

// drain marks every remaining waiter dead and delivers err to each, used by
// Pool.Close to fail every in-flight waiter with ErrPoolClosed.
func (q *waiterQueue) drain(err error) {
	for q.head < len(q.items) {
		w := q.items[q.head]
		q.head++
		w.tryDeliver(waiterResult{err: err})
	}
	q.reset()
}
