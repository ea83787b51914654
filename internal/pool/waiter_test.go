package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaiterQueue_FIFOOrder(t *testing.T) {
	var q waiterQueue
	w1, w2, w3 := newWaiter(), newWaiter(), newWaiter()
	q.pushBack(w1)
	q.pushBack(w2)
	q.pushBack(w3)

	assert.Same(t, w1, q.popFront())
	assert.Same(t, w2, q.popFront())
	assert.Same(t, w3, q.popFront())
	assert.Nil(t, q.popFront())
}

func TestWaiterQueue_SkipsDeadWaiters(t *testing.T) {
	var q waiterQueue
	w1, w2 := newWaiter(), newWaiter()
	q.pushBack(w1)
	q.pushBack(w2)

	q.remove(w1)
	assert.Same(t, w2, q.popFront())
}

func TestWaiterQueue_DrainDeliversErrToEveryWaiter(t *testing.T) {
	var q waiterQueue
	w1, w2 := newWaiter(), newWaiter()
	q.pushBack(w1)
	q.pushBack(w2)

	sentinel := assert.AnError
	q.drain(sentinel)

	res1 := <-w1.deliver
	res2 := <-w2.deliver
	assert.Equal(t, sentinel, res1.err)
	assert.Equal(t, sentinel, res2.err)
	assert.Equal(t, 0, q.len())
}

func TestWaiter_TryDeliverOnlySucceedsOnce(t *testing.T) {
	w := newWaiter()
	assert.True(t, w.tryDeliver(waiterResult{}))
	assert.False(t, w.tryDeliver(waiterResult{}))
}

func TestWaiter_MarkDeadWinsRaceAgainstTryDeliver(t *testing.T) {
	w := newWaiter()
	assert.True(t, w.markDead())
	// A deliverer that loses the race must be told to find another home.
	assert.False(t, w.tryDeliver(waiterResult{}))
}

func TestWaiterQueue_CompactsAfterEnoughPops(t *testing.T) {
	var q waiterQueue
	for i := 0; i < 10; i++ {
		q.pushBack(newWaiter())
	}
	for i := 0; i < 10; i++ {
		q.popFront()
	}
	assert.Equal(t, 0, len(q.items))
	assert.Equal(t, 0, q.head)
}
