package boc

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// A Core is one scheduling context: a queue of runnable work, the
// fairness token affinitised to it, and its position in the steal
// ring. There is one core per worker for the lifetime of the pool.
type Core struct {
	index int
	q     mpmcQueue

	// next links the cores into a ring for round-robin victim
	// selection. Fixed after Init.
	next *Core

	// shouldStealForFairness is raised by the token and consumed by
	// the worker before it next drains its own queue. Racy by design;
	// it is a heuristic.
	shouldStealForFairness atomic.Bool

	// token is allocated once and reused. Its body raises the fairness
	// flag and marks the token dequeued; the token is re-enqueued the
	// next time work is scheduled on this core, so an idle core's
	// queue is genuinely empty. The rate at which the token resurfaces
	// is therefore inversely proportional to the core's backlog.
	token        *Work
	tokenInQueue atomic.Bool

	servicingThreads atomic.Int64

	stats SchedulerStats

	_ cpu.CacheLinePad
}

func newCore(index int) *Core {
	c := &Core{index: index}
	c.q.init()
	c.token = NewClosure(func(*Work) bool {
		c.shouldStealForFairness.Store(true)
		c.tokenInQueue.Store(false)
		return false
	})
	return c
}

// Index reports the core's position in the pool.
func (c *Core) Index() int {
	return c.index
}
