package boc

import "sync/atomic"

// A Work is the scheduler's unit of execution: a function plus the
// intrusive link used while the item sits in a core's queue. Types
// that want richer payloads embed a Work as their first field, and
// their function recovers the container from the Work pointer.
type Work struct {
	// nextInQueue is owned by a queue between enqueue and dequeue. It
	// is never reused by the work item itself after dequeue.
	nextInQueue atomic.Pointer[Work]

	// fn executes the work item. It is called with the item itself and
	// is the sole authority on the allocation's fate: it may drop all
	// references so the item is collected, reschedule the item, or
	// keep it alive for later finishing.
	fn func(*Work)
}

// run invokes the work item's function.
func (w *Work) run() {
	w.fn(w)
}

// NewClosure builds a Work from a plain function. The function is
// called with the Work each time the item is run. Returning true tells
// the runtime the closure is finished, and its captured state is
// released; returning false keeps the item alive, which is how a
// closure reschedules itself:
//
//	w := boc.NewClosure(func(self *boc.Work) bool {
//		if moreToDo() {
//			boc.Scheduler().Schedule(self)
//			return false
//		}
//		return true
//	})
func NewClosure(f func(*Work) bool) *Work {
	w := &Work{}
	w.fn = func(self *Work) {
		if f(self) {
			// Done. Drop the captured state so it can be collected
			// even if something still holds the Work.
			self.fn = nil
		}
	}
	return w
}

// Outcome is returned by rerunnable behaviour bodies to choose between
// finishing the behaviour and running it again without releasing its
// cowns in between.
type Outcome uint8

const (
	// Done finishes the behaviour: its slots are released and its
	// successors may run.
	Done Outcome = iota
	// Rerun re-enqueues the behaviour's work item. The behaviour keeps
	// every cown it holds; no successor can run until a later
	// invocation returns Done.
	Rerun
)
