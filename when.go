package boc

import "unsafe"

// A Behaviour is a closure paired with a set of cown requests, ready
// to be scheduled on its own or as part of an atomic batch.
type Behaviour struct {
	core BehaviourCore // must remain first
	body func() Outcome
}

func invokeBehaviour(w *Work) {
	b := (*Behaviour)(unsafe.Pointer(w))
	if b.body() == Rerun {
		// Keep the cowns and the slots; just run again later.
		schedule(w, true)
		return
	}
	b.body = nil
	Finished(w, false)
}

// Prepare builds an unscheduled behaviour. Use Schedule to enqueue a
// group of prepared behaviours atomically; for a single behaviour,
// When is the shorthand.
func Prepare(f func(), reqs ...Request) *Behaviour {
	return PrepareOutcome(func() Outcome {
		f()
		return Done
	}, reqs...)
}

// PrepareOutcome is Prepare for bodies that may ask to run again. A
// body returning Rerun is re-enqueued while still holding every cown
// it acquired; only a Done invocation releases them.
func PrepareOutcome(f func() Outcome, reqs ...Request) *Behaviour {
	b := &Behaviour{body: f}
	b.core.init(invokeBehaviour, reqs)
	statsFor().behaviour(len(reqs))
	return b
}

// BehaviourCore returns the behaviour's scheduling core, for callers
// composing their own batches of BehaviourCore values.
func (b *Behaviour) BehaviourCore() *BehaviourCore {
	return &b.core
}

// Schedule enqueues a batch of prepared behaviours in one atomic step.
// No other behaviour can interleave with the batch on any cown the
// batch references.
func Schedule(bs ...*Behaviour) {
	cores := make([]*BehaviourCore, len(bs))
	for i, b := range bs {
		cores[i] = &b.core
	}
	ScheduleMany(cores)
}

// When schedules f to run once every requested cown is available. A
// When with no requests is runnable at once: it is enqueued on the
// calling worker's core, or on a round-robin core when called from
// outside the pool.
func When(f func(), reqs ...Request) {
	Schedule(Prepare(f, reqs...))
}
