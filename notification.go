package boc

import (
	"sync/atomic"
	"unsafe"
)

// States of the notification's coalescing machine.
const (
	// notifyWaiting: not running and not requested.
	notifyWaiting int32 = iota
	// notifyRequested: a notification has been requested since the
	// body last started; the behaviour is scheduled or about to be.
	notifyRequested
	// notifyRunning: the body is running and nothing has been
	// requested since it started.
	notifyRunning
)

// A Notification runs a fixed behaviour in response to Notify. Any
// number of Notify calls are coalesced into one run; a Notify that
// lands while the body is running schedules exactly one more run
// after it. The behaviour and its slots are allocated once and reused
// across runs; a Notify that schedules a run still allocates the
// temporary bookkeeping of ScheduleMany.
type Notification struct {
	status atomic.Int32
	b      *notificationBehaviour
}

// notificationBehaviour wraps the body with a pointer back to its
// notification. The core must remain the first field.
type notificationBehaviour struct {
	core BehaviourCore
	n    *Notification
	body func()
}

func invokeNotification(w *Work) {
	nb := (*notificationBehaviour)(unsafe.Pointer(w))
	n := nb.n
	// Requests that arrived before this point are satisfied by the
	// run that is starting.
	n.status.Store(notifyRunning)

	nb.body()

	Finished(w, true)
	n.finishedRunning()
}

func (n *Notification) finishedRunning() {
	if n.status.CompareAndSwap(notifyRunning, notifyWaiting) {
		return
	}
	// Requested again while running.
	n.schedule()
}

func (n *Notification) schedule() {
	ScheduleMany([]*BehaviourCore{&n.b.core})
}

// Notify requests a run of the notification's body on its cowns.
// Requests coalesce: any number of calls before the body starts cause
// one run, and calls during a run cause exactly one more.
func (n *Notification) Notify() {
	if n.status.Swap(notifyRequested) == notifyWaiting {
		n.schedule()
	}
}

// Close releases the notification's references on its cowns. The
// notification must be idle: closing one that is requested or running
// is a runtime invariant violation.
func (n *Notification) Close() {
	if n.status.Load() != notifyWaiting {
		panic("boc: close of an active notification")
	}
	for i := range n.b.core.slots {
		n.b.core.slots[i].cown.Release()
	}
	n.b = nil
}

// NewNotification builds a notification that runs f holding the
// requested cowns. The notification takes a strong reference on each
// cown for its lifetime; Close returns them.
func NewNotification(f func(), reqs ...Request) *Notification {
	n := &Notification{}
	nb := &notificationBehaviour{n: n, body: f}
	for _, r := range reqs {
		if r.move {
			panic("boc: notifications own their references; move makes no sense")
		}
	}
	nb.core.init(invokeNotification, reqs)
	for _, r := range reqs {
		r.cown.Acquire()
	}
	n.b = nb
	return n
}
