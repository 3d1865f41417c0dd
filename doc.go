/*
Package boc implements a runtime for the Behaviour-Oriented Concurrency
model.

Programs schedule closures, called behaviours, that atomically acquire a
set of concurrent owners, called cowns. A behaviour executes once every
cown it requested is available, holding exclusive access to the cowns it
requested for writing and shared access to the cowns it requested for
reading. Behaviours that share a cown observe a strict happens-before
order determined by the order in which they were scheduled, so data
races on cown-protected state are impossible by construction, and the
sorted acquisition protocol makes cycles in the waits-for graph
impossible as well.

The core of the package is the behaviour scheduler. Each cown heads an
MCS-style wait chain of slots, one slot per cown request per behaviour.
ScheduleMany enqueues a group of behaviours atomically across all the
cowns the group references using two-phase locking at the slot level:
an acquire phase that exchanges each cown's chain tail in a single
global order, and a release phase that publishes every slot so that
later behaviours may link behind it. Runnable behaviours are handed to
a work-stealing pool of workers, one per core, each pinned to an OS
thread for the lifetime of the pool.

Basic use:

	boc.Scheduler().Init(4)

	counter := boc.NewCownPtr(0)
	boc.When(func() { *counter.Get()++ }, counter.Write())

	boc.Scheduler().Run()

When schedules a single behaviour. Prepare and Schedule construct a
batch of behaviours that are enqueued in one atomic step, so no other
behaviour can interleave with the batch on any of the cowns it touches.
Requests name the capability: Write for exclusive access, Read for
shared access, and Move to transfer the caller's strong reference on
the cown to the scheduler.

Cowns are reference counted with strong and weak counts. The scheduler
holds one strong reference on behalf of a cown's wait chain while the
chain is non-empty. Weak handles can be promoted back to strong
references until the strong count first reaches zero.

The pool terminates when every queue is empty and every worker is idle,
unless external event sources are registered. A goroutine outside the
pool that intends to schedule work must bracket itself with
AddExternalEventSource and RemoveExternalEventSource so the pool does
not shut down underneath it.
*/
package boc
