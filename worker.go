package boc

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// workBatchSize bounds how many times in a row a worker may take
	// its thread-local item instead of going through the queue, so
	// stealable work is published often enough.
	workBatchSize = 100

	// quiescenceTimeout is how long a worker hunts for work before it
	// attempts to pause.
	quiescenceTimeout = time.Millisecond
)

// worker runs one core. It is pinned to an OS thread from start to
// exit so the thread id identifies the worker to scheduling calls made
// from inside behaviours.
type worker struct {
	pool   *ThreadPool
	core   *Core
	victim *Core

	// nextWork holds the most recently scheduled local item, kept out
	// of the queue to skip synchronisation. The previous holder is
	// flushed whenever a new one arrives or other work is taken.
	nextWork *Work
}

// workersByTID maps a worker's locked OS thread to the worker, giving
// scheduling calls made inside behaviours their core without any
// argument threading. Goroutines outside the pool miss the map and
// take the external path.
var workersByTID sync.Map // int -> *worker

func currentWorker() *worker {
	tid := currentTID()
	if tid == 0 {
		return nil
	}
	if w, ok := workersByTID.Load(tid); ok {
		return w.(*worker)
	}
	return nil
}

func (w *worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if tid := currentTID(); tid != 0 {
		workersByTID.Store(tid, w)
		defer workersByTID.Delete(tid)
	}

	w.core.servicingThreads.Add(1)
	defer w.core.servicingThreads.Add(-1)
	w.victim = w.core.next

	batch := workBatchSize
	for {
		work := w.getWork(&batch)
		if work == nil {
			return
		}
		work.run()
	}
}

// scheduleFifo stashes w as the worker's next item, flushing the
// previous one to the queue.
func (w *worker) scheduleFifo(work *Work) {
	w.returnNextWork()
	w.nextWork = work
}

// returnNextWork publishes the thread-local item so other workers can
// steal it.
func (w *worker) returnNextWork() {
	if w.nextWork == nil {
		return
	}
	work := w.nextWork
	w.nextWork = nil
	w.pool.enqueue(w.core, work)
	if w.pool.unpause() {
		w.core.stats.unpause()
	}
}

// getWork finds the next item to run, or nil when the pool has
// terminated.
func (w *worker) getWork(batch *int) *Work {
	if w.nextWork != nil && *batch != 0 {
		*batch--
		work := w.nextWork
		w.nextWork = nil
		return work
	}
	*batch = workBatchSize

	if w.core.shouldStealForFairness.Swap(false) {
		if work := w.trySteal(); work != nil {
			w.returnNextWork()
			return work
		}
	}

	if work := w.core.q.dequeue(); work != nil {
		w.returnNextWork()
		return work
	}

	// Our queue looked empty; treat it like receiving the token and
	// try one steal.
	if work := w.trySteal(); work != nil {
		w.returnNextWork()
		return work
	}

	if w.nextWork != nil {
		work := w.nextWork
		w.nextWork = nil
		return work
	}

	return w.steal()
}

// trySteal makes a single attempt on the current victim and rotates.
func (w *worker) trySteal() *Work {
	var work *Work
	if w.victim != w.core {
		work = w.victim.q.dequeue()
		if work != nil {
			logDebug("fast steal", zap.Int("core", w.core.index), zap.Int("victim", w.victim.index))
		}
	}
	w.victim = w.victim.next
	return work
}

// stealAll detaches the victim's whole chain and re-homes it on our
// queue, returning one item to run. Taking the segment rather than an
// element amortises contention with the victim's other thieves; links
// that a producer has not yet published complete after the move
// because they live inside the work items themselves.
func (w *worker) stealAll() *Work {
	if w.victim == w.core {
		w.victim = w.victim.next
		return nil
	}
	seg := w.victim.q.dequeueAll()
	w.victim = w.victim.next
	if seg.start == nil {
		return nil
	}
	if work := seg.takeOne(); work != nil {
		w.core.q.enqueueSegment(seg)
		w.core.stats.steal()
		return work
	}
	// Single element, or its link is still being published.
	w.core.q.enqueueSegment(seg)
	w.core.stats.steal()
	return w.core.q.dequeue()
}

// steal is the out-of-work loop: re-check the local queue, raid the
// victim ring, and after a quiescence timeout try to pause. Returns
// nil only on pool termination.
func (w *worker) steal() *Work {
	start := time.Now()
	for !w.pool.terminated() {
		if work := w.core.q.dequeue(); work != nil {
			return work
		}
		if work := w.stealAll(); work != nil {
			return work
		}

		if time.Since(start) < quiescenceTimeout {
			runtime.Gosched()
			continue
		}

		if w.pool.pause() {
			w.core.stats.pause()
			start = time.Now()
		}
	}
	return nil
}
