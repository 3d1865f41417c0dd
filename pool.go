package boc

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ThreadPool drives a fixed set of workers, one per core, each pinned
// to an OS thread while it runs. The pool is a process singleton
// obtained through Scheduler; behaviours resolved anywhere in the
// process are pushed onto its cores.
type ThreadPool struct {
	mu sync.Mutex
	cv *sync.Cond

	cores   []*Core
	workers []*worker

	// activeWorkers counts workers able to make progress; the pool
	// terminates when the last active worker finds every queue empty
	// and no external event source registered.
	activeWorkers   int
	sleepingWorkers int
	// sleeping mirrors sleepingWorkers so unpause can skip the lock
	// when nobody is asleep. A pausing worker publishes it before the
	// final queue scan, so an enqueue that misses it here is seen by
	// the scan instead.
	sleeping atomic.Int64
	// wakeGen invalidates waits, so a wake between the decision to
	// pause and the wait is never lost.
	wakeGen     uint64
	terminating atomic.Bool

	// externalEventSources blocks termination while positive.
	externalEventSources atomic.Int64

	// externalCursor round-robins work scheduled from goroutines that
	// are not workers.
	externalCursor atomic.Uint64

	fair        bool
	detectLeaks bool
	runID       string
}

var defaultPool ThreadPool

// Scheduler returns the process's thread pool.
func Scheduler() *ThreadPool {
	return &defaultPool
}

// schedule routes a resolved work item to a core. Inside a worker the
// item goes to the worker's own core; fifo=false uses the LIFO end so
// the item runs next. From any other goroutine the item round-robins
// across cores.
func schedule(w *Work, fifo bool) {
	defaultPool.scheduleWork(w, fifo)
}

// Init constructs cores and workers. The workers are not started;
// call Run. Init may be called again after Run returns to reuse the
// pool.
func (p *ThreadPool) Init(cores int) {
	p.InitWithConfig(Config{Cores: cores, Fairness: true})
}

// InitWithConfig is Init with the full set of knobs.
func (p *ThreadPool) InitWithConfig(cfg Config) {
	if cfg.Cores <= 0 {
		panic("boc: pool needs at least one core")
	}
	p.cv = sync.NewCond(&p.mu)
	p.cores = make([]*Core, cfg.Cores)
	for i := range p.cores {
		p.cores[i] = newCore(i)
	}
	for i, c := range p.cores {
		c.next = p.cores[(i+1)%len(p.cores)]
	}
	p.workers = make([]*worker, cfg.Cores)
	for i := range p.workers {
		p.workers[i] = &worker{pool: p, core: p.cores[i]}
	}
	p.activeWorkers = cfg.Cores
	p.sleepingWorkers = 0
	p.sleeping.Store(0)
	p.terminating.Store(false)
	p.fair = cfg.Fairness
	p.detectLeaks = cfg.DetectLeaks
	p.runID = uuid.NewString()
	leakTracking(cfg.DetectLeaks)
	logDebug("pool initialised",
		zap.String("run_id", p.runID),
		zap.Int("cores", cfg.Cores),
		zap.Bool("fairness", cfg.Fairness))
}

// Run starts the workers and blocks until the pool terminates: every
// queue drained, every worker idle, and no external event sources
// registered. After Run returns the pool may be re-initialised.
func (p *ThreadPool) Run() {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.run()
		}(w)
	}
	wg.Wait()
	logDebug("pool terminated", zap.String("run_id", p.runID))
	if p.detectLeaks {
		if err := CheckLeaks(); err != nil {
			panic(err)
		}
	}
}

// Cores returns the pool's cores, for ScheduleLIFO targets.
func (p *ThreadPool) Cores() []*Core {
	return p.cores
}

// CurrentCore returns the core of the calling worker, or nil when the
// caller is not a worker.
func (p *ThreadPool) CurrentCore() *Core {
	if w := currentWorker(); w != nil {
		return w.core
	}
	return nil
}

// Schedule pushes w in FIFO order onto the calling worker's core, or
// onto a round-robin core when called from outside the pool.
func (p *ThreadPool) Schedule(w *Work) {
	p.scheduleWork(w, true)
}

func (p *ThreadPool) scheduleWork(w *Work, fifo bool) {
	if wk := currentWorker(); wk != nil {
		if fifo {
			wk.scheduleFifo(w)
		} else {
			p.ScheduleLIFO(wk.core, w)
		}
		return
	}
	c := p.pickCore()
	if fifo {
		p.enqueue(c, w)
		if p.unpause() {
			c.stats.unpause()
		}
	} else {
		p.ScheduleLIFO(c, w)
	}
}

// ScheduleLIFO pushes w onto the head of c's queue and wakes the pool.
// Work scheduled this way runs before anything already queued on c;
// external event sources use it so reactions to outside events do not
// sit behind a backlog.
func (p *ThreadPool) ScheduleLIFO(c *Core, w *Work) {
	c.q.enqueueFront(w)
	c.stats.lifo()
	if p.unpause() {
		c.stats.unpause()
	}
}

// enqueue appends w to c's queue in FIFO order, planting the fairness
// token first if it is not already waiting in the queue.
func (p *ThreadPool) enqueue(c *Core, w *Work) {
	if p.fair && !c.tokenInQueue.Swap(true) {
		c.q.enqueue(c.token)
	}
	c.q.enqueue(w)
}

func (p *ThreadPool) pickCore() *Core {
	if len(p.cores) == 0 {
		panic("boc: scheduling before the pool is initialised")
	}
	return p.cores[p.externalCursor.Add(1)%uint64(len(p.cores))]
}

// AddExternalEventSource registers an external producer of work. The
// pool will not terminate while any source is registered.
func (p *ThreadPool) AddExternalEventSource() {
	n := p.externalEventSources.Add(1)
	logDebug("external event source added", zap.Int64("count", n))
}

// RemoveExternalEventSource unregisters an external producer. When the
// last source is removed the workers re-evaluate termination.
func (p *ThreadPool) RemoveExternalEventSource() {
	n := p.externalEventSources.Add(-1)
	if n < 0 {
		panic("boc: external event source count underflow")
	}
	if n == 0 {
		p.unpause()
	}
}

// HasExternalEventSources reports whether any external producer is
// registered.
func (p *ThreadPool) HasExternalEventSources() bool {
	return p.externalEventSources.Load() > 0
}

// unpause wakes every sleeping worker. It reports whether anybody was
// actually asleep.
func (p *ThreadPool) unpause() bool {
	if p.sleeping.Load() == 0 {
		return false
	}
	p.mu.Lock()
	woke := p.sleepingWorkers > 0
	p.wakeGen++
	p.cv.Broadcast()
	p.mu.Unlock()
	return woke
}

// pause parks the calling worker. The pause is refused, returning
// false, while any queue still holds work. The last active worker
// either initiates termination, when no external event source is
// registered, or sleeps awaiting an external wake. Returns true after
// the worker has slept and been woken.
func (p *ThreadPool) pause() bool {
	p.mu.Lock()
	if p.terminating.Load() {
		p.mu.Unlock()
		return false
	}

	// Announce the intent to sleep before the final queue scan. An
	// enqueue is ordered against these two atomics: either its
	// unpause sees us sleeping and takes the lock, or the scan below
	// sees the enqueued item and the pause is refused.
	p.sleepingWorkers++
	p.sleeping.Store(int64(p.sleepingWorkers))
	gen := p.wakeGen

	for _, c := range p.cores {
		if !c.q.isEmpty() {
			p.sleepingWorkers--
			p.sleeping.Store(int64(p.sleepingWorkers))
			p.mu.Unlock()
			return false
		}
	}

	if p.activeWorkers == 1 && p.externalEventSources.Load() == 0 {
		p.sleepingWorkers--
		p.sleeping.Store(int64(p.sleepingWorkers))
		p.terminating.Store(true)
		p.cv.Broadcast()
		p.mu.Unlock()
		logDebug("pool terminating", zap.String("run_id", p.runID))
		return false
	}

	p.activeWorkers--
	for p.wakeGen == gen && !p.terminating.Load() {
		p.cv.Wait()
	}
	p.activeWorkers++
	p.sleepingWorkers--
	p.sleeping.Store(int64(p.sleepingWorkers))
	p.mu.Unlock()
	return true
}

func (p *ThreadPool) terminated() bool {
	return p.terminating.Load()
}

// RunID identifies the current Init/Run cycle in logs.
func (p *ThreadPool) RunID() string {
	return p.runID
}
