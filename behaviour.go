package boc

import (
	"sort"
	"sync/atomic"
	"unsafe"
)

// BehaviourCore is the scheduled form of a behaviour: a work item, the
// countdown to runnability, and one slot per requested cown. It builds
// a DAG of behaviours out of MCS-style queues, one per cown; unlike a
// queue lock, a waiting behaviour does not spin but carries the code
// to run once it has no predecessors.
//
// The Work must remain the first field: the scheduler converts between
// a *Work and its containing behaviour by address, mirroring the
// contiguous layout | Work | BehaviourCore | Slots | body |.
type BehaviourCore struct {
	work Work

	// execCountDown starts at len(slots)+1. Each available cown
	// resolves one unit; the extra unit is resolved only when
	// scheduling has finished publishing every slot, so the behaviour
	// cannot run, or be torn down, before its own 2PL completes.
	execCountDown atomic.Int64

	slots []Slot
}

// behaviourOf converts a work item back to its behaviour. Only valid
// for Work created through a behaviour constructor.
func behaviourOf(w *Work) *BehaviourCore {
	return (*BehaviourCore)(unsafe.Pointer(w))
}

func (b *BehaviourCore) init(fn func(*Work), reqs []Request) {
	b.work.fn = fn
	b.execCountDown.Store(int64(len(reqs)) + 1)
	b.slots = make([]Slot, len(reqs))
	for i, r := range reqs {
		if r.cown == nil {
			panic("boc: request with no cown")
		}
		s := &b.slots[i]
		s.cown = r.cown
		s.read = r.read
		s.move = r.move
		s.status.Store(statusWait)
	}
}

// NewBehaviourCore allocates a behaviour with one slot per request.
// fn receives the behaviour's work item when the behaviour becomes
// runnable and must end by calling Finished.
func NewBehaviourCore(fn func(*Work), reqs ...Request) *BehaviourCore {
	b := &BehaviourCore{}
	b.init(fn, reqs)
	return b
}

// Slots returns the behaviour's slot array.
func (b *BehaviourCore) Slots() []Slot {
	return b.slots
}

func (b *BehaviourCore) asWork() *Work {
	return &b.work
}

// resolve removes n from the countdown and schedules the behaviour's
// work when it reaches zero. The final transition skips the decrement;
// observing the count equal to n is enough.
func (b *BehaviourCore) resolve(n int64, fifo bool) {
	if b.execCountDown.Load() == n || b.execCountDown.Add(-n) == 0 {
		schedule(b.asWork(), fifo)
	}
}

// releaseAll releases every slot so successors can be scheduled. It
// must be called exactly once per execution of the behaviour.
func (b *BehaviourCore) releaseAll() {
	for i := range b.slots {
		b.slots[i].release()
	}
}

// reset returns the behaviour to its unscheduled state for reuse.
func (b *BehaviourCore) reset() {
	for i := range b.slots {
		b.slots[i].resetStatus()
	}
	b.execCountDown.Store(int64(len(b.slots)) + 1)
}

// Finished is called by a behaviour's function as its last act. It
// releases all slots, waking successors. With reuse the behaviour is
// reset for another ScheduleMany; otherwise it is left to the
// collector.
func Finished(w *Work, reuse bool) {
	b := behaviourOf(w)
	b.releaseAll()
	if reuse {
		b.reset()
	}
}

// acquireWithTransfer settles the chain's strong references on a cown:
// transfer references were handed over by the caller, required is what
// the chain actually needs (one if this chain started the cown's
// queue, zero otherwise).
func acquireWithTransfer(c *Cown, transfer, required int) {
	for ; transfer > required; transfer-- {
		c.Release()
	}
	for ; transfer < required; transfer++ {
		c.Acquire()
	}
}

// handleReadOnlyEnqueue attaches a reader-headed chain. If the
// predecessor accepts the link the chain waits. Otherwise the chain
// joins the active read front; the first reader overall owes the chain
// a reference (refCount 1).
func handleReadOnlyEnqueue(prev, chainFirst *Slot, firstReaders int64, c *Cown) (refCount int, canRun bool) {
	if prev != nil && prev.setNextSlotReaderContended(chainFirst) {
		return 0, false
	}
	if c.readRefCount.addRead(firstReaders) {
		return 1, true
	}
	return 0, true
}

// slotRef pairs a slot with the index of its behaviour inside a
// scheduling group.
type slotRef struct {
	bodyIndex int
	slot      *Slot
}

// chainInfo describes one per-cown segment of a scheduling group.
type chainInfo struct {
	cown           *Cown
	firstBodyIndex int
	firstSlot      *Slot
	lastSlot       *Slot
	// refs is the segment's span of the sorted request array,
	// duplicates included.
	refs []slotRef

	transferCount    int
	hadNoPredecessor bool
	refCount         int
	readOnlyCanRun   bool
	firstWriter      *BehaviourCore
	// firstReaders counts the consecutive reader slots at the head of
	// the segment, zero if the segment starts with a writer.
	firstReaders int64
}

// cownLess orders cowns during the sort phase. Acquiring every group's
// chains in one global order is what makes waits-for cycles
// impossible. The default orders by allocation sequence; replay
// tooling may substitute its own order before any scheduling happens.
var cownLess = func(a, b *Cown) bool { return a.id < b.id }

// SetCownOrder replaces the global cown acquisition order. It must be
// called before any behaviour is scheduled and the order must be
// total.
func SetCownOrder(less func(a, b *Cown) bool) {
	cownLess = less
}

// ScheduleMany schedules a group of behaviours in one atomic step: no
// other behaviour can come between members of the group on any cown
// the group references.
//
// Scheduling is two-phase locking at the slot level. The prepare phase
// sorts every requested slot by (cown order, behaviour index, writers
// before readers), coalesces duplicate requests, and pre-links each
// cown's slots into a segment. The acquire phase exchanges each cown's
// chain tail for the segment's tail, in sorted order, spinning only
// while a predecessor is inside its own acquire phase. The release
// phase publishes each segment tail as Ready or ReadAvailable. The
// final phase settles reference counts and resolves each behaviour
// once per cown that was immediately available.
func ScheduleMany(bodies []*BehaviourCore) {
	debugSchedule(len(bodies))

	cownCount := 0
	for _, b := range bodies {
		cownCount += len(b.slots)
	}

	// One unit per body is resolved unconditionally when scheduling
	// completes; it pairs with the +1 in the countdown and keeps the
	// behaviour alive through phase 3.
	ec := make([]int64, len(bodies))
	for i := range ec {
		ec[i] = 1
	}

	refs := make([]slotRef, 0, cownCount)
	for i, b := range bodies {
		slots := b.slots
		for j := range slots {
			if slots[j].cown == nil {
				// A duplicate nulled by an earlier run of a reused
				// behaviour. It stays out of every chain, but its
				// countdown unit must still be resolved.
				ec[i]++
				continue
			}
			refs = append(refs, slotRef{i, &slots[j]})
		}
	}

	// Writers sort before readers within one behaviour so that a
	// behaviour asking for both capabilities on one cown keeps the
	// write request and drops the read as a duplicate.
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.slot.cown == b.slot.cown {
			if a.bodyIndex == b.bodyIndex {
				return !a.slot.read && b.slot.read
			}
			return a.bodyIndex < b.bodyIndex
		}
		return cownLess(a.slot.cown, b.slot.cown)
	})

	// Phase 1: prepare. Build one chain segment per distinct cown.
	chains := make([]chainInfo, 0, cownCount)
	for i := 0; i < len(refs); {
		start := i
		cown := refs[i].slot.cown
		body := bodies[refs[i].bodyIndex]
		firstSlot := refs[i].slot
		firstBodyIndex := refs[i].bodyIndex

		transfer := firstSlot.takeMove()

		var firstWriter *BehaviourCore
		firstReaders := int64(0)
		if firstSlot.isReadOnly() {
			firstReaders = 1
		} else {
			firstWriter = body
		}

		curr := firstSlot
		for i+1 < len(refs) && refs[i+1].slot.cown == cown {
			i++
			next := refs[i].slot
			bodyNext := bodies[refs[i].bodyIndex]
			transfer += next.takeMove()

			if bodyNext == body {
				// Duplicate request within one behaviour: it cannot
				// wait for itself, so the slot leaves the chain and
				// the behaviour's countdown shrinks by one.
				ec[refs[i].bodyIndex]++
				next.setCownNull()
				continue
			}

			if next.isReadOnly() {
				curr.setNextSlotReaderUncontended(next)
				if firstWriter == nil {
					firstReaders++
				}
			} else {
				if firstWriter == nil {
					firstWriter = bodyNext
				}
				curr.setNextSlotWriterUncontended(bodyNext)
			}
			if curr.isReadOnly() {
				curr.setBehaviour(body)
			}
			body = bodyNext
			curr = next
		}
		if curr.isReadOnly() {
			curr.setBehaviour(body)
		}

		i++
		chains = append(chains, chainInfo{
			cown:           cown,
			firstBodyIndex: firstBodyIndex,
			firstSlot:      firstSlot,
			lastSlot:       curr,
			refs:           refs[start:i],
			transferCount:  transfer,
			firstWriter:    firstWriter,
			firstReaders:   firstReaders,
		})
		curr.resetStatus()
	}

	// Phase 2: acquire, in sorted cown order.
	for ci := range chains {
		ch := &chains[ci]
		prev := ch.cown.lastSlot.Swap(ch.lastSlot)

		if prev == nil {
			ch.hadNoPredecessor = true
			if ch.firstSlot.isReadOnly() {
				ch.refCount, ch.readOnlyCanRun =
					handleReadOnlyEnqueue(nil, ch.firstSlot, ch.firstReaders, ch.cown)
			}
			continue
		}

		// The predecessor must finish its own acquire phase before we
		// may link behind it; its release phase is non-blocking, so
		// this wait is bounded.
		var sp spinner
		for prev.isWait2PL() {
			sp.spin()
		}

		if ch.firstSlot.isReadOnly() {
			ch.refCount, ch.readOnlyCanRun =
				handleReadOnlyEnqueue(prev, ch.firstSlot, ch.firstReaders, ch.cown)
			continue
		}

		if !prev.setNextSlotWriterContended(bodies[ch.firstBodyIndex]) {
			// The predecessor had gone read available: this writer is
			// at the effective head and installs itself as the cown's
			// next writer in phase 4.
			ch.readOnlyCanRun = true
		}
	}

	// Phase 3: release. Publishing the tails is what lets successors
	// link behind; it is why the countdown starts one above the slot
	// count.
	for ci := range chains {
		ch := &chains[ci]
		if (ch.hadNoPredecessor || ch.readOnlyCanRun) && ch.firstWriter == nil {
			ch.lastSlot.setReadAvailableUncontended()
			continue
		}
		ch.lastSlot.setReady()
	}

	// Phase 4: process transfers and resolve.
	for ci := range chains {
		ch := &chains[ci]

		refCount := ch.refCount
		if ch.hadNoPredecessor {
			refCount++
		}
		acquireWithTransfer(ch.cown, ch.transferCount, refCount)

		if ch.hadNoPredecessor || ch.readOnlyCanRun {
			if !ch.firstSlot.isReadOnly() {
				if ch.cown.readRefCount.tryWrite() {
					ec[ch.firstBodyIndex]++
				} else {
					ch.cown.nextWriter.Store(bodies[ch.firstBodyIndex])
				}
				continue
			}
			if ch.firstWriter != nil {
				// A reader front with a writer queued behind it: the
				// writer must wait for the front to drain.
				if ch.cown.readRefCount.tryWrite() {
					panic("boc: reader chain head with no active readers")
				}
				ch.cown.nextWriter.Store(ch.firstWriter)
			}
		}

		if ch.readOnlyCanRun {
			// Each reader at the head of the segment got its cown.
			remaining := ch.firstReaders
			for _, r := range ch.refs {
				if remaining == 0 {
					break
				}
				if r.slot.cown == nil || !r.slot.isReadOnly() {
					continue
				}
				ec[r.bodyIndex]++
				remaining--
			}
		}
	}

	for i, b := range bodies {
		b.resolve(ec[i], true)
	}
}
