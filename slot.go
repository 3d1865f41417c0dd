package boc

import "sync/atomic"

// statusKind discriminates the states of a slot's status word. The
// order matters: anything below statusChainClosedK means no successor
// has responded yet.
type statusKind uint8

const (
	// statusWaitK: two-phase locking in progress, successors spin.
	statusWaitK statusKind = iota
	// statusReadyK: 2PL complete, a successor may link behind.
	statusReadyK
	// statusReadAvailableK: 2PL complete and the cown is in read-only
	// mode with no writing waiters; further readers start immediately.
	statusReadAvailableK
	// statusChainClosedK: the successor has taken over the chain; the
	// behaviour owning this slot need not notify anyone on release.
	statusChainClosedK
	// statusNextReaderK: the next chain entry is a reader slot.
	statusNextReaderK
	// statusNextWriterK: the next chain entry is a writing behaviour.
	statusNextWriterK
)

// slotStatus is one state of the slot status machine. The four scalar
// states are package singletons, so compare-and-swap on the status
// pointer distinguishes them by identity exactly as a tagged word
// would; the two Next states allocate one node per link.
type slotStatus struct {
	kind      statusKind
	slot      *Slot          // statusNextReaderK
	behaviour *BehaviourCore // statusNextWriterK
}

var (
	statusWait          = &slotStatus{kind: statusWaitK}
	statusReady         = &slotStatus{kind: statusReadyK}
	statusReadAvailable = &slotStatus{kind: statusReadAvailableK}
	statusChainClosed   = &slotStatus{kind: statusChainClosedK}
)

// A Slot is one cown request inside a behaviour and a node in that
// cown's wait chain.
//
// The scheduler of the owning behaviour transitions the status
// Wait to Ready and Wait to ReadAvailable. A writer ahead in the chain
// transitions Ready to ReadAvailable when its release wakes the read
// front. The successor behaviour transitions Ready to Next and
// ReadAvailable to ChainClosed. The only contended transition is from
// Ready, where the successor's link races the move to ReadAvailable;
// one CAS wins.
type Slot struct {
	// cown this slot waits on. Nil marks a duplicate request inside a
	// single behaviour, which takes no part in any chain.
	cown *Cown

	// read requests shared access; move transfers one of the caller's
	// strong references to the scheduler.
	read bool
	move bool

	status atomic.Pointer[slotStatus]

	// behaviour owning this slot. Set during chain construction for
	// reader slots so that a predecessor waking the read front can
	// resolve them; writer slots are always reached through the
	// status word of their predecessor instead.
	behaviour *BehaviourCore
}

// takeMove consumes the transfer flag, returning how many strong
// references the caller handed over (0 or 1).
func (s *Slot) takeMove() int {
	if !s.move {
		return 0
	}
	s.move = false
	return 1
}

func (s *Slot) isReadOnly() bool { return s.read }

// isWait2PL reports whether the owning behaviour is still inside its
// acquire phase; successors spin on this.
func (s *Slot) isWait2PL() bool {
	return s.status.Load() == statusWait
}

// setReady publishes the end of the acquire phase.
func (s *Slot) setReady() {
	s.status.Store(statusReady)
}

// setReadAvailableUncontended marks a reader slot read available when
// no successor can exist yet.
func (s *Slot) setReadAvailableUncontended() {
	if s.status.Load() != statusWait {
		panic("boc: read available on a published slot")
	}
	s.status.Store(statusReadAvailable)
}

// setReadAvailableContended attempts Ready to ReadAvailable against a
// successor racing to link behind. Reports whether it won.
func (s *Slot) setReadAvailableContended() bool {
	return s.status.Load() == statusReady &&
		s.status.CompareAndSwap(statusReady, statusReadAvailable)
}

// noSuccessorResponse reports whether no successor has updated this
// slot yet.
func (s *Slot) noSuccessorResponse() bool {
	return s.status.Load().kind < statusChainClosedK
}

func (s *Slot) nextIsReader() bool {
	return s.status.Load().kind == statusNextReaderK
}

// nextSlot returns the next reader slot in the chain.
func (s *Slot) nextSlot() *Slot {
	st := s.status.Load()
	if st.kind != statusNextReaderK {
		panic("boc: next chain entry is not a reader")
	}
	return st.slot
}

// nextBehaviour returns the next writing behaviour in the chain.
func (s *Slot) nextBehaviour() *BehaviourCore {
	st := s.status.Load()
	if st.kind != statusNextWriterK {
		panic("boc: next chain entry is not a writer")
	}
	return st.behaviour
}

// setNextSlotReaderUncontended pre-links a reader successor during the
// prepare phase, before the slot is visible to anyone else.
func (s *Slot) setNextSlotReaderUncontended(n *Slot) {
	if s.status.Load() != statusWait {
		panic("boc: pre-link on a published slot")
	}
	s.status.Store(&slotStatus{kind: statusNextReaderK, slot: n})
}

// setNextSlotReaderContended links a reader successor behind a
// published slot. Reports whether the link was installed; on failure
// the slot had become read available, the successor joins the read
// front instead, and the slot is marked ChainClosed to acknowledge the
// takeover.
func (s *Slot) setNextSlotReaderContended(n *Slot) bool {
	next := &slotStatus{kind: statusNextReaderK, slot: n}
	if s.status.Load() == statusReady && s.status.CompareAndSwap(statusReady, next) {
		return true
	}
	s.status.Store(statusChainClosed)
	return false
}

// setNextSlotWriterUncontended pre-links a writer successor during the
// prepare phase.
func (s *Slot) setNextSlotWriterUncontended(b *BehaviourCore) {
	if s.status.Load() != statusWait {
		panic("boc: pre-link on a published slot")
	}
	s.status.Store(&slotStatus{kind: statusNextWriterK, behaviour: b})
}

// setNextSlotWriterContended links a writer successor behind a
// published slot. A writer slot never becomes read available, so the
// store is uncontended there; behind a reader slot the link races the
// move to ReadAvailable and the loser installs itself through the
// cown's nextWriter instead.
func (s *Slot) setNextSlotWriterContended(b *BehaviourCore) bool {
	next := &slotStatus{kind: statusNextWriterK, behaviour: b}
	if !s.isReadOnly() {
		s.status.Store(next)
		return true
	}
	if s.status.Load() == statusReady && s.status.CompareAndSwap(statusReady, next) {
		return true
	}
	s.status.Store(statusChainClosed)
	return false
}

// setCownNull marks the slot as a duplicate of another slot of the
// same behaviour.
func (s *Slot) setCownNull() {
	s.cown = nil
}

func (s *Slot) setBehaviour(b *BehaviourCore) {
	s.behaviour = b
}

// resetStatus returns the slot to Wait so it can be scheduled.
func (s *Slot) resetStatus() {
	s.status.Store(statusWait)
}

// wakeupNextWriter hands the cown to the writer waiting behind a
// drained reader front. The writer may still be in the middle of
// installing itself, so this can spin briefly.
func (s *Slot) wakeupNextWriter() {
	c := s.cown
	w := c.nextWriter.Load()
	if w == nil {
		var sp spinner
		for {
			if w = c.nextWriter.Load(); w != nil {
				break
			}
			sp.spin()
		}
	}
	c.nextWriter.Store(nil)
	w.resolve(1, true)
}

// dropRead releases this slot's read hold on the cown. The last reader
// wakes a waiting writer and returns the chain's strong reference.
func (s *Slot) dropRead() {
	switch s.cown.readRefCount.releaseRead() {
	case readNotLast:
	case readLastWaitingWriter:
		s.wakeupNextWriter()
		fallthrough
	case readLastReader:
		s.cown.Release()
	}
}

// release is called for each slot when its behaviour has finished. It
// hands the cown to the slot's successor, or returns the chain's
// strong reference when the chain ends here.
func (s *Slot) release() {
	// Duplicate requests never joined a chain.
	if s.cown == nil {
		return
	}
	if s.isWait2PL() {
		panic("boc: released a slot still in its acquire phase")
	}

	if s.noSuccessorResponse() {
		if s.cown.lastSlot.CompareAndSwap(s, nil) {
			// Chain ends here. A reader also gives up its read hold;
			// either way the chain's reference goes back.
			if s.isReadOnly() {
				s.dropRead()
			}
			s.cown.Release()
			return
		}
		// Lost the race: a successor is extending the chain. Wait for
		// its response.
		var sp spinner
		for s.noSuccessorResponse() {
			sp.spin()
		}
	}

	if s.isReadOnly() {
		s.dropRead()
		return
	}

	if !s.nextIsReader() {
		// Writer handing to writer.
		s.nextBehaviour().resolve(1, true)
		return
	}

	// Writer waking a reader front. Take the first read hold and the
	// chain's reference for the front, then sweep the chain making
	// each reader available until it ends or a writer appears.
	if !s.cown.readRefCount.addRead(1) {
		panic("boc: readers active while a writer held the cown")
	}
	s.cown.Acquire()

	writerAtEnd := false
	curr := s.nextSlot()
	count := int64(0)
	var sp spinner
	for {
		// A segment tail linked here may still be inside its group's
		// acquire phase; wait out its release phase before judging it.
		for curr.isWait2PL() {
			sp.spin()
		}
		if curr.setReadAvailableContended() {
			break
		}
		if !curr.nextIsReader() {
			writerAtEnd = true
			break
		}
		curr = curr.nextSlot()
		count++
	}
	if count > 0 {
		s.cown.readRefCount.addRead(count)
	}

	if writerAtEnd {
		if s.cown.readRefCount.tryWrite() {
			panic("boc: writer admitted past an active reader front")
		}
		s.cown.nextWriter.Store(curr.nextBehaviour())
	}

	// Resolve every woken reader. All but the first skip the FIFO
	// queue so the front fans out across cores quickly.
	last := curr
	curr = s.nextSlot()
	first := true
	for curr != last {
		next := curr.nextSlot()
		curr.behaviour.resolve(1, first)
		first = false
		curr = next
	}
	last.behaviour.resolve(1, first)
}
