package boc

import "sync/atomic"

// Shared is the reference-counting header embedded in every cown. Two
// counters control the lifetime:
//
//   - the strong count keeps the cown's contents alive. It starts at 1
//     for the creating reference and can never be revived once it
//     reaches zero.
//   - the weak count keeps the allocation itself alive. The strong
//     count as a whole owns one unit of the weak count, so the weak
//     count reaches zero only after the last strong reference and the
//     last weak handle are gone.
//
// The counts are manipulated through the owning Cown's Acquire,
// Release, WeakAcquire, WeakRelease and AcquireStrongFromWeak.
type Shared struct {
	strong atomic.Int64
	weak   atomic.Int64
}

func (s *Shared) initShared() {
	s.strong.Store(1)
	// The strong count owns one weak unit.
	s.weak.Store(1)
}

// Acquire takes a new strong reference. The caller must already hold a
// strong reference; acquiring a cown whose strong count has reached
// zero is a runtime invariant violation and panics.
func (c *Cown) Acquire() {
	if c.strong.Add(1) <= 1 {
		panic("boc: acquire of a cown with no strong references")
	}
	debugCown("acquire", c)
}

// Release drops a strong reference. When the last strong reference is
// dropped the cown's collect callback runs, outgoing references are
// released, and the strong count's weak unit is returned. The memory
// itself lives until the weak count also reaches zero.
func (c *Cown) Release() {
	n := c.strong.Add(-1)
	if n < 0 {
		panic("boc: release of a cown with no strong references")
	}
	if n > 0 {
		debugCown("release", c)
		return
	}
	debugCown("collect", c)
	c.collect()
	c.WeakRelease()
}

// WeakAcquire takes a weak handle on the cown. The caller must hold
// either a strong reference or another weak handle.
func (c *Cown) WeakAcquire() {
	if c.weak.Add(1) <= 1 {
		panic("boc: weak acquire of a dead cown")
	}
}

// WeakRelease drops a weak handle. When the weak count reaches zero
// the allocation is dead: the leak tracker is informed and the memory
// is left to the collector.
func (c *Cown) WeakRelease() {
	n := c.weak.Add(-1)
	if n < 0 {
		panic("boc: weak release of a dead cown")
	}
	if n == 0 {
		debugCown("free", c)
		cownFreed(c)
	}
}

// AcquireStrongFromWeak promotes a weak handle to a strong reference.
// It reports whether the promotion succeeded; it fails once the strong
// count has ever reached zero. On success the caller's weak handle is
// consumed by the promotion, so a caller that wants to keep the weak
// handle as well must follow with WeakAcquire.
func (c *Cown) AcquireStrongFromWeak() bool {
	for {
		cur := c.strong.Load()
		if cur == 0 {
			return false
		}
		if c.strong.CompareAndSwap(cur, cur+1) {
			// The handle's weak unit is absorbed into the strong set,
			// which already owns one, so return it. The count cannot
			// hit zero here: the strong set's own unit is still held.
			c.weak.Add(-1)
			return true
		}
	}
}

// collect runs the cown's finaliser, if any, exactly once, after the
// last strong reference is gone.
func (c *Cown) collect() {
	if c.finalizer != nil {
		f := c.finalizer
		c.finalizer = nil
		f()
	}
}
