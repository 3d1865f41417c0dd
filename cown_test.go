package boc

import "testing"

func TestCownStrongLifecycle(t *testing.T) {
	finalised := false
	c := NewCownWithFinalizer(func() { finalised = true })
	if got := c.strong.Load(); got != 1 {
		t.Fatalf("new cown strong = %d, want 1", got)
	}

	c.Acquire()
	if got := c.strong.Load(); got != 2 {
		t.Fatalf("strong after acquire = %d, want 2", got)
	}

	c.Release()
	if finalised {
		t.Fatal("finaliser ran while a strong reference remained")
	}
	c.Release()
	if !finalised {
		t.Fatal("finaliser did not run at the last release")
	}
	if got := c.weak.Load(); got != 0 {
		t.Errorf("weak = %d after last strong release, want 0", got)
	}
}

func TestCownAcquireAfterDeathPanics(t *testing.T) {
	c := NewCown()
	c.Release()
	defer func() {
		if recover() == nil {
			t.Error("acquire of a dead cown did not panic")
		}
	}()
	c.Acquire()
}

func TestCownWeakOutlivesStrong(t *testing.T) {
	c := NewCown()
	c.WeakAcquire()
	c.Release()

	// The strong count is poisoned; promotion must refuse.
	if c.AcquireStrongFromWeak() {
		t.Fatal("promotion succeeded after the strong count reached zero")
	}
	if got := c.weak.Load(); got != 1 {
		t.Fatalf("weak = %d while the handle is held, want 1", got)
	}
	c.WeakRelease()
	if got := c.weak.Load(); got != 0 {
		t.Errorf("weak = %d after handle release, want 0", got)
	}
}

func TestCownWeakPromotion(t *testing.T) {
	c := NewCown()
	c.WeakAcquire()
	if !c.AcquireStrongFromWeak() {
		t.Fatal("promotion failed on a live cown")
	}
	// The promotion consumed the weak handle; only the strong set's
	// unit remains, and the strong count grew by exactly one.
	if got := c.strong.Load(); got != 2 {
		t.Errorf("strong after promotion = %d, want 2", got)
	}
	if got := c.weak.Load(); got != 1 {
		t.Errorf("weak after promotion = %d, want 1", got)
	}
	c.Release()
	c.Release()
	if got := c.weak.Load(); got != 0 {
		t.Errorf("weak after final releases = %d, want 0", got)
	}
}

func TestCownPromotionKeepingHandle(t *testing.T) {
	c := NewCown()
	c.WeakAcquire()
	if !c.AcquireStrongFromWeak() {
		t.Fatal("promotion failed on a live cown")
	}
	// Keep the weak handle too.
	c.WeakAcquire()
	c.Release()
	c.Release()
	if got := c.weak.Load(); got != 1 {
		t.Fatalf("weak = %d with the handle still held, want 1", got)
	}
	if c.AcquireStrongFromWeak() {
		t.Error("promotion succeeded on a poisoned cown")
	}
	c.WeakRelease()
}
