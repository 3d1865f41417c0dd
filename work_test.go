package boc

import "testing"

func TestClosureDoneReleasesState(t *testing.T) {
	runs := 0
	w := NewClosure(func(self *Work) bool {
		runs++
		return runs >= 2
	})

	w.run()
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	if w.fn == nil {
		t.Fatal("closure state dropped while still live")
	}

	w.run()
	if runs != 2 {
		t.Fatalf("runs = %d, want 2", runs)
	}
	if w.fn != nil {
		t.Error("closure state kept after it reported done")
	}
}
