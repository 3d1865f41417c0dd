package boc

import (
	"fmt"
	"sync"

	"github.com/zephyrtronium/contains"
)

// leakState tracks cown lifetimes when leak detection is enabled. The
// live counter catches chains that never release their reference; the
// freed set catches a cown whose weak count is driven to zero twice,
// which would be silent memory corruption in a manually managed
// runtime.
var leakState struct {
	mu      sync.Mutex
	enabled bool
	live    int64
	freed   contains.Set
}

// leakTracking switches lifetime tracking on or off. Switching resets
// the recorded state; it is intended to be set once per pool run,
// before cowns are allocated.
func leakTracking(on bool) {
	leakState.mu.Lock()
	leakState.enabled = on
	leakState.live = 0
	leakState.freed = contains.Set{}
	leakState.mu.Unlock()
}

func cownAllocated(c *Cown) {
	leakState.mu.Lock()
	if leakState.enabled {
		leakState.live++
	}
	leakState.mu.Unlock()
}

func cownFreed(c *Cown) {
	leakState.mu.Lock()
	if leakState.enabled {
		leakState.live--
		if !leakState.freed.Add(uintptr(c.id)) {
			leakState.mu.Unlock()
			panic(fmt.Sprintf("boc: cown %d freed twice", c.id))
		}
	}
	leakState.mu.Unlock()
}

// CheckLeaks reports an error if any cown allocated since leak
// tracking was enabled still holds references. Meaningful only after
// the pool has quiesced.
func CheckLeaks() error {
	leakState.mu.Lock()
	defer leakState.mu.Unlock()
	if !leakState.enabled {
		return nil
	}
	if leakState.live != 0 {
		return fmt.Errorf("boc: %d cowns still referenced after shutdown", leakState.live)
	}
	return nil
}
