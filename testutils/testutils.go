// Package testutils provides utilities for testing code built on the
// boc runtime.
package testutils

import (
	"sync"
	"testing"
	"time"

	"github.com/kestrelrt/boc"
)

// poolMu serialises pool runs. The scheduler is a process singleton,
// so tests that run it cannot overlap.
var poolMu sync.Mutex

// RunScheduler initialises the scheduler with the given number of
// cores, calls setup to schedule the initial work, and blocks until
// the pool quiesces. Assertions on state mutated by behaviours are
// safe once it returns.
func RunScheduler(t testing.TB, cores int, setup func()) {
	t.Helper()
	RunSchedulerConfig(t, boc.Config{Cores: cores, Fairness: true}, setup)
}

// RunSchedulerConfig is RunScheduler with a full config.
func RunSchedulerConfig(t testing.TB, cfg boc.Config, setup func()) {
	t.Helper()
	poolMu.Lock()
	defer poolMu.Unlock()
	s := boc.Scheduler()
	s.InitWithConfig(cfg)
	setup()
	s.Run()
}

// BusyLoop spins for roughly d, keeping its core busy. Tests use it
// instead of sleeping to emulate work: many goroutines can sleep
// concurrently on one core, but they cannot spin concurrently, so
// spinning preserves the load the test means to create.
func BusyLoop(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}
