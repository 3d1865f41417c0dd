package boc_test

import (
	"sync/atomic"
	"testing"

	"github.com/kestrelrt/boc"
	"github.com/kestrelrt/boc/testutils"
)

func TestNotificationRunsOnce(t *testing.T) {
	c := boc.NewCown()
	var runs atomic.Int64
	var n *boc.Notification
	testutils.RunScheduler(t, 2, func() {
		n = boc.NewNotification(func() { runs.Add(1) }, boc.Write(c))
		n.Notify()
	})
	if runs.Load() != 1 {
		t.Errorf("ran %d times, want 1", runs.Load())
	}
	n.Close()
}

func TestNotificationCoalesces(t *testing.T) {
	c := boc.NewCown()
	var runs atomic.Int64
	var n *boc.Notification
	testutils.RunScheduler(t, 1, func() {
		n = boc.NewNotification(func() { runs.Add(1) }, boc.Write(c))
		// Requests made before the body starts collapse into one run.
		n.Notify()
		n.Notify()
		n.Notify()
	})
	if runs.Load() != 1 {
		t.Errorf("ran %d times, want 1 for coalesced notifies", runs.Load())
	}
	n.Close()
}

func TestNotificationReRequestDuringRun(t *testing.T) {
	c := boc.NewCown()
	var runs atomic.Int64
	var n *boc.Notification
	testutils.RunScheduler(t, 2, func() {
		n = boc.NewNotification(func() {
			if runs.Add(1) == 1 {
				// A request landing mid-run schedules exactly one
				// follow-up run.
				n.Notify()
			}
		}, boc.Write(c))
		n.Notify()
	})
	if runs.Load() != 2 {
		t.Errorf("ran %d times, want 2", runs.Load())
	}
	n.Close()
}

func TestNotificationReusableAcrossRuns(t *testing.T) {
	c := boc.NewCown()
	var runs atomic.Int64
	n := boc.NewNotification(func() { runs.Add(1) }, boc.Write(c))
	for i := 0; i < 3; i++ {
		testutils.RunScheduler(t, 2, func() { n.Notify() })
	}
	if runs.Load() != 3 {
		t.Errorf("ran %d times across runs, want 3", runs.Load())
	}
	n.Close()
}
