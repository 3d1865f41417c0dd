//go:build linux

package boc

import "golang.org/x/sys/unix"

// currentTID returns the calling OS thread's id. Workers lock their
// thread, so while a behaviour runs the id maps uniquely back to the
// worker.
func currentTID() int {
	return unix.Gettid()
}
