// Package epoch implements the global epoch clock and snapshot registry
// (C1) together with the deferred cleanup queue (C2) that rides on it.
package epoch

import "sync/atomic"

// Epoch is a 64-bit monotonic logical timestamp. The zero value is never a
// valid current epoch; the clock starts at 1.
type Epoch uint64

// NoEpoch is returned by Commit on conflict; it is never a live epoch.
const NoEpoch Epoch = 0

// Clock is the global monotonically increasing epoch counter. Reads are a
// single atomic load; only the commit serialization point in mvcc.Sandbox
// calls Set, and only while holding the commit mutex.
type Clock struct {
	current atomic.Uint64
}

// NewClock returns a clock whose current epoch is 1, matching the spec's
// initial value.
func NewClock() *Clock {
	c := &Clock{}
	c.current.Store(1)
	return c
}

// Current returns the current epoch.
func (c *Clock) Current() Epoch {
	return Epoch(c.current.Load())
}

// Set stores a new current epoch. Callers must hold the commit mutex; this
// is enforced by convention (only Sandbox.Commit calls it), not by the
// clock itself, since the mutex lives with the sandbox/registry pairing.
func (c *Clock) Set(e Epoch) {
	c.current.Store(uint64(e))
}
