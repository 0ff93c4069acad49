// Package testutil holds deterministic time and fixture helpers shared by
// package tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic time source. Each call to Now returns a time
// step after the previous one, starting at start.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int64
}

// NewClock creates a clock whose first Now returns start.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{start: start, step: step}
}

// Now returns the next time. Monotonic for a non-negative step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many times Now has been called.
func (c *Clock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock so the next Now returns start again.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
