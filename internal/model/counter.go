package model

import (
	"sync/atomic"
	"time"
)

// Clock hands out strictly increasing counters.
// Values follow the wall clock in nanoseconds so that a later run appending to
// the same file sorts after an earlier one.
type Clock struct {
	last atomic.Uint64
	now  func() time.Time
}

// NewClock returns a Clock driven by now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns a counter greater than every value previously returned by c.
func (c *Clock) Next() uint64 {
	for {
		last := c.last.Load()
		next := uint64(c.now().UnixNano())
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

var processClock = NewClock(nil)

// NextCounter returns the next counter of the process-wide clock.
func NextCounter() uint64 {
	return processClock.Next()
}
