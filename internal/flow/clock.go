package flow

import (
	"strconv"
	"sync/atomic"
)

// Clock is a monotonic logical clock that orders the events of a flow.
//
// Events are stamped with strictly increasing seq numbers instead of wall
// time, so checkpoints replay in the order they were written.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to resume a flow after its last checkpoint.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

func formatSeq(n int64) string { return strconv.FormatInt(n, 10) }
