package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Every diagnostic the engine emits is
// stamped with Next so diagnostics from several components sort into the
// order they were produced, independent of wall time.
//
// Clock is safe for concurrent use, though the engine only calls it from
// the solving goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start, such as the last seq
// of an existing diagnostics log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
