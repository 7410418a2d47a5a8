package main

import "time"

// Clock reports time elapsed since an arbitrary fixed origin. It must never
// go backwards.
type Clock interface {
	Now() time.Duration
}

// monoClock reads the runtime's monotonic clock, which is not affected by
// wall-clock adjustments.
type monoClock struct {
	origin time.Time
}

func newMonoClock() *monoClock {
	return &monoClock{origin: time.Now()}
}

func (c *monoClock) Now() time.Duration {
	return time.Since(c.origin)
}
