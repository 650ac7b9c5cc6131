// Package system provides the wall clock used for build timestamps.
package system

import "time"

// Clock implements crawler.Clock using time.Now, reported in UTC and
// truncated to a fixed precision so persisted timestamps round-trip exactly.
type Clock struct {
	precision time.Duration
}

// New creates a Clock with microsecond precision.
func New() *Clock {
	return NewWithPrecision(time.Microsecond)
}

// NewWithPrecision creates a Clock truncating to d. Non-positive d keeps full precision.
func NewWithPrecision(d time.Duration) *Clock {
	return &Clock{precision: d}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		now = now.Truncate(c.precision)
	}
	return now
}

// Since reports the time elapsed since t.
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
