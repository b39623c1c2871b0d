package system

import "time"

// TickClock quantizes wall-clock time into fixed simulation steps. When more
// than one quantum has elapsed, Due still grants a single tick and advances
// the boundary by exactly one quantum; the backlog is paid off on later polls.
type TickClock struct {
	quantum time.Duration
	next    time.Time
	ticks   uint64
}

func NewTickClock(quantum time.Duration, start time.Time) *TickClock {
	return &TickClock{quantum: quantum, next: start.Add(quantum)}
}

// Due reports whether a tick should run at now.
func (c *TickClock) Due(now time.Time) bool {
	if now.Before(c.next) {
		return false
	}
	c.next = c.next.Add(c.quantum)
	c.ticks++
	return true
}

// Behind returns how far the next boundary lags wall-clock time.
func (c *TickClock) Behind(now time.Time) time.Duration {
	if d := now.Sub(c.next); d > 0 {
		return d
	}
	return 0
}

func (c *TickClock) Quantum() time.Duration { return c.quantum }
func (c *TickClock) Ticks() uint64          { return c.ticks }
