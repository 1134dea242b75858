package cooldown

import (
	"sync/atomic"
	"time"
)

// Tick is the duration of a single game tick.
const Tick = time.Second / 20

// Clock is a monotonic source of time measured in whole units. Cooldown expiry instants are stored in
// the units of the clock of the Store holding them.
type Clock interface {
	// Now returns the current time in clock units. The value never decreases.
	Now() int64
	// Resolution returns the duration of a single clock unit.
	Resolution() time.Duration
}

// NewWallClock returns a Clock measuring wall time in milliseconds. It is monotonic and unaffected by
// changes to the system clock.
func NewWallClock() Clock {
	return wallClock{start: time.Now()}
}

type wallClock struct {
	start time.Time
}

// Now ...
func (c wallClock) Now() int64 { return time.Since(c.start).Milliseconds() }

// Resolution ...
func (wallClock) Resolution() time.Duration { return time.Millisecond }

// TickFunc is a Clock backed by a function returning the current game tick of the host.
type TickFunc func() int64

// Now ...
func (f TickFunc) Now() int64 { return f() }

// Resolution ...
func (TickFunc) Resolution() time.Duration { return Tick }

// Ticks returns a Clock counting game ticks derived from the Clock passed. It is used when the host does not
// expose a tick counter of its own.
func Ticks(c Clock) Clock {
	return derivedTicks{c: c}
}

type derivedTicks struct {
	c Clock
}

func (d derivedTicks) Now() int64 {
	return d.c.Now() * int64(d.c.Resolution()) / int64(Tick)
}

func (derivedTicks) Resolution() time.Duration { return Tick }

// ManualClock is a Clock that only moves when advanced explicitly. It is safe for concurrent use.
type ManualClock struct {
	res time.Duration
	now atomic.Int64
}

// NewManualClock returns a ManualClock at zero with the resolution passed.
func NewManualClock(res time.Duration) *ManualClock {
	if res <= 0 {
		res = time.Millisecond
	}
	return &ManualClock{res: res}
}

// Now ...
func (c *ManualClock) Now() int64 { return c.now.Load() }

// Resolution ...
func (c *ManualClock) Resolution() time.Duration { return c.res }

// Advance moves the clock forward by the duration passed, rounded down to whole units.
func (c *ManualClock) Advance(d time.Duration) {
	if d > 0 {
		c.now.Add(int64(d / c.res))
	}
}
