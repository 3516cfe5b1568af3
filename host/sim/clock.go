// Package sim provides host stand-ins for the firmware clock and GPIO.
package sim

import (
	"sync/atomic"
	"time"

	"softtimer/core"
)

// WallClock counts milliseconds since it was created. It wraps like the
// firmware tick counter, after about 49.7 days.
type WallClock struct {
	start time.Time
}

var _ core.Clock = (*WallClock)(nil)

// NewWallClock starts a clock at zero
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now implements core.Clock
func (c *WallClock) Now() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// VirtualClock only moves when told to, so plans can be replayed faster
// than real time and tests stay deterministic
type VirtualClock struct {
	now atomic.Uint32
}

var _ core.Clock = (*VirtualClock)(nil)

// NewVirtualClock creates a clock reading start
func NewVirtualClock(start uint32) *VirtualClock {
	c := &VirtualClock{}
	c.now.Store(start)
	return c
}

// Now implements core.Clock
func (c *VirtualClock) Now() uint32 {
	return c.now.Load()
}

// Set moves the clock to ticks
func (c *VirtualClock) Set(ticks uint32) {
	c.now.Store(ticks)
}

// Advance moves the clock forward by d ticks, wrapping at the uint32 range,
// and returns the new reading
func (c *VirtualClock) Advance(d uint32) uint32 {
	return c.now.Add(d)
}
