package core

// Clock is the monotonic tick source the timer reads on every registration
// and on every event advance. It must wrap at the full uint32 range.
type Clock interface {
	Now() uint32
}

// ClockFunc adapts a plain function to the Clock interface
type ClockFunc func() uint32

// Now returns f()
func (f ClockFunc) Now() uint32 {
	return f()
}

// SystemClock reads the firmware tick counter maintained by the target's
// main loop through SetTime
var SystemClock Clock = ClockFunc(GetTime)

// TicksPerSecond is the rate of the firmware tick counter (1ms ticks)
const TicksPerSecond = 1000

// GetTime returns the current firmware tick counter
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the firmware tick counter (called by target clock code and tests)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// TicksFromUS converts microseconds to ticks, truncating
func TicksFromUS(us uint64) uint32 {
	return uint32(us * TicksPerSecond / 1000000)
}

// TicksToUS converts ticks to microseconds
func TicksToUS(ticks uint32) uint64 {
	return uint64(ticks) * 1000000 / TicksPerSecond
}
