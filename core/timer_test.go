package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now uint32
}

func (c *manualClock) Now() uint32 { return c.now }

type pinWrite struct {
	pin   GPIOPin
	value bool
}

type recordingPins struct {
	writes []pinWrite
	levels map[GPIOPin]bool
	err    error
}

func newRecordingPins() *recordingPins {
	return &recordingPins{levels: make(map[GPIOPin]bool)}
}

func (p *recordingPins) SetPin(pin GPIOPin, value bool) error {
	p.writes = append(p.writes, pinWrite{pin, value})
	p.levels[pin] = value
	return p.err
}

func (p *recordingPins) values(pin GPIOPin) []bool {
	var out []bool
	for _, w := range p.writes {
		if w.pin == pin {
			out = append(out, w.value)
		}
	}
	return out
}

func newTestTimer() (*Timer, *manualClock, *recordingPins) {
	clock := &manualClock{}
	pins := newRecordingPins()
	return NewTimer(clock, pins), clock, pins
}

func nop(any) {}

// snapshot copies the table without the action funcs, which never compare
// equal under reflect.DeepEqual
func snapshot(tm *Timer) [MaxEvents]EventInfo {
	var out [MaxEvents]EventInfo
	for i := range tm.events {
		out[i] = tm.events[i].info()
	}
	return out
}

func TestTimerIDsUniqueWithinCapacity(t *testing.T) {
	tm, _, _ := newTestTimer()

	seen := make(map[EventID]bool)
	for i := 0; i < MaxEvents; i++ {
		id := tm.Every(100, nop, nil)
		require.Greater(t, id, NoEvent)
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Equal(t, MaxEvents, tm.Live())
}

func TestTimerFirstIDIsOne(t *testing.T) {
	tm, _, _ := newTestTimer()
	assert.Equal(t, NoEvent, tm.LastEventID())
	assert.Equal(t, EventID(1), tm.After(10, nop, nil))
	assert.Equal(t, EventID(2), tm.Oscillate(3, 10, false))
}

func TestTimerCapacityExhausted(t *testing.T) {
	tm, clock, pins := newTestTimer()
	ring := NewTraceRing()
	tm.trace = ring

	for i := 0; i < MaxEvents; i++ {
		require.NotEqual(t, NoSlotAvailable, tm.Every(100, nop, nil))
	}
	before := snapshot(tm)
	lastID := tm.LastEventID()

	clock.now = 7
	assert.Equal(t, NoSlotAvailable, tm.Every(5, nop, nil))
	assert.Equal(t, NoSlotAvailable, tm.OscillateN(4, 5, true, 2))
	assert.Equal(t, NoSlotAvailable, tm.PulseImmediate(4, 5, true))

	assert.Equal(t, before, snapshot(tm), "table changed on refused registration")
	assert.Equal(t, lastID, tm.LastEventID(), "id counter advanced on refused registration")
	assert.Empty(t, pins.writes, "refused oscillation must not touch the pin")
	assert.Equal(t, -1, tm.FindFreeEventIndex())

	entries := ring.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, uint8(TraceNoSlot), entries[len(entries)-1].Type)
}

func TestTimerFiresWhenElapsedReachesPeriod(t *testing.T) {
	tm, clock, _ := newTestTimer()

	const start, period = 1000, 50
	clock.now = start
	var fired []uint32
	tm.Every(period, func(any) { fired = append(fired, clock.now) }, nil)

	for _, now := range []uint32{start, start + period - 1, start + period, start + 2*period} {
		clock.now = now
		tm.Update()
	}

	assert.Equal(t, []uint32{start + period, start + 2*period}, fired)
}

func TestTimerNoDriftCompensation(t *testing.T) {
	tm, clock, _ := newTestTimer()

	id := tm.Every(10, nop, nil)
	clock.now = 13 // late by 3
	tm.Update()

	info, ok := tm.Info(id)
	require.True(t, ok)
	assert.Equal(t, uint32(13), info.LastEventTime)

	clock.now = 22
	tm.Update()
	info, _ = tm.Info(id)
	assert.Equal(t, uint32(1), info.Count, "next period is measured from the late fire")

	clock.now = 23
	tm.Update()
	info, _ = tm.Info(id)
	assert.Equal(t, uint32(2), info.Count)
}

func TestTimerAfterFiresOnceAndFreesSlot(t *testing.T) {
	tm, clock, _ := newTestTimer()

	tm.Every(1000, nop, nil) // occupies slot 0
	calls := 0
	id := tm.After(20, func(any) { calls++ }, nil)
	require.Equal(t, 1, tm.FindEventIndex(id))

	for now := uint32(0); now <= 100; now += 10 {
		clock.now = now
		tm.Update()
	}

	assert.Equal(t, 1, calls)
	assert.Equal(t, -1, tm.FindEventIndex(id))
	assert.Equal(t, 1, tm.FindFreeEventIndex())
	_, ok := tm.Info(id)
	assert.False(t, ok)
}

func TestTimerEveryNRepeatCount(t *testing.T) {
	tm, clock, _ := newTestTimer()

	calls := 0
	id := tm.EveryN(10, func(any) { calls++ }, 3, nil)
	for now := uint32(10); now <= 100; now += 10 {
		clock.now = now
		tm.Update()
		if info, ok := tm.Info(id); ok {
			assert.NotZero(t, info.RepeatCount, "zero budget persisted past a tick")
		}
	}

	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, tm.Live())
}

func TestTimerNonPositiveRepeatMeansForever(t *testing.T) {
	tm, _, _ := newTestTimer()

	for _, n := range []int32{0, -1, -7} {
		id := tm.EveryN(10, nop, n, nil)
		info, ok := tm.Info(id)
		require.True(t, ok)
		assert.Equal(t, RepeatForever, info.RepeatCount, "repeat %d", n)
	}
}

func TestTimerContextPassedThrough(t *testing.T) {
	tm, clock, _ := newTestTimer()

	type payload struct{ n int }
	ctx := &payload{n: 41}
	var got any
	tm.After(1, func(c any) {
		got = c
		c.(*payload).n++
	}, ctx)

	clock.now = 1
	tm.Update()

	assert.Same(t, ctx, got)
	assert.Equal(t, 42, ctx.n)
}

func TestTimerOscillateCycles(t *testing.T) {
	tm, clock, pins := newTestTimer()

	id := tm.OscillateN(7, 10, false, 3)
	info, ok := tm.Info(id)
	require.True(t, ok)
	assert.Equal(t, int32(6), info.RepeatCount, "cycles are stored as transitions")
	assert.Equal(t, []bool{false}, pins.values(7), "starting level written at registration")

	for now := uint32(10); now <= 100; now += 10 {
		clock.now = now
		tm.Update()
	}

	assert.Equal(t, []bool{false, true, false, true, false, true, false}, pins.values(7))
	assert.Equal(t, -1, tm.FindEventIndex(id))
}

func TestTimerOscillateForever(t *testing.T) {
	tm, clock, pins := newTestTimer()

	id := tm.Oscillate(2, 5, true)
	info, _ := tm.Info(id)
	assert.Equal(t, RepeatForever, info.RepeatCount, "infinite oscillation is not doubled")

	for now := uint32(5); now <= 500; now += 5 {
		clock.now = now
		tm.Update()
	}

	assert.Len(t, pins.values(2), 101)
	info, ok := tm.Info(id)
	require.True(t, ok)
	assert.Equal(t, uint32(100), info.Count)
	assert.True(t, info.PinState)
}

func TestTimerPulse(t *testing.T) {
	tm, clock, pins := newTestTimer()

	id := tm.Pulse(5, 100, true)
	assert.True(t, pins.levels[5], "pin driven immediately")

	clock.now = 99
	tm.Update()
	assert.True(t, pins.levels[5])

	clock.now = 100
	tm.Update()
	assert.False(t, pins.levels[5])
	assert.NotEqual(t, -1, tm.FindEventIndex(id), "pulse runs one full cycle")

	clock.now = 200
	tm.Update()
	assert.True(t, pins.levels[5])
	assert.Equal(t, -1, tm.FindEventIndex(id))
	assert.Equal(t, []bool{true, false, true}, pins.values(5))
}

func TestTimerPulseImmediate(t *testing.T) {
	tm, clock, pins := newTestTimer()

	id := tm.PulseImmediate(5, 100, true)
	assert.True(t, pins.levels[5])
	info, _ := tm.Info(id)
	assert.Equal(t, int32(1), info.RepeatCount)

	clock.now = 150
	tm.Update()
	assert.False(t, pins.levels[5])
	assert.Equal(t, -1, tm.FindEventIndex(id))

	clock.now = 400
	tm.Update()
	assert.Equal(t, []bool{true, false}, pins.values(5))
}

func TestTimerStop(t *testing.T) {
	tm, clock, _ := newTestTimer()

	calls := 0
	id := tm.Every(10, func(any) { calls++ }, nil)
	other := tm.Every(10, nop, nil)

	assert.Equal(t, NoEvent, tm.Stop(id))
	assert.Equal(t, -1, tm.FindEventIndex(id))
	assert.Equal(t, 0, tm.FindFreeEventIndex(), "stopped slot is reusable at once")

	clock.now = 10
	tm.Update()
	assert.Zero(t, calls)
	assert.NotEqual(t, -1, tm.FindEventIndex(other))
}

func TestTimerStopUnknownID(t *testing.T) {
	tm, clock, _ := newTestTimer()

	id := tm.Every(10, nop, nil)
	clock.now = 10
	tm.Update()
	before := snapshot(tm)

	for _, unknown := range []EventID{NoEvent, NoSlotAvailable, id + 1, 999} {
		assert.Equal(t, NoEvent, tm.Stop(unknown))
	}
	assert.Equal(t, before, snapshot(tm))
}

func TestTimerClockWraparound(t *testing.T) {
	tm, clock, _ := newTestTimer()

	clock.now = math.MaxUint32 - 5
	calls := 0
	tm.Every(10, func(any) { calls++ }, nil)

	clock.now = 3 // 9 ticks later
	tm.Update()
	assert.Zero(t, calls)

	clock.now = 4 // 10 ticks later
	tm.Update()
	assert.Equal(t, 1, calls)
}

func TestTimerIDWrapSkipsLiveIDs(t *testing.T) {
	tm, _, _ := newTestTimer()

	first := tm.Every(10, nop, nil)
	require.Equal(t, EventID(1), first)

	tm.lastEventID = maxEventID - 1
	assert.Equal(t, maxEventID, tm.Every(10, nop, nil))
	assert.Equal(t, EventID(2), tm.Every(10, nop, nil), "id 1 is still live")
}

func TestTimerActionStopsItselfAndReschedules(t *testing.T) {
	tm, clock, _ := newTestTimer()

	var replacement EventID
	var id EventID
	id = tm.EveryN(10, func(any) {
		tm.Stop(id)
		replacement = tm.After(50, nop, nil)
	}, 2, nil)

	clock.now = 10
	tm.Update()

	require.NotEqual(t, NoSlotAvailable, replacement)
	assert.Equal(t, 0, tm.FindEventIndex(replacement), "replacement reuses the freed slot")
	info, ok := tm.Info(replacement)
	require.True(t, ok)
	assert.Equal(t, int32(1), info.RepeatCount, "replacement budget untouched")
	assert.Equal(t, uint32(0), info.Count)
}

func TestTimerActionRegistersDuringUpdate(t *testing.T) {
	tm, clock, _ := newTestTimer()

	fired := 0
	tm.After(10, func(any) {
		tm.Every(0, func(any) { fired++ }, nil)
	}, nil)

	clock.now = 10
	tm.Update()
	// slot 0 is still held while its action runs, so the new event lands in
	// slot 1 and is visited in the same pass
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, tm.Live())

	tm.Update()
	assert.Equal(t, 2, fired)
}

func TestTimerPinErrorKeepsEvent(t *testing.T) {
	clock := &manualClock{}
	pins := newRecordingPins()
	pins.err = errors.New("bus fault")
	ring := NewTraceRing()
	var logged []string
	tm := NewTimer(clock, pins, WithTraceRing(ring), WithDebugWriter(func(s string) { logged = append(logged, s) }))

	id := tm.OscillateN(9, 10, false, 1)
	require.Greater(t, id, NoEvent)
	clock.now = 10
	tm.Update()

	info, ok := tm.Info(id)
	require.True(t, ok)
	assert.True(t, info.PinState)
	require.NotEmpty(t, logged)
	assert.Contains(t, logged[0], "bus fault")
}

func TestTimerNilPinsCallbacksOnly(t *testing.T) {
	clock := &manualClock{}
	tm := NewTimer(clock, nil)

	id := tm.PulseImmediate(1, 5, true)
	clock.now = 5
	tm.Update()
	assert.Equal(t, -1, tm.FindEventIndex(id))
}

func TestTimerReset(t *testing.T) {
	tm, _, _ := newTestTimer()

	tm.Every(10, nop, nil)
	tm.Oscillate(1, 10, true)
	last := tm.LastEventID()

	tm.Reset()
	assert.Zero(t, tm.Live())
	assert.Equal(t, last+1, tm.After(1, nop, nil), "ids are not rewound")
}

func TestTimersAreIndependent(t *testing.T) {
	a, _, _ := newTestTimer()
	b, _, _ := newTestTimer()

	a.Every(1, nop, nil)
	a.Every(1, nop, nil)
	assert.Equal(t, EventID(1), b.Every(1, nop, nil))
	assert.Equal(t, 2, a.Live())
	assert.Equal(t, 1, b.Live())
}

func TestTimerDefaultsToSystemClock(t *testing.T) {
	SetTime(500)
	defer SetTime(0)

	tm := NewTimer(nil, nil)
	id := tm.After(10, nop, nil)
	info, _ := tm.Info(id)
	assert.Equal(t, uint32(500), info.LastEventTime)
}
