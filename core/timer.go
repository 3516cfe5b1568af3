package core

import "errors"

// MaxEvents is the fixed capacity of a Timer
const MaxEvents = 10

// ErrNoSlotAvailable is the error form of NoSlotAvailable, for layers that
// report failures as Go errors.
var ErrNoSlotAvailable = errors.New("no timer slot available")

// Scheduler is the set of operations shared by Timer and Guarded
type Scheduler interface {
	Every(period uint32, action Action, context any) EventID
	EveryN(period uint32, action Action, repeatCount int32, context any) EventID
	After(period uint32, action Action, context any) EventID
	Oscillate(pin GPIOPin, period uint32, startingValue bool) EventID
	OscillateN(pin GPIOPin, period uint32, startingValue bool, cycles int32) EventID
	Pulse(pin GPIOPin, period uint32, startingValue bool) EventID
	PulseImmediate(pin GPIOPin, period uint32, pulseValue bool) EventID
	Stop(id EventID) EventID
	Update()
	Info(id EventID) (EventInfo, bool)
	Live() int
	LastEventID() EventID
	Reset()
}

// Timer is a polling scheduler over a fixed table of MaxEvents events.
// All work happens inside Update, which the host calls from its main loop.
// A Timer is not safe for concurrent use; see Guarded.
//
// Actions run inline from Update and may call back into the Timer. Slots are
// never moved, so an action may register or stop events while Update is
// iterating: a slot registered at a higher index is visited in the same
// Update, a lower one on the next.
type Timer struct {
	events      [MaxEvents]Event
	lastEventID EventID

	clock Clock
	pins  PinWriter
	debug DebugWriter
	trace *TraceRing
}

// Option configures a Timer
type Option func(*Timer)

// WithDebugWriter sends diagnostics (full table, pin write failures) to w
func WithDebugWriter(w DebugWriter) Option {
	return func(t *Timer) {
		t.debug = w
	}
}

// WithTraceRing records schedule, fire and stop events into r
func WithTraceRing(r *TraceRing) Option {
	return func(t *Timer) {
		t.trace = r
	}
}

// NewTimer creates a Timer reading time from clock and driving oscillating
// events through pins. A nil clock selects SystemClock. pins may be nil when
// only callback events are used.
func NewTimer(clock Clock, pins PinWriter, opts ...Option) *Timer {
	if clock == nil {
		clock = SystemClock
	}
	t := &Timer{
		lastEventID: NoEvent,
		clock:       clock,
		pins:        pins,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Every runs action every period ticks until stopped
func (t *Timer) Every(period uint32, action Action, context any) EventID {
	return t.EveryN(period, action, RepeatForever, context)
}

// EveryN runs action every period ticks, repeatCount times. Counts of zero or
// less mean forever.
func (t *Timer) EveryN(period uint32, action Action, repeatCount int32, context any) EventID {
	i, id := t.claim()
	if id == NoSlotAvailable {
		return NoSlotAvailable
	}

	e := &t.events[i]
	e.id = id
	e.kind = KindCallback
	e.period = period
	e.repeatCount = normalizeRepeat(repeatCount)
	e.action = action
	e.context = context
	e.pin = 0
	e.pinState = false
	e.lastEventTime = t.clock.Now()
	e.count = 0

	t.trace.record(TraceSchedule, id, e.lastEventTime, period)
	return id
}

// After runs action once, period ticks from now
func (t *Timer) After(period uint32, action Action, context any) EventID {
	return t.EveryN(period, action, 1, context)
}

// Oscillate drives pin to startingValue now and toggles it every period
// ticks until stopped
func (t *Timer) Oscillate(pin GPIOPin, period uint32, startingValue bool) EventID {
	return t.oscillate(pin, period, startingValue, RepeatForever)
}

// OscillateN drives pin to startingValue now and toggles it every period
// ticks for the given number of full on/off cycles. The pin ends at
// startingValue. Counts of zero or less mean forever.
func (t *Timer) OscillateN(pin GPIOPin, period uint32, startingValue bool, cycles int32) EventID {
	cycles = normalizeRepeat(cycles)
	if cycles == RepeatForever {
		return t.oscillate(pin, period, startingValue, RepeatForever)
	}
	if cycles > maxCycles {
		cycles = maxCycles
	}
	// Each toggle uses one unit of budget; a cycle is two toggles.
	return t.oscillate(pin, period, startingValue, cycles*2)
}

// Pulse drives pin to startingValue now, toggles it after period, toggles it
// back after another period and then frees the event
func (t *Timer) Pulse(pin GPIOPin, period uint32, startingValue bool) EventID {
	return t.OscillateN(pin, period, startingValue, 1)
}

// PulseImmediate drives pin to pulseValue now and to !pulseValue after
// period, then frees the event
func (t *Timer) PulseImmediate(pin GPIOPin, period uint32, pulseValue bool) EventID {
	return t.oscillate(pin, period, pulseValue, 1)
}

// oscillate registers a pin toggling event with a budget already expressed
// in transitions
func (t *Timer) oscillate(pin GPIOPin, period uint32, startingValue bool, transitions int32) EventID {
	i, id := t.claim()
	if id == NoSlotAvailable {
		return NoSlotAvailable
	}

	now := t.clock.Now()
	e := &t.events[i]
	e.id = id
	e.kind = KindOscillate
	e.pin = pin
	e.period = period
	e.pinState = startingValue
	e.repeatCount = transitions
	e.action = nil
	e.context = nil
	e.count = 0

	t.writePin(id, pin, startingValue, now)
	e.lastEventTime = t.clock.Now()

	t.trace.record(TraceSchedule, id, e.lastEventTime, period)
	return id
}

// Stop frees the event with the given id. Unknown ids are ignored. It always
// returns NoEvent so callers can write id = t.Stop(id).
func (t *Timer) Stop(id EventID) EventID {
	if i := t.FindEventIndex(id); i >= 0 {
		t.events[i].free()
		t.trace.record(TraceStop, id, t.clock.Now(), 0)
	}
	return NoEvent
}

// Update advances every live event in table order. Each event reads the
// clock itself, so time spent in earlier actions is visible to later ones.
func (t *Timer) Update() {
	for i := range t.events {
		if t.events[i].live() {
			t.events[i].advance(t.clock.Now(), t)
		}
	}
}

// Info returns a snapshot of the live event with the given id
func (t *Timer) Info(id EventID) (EventInfo, bool) {
	i := t.FindEventIndex(id)
	if i < 0 {
		return EventInfo{}, false
	}
	return t.events[i].info(), true
}

// Live returns the number of live events
func (t *Timer) Live() int {
	n := 0
	for i := range t.events {
		if t.events[i].live() {
			n++
		}
	}
	return n
}

// LastEventID returns the most recently assigned id, or NoEvent
func (t *Timer) LastEventID() EventID {
	return t.lastEventID
}

// Reset frees every slot. Ids keep counting from where they were.
func (t *Timer) Reset() {
	for i := range t.events {
		t.events[i].free()
	}
}

// FindFreeEventIndex returns the first free slot index, or -1
func (t *Timer) FindFreeEventIndex() int {
	for i := range t.events {
		if !t.events[i].live() {
			return i
		}
	}
	return -1
}

// FindEventIndex returns the slot index of the live event id, or -1
func (t *Timer) FindEventIndex(id EventID) int {
	if id <= NoEvent {
		return -1
	}
	for i := range t.events {
		if t.events[i].live() && t.events[i].id == id {
			return i
		}
	}
	return -1
}

// claim finds a free slot and assigns a fresh id for it. The table is left
// untouched when full.
func (t *Timer) claim() (int, EventID) {
	i := t.FindFreeEventIndex()
	if i < 0 {
		t.trace.record(TraceNoSlot, NoSlotAvailable, t.clock.Now(), MaxEvents)
		t.debugPrint("timer: no free slot (" + itoa(MaxEvents) + " live)")
		return -1, NoSlotAvailable
	}
	return i, t.nextEventID()
}

// nextEventID pre-increments the id counter, wrapping to 1 past the largest
// id and skipping ids still held by live events
func (t *Timer) nextEventID() EventID {
	for {
		if t.lastEventID >= maxEventID || t.lastEventID < NoEvent {
			t.lastEventID = NoEvent
		}
		t.lastEventID++
		if t.FindEventIndex(t.lastEventID) < 0 {
			return t.lastEventID
		}
	}
}

func (t *Timer) writePin(id EventID, pin GPIOPin, value bool, now uint32) {
	if t.pins == nil {
		return
	}
	if err := t.pins.SetPin(pin, value); err != nil {
		t.trace.record(TracePinError, id, now, uint32(pin))
		t.debugPrint("timer: event " + itoa(int(id)) + " pin " + utoa(uint32(pin)) + ": " + err.Error())
	}
}

func (t *Timer) debugPrint(msg string) {
	if t.debug != nil {
		t.debug(msg)
	}
}

const (
	maxEventID EventID = 1<<15 - 1
	maxCycles  int32   = 1<<30 - 1
)

func normalizeRepeat(n int32) int32 {
	if n <= 0 {
		return RepeatForever
	}
	return n
}
