package core

// EventKind tags what a slot in the timer table does when it fires
type EventKind uint8

const (
	KindNone      EventKind = iota // Free slot
	KindCallback                   // Invoke an Action with its context
	KindOscillate                  // Toggle a pin
)

func (k EventKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCallback:
		return "callback"
	case KindOscillate:
		return "oscillate"
	default:
		return "unknown"
	}
}

// EventID identifies a live event. Valid ids are positive.
type EventID int16

const (
	NoEvent         EventID = 0  // Not an event; also what Stop returns
	NoSlotAvailable EventID = -1 // Registration failed, the table is full
)

// RepeatForever as a repeat count keeps an event alive until stopped
const RepeatForever int32 = -1

// Action is the callback run when a callback event fires. The context is the
// value given at registration, passed through untouched.
type Action func(context any)

// Event is one slot of the timer table
type Event struct {
	id            EventID
	kind          EventKind
	period        uint32 // Ticks between firings
	repeatCount   int32  // Remaining firings, or RepeatForever
	lastEventTime uint32 // Tick of the last firing (or of registration)
	count         uint32 // Firings so far

	action  Action
	context any

	pin      GPIOPin
	pinState bool
}

// EventInfo is a read-only snapshot of a live event
type EventInfo struct {
	ID            EventID
	Kind          EventKind
	Period        uint32
	RepeatCount   int32 // Transitions for oscillating events
	Count         uint32
	LastEventTime uint32
	Pin           GPIOPin
	PinState      bool
}

func (e *Event) live() bool {
	return e.kind != KindNone
}

func (e *Event) free() {
	e.kind = KindNone
	e.id = NoEvent
	e.action = nil
	e.context = nil
}

func (e *Event) info() EventInfo {
	return EventInfo{
		ID:            e.id,
		Kind:          e.kind,
		Period:        e.period,
		RepeatCount:   e.repeatCount,
		Count:         e.count,
		LastEventTime: e.lastEventTime,
		Pin:           e.pin,
		PinState:      e.pinState,
	}
}

// advance fires the event if at least one period has elapsed since the last
// firing. The subtraction is done in uint32 so a wrapped clock still yields
// the true elapsed time. The next period is measured from now, not from the
// ideal fire time.
func (e *Event) advance(now uint32, t *Timer) {
	if e.kind == KindNone {
		return
	}

	elapsed := now - e.lastEventTime
	if elapsed < e.period {
		return
	}

	e.lastEventTime = now
	e.count++
	id := e.id

	switch e.kind {
	case KindCallback:
		t.trace.record(TraceFire, id, now, e.count)
		if e.action != nil {
			e.action(e.context)
		}
	case KindOscillate:
		e.pinState = !e.pinState
		t.trace.record(TraceToggle, id, now, boolToU32(e.pinState))
		t.writePin(id, e.pin, e.pinState, now)
	}

	// The action may have stopped this event, and another registration may
	// already own the slot.
	if e.id != id {
		return
	}

	if e.repeatCount > 0 {
		e.repeatCount--
		if e.repeatCount == 0 {
			t.trace.record(TraceExpire, id, now, e.count)
			e.free()
		}
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
