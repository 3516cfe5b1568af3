package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures one timer event for post-mortem analysis
type TraceEvent struct {
	Type  uint8   // Trace type code (Trace*)
	ID    EventID // Event the entry is about
	Clock uint32  // Clock reading at the time
	Value uint32  // Context-dependent value
}

// Trace type codes
const (
	TraceSchedule = 1 // Event registered, Value = period
	TraceFire     = 2 // Callback fired, Value = fire count
	TraceToggle   = 3 // Pin toggled, Value = new level
	TraceExpire   = 4 // Repeat budget exhausted, Value = fire count
	TraceStop     = 5 // Event stopped
	TraceNoSlot   = 6 // Registration refused, Value = capacity
	TracePinError = 7 // Pin write failed, Value = pin
)

// TraceRingSize is the number of entries kept by a TraceRing
const TraceRingSize = 32

// TraceRing keeps the last TraceRingSize timer events. Recording never
// allocates or blocks. A nil *TraceRing records nothing and reads as empty.
type TraceRing struct {
	entries [TraceRingSize]TraceEvent
	head    uint8 // Next write position
	total   uint32
}

// NewTraceRing creates an empty ring
func NewTraceRing() *TraceRing {
	return &TraceRing{}
}

func (r *TraceRing) record(typ uint8, id EventID, clock, value uint32) {
	if r == nil {
		return
	}
	r.entries[r.head] = TraceEvent{Type: typ, ID: id, Clock: clock, Value: value}
	r.head = (r.head + 1) % TraceRingSize
	r.total++
}

// Total returns how many events were recorded, including overwritten ones
func (r *TraceRing) Total() uint32 {
	if r == nil {
		return 0
	}
	return r.total
}

// Entries returns the retained events, oldest first
func (r *TraceRing) Entries() []TraceEvent {
	if r == nil {
		return nil
	}
	n := int(r.total)
	if n > TraceRingSize {
		n = TraceRingSize
	}
	out := make([]TraceEvent, 0, n)
	start := int(r.head) - n
	if start < 0 {
		start += TraceRingSize
	}
	for i := 0; i < n; i++ {
		out = append(out, r.entries[(start+i)%TraceRingSize])
	}
	return out
}

// Clear empties the ring
func (r *TraceRing) Clear() {
	if r == nil {
		return
	}
	*r = TraceRing{}
}

// Dump writes the retained events to w, oldest first
func (r *TraceRing) Dump(w DebugWriter) {
	if r == nil || w == nil {
		return
	}

	w("[TRACE] === Timer Trace Dump ===")
	w("[TRACE] Total events recorded: " + utoa(r.total))
	for _, evt := range r.Entries() {
		w("[TRACE] " + traceName(evt.Type) +
			" id=" + itoa(int(evt.ID)) +
			" clock=" + utoa(evt.Clock) +
			" v=" + utoa(evt.Value))
	}
	w("[TRACE] === End Dump ===")
}

func traceName(typ uint8) string {
	switch typ {
	case TraceSchedule:
		return "SCHEDULE"
	case TraceFire:
		return "FIRE"
	case TraceToggle:
		return "TOGGLE"
	case TraceExpire:
		return "EXPIRE"
	case TraceStop:
		return "STOP"
	case TraceNoSlot:
		return "NO_SLOT!"
	case TracePinError:
		return "PIN_ERROR!"
	default:
		return "UNKNOWN"
	}
}
