package sim

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"softtimer/core"
)

// ErrNotOutput is returned when writing a pin that was never configured as
// an output on a strict PinBank
var ErrNotOutput = errors.New("sim: pin not configured as output")

// Transition is one recorded pin write
type Transition struct {
	Pin   core.GPIOPin
	Value bool
	Clock uint32
}

// DefaultHistory is the number of transitions a PinBank keeps by default
const DefaultHistory = 4096

// PinBank is an in-memory GPIO driver that keeps the most recent writes in
// a fixed-size ring
type PinBank struct {
	mu      sync.Mutex
	clock   core.Clock
	logger  *zap.Logger
	strict  bool
	outputs map[core.GPIOPin]bool
	levels  map[core.GPIOPin]bool

	history []Transition // Ring of cap(history) entries
	head    int          // Next write position once the ring is full
	total   uint64
}

var _ core.GPIODriver = (*PinBank)(nil)

// PinOption configures a PinBank
type PinOption func(*PinBank)

// WithPinLogger logs every write at debug level
func WithPinLogger(logger *zap.Logger) PinOption {
	return func(b *PinBank) {
		b.logger = logger.Named("pins")
	}
}

// WithStrictOutputs rejects writes to pins not configured as outputs
func WithStrictOutputs() PinOption {
	return func(b *PinBank) {
		b.strict = true
	}
}

// WithHistory keeps the last n transitions. Zero keeps none: levels are
// still tracked and Total still counts.
func WithHistory(n int) PinOption {
	return func(b *PinBank) {
		b.history = make([]Transition, 0, max(n, 0))
	}
}

// NewPinBank creates a bank stamping transitions with clock readings. A nil
// clock stamps zero.
func NewPinBank(clock core.Clock, opts ...PinOption) *PinBank {
	b := &PinBank{
		clock:   clock,
		logger:  zap.NewNop(),
		outputs: make(map[core.GPIOPin]bool),
		levels:  make(map[core.GPIOPin]bool),
		history: make([]Transition, 0, DefaultHistory),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ConfigureOutput marks pin as an output
func (b *PinBank) ConfigureOutput(pin core.GPIOPin) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs[pin] = true
	return nil
}

// SetPin implements core.PinWriter
func (b *PinBank) SetPin(pin core.GPIOPin, value bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.strict && !b.outputs[pin] {
		return errors.Wrapf(ErrNotOutput, "pin %d", pin)
	}

	var now uint32
	if b.clock != nil {
		now = b.clock.Now()
	}
	b.levels[pin] = value
	b.record(Transition{Pin: pin, Value: value, Clock: now})
	b.logger.Debug("set", zap.Uint32("pin", uint32(pin)), zap.Bool("value", value), zap.Uint32("clock", now))
	return nil
}

// GetPin returns the last level written to pin
func (b *PinBank) GetPin(pin core.GPIOPin) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[pin], nil
}

func (b *PinBank) record(tr Transition) {
	b.total++
	switch {
	case cap(b.history) == 0:
	case len(b.history) < cap(b.history):
		b.history = append(b.history, tr)
	default:
		b.history[b.head] = tr
		b.head = (b.head + 1) % len(b.history)
	}
}

// ordered returns the retained transitions, oldest first. Caller holds mu.
func (b *PinBank) ordered() []Transition {
	out := make([]Transition, 0, len(b.history))
	out = append(out, b.history[b.head:]...)
	return append(out, b.history[:b.head]...)
}

// Transitions returns a copy of the retained writes, oldest first
func (b *PinBank) Transitions() []Transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ordered()
}

// Total returns how many writes were made, including ones no longer
// retained
func (b *PinBank) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Levels returns the retained writes to one pin, oldest first
func (b *PinBank) Levels(pin core.GPIOPin) []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []bool
	for _, tr := range b.ordered() {
		if tr.Pin == pin {
			out = append(out, tr.Value)
		}
	}
	return out
}

// Reset forgets every recorded transition and level
func (b *PinBank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = b.history[:0]
	b.head = 0
	b.total = 0
	b.levels = make(map[core.GPIOPin]bool)
}
