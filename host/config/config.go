// Package config loads event plans: YAML files describing which events a
// host-side timer schedules.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"softtimer/core"
	"softtimer/host/serial"
)

// Kind selects the registration call an event plan entry maps to
type Kind string

const (
	KindEvery          Kind = "every"
	KindAfter          Kind = "after"
	KindOscillate      Kind = "oscillate"
	KindPulse          Kind = "pulse"
	KindPulseImmediate Kind = "pulse_immediate"
)

// DrivesPin reports whether events of this kind toggle a pin
func (k Kind) DrivesPin() bool {
	switch k {
	case KindOscillate, KindPulse, KindPulseImmediate:
		return true
	}
	return false
}

// DefaultTick is the main loop interval when the plan sets none
const DefaultTick = time.Millisecond

// Plan is a complete event plan
type Plan struct {
	// Main loop interval
	Tick time.Duration `yaml:"tick"`

	// Serial link for remote pins; nil drives simulated pins
	Serial *serial.Config `yaml:"serial,omitempty"`

	Events []Event `yaml:"events"`
}

// Event is one entry of a plan
type Event struct {
	Name    string        `yaml:"name"`
	Kind    Kind          `yaml:"kind"`
	Period  time.Duration `yaml:"period"`
	Repeat  int32         `yaml:"repeat,omitempty"` // every: 0 = forever
	Pin     Pin           `yaml:"pin,omitempty"`
	Level   bool          `yaml:"level,omitempty"`  // starting or pulse level
	Cycles  int32         `yaml:"cycles,omitempty"` // oscillate: 0 = forever
	Message string        `yaml:"message,omitempty"`
}

// PeriodTicks returns the period in timer ticks
func (e *Event) PeriodTicks() uint32 {
	return uint32(e.Period / (time.Second / core.TicksPerSecond))
}

// Pin is a GPIO number, written either as an integer or as "gpioN"
type Pin core.GPIOPin

// UnmarshalYAML accepts 25 and "gpio25"
func (p *Pin) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimPrefix(strings.ToLower(value.Value), "gpio")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return errors.Errorf("line %d: invalid pin %q", value.Line, value.Value)
	}
	*p = Pin(n)
	return nil
}

// Load reads and parses the plan file at path
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read plan")
	}
	plan, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return plan, nil
}

// Parse decodes a YAML plan, fills defaults and validates it
func Parse(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, errors.Wrap(err, "parse plan")
	}

	applyDefaults(&plan)

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(plan *Plan) {
	if plan.Tick == 0 {
		plan.Tick = DefaultTick
	}
	if plan.Serial != nil {
		plan.Serial.ApplyDefaults()
	}
}

// Validate checks the plan against what the timer can run
func (p *Plan) Validate() error {
	if p.Tick < 0 {
		return errors.Errorf("tick must be positive, got %s", p.Tick)
	}
	if len(p.Events) == 0 {
		return errors.New("plan has no events")
	}
	if len(p.Events) > core.MaxEvents {
		return errors.Errorf("plan has %d events, the timer holds %d", len(p.Events), core.MaxEvents)
	}
	if p.Serial != nil && p.Serial.Device != "" {
		if err := p.Serial.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(p.Events))
	for i := range p.Events {
		e := &p.Events[i]
		if e.Name == "" {
			return errors.Errorf("event %d: missing name", i)
		}
		if seen[e.Name] {
			return errors.Errorf("event %q: duplicate name", e.Name)
		}
		seen[e.Name] = true

		if err := e.validate(); err != nil {
			return errors.WithMessagef(err, "event %q", e.Name)
		}
	}
	return nil
}

const maxPeriod = time.Duration(1<<32-1) * time.Millisecond

func (e *Event) validate() error {
	switch e.Kind {
	case KindEvery, KindAfter, KindOscillate, KindPulse, KindPulseImmediate:
	case "":
		return errors.New("missing kind")
	default:
		return errors.Errorf("unknown kind %q", e.Kind)
	}

	if e.Period < time.Millisecond {
		return errors.Errorf("period %s is below one tick", e.Period)
	}
	if e.Period > maxPeriod {
		return errors.Errorf("period %s does not fit the clock", e.Period)
	}

	if e.Repeat != 0 && e.Kind != KindEvery {
		return errors.Errorf("repeat is only valid for %s", KindEvery)
	}
	if e.Repeat < 0 {
		return errors.Errorf("negative repeat %d", e.Repeat)
	}
	if e.Cycles != 0 && e.Kind != KindOscillate {
		return errors.Errorf("cycles is only valid for %s", KindOscillate)
	}
	if e.Cycles < 0 {
		return errors.Errorf("negative cycles %d", e.Cycles)
	}
	if e.Message != "" && e.Kind.DrivesPin() {
		return errors.Errorf("message is only valid for %s and %s", KindEvery, KindAfter)
	}
	if !e.Kind.DrivesPin() && (e.Pin != 0 || e.Level) {
		return errors.New("pin and level are only valid for pin events")
	}
	return nil
}

// DefaultPlan blinks the on-board LED of a Pico and logs a heartbeat
func DefaultPlan() *Plan {
	return &Plan{
		Tick: DefaultTick,
		Events: []Event{
			{Name: "led", Kind: KindOscillate, Period: 500 * time.Millisecond, Pin: 25, Level: true},
			{Name: "heartbeat", Kind: KindEvery, Period: time.Second, Message: "alive"},
		},
	}
}
