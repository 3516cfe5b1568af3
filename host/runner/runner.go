// Package runner is the host main loop: it schedules an event plan on a
// Timer and polls it.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"softtimer/core"
	"softtimer/host/config"
	"softtimer/host/sim"
)

// ErrUnknownEvent is returned for names that are not in the plan
var ErrUnknownEvent = errors.New("runner: unknown event")

// Runner owns one Timer loaded with a plan. Update runs on the goroutine
// calling Run; every other method may be called concurrently.
type Runner struct {
	plan   *config.Plan
	clock  core.Clock
	timer  *core.Guarded
	trace  *core.TraceRing
	logger *zap.Logger

	ids map[string]core.EventID

	mu    sync.Mutex
	fired map[string]uint32
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTraceRing records timer activity into ring
func WithTraceRing(ring *core.TraceRing) Option {
	return func(r *Runner) {
		r.trace = ring
	}
}

// New builds a Timer reading clock and driving pins, and schedules every
// event of plan on it
func New(plan *config.Plan, clock core.Clock, pins core.PinWriter, opts ...Option) (*Runner, error) {
	r := &Runner{
		plan:   plan,
		clock:  clock,
		logger: zap.NewNop(),
		ids:    make(map[string]core.EventID, len(plan.Events)),
		fired:  make(map[string]uint32, len(plan.Events)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")

	timer := core.NewTimer(clock, pins,
		core.WithDebugWriter(func(msg string) { r.logger.Warn(msg) }),
		core.WithTraceRing(r.trace),
	)
	r.timer = core.NewGuarded(timer, &sync.Mutex{})

	for i := range plan.Events {
		if err := r.schedule(&plan.Events[i]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) schedule(ev *config.Event) error {
	period := ev.PeriodTicks()
	pin := core.GPIOPin(ev.Pin)

	var id core.EventID
	switch ev.Kind {
	case config.KindEvery:
		id = r.timer.EveryN(period, r.fire, ev.Repeat, ev)
	case config.KindAfter:
		id = r.timer.After(period, r.fire, ev)
	case config.KindOscillate:
		id = r.timer.OscillateN(pin, period, ev.Level, ev.Cycles)
	case config.KindPulse:
		id = r.timer.Pulse(pin, period, ev.Level)
	case config.KindPulseImmediate:
		id = r.timer.PulseImmediate(pin, period, ev.Level)
	default:
		return errors.Errorf("event %q: unknown kind %q", ev.Name, ev.Kind)
	}

	if id == core.NoSlotAvailable {
		return errors.WithMessagef(core.ErrNoSlotAvailable, "event %q", ev.Name)
	}
	r.ids[ev.Name] = id
	r.logger.Debug("scheduled", lfdEvent(ev.Name), lfdKind(ev.Kind), lfdEventID(id))
	return nil
}

// fire is the action of every callback event; the context is its plan entry
func (r *Runner) fire(arg any) {
	ev := arg.(*config.Event)

	r.mu.Lock()
	r.fired[ev.Name]++
	n := r.fired[ev.Name]
	r.mu.Unlock()

	msg := ev.Message
	if msg == "" {
		msg = "fired"
	}
	r.logger.Info(msg, lfdEvent(ev.Name), lfdCount(n), lfdClock(r.clock.Now()))
}

// Run polls the timer every plan tick until ctx is done or every event has
// finished
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.plan.Tick)
	defer ticker.Stop()

	r.logger.Info("running", zap.Duration("tick", r.plan.Tick), zap.Int("events", len(r.ids)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.timer.Update()
			if r.timer.Live() == 0 {
				r.logger.Info("all events finished")
				return nil
			}
		}
	}
}

// RunVirtual steps clock one plan tick at a time, polling after each step,
// until d has been simulated or every event has finished. No real time
// passes.
func (r *Runner) RunVirtual(ctx context.Context, clock *sim.VirtualClock, d time.Duration) error {
	step := uint32(r.plan.Tick / (time.Second / core.TicksPerSecond))
	if step == 0 {
		step = 1
	}
	total := uint32(d / (time.Second / core.TicksPerSecond))

	for elapsed := uint32(0); elapsed < total; elapsed += step {
		if ctx.Err() != nil {
			return nil
		}
		clock.Advance(step)
		r.timer.Update()
		if r.timer.Live() == 0 {
			break
		}
	}
	return nil
}

// ID returns the timer id of a plan event
func (r *Runner) ID(name string) (core.EventID, bool) {
	id, ok := r.ids[name]
	return id, ok
}

// Stop stops a plan event. Stopping a finished event is a no-op.
func (r *Runner) Stop(name string) error {
	id, ok := r.ids[name]
	if !ok {
		return errors.Wrap(ErrUnknownEvent, name)
	}
	r.timer.Stop(id)
	return nil
}

// Fired returns how many times a callback event has fired
func (r *Runner) Fired(name string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired[name]
}

// Live returns the number of events still scheduled
func (r *Runner) Live() int {
	return r.timer.Live()
}

// Info returns the state of a plan event that is still scheduled
func (r *Runner) Info(name string) (core.EventInfo, bool) {
	id, ok := r.ids[name]
	if !ok {
		return core.EventInfo{}, false
	}
	return r.timer.Info(id)
}

// Timer returns the guarded timer, for callers adding their own events
func (r *Runner) Timer() *core.Guarded {
	return r.timer
}

// DumpTrace logs the retained trace entries at debug level
func (r *Runner) DumpTrace() {
	if r.trace == nil {
		return
	}
	r.timer.Do(func(*core.Timer) {
		r.trace.Dump(func(line string) { r.logger.Debug(line) })
	})
}
