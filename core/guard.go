package core

import "sync"

// Guarded serializes every Timer operation behind one lock, for hosts that
// register or stop events from a different goroutine (or interrupt) than
// the one calling Update.
//
// Actions run while the lock is held. An action that needs to reach the
// scheduler must use the *Timer returned by Timer(), never the Guarded.
type Guarded struct {
	mu sync.Locker
	t  *Timer
}

var _ Scheduler = (*Guarded)(nil)
var _ Scheduler = (*Timer)(nil)

// NewGuarded wraps t. A nil locker selects NewInterruptLocker().
func NewGuarded(t *Timer, mu sync.Locker) *Guarded {
	if mu == nil {
		mu = NewInterruptLocker()
	}
	return &Guarded{mu: mu, t: t}
}

// Timer returns the unguarded timer, for use from inside actions
func (g *Guarded) Timer() *Timer {
	return g.t
}

// Do runs fn with the lock held, for work spanning several calls
func (g *Guarded) Do(fn func(t *Timer)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.t)
}

func (g *Guarded) Every(period uint32, action Action, context any) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.Every(period, action, context)
}

func (g *Guarded) EveryN(period uint32, action Action, repeatCount int32, context any) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.EveryN(period, action, repeatCount, context)
}

func (g *Guarded) After(period uint32, action Action, context any) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.After(period, action, context)
}

func (g *Guarded) Oscillate(pin GPIOPin, period uint32, startingValue bool) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.Oscillate(pin, period, startingValue)
}

func (g *Guarded) OscillateN(pin GPIOPin, period uint32, startingValue bool, cycles int32) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.OscillateN(pin, period, startingValue, cycles)
}

func (g *Guarded) Pulse(pin GPIOPin, period uint32, startingValue bool) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.Pulse(pin, period, startingValue)
}

func (g *Guarded) PulseImmediate(pin GPIOPin, period uint32, pulseValue bool) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.PulseImmediate(pin, period, pulseValue)
}

func (g *Guarded) Stop(id EventID) EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.Stop(id)
}

func (g *Guarded) Update() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.t.Update()
}

func (g *Guarded) Info(id EventID) (EventInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.Info(id)
}

func (g *Guarded) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.Live()
}

func (g *Guarded) LastEventID() EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.LastEventID()
}

func (g *Guarded) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.t.Reset()
}
