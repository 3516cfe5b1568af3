package runner

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"softtimer/core"
	"softtimer/host/config"
	"softtimer/host/sim"
)

const testPlan = `
tick: 1ms
events:
  - {name: heartbeat, kind: every, period: 100ms, repeat: 3, message: alive}
  - {name: once, kind: after, period: 250ms}
  - {name: led, kind: oscillate, period: 50ms, pin: 25, level: true, cycles: 2}
  - {name: strobe, kind: pulse_immediate, period: 30ms, pin: 4, level: true}
  - {name: blip, kind: pulse, period: 40ms, pin: 5}
`

func newTestRunner(t *testing.T, plan string, opts ...Option) (*Runner, *sim.VirtualClock, *sim.PinBank) {
	t.Helper()
	p, err := config.Parse([]byte(plan))
	require.NoError(t, err)

	clock := sim.NewVirtualClock(0)
	pins := sim.NewPinBank(clock)
	r, err := New(p, clock, pins, opts...)
	require.NoError(t, err)
	return r, clock, pins
}

func TestRunnerVirtual(t *testing.T) {
	obs, logs := observer.New(zap.InfoLevel)
	r, clock, pins := newTestRunner(t, testPlan, WithLogger(zap.New(obs)))

	assert.Equal(t, 5, r.Live())
	assert.Equal(t, []bool{true}, pins.Levels(25), "oscillation starts at registration")

	require.NoError(t, r.RunVirtual(context.Background(), clock, 10*time.Second))

	assert.Zero(t, r.Live())
	assert.Equal(t, uint32(3), r.Fired("heartbeat"))
	assert.Equal(t, uint32(1), r.Fired("once"))
	assert.Equal(t, uint32(300), clock.Now(), "stops once every event has finished")

	assert.Equal(t, []bool{true, false, true, false, true}, pins.Levels(25))
	assert.Equal(t, []bool{true, false}, pins.Levels(4))
	assert.Equal(t, []bool{false, true, false}, pins.Levels(5))

	alive := logs.FilterMessage("alive").All()
	require.Len(t, alive, 3)
	assert.Equal(t, "heartbeat", alive[0].ContextMap()["event"])
	assert.Len(t, logs.FilterMessage("fired").All(), 1)
}

func TestRunnerPinTimestamps(t *testing.T) {
	r, clock, pins := newTestRunner(t, `
events:
  - {name: strobe, kind: pulse_immediate, period: 30ms, pin: 4, level: true}
`)
	require.NoError(t, r.RunVirtual(context.Background(), clock, time.Second))

	assert.Equal(t, []sim.Transition{
		{Pin: 4, Value: true, Clock: 0},
		{Pin: 4, Value: false, Clock: 30},
	}, pins.Transitions())
}

func TestRunnerStop(t *testing.T) {
	r, clock, _ := newTestRunner(t, `
events:
  - {name: tick, kind: every, period: 10ms}
  - {name: led, kind: oscillate, period: 10ms, pin: 1}
`)

	require.NoError(t, r.RunVirtual(context.Background(), clock, 50*time.Millisecond))
	assert.Equal(t, uint32(5), r.Fired("tick"))

	require.NoError(t, r.Stop("tick"))
	_, ok := r.Info("tick")
	assert.False(t, ok)
	info, ok := r.Info("led")
	require.True(t, ok)
	assert.Equal(t, uint32(5), info.Count)

	require.NoError(t, r.RunVirtual(context.Background(), clock, 50*time.Millisecond))
	assert.Equal(t, uint32(5), r.Fired("tick"))

	err := r.Stop("nope")
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestRunnerIDs(t *testing.T) {
	r, _, _ := newTestRunner(t, testPlan)

	seen := make(map[core.EventID]bool)
	for _, name := range []string{"heartbeat", "once", "led", "strobe", "blip"} {
		id, ok := r.ID(name)
		require.True(t, ok, name)
		assert.Greater(t, id, core.NoEvent)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestRunnerTooManyEvents(t *testing.T) {
	plan := &config.Plan{Tick: time.Millisecond}
	for i := 0; i <= core.MaxEvents; i++ {
		plan.Events = append(plan.Events, config.Event{Name: "e" + strconv.Itoa(i), Kind: config.KindEvery, Period: time.Second})
	}

	_, err := New(plan, sim.NewVirtualClock(0), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoSlotAvailable))
	assert.Contains(t, err.Error(), "e10")
}

func TestRunnerRealTime(t *testing.T) {
	plan, err := config.Parse([]byte(`
events:
  - {name: soon, kind: after, period: 5ms}
`))
	require.NoError(t, err)

	r, err := New(plan, sim.NewWallClock(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, uint32(1), r.Fired("soon"))
	assert.NoError(t, ctx.Err(), "returned because the plan finished")
}

func TestRunnerRunCanceled(t *testing.T) {
	plan := config.DefaultPlan()
	r, err := New(plan, sim.NewWallClock(), sim.NewPinBank(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, r.Run(ctx))
	assert.Equal(t, 2, r.Live())
}

func TestRunnerTrace(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	ring := core.NewTraceRing()
	r, clock, _ := newTestRunner(t, testPlan, WithTraceRing(ring), WithLogger(zap.New(obs)))

	require.NoError(t, r.RunVirtual(context.Background(), clock, time.Second))
	assert.NotZero(t, ring.Total())

	r.DumpTrace()
	assert.NotEmpty(t, logs.FilterMessage("[TRACE] === Timer Trace Dump ===").All())
}
