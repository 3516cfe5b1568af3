package core

import (
	"testing"

	"softtimer/protocol"
)

type reply struct {
	cmdID uint16
	args  []int32
}

type commandHarness struct {
	registry *CommandRegistry
	timer    *Timer
	clock    *manualClock
	pins     *recordingPins
	replies  []reply
}

func newCommandHarness() *commandHarness {
	h := &commandHarness{registry: NewCommandRegistry()}
	h.timer, h.clock, h.pins = newTestTimer()
	RegisterTimerCommands(h.registry, h.timer, h.pins, func(cmdID uint16, args func(output protocol.OutputBuffer)) {
		out := protocol.NewScratchOutput()
		args(out)
		data := out.Result()
		var values []int32
		for len(data) > 0 {
			v, err := protocol.DecodeVLQInt(&data)
			if err != nil {
				panic(err)
			}
			values = append(values, v)
		}
		h.replies = append(h.replies, reply{cmdID, values})
	})
	return h
}

// run encodes one command and dispatches it like a received frame payload
func (h *commandHarness) run(t *testing.T, name string, args ...int32) {
	t.Helper()
	cmd, ok := h.registry.Lookup(name)
	if !ok {
		t.Fatalf("command %s not registered", name)
	}
	out := protocol.NewScratchOutput()
	protocol.EncodeCommand(out, cmd.ID, args...)
	if err := h.registry.DispatchFrame(out.Result()); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
}

func (h *commandHarness) lastReply(t *testing.T, name string) []int32 {
	t.Helper()
	if len(h.replies) == 0 {
		t.Fatalf("expected a %s reply, got none", name)
	}
	r := h.replies[len(h.replies)-1]
	cmd, _ := h.registry.Lookup(name)
	if r.cmdID != cmd.ID {
		t.Fatalf("Expected reply id %d (%s), got %d", cmd.ID, name, r.cmdID)
	}
	return r.args
}

func TestTimerDictionaryMatchesFirmware(t *testing.T) {
	host := NewTimerDictionary()
	fw := newCommandHarness().registry

	if host.GetDictionary() != fw.GetDictionary() {
		t.Errorf("dictionaries differ:\n%s\nvs\n%s", host.GetDictionary(), fw.GetDictionary())
	}
	for _, name := range []string{RspTimerScheduled, RspTimerState} {
		cmd, ok := host.Lookup(name)
		if !ok || cmd.Handler != nil {
			t.Errorf("Expected %s to be a handler-less response", name)
		}
	}
}

func TestTimerCommandOscillate(t *testing.T) {
	h := newCommandHarness()

	h.run(t, CmdTimerOscillate, 25, 100, 1, 3)
	args := h.lastReply(t, RspTimerScheduled)
	if len(args) != 1 || args[0] != 1 {
		t.Fatalf("Expected scheduled id 1, got %v", args)
	}

	info, ok := h.timer.Info(1)
	if !ok {
		t.Fatal("event 1 not live")
	}
	if info.Pin != 25 || info.Period != 100 || info.RepeatCount != 6 {
		t.Errorf("unexpected event %+v", info)
	}
	if got := h.pins.values(25); len(got) != 1 || !got[0] {
		t.Errorf("Expected pin 25 driven high at registration, got %v", got)
	}
}

func TestTimerCommandOscillateForever(t *testing.T) {
	h := newCommandHarness()

	h.run(t, CmdTimerOscillate, 2, 10, 0, -1)
	info, ok := h.timer.Info(1)
	if !ok {
		t.Fatal("event 1 not live")
	}
	if info.RepeatCount != RepeatForever {
		t.Errorf("Expected RepeatForever, got %d", info.RepeatCount)
	}
}

func TestTimerCommandPulses(t *testing.T) {
	h := newCommandHarness()

	h.run(t, CmdTimerPulse, 4, 10, 1)
	h.run(t, CmdTimerPulseImmediate, 5, 10, 1)

	for i := 0; i < 5; i++ {
		h.clock.now += 10
		h.timer.Update()
	}

	if got := h.pins.values(4); len(got) != 3 {
		t.Errorf("Expected 3 writes for a pulse, got %v", got)
	}
	if got := h.pins.values(5); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("Expected [true false] for an immediate pulse, got %v", got)
	}
	if h.timer.Live() != 0 {
		t.Errorf("Expected both pulses finished, %d live", h.timer.Live())
	}
}

func TestTimerCommandStopAndStatus(t *testing.T) {
	h := newCommandHarness()

	h.run(t, CmdTimerOscillate, 1, 10, 1, -1)
	h.run(t, CmdTimerOscillate, 2, 10, 1, -1)
	h.run(t, CmdTimerStop, 1)
	h.run(t, CmdTimerStop, 99)
	// 65538 and -65534 narrow to 2 as int16
	h.run(t, CmdTimerStop, 65538)
	h.run(t, CmdTimerStop, -65534)

	h.run(t, CmdTimerStatus)
	args := h.lastReply(t, RspTimerState)
	if len(args) != 2 || args[0] != 1 || args[1] != 2 {
		t.Errorf("Expected live=1 last_id=2, got %v", args)
	}
	if _, ok := h.timer.Info(2); !ok {
		t.Error("an out-of-range stop must not hit event 2")
	}
}

func TestTimerCommandNoSlot(t *testing.T) {
	h := newCommandHarness()
	for i := 0; i < MaxEvents; i++ {
		h.timer.Every(100, nop, nil)
	}

	h.run(t, CmdTimerPulse, 4, 10, 1)
	args := h.lastReply(t, RspTimerScheduled)
	if len(args) != 1 || EventID(args[0]) != NoSlotAvailable {
		t.Errorf("Expected id %d, got %v", NoSlotAvailable, args)
	}
}

func TestTimerCommandSetPin(t *testing.T) {
	h := newCommandHarness()

	h.run(t, CmdSetPin, 7, 1)
	h.run(t, CmdSetPin, 7, 0)
	if got := h.pins.values(7); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("Expected [true false], got %v", got)
	}
	if len(h.replies) != 0 {
		t.Errorf("set_pin should not reply, got %v", h.replies)
	}
}

func TestTimerCommandTruncated(t *testing.T) {
	h := newCommandHarness()
	cmd, _ := h.registry.Lookup(CmdTimerOscillate)

	out := protocol.NewScratchOutput()
	protocol.EncodeCommand(out, cmd.ID, 25, 100)
	if err := h.registry.DispatchFrame(out.Result()); err == nil {
		t.Error("Expected an error for missing arguments")
	}
	if h.timer.Live() != 0 {
		t.Error("a truncated command must not schedule anything")
	}
}
