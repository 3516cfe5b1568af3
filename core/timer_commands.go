package core

import "softtimer/protocol"

// Remote timer command set. Registration order fixes the command ids, so
// new entries go at the end.
const (
	CmdSetPin              = "set_pin"
	CmdTimerOscillate      = "timer_oscillate"
	CmdTimerPulse          = "timer_pulse"
	CmdTimerPulseImmediate = "timer_pulse_immediate"
	CmdTimerStop           = "timer_stop"
	CmdTimerStatus         = "timer_status"
	RspTimerScheduled      = "timer_scheduled"
	RspTimerState          = "timer_state"
)

// Responder sends a response message back to the host. args writes the
// VLQ-encoded arguments.
type Responder func(cmdID uint16, args func(output protocol.OutputBuffer))

// TimerCommands binds the remote command set to a scheduler
type TimerCommands struct {
	sched Scheduler
	pins  PinWriter
	reply Responder

	scheduledID uint16
	stateID     uint16
}

// RegisterTimerCommands registers the remote timer command set on r. The
// host side passes nil for sched, pins and reply: it only needs the ids.
func RegisterTimerCommands(r *CommandRegistry, sched Scheduler, pins PinWriter, reply Responder) *TimerCommands {
	c := &TimerCommands{sched: sched, pins: pins, reply: reply}

	r.Register(CmdSetPin, "pin=%u value=%c", c.handleSetPin)
	r.Register(CmdTimerOscillate, "pin=%u period=%u start=%c cycles=%i", c.handleOscillate)
	r.Register(CmdTimerPulse, "pin=%u period=%u start=%c", c.handlePulse)
	r.Register(CmdTimerPulseImmediate, "pin=%u period=%u value=%c", c.handlePulseImmediate)
	r.Register(CmdTimerStop, "id=%i", c.handleStop)
	r.Register(CmdTimerStatus, "", c.handleStatus)
	c.scheduledID = r.RegisterResponse(RspTimerScheduled, "id=%i")
	c.stateID = r.RegisterResponse(RspTimerState, "live=%c last_id=%i")

	return c
}

// NewTimerDictionary returns a registry holding only the ids and formats of
// the remote command set, for the host side of the link
func NewTimerDictionary() *CommandRegistry {
	r := NewCommandRegistry()
	RegisterTimerCommands(r, nil, nil, nil)
	return r
}

// handleSetPin writes a pin directly
// Format: set_pin pin=%u value=%c
func (c *TimerCommands) handleSetPin(data *[]byte) error {
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if c.pins == nil {
		return nil
	}
	return c.pins.SetPin(GPIOPin(pin), value != 0)
}

// handleOscillate schedules a square wave; cycles=-1 runs until stopped
// Format: timer_oscillate pin=%u period=%u start=%c cycles=%i
func (c *TimerCommands) handleOscillate(data *[]byte) error {
	pin, period, start, err := decodePinArgs(data)
	if err != nil {
		return err
	}
	cycles, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}

	c.replyScheduled(c.sched.OscillateN(pin, period, start, cycles))
	return nil
}

// handlePulse schedules one full cycle
// Format: timer_pulse pin=%u period=%u start=%c
func (c *TimerCommands) handlePulse(data *[]byte) error {
	pin, period, start, err := decodePinArgs(data)
	if err != nil {
		return err
	}

	c.replyScheduled(c.sched.Pulse(pin, period, start))
	return nil
}

// handlePulseImmediate schedules a single flip after period
// Format: timer_pulse_immediate pin=%u period=%u value=%c
func (c *TimerCommands) handlePulseImmediate(data *[]byte) error {
	pin, period, value, err := decodePinArgs(data)
	if err != nil {
		return err
	}

	c.replyScheduled(c.sched.PulseImmediate(pin, period, value))
	return nil
}

// handleStop stops an event; unknown ids are ignored
// Format: timer_stop id=%i
func (c *TimerCommands) handleStop(data *[]byte) error {
	id, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}

	// Ids outside the EventID range name no event; narrowing them would
	// alias a live one
	if id < 1 || id > int32(maxEventID) {
		return nil
	}
	c.sched.Stop(EventID(id))
	return nil
}

// handleStatus reports the live event count and last assigned id
// Format: timer_status
func (c *TimerCommands) handleStatus(data *[]byte) error {
	live := c.sched.Live()
	last := c.sched.LastEventID()
	if c.reply != nil {
		c.reply(c.stateID, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(live))
			protocol.EncodeVLQInt(output, int32(last))
		})
	}
	return nil
}

func (c *TimerCommands) replyScheduled(id EventID) {
	if c.reply == nil {
		return
	}
	c.reply(c.scheduledID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, int32(id))
	})
}

func decodePinArgs(data *[]byte) (GPIOPin, uint32, bool, error) {
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, 0, false, err
	}
	period, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, 0, false, err
	}
	level, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, 0, false, err
	}
	return GPIOPin(pin), period, level != 0, nil
}
