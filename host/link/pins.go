package link

import (
	"context"

	"softtimer/core"
)

// Pins drives device pins through set_pin, so a host-side Timer can
// oscillate pins it does not own
type Pins struct {
	link *Link
	ctx  context.Context
}

var _ core.PinWriter = (*Pins)(nil)

// Pins returns a pin writer bound to ctx. Each write waits for the device
// ACK, bounded by the link timeout.
func (l *Link) Pins(ctx context.Context) *Pins {
	return &Pins{link: l, ctx: ctx}
}

// SetPin implements core.PinWriter
func (p *Pins) SetPin(pin core.GPIOPin, value bool) error {
	return p.link.SetPin(p.ctx, pin, value)
}
