//go:build rp2040 || rp2350

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"

	"softtimer/core"
)

// statusPixelPin carries the on-board ws2812 on RP2040-Zero style boards.
// Set to machine.NoPin on boards without one.
var statusPixelPin = machine.GPIO16

// statusPeriod is the pixel refresh interval in ticks
const statusPeriod = 250

var (
	statusIdle   = color.RGBA{R: 0, G: 0, B: 16}
	statusActive = color.RGBA{R: 0, G: 16, B: 0}
	statusError  = color.RGBA{R: 24, G: 0, B: 0}
	statusOff    = color.RGBA{}
)

// statusPixel blinks the ws2812 in a color showing the link state: blue
// while no host has talked to us, green once frames arrive, red for a
// refresh after any receive error
type statusPixel struct {
	dev     ws2812.Device
	buf     [1]color.RGBA
	on      bool
	lastErr uint32
}

// startStatusPixel registers the refresh callback; it returns
// core.NoEvent when the board has no pixel
func startStatusPixel(sched core.Scheduler) core.EventID {
	if statusPixelPin == machine.NoPin {
		return core.NoEvent
	}
	statusPixelPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s := &statusPixel{dev: ws2812.New(statusPixelPin)}
	return sched.Every(statusPeriod, s.refresh, nil)
}

func (s *statusPixel) refresh(any) {
	s.on = !s.on
	c := statusOff
	if s.on {
		switch {
		case msgerrors != s.lastErr:
			s.lastErr = msgerrors
			c = statusError
		case messagesReceived > 0:
			c = statusActive
		default:
			c = statusIdle
		}
	}
	s.buf[0] = c
	_ = s.dev.WriteColors(s.buf[:])
}
