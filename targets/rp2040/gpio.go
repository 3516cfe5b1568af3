//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"softtimer/core"
)

// maxGPIO is the highest user GPIO on the RP2040
const maxGPIO = 29

// ErrInvalidPin is returned for pin numbers past maxGPIO
var ErrInvalidPin = errors.New("invalid pin")

// RPGPIODriver drives machine pins for the timer. Pins are configured as
// outputs on first write.
type RPGPIODriver struct {
	configured [maxGPIO + 1]bool
}

// NewRPGPIODriver creates a GPIO driver with no pins configured
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if pin > maxGPIO {
		return ErrInvalidPin
	}
	if d.configured[pin] {
		return nil
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured[pin] = true
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if err := d.ConfigureOutput(pin); err != nil {
		return err
	}
	machine.Pin(pin).Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	if pin > maxGPIO {
		return false, ErrInvalidPin
	}
	if !d.configured[pin] {
		return false, nil
	}
	return machine.Pin(pin).Get(), nil
}
