package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// PinWriter is the digital output primitive the timer drives for
// oscillating events.
type PinWriter interface {
	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error
}

// GPIODriver is the abstract GPIO interface implemented by targets.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	PinWriter

	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)
}

// PinWriterFunc adapts a function to the PinWriter interface
type PinWriterFunc func(pin GPIOPin, value bool) error

// SetPin calls f(pin, value)
func (f PinWriterFunc) SetPin(pin GPIOPin, value bool) error {
	return f(pin, value)
}
