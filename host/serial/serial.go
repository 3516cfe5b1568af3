package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes (for tests and the dry-run console)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate (USB CDC ignores this)
	Baud int `yaml:"baud"`

	// Read timeout (0 = blocking)
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

const (
	DefaultBaud        = 250000
	DefaultReadTimeout = 100 * time.Millisecond
)

// ErrNoDevice is returned when a port is opened without a device path
var ErrNoDevice = errors.New("serial: no device configured")

// DefaultConfig returns a default configuration for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud < 0 {
		return errors.Errorf("serial: invalid baud rate %d", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return errors.Errorf("serial: negative read timeout %s", c.ReadTimeout)
	}
	return nil
}
