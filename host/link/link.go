// Package link drives the remote timer command set over a framed serial
// link.
package link

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"softtimer/core"
	"softtimer/host/serial"
	"softtimer/protocol"
)

var (
	ErrUnknownCommand = errors.New("link: unknown command")
	ErrArgCount       = errors.New("link: wrong argument count")
)

// DefaultTimeout bounds every request that has no deadline of its own
const DefaultTimeout = 2 * time.Second

// ResponseHandler is called with every response that no request is
// waiting for
type ResponseHandler func(name string, args []int32)

// Status is the decoded timer_state response
type Status struct {
	Live        int
	LastEventID core.EventID
}

// Link is a connection to a device running the remote timer command set.
// Requests are serialized: one command is in flight at a time.
type Link struct {
	transport *Transport
	dict      *core.CommandRegistry
	logger    *zap.Logger
	timeout   time.Duration
	handler   ResponseHandler

	mu sync.Mutex
}

// Option configures a Link
type Option func(*Link)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) {
		l.logger = logger
	}
}

// WithTimeout sets the timeout of requests whose context has no deadline
func WithTimeout(timeout time.Duration) Option {
	return func(l *Link) {
		l.timeout = timeout
	}
}

// WithResponseHandler receives unsolicited responses
func WithResponseHandler(h ResponseHandler) Option {
	return func(l *Link) {
		l.handler = h
	}
}

// Dial opens the serial port described by cfg and starts a Link on it
func Dial(cfg *serial.Config, opts ...Option) (*Link, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "link: dial")
	}
	return New(port, opts...), nil
}

// New starts a Link on an open port
func New(port io.ReadWriteCloser, opts ...Option) *Link {
	l := &Link{
		dict:    core.NewTimerDictionary(),
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("link")
	l.transport = NewTransport(port, l.logger)
	return l
}

// Close closes the link and its port
func (l *Link) Close() error {
	return l.transport.Close()
}

// Dictionary returns the command dictionary shared with the device
func (l *Link) Dictionary() *core.CommandRegistry {
	return l.dict
}

// Transport returns the underlying frame transport
func (l *Link) Transport() *Transport {
	return l.transport
}

// Send sends the named command and waits for its ACK
func (l *Link) Send(ctx context.Context, name string, args ...int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.send(ctx, name, args)
}

// Request sends the named command and waits for the named response,
// returning its decoded arguments
func (l *Link) Request(ctx context.Context, name, response string, args ...int32) ([]int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	rsp, ok := l.dict.Lookup(response)
	if !ok {
		return nil, errors.Wrap(ErrUnknownCommand, response)
	}
	// Anything already queued answers an earlier, abandoned request
	l.transport.Drain(l.handlePayload)

	if err := l.send(ctx, name, args); err != nil {
		return nil, err
	}

	for {
		payload, err := l.transport.Receive(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "link: %s", name)
		}
		cmd, values, err := l.decode(payload)
		if err != nil {
			l.logger.Warn("bad response", lfdError(err))
			continue
		}
		if cmd.ID == rsp.ID {
			return values, nil
		}
		l.dispatch(cmd, values)
	}
}

// SetPin writes a device pin directly
func (l *Link) SetPin(ctx context.Context, pin core.GPIOPin, value bool) error {
	return l.Send(ctx, core.CmdSetPin, int32(pin), boolArg(value))
}

// Oscillate schedules a square wave on a device pin. Non-positive cycles
// run until stopped.
func (l *Link) Oscillate(ctx context.Context, pin core.GPIOPin, period uint32, start bool, cycles int32) (core.EventID, error) {
	return l.schedule(ctx, core.CmdTimerOscillate, int32(pin), int32(period), boolArg(start), cycles)
}

// Pulse schedules one full cycle on a device pin
func (l *Link) Pulse(ctx context.Context, pin core.GPIOPin, period uint32, start bool) (core.EventID, error) {
	return l.schedule(ctx, core.CmdTimerPulse, int32(pin), int32(period), boolArg(start))
}

// PulseImmediate drives a device pin to value now and flips it after period
func (l *Link) PulseImmediate(ctx context.Context, pin core.GPIOPin, period uint32, value bool) (core.EventID, error) {
	return l.schedule(ctx, core.CmdTimerPulseImmediate, int32(pin), int32(period), boolArg(value))
}

// Stop stops a device event. Unknown ids are ignored by the device.
func (l *Link) Stop(ctx context.Context, id core.EventID) error {
	return l.Send(ctx, core.CmdTimerStop, int32(id))
}

// Status queries the device timer
func (l *Link) Status(ctx context.Context) (Status, error) {
	values, err := l.Request(ctx, core.CmdTimerStatus, core.RspTimerState)
	if err != nil {
		return Status{}, err
	}
	return Status{Live: int(values[0]), LastEventID: core.EventID(values[1])}, nil
}

func (l *Link) schedule(ctx context.Context, name string, args ...int32) (core.EventID, error) {
	values, err := l.Request(ctx, name, core.RspTimerScheduled, args...)
	if err != nil {
		return core.NoSlotAvailable, err
	}

	id := core.EventID(values[0])
	if id == core.NoSlotAvailable {
		return id, errors.WithMessage(core.ErrNoSlotAvailable, name)
	}
	l.logger.Debug("scheduled", lfdCommand(name), lfdEventID(id))
	return id, nil
}

func (l *Link) send(ctx context.Context, name string, args []int32) error {
	cmd, ok := l.dict.Lookup(name)
	// Responses carry no handler and cannot be sent
	if !ok || cmd.Handler == nil {
		return errors.Wrap(ErrUnknownCommand, name)
	}
	if cmd.ArgCount() != len(args) {
		return errors.Wrapf(ErrArgCount, "%s takes %d, got %d", name, cmd.ArgCount(), len(args))
	}

	out := protocol.NewScratchOutput()
	protocol.EncodeCommand(out, cmd.ID, args...)

	l.logger.Debug("send", lfdCommand(name), lfdCommandID(cmd.ID), lfdArgs(args))
	if err := l.transport.Send(ctx, out.Result()); err != nil {
		return errors.WithMessagef(err, "link: %s", name)
	}
	return nil
}

// decode splits a response payload into its dictionary entry and arguments
func (l *Link) decode(payload []byte) (*core.Command, []int32, error) {
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, nil, errors.Wrap(err, "response id")
	}
	cmd, ok := l.dict.GetCommand(uint16(id))
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnknownCommand, "response id %d", id)
	}

	values := make([]int32, cmd.ArgCount())
	for i := range values {
		if values[i], err = protocol.DecodeVLQInt(&payload); err != nil {
			return nil, nil, errors.Wrapf(err, "%s argument %d", cmd.Name, i)
		}
	}
	return cmd, values, nil
}

func (l *Link) handlePayload(payload []byte) {
	cmd, values, err := l.decode(payload)
	if err != nil {
		l.logger.Warn("bad response", lfdError(err))
		return
	}
	l.dispatch(cmd, values)
}

func (l *Link) dispatch(cmd *core.Command, values []int32) {
	if l.handler != nil {
		l.handler(cmd.Name, values)
		return
	}
	l.logger.Info("unsolicited response", lfdCommand(cmd.Name), lfdArgs(values))
}

func (l *Link) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func boolArg(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
