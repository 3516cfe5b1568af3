package protocol

import (
	"errors"
	"sync/atomic"
)

// FrameHandler runs the commands packed into one frame payload
type FrameHandler func(payload []byte) error

// ErrHandlerPanic is reported when a frame handler panics
var ErrHandlerPanic = errors.New("frame handler panicked")

// Transport is the device side of the link. It decodes host frames, runs
// in-sequence ones through the handler and answers every frame with an
// ACK carrying the next expected sequence. An out-of-sequence frame is not
// run, so its ACK doubles as a NAK.
type Transport struct {
	decoder      FrameDecoder
	nextSequence uint32 // atomic uint8 stored as uint32
	output       OutputBuffer
	handler      FrameHandler
	scratch      *ScratchOutput

	resetCallback func()      // Called when a host reset is detected
	flushCallback func()      // Called to push an ACK out immediately
	errorCallback func(error) // Called with handler failures
}

// NewTransport creates a Transport writing ACKs and responses to output
func NewTransport(output OutputBuffer, handler FrameHandler) *Transport {
	return &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
		scratch:      NewScratchOutput(),
	}
}

// Receive processes every complete frame in input
func (t *Transport) Receive(input InputBuffer) {
	for {
		errs := t.decoder.Errors()
		frame, ok := t.decoder.Next(input)
		if t.decoder.Errors() != errs {
			// Lost sync: tell the host which sequence we still expect
			t.encodeAckNak()
		}
		if !ok {
			return
		}

		expected := uint8(atomic.LoadUint32(&t.nextSequence))
		if frame.Sequence == MessageDest && expected != MessageDest {
			// Host restarted its sequence
			atomic.StoreUint32(&t.nextSequence, MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if frame.Sequence == expected {
			atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(expected)))
			if err := t.parseFrame(frame.Payload); err != nil && t.errorCallback != nil {
				t.errorCallback(err)
			}
		}
		t.encodeAckNak()
	}
}

// parseFrame hands the payload to the handler, turning a panic into an error
func (t *Transport) parseFrame(payload []byte) (err error) {
	if t.handler == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = ErrHandlerPanic
		}
	}()
	return t.handler(payload)
}

// encodeAckNak sends an empty frame carrying the next expected sequence.
// It is flushed at once: the host waits for it before reading responses.
func (t *Transport) encodeAckNak() {
	ns := uint8(atomic.LoadUint32(&t.nextSequence))
	_ = EncodeFrame(t.output, ns, nil)

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand sends a response message. Responses reuse the current
// sequence; several may go out under one.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	t.scratch.Reset()
	EncodeVLQUint(t.scratch, uint32(cmdID))
	if args != nil {
		args(t.scratch)
	}
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	return EncodeFrame(t.output, seq, t.scratch.Result())
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.decoder = FrameDecoder{}
	atomic.StoreUint32(&t.nextSequence, MessageDest)

	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// NextSequence returns the sequence the transport expects next
func (t *Transport) NextSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.nextSequence))
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback to push ACKs out without waiting for the
// main loop
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback sets a callback receiving handler errors
func (t *Transport) SetErrorCallback(callback func(error)) {
	t.errorCallback = callback
}
