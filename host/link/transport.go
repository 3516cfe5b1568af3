package link

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"softtimer/protocol"
)

var (
	ErrClosed     = errors.New("link: transport closed")
	ErrSequence   = errors.New("link: sequence mismatch")
	ErrWriteShort = errors.New("link: incomplete write")
)

// Transport is the host side of the framed link. It sends one frame at a
// time, waits for the device ACK and queues response frames.
type Transport struct {
	port   io.ReadWriteCloser
	logger *zap.Logger

	seq     uint8 // Sequence of the next frame sent, guarded by writeMu
	writeMu sync.Mutex

	fifo       *protocol.FifoBuffer
	decoder    protocol.FrameDecoder
	syncErrors atomic.Uint32

	acks      chan uint8
	responses chan []byte

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTransport starts reading frames from port
func NewTransport(port io.ReadWriteCloser, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Transport{
		port:      port,
		logger:    logger,
		seq:       protocol.MessageDest,
		fifo:      protocol.NewFifoBuffer(protocol.MessageMax),
		acks:      make(chan uint8, 1),
		responses: make(chan []byte, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go t.readLoop()

	return t
}

// Send frames payload, writes it and waits for the matching ACK
func (t *Transport) Send(ctx context.Context, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	out := protocol.NewScratchOutput()
	if err := protocol.EncodeFrame(out, t.seq, payload); err != nil {
		return errors.WithMessagef(err, "link: payload of %d bytes", len(payload))
	}

	// A late ACK from an abandoned send must not satisfy this one
	select {
	case <-t.acks:
	default:
	}

	size := out.CurPosition()
	n, err := out.WriteTo(t.port)
	if errors.Is(err, io.ErrShortWrite) {
		return errors.Wrapf(ErrWriteShort, "%d/%d bytes", n, size)
	}
	if err != nil {
		return errors.Wrap(err, "link: write frame")
	}

	sent := t.seq
	want := protocol.NextSequence(sent)
	select {
	case got := <-t.acks:
		if got != want {
			t.logger.Warn("nak", lfdSequence(sent), zap.Uint8("expected", got))
			// Adopt the device's expectation so the next send lines up
			t.seq = got
			return errors.Wrapf(ErrSequence, "sent 0x%02x, device expects 0x%02x", sent, got)
		}
		t.seq = want
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "link: waiting for ack")
	case <-t.stop:
		return ErrClosed
	}
}

// Receive returns the next response payload, command id included
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case resp := <-t.responses:
		return resp, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "link: waiting for response")
	case <-t.stop:
		return nil, ErrClosed
	}
}

// Drain hands every queued response to fn without waiting
func (t *Transport) Drain(fn func(payload []byte)) {
	for {
		select {
		case resp := <-t.responses:
			fn(resp)
		default:
			return
		}
	}
}

// Errors returns how many times the decoder lost synchronization
func (t *Transport) Errors() uint32 {
	return t.syncErrors.Load()
}

// Close stops the reader and closes the port
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

// Reset restarts the sequence and drops queued acks and responses
func (t *Transport) Reset() {
	t.writeMu.Lock()
	t.seq = protocol.MessageDest
	t.writeMu.Unlock()

	for len(t.acks) > 0 {
		<-t.acks
	}
	for len(t.responses) > 0 {
		<-t.responses
	}
}

func (t *Transport) readLoop() {
	defer close(t.done)

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		_, err := t.fifo.Fill(t.port)
		t.processFrames()
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			if err == io.EOF {
				return
			}
			t.logger.Debug("read", lfdError(err))
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *Transport) processFrames() {
	defer func() {
		t.syncErrors.Store(t.decoder.Errors())
	}()

	for {
		frame, ok := t.decoder.Next(t.fifo)
		if !ok {
			return
		}

		if len(frame.Payload) == 0 {
			// ACK or NAK; keep only the newest
			select {
			case <-t.acks:
			default:
			}
			t.acks <- frame.Sequence
			continue
		}

		payload := append([]byte(nil), frame.Payload...)
		select {
		case t.responses <- payload:
		default:
			// Drop the oldest response
			select {
			case <-t.responses:
			default:
			}
			t.responses <- payload
			t.logger.Warn("response queue full, dropped oldest")
		}
	}
}
