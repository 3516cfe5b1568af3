package protocol

import "errors"

// Frame layout: [len][seq][payload...][crc_hi][crc_lo][sync]
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// ErrFrameTooLong is returned when a payload does not fit in one frame
var ErrFrameTooLong = errors.New("frame payload too long")

// Frame is one decoded message
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// NextSequence returns the sequence byte following seq
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// EncodeFrame appends a complete frame carrying payload to output
func EncodeFrame(output OutputBuffer, seq uint8, payload []byte) error {
	if len(payload) > MessagePayloadMax {
		return ErrFrameTooLong
	}

	start := output.CurPosition()
	output.Output([]byte{uint8(len(payload) + MessageLengthMin), seq&MessageSeqMask | MessageDest})
	output.Output(payload)

	crc := CRC16(output.DataSince(start))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
	return nil
}

// FrameDecoder pulls frames out of a byte stream. After a length, sequence,
// CRC or sync error it drops bytes up to the next sync byte and carries on.
type FrameDecoder struct {
	desynced bool
	errors   uint32
	scratch  [MessageLengthMax]byte
}

// Errors returns how many times the decoder lost synchronization
func (d *FrameDecoder) Errors() uint32 {
	return d.errors
}

// Next decodes the next complete frame in input and pops it. It returns
// false when input holds no complete frame yet. The payload aliases memory
// owned by the decoder and is valid until the next call.
func (d *FrameDecoder) Next(input InputBuffer) (Frame, bool) {
	data := input.Data()
	total := len(data)
	defer func() {
		input.Pop(total - len(data))
	}()

	for len(data) > 0 {
		if d.desynced {
			i := 0
			for i < len(data) && data[i] != MessageValueSync {
				i++
			}
			if i == len(data) {
				data = data[i:]
				return Frame{}, false
			}
			data = data[i+1:]
			d.desynced = false
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			return Frame{}, false
		}

		msgLen := int(data[MessagePositionLen])
		seq := data[MessagePositionSeq]
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax || seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}
		if len(data) < msgLen {
			return Frame{}, false
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.desync()
			continue
		}

		n := copy(d.scratch[:], data[MessageHeaderSize:msgLen-MessageTrailerSize])
		data = data[msgLen:]
		return Frame{Sequence: seq, Payload: d.scratch[:n]}, true
	}
	return Frame{}, false
}

func (d *FrameDecoder) desync() {
	d.desynced = true
	d.errors++
}
