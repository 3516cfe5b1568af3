package protocol

import "io"

// InputBuffer is the read side consumed by FrameDecoder
type InputBuffer interface {
	// Data returns the buffered bytes, oldest first
	Data() []byte

	// Available returns the number of buffered bytes
	Available() int

	// Pop discards n bytes from the front
	Pop(n int)
}

// OutputBuffer is the write side frames and VLQ values are encoded into
type OutputBuffer interface {
	// Output appends data
	Output(data []byte)

	// CurPosition returns the current write position
	CurPosition() int

	// Update overwrites the byte at pos
	Update(pos int, val byte)

	// DataSince returns everything written from pos on
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a fixed byte slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer creates a new SliceInputBuffer
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is an OutputBuffer backed by a fixed MessageMax array.
// Writes past the end are dropped.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput creates an empty ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset empties the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// WriteTo flushes the buffered bytes to w and resets the buffer
func (s *ScratchOutput) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.buf[:s.pos])
	if err == nil && n < s.pos {
		err = io.ErrShortWrite
	}
	s.Reset()
	return int64(n), err
}

// FifoBuffer is a circular byte queue between a serial reader and the frame
// decoder. One slot is kept empty to tell full from empty.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
	line  []byte // Linearized copy handed out by Data when wrapped
}

// NewFifoBuffer creates a FifoBuffer holding up to capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		line: make([]byte, 0, capacity),
	}
}

// Write queues as much of data as fits and returns the count queued
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	for _, b := range data[:n] {
		f.buf[f.write] = b
		f.write = (f.write + 1) % len(f.buf)
	}
	return n
}

// Fill reads once from r into the free space
func (f *FifoBuffer) Fill(r io.Reader) (int, error) {
	var chunk [64]byte
	free := f.Free()
	if free == 0 {
		return 0, nil
	}
	n, err := r.Read(chunk[:min(free, len(chunk))])
	f.Write(chunk[:n])
	return n, err
}

// Available returns the number of queued bytes
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

// Free returns the number of bytes that can still be queued
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the queued bytes as one contiguous slice. When the queue has
// wrapped the bytes are copied into a scratch slice owned by the buffer, so
// the result is only valid until the next call.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	f.line = append(f.line[:0], f.buf[f.read:]...)
	f.line = append(f.line, f.buf[:f.write]...)
	return f.line
}

// Pop discards n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.Available())
	f.read = (f.read + n) % len(f.buf)
}

// IsEmpty reports whether nothing is queued
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset discards everything queued
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
