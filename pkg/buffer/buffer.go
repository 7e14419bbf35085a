// Package buffer implements a fixed-capacity byte region with start/end
// cursors, sized once by its owner and never reallocated. Unlike a
// circular FIFO, the region is linear: prepend requires headroom below
// start and append requires room below capacity.
package buffer

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned by At/Slice when a request falls
	// outside the active [start, end) range.
	ErrOutOfRange = errors.New("buffer: index out of range")
	// ErrOverflow is returned when append/prepend has no room to grow.
	ErrOverflow = errors.New("buffer: no room to grow")
)

// Buffer is a fixed-capacity byte region owned exclusively by its
// holder. It is not safe for concurrent use.
type Buffer struct {
	buf          []byte
	start        int
	end          int
	initialStart int
}

// New allocates a Buffer of the given capacity with both cursors parked
// at initialStart, leaving that much headroom for later prepends (e.g.
// link or framer headers written back-to-front).
func New(capacity, initialStart int) *Buffer {
	return &Buffer{
		buf:          make([]byte, capacity),
		start:        initialStart,
		end:          initialStart,
		initialStart: initialStart,
	}
}

// Len returns the number of active bytes, end-start.
func (b *Buffer) Len() int { return b.end - b.start }

// Cap returns the total backing capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// IsFull reports whether the active range spans the whole backing store.
func (b *Buffer) IsFull() bool { return b.Len() == b.Cap() }

// At returns the byte at logical offset i within the active range.
func (b *Buffer) At(i int) (byte, error) {
	if i < 0 || i >= b.Len() {
		return 0, ErrOutOfRange
	}
	return b.buf[b.start+i], nil
}

// Slice returns a lent read-only view into [start, start+length) of the
// active range. The returned slice aliases the backing array and must
// not be retained past the next mutating call.
func (b *Buffer) Slice(start, length int) ([]byte, error) {
	if start < 0 || length < 0 || start+length > b.Len() {
		return nil, ErrOutOfRange
	}
	lo := b.start + start
	return b.buf[lo : lo+length], nil
}

// Bytes returns a lent view over the whole active range.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.start:b.end]
}

// Append adds one byte at the end, failing with ErrOverflow if the
// backing store is exhausted.
func (b *Buffer) Append(v byte) error {
	if b.end >= len(b.buf) {
		return ErrOverflow
	}
	b.buf[b.end] = v
	b.end++
	return nil
}

// Extend appends every byte of seq, stopping and returning ErrOverflow
// if capacity runs out partway through.
func (b *Buffer) Extend(seq []byte) error {
	for _, v := range seq {
		if err := b.Append(v); err != nil {
			return err
		}
	}
	return nil
}

// Prepend1 inserts one byte immediately before start, failing with
// ErrOverflow if there is no headroom.
func (b *Buffer) Prepend1(v byte) error {
	if b.start <= 0 {
		return ErrOverflow
	}
	b.start--
	b.buf[b.start] = v
	return nil
}

// Prepend inserts seq immediately before start, preserving seq's order,
// failing with ErrOverflow if there is insufficient headroom. On
// failure the buffer is left unmodified.
func (b *Buffer) Prepend(seq []byte) error {
	if b.start < len(seq) {
		return ErrOverflow
	}
	newStart := b.start - len(seq)
	copy(b.buf[newStart:b.start], seq)
	b.start = newStart
	return nil
}

// LTrunc advances start by n, shrinking the active range from the
// front. n must be <= Len().
func (b *Buffer) LTrunc(n int) {
	if n < 0 {
		n = 0
	}
	if n > b.Len() {
		n = b.Len()
	}
	b.start += n
}

// RTrunc retreats end by n, shrinking the active range from the back.
// n must be <= Len().
func (b *Buffer) RTrunc(n int) {
	if n < 0 {
		n = 0
	}
	if n > b.Len() {
		n = b.Len()
	}
	b.end -= n
}

// Reset restores both cursors to the initial start offset, discarding
// the active range without zeroing the backing storage.
func (b *Buffer) Reset() {
	b.start = b.initialStart
	b.end = b.initialStart
}

// ReadWith lends the active range [start, end) to fn, typically a PHY
// Send call, so it can be written out without copying. It returns
// whatever fn returns (bytes consumed).
func (b *Buffer) ReadWith(fn func([]byte) int) int {
	return fn(b.buf[b.start:b.end])
}

// WriteWith resets both cursors to zero and lends the whole backing
// array to fn, typically a PHY RecvInto call, so it can fill the buffer
// without copying. end is set to whatever fn returns.
func (b *Buffer) WriteWith(fn func([]byte) int) int {
	b.start = 0
	n := fn(b.buf)
	if n < 0 {
		n = 0
	}
	if n > len(b.buf) {
		n = len(b.buf)
	}
	b.end = n
	return n
}

// String renders the buffer's bookkeeping for diagnostics, matching the
// source's "Buffer(sz=.., start=.., end=..)" convention.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(sz=%d, start=%d, end=%d)", len(b.buf), b.start, b.end)
}
