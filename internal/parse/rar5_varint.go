package parse

import (
	"bufio"
	"errors"
	"io"
)

// maxVarintLen bounds RAR5 vint encoding; 10 groups of 7 bits cover uint64.
const maxVarintLen = 10

// ErrVarintOverflow is returned when a vint does not terminate within maxVarintLen bytes.
var ErrVarintOverflow = errors.New("varint too long")

// ReadVarintFromSlice reads a RAR5 varint from a byte slice and reports how many bytes it used.
func ReadVarintFromSlice(b []byte) (uint64, int64, error) {
	var val uint64
	var n int64
	for i := 0; i < len(b) && i < maxVarintLen; i++ {
		c := b[i]
		val |= uint64(c&0x7F) << (7 * i)
		n++
		if c&0x80 == 0 {
			return val, n, nil
		}
	}
	if n == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	if n < maxVarintLen {
		return 0, n, io.ErrUnexpectedEOF
	}
	return 0, n, ErrVarintOverflow
}

// ReadVarint reads a RAR5 variable-length integer directly from the reader.
func ReadVarint(br *bufio.Reader) (value uint64, n int64, err error) {
	for i := 0; i < maxVarintLen; i++ {
		b, e := br.ReadByte()
		if e != nil {
			err = e
			return
		}
		value |= uint64(b&0x7f) << (7 * i)
		n++
		if b&0x80 == 0 {
			return
		}
	}
	err = ErrVarintOverflow
	return
}

// Cursor walks varints and fixed-size fields inside an already buffered header.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of b.
func NewCursor(b []byte) *Cursor { return &Cursor{buf: b} }

// Varint consumes one varint.
func (c *Cursor) Varint() (uint64, error) {
	v, n, err := ReadVarintFromSlice(c.buf[c.off:])
	if err != nil {
		return 0, err
	}
	c.off += int(n)
	return v, nil
}

// Skip advances n bytes, failing if fewer remain.
func (c *Cursor) Skip(n int) error {
	if n < 0 || c.Remaining() < n {
		return io.ErrUnexpectedEOF
	}
	c.off += n
	return nil
}

// Bytes consumes and returns the next n bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Offset is the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.off }

// Remaining is the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }
