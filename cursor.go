// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"encoding/binary"
	"fmt"
)

// cursor is a bounds-checked reader over a DNS message.
//
// Every accessor fails with [ErrMalformedResponse] instead of
// indexing past the end of the buffer.
type cursor struct {
	// buf is the whole message.
	buf []byte

	// off is the current read offset.
	off int
}

// newCursor returns a [*cursor] reading buf from off.
func newCursor(buf []byte, off int) *cursor {
	return &cursor{buf: buf, off: off}
}

// remaining returns the number of unread bytes.
func (c *cursor) remaining() int {
	if c.off >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.off
}

// need ensures that n more bytes can be read.
func (c *cursor) need(n int) error {
	if n < 0 || c.off < 0 || n > c.remaining() {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrMalformedResponse, n, c.off, c.remaining())
	}
	return nil
}

func (c *cursor) uint8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *cursor) uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

func (c *cursor) uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

// bytes returns a view of the next n bytes without copying.
func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return v, nil
}

// skip advances the cursor by n bytes.
func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.off += n
	return nil
}
