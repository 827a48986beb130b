package spec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// decoder reads big-endian fields from a byte slice.
// The first failure sticks in err and all later reads return zero values.
type decoder struct {
	buf []byte
	pos int
	err error
}

func newDecoder(buf []byte, pos int) *decoder {
	return &decoder{buf: buf, pos: pos}
}

func (d *decoder) need(n int, what string) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.err = fmt.Errorf("%w: %s at offset %d: %w", ErrShortRead, what, d.pos, io.ErrUnexpectedEOF)
		return false
	}
	return true
}

func (d *decoder) u8(what string) uint8 {
	if !d.need(1, what) {
		return 0
	}
	v := d.buf[d.pos]
	d.pos++
	return v
}

func (d *decoder) u16(what string) uint16 {
	if !d.need(2, what) {
		return 0
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v
}

func (d *decoder) u32(what string) uint32 {
	if !d.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) bytes(n int, what string) []byte {
	if !d.need(n, what) {
		return nil
	}
	v := d.buf[d.pos : d.pos+n : d.pos+n]
	d.pos += n
	return v
}

// cstring reads a NUL-terminated string.
func (d *decoder) cstring(what string) string {
	if d.err != nil {
		return ""
	}
	end := bytes.IndexByte(d.buf[min(d.pos, len(d.buf)):], 0)
	if end < 0 {
		d.err = fmt.Errorf("%w: unterminated %s at offset %d: %w", ErrShortRead, what, d.pos, io.ErrUnexpectedEOF)
		return ""
	}
	s := string(d.buf[d.pos : d.pos+end])
	d.pos += end + 1
	return s
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}
