// Package wire implements the canonical Mosaic byte codec.
//
// Every protocol value has exactly one encoding. Encoding is total and
// deterministic; decoding rejects anything that is not the unique
// canonical encoding of some valid value, because signatures and
// addresses are computed over encoded bytes, not in-memory structures.
//
// All multi-byte integers are little-endian and fixed-width. Variable
// length fields are length-prefixed. A Decoder must be finished with
// Finish, which rejects trailing bytes.
package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxTimestampMillis is the largest encodable timestamp value.
// Timestamps occupy 48 bits on the wire with the top bit reserved zero.
const MaxTimestampMillis = 0x7FFF_FFFF_FFFF

// Encoder appends canonical encodings to a growing buffer.
//
// The zero value is ready to use. Encoders are not safe for concurrent
// use; distinct Encoders never interfere.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity preallocated.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes accumulated so far.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) U8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) U16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) U32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) U64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// U48 encodes the low 48 bits of v as 6 little-endian bytes.
// Values above MaxTimestampMillis have no canonical encoding; callers
// must range-check before encoding.
func (e *Encoder) U48(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:6]...)
}

// Raw appends fixed-width bytes with no framing. The decoder side must
// know the width.
func (e *Encoder) Raw(b []byte) {
	e.buf = append(e.buf, b...)
}

// Blob16 appends a blob with a u16 length prefix.
func (e *Encoder) Blob16(b []byte) {
	e.U16(uint16(len(b)))
	e.buf = append(e.buf, b...)
}

// Blob32 appends a blob with a u32 length prefix.
func (e *Encoder) Blob32(b []byte) {
	e.U32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// Decoder consumes a byte slice from the front, enforcing canonical
// form as it goes. It never copies payload bytes; returned slices alias
// the input.
type Decoder struct {
	b   []byte
	off int
}

// NewDecoder returns a Decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

// Remaining reports how many bytes are left to consume.
func (d *Decoder) Remaining() int {
	return len(d.b) - d.off
}

// Offset reports how many bytes have been consumed.
func (d *Decoder) Offset() int {
	return d.off
}

// Finish rejects the input unless it has been consumed exactly.
// Trailing bytes make an otherwise valid encoding non-canonical.
func (d *Decoder) Finish() error {
	if d.off != len(d.b) {
		return newError(NonCanonical, fmt.Sprintf("%d trailing bytes after value", len(d.b)-d.off))
	}
	return nil
}

func (d *Decoder) need(n int, what string) error {
	if d.Remaining() < n {
		return newError(Truncated, fmt.Sprintf("need %d bytes for %s, have %d", n, what, d.Remaining()))
	}
	return nil
}

func (d *Decoder) U8(what string) (uint8, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) U16(what string) (uint16, error) {
	if err := d.need(2, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.b[d.off:])
	d.off += 2
	return v, nil
}

func (d *Decoder) U32(what string) (uint32, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) U64(what string) (uint64, error) {
	if err := d.need(8, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

// U48 decodes a 6-byte little-endian timestamp field. The 48th bit is
// reserved zero; an encoding with it set is non-canonical.
func (d *Decoder) U48(what string) (uint64, error) {
	if err := d.need(6, what); err != nil {
		return 0, err
	}
	var b [8]byte
	copy(b[:6], d.b[d.off:])
	v := binary.LittleEndian.Uint64(b[:])
	if v > MaxTimestampMillis {
		return 0, newError(NonCanonical, what+" exceeds 47-bit range")
	}
	d.off += 6
	return v, nil
}

// Raw consumes exactly n fixed-width bytes.
func (d *Decoder) Raw(n int, what string) ([]byte, error) {
	if err := d.need(n, what); err != nil {
		return nil, err
	}
	v := d.b[d.off : d.off+n : d.off+n]
	d.off += n
	return v, nil
}

// Blob16 consumes a u16-length-prefixed blob.
func (d *Decoder) Blob16(what string) ([]byte, error) {
	n, err := d.U16(what + " length")
	if err != nil {
		return nil, err
	}
	return d.Raw(int(n), what)
}

// Blob32 consumes a u32-length-prefixed blob.
func (d *Decoder) Blob32(what string) ([]byte, error) {
	n, err := d.U32(what + " length")
	if err != nil {
		return nil, err
	}
	return d.Raw(int(n), what)
}
