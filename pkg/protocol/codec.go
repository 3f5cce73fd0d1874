// ABOUTME: Big-endian primitive writer and bounds-checked reader
// ABOUTME: Building blocks for every packet encoder and decoder
package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrTruncated is returned when a buffer ends before a field does
	ErrTruncated = errors.New("protocol: truncated packet")

	// ErrTrailingData is returned when a packet has bytes after its last field
	ErrTrailingData = errors.New("protocol: trailing data")
)

// Writer appends big-endian fields to a byte slice
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given initial capacity
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) U32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// Bytes writes a u32 length followed by the raw bytes
func (w *Writer) Bytes(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Str writes a u32 length followed by the UTF-8 bytes
func (w *Writer) Str(s string) {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Data returns the encoded bytes
func (w *Writer) Data() []byte {
	return w.buf
}

// Reader consumes big-endian fields from a byte slice. The first short read
// sets a sticky error; later reads return zero values.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader creates a reader over data
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) I32() int32 {
	return int32(r.U32())
}

func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

// Bytes reads a u32 length and that many bytes. The result aliases the input.
func (r *Reader) Bytes() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(r.Remaining()) {
		r.err = ErrTruncated
		return nil
	}
	return r.take(int(n))
}

// Str reads a u32 length and that many UTF-8 bytes
func (r *Reader) Str() string {
	return string(r.Bytes())
}

// Count reads a u32 element count and rejects counts that cannot fit in the
// remaining bytes given the minimum encoded element size.
func (r *Reader) Count(minElem int) int {
	n := r.U32()
	if r.err != nil {
		return 0
	}
	if minElem > 0 && uint64(n)*uint64(minElem) > uint64(r.Remaining()) {
		r.err = ErrTruncated
		return 0
	}
	return int(n)
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Err returns the first error seen
func (r *Reader) Err() error {
	return r.err
}

// Finish returns the first error, or ErrTrailingData if bytes are left over
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.Remaining() != 0 {
		return ErrTrailingData
	}
	return nil
}
