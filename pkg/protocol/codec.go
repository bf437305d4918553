package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Writer serializes little-endian fields into a growing buffer.
// Methods return the writer so fields can be chained.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// U8 appends a byte.
func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

// F32 appends a little-endian IEEE 754 float32.
func (w *Writer) F32(v float32) *Writer {
	return w.U32(math.Float32bits(v))
}

// Raw appends bytes as-is.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// CString appends s followed by a NUL terminator.
func (w *Writer) CString(s string) *Writer {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// PutU16At overwrites a previously written uint16 at offset.
// It panics if the offset was never written.
func (w *Writer) PutU16At(offset int, v uint16) {
	binary.LittleEndian.PutUint16(w.buf[offset:offset+2], v)
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the serialized packet.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader decodes fields at absolute offsets of a complete packet. Every read
// is bounds-checked and fails with ErrTruncated instead of panicking.
type Reader struct {
	data []byte
}

// NewReader wraps a packet. The reader never mutates data.
func NewReader(data []byte) Reader {
	return Reader{data: data}
}

// Len returns the packet length.
func (r Reader) Len() int {
	return len(r.data)
}

func (r Reader) span(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset > len(r.data) || n > len(r.data)-offset {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, offset, len(r.data))
	}
	return r.data[offset : offset+n], nil
}

// U8 reads a byte.
func (r Reader) U8(offset int) (uint8, error) {
	b, err := r.span(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16.
func (r Reader) U16(offset int) (uint16, error) {
	b, err := r.span(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (r Reader) U32(offset int) (uint32, error) {
	b, err := r.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (r Reader) U64(offset int) (uint64, error) {
	b, err := r.span(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// F32 reads a little-endian float32.
func (r Reader) F32(offset int) (float32, error) {
	v, err := r.U32(offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Bytes returns a copy of n bytes starting at offset.
func (r Reader) Bytes(offset, n int) ([]byte, error) {
	b, err := r.span(offset, n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

// ReversedString reads n bytes, reverses them and strips NUL padding.
// The client sends platform, OS and locale tags this way ("\x0068x" for "x86").
func (r Reader) ReversedString(offset, n int) (string, error) {
	b, err := r.Bytes(offset, n)
	if err != nil {
		return "", err
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return strings.ReplaceAll(string(b), "\x00", ""), nil
}

// CString reads a NUL-terminated string and returns it together with the
// offset just past the terminator.
func (r Reader) CString(offset int) (string, int, error) {
	if offset < 0 || offset > len(r.data) {
		return "", 0, fmt.Errorf("%w: cstring at offset %d, have %d", ErrTruncated, offset, len(r.data))
	}
	end := bytes.IndexByte(r.data[offset:], 0)
	if end < 0 {
		return "", 0, fmt.Errorf("%w: unterminated cstring at offset %d", ErrTruncated, offset)
	}
	return string(r.data[offset : offset+end]), offset + end + 1, nil
}
