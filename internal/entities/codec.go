// Package entities defines the fixed-width records stored in the chess
// database indexes and their codecs.
//
// Every record is big-endian. Strings occupy a fixed field, zero-padded,
// and are cut at a rune boundary when too long.
package entities

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// NoID marks an unset reference to another record.
const NoID int32 = -1

// fieldWriter fills a record buffer left to right.
type fieldWriter struct {
	buf []byte
	off int
}

func (w *fieldWriter) str(s string, width int) {
	dst := w.buf[w.off : w.off+width]
	clear(dst)
	copy(dst, truncate(s, width))
	w.off += width
}

func (w *fieldWriter) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *fieldWriter) u16(v uint16) {
	binary.BigEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *fieldWriter) u32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *fieldWriter) i32(v int32) { w.u32(uint32(v)) }

func (w *fieldWriter) i64(v int64) {
	binary.BigEndian.PutUint64(w.buf[w.off:], uint64(v))
	w.off += 8
}

// fieldReader is the inverse of fieldWriter.
type fieldReader struct {
	buf []byte
	off int
}

func (r *fieldReader) str(width int) string {
	b := r.buf[r.off : r.off+width]
	r.off += width
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (r *fieldReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *fieldReader) u16() uint16 {
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *fieldReader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *fieldReader) i32() int32 { return int32(r.u32()) }

func (r *fieldReader) i64() int64 {
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return int64(v)
}

// truncate cuts s to at most width bytes without splitting a rune.
func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	s = s[:width]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// fieldString is s as it reads back from a field of the given width: cut
// at the first NUL and to width bytes.
func fieldString(s string, width int) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return truncate(s, width)
}

// compareFold orders strings case-insensitively, falling back to a byte
// comparison so distinct strings never compare equal.
func compareFold(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func cmpInt[T ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
