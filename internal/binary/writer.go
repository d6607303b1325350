package binary

import (
	"encoding/binary"
	"io"
)

// Writer writes little-endian binary values to an io.Writer. It is the
// backend for the serialized index format. The first write error is
// sticky: subsequent writes are no-ops and Err returns it.
type Writer struct {
	w   io.Writer
	buf [8]byte
	n   int64
	err error
}

// NewWriter creates a little-endian stream writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first write error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Count returns the number of bytes written so far.
func (w *Writer) Count() int64 {
	return w.n
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(p []byte) {
	if w.err != nil || len(p) == 0 {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	w.err = err
}

// WriteUint8 writes an unsigned 8-bit integer.
func (w *Writer) WriteUint8(v uint8) {
	w.buf[0] = v
	w.WriteBytes(w.buf[:1])
}

// WriteUint16 writes an unsigned 16-bit integer.
func (w *Writer) WriteUint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.WriteBytes(w.buf[:2])
}

// WriteUint32 writes an unsigned 32-bit integer.
func (w *Writer) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.WriteBytes(w.buf[:4])
}

// WriteUint64 writes an unsigned 64-bit integer.
func (w *Writer) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.WriteBytes(w.buf[:8])
}

// WriteInt64 writes a signed 64-bit integer.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteString writes a 16-bit length prefix followed by the string bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUint16(uint16(len(s)))
	w.WriteBytes([]byte(s))
}
