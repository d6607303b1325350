// Package binary provides low-level binary I/O over a byte source for
// HDF5 metadata parsing and for the serialized index format.
package binary

import (
	"encoding/binary"
	"io"
)

// Reader reads HDF5 binary structures from an io.ReaderAt using the
// variable-width offset and length fields declared in the superblock.
//
// A Reader carries its own position; At returns an independent Reader
// sharing the same byte source, so concurrent readers are safe as long
// as the underlying io.ReaderAt is.
type Reader struct {
	r          io.ReaderAt
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
	pos        int64
}

// Config holds reader configuration, typically derived from the superblock.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int // 2, 4, or 8 bytes
	LengthSize int // 2, 4, or 8 bytes
}

// DefaultConfig returns a configuration suitable for initial superblock
// reading: little-endian with 8-byte offsets and lengths.
func DefaultConfig() Config {
	return Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: 8,
		LengthSize: 8,
	}
}

// NewReader creates a binary reader with the given configuration.
func NewReader(r io.ReaderAt, cfg Config) *Reader {
	return &Reader{
		r:          r,
		order:      cfg.ByteOrder,
		offsetSize: cfg.OffsetSize,
		lengthSize: cfg.LengthSize,
	}
}

// At returns a new reader positioned at the given offset.
func (r *Reader) At(offset int64) *Reader {
	nr := *r
	nr.pos = offset
	return &nr
}

// WithSizes returns a new reader with updated offset and length sizes,
// used once the superblock has been parsed.
func (r *Reader) WithSizes(offsetSize, lengthSize int) *Reader {
	nr := *r
	nr.offsetSize = offsetSize
	nr.lengthSize = lengthSize
	return &nr
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Source returns the underlying byte source.
func (r *Reader) Source() io.ReaderAt {
	return r.r
}

// ReadBytes reads exactly n bytes from the current position.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadUint8 reads an unsigned 8-bit integer.
func (r *Reader) ReadUint8() (uint8, error) {
	buf, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint16 reads an unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(buf), nil
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(buf), nil
}

// ReadUint64 reads an unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(buf), nil
}

// ReadUintN reads an unsigned integer of n bytes.
func (r *Reader) ReadUintN(n int) (uint64, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return DecodeUint(buf, n, r.order), nil
}

// ReadOffset reads a file offset using the configured offset size.
func (r *Reader) ReadOffset() (uint64, error) {
	return r.ReadUintN(r.offsetSize)
}

// ReadLength reads a length value using the configured length size.
func (r *Reader) ReadLength() (uint64, error) {
	return r.ReadUintN(r.lengthSize)
}

// DecodeUint decodes a variable-width unsigned integer.
func DecodeUint(buf []byte, size int, order binary.ByteOrder) uint64 {
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(order.Uint16(buf))
	case 4:
		return uint64(order.Uint32(buf))
	case 8:
		return order.Uint64(buf)
	default:
		// Non-standard widths are little-endian.
		var val uint64
		for i := size - 1; i >= 0; i-- {
			val = (val << 8) | uint64(buf[i])
		}
		return val
	}
}

// IsUndefinedOffset reports whether an offset is the all-ones
// "undefined address" sentinel.
func (r *Reader) IsUndefinedOffset(offset uint64) bool {
	return isAllOnes(offset, r.offsetSize)
}

// IsUndefinedLength reports whether a length is the all-ones sentinel.
func (r *Reader) IsUndefinedLength(length uint64) bool {
	return isAllOnes(length, r.lengthSize)
}

func isAllOnes(v uint64, size int) bool {
	if size >= 8 {
		return v == ^uint64(0)
	}
	return v == (uint64(1)<<(size*8))-1
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int64) {
	r.pos += n
}

// Align advances the position to the next multiple of alignment.
func (r *Reader) Align(alignment int64) {
	if alignment <= 1 {
		return
	}
	if rem := r.pos % alignment; rem != 0 {
		r.pos += alignment - rem
	}
}

// Peek reads n bytes without advancing the position.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	return buf, nil
}

// OffsetSize returns the configured offset size in bytes.
func (r *Reader) OffsetSize() int {
	return r.offsetSize
}

// LengthSize returns the configured length size in bytes.
func (r *Reader) LengthSize() int {
	return r.lengthSize
}

// ByteOrder returns the configured byte order.
func (r *Reader) ByteOrder() binary.ByteOrder {
	return r.order
}
