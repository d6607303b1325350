package heap

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

var globalHeapSignature = []byte{'G', 'C', 'O', 'L'}

// GlobalHeap is one global heap collection. Variable-length attribute
// values reference objects inside these collections.
type GlobalHeap struct {
	CollectionSize uint64
	objects        map[uint16][]byte
}

// GlobalHeapID references an object in a global heap collection, as
// stored inline in variable-length data fields.
type GlobalHeapID struct {
	CollectionAddress uint64
	ObjectIndex       uint32
}

// ReadGlobalHeap reads the global heap collection at the given address.
func ReadGlobalHeap(r *binary.Reader, address uint64) (*GlobalHeap, error) {
	hr := r.At(int64(address))

	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading global heap signature: %w", err)
	}
	if string(sig) != string(globalHeapSignature) {
		return nil, fmt.Errorf("invalid global heap signature: %q", sig)
	}

	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("unsupported global heap version: %d", version)
	}
	hr.Skip(3)

	collectionSize, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}

	h := &GlobalHeap{
		CollectionSize: collectionSize,
		objects:        make(map[uint16][]byte),
	}

	// The collection size covers the header as well.
	headerSize := uint64(8 + r.LengthSize())
	if collectionSize < headerSize {
		return nil, fmt.Errorf("global heap collection too small: %d", collectionSize)
	}
	remaining := collectionSize - headerSize

	for remaining >= uint64(8+r.LengthSize()) {
		index, err := hr.ReadUint16()
		if err != nil {
			return nil, err
		}
		if index == 0 {
			// Index 0 is the free-space object, the end of the list.
			break
		}

		if _, err := hr.ReadUint16(); err != nil { // reference count
			return nil, err
		}
		hr.Skip(4)

		objectSize, err := hr.ReadLength()
		if err != nil {
			return nil, err
		}
		data, err := hr.ReadBytes(int(objectSize))
		if err != nil {
			return nil, fmt.Errorf("global heap object %d truncated: %w", index, err)
		}
		h.objects[index] = data

		padding := (8 - objectSize%8) % 8
		hr.Skip(int64(padding))

		consumed := uint64(8+r.LengthSize()) + objectSize + padding
		if consumed > remaining {
			break
		}
		remaining -= consumed
	}

	return h, nil
}

// GetObject returns a copy of the object with the given index.
func (h *GlobalHeap) GetObject(index uint16) ([]byte, error) {
	data, ok := h.objects[index]
	if !ok {
		return nil, fmt.Errorf("object index %d not found in global heap", index)
	}
	return append([]byte(nil), data...), nil
}

// GetString returns the object with the given index as a string,
// stopping at the first null byte.
func (h *GlobalHeap) GetString(index uint16) (string, error) {
	data, err := h.GetObject(index)
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

// ParseGlobalHeapID decodes an inline global heap reference: the
// collection address followed by a 4-byte object index.
func ParseGlobalHeapID(data []byte, r *binary.Reader) (GlobalHeapID, error) {
	osize := r.OffsetSize()
	if len(data) < osize+4 {
		return GlobalHeapID{}, fmt.Errorf("global heap ID too short: need %d bytes, have %d", osize+4, len(data))
	}
	return GlobalHeapID{
		CollectionAddress: binary.DecodeUint(data, osize, r.ByteOrder()),
		ObjectIndex:       uint32(binary.DecodeUint(data[osize:], 4, r.ByteOrder())),
	}, nil
}
