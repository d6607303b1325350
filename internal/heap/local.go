// Package heap reads HDF5 heap structures: local heaps holding group
// member names and global heap collections holding variable-length
// attribute values.
package heap

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

var localHeapSignature = []byte{'H', 'E', 'A', 'P'}

// LocalHeap is a local heap, the name store of a version 1 group.
type LocalHeap struct {
	DataSize    uint64
	DataAddress uint64
	data        []byte
}

// ReadLocalHeap reads the local heap at the given address.
func ReadLocalHeap(r *binary.Reader, address uint64) (*LocalHeap, error) {
	hr := r.At(int64(address))

	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading local heap signature: %w", err)
	}
	if string(sig) != string(localHeapSignature) {
		return nil, fmt.Errorf("invalid local heap signature: %q", sig)
	}

	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("unsupported local heap version: %d", version)
	}
	hr.Skip(3)

	dataSize, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	if _, err := hr.ReadLength(); err != nil { // free list offset
		return nil, err
	}
	dataAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}

	h := &LocalHeap{
		DataSize:    dataSize,
		DataAddress: dataAddr,
	}

	dr := r.At(int64(dataAddr))
	if h.data, err = dr.ReadBytes(int(dataSize)); err != nil {
		return nil, fmt.Errorf("reading local heap data: %w", err)
	}

	return h, nil
}

// GetString returns the null-terminated string at the given heap offset.
func (h *LocalHeap) GetString(offset uint64) string {
	if offset >= uint64(len(h.data)) {
		return ""
	}
	end := offset
	for end < uint64(len(h.data)) && h.data[end] != 0 {
		end++
	}
	return string(h.data[offset:end])
}
