// Package filter decodes HDF5 filter pipelines. Filters are listed in
// a dataset's pipeline message in application order and undone in
// reverse when reading a chunk.
package filter

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// Filter decodes one pipeline stage.
type Filter interface {
	// ID returns the filter identifier.
	ID() uint16

	// Decode transforms encoded bytes back to their decoded form.
	Decode(input []byte) ([]byte, error)
}

// Registry maps filter IDs to constructors taking the filter's client
// data values.
var Registry = map[uint16]func([]uint32) Filter{
	message.FilterDeflate:    func(cd []uint32) Filter { return NewDeflate(cd) },
	message.FilterShuffle:    func(cd []uint32) Filter { return NewShuffle(cd) },
	message.FilterFletcher32: func(cd []uint32) Filter { return NewFletcher32() },
	message.FilterZstd:       func(cd []uint32) Filter { return NewZstd() },
	message.FilterLZ4:        func(cd []uint32) Filter { return NewLZ4() },
}

var filterNames = map[uint16]string{
	message.FilterDeflate:     "deflate",
	message.FilterShuffle:     "shuffle",
	message.FilterFletcher32:  "fletcher32",
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "n-bit",
	message.FilterScaleOffset: "scale-offset",
	message.FilterZstd:        "zstd",
	message.FilterLZ4:         "lz4",
}

// New builds a filter from its pipeline entry. Optional filters with
// no implementation come back nil and are skipped.
func New(info message.FilterInfo) (Filter, error) {
	constructor, ok := Registry[info.ID]
	if !ok {
		if info.IsOptional() {
			return nil, nil
		}
		if name, known := filterNames[info.ID]; known {
			return nil, fmt.Errorf("unsupported filter: %s (id %d)", name, info.ID)
		}
		return nil, fmt.Errorf("unsupported filter id: %d", info.ID)
	}
	return constructor(info.ClientData), nil
}
