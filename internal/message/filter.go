package message

import (
	"encoding/binary"
	"fmt"
)

// Filter IDs. The first block is reserved by the format; the rest are
// registered third-party filters seen in the wild on netCDF data.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6

	FilterLZ4  uint16 = 32004
	FilterZstd uint16 = 32015
)

// FilterInfo describes one filter in the pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

// IsOptional reports whether the filter may be skipped per chunk via
// the filter mask.
func (f *FilterInfo) IsOptional() bool {
	return f.Flags&0x01 != 0
}

// FilterPipeline is a filter pipeline message (type 0x000B). Filters
// are listed in application order; decoding runs them in reverse.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// HasFilter reports whether the pipeline contains the given filter ID.
func (m *FilterPipeline) HasFilter(id uint16) bool {
	for _, f := range m.Filters {
		if f.ID == id {
			return true
		}
	}
	return false
}

func parseFilterPipeline(data []byte) (*FilterPipeline, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("filter pipeline message too short")
	}

	fp := &FilterPipeline{
		Version: data[0],
		Filters: make([]FilterInfo, data[1]),
	}

	offset := 2
	if fp.Version == 1 {
		offset = 8 // six reserved bytes
	}

	for i := range fp.Filters {
		filter, consumed, err := parseFilterInfo(data[offset:], fp.Version)
		if err != nil {
			return nil, fmt.Errorf("parsing filter %d: %w", i, err)
		}
		fp.Filters[i] = filter
		offset += consumed
	}

	return fp, nil
}

func parseFilterInfo(data []byte, version uint8) (FilterInfo, int, error) {
	var f FilterInfo

	if len(data) < 6 {
		return f, 0, fmt.Errorf("filter info too short")
	}

	f.ID = binary.LittleEndian.Uint16(data[0:2])
	offset := 2

	// The name length field is present in version 1 and, in version 2,
	// only for filters outside the reserved range.
	var nameLen uint16
	if version == 1 || f.ID >= 256 {
		nameLen = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	}

	if offset+4 > len(data) {
		return f, 0, fmt.Errorf("filter info truncated")
	}
	f.Flags = binary.LittleEndian.Uint16(data[offset:])
	offset += 2
	numCD := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	if nameLen > 0 {
		if offset+int(nameLen) > len(data) {
			return f, 0, fmt.Errorf("filter name truncated")
		}
		nameEnd := offset
		for nameEnd < offset+int(nameLen) && data[nameEnd] != 0 {
			nameEnd++
		}
		f.Name = string(data[offset:nameEnd])
		offset += int(nameLen)

		// Version 1 pads names to an 8-byte boundary.
		if version == 1 && nameLen%8 != 0 {
			offset += 8 - int(nameLen%8)
		}
	}

	f.ClientData = make([]uint32, numCD)
	for j := 0; j < numCD; j++ {
		if offset+4 > len(data) {
			return f, 0, fmt.Errorf("filter client data truncated")
		}
		f.ClientData[j] = binary.LittleEndian.Uint32(data[offset:])
		offset += 4
	}

	// Version 1 pads an odd client data count with four bytes.
	if version == 1 && numCD%2 != 0 {
		offset += 4
	}

	return f, offset, nil
}
