package message

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// Attribute is an attribute message (type 0x000C). The value is kept
// as raw bytes together with its datatype and dataspace so callers can
// interpret it lazily.
type Attribute struct {
	Version   uint8
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

func parseAttribute(data []byte, r *binpkg.Reader) (*Attribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("attribute message too short")
	}

	attr := &Attribute{Version: data[0]}
	if attr.Version < 1 || attr.Version > 3 {
		return nil, fmt.Errorf("unsupported attribute version: %d", attr.Version)
	}

	nameSize := int(binary.LittleEndian.Uint16(data[2:4]))
	dtSize := int(binary.LittleEndian.Uint16(data[4:6]))
	dsSize := int(binary.LittleEndian.Uint16(data[6:8]))

	offset := 8
	if attr.Version == 3 {
		// Name character set encoding byte.
		offset = 9
	}

	// Version 1 pads name, datatype and dataspace to 8-byte boundaries;
	// later versions pack them.
	padded := attr.Version == 1

	if offset+nameSize > len(data) {
		return nil, fmt.Errorf("attribute name truncated")
	}
	nameEnd := offset
	for nameEnd < offset+nameSize && data[nameEnd] != 0 {
		nameEnd++
	}
	attr.Name = string(data[offset:nameEnd])
	offset += nameSize
	if padded {
		offset = align8(offset)
	}

	if offset+dtSize > len(data) {
		return nil, fmt.Errorf("attribute datatype truncated")
	}
	dt, err := parseDatatype(data[offset : offset+dtSize])
	if err != nil {
		return nil, fmt.Errorf("attribute datatype: %w", err)
	}
	attr.Datatype = dt
	offset += dtSize
	if padded {
		offset = align8(offset)
	}

	if offset+dsSize > len(data) {
		return nil, fmt.Errorf("attribute dataspace truncated")
	}
	ds, err := parseDataspace(data[offset:offset+dsSize], r)
	if err != nil {
		return nil, fmt.Errorf("attribute dataspace: %w", err)
	}
	attr.Dataspace = ds
	offset += dsSize
	if padded {
		offset = align8(offset)
	}

	if offset < len(data) {
		attr.Data = append([]byte(nil), data[offset:]...)
	}

	return attr, nil
}

func align8(n int) int {
	if n%8 != 0 {
		n += 8 - n%8
	}
	return n
}
