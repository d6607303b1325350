package message

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// DataspaceType distinguishes scalar, simple and null dataspaces.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Dataspace is a dataspace message (type 0x0001): the shape of a
// variable or attribute.
type Dataspace struct {
	Version    uint8
	Rank       int
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64 // nil when absent (same as Dimensions)
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NumElements returns the total element count.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceNull:
		return 0
	case DataspaceScalar:
		return 1
	default:
		n := uint64(1)
		for _, d := range m.Dimensions {
			n *= d
		}
		return n
	}
}

// IsScalar reports whether this is a scalar dataspace.
func (m *Dataspace) IsScalar() bool {
	return m.SpaceType == DataspaceScalar
}

func parseDataspace(data []byte, r *binary.Reader) (*Dataspace, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("dataspace message too short")
	}

	ds := &Dataspace{
		Version: data[0],
		Rank:    int(data[1]),
	}

	flags := data[2]
	hasMaxDims := flags&0x01 != 0

	if ds.Version >= 2 {
		ds.SpaceType = DataspaceType(data[3])
	} else if ds.Rank == 0 {
		ds.SpaceType = DataspaceScalar
	} else {
		ds.SpaceType = DataspaceSimple
	}

	if ds.SpaceType != DataspaceSimple || ds.Rank == 0 {
		return ds, nil
	}

	offset := 4
	if ds.Version == 1 {
		offset = 8 // four reserved bytes
	}

	lsize := r.LengthSize()
	if lsize == 0 {
		lsize = 8
	}

	ds.Dimensions = make([]uint64, ds.Rank)
	for i := 0; i < ds.Rank; i++ {
		if offset+lsize > len(data) {
			return nil, fmt.Errorf("dataspace message truncated reading dimensions")
		}
		ds.Dimensions[i] = binary.DecodeUint(data[offset:], lsize, r.ByteOrder())
		offset += lsize
	}

	if hasMaxDims {
		ds.MaxDims = make([]uint64, ds.Rank)
		for i := 0; i < ds.Rank; i++ {
			if offset+lsize > len(data) {
				return nil, fmt.Errorf("dataspace message truncated reading max dimensions")
			}
			ds.MaxDims[i] = binary.DecodeUint(data[offset:], lsize, r.ByteOrder())
			offset += lsize
		}
	}

	return ds, nil
}
