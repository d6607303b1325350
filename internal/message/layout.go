package message

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// LayoutClass is the storage layout class of a dataset.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType selects the chunk index structure used by a version 4
// chunked layout. Version 1 to 3 layouts always use the version 1
// B-tree and report ChunkIndexBTreeV1.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0
	ChunkIndexSingleChunk     ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

func (t ChunkIndexType) String() string {
	switch t {
	case ChunkIndexBTreeV1:
		return "btree-v1"
	case ChunkIndexSingleChunk:
		return "single-chunk"
	case ChunkIndexImplicit:
		return "implicit"
	case ChunkIndexFixedArray:
		return "fixed-array"
	case ChunkIndexExtensibleArray:
		return "extensible-array"
	case ChunkIndexBTreeV2:
		return "btree-v2"
	default:
		return fmt.Sprintf("chunk-index-%d", uint8(t))
	}
}

// DataLayout is a data layout message (type 0x0008).
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	// Compact: raw element bytes held in the object header.
	CompactData []byte

	// Contiguous: one run of bytes.
	Address uint64
	Size    uint64

	// Chunked. ChunkDims never includes the trailing element-size
	// entry that layout versions 1 to 3 store on disk.
	ChunkDims      []uint64
	ChunkIndexAddr uint64
	ChunkIndexType ChunkIndexType
	ElementSize    uint32

	// Version 4 single-chunk index with filters applied.
	SingleFilteredSize uint64
	SingleFilterMask   uint32

	// Version 4 fixed array index.
	PageBits uint8

	// Version 4 extensible array index.
	MaxBits       uint8
	IndexElements uint8
	MinPointers   uint8
	MinElements   uint8
	PageElements  uint16

	// Version 4 B-tree v2 index.
	NodeSize     uint32
	SplitPercent uint8
	MergePercent uint8
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

// IsCompact reports whether the data lives inside the object header.
func (m *DataLayout) IsCompact() bool { return m.Class == LayoutCompact }

// IsContiguous reports whether the data is one contiguous run.
func (m *DataLayout) IsContiguous() bool { return m.Class == LayoutContiguous }

// IsChunked reports whether the data is split into indexed chunks.
func (m *DataLayout) IsChunked() bool { return m.Class == LayoutChunked }

func parseDataLayout(data []byte, r *binpkg.Reader) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("data layout message too short")
	}

	layout := &DataLayout{Version: data[0]}

	switch layout.Version {
	case 1, 2:
		return parseDataLayoutV1V2(data, r, layout)
	case 3:
		return parseDataLayoutV3(data, r, layout)
	case 4:
		return parseDataLayoutV4(data, r, layout)
	default:
		return nil, fmt.Errorf("unsupported data layout version: %d", layout.Version)
	}
}

/*
Version 1/2 layout:

	+0  version
	+1  dimensionality (dataset rank + 1 for chunked)
	+2  class
	+3  reserved (5 bytes)
	then class-dependent: chunked stores the B-tree address first, then
	dimensionality u32 sizes where the last entry is the element size.
*/
func parseDataLayoutV1V2(data []byte, r *binpkg.Reader, layout *DataLayout) (*DataLayout, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data layout v%d message too short", layout.Version)
	}

	ndims := int(data[1])
	layout.Class = LayoutClass(data[2])
	offset := 8

	switch layout.Class {
	case LayoutCompact:
		dims, next, err := readDimsU32(data, offset, ndims)
		if err != nil {
			return nil, err
		}
		layout.ChunkDims = dims
		offset = next
		if offset+4 > len(data) {
			return nil, fmt.Errorf("compact layout truncated")
		}
		size := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if offset+int(size) > len(data) {
			return nil, fmt.Errorf("compact data truncated")
		}
		layout.CompactData = append([]byte(nil), data[offset:offset+int(size)]...)

	case LayoutContiguous:
		osize := r.OffsetSize()
		if offset+osize > len(data) {
			return nil, fmt.Errorf("contiguous layout truncated")
		}
		layout.Address = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
		offset += osize
		dims, _, err := readDimsU32(data, offset, ndims)
		if err != nil {
			return nil, err
		}
		layout.Size = 1
		for _, d := range dims {
			layout.Size *= d
		}

	case LayoutChunked:
		osize := r.OffsetSize()
		if offset+osize > len(data) {
			return nil, fmt.Errorf("chunked layout truncated")
		}
		layout.ChunkIndexAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
		offset += osize
		dims, _, err := readDimsU32(data, offset, ndims)
		if err != nil {
			return nil, err
		}
		if len(dims) < 1 {
			return nil, fmt.Errorf("chunked layout has no dimensions")
		}
		layout.ChunkDims = dims[:len(dims)-1]
		layout.ElementSize = uint32(dims[len(dims)-1])
		layout.ChunkIndexType = ChunkIndexBTreeV1

	default:
		// Unknown class, kept so the scanner can mark the dataset
		// unsupported without failing the file.
	}

	return layout, nil
}

/*
Version 3 layout:

	+0  version
	+1  class
	then class-dependent. Chunked stores the dimensionality (rank + 1),
	the B-tree address, and dimensionality u32 sizes with the element
	size last.
*/
func parseDataLayoutV3(data []byte, r *binpkg.Reader, layout *DataLayout) (*DataLayout, error) {
	layout.Class = LayoutClass(data[1])
	offset := 2

	switch layout.Class {
	case LayoutCompact:
		if offset+2 > len(data) {
			return nil, fmt.Errorf("compact layout truncated")
		}
		size := binary.LittleEndian.Uint16(data[offset:])
		offset += 2
		if offset+int(size) > len(data) {
			return nil, fmt.Errorf("compact data truncated")
		}
		layout.CompactData = append([]byte(nil), data[offset:offset+int(size)]...)

	case LayoutContiguous:
		osize, lsize := r.OffsetSize(), r.LengthSize()
		if offset+osize+lsize > len(data) {
			return nil, fmt.Errorf("contiguous layout truncated")
		}
		layout.Address = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
		offset += osize
		layout.Size = binpkg.DecodeUint(data[offset:], lsize, r.ByteOrder())

	case LayoutChunked:
		if offset+1 > len(data) {
			return nil, fmt.Errorf("chunked layout truncated")
		}
		ndims := int(data[offset])
		offset++
		osize := r.OffsetSize()
		if offset+osize > len(data) {
			return nil, fmt.Errorf("chunked layout truncated")
		}
		layout.ChunkIndexAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
		offset += osize
		dims, _, err := readDimsU32(data, offset, ndims)
		if err != nil {
			return nil, err
		}
		if len(dims) < 1 {
			return nil, fmt.Errorf("chunked layout has no dimensions")
		}
		layout.ChunkDims = dims[:len(dims)-1]
		layout.ElementSize = uint32(dims[len(dims)-1])
		layout.ChunkIndexType = ChunkIndexBTreeV1

	default:
		// Unknown class (virtual and anything newer), kept so the
		// scanner can mark the dataset unsupported without failing
		// the file.
	}

	return layout, nil
}

/*
Version 4 layout differs for the chunked class only:

	+0  version
	+1  class
	+2  flags
	+3  dimensionality (dataset rank, no element-size entry)
	+4  encoded size of each dimension
	then dimensionality dims, the chunk index type, index-specific
	parameters, and finally the index address.
*/
func parseDataLayoutV4(data []byte, r *binpkg.Reader, layout *DataLayout) (*DataLayout, error) {
	layout.Class = LayoutClass(data[1])
	if layout.Class != LayoutChunked {
		// Compact and contiguous are encoded exactly as in version 3.
		return parseDataLayoutV3(data, r, layout)
	}

	if len(data) < 5 {
		return nil, fmt.Errorf("chunked layout truncated")
	}
	flags := data[2]
	ndims := int(data[3])
	dimSize := int(data[4])
	if dimSize < 1 || dimSize > 8 {
		return nil, fmt.Errorf("invalid dimension encoding size: %d", dimSize)
	}
	offset := 5

	layout.ChunkDims = make([]uint64, ndims)
	for i := 0; i < ndims; i++ {
		if offset+dimSize > len(data) {
			return nil, fmt.Errorf("chunked layout truncated reading dimensions")
		}
		layout.ChunkDims[i] = binpkg.DecodeUint(data[offset:], dimSize, r.ByteOrder())
		offset += dimSize
	}

	if offset+1 > len(data) {
		return nil, fmt.Errorf("chunked layout truncated")
	}
	indexType := data[offset]
	offset++

	switch indexType {
	case 1:
		layout.ChunkIndexType = ChunkIndexSingleChunk
		if flags&0x02 != 0 {
			lsize := r.LengthSize()
			if offset+lsize+4 > len(data) {
				return nil, fmt.Errorf("single-chunk layout truncated")
			}
			layout.SingleFilteredSize = binpkg.DecodeUint(data[offset:], lsize, r.ByteOrder())
			offset += lsize
			layout.SingleFilterMask = binary.LittleEndian.Uint32(data[offset:])
			offset += 4
		}

	case 2:
		layout.ChunkIndexType = ChunkIndexImplicit

	case 3:
		layout.ChunkIndexType = ChunkIndexFixedArray
		if offset+1 > len(data) {
			return nil, fmt.Errorf("fixed-array layout truncated")
		}
		layout.PageBits = data[offset]
		offset++

	case 4:
		layout.ChunkIndexType = ChunkIndexExtensibleArray
		if offset+6 > len(data) {
			return nil, fmt.Errorf("extensible-array layout truncated")
		}
		layout.MaxBits = data[offset]
		layout.IndexElements = data[offset+1]
		layout.MinPointers = data[offset+2]
		layout.MinElements = data[offset+3]
		layout.PageElements = binary.LittleEndian.Uint16(data[offset+4:])
		offset += 6

	case 5:
		layout.ChunkIndexType = ChunkIndexBTreeV2
		if offset+6 > len(data) {
			return nil, fmt.Errorf("btree-v2 layout truncated")
		}
		layout.NodeSize = binary.LittleEndian.Uint32(data[offset:])
		layout.SplitPercent = data[offset+4]
		layout.MergePercent = data[offset+5]
		offset += 6

	default:
		// Unknown index type. The chunk directory reader rejects it
		// per dataset.
		layout.ChunkIndexType = ChunkIndexType(indexType)
		return layout, nil
	}

	osize := r.OffsetSize()
	if offset+osize > len(data) {
		return nil, fmt.Errorf("chunked layout truncated reading index address")
	}
	layout.ChunkIndexAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())

	return layout, nil
}

func readDimsU32(data []byte, offset, ndims int) ([]uint64, int, error) {
	dims := make([]uint64, ndims)
	for i := 0; i < ndims; i++ {
		if offset+4 > len(data) {
			return nil, 0, fmt.Errorf("layout message truncated reading dimensions")
		}
		dims[i] = uint64(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
	}
	return dims, offset, nil
}
