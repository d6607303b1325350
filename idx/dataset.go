package idx

import (
	"fmt"
	"sort"
)

// TypeClass is the reduced element class the reader cares about.
type TypeClass uint8

const (
	ClassInteger TypeClass = iota
	ClassFloat
	ClassString
	ClassVarLenString
	ClassOther
)

func (c TypeClass) String() string {
	switch c {
	case ClassInteger:
		return "integer"
	case ClassFloat:
		return "float"
	case ClassString:
		return "string"
	case ClassVarLenString:
		return "vlen-string"
	default:
		return "other"
	}
}

// Datatype is the element type of a dataset, reduced to what reading
// and byte-order normalization need.
type Datatype struct {
	Class     TypeClass
	Size      uint32
	BigEndian bool
	Signed    bool
}

// LayoutKind is the storage layout of a dataset.
type LayoutKind uint8

const (
	LayoutChunked LayoutKind = iota
	LayoutContiguous
	LayoutCompact
)

// Filter is one entry of a dataset's filter pipeline, in write order.
type Filter struct {
	ID         uint16
	ClientData []uint32
}

// Chunk is one stored chunk: its element coordinates, file address,
// stored byte size and per-chunk filter mask.
type Chunk struct {
	Offset     []uint64
	Address    uint64
	Size       uint64
	FilterMask uint32
}

// Attr is a dataset or group attribute with its raw on-disk value.
type Attr struct {
	Name  string
	Dtype Datatype
	Dims  []uint64
	Raw   []byte
}

// Dataset is the complete chunk directory of one variable. It is
// immutable after the scan and safe for concurrent use.
type Dataset struct {
	Name      string
	Dims      []uint64
	ChunkDims []uint64
	Dtype     Datatype

	// FillValue holds Dtype.Size bytes when the container defines a
	// fill value, nil otherwise. Readers substitute zero bytes for nil.
	FillValue []byte

	// Filters is the pipeline in write order. Decoding applies it in
	// reverse.
	Filters []Filter

	Layout LayoutKind

	// CompactData holds the element bytes of a compact dataset.
	CompactData []byte

	// Unsupported names the feature that makes this dataset
	// non-readable, empty for readable datasets. Non-readable datasets
	// still appear in the index so callers can enumerate them.
	Unsupported string

	Attrs []Attr

	chunks  []Chunk
	byIndex map[uint64]int
	grid    []uint64
}

// NewDataset builds a dataset from externally produced metadata, for
// indexes that do not come from a container scan. The chunk list is
// validated the same way a scan validates it.
func NewDataset(d Dataset, chunks []Chunk) (*Dataset, error) {
	return newDataset(&d, chunks)
}

// newDataset validates the chunk list and freezes it in row-major
// order. Contiguous datasets arrive here as a single chunk covering
// the whole extent.
func newDataset(d *Dataset, chunks []Chunk) (*Dataset, error) {
	if len(d.ChunkDims) != len(d.Dims) {
		return nil, fmt.Errorf("%w: chunk rank %d against dataset rank %d",
			ErrMalformed, len(d.ChunkDims), len(d.Dims))
	}

	d.grid = make([]uint64, len(d.Dims))
	for i := range d.Dims {
		if d.ChunkDims[i] == 0 {
			return nil, fmt.Errorf("%w: zero chunk dimension", ErrMalformed)
		}
		d.grid[i] = (d.Dims[i] + d.ChunkDims[i] - 1) / d.ChunkDims[i]
	}

	d.byIndex = make(map[uint64]int, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if len(c.Offset) != len(d.Dims) {
			return nil, fmt.Errorf("%w: chunk rank %d against dataset rank %d",
				ErrMalformed, len(c.Offset), len(d.Dims))
		}
		li, err := d.gridIndexOf(c.Offset)
		if err != nil {
			return nil, err
		}
		if prev, dup := d.byIndex[li]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk at offset %v (addresses %d and %d)",
				ErrMalformed, c.Offset, chunks[prev].Address, c.Address)
		}
		d.byIndex[li] = i
	}

	sort.Slice(chunks, func(a, b int) bool {
		la, _ := d.gridIndexOf(chunks[a].Offset)
		lb, _ := d.gridIndexOf(chunks[b].Offset)
		return la < lb
	})
	// Rebuild the lookup after sorting moved the entries.
	for i := range chunks {
		li, _ := d.gridIndexOf(chunks[i].Offset)
		d.byIndex[li] = i
	}

	d.chunks = chunks
	return d, nil
}

// gridIndexOf maps a chunk origin to its row-major grid number.
func (d *Dataset) gridIndexOf(offset []uint64) (uint64, error) {
	var li uint64
	for dim := range offset {
		if offset[dim]%d.ChunkDims[dim] != 0 {
			return 0, fmt.Errorf("%w: chunk offset %v not aligned to chunk shape %v",
				ErrMalformed, offset, d.ChunkDims)
		}
		g := offset[dim] / d.ChunkDims[dim]
		if g >= d.grid[dim] && d.grid[dim] > 0 {
			return 0, fmt.Errorf("%w: chunk offset %v outside extents %v",
				ErrMalformed, offset, d.Dims)
		}
		li = li*d.grid[dim] + g
	}
	return li, nil
}

// Rank returns the number of dimensions. Scalars have rank zero.
func (d *Dataset) Rank() int { return len(d.Dims) }

// NumElements returns the total element count of the dataset.
func (d *Dataset) NumElements() uint64 {
	n := uint64(1)
	for _, dim := range d.Dims {
		n *= dim
	}
	return n
}

// ElementSize returns the byte size of one element.
func (d *Dataset) ElementSize() uint32 { return d.Dtype.Size }

// NumChunks returns the number of stored chunks.
func (d *Dataset) NumChunks() int { return len(d.chunks) }

// Chunks returns all stored chunks in row-major order of their grid
// position. Callers must not modify the returned slice.
func (d *Dataset) Chunks() []Chunk { return d.chunks }

// Readable reports whether read requests against this dataset can
// succeed.
func (d *Dataset) Readable() bool { return d.Unsupported == "" }

// ChunkAt returns the stored chunk containing the given element
// coordinates, or false when that chunk was never written.
func (d *Dataset) ChunkAt(coords []uint64) (*Chunk, bool) {
	if len(coords) != len(d.Dims) {
		return nil, false
	}
	var li uint64
	for dim := range coords {
		if coords[dim] >= d.Dims[dim] {
			return nil, false
		}
		li = li*d.grid[dim] + coords[dim]/d.ChunkDims[dim]
	}
	i, ok := d.byIndex[li]
	if !ok {
		return nil, false
	}
	return &d.chunks[i], true
}

// ChunkRef pairs a grid position a selection touches with the stored
// chunk at that position, nil when the chunk was never written.
type ChunkRef struct {
	// Origin is the chunk's first element coordinate.
	Origin []uint64
	Chunk  *Chunk
}

// ChunksIn lists, in row-major order, every chunk grid position the
// hyperslab touches. Selections outside the extents return
// ErrOutOfBounds.
func (d *Dataset) ChunksIn(slab Hyperslab) ([]ChunkRef, error) {
	slab, err := slab.Normalize(d.Dims)
	if err != nil {
		return nil, err
	}
	if slab.NumElements() == 0 {
		return nil, nil
	}

	rank := len(d.Dims)
	coords := make([][]uint64, rank)
	for dim := 0; dim < rank; dim++ {
		coords[dim] = gridCoords(slab.Start[dim], slab.Count[dim], slab.Stride[dim], d.ChunkDims[dim])
	}

	var refs []ChunkRef
	pos := make([]int, rank)
	for {
		origin := make([]uint64, rank)
		var li uint64
		for dim := 0; dim < rank; dim++ {
			g := coords[dim][pos[dim]]
			origin[dim] = g * d.ChunkDims[dim]
			li = li*d.grid[dim] + g
		}
		ref := ChunkRef{Origin: origin}
		if i, ok := d.byIndex[li]; ok {
			ref.Chunk = &d.chunks[i]
		}
		refs = append(refs, ref)

		dim := rank - 1
		for ; dim >= 0; dim-- {
			pos[dim]++
			if pos[dim] < len(coords[dim]) {
				break
			}
			pos[dim] = 0
		}
		if dim < 0 {
			break
		}
	}
	return refs, nil
}

// gridCoords lists the chunk grid coordinates a strided selection
// touches along one dimension. Strides wider than the chunk extent
// skip chunks entirely.
func gridCoords(start, count, stride, chunk uint64) []uint64 {
	if stride <= chunk {
		first := start / chunk
		last := (start + (count-1)*stride) / chunk
		out := make([]uint64, 0, last-first+1)
		for g := first; g <= last; g++ {
			out = append(out, g)
		}
		return out
	}

	out := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		g := (start + i*stride) / chunk
		if len(out) == 0 || out[len(out)-1] != g {
			out = append(out, g)
		}
	}
	return out
}

// ChunkShapeAt returns the effective shape of the chunk at the given
// origin, truncated at the dataset extents for edge chunks.
func (d *Dataset) ChunkShapeAt(origin []uint64) []uint64 {
	shape := make([]uint64, len(d.Dims))
	for dim := range d.Dims {
		shape[dim] = d.ChunkDims[dim]
		if origin[dim]+shape[dim] > d.Dims[dim] {
			shape[dim] = d.Dims[dim] - origin[dim]
		}
	}
	return shape
}

// Attr returns the named attribute, or nil.
func (d *Dataset) Attr(name string) *Attr {
	for i := range d.Attrs {
		if d.Attrs[i].Name == name {
			return &d.Attrs[i]
		}
	}
	return nil
}
