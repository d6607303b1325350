// Package chunkdir lists the chunks of a chunked dataset. Each chunk
// index variant found in data layout messages has its own reader:
// version 1 B-trees, version 2 B-trees, fixed arrays, extensible
// arrays, implicit layout and the single-chunk case. All readers
// produce the same flat chunk list.
package chunkdir

import (
	"errors"
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

var (
	ErrMalformed   = errors.New("malformed chunk index")
	ErrUnsupported = errors.New("unsupported chunk index feature")
)

const undefinedAddress = ^uint64(0)

// Chunk is one stored chunk: its element coordinates within the
// dataset, its file address and stored byte size, and the per-chunk
// filter mask (bit i set means pipeline filter i was skipped).
type Chunk struct {
	Offset     []uint64
	Address    uint64
	Size       uint64
	FilterMask uint32
}

// Params carries what every index reader needs about the dataset.
type Params struct {
	// Dims is the dataset shape in elements.
	Dims []uint64

	// ChunkDims is the chunk shape in elements, same rank as Dims.
	ChunkDims []uint64

	// ElementSize is the byte size of one element.
	ElementSize uint32

	// Filtered is true when the dataset carries a filter pipeline.
	Filtered bool
}

// Read lists all stored chunks for the given chunked layout.
func Read(r *binary.Reader, layout *message.DataLayout, p Params) ([]Chunk, error) {
	if !layout.IsChunked() {
		return nil, fmt.Errorf("%w: layout is not chunked", ErrMalformed)
	}
	if len(p.ChunkDims) != len(p.Dims) {
		return nil, fmt.Errorf("%w: chunk rank %d does not match dataset rank %d",
			ErrMalformed, len(p.ChunkDims), len(p.Dims))
	}
	for _, d := range p.ChunkDims {
		if d == 0 {
			return nil, fmt.Errorf("%w: zero chunk dimension", ErrMalformed)
		}
	}

	if r.IsUndefinedOffset(layout.ChunkIndexAddr) {
		// Nothing allocated yet: every read resolves to fill values.
		return nil, nil
	}

	switch layout.ChunkIndexType {
	case message.ChunkIndexBTreeV1:
		return readBTreeV1(r, layout.ChunkIndexAddr, p)
	case message.ChunkIndexBTreeV2:
		return readBTreeV2(r, layout.ChunkIndexAddr, p)
	case message.ChunkIndexFixedArray:
		return readFixedArray(r, layout.ChunkIndexAddr, p)
	case message.ChunkIndexExtensibleArray:
		return readExtensibleArray(r, layout.ChunkIndexAddr, p)
	case message.ChunkIndexImplicit:
		return readImplicit(layout.ChunkIndexAddr, p)
	case message.ChunkIndexSingleChunk:
		return readSingleChunk(layout, p)
	default:
		return nil, fmt.Errorf("%w: chunk index type %s", ErrUnsupported, layout.ChunkIndexType)
	}
}

// chunkGrid returns the number of chunks along each dimension.
func chunkGrid(p Params) []uint64 {
	grid := make([]uint64, len(p.Dims))
	for d := range p.Dims {
		grid[d] = (p.Dims[d] + p.ChunkDims[d] - 1) / p.ChunkDims[d]
	}
	return grid
}

// linearToOffset converts a row-major chunk number into element
// coordinates of the chunk origin.
func linearToOffset(i uint64, grid, chunkDims []uint64) []uint64 {
	offset := make([]uint64, len(grid))
	for d := len(grid) - 1; d >= 0; d-- {
		offset[d] = (i % grid[d]) * chunkDims[d]
		i /= grid[d]
	}
	return offset
}

// chunkByteSize is the unfiltered byte size of one full chunk.
func chunkByteSize(p Params) uint64 {
	size := uint64(p.ElementSize)
	for _, d := range p.ChunkDims {
		size *= d
	}
	return size
}
