package chunkdir

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// readImplicit lists chunks of an implicit index: every chunk exists,
// laid out contiguously in row-major order with no filters applied.
func readImplicit(address uint64, p Params) ([]Chunk, error) {
	if p.Filtered {
		return nil, fmt.Errorf("%w: implicit index with filter pipeline", ErrMalformed)
	}

	grid := chunkGrid(p)
	total := uint64(1)
	for _, g := range grid {
		total *= g
	}

	size := chunkByteSize(p)
	chunks := make([]Chunk, total)
	for i := uint64(0); i < total; i++ {
		chunks[i] = Chunk{
			Offset:  linearToOffset(i, grid, p.ChunkDims),
			Address: address + i*size,
			Size:    size,
		}
	}
	return chunks, nil
}

// readSingleChunk handles the index type used when the chunk shape
// equals the dataset shape: one chunk at the index address.
func readSingleChunk(layout *message.DataLayout, p Params) ([]Chunk, error) {
	chunk := Chunk{
		Offset:  make([]uint64, len(p.Dims)),
		Address: layout.ChunkIndexAddr,
		Size:    chunkByteSize(p),
	}
	if layout.SingleFilteredSize > 0 {
		chunk.Size = layout.SingleFilteredSize
		chunk.FilterMask = layout.SingleFilterMask
	}
	return []Chunk{chunk}, nil
}
