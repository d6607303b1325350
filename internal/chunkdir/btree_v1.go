package chunkdir

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

var treeSignature = []byte{'T', 'R', 'E', 'E'}

/*
Version 1 chunk B-tree node:

	+0   signature "TREE"
	+4   node type (1 = raw data chunks)
	+5   node level (0 = leaf)
	+6   entries used (2)
	+8   left sibling (O), right sibling (O)
	then entries: key, child pointer, key, child pointer, ..., key.

Each key: chunk size (4), filter mask (4), then rank+1 8-byte element
offsets where the trailing entry is always zero.
*/
func readBTreeV1(r *binary.Reader, address uint64, p Params) ([]Chunk, error) {
	visited := map[uint64]struct{}{}
	return readBTreeV1Node(r, address, p, visited)
}

func readBTreeV1Node(r *binary.Reader, address uint64, p Params, visited map[uint64]struct{}) ([]Chunk, error) {
	if _, ok := visited[address]; ok {
		return nil, fmt.Errorf("%w: B-tree node cycle at %d", ErrMalformed, address)
	}
	visited[address] = struct{}{}

	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading B-tree signature: %w", err)
	}
	if string(sig) != string(treeSignature) {
		return nil, fmt.Errorf("%w: bad B-tree signature %q at %d", ErrMalformed, sig, address)
	}

	nodeType, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if nodeType != 1 {
		return nil, fmt.Errorf("%w: B-tree node type %d, want 1", ErrMalformed, nodeType)
	}

	nodeLevel, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	entriesUsed, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}

	// Left and right sibling addresses.
	if _, err := nr.ReadOffset(); err != nil {
		return nil, err
	}
	if _, err := nr.ReadOffset(); err != nil {
		return nil, err
	}

	ndims := len(p.Dims)
	var chunks []Chunk

	for i := uint16(0); i < entriesUsed; i++ {
		chunkSize, err := nr.ReadUint32()
		if err != nil {
			return nil, err
		}
		filterMask, err := nr.ReadUint32()
		if err != nil {
			return nil, err
		}

		// Keys carry rank+1 offsets; the last one is always zero.
		offset := make([]uint64, ndims)
		for d := 0; d <= ndims; d++ {
			v, err := nr.ReadUint64()
			if err != nil {
				return nil, err
			}
			if d < ndims {
				offset[d] = v
			}
		}

		childAddr, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}

		if nodeLevel > 0 {
			childChunks, err := readBTreeV1Node(r, childAddr, p, visited)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, childChunks...)
			continue
		}

		if childAddr == 0 || childAddr == undefinedAddress {
			continue
		}
		for d := 0; d < ndims; d++ {
			if offset[d]%p.ChunkDims[d] != 0 {
				return nil, fmt.Errorf("%w: chunk offset %d not aligned to chunk shape in dimension %d",
					ErrMalformed, offset[d], d)
			}
			if offset[d] >= p.Dims[d] {
				return nil, fmt.Errorf("%w: chunk offset %d beyond extent %d in dimension %d",
					ErrMalformed, offset[d], p.Dims[d], d)
			}
		}
		chunks = append(chunks, Chunk{
			Offset:     offset,
			Address:    childAddr,
			Size:       uint64(chunkSize),
			FilterMask: filterMask,
		})
	}

	return chunks, nil
}
