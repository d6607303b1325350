package chunkdir

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

var (
	fahdSignature = []byte{'F', 'A', 'H', 'D'}
	fadbSignature = []byte{'F', 'A', 'D', 'B'}
)

/*
Fixed array header:

	+0   signature "FAHD"
	+4   version (0)
	+5   client ID (0 = non-filtered chunks, 1 = filtered chunks)
	+6   entry size (1)
	+7   page bits (1)
	+8   max entries (L)
	     data block address (O)
	     checksum (4)

The data block ("FADB") holds one entry per chunk in row-major order.
Non-filtered entries are just the chunk address; filtered entries add
a stored size and the filter mask.
*/
func readFixedArray(r *binary.Reader, address uint64, p Params) ([]Chunk, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array header: %w", err)
	}
	if string(sig) != string(fahdSignature) {
		return nil, fmt.Errorf("%w: bad fixed array signature %q at %d", ErrMalformed, sig, address)
	}

	version, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("%w: fixed array version %d", ErrUnsupported, version)
	}

	clientID, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if clientID > 1 {
		return nil, fmt.Errorf("%w: fixed array client ID %d", ErrMalformed, clientID)
	}
	filtered := clientID == 1

	entrySize, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	pageBits, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}

	numEntries, err := nr.ReadLength()
	if err != nil {
		return nil, err
	}
	dataBlockAddr, err := nr.ReadOffset()
	if err != nil {
		return nil, err
	}

	grid := chunkGrid(p)
	maxChunks := uint64(1)
	for _, g := range grid {
		maxChunks *= g
	}
	if numEntries > maxChunks {
		return nil, fmt.Errorf("%w: fixed array declares %d entries for a %d-chunk grid",
			ErrMalformed, numEntries, maxChunks)
	}

	return readFixedArrayDataBlock(r, dataBlockAddr, int(numEntries), int(entrySize), int(pageBits), filtered, grid, p)
}

func readFixedArrayDataBlock(r *binary.Reader, address uint64, numEntries, entrySize, pageBits int, filtered bool, grid []uint64, p Params) ([]Chunk, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array data block: %w", err)
	}
	if string(sig) != string(fadbSignature) {
		return nil, fmt.Errorf("%w: bad data block signature %q at %d", ErrMalformed, sig, address)
	}

	nr.Skip(2) // version and client ID
	if _, err := nr.ReadOffset(); err != nil { // header address
		return nil, err
	}

	// Large arrays are paged; each page gets its own checksum and the
	// block starts with a page bitmap. Plain blocks are the common
	// case for netCDF-sized variables.
	if pageBits > 0 && numEntries > 1<<pageBits {
		return nil, fmt.Errorf("%w: paged fixed array data blocks", ErrUnsupported)
	}

	var chunks []Chunk
	for i := 0; i < numEntries; i++ {
		chunk, err := readArrayEntry(nr, entrySize, filtered, p)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if chunk != nil {
			chunk.Offset = linearToOffset(uint64(i), grid, p.ChunkDims)
			chunks = append(chunks, *chunk)
		}
	}

	return chunks, nil
}

// readArrayEntry decodes one fixed or extensible array element. The
// chunk offset is filled in by the caller from the element's position.
func readArrayEntry(nr *binary.Reader, entrySize int, filtered bool, p Params) (*Chunk, error) {
	if !filtered {
		addr, err := nr.ReadUintN(entrySize)
		if err != nil {
			return nil, err
		}
		if addr == 0 || isAllOnesN(addr, entrySize) {
			return nil, nil
		}
		return &Chunk{Address: addr, Size: chunkByteSize(p)}, nil
	}

	addr, err := nr.ReadOffset()
	if err != nil {
		return nil, err
	}
	sizeBytes := entrySize - nr.OffsetSize() - 4
	if sizeBytes < 1 || sizeBytes > 8 {
		return nil, fmt.Errorf("%w: filtered entry size %d", ErrMalformed, entrySize)
	}
	size, err := nr.ReadUintN(sizeBytes)
	if err != nil {
		return nil, err
	}
	mask, err := nr.ReadUint32()
	if err != nil {
		return nil, err
	}

	if addr == 0 || addr == undefinedAddress {
		return nil, nil
	}
	return &Chunk{Address: addr, Size: size, FilterMask: mask}, nil
}

func isAllOnesN(v uint64, size int) bool {
	if size >= 8 {
		return v == ^uint64(0)
	}
	return v == (uint64(1)<<(size*8))-1
}
