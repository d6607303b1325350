package chunkdir

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

var (
	eahdSignature = []byte{'E', 'A', 'H', 'D'}
	eaibSignature = []byte{'E', 'A', 'I', 'B'}
	eadbSignature = []byte{'E', 'A', 'D', 'B'}
)

/*
Extensible array header:

	+0   signature "EAHD"
	+4   version (0)
	+5   client ID (0 = non-filtered chunks, 1 = filtered chunks)
	+6   element size (1)
	+7   max element bits (1)
	+8   index block elements (1)
	+9   data block min elements (1)
	+10  super block min data blocks (1)
	+11  data block page max element bits (1)
	+12  num super blocks (L), super block size (L),
	     num data blocks (L), data block size (L),
	     max index set (L), num elements (L),
	     index block address (O), checksum (4)

The index block ("EAIB") stores the first elements inline, then
addresses of data blocks ("EADB"), then addresses of super blocks.
Elements are chunk numbers in row-major order.
*/
func readExtensibleArray(r *binary.Reader, address uint64, p Params) ([]Chunk, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading extensible array header: %w", err)
	}
	if string(sig) != string(eahdSignature) {
		return nil, fmt.Errorf("%w: bad extensible array signature %q at %d", ErrMalformed, sig, address)
	}

	version, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("%w: extensible array version %d", ErrUnsupported, version)
	}

	clientID, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if clientID > 1 {
		return nil, fmt.Errorf("%w: extensible array client ID %d", ErrMalformed, clientID)
	}
	filtered := clientID == 1

	elemSize, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	maxElementBits, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	idxBlockElems, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	dataBlockMinElems, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	nr.Skip(2) // super block min data blocks, page max element bits

	for i := 0; i < 4; i++ {
		// Super block and data block counts and sizes.
		if _, err := nr.ReadLength(); err != nil {
			return nil, err
		}
	}
	if _, err := nr.ReadLength(); err != nil { // max index set
		return nil, err
	}
	numElements, err := nr.ReadLength()
	if err != nil {
		return nil, err
	}
	idxBlockAddr, err := nr.ReadOffset()
	if err != nil {
		return nil, err
	}

	grid := chunkGrid(p)
	maxChunks := uint64(1)
	for _, g := range grid {
		maxChunks *= g
	}
	if numElements > maxChunks {
		return nil, fmt.Errorf("%w: extensible array declares %d elements for a %d-chunk grid",
			ErrMalformed, numElements, maxChunks)
	}

	return readExtensibleArrayIndexBlock(r, idxBlockAddr, extensibleArrayShape{
		elemSize:          int(elemSize),
		blockOffsetSize:   (int(maxElementBits) + 7) / 8,
		idxBlockElems:     int(idxBlockElems),
		dataBlockMinElems: int(dataBlockMinElems),
		numElements:       numElements,
		filtered:          filtered,
	}, grid, p)
}

type extensibleArrayShape struct {
	elemSize          int
	blockOffsetSize   int
	idxBlockElems     int
	dataBlockMinElems int
	numElements       uint64
	filtered          bool
}

func readExtensibleArrayIndexBlock(r *binary.Reader, address uint64, shape extensibleArrayShape, grid []uint64, p Params) ([]Chunk, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading extensible array index block: %w", err)
	}
	if string(sig) != string(eaibSignature) {
		return nil, fmt.Errorf("%w: bad index block signature %q at %d", ErrMalformed, sig, address)
	}

	nr.Skip(2) // version and client ID
	if _, err := nr.ReadOffset(); err != nil { // header address
		return nil, err
	}

	var chunks []Chunk
	next := uint64(0)

	// Inline elements first.
	inline := uint64(shape.idxBlockElems)
	if inline > shape.numElements {
		inline = shape.numElements
	}
	for ; next < inline; next++ {
		chunk, err := readArrayEntry(nr, shape.elemSize, shape.filtered, p)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", next, err)
		}
		if chunk != nil {
			chunk.Offset = linearToOffset(next, grid, p.ChunkDims)
			chunks = append(chunks, *chunk)
		}
	}

	// Data blocks pointed at directly from the index block. Each holds
	// a doubling element count starting at the data block minimum.
	blockElems := uint64(shape.dataBlockMinElems)
	for next < shape.numElements {
		dbAddr, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}

		count := blockElems
		if next+count > shape.numElements {
			count = shape.numElements - next
		}

		if dbAddr != 0 && dbAddr != undefinedAddress {
			dbChunks, err := readExtensibleArrayDataBlock(r, dbAddr, next, count, shape, grid, p)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, dbChunks...)
		}
		next += count
		blockElems *= 2
	}

	return chunks, nil
}

func readExtensibleArrayDataBlock(r *binary.Reader, address, firstElem, count uint64, shape extensibleArrayShape, grid []uint64, p Params) ([]Chunk, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading extensible array data block: %w", err)
	}
	if string(sig) != string(eadbSignature) {
		return nil, fmt.Errorf("%w: bad data block signature %q at %d", ErrMalformed, sig, address)
	}

	nr.Skip(2) // version and client ID
	if _, err := nr.ReadOffset(); err != nil { // header address
		return nil, err
	}
	// Block offset: the index of the first element, sized to the max
	// element count declared in the header.
	if _, err := nr.ReadUintN(shape.blockOffsetSize); err != nil {
		return nil, err
	}

	var chunks []Chunk
	for i := uint64(0); i < count; i++ {
		chunk, err := readArrayEntry(nr, shape.elemSize, shape.filtered, p)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", firstElem+i, err)
		}
		if chunk != nil {
			chunk.Offset = linearToOffset(firstElem+i, grid, p.ChunkDims)
			chunks = append(chunks, *chunk)
		}
	}

	return chunks, nil
}
