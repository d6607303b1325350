package chunkdir

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

var (
	bthdSignature = []byte{'B', 'T', 'H', 'D'}
	btlfSignature = []byte{'B', 'T', 'L', 'F'}
	btinSignature = []byte{'B', 'T', 'I', 'N'}
)

// Version 2 B-tree record types for chunked storage.
const (
	btreeV2TypeChunk         uint8 = 10
	btreeV2TypeChunkFiltered uint8 = 11
)

type btreeV2Header struct {
	Type           uint8
	NodeSize       uint32
	RecordSize     uint16
	Depth          uint16
	RootAddr       uint64
	NumRootRecords uint16
	TotalRecords   uint64
}

func readBTreeV2(r *binary.Reader, address uint64, p Params) ([]Chunk, error) {
	hdr, err := readBTreeV2Header(r, address)
	if err != nil {
		return nil, err
	}
	if hdr.Type != btreeV2TypeChunk && hdr.Type != btreeV2TypeChunkFiltered {
		return nil, fmt.Errorf("%w: B-tree v2 record type %d", ErrMalformed, hdr.Type)
	}
	if hdr.TotalRecords == 0 {
		return nil, nil
	}

	visited := map[uint64]struct{}{}
	return readBTreeV2Node(r, hdr, hdr.RootAddr, int(hdr.NumRootRecords), int(hdr.Depth), p, visited)
}

func readBTreeV2Header(r *binary.Reader, address uint64) (*btreeV2Header, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading B-tree v2 header: %w", err)
	}
	if string(sig) != string(bthdSignature) {
		return nil, fmt.Errorf("%w: bad B-tree v2 signature %q at %d", ErrMalformed, sig, address)
	}

	version, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("%w: B-tree v2 version %d", ErrUnsupported, version)
	}

	hdr := &btreeV2Header{}
	if hdr.Type, err = nr.ReadUint8(); err != nil {
		return nil, err
	}
	if hdr.NodeSize, err = nr.ReadUint32(); err != nil {
		return nil, err
	}
	if hdr.RecordSize, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	if hdr.Depth, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	nr.Skip(2) // split and merge percent
	if hdr.RootAddr, err = nr.ReadOffset(); err != nil {
		return nil, err
	}
	if hdr.NumRootRecords, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	if hdr.TotalRecords, err = nr.ReadLength(); err != nil {
		return nil, err
	}

	return hdr, nil
}

func readBTreeV2Node(r *binary.Reader, hdr *btreeV2Header, address uint64, numRecords, depth int, p Params, visited map[uint64]struct{}) ([]Chunk, error) {
	if _, ok := visited[address]; ok {
		return nil, fmt.Errorf("%w: B-tree v2 node cycle at %d", ErrMalformed, address)
	}
	visited[address] = struct{}{}

	if depth == 0 {
		return readBTreeV2Leaf(r, hdr, address, numRecords, p)
	}

	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(sig) != string(btinSignature) {
		return nil, fmt.Errorf("%w: bad internal node signature %q at %d", ErrMalformed, sig, address)
	}
	nr.Skip(2) // version and type

	// Internal nodes hold real records, not just separators: a block
	// of numRecords records followed by numRecords+1 child pointers.
	var chunks []Chunk
	recordEnd := nr.Pos() + int64(numRecords)*int64(hdr.RecordSize)
	for i := 0; i < numRecords; i++ {
		chunk, err := readBTreeV2Record(nr.At(nr.Pos()+int64(i)*int64(hdr.RecordSize)), hdr, p)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}

	cr := nr.At(recordEnd)
	for i := 0; i <= numRecords; i++ {
		childAddr, err := cr.ReadOffset()
		if err != nil {
			return nil, err
		}
		childNumRecords, err := cr.ReadUint16()
		if err != nil {
			return nil, err
		}
		if depth > 1 {
			// Total record count for the subtree.
			if _, err := cr.ReadUint16(); err != nil {
				return nil, err
			}
		}

		childChunks, err := readBTreeV2Node(r, hdr, childAddr, int(childNumRecords), depth-1, p, visited)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, childChunks...)
	}

	return chunks, nil
}

func readBTreeV2Leaf(r *binary.Reader, hdr *btreeV2Header, address uint64, numRecords int, p Params) ([]Chunk, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(sig) != string(btlfSignature) {
		return nil, fmt.Errorf("%w: bad leaf node signature %q at %d", ErrMalformed, sig, address)
	}
	nr.Skip(2) // version and type

	chunks := make([]Chunk, 0, numRecords)
	for i := 0; i < numRecords; i++ {
		chunk, err := readBTreeV2Record(nr, hdr, p)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}

	return chunks, nil
}

/*
Type 10 record: scaled chunk offsets (8 bytes each), then the chunk
address. Type 11 record: chunk address, stored size (width derived
from the record size), filter mask (4), then scaled offsets.
*/
func readBTreeV2Record(nr *binary.Reader, hdr *btreeV2Header, p Params) (*Chunk, error) {
	ndims := len(p.Dims)
	filtered := hdr.Type == btreeV2TypeChunkFiltered

	var (
		addr uint64
		size uint64
		mask uint32
		err  error
	)

	scaled := make([]uint64, ndims)

	if filtered {
		if addr, err = nr.ReadOffset(); err != nil {
			return nil, err
		}
		sizeBytes := int(hdr.RecordSize) - nr.OffsetSize() - 4 - ndims*8
		if sizeBytes < 1 || sizeBytes > 8 {
			return nil, fmt.Errorf("%w: filtered record size %d does not fit rank %d",
				ErrMalformed, hdr.RecordSize, ndims)
		}
		if size, err = nr.ReadUintN(sizeBytes); err != nil {
			return nil, err
		}
		if mask, err = nr.ReadUint32(); err != nil {
			return nil, err
		}
		for d := 0; d < ndims; d++ {
			if scaled[d], err = nr.ReadUint64(); err != nil {
				return nil, err
			}
		}
	} else {
		for d := 0; d < ndims; d++ {
			if scaled[d], err = nr.ReadUint64(); err != nil {
				return nil, err
			}
		}
		if addr, err = nr.ReadOffset(); err != nil {
			return nil, err
		}
		size = chunkByteSize(p)
	}

	if addr == 0 || addr == undefinedAddress {
		return nil, nil
	}

	// Offsets are stored in chunk units.
	offset := make([]uint64, ndims)
	for d := 0; d < ndims; d++ {
		offset[d] = scaled[d] * p.ChunkDims[d]
		if offset[d] >= p.Dims[d] {
			return nil, fmt.Errorf("%w: chunk offset %d beyond extent %d in dimension %d",
				ErrMalformed, offset[d], p.Dims[d], d)
		}
	}

	return &Chunk{
		Offset:     offset,
		Address:    addr,
		Size:       size,
		FilterMask: mask,
	}, nil
}
