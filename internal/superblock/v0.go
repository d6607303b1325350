package superblock

import (
	"fmt"
	"io"
)

/*
Version 0/1 superblock layout (after the 8-byte signature):

	+0   version
	+1   free-space storage version
	+2   root group symbol table entry version
	+3   reserved
	+4   shared header message format version
	+5   size of offsets
	+6   size of lengths
	+7   reserved
	+8   group leaf node K (2)
	+10  group internal node K (2)
	+12  file consistency flags (4)
	[v1 only: +16 indexed storage K (2) + 2 reserved]
	then O-sized: base address, free-space address, EOF address,
	driver info address, and the root group symbol table entry
	(link name offset, object header address, cache type, scratch pad).
*/
func readV0V1(r io.ReaderAt, offset int64, version uint8) (*Superblock, error) {
	header := make([]byte, 16)
	if _, err := r.ReadAt(header, offset+8); err != nil {
		return nil, err
	}

	sb := &Superblock{
		Version:    header[0],
		OffsetSize: header[5],
		LengthSize: header[6],
	}
	if !validFieldSize(sb.OffsetSize) || !validFieldSize(sb.LengthSize) {
		return nil, fmt.Errorf("%w: offset/length size %d/%d",
			ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}

	osize := int(sb.OffsetSize)
	pos := offset + 24
	if version == 1 {
		// Indexed storage K (2 bytes) + 2 reserved.
		pos = offset + 28
	}

	addr := make([]byte, osize)

	read := func() (uint64, error) {
		if _, err := r.ReadAt(addr, pos); err != nil {
			return 0, err
		}
		pos += int64(osize)
		return decodeUint(addr, osize), nil
	}

	var err error
	if sb.BaseAddress, err = read(); err != nil {
		return nil, err
	}
	if _, err = read(); err != nil { // free-space info address
		return nil, err
	}
	if sb.EOFAddress, err = read(); err != nil {
		return nil, err
	}
	if _, err = read(); err != nil { // driver info block address
		return nil, err
	}

	// Root group symbol table entry: skip the link name offset, read
	// the object header address, then pull the cached B-tree and heap
	// addresses out of the scratch pad.
	pos += int64(osize)
	if sb.RootGroupAddress, err = read(); err != nil {
		return nil, err
	}

	// Cache type (4) + reserved (4).
	cache := make([]byte, 4)
	if _, err := r.ReadAt(cache, pos); err != nil {
		return nil, err
	}
	cacheType := uint32(cache[0]) | uint32(cache[1])<<8 | uint32(cache[2])<<16 | uint32(cache[3])<<24
	pos += 8

	if cacheType == 1 {
		if sb.RootGroupBTreeAddress, err = read(); err != nil {
			return nil, err
		}
		if sb.RootGroupLocalHeapAddress, err = read(); err != nil {
			return nil, err
		}
	}

	return sb, nil
}

func validFieldSize(n uint8) bool {
	return n == 2 || n == 4 || n == 8
}
