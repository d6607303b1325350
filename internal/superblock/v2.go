package superblock

import (
	"fmt"
	"io"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

/*
Version 2/3 superblock layout (after the 8-byte signature):

	+0   version
	+1   size of offsets
	+2   size of lengths
	+3   file consistency flags
	+4   base address (O)
	     superblock extension address (O)
	     EOF address (O)
	     root group object header address (O)
	     lookup3 checksum over everything above (4)

Version 3 only adds extra consistency flags; the structure is the same.
*/
func readV2V3(r io.ReaderAt, offset int64, version uint8) (*Superblock, error) {
	header := make([]byte, 4)
	if _, err := r.ReadAt(header, offset+8); err != nil {
		return nil, err
	}

	sb := &Superblock{
		Version:    header[0],
		OffsetSize: header[1],
		LengthSize: header[2],
	}
	if !validFieldSize(sb.OffsetSize) || !validFieldSize(sb.LengthSize) {
		return nil, fmt.Errorf("%w: offset/length size %d/%d",
			ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}

	osize := int(sb.OffsetSize)
	pos := offset + 12
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
	if _, err = read(); err != nil { // superblock extension address
		return nil, err
	}
	if sb.EOFAddress, err = read(); err != nil {
		return nil, err
	}
	if sb.RootGroupAddress, err = read(); err != nil {
		return nil, err
	}

	// Verify the trailing lookup3 checksum.
	body := make([]byte, pos-offset)
	if _, err := r.ReadAt(body, offset); err != nil {
		return nil, err
	}
	stored := make([]byte, 4)
	if _, err := r.ReadAt(stored, pos); err != nil {
		return nil, err
	}
	want := uint32(stored[0]) | uint32(stored[1])<<8 | uint32(stored[2])<<16 | uint32(stored[3])<<24
	if got := binpkg.Lookup3(body); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (stored=0x%08x computed=0x%08x)",
			ErrInvalidSuperblock, want, got)
	}

	return sb, nil
}
