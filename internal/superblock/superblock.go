// Package superblock parses the HDF5 superblock, the entry point of
// every container: format version, offset/length field widths and the
// root group address all come from here.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// Signature is the HDF5 file signature: 0x89 H D F \r \n 0x1a \n.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// The signature may sit at byte 0 or at one of the doubling offsets
// when a user block precedes the HDF5 data.
var searchOffsets = []int64{0, 512, 1024, 2048}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

// Superblock holds the fields of the superblock the indexer needs.
type Superblock struct {
	Version    uint8
	OffsetSize uint8
	LengthSize uint8

	// BaseAddress is the file address of byte 0 (non-zero only for
	// embedded files).
	BaseAddress uint64

	// EOFAddress is the logical end-of-file address, used to detect
	// structures declared past the available bytes.
	EOFAddress uint64

	// RootGroupAddress is the object header address of the root group.
	RootGroupAddress uint64

	// V0/V1 root group scratch pad: cached B-tree and local heap
	// addresses of the root group's symbol table.
	RootGroupBTreeAddress     uint64
	RootGroupLocalHeapAddress uint64

	// FileOffset is where the signature was found.
	FileOffset int64
}

// Read locates and parses the superblock.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, 8)

	for _, offset := range searchOffsets {
		if _, err := r.ReadAt(sig, offset); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue
			}
			return nil, err
		}
		if !bytes.Equal(sig, Signature) {
			continue
		}

		ver := make([]byte, 1)
		if _, err := r.ReadAt(ver, offset+8); err != nil {
			return nil, err
		}

		var sb *Superblock
		var err error
		switch ver[0] {
		case 0, 1:
			sb, err = readV0V1(r, offset, ver[0])
		case 2, 3:
			sb, err = readV2V3(r, offset, ver[0])
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, ver[0])
		}
		if err != nil {
			return nil, err
		}
		sb.FileOffset = offset
		return sb, nil
	}

	return nil, ErrNotHDF5
}

// ReaderConfig returns the binary reader configuration this superblock
// mandates. HDF5 metadata is always little-endian.
func (sb *Superblock) ReaderConfig() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

func decodeUint(buf []byte, size int) uint64 {
	return binpkg.DecodeUint(buf, size, binary.LittleEndian)
}
