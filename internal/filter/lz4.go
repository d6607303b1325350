package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// LZ4 undoes the registered lz4 filter, id 32004.
//
// The filter frames raw lz4 blocks itself: a big-endian u64 total
// decompressed size, a big-endian u32 block size, then per block a
// big-endian u32 compressed size followed by the block bytes. A block
// whose compressed size equals its decompressed size is stored raw.
type LZ4 struct{}

func NewLZ4() *LZ4 { return &LZ4{} }

func (f *LZ4) ID() uint16 { return message.FilterLZ4 }

func (f *LZ4) Decode(input []byte) ([]byte, error) {
	if len(input) < 12 {
		return nil, fmt.Errorf("lz4: input too short for frame header")
	}

	totalSize := binary.BigEndian.Uint64(input[0:8])
	blockSize := uint64(binary.BigEndian.Uint32(input[8:12]))
	if blockSize == 0 {
		return nil, fmt.Errorf("lz4: zero block size")
	}

	output := make([]byte, totalSize)
	pos := uint64(12)
	var written uint64

	for written < totalSize {
		remaining := totalSize - written
		decodedSize := blockSize
		if remaining < blockSize {
			decodedSize = remaining
		}

		if pos+4 > uint64(len(input)) {
			return nil, fmt.Errorf("lz4: truncated block header")
		}
		compressedSize := uint64(binary.BigEndian.Uint32(input[pos:]))
		pos += 4

		if pos+compressedSize > uint64(len(input)) {
			return nil, fmt.Errorf("lz4: truncated block data")
		}
		block := input[pos : pos+compressedSize]
		pos += compressedSize

		if compressedSize == decodedSize {
			copy(output[written:], block)
		} else {
			n, err := lz4.UncompressBlock(block, output[written:written+decodedSize])
			if err != nil {
				return nil, fmt.Errorf("lz4: %w", err)
			}
			if uint64(n) != decodedSize {
				return nil, fmt.Errorf("lz4: block decoded to %d bytes, want %d", n, decodedSize)
			}
		}
		written += decodedSize
	}

	return output, nil
}
