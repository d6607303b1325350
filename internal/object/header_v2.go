package object

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// SignatureOCHK marks a version 2 continuation block.
var SignatureOCHK = []byte{'O', 'C', 'H', 'K'}

/*
Version 2 object header:

	+0   signature "OHDR"
	+4   version (2)
	+5   flags
	     bits 0-1  width of the chunk 0 size field (1 << value)
	     bit 2     attribute creation order tracked
	     bit 4     attribute storage phase change values stored
	     bit 5     timestamps stored
	then optional timestamps (4 x 4), optional phase change (2 + 2),
	chunk 0 size, messages, and a lookup3 checksum.

Each message: type (1), data size (2), flags (1), optional creation
order (2), data. No padding between messages.
*/
func readV2(r *binary.Reader, address uint64) (*Header, error) {
	r.Skip(4)

	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 2 {
		return nil, fmt.Errorf("%w: expected version 2, got %d", ErrUnsupportedVersion, version)
	}

	flags, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}

	hdr := &Header{
		Version: 2,
		Address: address,
		Flags:   flags,
	}

	if flags&0x20 != 0 {
		r.Skip(16) // access, modification, change and birth times
	}
	if flags&0x10 != 0 {
		r.Skip(4) // max compact and min dense attribute counts
	}

	sizeFieldSize := 1 << (flags & 0x03)
	chunk0Size, err := r.ReadUintN(sizeFieldSize)
	if err != nil {
		return nil, err
	}

	trackOrder := flags&0x04 != 0
	visited := map[uint64]struct{}{}

	// Chunk 0 size excludes the trailing checksum.
	if err := readV2Messages(r, r.Pos(), int64(chunk0Size), trackOrder, hdr, visited); err != nil {
		return nil, err
	}
	return hdr, nil
}

func readV2Messages(r *binary.Reader, start, length int64, trackOrder bool, hdr *Header, visited map[uint64]struct{}) error {
	br := r.At(start)
	end := start + length

	for br.Pos()+4 <= end {
		msgType, err := br.ReadUint8()
		if err != nil {
			return err
		}
		dataSize, err := br.ReadUint16()
		if err != nil {
			return err
		}
		br.Skip(1) // message flags
		if trackOrder {
			br.Skip(2)
		}

		data, err := br.ReadBytes(int(dataSize))
		if err != nil {
			return fmt.Errorf("%w: message data truncated at %d", ErrInvalidHeader, br.Pos())
		}

		if message.Type(msgType) == message.TypeNIL {
			continue
		}

		if message.Type(msgType) == message.TypeObjectHeaderContinuation {
			cont, err := message.ParseContinuation(data, br)
			if err != nil {
				return err
			}
			if _, ok := visited[cont.Offset]; ok {
				return fmt.Errorf("%w: continuation block cycle at %d", ErrInvalidHeader, cont.Offset)
			}
			visited[cont.Offset] = struct{}{}
			if err := readV2Continuation(r, cont.Offset, cont.Length, trackOrder, hdr, visited); err != nil {
				return err
			}
			continue
		}

		msg, err := message.Parse(message.Type(msgType), data, br)
		if err != nil {
			return fmt.Errorf("%w: message type %d in header at %d: %v", ErrInvalidHeader, msgType, hdr.Address, err)
		}
		hdr.Messages = append(hdr.Messages, msg)
	}

	return nil
}

func readV2Continuation(r *binary.Reader, offset, length uint64, trackOrder bool, hdr *Header, visited map[uint64]struct{}) error {
	cr := r.At(int64(offset))

	sig, err := cr.ReadBytes(4)
	if err != nil {
		return err
	}
	if string(sig) != string(SignatureOCHK) {
		return fmt.Errorf("%w: bad continuation signature at %d", ErrInvalidHeader, offset)
	}

	// Signature and trailing checksum are inside the block length.
	return readV2Messages(r, cr.Pos(), int64(length)-8, trackOrder, hdr, visited)
}
