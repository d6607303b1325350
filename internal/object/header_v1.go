package object

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

/*
Version 1 object header:

	+0   version (1)
	+1   reserved
	+2   number of header messages (2)
	+4   object reference count (4)
	+8   header size in bytes (4)
	+12  4 bytes padding to an 8-byte boundary, then messages

Each message: type (2), data size (2), flags (1), 3 reserved, data,
padded to an 8-byte boundary.
*/
func readV1(r *binary.Reader, address uint64) (*Header, error) {
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("%w: expected version 1, got %d", ErrUnsupportedVersion, version)
	}

	r.Skip(1)

	numMessages, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	refCount, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	headerSize, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	hdr := &Header{
		Version:  1,
		Address:  address,
		RefCount: refCount,
		Messages: make([]message.Message, 0, numMessages),
	}

	r.Align(8)

	visited := map[uint64]struct{}{}
	if err := readV1Block(r, r.Pos(), int64(headerSize), hdr, visited); err != nil {
		return nil, err
	}
	return hdr, nil
}

func readV1Block(r *binary.Reader, start, length int64, hdr *Header, visited map[uint64]struct{}) error {
	br := r.At(start)
	end := start + length

	for br.Pos()+8 <= end {
		msgType, err := br.ReadUint16()
		if err != nil {
			return err
		}
		dataSize, err := br.ReadUint16()
		if err != nil {
			return err
		}
		// Flags byte and 3 reserved.
		br.Skip(4)

		data, err := br.ReadBytes(int(dataSize))
		if err != nil {
			return fmt.Errorf("%w: message data truncated at %d", ErrInvalidHeader, br.Pos())
		}
		br.Align(8)

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
			if err := readV1Block(r, int64(cont.Offset), int64(cont.Length), hdr, visited); err != nil {
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
