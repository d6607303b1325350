package message

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// LinkInfo is a link info message (type 0x0002). A defined fractal
// heap address means the group stores its links densely instead of as
// link messages.
type LinkInfo struct {
	Version           uint8
	Flags             uint8
	MaxCreationIndex  uint64
	FractalHeapAddr   uint64
	NameIndexAddr     uint64
	CreationOrderAddr uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

// UsesDenseStorage reports whether the group's links live in a fractal
// heap.
func (m *LinkInfo) UsesDenseStorage(r *binpkg.Reader) bool {
	return !r.IsUndefinedOffset(m.FractalHeapAddr)
}

func parseLinkInfo(data []byte, r *binpkg.Reader) (*LinkInfo, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("link info message too short")
	}

	li := &LinkInfo{Version: data[0], Flags: data[1]}
	if li.Version != 0 {
		return nil, fmt.Errorf("unsupported link info version: %d", li.Version)
	}

	offset := 2
	if li.Flags&0x01 != 0 {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("link info creation index truncated")
		}
		li.MaxCreationIndex = binary.LittleEndian.Uint64(data[offset:])
		offset += 8
	}

	osize := r.OffsetSize()
	if offset+2*osize > len(data) {
		return nil, fmt.Errorf("link info addresses truncated")
	}
	li.FractalHeapAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
	offset += osize
	li.NameIndexAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
	offset += osize

	if li.Flags&0x02 != 0 {
		if offset+osize > len(data) {
			return nil, fmt.Errorf("link info order index truncated")
		}
		li.CreationOrderAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
	}

	return li, nil
}

// AttributeInfo is an attribute info message (type 0x0015). A defined
// fractal heap address means the object's attributes are stored
// densely instead of as attribute messages.
type AttributeInfo struct {
	Version           uint8
	Flags             uint8
	MaxCreationIndex  uint16
	FractalHeapAddr   uint64
	NameIndexAddr     uint64
	CreationOrderAddr uint64
}

func (m *AttributeInfo) Type() Type { return TypeAttributeInfo }

// UsesDenseStorage reports whether the object's attributes live in a
// fractal heap.
func (m *AttributeInfo) UsesDenseStorage(r *binpkg.Reader) bool {
	return !r.IsUndefinedOffset(m.FractalHeapAddr)
}

func parseAttributeInfo(data []byte, r *binpkg.Reader) (*AttributeInfo, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("attribute info message too short")
	}

	ai := &AttributeInfo{Version: data[0], Flags: data[1]}
	if ai.Version != 0 {
		return nil, fmt.Errorf("unsupported attribute info version: %d", ai.Version)
	}

	offset := 2
	if ai.Flags&0x01 != 0 {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("attribute info creation index truncated")
		}
		ai.MaxCreationIndex = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	}

	osize := r.OffsetSize()
	if offset+2*osize > len(data) {
		return nil, fmt.Errorf("attribute info addresses truncated")
	}
	ai.FractalHeapAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
	offset += osize
	ai.NameIndexAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
	offset += osize

	if ai.Flags&0x02 != 0 {
		if offset+osize > len(data) {
			return nil, fmt.Errorf("attribute info order index truncated")
		}
		ai.CreationOrderAddr = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())
	}

	return ai, nil
}
