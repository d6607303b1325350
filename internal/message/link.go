package message

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// LinkType is the kind of a link message link.
type LinkType uint8

const (
	LinkTypeHard     LinkType = 0
	LinkTypeSoft     LinkType = 1
	LinkTypeExternal LinkType = 64
)

// Link is a link message (type 0x0006), used by version 2 object
// headers to name group members.
type Link struct {
	Version       uint8
	LinkType      LinkType
	CreationOrder uint64
	Name          string
	Charset       uint8

	// Hard link
	ObjectAddress uint64

	// Soft link
	SoftTarget string

	// External link
	ExternalFile string
	ExternalPath string
}

func (m *Link) Type() Type { return TypeLink }

// IsHard reports whether this link carries an object header address.
func (m *Link) IsHard() bool { return m.LinkType == LinkTypeHard }

func parseLink(data []byte, r *binpkg.Reader) (*Link, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("link message too short")
	}

	link := &Link{Version: data[0]}
	if link.Version != 1 {
		return nil, fmt.Errorf("unsupported link message version: %d", link.Version)
	}

	flags := data[1]
	offset := 2
	nameLenSize := 1 << (flags & 0x03)

	if flags&0x08 != 0 {
		if offset >= len(data) {
			return nil, fmt.Errorf("link type truncated")
		}
		link.LinkType = LinkType(data[offset])
		offset++
	}

	if flags&0x04 != 0 {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("link creation order truncated")
		}
		link.CreationOrder = binary.LittleEndian.Uint64(data[offset:])
		offset += 8
	}

	if flags&0x10 != 0 {
		if offset >= len(data) {
			return nil, fmt.Errorf("link charset truncated")
		}
		link.Charset = data[offset]
		offset++
	}

	if offset+nameLenSize > len(data) {
		return nil, fmt.Errorf("link name length truncated")
	}
	nameLen := int(binpkg.DecodeUint(data[offset:], nameLenSize, binary.LittleEndian))
	offset += nameLenSize

	if offset+nameLen > len(data) {
		return nil, fmt.Errorf("link name truncated")
	}
	link.Name = string(data[offset : offset+nameLen])
	offset += nameLen

	switch link.LinkType {
	case LinkTypeHard:
		osize := r.OffsetSize()
		if offset+osize > len(data) {
			return nil, fmt.Errorf("hard link address truncated")
		}
		link.ObjectAddress = binpkg.DecodeUint(data[offset:], osize, r.ByteOrder())

	case LinkTypeSoft:
		if offset+2 > len(data) {
			return nil, fmt.Errorf("soft link length truncated")
		}
		n := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+n > len(data) {
			return nil, fmt.Errorf("soft link target truncated")
		}
		link.SoftTarget = string(data[offset : offset+n])

	case LinkTypeExternal:
		if offset+2 > len(data) {
			return nil, fmt.Errorf("external link length truncated")
		}
		n := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+n > len(data) {
			return nil, fmt.Errorf("external link value truncated")
		}
		// Flags byte, then two null-terminated strings: file and path.
		ext := data[offset : offset+n]
		if len(ext) < 2 {
			return nil, fmt.Errorf("external link data too short")
		}
		ext = ext[1:]
		fileEnd := 0
		for fileEnd < len(ext) && ext[fileEnd] != 0 {
			fileEnd++
		}
		link.ExternalFile = string(ext[:fileEnd])
		if fileEnd+1 < len(ext) {
			path := ext[fileEnd+1:]
			if len(path) > 0 && path[len(path)-1] == 0 {
				path = path[:len(path)-1]
			}
			link.ExternalPath = string(path)
		}
	}

	return link, nil
}
