// Package message parses the HDF5 header messages the indexer cares
// about: dataspace, datatype, fill value, data layout, filter pipeline,
// links, symbol tables and attributes. Everything else is carried as an
// opaque Unknown message.
package message

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// Type identifies a header message type.
type Type uint16

const (
	TypeNIL                      Type = 0x0000
	TypeDataspace                Type = 0x0001
	TypeLinkInfo                 Type = 0x0002
	TypeDatatype                 Type = 0x0003
	TypeFillValueOld             Type = 0x0004
	TypeFillValue                Type = 0x0005
	TypeLink                     Type = 0x0006
	TypeExternalDataFiles        Type = 0x0007
	TypeDataLayout               Type = 0x0008
	TypeGroupInfo                Type = 0x000A
	TypeFilterPipeline           Type = 0x000B
	TypeAttribute                Type = 0x000C
	TypeObjectHeaderContinuation Type = 0x0010
	TypeSymbolTable              Type = 0x0011
	TypeAttributeInfo            Type = 0x0015
)

// Message is implemented by all parsed header messages.
type Message interface {
	Type() Type
}

// Parse decodes one header message from its raw bytes.
func Parse(typ Type, data []byte, r *binary.Reader) (Message, error) {
	switch typ {
	case TypeDataspace:
		return parseDataspace(data, r)
	case TypeDatatype:
		return parseDatatype(data)
	case TypeDataLayout:
		return parseDataLayout(data, r)
	case TypeFilterPipeline:
		return parseFilterPipeline(data)
	case TypeFillValue:
		return parseFillValue(data)
	case TypeLink:
		return parseLink(data, r)
	case TypeLinkInfo:
		return parseLinkInfo(data, r)
	case TypeAttributeInfo:
		return parseAttributeInfo(data, r)
	case TypeSymbolTable:
		return parseSymbolTable(data, r)
	case TypeAttribute:
		return parseAttribute(data, r)
	case TypeObjectHeaderContinuation:
		return ParseContinuation(data, r)
	default:
		return &Unknown{typ: typ, data: data}, nil
	}
}

// Unknown wraps a message type the indexer does not interpret.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type   { return m.typ }
func (m *Unknown) Data() []byte { return m.data }

// Continuation points at a further block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

// ParseContinuation decodes an object header continuation message.
func ParseContinuation(data []byte, r *binary.Reader) (*Continuation, error) {
	osize := r.OffsetSize()
	if len(data) < 2*osize {
		return nil, fmt.Errorf("continuation message too short")
	}
	return &Continuation{
		Offset: binary.DecodeUint(data[0:osize], osize, r.ByteOrder()),
		Length: binary.DecodeUint(data[osize:2*osize], osize, r.ByteOrder()),
	}, nil
}
