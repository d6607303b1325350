package message

import (
	"encoding/binary"
	"fmt"
)

// DatatypeClass is the class field of a datatype message.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

// ByteOrder is the stored byte order of numeric values.
type ByteOrder uint8

const (
	OrderLE ByteOrder = 0
	OrderBE ByteOrder = 1
)

// StringPadding describes how fixed-size strings are padded.
type StringPadding uint8

const (
	PadNullTerm  StringPadding = 0
	PadNullPad   StringPadding = 1
	PadSpacePad  StringPadding = 2
)

// CharacterSet is the character encoding of a string type.
type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Datatype is a datatype message (type 0x0003). Fixed-point, float and
// string classes carry their full properties; variable-length types
// keep the base type so string-ness can be detected; compound, enum and
// array types are classified but not decomposed further than the index
// needs.
type Datatype struct {
	Version   uint8
	Class     DatatypeClass
	ClassBits uint32
	Size      uint32

	ByteOrder ByteOrder

	// Fixed point
	BitOffset    uint16
	BitPrecision uint16
	Signed       bool

	// String
	StringPadding StringPadding
	CharSet       CharacterSet

	// VarLen
	BaseType       *Datatype
	IsVarLenString bool
}

func (m *Datatype) Type() Type { return TypeDatatype }

// IsInteger reports whether this is a fixed-point type.
func (m *Datatype) IsInteger() bool { return m.Class == ClassFixedPoint }

// IsFloat reports whether this is a floating-point type.
func (m *Datatype) IsFloat() bool { return m.Class == ClassFloatPoint }

// IsString reports whether this is a string type, fixed or
// variable-length.
func (m *Datatype) IsString() bool {
	return m.Class == ClassString || (m.Class == ClassVarLen && m.IsVarLenString)
}

// IsVarLen reports whether this is a variable-length type.
func (m *Datatype) IsVarLen() bool { return m.Class == ClassVarLen }

// BigEndian reports whether values of this type are stored big-endian.
func (m *Datatype) BigEndian() bool { return m.ByteOrder == OrderBE }

func parseDatatype(data []byte) (*Datatype, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("datatype message too short")
	}

	dt := &Datatype{
		Version:   data[0] >> 4,
		Class:     DatatypeClass(data[0] & 0x0F),
		ClassBits: uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16,
		Size:      binary.LittleEndian.Uint32(data[4:8]),
	}

	props := data[8:]

	switch dt.Class {
	case ClassFixedPoint:
		dt.ByteOrder = ByteOrder(dt.ClassBits & 0x01)
		dt.Signed = dt.ClassBits&0x08 != 0
		if len(props) >= 4 {
			dt.BitOffset = binary.LittleEndian.Uint16(props[0:2])
			dt.BitPrecision = binary.LittleEndian.Uint16(props[2:4])
		}

	case ClassFloatPoint, ClassBitfield, ClassTime:
		dt.ByteOrder = ByteOrder(dt.ClassBits & 0x01)

	case ClassString:
		dt.StringPadding = StringPadding(dt.ClassBits & 0x0F)
		dt.CharSet = CharacterSet((dt.ClassBits >> 4) & 0x0F)

	case ClassVarLen:
		// Variable-length kind: 0 = sequence, 1 = string.
		dt.IsVarLenString = dt.ClassBits&0x0F == 1
		if len(props) >= 8 {
			base, err := parseDatatype(props)
			if err == nil {
				dt.BaseType = base
			}
		}
	}

	return dt, nil
}
