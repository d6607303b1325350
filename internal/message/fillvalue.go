package message

import (
	"encoding/binary"
	"fmt"
)

// FillValue is a fill value message (type 0x0005). When no value is
// defined the reader substitutes zero bytes.
type FillValue struct {
	Version        uint8
	SpaceAllocTime uint8
	FillWriteTime  uint8
	IsDefined      bool
	Value          []byte
}

func (m *FillValue) Type() Type { return TypeFillValue }

func parseFillValue(data []byte) (*FillValue, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("fill value message too short")
	}

	fv := &FillValue{Version: data[0]}

	switch fv.Version {
	case 1, 2:
		if len(data) < 4 {
			return nil, fmt.Errorf("fill value message too short")
		}
		fv.SpaceAllocTime = data[1]
		fv.FillWriteTime = data[2]
		fv.IsDefined = data[3] != 0
		if fv.IsDefined && len(data) >= 8 {
			size := int(binary.LittleEndian.Uint32(data[4:8]))
			if 8+size > len(data) {
				return nil, fmt.Errorf("fill value data truncated")
			}
			fv.Value = append([]byte(nil), data[8:8+size]...)
		}

	case 3:
		flags := data[1]
		fv.SpaceAllocTime = flags & 0x03
		fv.FillWriteTime = (flags >> 2) & 0x03
		fv.IsDefined = (flags>>5)&0x01 != 0
		if fv.IsDefined {
			if len(data) < 6 {
				return nil, fmt.Errorf("fill value size truncated")
			}
			size := int(binary.LittleEndian.Uint32(data[2:6]))
			if 6+size > len(data) {
				return nil, fmt.Errorf("fill value data truncated")
			}
			fv.Value = append([]byte(nil), data[6:6+size]...)
		}

	default:
		return nil, fmt.Errorf("unsupported fill value version: %d", fv.Version)
	}

	return fv, nil
}
