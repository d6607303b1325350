package idx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// NumElements returns the element count of the attribute value.
func (a *Attr) NumElements() int {
	n := 1
	for _, d := range a.Dims {
		n *= int(d)
	}
	return n
}

// Float64s decodes a numeric attribute, widening to float64.
func (a *Attr) Float64s() ([]float64, error) {
	size := int(a.Dtype.Size)
	if size == 0 || len(a.Raw)%size != 0 {
		return nil, fmt.Errorf("%w: attribute %q value of %d bytes with element size %d",
			ErrUnsupported, a.Name, len(a.Raw), size)
	}

	order := orderOf(a.Dtype)
	out := make([]float64, len(a.Raw)/size)

	switch a.Dtype.Class {
	case ClassFloat:
		for i := range out {
			switch size {
			case 4:
				out[i] = float64(math.Float32frombits(order.Uint32(a.Raw[i*4:])))
			case 8:
				out[i] = math.Float64frombits(order.Uint64(a.Raw[i*8:]))
			default:
				return nil, fmt.Errorf("%w: float attribute of size %d", ErrUnsupported, size)
			}
		}

	case ClassInteger:
		for i := range out {
			var u uint64
			switch size {
			case 1:
				u = uint64(a.Raw[i])
			case 2:
				u = uint64(order.Uint16(a.Raw[i*2:]))
			case 4:
				u = uint64(order.Uint32(a.Raw[i*4:]))
			case 8:
				u = order.Uint64(a.Raw[i*8:])
			default:
				return nil, fmt.Errorf("%w: integer attribute of size %d", ErrUnsupported, size)
			}
			if a.Dtype.Signed {
				shift := uint(64 - size*8)
				out[i] = float64(int64(u<<shift) >> shift)
			} else {
				out[i] = float64(u)
			}
		}

	default:
		return nil, fmt.Errorf("%w: attribute %q is not numeric", ErrUnsupported, a.Name)
	}

	return out, nil
}

// Float64 decodes a single-valued numeric attribute.
func (a *Attr) Float64() (float64, error) {
	vs, err := a.Float64s()
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("%w: attribute %q holds %d values", ErrUnsupported, a.Name, len(vs))
	}
	return vs[0], nil
}

// String decodes a fixed-size string attribute, trimmed at the first
// null byte.
func (a *Attr) String() (string, error) {
	if a.Dtype.Class != ClassString {
		return "", fmt.Errorf("%w: attribute %q is not a string", ErrUnsupported, a.Name)
	}
	raw := a.Raw
	if j := bytes.IndexByte(raw, 0); j >= 0 {
		raw = raw[:j]
	}
	return string(raw), nil
}

func orderOf(dt Datatype) binary.ByteOrder {
	if dt.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
