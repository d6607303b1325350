package reader

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/alexander-buerger-met-no/hidefix/idx"
	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/heap"
)

// Scalar is the set of element types hyperslab results decode into.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 |
		~int64 | ~uint64 | ~float32 | ~float64
}

// Values reads a hyperslab and decodes it as a slice of T. The size of
// T must match the dataset element size.
func Values[T Scalar](ctx context.Context, r *Reader, slab idx.Hyperslab) ([]T, error) {
	var zero T
	if size := binary.Size(zero); size != int(r.ds.Dtype.Size) {
		return nil, fmt.Errorf("%w: element size %d does not match %T",
			idx.ErrUnsupported, r.ds.Dtype.Size, zero)
	}

	raw, err := r.ReadSlice(ctx, slab)
	if err != nil {
		return nil, err
	}

	out := make([]T, len(raw)/int(r.ds.Dtype.Size))
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Float64s reads a hyperslab and widens any integer or float dataset
// to float64 values.
func (r *Reader) Float64s(ctx context.Context, slab idx.Hyperslab) ([]float64, error) {
	dt := r.ds.Dtype
	switch dt.Class {
	case idx.ClassFloat:
		switch dt.Size {
		case 4:
			v, err := Values[float32](ctx, r, slab)
			if err != nil {
				return nil, err
			}
			out := make([]float64, len(v))
			for i, f := range v {
				out[i] = float64(f)
			}
			return out, nil
		case 8:
			return Values[float64](ctx, r, slab)
		}

	case idx.ClassInteger:
		raw, err := r.ReadSlice(ctx, slab)
		if err != nil {
			return nil, err
		}
		return intsToFloat64(raw, dt)
	}

	return nil, fmt.Errorf("%w: cannot widen %s of size %d to float64",
		idx.ErrUnsupported, dt.Class, dt.Size)
}

func intsToFloat64(raw []byte, dt idx.Datatype) ([]float64, error) {
	size := int(dt.Size)
	if size != 1 && size != 2 && size != 4 && size != 8 {
		return nil, fmt.Errorf("%w: integer size %d", idx.ErrUnsupported, size)
	}

	out := make([]float64, len(raw)/size)
	for i := range out {
		u := binpkg.DecodeUint(raw[i*size:], size, binary.LittleEndian)
		if dt.Signed {
			// Sign-extend from the stored width.
			shift := uint(64 - size*8)
			out[i] = float64(int64(u<<shift) >> shift)
		} else {
			out[i] = float64(u)
		}
	}
	return out, nil
}

// Strings reads a hyperslab of a string dataset. Fixed-size strings
// are trimmed at the first null byte; variable-length strings are
// resolved through the container's global heap.
func (r *Reader) Strings(ctx context.Context, slab idx.Hyperslab) ([]string, error) {
	dt := r.ds.Dtype

	switch dt.Class {
	case idx.ClassString:
		raw, err := r.ReadSlice(ctx, slab)
		if err != nil {
			return nil, err
		}
		size := int(dt.Size)
		out := make([]string, len(raw)/size)
		for i := range out {
			s := raw[i*size : (i+1)*size]
			if j := bytes.IndexByte(s, 0); j >= 0 {
				s = s[:j]
			}
			out[i] = strings.TrimRight(string(s), " ")
		}
		return out, nil

	case idx.ClassVarLenString:
		return r.varLenStrings(ctx, slab)

	default:
		return nil, fmt.Errorf("%w: %s dataset is not a string type", idx.ErrUnsupported, dt.Class)
	}
}

// varLenStrings resolves variable-length string descriptors: a 4-byte
// length followed by a global heap reference. The descriptor width
// fixes the container's offset size.
func (r *Reader) varLenStrings(ctx context.Context, slab idx.Hyperslab) ([]string, error) {
	descSize := int(r.ds.Dtype.Size)
	offsetSize := descSize - 8
	if offsetSize < 2 || offsetSize > 8 {
		return nil, fmt.Errorf("%w: variable-length descriptor size %d", idx.ErrUnsupported, descSize)
	}

	raw, err := r.ReadSlice(ctx, slab)
	if err != nil {
		return nil, err
	}

	br := binpkg.NewReader(r.src, binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: offsetSize,
		LengthSize: offsetSize,
	})

	collections := map[uint64]*heap.GlobalHeap{}
	out := make([]string, len(raw)/descSize)

	for i := range out {
		desc := raw[i*descSize : (i+1)*descSize]
		length := binary.LittleEndian.Uint32(desc[:4])
		if length == 0 {
			continue
		}

		id, err := heap.ParseGlobalHeapID(desc[4:], br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", idx.ErrMalformed, err)
		}

		gh, ok := collections[id.CollectionAddress]
		if !ok {
			gh, err = heap.ReadGlobalHeap(br, id.CollectionAddress)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", idx.ErrMalformed, err)
			}
			collections[id.CollectionAddress] = gh
		}

		obj, err := gh.GetObject(uint16(id.ObjectIndex))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", idx.ErrMalformed, err)
		}
		if uint32(len(obj)) > length {
			obj = obj[:length]
		}
		out[i] = string(obj)
	}
	return out, nil
}
