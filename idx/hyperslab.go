package idx

import "fmt"

// Hyperslab selects a strided block of elements: Count[d] elements
// along dimension d, starting at Start[d], Stride[d] apart. Nil fields
// default to start zero, stride one and the full remaining extent.
type Hyperslab struct {
	Start  []uint64
	Count  []uint64
	Stride []uint64
}

// All selects every element.
func All() Hyperslab { return Hyperslab{} }

// Slab selects count elements from start with stride one.
func Slab(start, count []uint64) Hyperslab {
	return Hyperslab{Start: start, Count: count}
}

// NumElements returns the number of selected elements. Only meaningful
// after Normalize.
func (s Hyperslab) NumElements() uint64 {
	n := uint64(1)
	for _, c := range s.Count {
		n *= c
	}
	return n
}

// Normalize fills defaulted fields against the given extents and
// validates the selection. Any element outside the extents makes the
// whole selection ErrOutOfBounds.
func (s Hyperslab) Normalize(dims []uint64) (Hyperslab, error) {
	rank := len(dims)

	if s.Start == nil {
		s.Start = make([]uint64, rank)
	}
	if s.Stride == nil {
		s.Stride = make([]uint64, rank)
		for d := range s.Stride {
			s.Stride[d] = 1
		}
	}
	if len(s.Start) != rank || len(s.Stride) != rank || (s.Count != nil && len(s.Count) != rank) {
		return s, fmt.Errorf("%w: selection rank against dataset rank %d", ErrOutOfBounds, rank)
	}

	for d := 0; d < rank; d++ {
		if s.Stride[d] == 0 {
			return s, fmt.Errorf("%w: zero stride in dimension %d", ErrOutOfBounds, d)
		}
	}

	if s.Count == nil {
		s.Count = make([]uint64, rank)
		for d := 0; d < rank; d++ {
			if s.Start[d] >= dims[d] {
				return s, fmt.Errorf("%w: start %d past extent %d in dimension %d",
					ErrOutOfBounds, s.Start[d], dims[d], d)
			}
			s.Count[d] = (dims[d] - s.Start[d] + s.Stride[d] - 1) / s.Stride[d]
		}
	}

	for d := 0; d < rank; d++ {
		if s.Count[d] == 0 {
			continue
		}
		end := s.Start[d] + (s.Count[d]-1)*s.Stride[d]
		if end >= dims[d] {
			return s, fmt.Errorf("%w: selection reaches %d in dimension %d of extent %d",
				ErrOutOfBounds, end, d, dims[d])
		}
	}

	return s, nil
}
