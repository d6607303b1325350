package hidefix

import (
	"context"
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/idx"
)

// MultiFile presents several containers as one virtual dataset
// concatenated along a named dimension, the way a time series split
// into one file per period is read as one dataset.
//
// The concat dimension is resolved through its coordinate variable, a
// 1D dataset of that name in every file. Variables whose leading
// extent equals the file's concat extent in every file are
// concatenated along axis 0, in the order the paths were given. All
// other variables must be identical across files and are served from
// the first.
type MultiFile struct {
	files []*File
	vars  map[string]*aggVar
}

type aggVar struct {
	dims     []uint64
	concat   bool
	segments []uint64 // per-file extent along the concat dimension
}

// OpenMulti opens and indexes all paths, concatenating along the
// dimension named by concatDim. The variable set is the intersection
// of the files' variables.
func OpenMulti(paths []string, concatDim string, opts ...Option) (*MultiFile, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths given")
	}

	m := &MultiFile{vars: map[string]*aggVar{}}
	for _, path := range paths {
		f, err := Open(path, opts...)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.files = append(m.files, f)
	}

	extents, err := m.concatExtents(concatDim)
	if err != nil {
		m.Close()
		return nil, err
	}

	for _, name := range m.files[0].Variables() {
		av, err := m.aggregate(name, extents)
		if err != nil {
			m.Close()
			return nil, err
		}
		if av != nil {
			m.vars[name] = av
		}
	}
	return m, nil
}

// concatExtents reads the per-file extent of the concat dimension from
// its coordinate variable.
func (m *MultiFile) concatExtents(concatDim string) ([]uint64, error) {
	extents := make([]uint64, len(m.files))
	for i, f := range m.files {
		coord := f.Dataset(concatDim)
		if coord == nil {
			return nil, fmt.Errorf("concat dimension %q: no such variable in %s", concatDim, f.Path())
		}
		if coord.Rank() != 1 {
			return nil, fmt.Errorf("concat dimension %q: coordinate variable is not 1D", concatDim)
		}
		extents[i] = coord.Dims[0]
	}
	return extents, nil
}

// aggregate works out how one variable spans the files. A variable
// missing from any file is dropped from the set.
func (m *MultiFile) aggregate(name string, extents []uint64) (*aggVar, error) {
	first := m.files[0].Dataset(name)

	av := &aggVar{dims: append([]uint64(nil), first.Dims...), concat: len(first.Dims) > 0}
	for i, f := range m.files {
		ds := f.Dataset(name)
		if ds == nil {
			return nil, nil
		}
		if len(ds.Dims) != len(first.Dims) || ds.Dtype != first.Dtype {
			return nil, fmt.Errorf("variable %q: incompatible shape across files", name)
		}
		for d := 1; d < len(ds.Dims); d++ {
			if ds.Dims[d] != first.Dims[d] {
				return nil, fmt.Errorf("variable %q: dimension %d differs across files", name, d)
			}
		}
		if len(ds.Dims) > 0 && ds.Dims[0] != extents[i] {
			av.concat = false
		}
	}

	if av.concat {
		av.segments = extents
		av.dims[0] = 0
		for _, s := range extents {
			av.dims[0] += s
		}
		return av, nil
	}

	// Static variable: extents must match everywhere.
	for _, f := range m.files[1:] {
		ds := f.Dataset(name)
		for d := range ds.Dims {
			if ds.Dims[d] != first.Dims[d] {
				return nil, fmt.Errorf("variable %q: dimension %d differs across files", name, d)
			}
		}
	}
	return av, nil
}

// Close closes all member files.
func (m *MultiFile) Close() error {
	var first error
	for _, f := range m.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Variables returns the aggregated variable names in lexical order.
func (m *MultiFile) Variables() []string {
	var names []string
	for _, name := range m.files[0].Variables() {
		if _, ok := m.vars[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Dims returns the aggregated extents of a variable, or nil.
func (m *MultiFile) Dims(name string) []uint64 {
	av, ok := m.vars[name]
	if !ok {
		return nil
	}
	return append([]uint64(nil), av.dims...)
}

// segmentPlan maps part of an aggregated selection onto one file.
type segmentPlan struct {
	file     *File
	local    idx.Hyperslab
	firstRow uint64 // selection index along dim 0 this segment starts at
}

func (m *MultiFile) plan(name string, slab idx.Hyperslab) (idx.Hyperslab, []segmentPlan, error) {
	av, ok := m.vars[name]
	if !ok {
		return slab, nil, fmt.Errorf("variable %q not found", name)
	}

	slab, err := slab.Normalize(av.dims)
	if err != nil {
		return slab, nil, err
	}

	if !av.concat {
		return slab, []segmentPlan{{file: m.files[0], local: slab}}, nil
	}

	var plans []segmentPlan
	var off uint64
	for i, seg := range av.segments {
		lo := slab.Start[0]
		if off > lo {
			lo = slab.Start[0] + ((off-slab.Start[0]+slab.Stride[0]-1)/slab.Stride[0])*slab.Stride[0]
		}
		hi := off + seg
		if lo < hi && slab.Count[0] > 0 {
			kFirst := (lo - slab.Start[0]) / slab.Stride[0]
			kLast := (hi - 1 - slab.Start[0]) / slab.Stride[0]
			if kLast >= slab.Count[0] {
				kLast = slab.Count[0] - 1
			}
			if kFirst <= kLast {
				local := idx.Hyperslab{
					Start:  append([]uint64(nil), slab.Start...),
					Count:  append([]uint64(nil), slab.Count...),
					Stride: append([]uint64(nil), slab.Stride...),
				}
				local.Start[0] = slab.Start[0] + kFirst*slab.Stride[0] - off
				local.Count[0] = kLast - kFirst + 1
				plans = append(plans, segmentPlan{
					file:     m.files[i],
					local:    local,
					firstRow: kFirst,
				})
			}
		}
		off += seg
	}
	return slab, plans, nil
}

// rowElems is the element count of one leading-dimension row of a
// normalized selection.
func rowElems(slab idx.Hyperslab) uint64 {
	n := uint64(1)
	for d := 1; d < len(slab.Count); d++ {
		n *= slab.Count[d]
	}
	return n
}

// ReadSlice reads one hyperslab of an aggregated variable as raw
// little-endian bytes.
func (m *MultiFile) ReadSlice(ctx context.Context, name string, slab idx.Hyperslab) ([]byte, error) {
	slab, plans, err := m.plan(name, slab)
	if err != nil {
		return nil, err
	}

	elemSize := uint64(m.files[0].Dataset(name).Dtype.Size)
	rowBytes := rowElems(slab) * elemSize

	out := make([]byte, slab.NumElements()*elemSize)
	for _, p := range plans {
		part, err := p.file.ReadSlice(ctx, name, p.local)
		if err != nil {
			return nil, err
		}
		copy(out[p.firstRow*rowBytes:], part)
	}
	return out, nil
}

// Float64s reads a hyperslab of an aggregated numeric variable widened
// to float64.
func (m *MultiFile) Float64s(ctx context.Context, name string, slab idx.Hyperslab) ([]float64, error) {
	slab, plans, err := m.plan(name, slab)
	if err != nil {
		return nil, err
	}

	rows := rowElems(slab)
	out := make([]float64, slab.NumElements())
	for _, p := range plans {
		part, err := p.file.Float64s(ctx, name, p.local)
		if err != nil {
			return nil, err
		}
		copy(out[p.firstRow*rows:], part)
	}
	return out, nil
}
