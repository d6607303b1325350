package reader

import (
	"github.com/alexander-buerger-met-no/hidefix/idx"
)

// copyChunk copies the selected elements of one decoded chunk into the
// output buffer. The chunk holds the full chunk extent in row-major
// order; elements past the dataset extents in edge chunks are never
// selected. Different chunks write disjoint output regions, so
// concurrent calls are safe.
func copyChunk(out, chunk []byte, ds *idx.Dataset, origin []uint64, slab idx.Hyperslab) {
	rank := ds.Rank()
	elemSize := uint64(ds.Dtype.Size)

	if rank == 0 {
		copy(out, chunk[:elemSize])
		return
	}

	// Element strides of the output selection and the chunk buffer.
	outStride := make([]uint64, rank)
	chunkStride := make([]uint64, rank)
	outStride[rank-1] = 1
	chunkStride[rank-1] = 1
	for d := rank - 2; d >= 0; d-- {
		outStride[d] = outStride[d+1] * slab.Count[d+1]
		chunkStride[d] = chunkStride[d+1] * ds.ChunkDims[d+1]
	}

	// Selection index range intersecting this chunk along each
	// dimension, clamped to the dataset extents for edge chunks.
	kFirst := make([]uint64, rank)
	kLast := make([]uint64, rank)
	for d := 0; d < rank; d++ {
		shape := ds.ChunkDims[d]
		if origin[d]+shape > ds.Dims[d] {
			shape = ds.Dims[d] - origin[d]
		}

		lo := slab.Start[d]
		if origin[d] > lo {
			lo = slab.Start[d] + ((origin[d]-slab.Start[d]+slab.Stride[d]-1)/slab.Stride[d])*slab.Stride[d]
		}
		hi := origin[d] + shape // exclusive
		if lo >= hi {
			return // no selected element in this chunk
		}

		kFirst[d] = (lo - slab.Start[d]) / slab.Stride[d]
		kLast[d] = (hi - 1 - slab.Start[d]) / slab.Stride[d]
		if kLast[d] >= slab.Count[d] {
			kLast[d] = slab.Count[d] - 1
		}
		if kFirst[d] > kLast[d] {
			return
		}
	}

	var walk func(d int, outOff, chunkOff uint64)
	walk = func(d int, outOff, chunkOff uint64) {
		if d == rank-1 {
			n := kLast[d] - kFirst[d] + 1
			local := slab.Start[d] + kFirst[d]*slab.Stride[d] - origin[d]
			oo := (outOff + kFirst[d]) * elemSize
			co := (chunkOff + local) * elemSize

			if slab.Stride[d] == 1 {
				copy(out[oo:oo+n*elemSize], chunk[co:co+n*elemSize])
				return
			}
			for k := uint64(0); k < n; k++ {
				copy(out[oo:oo+elemSize], chunk[co:co+elemSize])
				oo += elemSize
				co += slab.Stride[d] * elemSize
			}
			return
		}

		for k := kFirst[d]; k <= kLast[d]; k++ {
			local := slab.Start[d] + k*slab.Stride[d] - origin[d]
			walk(d+1, outOff+k*outStride[d], chunkOff+local*chunkStride[d])
		}
	}
	walk(0, 0, 0)
}
