package reader

import (
	"bytes"
	"context"
	stdbin "encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-buerger-met-no/hidefix/idx"
)

// sourceFile assembles chunk bytes at chosen addresses.
type sourceFile struct {
	buf []byte
}

func (f *sourceFile) writeAt(offset int, data []byte) {
	if need := offset + len(data); need > len(f.buf) {
		f.buf = append(f.buf, make([]byte, need-len(f.buf))...)
	}
	copy(f.buf[offset:], data)
}

func (f *sourceFile) reader() *bytes.Reader {
	return bytes.NewReader(f.buf)
}

func i32le(vs ...int32) []byte {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		stdbin.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func i32be(vs ...int32) []byte {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		stdbin.BigEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func int32Dataset(t *testing.T, dims, chunkDims []uint64, chunks []idx.Chunk, filters []idx.Filter) *idx.Dataset {
	t.Helper()
	d, err := idx.NewDataset(idx.Dataset{
		Name:      "v",
		Dims:      dims,
		ChunkDims: chunkDims,
		Dtype:     idx.Datatype{Class: idx.ClassInteger, Size: 4, Signed: true},
		Filters:   filters,
	}, chunks)
	require.NoError(t, err)
	return d
}

func TestReadChunked2D(t *testing.T) {
	// 4 x 6 dataset in 2 x 3 chunks. Chunk values encode their
	// position: row*10 + column.
	dims := []uint64{4, 6}
	chunkDims := []uint64{2, 3}

	f := &sourceFile{}
	var chunks []idx.Chunk
	addr := uint64(0x100)
	for cr := uint64(0); cr < 4; cr += 2 {
		for cc := uint64(0); cc < 6; cc += 3 {
			var vals []int32
			for r := cr; r < cr+2; r++ {
				for c := cc; c < cc+3; c++ {
					vals = append(vals, int32(r*10+c))
				}
			}
			data := i32le(vals...)
			f.writeAt(int(addr), data)
			chunks = append(chunks, idx.Chunk{
				Offset:  []uint64{cr, cc},
				Address: addr,
				Size:    uint64(len(data)),
			})
			addr += 0x100
		}
	}

	d := int32Dataset(t, dims, chunkDims, chunks, nil)
	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.All())
	require.NoError(t, err)

	want := make([]int32, 0, 24)
	for row := int32(0); row < 4; row++ {
		for col := int32(0); col < 6; col++ {
			want = append(want, row*10+col)
		}
	}
	assert.Equal(t, want, vals)
}

func TestReadSliceCrossesChunks(t *testing.T) {
	dims := []uint64{4, 6}
	chunkDims := []uint64{2, 3}

	f := &sourceFile{}
	var chunks []idx.Chunk
	addr := uint64(0x100)
	for cr := uint64(0); cr < 4; cr += 2 {
		for cc := uint64(0); cc < 6; cc += 3 {
			var vals []int32
			for r := cr; r < cr+2; r++ {
				for c := cc; c < cc+3; c++ {
					vals = append(vals, int32(r*10+c))
				}
			}
			data := i32le(vals...)
			f.writeAt(int(addr), data)
			chunks = append(chunks, idx.Chunk{Offset: []uint64{cr, cc}, Address: addr, Size: uint64(len(data))})
			addr += 0x100
		}
	}

	d := int32Dataset(t, dims, chunkDims, chunks, nil)
	r, err := New(f.reader(), d)
	require.NoError(t, err)

	// Rows 1-2, columns 2-4: spans all four chunk columns and both
	// chunk rows.
	vals, err := Values[int32](context.Background(), r,
		idx.Slab([]uint64{1, 2}, []uint64{2, 3}))
	require.NoError(t, err)

	assert.Equal(t, []int32{12, 13, 14, 22, 23, 24}, vals)
}

func TestReadSliceStride(t *testing.T) {
	f := &sourceFile{}
	data := i32le(0, 1, 2, 3, 4, 5, 6, 7)
	f.writeAt(0x100, data)

	d := int32Dataset(t, []uint64{8}, []uint64{8},
		[]idx.Chunk{{Offset: []uint64{0}, Address: 0x100, Size: 32}}, nil)
	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.Hyperslab{
		Start:  []uint64{1},
		Count:  []uint64{3},
		Stride: []uint64{2},
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 3, 5}, vals)
}

func TestReadEdgeChunks(t *testing.T) {
	// 3 elements in chunks of 2: the second chunk reaches past the
	// extent and its trailing element must never leak into results.
	f := &sourceFile{}
	f.writeAt(0x100, i32le(10, 20))
	f.writeAt(0x200, i32le(30, 9999))

	d := int32Dataset(t, []uint64{3}, []uint64{2}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 8},
		{Offset: []uint64{2}, Address: 0x200, Size: 8},
	}, nil)
	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.All())
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30}, vals)
}

func TestReadMissingChunkFillValue(t *testing.T) {
	f := &sourceFile{}
	f.writeAt(0x100, i32le(1, 2))

	d, err := idx.NewDataset(idx.Dataset{
		Name:      "v",
		Dims:      []uint64{4},
		ChunkDims: []uint64{2},
		Dtype:     idx.Datatype{Class: idx.ClassInteger, Size: 4, Signed: true},
		FillValue: i32le(99),
	}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 8},
	})
	require.NoError(t, err)

	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.All())
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 99, 99}, vals)
}

func TestReadMissingChunkZeroFill(t *testing.T) {
	d := int32Dataset(t, []uint64{2}, []uint64{2}, nil, nil)
	r, err := New(bytes.NewReader(nil), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.All())
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0}, vals)
}

func TestReadDeflateChunk(t *testing.T) {
	plain := i32le(5, 6, 7, 8)
	stored := deflate(t, plain)

	f := &sourceFile{}
	f.writeAt(0x100, stored)

	d := int32Dataset(t, []uint64{4}, []uint64{4}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: uint64(len(stored))},
	}, []idx.Filter{{ID: 1, ClientData: []uint32{6}}})

	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.All())
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 6, 7, 8}, vals)
}

func TestReadCorruptChunk(t *testing.T) {
	f := &sourceFile{}
	f.writeAt(0x100, []byte{0xde, 0xad, 0xbe, 0xef})

	d := int32Dataset(t, []uint64{4}, []uint64{4}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 4},
	}, []idx.Filter{{ID: 1}})

	r, err := New(f.reader(), d)
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, idx.ErrDecode)
}

func TestReadTruncatedSource(t *testing.T) {
	d := int32Dataset(t, []uint64{2}, []uint64{2}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x10000, Size: 8},
	}, nil)

	r, err := New(bytes.NewReader(make([]byte, 64)), d)
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, idx.ErrTruncated)
}

func TestReadBigEndian(t *testing.T) {
	f := &sourceFile{}
	f.writeAt(0x100, i32be(-3, 1000))

	d, err := idx.NewDataset(idx.Dataset{
		Name:      "v",
		Dims:      []uint64{2},
		ChunkDims: []uint64{2},
		Dtype:     idx.Datatype{Class: idx.ClassInteger, Size: 4, Signed: true, BigEndian: true},
	}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 8},
	})
	require.NoError(t, err)

	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.All())
	require.NoError(t, err)
	assert.Equal(t, []int32{-3, 1000}, vals)
}

func TestReadCompact(t *testing.T) {
	d, err := idx.NewDataset(idx.Dataset{
		Name:        "v",
		Dims:        []uint64{3},
		ChunkDims:   []uint64{3},
		Dtype:       idx.Datatype{Class: idx.ClassInteger, Size: 4, Signed: true},
		Layout:      idx.LayoutCompact,
		CompactData: i32le(7, 8, 9),
	}, nil)
	require.NoError(t, err)

	r, err := New(bytes.NewReader(nil), d)
	require.NoError(t, err)

	vals, err := Values[int32](context.Background(), r, idx.Slab([]uint64{1}, []uint64{2}))
	require.NoError(t, err)
	assert.Equal(t, []int32{8, 9}, vals)
}

func TestReadOutOfBounds(t *testing.T) {
	d := int32Dataset(t, []uint64{4}, []uint64{4}, nil, nil)
	r, err := New(bytes.NewReader(nil), d)
	require.NoError(t, err)

	_, err = r.ReadSlice(context.Background(), idx.Slab([]uint64{2}, []uint64{4}))
	assert.ErrorIs(t, err, idx.ErrOutOfBounds)
}

func TestReadCancelledContext(t *testing.T) {
	f := &sourceFile{}
	f.writeAt(0x100, i32le(1, 2))

	d := int32Dataset(t, []uint64{2}, []uint64{2}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 8},
	}, nil)
	r, err := New(f.reader(), d)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadChunkCached(t *testing.T) {
	f := &sourceFile{}
	f.writeAt(0x100, i32le(1, 2))

	d := int32Dataset(t, []uint64{2}, []uint64{2}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 8},
	}, nil)
	r, err := New(f.reader(), d)
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.cache.len())

	// Second read is served from cache; clobber the source to prove it.
	f.writeAt(0x100, i32le(-1, -1))
	vals, err := Values[int32](context.Background(), r, idx.All())
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, vals)
}

func TestNewRejectsUnsupportedDataset(t *testing.T) {
	d, err := idx.NewDataset(idx.Dataset{
		Name:        "v",
		Dims:        []uint64{2},
		ChunkDims:   []uint64{2},
		Dtype:       idx.Datatype{Class: idx.ClassOther, Size: 16},
		Unsupported: "compound datatype",
	}, nil)
	require.NoError(t, err)

	_, err = New(bytes.NewReader(nil), d)
	assert.ErrorIs(t, err, idx.ErrUnsupported)
}

func TestNewRejectsUnknownFilter(t *testing.T) {
	d := int32Dataset(t, []uint64{2}, []uint64{2}, nil,
		[]idx.Filter{{ID: 4}}) // szip

	_, err := New(bytes.NewReader(nil), d)
	assert.ErrorIs(t, err, idx.ErrUnsupported)
}

func TestFloat64sWidensIntegers(t *testing.T) {
	f := &sourceFile{}
	buf := make([]byte, 6)
	stdbin.LittleEndian.PutUint16(buf[0:], uint16(1))
	stdbin.LittleEndian.PutUint16(buf[2:], 0xFFFF) // -1 as int16
	stdbin.LittleEndian.PutUint16(buf[4:], uint16(300))
	f.writeAt(0x100, buf)

	d, err := idx.NewDataset(idx.Dataset{
		Name:      "v",
		Dims:      []uint64{3},
		ChunkDims: []uint64{3},
		Dtype:     idx.Datatype{Class: idx.ClassInteger, Size: 2, Signed: true},
	}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 6},
	})
	require.NoError(t, err)

	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := r.Float64s(context.Background(), idx.All())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1, 300}, vals)
}

func TestValuesSizeMismatch(t *testing.T) {
	d := int32Dataset(t, []uint64{2}, []uint64{2}, nil, nil)
	r, err := New(bytes.NewReader(nil), d)
	require.NoError(t, err)

	_, err = Values[int64](context.Background(), r, idx.All())
	assert.ErrorIs(t, err, idx.ErrUnsupported)
}

func TestStringsFixedSize(t *testing.T) {
	f := &sourceFile{}
	f.writeAt(0x100, []byte("ab\x00\x00cdef"))

	d, err := idx.NewDataset(idx.Dataset{
		Name:      "v",
		Dims:      []uint64{2},
		ChunkDims: []uint64{2},
		Dtype:     idx.Datatype{Class: idx.ClassString, Size: 4},
	}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 8},
	})
	require.NoError(t, err)

	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := r.Strings(context.Background(), idx.All())
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "cdef"}, vals)
}

func TestStringsVarLen(t *testing.T) {
	f := &sourceFile{}

	// Global heap collection with two string objects.
	var gh bytes.Buffer
	gh.WriteString("GCOL")
	gh.WriteByte(1)
	gh.Write(make([]byte, 3))
	sizeAt := gh.Len()
	gh.Write(make([]byte, 8)) // collection size, patched below

	writeObj := func(index uint16, data string) {
		var hdr [8]byte
		stdbin.LittleEndian.PutUint16(hdr[0:], index)
		stdbin.LittleEndian.PutUint16(hdr[2:], 1)
		gh.Write(hdr[:])
		var sz [8]byte
		stdbin.LittleEndian.PutUint64(sz[:], uint64(len(data)))
		gh.Write(sz[:])
		gh.WriteString(data)
		if pad := (8 - len(data)%8) % 8; pad > 0 {
			gh.Write(make([]byte, pad))
		}
	}
	writeObj(1, "hello")
	writeObj(2, "hi")

	ghBytes := gh.Bytes()
	stdbin.LittleEndian.PutUint64(ghBytes[sizeAt:], uint64(len(ghBytes)))
	f.writeAt(0x800, ghBytes)

	// Two descriptors: length, collection address, object index.
	desc := make([]byte, 32)
	stdbin.LittleEndian.PutUint32(desc[0:], 5)
	stdbin.LittleEndian.PutUint64(desc[4:], 0x800)
	stdbin.LittleEndian.PutUint32(desc[12:], 1)
	stdbin.LittleEndian.PutUint32(desc[16:], 2)
	stdbin.LittleEndian.PutUint64(desc[20:], 0x800)
	stdbin.LittleEndian.PutUint32(desc[28:], 2)
	f.writeAt(0x100, desc)

	d, err := idx.NewDataset(idx.Dataset{
		Name:      "v",
		Dims:      []uint64{2},
		ChunkDims: []uint64{2},
		Dtype:     idx.Datatype{Class: idx.ClassVarLenString, Size: 16},
	}, []idx.Chunk{
		{Offset: []uint64{0}, Address: 0x100, Size: 32},
	})
	require.NoError(t, err)

	r, err := New(f.reader(), d)
	require.NoError(t, err)

	vals, err := r.Strings(context.Background(), idx.All())
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "hi"}, vals)
}

func TestReadConcurrent(t *testing.T) {
	// 8 x 6 dataset in 2 x 3 chunks, values encoding their position.
	dims := []uint64{8, 6}
	chunkDims := []uint64{2, 3}

	f := &sourceFile{}
	var chunks []idx.Chunk
	addr := uint64(0x100)
	for cr := uint64(0); cr < dims[0]; cr += chunkDims[0] {
		for cc := uint64(0); cc < dims[1]; cc += chunkDims[1] {
			var vals []int32
			for r := cr; r < cr+chunkDims[0]; r++ {
				for c := cc; c < cc+chunkDims[1]; c++ {
					vals = append(vals, int32(r*10+c))
				}
			}
			data := i32le(vals...)
			f.writeAt(int(addr), data)
			chunks = append(chunks, idx.Chunk{
				Offset:  []uint64{cr, cc},
				Address: addr,
				Size:    uint64(len(data)),
			})
			addr += 0x100
		}
	}

	d := int32Dataset(t, dims, chunkDims, chunks, nil)
	r, err := New(f.reader(), d)
	require.NoError(t, err)

	// Overlapping hyperslabs, each read both sequentially and from many
	// goroutines at once.
	slabs := []idx.Hyperslab{
		idx.All(),
		idx.Slab([]uint64{1, 1}, []uint64{6, 4}),
		idx.Slab([]uint64{3, 0}, []uint64{2, 6}),
		{Start: []uint64{0, 0}, Count: []uint64{4, 3}, Stride: []uint64{2, 2}},
	}

	want := make([][]int32, len(slabs))
	for i, slab := range slabs {
		want[i], err = Values[int32](context.Background(), r, slab)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(slabs)*8)
	for i, slab := range slabs {
		for n := 0; n < 8; n++ {
			wg.Add(1)
			go func(i int, slab idx.Hyperslab) {
				defer wg.Done()
				got, err := Values[int32](context.Background(), r, slab)
				if err != nil {
					errs <- err
					return
				}
				if !assert.ObjectsAreEqual(want[i], got) {
					errs <- fmt.Errorf("slab %d: concurrent read differs", i)
				}
			}(i, slab)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
