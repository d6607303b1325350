package message

import (
	"bytes"
	stdbin "encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

func testReader() *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(nil), binpkg.DefaultConfig())
}

func TestDataspaceScalar(t *testing.T) {
	data := []byte{2, 0, 0, 0}

	ds, err := parseDataspace(data, testReader())
	require.NoError(t, err)

	assert.True(t, ds.IsScalar())
	assert.EqualValues(t, 1, ds.NumElements())
}

func TestDataspaceSimple(t *testing.T) {
	data := make([]byte, 4+2*8)
	data[0] = 2 // version
	data[1] = 2 // rank
	data[3] = 1 // simple
	stdbin.LittleEndian.PutUint64(data[4:], 30)
	stdbin.LittleEndian.PutUint64(data[12:], 20)

	ds, err := parseDataspace(data, testReader())
	require.NoError(t, err)

	assert.Equal(t, []uint64{30, 20}, ds.Dimensions)
	assert.EqualValues(t, 600, ds.NumElements())
	assert.Nil(t, ds.MaxDims)
}

func TestDataspaceV1MaxDims(t *testing.T) {
	// Version 1 carries four reserved bytes and, with flag bit 0 set,
	// a max-dimensions list after the dimensions.
	data := make([]byte, 8+2*8)
	data[0] = 1 // version
	data[1] = 1 // rank
	data[2] = 1 // flags: max dims present
	stdbin.LittleEndian.PutUint64(data[8:], 10)
	stdbin.LittleEndian.PutUint64(data[16:], ^uint64(0)) // unlimited

	ds, err := parseDataspace(data, testReader())
	require.NoError(t, err)

	assert.Equal(t, []uint64{10}, ds.Dimensions)
	require.Len(t, ds.MaxDims, 1)
	assert.Equal(t, ^uint64(0), ds.MaxDims[0])
}

func TestDataspaceTruncated(t *testing.T) {
	data := []byte{2, 4, 0, 1, 1, 2, 3}
	_, err := parseDataspace(data, testReader())
	assert.Error(t, err)
}

func TestDatatypeFixedPoint(t *testing.T) {
	data := make([]byte, 12)
	data[0] = 1<<4 | uint8(ClassFixedPoint)
	data[1] = 0x08 // signed, little-endian
	stdbin.LittleEndian.PutUint32(data[4:], 4)
	stdbin.LittleEndian.PutUint16(data[8:], 0)  // bit offset
	stdbin.LittleEndian.PutUint16(data[10:], 32) // bit precision

	dt, err := parseDatatype(data)
	require.NoError(t, err)

	assert.True(t, dt.IsInteger())
	assert.True(t, dt.Signed)
	assert.False(t, dt.BigEndian())
	assert.EqualValues(t, 4, dt.Size)
	assert.EqualValues(t, 32, dt.BitPrecision)
}

func TestDatatypeFloatBigEndian(t *testing.T) {
	data := make([]byte, 20)
	data[0] = 1<<4 | uint8(ClassFloatPoint)
	data[1] = 0x01 // big-endian
	stdbin.LittleEndian.PutUint32(data[4:], 8)

	dt, err := parseDatatype(data)
	require.NoError(t, err)

	assert.True(t, dt.IsFloat())
	assert.True(t, dt.BigEndian())
	assert.EqualValues(t, 8, dt.Size)
}

func TestDatatypeVarLenString(t *testing.T) {
	data := make([]byte, 8+8)
	data[0] = 1<<4 | uint8(ClassVarLen)
	data[1] = 0x01 // variable-length string
	stdbin.LittleEndian.PutUint32(data[4:], 16)
	// Base type: one-byte string.
	data[8] = 1<<4 | uint8(ClassString)
	stdbin.LittleEndian.PutUint32(data[12:], 1)

	dt, err := parseDatatype(data)
	require.NoError(t, err)

	assert.True(t, dt.IsVarLen())
	assert.True(t, dt.IsString())
	require.NotNil(t, dt.BaseType)
	assert.Equal(t, ClassString, dt.BaseType.Class)
}

func TestDataLayoutV3Chunked(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(3)                      // version
	buf.WriteByte(uint8(LayoutChunked))   // class
	buf.WriteByte(3)                      // dimensionality: rank 2 + element size
	addr := make([]byte, 8)
	stdbin.LittleEndian.PutUint64(addr, 0x1234)
	buf.Write(addr)
	for _, d := range []uint32{10, 20, 4} { // chunk dims + element size
		var b [4]byte
		stdbin.LittleEndian.PutUint32(b[:], d)
		buf.Write(b[:])
	}

	layout, err := parseDataLayout(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.True(t, layout.IsChunked())
	assert.Equal(t, ChunkIndexBTreeV1, layout.ChunkIndexType)
	assert.EqualValues(t, 0x1234, layout.ChunkIndexAddr)
	assert.Equal(t, []uint64{10, 20}, layout.ChunkDims)
	assert.EqualValues(t, 4, layout.ElementSize)
}

func TestDataLayoutV3Contiguous(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(3)
	buf.WriteByte(uint8(LayoutContiguous))
	b := make([]byte, 16)
	stdbin.LittleEndian.PutUint64(b[0:], 0x800)
	stdbin.LittleEndian.PutUint64(b[8:], 4096)
	buf.Write(b)

	layout, err := parseDataLayout(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.True(t, layout.IsContiguous())
	assert.EqualValues(t, 0x800, layout.Address)
	assert.EqualValues(t, 4096, layout.Size)
}

func TestDataLayoutV3Compact(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(3)
	buf.WriteByte(uint8(LayoutCompact))
	var sz [2]byte
	stdbin.LittleEndian.PutUint16(sz[:], 4)
	buf.Write(sz[:])
	buf.Write([]byte{1, 2, 3, 4})

	layout, err := parseDataLayout(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.True(t, layout.IsCompact())
	assert.Equal(t, []byte{1, 2, 3, 4}, layout.CompactData)
}

func TestDataLayoutV4FixedArray(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(4)                    // version
	buf.WriteByte(uint8(LayoutChunked)) // class
	buf.WriteByte(0)                    // flags
	buf.WriteByte(2)                    // dimensionality
	buf.WriteByte(8)                    // dimension encoding size
	dim := make([]byte, 8)
	stdbin.LittleEndian.PutUint64(dim, 16)
	buf.Write(dim)
	buf.Write(dim)
	buf.WriteByte(3)  // fixed array index
	buf.WriteByte(10) // page bits
	addr := make([]byte, 8)
	stdbin.LittleEndian.PutUint64(addr, 0xbeef)
	buf.Write(addr)

	layout, err := parseDataLayout(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.Equal(t, ChunkIndexFixedArray, layout.ChunkIndexType)
	assert.Equal(t, []uint64{16, 16}, layout.ChunkDims)
	assert.EqualValues(t, 10, layout.PageBits)
	assert.EqualValues(t, 0xbeef, layout.ChunkIndexAddr)
}

func TestDataLayoutV4BTreeV2(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(4)
	buf.WriteByte(uint8(LayoutChunked))
	buf.WriteByte(0)
	buf.WriteByte(1)
	buf.WriteByte(4)
	var dim [4]byte
	stdbin.LittleEndian.PutUint32(dim[:], 100)
	buf.Write(dim[:])
	buf.WriteByte(5) // btree v2 index
	var node [4]byte
	stdbin.LittleEndian.PutUint32(node[:], 2048)
	buf.Write(node[:])
	buf.WriteByte(100) // split percent
	buf.WriteByte(40)  // merge percent
	addr := make([]byte, 8)
	stdbin.LittleEndian.PutUint64(addr, 0x2000)
	buf.Write(addr)

	layout, err := parseDataLayout(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.Equal(t, ChunkIndexBTreeV2, layout.ChunkIndexType)
	assert.EqualValues(t, 2048, layout.NodeSize)
	assert.EqualValues(t, 0x2000, layout.ChunkIndexAddr)
}

func TestFilterPipelineV1(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(1)                   // version
	buf.WriteByte(2)                   // two filters
	buf.Write(make([]byte, 6))         // reserved
	// Shuffle: id 2, no name, one client value.
	writeU16 := func(v uint16) {
		var b [2]byte
		stdbin.LittleEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	writeU32 := func(v uint32) {
		var b [4]byte
		stdbin.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	writeU16(FilterShuffle)
	writeU16(0) // name length
	writeU16(0) // flags
	writeU16(1) // client data count
	writeU32(4) // element size
	writeU32(0) // odd count padding
	// Deflate: id 1, level 6.
	writeU16(FilterDeflate)
	writeU16(0)
	writeU16(0)
	writeU16(1)
	writeU32(6)
	writeU32(0)

	fp, err := parseFilterPipeline(buf.Bytes())
	require.NoError(t, err)

	require.Len(t, fp.Filters, 2)
	assert.Equal(t, FilterShuffle, fp.Filters[0].ID)
	assert.Equal(t, []uint32{4}, fp.Filters[0].ClientData)
	assert.Equal(t, FilterDeflate, fp.Filters[1].ID)
	assert.True(t, fp.HasFilter(FilterDeflate))
	assert.False(t, fp.HasFilter(FilterZstd))
}

func TestFilterPipelineV2CustomFilter(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(2) // version
	buf.WriteByte(1)
	writeU16 := func(v uint16) {
		var b [2]byte
		stdbin.LittleEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	writeU16(FilterZstd)
	writeU16(5) // name length (custom filters keep the field in v2)
	writeU16(0)
	writeU16(1)
	buf.WriteString("zstd")
	buf.WriteByte(0)
	var b [4]byte
	stdbin.LittleEndian.PutUint32(b[:], 3)
	buf.Write(b[:])

	fp, err := parseFilterPipeline(buf.Bytes())
	require.NoError(t, err)

	require.Len(t, fp.Filters, 1)
	assert.Equal(t, FilterZstd, fp.Filters[0].ID)
	assert.Equal(t, "zstd", fp.Filters[0].Name)
	assert.Equal(t, []uint32{3}, fp.Filters[0].ClientData)
}

func TestFillValueV2(t *testing.T) {
	data := []byte{2, 2, 0, 1, 4, 0, 0, 0, 0xc0, 0xff, 0xee, 0x42}

	fv, err := parseFillValue(data)
	require.NoError(t, err)

	assert.True(t, fv.IsDefined)
	assert.Equal(t, []byte{0xc0, 0xff, 0xee, 0x42}, fv.Value)
}

func TestFillValueV3Undefined(t *testing.T) {
	data := []byte{3, 0x09}

	fv, err := parseFillValue(data)
	require.NoError(t, err)

	assert.False(t, fv.IsDefined)
	assert.Nil(t, fv.Value)
}

func TestFillValueV3Defined(t *testing.T) {
	data := []byte{3, 0x20, 2, 0, 0, 0, 0xab, 0xcd}

	fv, err := parseFillValue(data)
	require.NoError(t, err)

	assert.True(t, fv.IsDefined)
	assert.Equal(t, []byte{0xab, 0xcd}, fv.Value)
}

func TestSymbolTableMessage(t *testing.T) {
	data := make([]byte, 16)
	stdbin.LittleEndian.PutUint64(data[0:], 0x100)
	stdbin.LittleEndian.PutUint64(data[8:], 0x200)

	st, err := parseSymbolTable(data, testReader())
	require.NoError(t, err)

	assert.EqualValues(t, 0x100, st.BTreeAddress)
	assert.EqualValues(t, 0x200, st.LocalHeapAddress)
}

func TestContinuationMessage(t *testing.T) {
	data := make([]byte, 16)
	stdbin.LittleEndian.PutUint64(data[0:], 0x4000)
	stdbin.LittleEndian.PutUint64(data[8:], 512)

	c, err := ParseContinuation(data, testReader())
	require.NoError(t, err)

	assert.EqualValues(t, 0x4000, c.Offset)
	assert.EqualValues(t, 512, c.Length)
}

func TestLinkHard(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(1)    // version
	buf.WriteByte(0x08) // flags: link type present, 1-byte name length
	buf.WriteByte(0)    // hard link
	buf.WriteByte(4)    // name length
	buf.WriteString("sst0")
	addr := make([]byte, 8)
	stdbin.LittleEndian.PutUint64(addr, 0x5000)
	buf.Write(addr)

	link, err := parseLink(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.True(t, link.IsHard())
	assert.Equal(t, "sst0", link.Name)
	assert.EqualValues(t, 0x5000, link.ObjectAddress)
}

func TestAttributeV1(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(1) // version
	buf.WriteByte(0) // reserved
	writeU16 := func(v uint16) {
		var b [2]byte
		stdbin.LittleEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	name := []byte("units\x00")
	dt := make([]byte, 8)
	dt[0] = 1<<4 | uint8(ClassString)
	stdbin.LittleEndian.PutUint32(dt[4:], 7)
	ds := []byte{2, 0, 0, 0} // scalar

	writeU16(uint16(len(name)))
	writeU16(uint16(len(dt)))
	writeU16(uint16(len(ds)))
	pad := func(b []byte) {
		buf.Write(b)
		if rem := buf.Len() % 8; rem != 0 {
			buf.Write(make([]byte, 8-rem))
		}
	}
	pad(name)
	pad(dt)
	pad(ds)
	buf.WriteString("celsius")

	attr, err := parseAttribute(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.Equal(t, "units", attr.Name)
	require.NotNil(t, attr.Datatype)
	assert.True(t, attr.Datatype.IsString())
	require.NotNil(t, attr.Dataspace)
	assert.True(t, attr.Dataspace.IsScalar())
	assert.Equal(t, "celsius", string(attr.Data))
}

func TestAttributeV3(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(3) // version
	buf.WriteByte(0) // flags
	writeU16 := func(v uint16) {
		var b [2]byte
		stdbin.LittleEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	name := []byte("_FillValue\x00")
	dt := make([]byte, 12)
	dt[0] = 1<<4 | uint8(ClassFixedPoint)
	dt[1] = 0x08
	stdbin.LittleEndian.PutUint32(dt[4:], 4)
	ds := []byte{2, 0, 0, 0}

	writeU16(uint16(len(name)))
	writeU16(uint16(len(dt)))
	writeU16(uint16(len(ds)))
	buf.WriteByte(0) // ascii
	buf.Write(name)
	buf.Write(dt)
	buf.Write(ds)
	var fill [4]byte
	stdbin.LittleEndian.PutUint32(fill[:], 0xfffffc18)
	buf.Write(fill[:])

	attr, err := parseAttribute(buf.Bytes(), testReader())
	require.NoError(t, err)

	assert.Equal(t, "_FillValue", attr.Name)
	assert.Equal(t, fill[:], attr.Data)
}

func TestParseDispatch(t *testing.T) {
	msg, err := Parse(Type(0x00FF), []byte{1, 2, 3}, testReader())
	require.NoError(t, err)

	unk, ok := msg.(*Unknown)
	require.True(t, ok)
	assert.Equal(t, Type(0x00FF), unk.Type())
	assert.Equal(t, []byte{1, 2, 3}, unk.Data())
}
