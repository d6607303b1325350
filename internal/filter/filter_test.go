package filter

import (
	"bytes"
	stdbin "encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

func deflateCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func shuffleBytes(data []byte, elemSize int) []byte {
	numElems := len(data) / elemSize
	out := make([]byte, len(data))
	for i := 0; i < numElems; i++ {
		for j := 0; j < elemSize; j++ {
			out[j*numElems+i] = data[i*elemSize+j]
		}
	}
	return out
}

func TestDeflateDecode(t *testing.T) {
	plain := []byte("chunked variable data, repeated: chunked variable data")

	f := NewDeflate(nil)
	out, err := f.Decode(deflateCompress(t, plain))
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDeflateDecodeGarbage(t *testing.T) {
	f := NewDeflate(nil)
	_, err := f.Decode([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestShuffleDecode(t *testing.T) {
	plain := make([]byte, 32)
	for i := range plain {
		plain[i] = byte(i)
	}

	f := NewShuffle([]uint32{4})
	out, err := f.Decode(shuffleBytes(plain, 4))
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestShuffleSingleByteElements(t *testing.T) {
	plain := []byte{1, 2, 3}

	f := NewShuffle([]uint32{1})
	out, err := f.Decode(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestFletcher32Decode(t *testing.T) {
	data := []byte("abcdefgh")
	sum := binpkg.Fletcher32(data)

	input := make([]byte, len(data)+4)
	copy(input, data)
	stdbin.LittleEndian.PutUint32(input[len(data):], sum)

	f := NewFletcher32()
	out, err := f.Decode(input)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestFletcher32Mismatch(t *testing.T) {
	input := []byte{1, 2, 3, 4, 0xde, 0xad, 0xbe, 0xef}

	f := NewFletcher32()
	_, err := f.Decode(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestZstdDecode(t *testing.T) {
	plain := bytes.Repeat([]byte("sea surface temperature "), 20)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())

	f := NewZstd()
	out, err := f.Decode(compressed)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestLZ4Decode(t *testing.T) {
	plain := bytes.Repeat([]byte("0123456789abcdef"), 64)

	compressed := make([]byte, lz4.CompressBlockBound(len(plain)))
	n, err := lz4.CompressBlock(plain, compressed, nil)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	var buf bytes.Buffer
	var hdr [12]byte
	stdbin.BigEndian.PutUint64(hdr[0:], uint64(len(plain)))
	stdbin.BigEndian.PutUint32(hdr[8:], uint32(len(plain))) // one block
	buf.Write(hdr[:])
	var bsz [4]byte
	stdbin.BigEndian.PutUint32(bsz[:], uint32(n))
	buf.Write(bsz[:])
	buf.Write(compressed[:n])

	f := NewLZ4()
	out, err := f.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestLZ4DecodeRawBlock(t *testing.T) {
	plain := []byte("incompressible!!")

	var buf bytes.Buffer
	var hdr [12]byte
	stdbin.BigEndian.PutUint64(hdr[0:], uint64(len(plain)))
	stdbin.BigEndian.PutUint32(hdr[8:], uint32(len(plain)))
	buf.Write(hdr[:])
	var bsz [4]byte
	stdbin.BigEndian.PutUint32(bsz[:], uint32(len(plain)))
	buf.Write(bsz[:])
	buf.Write(plain)

	f := NewLZ4()
	out, err := f.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestLZ4Truncated(t *testing.T) {
	f := NewLZ4()
	_, err := f.Decode([]byte{0, 1})
	assert.Error(t, err)
}

func TestPipelineShuffleDeflate(t *testing.T) {
	plain := make([]byte, 64)
	for i := range plain {
		plain[i] = byte(i * 3)
	}

	// Writing order: shuffle then deflate. Stored bytes are the
	// deflated shuffled data.
	stored := deflateCompress(t, shuffleBytes(plain, 4))

	fp := &message.FilterPipeline{
		Version: 1,
		Filters: []message.FilterInfo{
			{ID: message.FilterShuffle, ClientData: []uint32{4}},
			{ID: message.FilterDeflate, ClientData: []uint32{6}},
		},
	}

	p, err := NewPipeline(fp)
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())

	out, err := p.Decode(stored, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestPipelineFilterMask(t *testing.T) {
	plain := []byte("mask skips deflate")

	fp := &message.FilterPipeline{
		Version: 1,
		Filters: []message.FilterInfo{
			{ID: message.FilterDeflate, ClientData: []uint32{6}},
		},
	}

	p, err := NewPipeline(fp)
	require.NoError(t, err)

	// Bit 0 set: the only filter was skipped at write time.
	out, err := p.Decode(plain, 0x1)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestPipelineUnsupportedFilter(t *testing.T) {
	fp := &message.FilterPipeline{
		Version: 1,
		Filters: []message.FilterInfo{
			{ID: message.FilterSZIP},
		},
	}

	_, err := NewPipeline(fp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "szip")
}

func TestPipelineOptionalUnsupportedFilter(t *testing.T) {
	fp := &message.FilterPipeline{
		Version: 1,
		Filters: []message.FilterInfo{
			{ID: message.FilterSZIP, Flags: 0x01},
			{ID: message.FilterDeflate},
		},
	}

	p, err := NewPipeline(fp)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
}

func TestPipelineEmpty(t *testing.T) {
	p, err := NewPipeline(nil)
	require.NoError(t, err)
	assert.True(t, p.Empty())

	data := []byte{1, 2, 3}
	out, err := p.Decode(data, 0)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
