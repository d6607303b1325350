package superblock

import (
	"bytes"
	stdbin "encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

func buildV0(rootAddr, btreeAddr, heapAddr uint64) []byte {
	buf := make([]byte, 128)
	copy(buf, Signature)
	buf[8] = 0  // version
	buf[13] = 8 // offset size
	buf[14] = 8 // length size
	stdbin.LittleEndian.PutUint16(buf[16:], 4) // leaf K
	stdbin.LittleEndian.PutUint16(buf[18:], 16)

	pos := 24
	for _, v := range []uint64{0, ^uint64(0), 4096, ^uint64(0)} {
		stdbin.LittleEndian.PutUint64(buf[pos:], v)
		pos += 8
	}
	// Root symbol table entry.
	stdbin.LittleEndian.PutUint64(buf[pos:], 0) // link name offset
	pos += 8
	stdbin.LittleEndian.PutUint64(buf[pos:], rootAddr)
	pos += 8
	stdbin.LittleEndian.PutUint32(buf[pos:], 1) // cached symbol table
	pos += 8
	stdbin.LittleEndian.PutUint64(buf[pos:], btreeAddr)
	pos += 8
	stdbin.LittleEndian.PutUint64(buf[pos:], heapAddr)

	return buf
}

func TestReadV0(t *testing.T) {
	buf := buildV0(0x60, 0x88, 0x2a0)

	sb, err := Read(bytes.NewReader(buf))
	require.NoError(t, err)

	assert.EqualValues(t, 0, sb.Version)
	assert.EqualValues(t, 8, sb.OffsetSize)
	assert.EqualValues(t, 8, sb.LengthSize)
	assert.EqualValues(t, 4096, sb.EOFAddress)
	assert.EqualValues(t, 0x60, sb.RootGroupAddress)
	assert.EqualValues(t, 0x88, sb.RootGroupBTreeAddress)
	assert.EqualValues(t, 0x2a0, sb.RootGroupLocalHeapAddress)
	assert.EqualValues(t, 0, sb.FileOffset)
}

func TestReadV0AtUserBlockOffset(t *testing.T) {
	buf := append(make([]byte, 512), buildV0(0x60, 0x88, 0x2a0)...)

	sb, err := Read(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.EqualValues(t, 512, sb.FileOffset)
}

func TestReadV2(t *testing.T) {
	buf := make([]byte, 128)
	copy(buf, Signature)
	body := buf[8:]
	body[0] = 2 // version
	body[1] = 8
	body[2] = 8
	body[3] = 0
	stdbin.LittleEndian.PutUint64(body[4:], 0)          // base address
	stdbin.LittleEndian.PutUint64(body[12:], ^uint64(0)) // extension
	stdbin.LittleEndian.PutUint64(body[20:], 8192)      // EOF
	stdbin.LittleEndian.PutUint64(body[28:], 0x30)      // root group

	sum := binpkg.Lookup3(buf[:44])
	stdbin.LittleEndian.PutUint32(buf[44:], sum)

	sb, err := Read(bytes.NewReader(buf))
	require.NoError(t, err)

	assert.EqualValues(t, 2, sb.Version)
	assert.EqualValues(t, 8192, sb.EOFAddress)
	assert.EqualValues(t, 0x30, sb.RootGroupAddress)
}

func TestReadV2BadChecksum(t *testing.T) {
	buf := make([]byte, 128)
	copy(buf, Signature)
	buf[8] = 2
	buf[9] = 8
	buf[10] = 8
	stdbin.LittleEndian.PutUint32(buf[44:], 0xdeadbeef)

	_, err := Read(bytes.NewReader(buf))
	assert.ErrorIs(t, err, ErrInvalidSuperblock)
}

func TestReadNotHDF5(t *testing.T) {
	_, err := Read(bytes.NewReader(make([]byte, 4096)))
	assert.ErrorIs(t, err, ErrNotHDF5)
}

func TestReadUnsupportedVersion(t *testing.T) {
	buf := make([]byte, 64)
	copy(buf, Signature)
	buf[8] = 9

	_, err := Read(bytes.NewReader(buf))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReadInvalidFieldSizes(t *testing.T) {
	buf := buildV0(0x60, 0x88, 0x2a0)
	buf[13] = 3

	_, err := Read(bytes.NewReader(buf))
	assert.ErrorIs(t, err, ErrInvalidSuperblock)
}
