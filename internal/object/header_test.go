package object

import (
	"bytes"
	stdbin "encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// headerBuilder assembles synthetic object headers in a flat buffer so
// parsing can be tested without fixture files.
type headerBuilder struct {
	buf []byte
}

func (b *headerBuilder) writeAt(offset int, data []byte) {
	if need := offset + len(data); need > len(b.buf) {
		b.buf = append(b.buf, make([]byte, need-len(b.buf))...)
	}
	copy(b.buf[offset:], data)
}

func (b *headerBuilder) reader() *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(b.buf), binpkg.DefaultConfig())
}

func v1Message(typ message.Type, data []byte) []byte {
	var buf bytes.Buffer
	var hdr [8]byte
	stdbin.LittleEndian.PutUint16(hdr[0:], uint16(typ))
	stdbin.LittleEndian.PutUint16(hdr[2:], uint16(len(data)))
	buf.Write(hdr[:])
	buf.Write(data)
	if rem := buf.Len() % 8; rem != 0 {
		buf.Write(make([]byte, 8-rem))
	}
	return buf.Bytes()
}

func v1Header(messages ...[]byte) []byte {
	var body bytes.Buffer
	for _, m := range messages {
		body.Write(m)
	}

	var buf bytes.Buffer
	buf.WriteByte(1) // version
	buf.WriteByte(0)
	var n [2]byte
	stdbin.LittleEndian.PutUint16(n[:], uint16(len(messages)))
	buf.Write(n[:])
	var rc [4]byte
	stdbin.LittleEndian.PutUint32(rc[:], 1)
	buf.Write(rc[:])
	var hs [4]byte
	stdbin.LittleEndian.PutUint32(hs[:], uint32(body.Len()))
	buf.Write(hs[:])
	buf.Write(make([]byte, 4)) // pad to 8-byte boundary
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func scalarDataspace() []byte { return []byte{2, 0, 0, 0} }

func int32Datatype() []byte {
	dt := make([]byte, 12)
	dt[0] = 1<<4 | 0 // fixed point
	dt[1] = 0x08
	stdbin.LittleEndian.PutUint32(dt[4:], 4)
	stdbin.LittleEndian.PutUint16(dt[10:], 32)
	return dt
}

func TestReadV1Header(t *testing.T) {
	b := &headerBuilder{}
	b.writeAt(0, v1Header(
		v1Message(message.TypeDataspace, scalarDataspace()),
		v1Message(message.TypeDatatype, int32Datatype()),
	))

	hdr, err := Read(b.reader(), 0)
	require.NoError(t, err)

	assert.EqualValues(t, 1, hdr.Version)
	require.NotNil(t, hdr.Dataspace())
	assert.True(t, hdr.Dataspace().IsScalar())
	require.NotNil(t, hdr.Datatype())
	assert.True(t, hdr.Datatype().IsInteger())
	assert.Nil(t, hdr.DataLayout())
}

func TestReadV1HeaderContinuation(t *testing.T) {
	// Continuation block at offset 512 holding the datatype message.
	contBlock := v1Message(message.TypeDatatype, int32Datatype())

	cont := make([]byte, 16)
	stdbin.LittleEndian.PutUint64(cont[0:], 512)
	stdbin.LittleEndian.PutUint64(cont[8:], uint64(len(contBlock)))

	b := &headerBuilder{}
	b.writeAt(0, v1Header(
		v1Message(message.TypeDataspace, scalarDataspace()),
		v1Message(message.TypeObjectHeaderContinuation, cont),
	))
	b.writeAt(512, contBlock)

	hdr, err := Read(b.reader(), 0)
	require.NoError(t, err)

	require.NotNil(t, hdr.Dataspace())
	require.NotNil(t, hdr.Datatype())
}

func TestReadV1HeaderContinuationCycle(t *testing.T) {
	// A continuation block that points back at itself must fail
	// instead of looping.
	cont := make([]byte, 16)
	stdbin.LittleEndian.PutUint64(cont[0:], 512)
	stdbin.LittleEndian.PutUint64(cont[8:], 24)

	selfRef := v1Message(message.TypeObjectHeaderContinuation, cont)

	b := &headerBuilder{}
	b.writeAt(0, v1Header(selfRef))
	b.writeAt(512, selfRef)

	_, err := Read(b.reader(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func v2Message(typ message.Type, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(uint8(typ))
	var n [2]byte
	stdbin.LittleEndian.PutUint16(n[:], uint16(len(data)))
	buf.Write(n[:])
	buf.WriteByte(0) // flags
	buf.Write(data)
	return buf.Bytes()
}

func v2Header(messages ...[]byte) []byte {
	var body bytes.Buffer
	for _, m := range messages {
		body.Write(m)
	}

	var buf bytes.Buffer
	buf.Write(SignatureV2)
	buf.WriteByte(2)    // version
	buf.WriteByte(0x01) // flags: 2-byte chunk 0 size
	var sz [2]byte
	stdbin.LittleEndian.PutUint16(sz[:], uint16(body.Len()))
	buf.Write(sz[:])
	buf.Write(body.Bytes())
	buf.Write(make([]byte, 4)) // checksum placeholder
	return buf.Bytes()
}

func TestReadV2Header(t *testing.T) {
	b := &headerBuilder{}
	b.writeAt(0, v2Header(
		v2Message(message.TypeDataspace, scalarDataspace()),
		v2Message(message.TypeDatatype, int32Datatype()),
	))

	hdr, err := Read(b.reader(), 0)
	require.NoError(t, err)

	assert.EqualValues(t, 2, hdr.Version)
	require.NotNil(t, hdr.Dataspace())
	require.NotNil(t, hdr.Datatype())
}

func TestReadUnknownFormat(t *testing.T) {
	b := &headerBuilder{}
	b.writeAt(0, []byte{9, 9, 9, 9, 0, 0, 0, 0})

	_, err := Read(b.reader(), 0)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}
