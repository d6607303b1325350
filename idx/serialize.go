package idx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// Serialized index format: a little-endian stream with a magic header
// and an xxhash64 digest of everything before it as the trailer.
var indexMagic = []byte{'H', 'F', 'X', 'I'}

const indexVersion uint16 = 1

// WriteTo serializes the index. The stream is self-contained: a
// deserialized index locates chunks without rescanning the container.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	bw := binpkg.NewWriter(&buf)

	bw.WriteBytes(indexMagic)
	bw.WriteUint16(indexVersion)

	bw.WriteString(x.Origin.Path)
	bw.WriteInt64(x.Origin.Size)
	bw.WriteInt64(x.Origin.ModTime)

	bw.WriteUint16(uint16(len(x.attrs)))
	for _, a := range x.attrs {
		writeAttr(bw, a)
	}

	names := x.Datasets()
	bw.WriteUint32(uint32(len(names)))
	for _, name := range names {
		writeDataset(bw, x.datasets[name])
	}
	if err := bw.Err(); err != nil {
		return 0, err
	}

	bw.WriteUint64(xxhash.Sum64(buf.Bytes()))

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// WriteFile serializes the index to a file.
func (x *Index) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := x.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeDataset(bw *binpkg.Writer, d *Dataset) {
	bw.WriteString(d.Name)

	writeDatatype(bw, d.Dtype)
	bw.WriteUint8(uint8(d.Layout))

	bw.WriteUint8(uint8(len(d.Dims)))
	for _, v := range d.Dims {
		bw.WriteUint64(v)
	}
	for _, v := range d.ChunkDims {
		bw.WriteUint64(v)
	}

	bw.WriteUint32(uint32(len(d.FillValue)))
	bw.WriteBytes(d.FillValue)

	bw.WriteUint8(uint8(len(d.Filters)))
	for _, f := range d.Filters {
		bw.WriteUint16(f.ID)
		bw.WriteUint8(uint8(len(f.ClientData)))
		for _, cd := range f.ClientData {
			bw.WriteUint32(cd)
		}
	}

	bw.WriteString(d.Unsupported)

	bw.WriteUint32(uint32(len(d.CompactData)))
	bw.WriteBytes(d.CompactData)

	bw.WriteUint16(uint16(len(d.Attrs)))
	for _, a := range d.Attrs {
		writeAttr(bw, a)
	}

	bw.WriteUint64(uint64(len(d.chunks)))
	for _, c := range d.chunks {
		for _, v := range c.Offset {
			bw.WriteUint64(v)
		}
		bw.WriteUint64(c.Address)
		bw.WriteUint64(c.Size)
		bw.WriteUint32(c.FilterMask)
	}
}

func writeAttr(bw *binpkg.Writer, a Attr) {
	bw.WriteString(a.Name)
	writeDatatype(bw, a.Dtype)
	bw.WriteUint8(uint8(len(a.Dims)))
	for _, v := range a.Dims {
		bw.WriteUint64(v)
	}
	bw.WriteUint32(uint32(len(a.Raw)))
	bw.WriteBytes(a.Raw)
}

func writeDatatype(bw *binpkg.Writer, dt Datatype) {
	bw.WriteUint8(uint8(dt.Class))
	bw.WriteUint32(dt.Size)
	bw.WriteUint8(boolByte(dt.BigEndian))
	bw.WriteUint8(boolByte(dt.Signed))
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// ReadFrom deserializes an index written by WriteTo. A bad magic,
// version, digest or structure yields ErrCorruptIndex.
func ReadFrom(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}

// ReadFile deserializes an index from a file.
func ReadFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}

// Deserialize reconstructs an index from serialized bytes.
func Deserialize(data []byte) (*Index, error) {
	if len(data) < len(indexMagic)+2+8 {
		return nil, fmt.Errorf("%w: too short", ErrCorruptIndex)
	}
	if !bytes.Equal(data[:4], indexMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}

	body, trailer := data[:len(data)-8], data[len(data)-8:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(trailer) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorruptIndex)
	}

	c := &cursor{data: body, pos: 4}
	if v := c.uint16(); v != indexVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorruptIndex, v)
	}

	x := newIndex()
	x.Origin.Path = c.string()
	x.Origin.Size = int64(c.uint64())
	x.Origin.ModTime = int64(c.uint64())

	na := int(c.uint16())
	for i := 0; i < na && c.err == nil; i++ {
		x.attrs = append(x.attrs, readAttr(c))
	}

	count := c.uint32()
	for i := uint32(0); i < count && c.err == nil; i++ {
		d, err := readDataset(c)
		if err != nil {
			return nil, err
		}
		x.add(d)
	}
	if c.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, c.err)
	}
	if c.pos != len(c.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptIndex, len(c.data)-c.pos)
	}
	return x, nil
}

func readDataset(c *cursor) (*Dataset, error) {
	d := &Dataset{Name: c.string()}

	d.Dtype = readDatatype(c)
	d.Layout = LayoutKind(c.uint8())

	rank := int(c.uint8())
	d.Dims = c.uint64s(rank)
	d.ChunkDims = c.uint64s(rank)

	d.FillValue = c.bytes(int(c.uint32()))

	nf := int(c.uint8())
	for i := 0; i < nf && c.err == nil; i++ {
		f := Filter{ID: c.uint16()}
		ncd := int(c.uint8())
		f.ClientData = make([]uint32, ncd)
		for j := 0; j < ncd; j++ {
			f.ClientData[j] = c.uint32()
		}
		d.Filters = append(d.Filters, f)
	}

	d.Unsupported = c.string()
	d.CompactData = c.bytes(int(c.uint32()))

	na := int(c.uint16())
	for i := 0; i < na && c.err == nil; i++ {
		d.Attrs = append(d.Attrs, readAttr(c))
	}

	nc := c.uint64()
	chunkBytes := uint64(rank*8 + 20)
	if c.err == nil && nc > uint64(len(c.data)-c.pos)/chunkBytes {
		return nil, fmt.Errorf("%w: chunk count %d exceeds stream", ErrCorruptIndex, nc)
	}
	chunks := make([]Chunk, 0, nc)
	for i := uint64(0); i < nc && c.err == nil; i++ {
		chunks = append(chunks, Chunk{
			Offset:     c.uint64s(rank),
			Address:    c.uint64(),
			Size:       c.uint64(),
			FilterMask: c.uint32(),
		})
	}
	if c.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, c.err)
	}

	d, err := newDataset(d, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return d, nil
}

func readAttr(c *cursor) Attr {
	a := Attr{Name: c.string()}
	a.Dtype = readDatatype(c)
	a.Dims = c.uint64s(int(c.uint8()))
	a.Raw = c.bytes(int(c.uint32()))
	return a
}

func readDatatype(c *cursor) Datatype {
	return Datatype{
		Class:     TypeClass(c.uint8()),
		Size:      c.uint32(),
		BigEndian: c.uint8() != 0,
		Signed:    c.uint8() != 0,
	}
}

// cursor reads the little-endian stream with a sticky error, mirroring
// the writer.
type cursor struct {
	data []byte
	pos  int
	err  error
}

func (c *cursor) bytes(n int) []byte {
	if c.err != nil || n == 0 {
		return nil
	}
	if n < 0 || c.pos+n > len(c.data) {
		c.err = fmt.Errorf("truncated at %d", c.pos)
		return nil
	}
	out := append([]byte(nil), c.data[c.pos:c.pos+n]...)
	c.pos += n
	return out
}

func (c *cursor) uint8() uint8 {
	b := c.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) uint16() uint16 {
	b := c.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *cursor) uint32() uint32 {
	b := c.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) uint64() uint64 {
	b := c.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *cursor) uint64s(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = c.uint64()
	}
	return out
}

func (c *cursor) string() string {
	n := int(c.uint16())
	return string(c.bytes(n))
}
