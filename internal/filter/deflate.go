package filter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// Deflate undoes the deflate (zlib) filter, id 1.
type Deflate struct {
	level int
}

// NewDeflate builds a deflate filter. Client data carries the
// compression level, which only matters for writing.
func NewDeflate(clientData []uint32) *Deflate {
	level := zlib.DefaultCompression
	if len(clientData) > 0 {
		level = int(clientData[0])
	}
	return &Deflate{level: level}
}

func (f *Deflate) ID() uint16 { return message.FilterDeflate }

func (f *Deflate) Decode(input []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()

	output, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return output, nil
}
