package filter

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// A single shared decoder: DecodeAll is safe for concurrent use and
// avoids per-chunk decoder setup.
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// Zstd undoes the registered zstandard filter, id 32015.
type Zstd struct{}

func NewZstd() *Zstd { return &Zstd{} }

func (f *Zstd) ID() uint16 { return message.FilterZstd }

func (f *Zstd) Decode(input []byte) ([]byte, error) {
	output, err := zstdDecoder.DecodeAll(input, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return output, nil
}
