package filter

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// Fletcher32 verifies the fletcher32 checksum filter, id 3. The
// checksum is appended to the chunk as four little-endian bytes.
type Fletcher32 struct{}

func NewFletcher32() *Fletcher32 { return &Fletcher32{} }

func (f *Fletcher32) ID() uint16 { return message.FilterFletcher32 }

func (f *Fletcher32) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("fletcher32: input too short for checksum")
	}

	data := input[:len(input)-4]
	stored := binary.LittleEndian.Uint32(input[len(input)-4:])

	if computed := binpkg.Fletcher32(data); computed != stored {
		return nil, fmt.Errorf("fletcher32: checksum mismatch (stored=0x%08x computed=0x%08x)",
			stored, computed)
	}
	return data, nil
}
