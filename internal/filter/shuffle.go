package filter

import (
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// Shuffle undoes the byte shuffle filter, id 2. Shuffled chunks group
// byte 0 of every element, then byte 1, and so on.
type Shuffle struct {
	elemSize int
}

// NewShuffle builds a shuffle filter. Client data carries the element
// size in bytes.
func NewShuffle(clientData []uint32) *Shuffle {
	elemSize := 1
	if len(clientData) > 0 && clientData[0] > 0 {
		elemSize = int(clientData[0])
	}
	return &Shuffle{elemSize: elemSize}
}

func (f *Shuffle) ID() uint16 { return message.FilterShuffle }

func (f *Shuffle) Decode(input []byte) ([]byte, error) {
	if f.elemSize <= 1 {
		return input, nil
	}

	numElems := len(input) / f.elemSize
	if numElems == 0 {
		return input, nil
	}

	output := make([]byte, len(input))
	for j := 0; j < f.elemSize; j++ {
		plane := input[j*numElems:]
		for i := 0; i < numElems; i++ {
			output[i*f.elemSize+j] = plane[i]
		}
	}
	// Trailing bytes that do not form a whole element pass through.
	copy(output[numElems*f.elemSize:], input[numElems*f.elemSize:])

	return output, nil
}
