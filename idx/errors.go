package idx

import (
	"errors"
	"fmt"
)

var (
	// ErrNotHDF5 means the byte source carries no HDF5 signature.
	ErrNotHDF5 = errors.New("not an HDF5 container")

	// ErrMalformed means the container violates its own structure:
	// impossible addresses, cyclic metadata, misaligned chunks.
	ErrMalformed = errors.New("malformed container")

	// ErrUnsupported means the container uses a feature outside the
	// indexable subset, like variable-length or compound datatypes.
	ErrUnsupported = errors.New("unsupported feature")

	// ErrTruncated means a structure declares more bytes than the
	// source provides.
	ErrTruncated = errors.New("truncated container")

	// ErrOutOfBounds means a requested hyperslab leaves the dataset
	// extents.
	ErrOutOfBounds = errors.New("request out of bounds")

	// ErrDecode means a chunk failed its filter pipeline or checksum.
	ErrDecode = errors.New("chunk decode failed")

	// ErrCorruptIndex means a serialized index failed validation.
	ErrCorruptIndex = errors.New("corrupt serialized index")
)

// VariableError ties an error to the dataset it occurred in.
type VariableError struct {
	Name string
	Err  error
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("variable %q: %v", e.Name, e.Err)
}

func (e *VariableError) Unwrap() error { return e.Err }
