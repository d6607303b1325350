package message

import (
	"fmt"

	binpkg "github.com/alexander-buerger-met-no/hidefix/internal/binary"
)

// SymbolTable is a symbol table message (type 0x0011). Version 1
// object headers use it to point at the B-tree and local heap that
// define group membership.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func parseSymbolTable(data []byte, r *binpkg.Reader) (*SymbolTable, error) {
	osize := r.OffsetSize()
	if len(data) < 2*osize {
		return nil, fmt.Errorf("symbol table message too short")
	}
	return &SymbolTable{
		BTreeAddress:     binpkg.DecodeUint(data[0:osize], osize, r.ByteOrder()),
		LocalHeapAddress: binpkg.DecodeUint(data[osize:2*osize], osize, r.ByteOrder()),
	}, nil
}
