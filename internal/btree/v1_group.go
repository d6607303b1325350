// Package btree walks the version 1 B-trees that hold group
// membership. Chunk indexes have their own package.
package btree

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/heap"
)

var (
	treeSignature = []byte{'T', 'R', 'E', 'E'}
	snodSignature = []byte{'S', 'N', 'O', 'D'}
)

// GroupEntry is one named member of a group.
type GroupEntry struct {
	Name          string
	ObjectAddress uint64
	IsSoftLink    bool
	SoftTarget    string
}

// Symbol table entry cache types.
const (
	cacheTypeNone     uint32 = 0
	cacheTypeHardLink uint32 = 1
	cacheTypeSoftLink uint32 = 2
)

// ReadGroupEntries collects all entries of a version 1 group B-tree.
// Names come from the group's local heap. A node visited twice makes
// the tree malformed.
func ReadGroupEntries(r *binary.Reader, btreeAddr uint64, localHeap *heap.LocalHeap) ([]GroupEntry, error) {
	visited := map[uint64]struct{}{}
	return readGroupNode(r, btreeAddr, localHeap, visited)
}

func readGroupNode(r *binary.Reader, address uint64, localHeap *heap.LocalHeap, visited map[uint64]struct{}) ([]GroupEntry, error) {
	if _, ok := visited[address]; ok {
		return nil, fmt.Errorf("group B-tree node cycle at %d", address)
	}
	visited[address] = struct{}{}

	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading B-tree signature: %w", err)
	}
	if string(sig) != string(treeSignature) {
		return nil, fmt.Errorf("invalid B-tree signature: %q", sig)
	}

	nodeType, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if nodeType != 0 {
		return nil, fmt.Errorf("unexpected B-tree node type: %d", nodeType)
	}

	nodeLevel, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	entriesUsed, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}

	// Left and right sibling addresses.
	if _, err := nr.ReadOffset(); err != nil {
		return nil, err
	}
	if _, err := nr.ReadOffset(); err != nil {
		return nil, err
	}

	var entries []GroupEntry

	// Keys are heap offsets, interleaved with child pointers. Only the
	// child pointers matter for collecting members.
	for i := uint16(0); i < entriesUsed; i++ {
		if _, err := nr.ReadLength(); err != nil {
			return nil, err
		}
		childAddr, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}

		var childEntries []GroupEntry
		if nodeLevel == 0 {
			childEntries, err = readSymbolTableNode(r, childAddr, localHeap)
		} else {
			childEntries, err = readGroupNode(r, childAddr, localHeap, visited)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, childEntries...)
	}

	return entries, nil
}

func readSymbolTableNode(r *binary.Reader, address uint64, localHeap *heap.LocalHeap) ([]GroupEntry, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table node signature: %w", err)
	}
	if string(sig) != string(snodSignature) {
		return nil, fmt.Errorf("invalid symbol table node signature: %q", sig)
	}

	version, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("unsupported symbol table node version: %d", version)
	}
	nr.Skip(1)

	numSymbols, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}

	entries := make([]GroupEntry, 0, numSymbols)
	for i := uint16(0); i < numSymbols; i++ {
		entry, err := readSymbolTableEntry(nr, localHeap)
		if err != nil {
			return nil, fmt.Errorf("reading symbol table entry %d: %w", i, err)
		}
		if entry.Name != "" {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

func readSymbolTableEntry(r *binary.Reader, localHeap *heap.LocalHeap) (GroupEntry, error) {
	var entry GroupEntry

	nameOffset, err := r.ReadOffset()
	if err != nil {
		return entry, err
	}
	objAddr, err := r.ReadOffset()
	if err != nil {
		return entry, err
	}
	cacheType, err := r.ReadUint32()
	if err != nil {
		return entry, err
	}
	r.Skip(4)

	scratch, err := r.ReadBytes(16)
	if err != nil {
		return entry, err
	}

	entry.Name = localHeap.GetString(nameOffset)
	entry.ObjectAddress = objAddr

	if cacheType == cacheTypeSoftLink {
		// The scratch pad holds the heap offset of the link target.
		linkOffset := uint64(scratch[0]) | uint64(scratch[1])<<8 |
			uint64(scratch[2])<<16 | uint64(scratch[3])<<24
		entry.IsSoftLink = true
		entry.SoftTarget = localHeap.GetString(linkOffset)
		entry.ObjectAddress = 0
	}

	return entry, nil
}
