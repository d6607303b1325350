// Package object parses HDF5 object headers. An object header is the
// bag of messages describing a group or dataset: dataspace, datatype,
// layout, filters, fill value, attributes and group links.
package object

import (
	"errors"
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// SignatureV2 marks a version 2 object header.
var SignatureV2 = []byte{'O', 'H', 'D', 'R'}

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
)

// Header is a parsed object header.
type Header struct {
	Version uint8

	// Address is the file address the header was read from.
	Address uint64

	Flags    uint8
	RefCount uint32

	Messages []message.Message
}

// Read parses the object header at the given address. Continuation
// blocks are followed; a block visited twice makes the header
// malformed.
func Read(r *binary.Reader, address uint64) (*Header, error) {
	hr := r.At(int64(address))

	peek, err := hr.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}

	if string(peek) == string(SignatureV2) {
		return readV2(hr, address)
	}
	if peek[0] == 1 {
		return readV1(hr, address)
	}

	return nil, fmt.Errorf("%w: unknown format at address %d", ErrInvalidHeader, address)
}

// GetMessage returns the first message of the given type, or nil.
func (h *Header) GetMessage(typ message.Type) message.Message {
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			return msg
		}
	}
	return nil
}

// GetMessages returns all messages of the given type.
func (h *Header) GetMessages(typ message.Type) []message.Message {
	var result []message.Message
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			result = append(result, msg)
		}
	}
	return result
}

// Dataspace returns the dataspace message, or nil.
func (h *Header) Dataspace() *message.Dataspace {
	if msg := h.GetMessage(message.TypeDataspace); msg != nil {
		return msg.(*message.Dataspace)
	}
	return nil
}

// Datatype returns the datatype message, or nil.
func (h *Header) Datatype() *message.Datatype {
	if msg := h.GetMessage(message.TypeDatatype); msg != nil {
		return msg.(*message.Datatype)
	}
	return nil
}

// DataLayout returns the data layout message, or nil.
func (h *Header) DataLayout() *message.DataLayout {
	if msg := h.GetMessage(message.TypeDataLayout); msg != nil {
		return msg.(*message.DataLayout)
	}
	return nil
}

// FilterPipeline returns the filter pipeline message, or nil.
func (h *Header) FilterPipeline() *message.FilterPipeline {
	if msg := h.GetMessage(message.TypeFilterPipeline); msg != nil {
		return msg.(*message.FilterPipeline)
	}
	return nil
}

// FillValue returns the fill value message, or nil.
func (h *Header) FillValue() *message.FillValue {
	if msg := h.GetMessage(message.TypeFillValue); msg != nil {
		return msg.(*message.FillValue)
	}
	return nil
}

// SymbolTable returns the symbol table message, or nil.
func (h *Header) SymbolTable() *message.SymbolTable {
	if msg := h.GetMessage(message.TypeSymbolTable); msg != nil {
		return msg.(*message.SymbolTable)
	}
	return nil
}

// LinkInfo returns the link info message, or nil.
func (h *Header) LinkInfo() *message.LinkInfo {
	if msg := h.GetMessage(message.TypeLinkInfo); msg != nil {
		return msg.(*message.LinkInfo)
	}
	return nil
}

// AttributeInfo returns the attribute info message, or nil.
func (h *Header) AttributeInfo() *message.AttributeInfo {
	if msg := h.GetMessage(message.TypeAttributeInfo); msg != nil {
		return msg.(*message.AttributeInfo)
	}
	return nil
}

// Links returns all link messages.
func (h *Header) Links() []*message.Link {
	var links []*message.Link
	for _, msg := range h.GetMessages(message.TypeLink) {
		links = append(links, msg.(*message.Link))
	}
	return links
}

// Attributes returns all attribute messages.
func (h *Header) Attributes() []*message.Attribute {
	var attrs []*message.Attribute
	for _, msg := range h.GetMessages(message.TypeAttribute) {
		attrs = append(attrs, msg.(*message.Attribute))
	}
	return attrs
}

// IsGroup reports whether the header describes a group.
func (h *Header) IsGroup() bool {
	return h.GetMessage(message.TypeSymbolTable) != nil ||
		h.GetMessage(message.TypeLink) != nil ||
		h.GetMessage(message.TypeLinkInfo) != nil ||
		h.GetMessage(message.TypeGroupInfo) != nil
}

// IsDataset reports whether the header describes a dataset.
func (h *Header) IsDataset() bool {
	return h.GetMessage(message.TypeDataLayout) != nil
}
