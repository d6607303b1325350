package idx

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/alexander-buerger-met-no/hidefix/internal/binary"
	"github.com/alexander-buerger-met-no/hidefix/internal/btree"
	"github.com/alexander-buerger-met-no/hidefix/internal/chunkdir"
	"github.com/alexander-buerger-met-no/hidefix/internal/heap"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
	"github.com/alexander-buerger-met-no/hidefix/internal/object"
	"github.com/alexander-buerger-met-no/hidefix/internal/superblock"
)

type scanOptions struct {
	logger *zap.Logger
}

// Option configures a scan.
type Option func(*scanOptions)

// WithLogger sets the logger used during scanning. The default
// discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *scanOptions) { o.logger = l }
}

// Scan walks the container metadata in src and builds the index. The
// source is only read during the scan; the returned index holds no
// reference to it.
func Scan(src io.ReaderAt, opts ...Option) (*Index, error) {
	o := scanOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	sb, err := superblock.Read(src)
	if err != nil {
		switch {
		case errors.Is(err, superblock.ErrNotHDF5):
			return nil, fmt.Errorf("%w: %v", ErrNotHDF5, err)
		case errors.Is(err, superblock.ErrInvalidSuperblock):
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		case errors.Is(err, superblock.ErrUnsupportedVersion):
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		default:
			return nil, err
		}
	}

	s := &scanner{
		r:       binary.NewReader(src, sb.ReaderConfig()),
		sb:      sb,
		log:     o.logger,
		visited: map[uint64]struct{}{},
	}

	idx := newIndex()
	if err := s.run(idx); err != nil {
		return nil, err
	}

	s.log.Debug("scan complete",
		zap.Int("datasets", idx.Len()),
		zap.Uint8("superblock", sb.Version))
	return idx, nil
}

type scanner struct {
	r       *binary.Reader
	sb      *superblock.Superblock
	log     *zap.Logger
	visited map[uint64]struct{}
}

type groupWork struct {
	address uint64
	path    string
}

func (s *scanner) run(idx *Index) error {
	stack := []groupWork{{address: s.sb.RootGroupAddress, path: ""}}

	for len(stack) > 0 {
		work := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := s.visited[work.address]; seen {
			return fmt.Errorf("%w: object at %d linked twice", ErrMalformed, work.address)
		}
		s.visited[work.address] = struct{}{}

		hdr, err := object.Read(s.r, work.address)
		if err != nil {
			if errors.Is(err, object.ErrUnsupportedVersion) {
				return fmt.Errorf("%w: %v", ErrUnsupported, err)
			}
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		if hdr.IsDataset() {
			ds, err := s.buildDataset(work.path, hdr)
			if err != nil {
				return &VariableError{Name: work.path, Err: err}
			}
			idx.add(ds)
			continue
		}

		if ai := hdr.AttributeInfo(); ai != nil && ai.UsesDenseStorage(s.r) {
			return fmt.Errorf("%w: group %q uses dense attribute storage", ErrUnsupported, work.path)
		}
		for _, attr := range hdr.Attributes() {
			a := convertAttribute(attr)
			if work.path != "" {
				a.Name = work.path + "/" + a.Name
			}
			idx.attrs = append(idx.attrs, a)
		}

		children, err := s.groupMembers(hdr)
		if err != nil {
			return fmt.Errorf("group %q: %w", work.path, err)
		}
		for _, child := range children {
			path := child.name
			if work.path != "" {
				path = work.path + "/" + child.name
			}
			stack = append(stack, groupWork{address: child.address, path: path})
		}
	}

	return nil
}

type childLink struct {
	name    string
	address uint64
}

// groupMembers lists the hard-linked children of a group, whether the
// group stores them as a symbol table B-tree or as link messages.
func (s *scanner) groupMembers(hdr *object.Header) ([]childLink, error) {
	var children []childLink

	if st := hdr.SymbolTable(); st != nil {
		localHeap, err := heap.ReadLocalHeap(s.r, st.LocalHeapAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: local heap: %v", ErrMalformed, err)
		}
		entries, err := btree.ReadGroupEntries(s.r, st.BTreeAddress, localHeap)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for _, e := range entries {
			if e.IsSoftLink {
				s.log.Debug("skipping soft link",
					zap.String("name", e.Name), zap.String("target", e.SoftTarget))
				continue
			}
			children = append(children, childLink{name: e.Name, address: e.ObjectAddress})
		}
	}

	for _, link := range hdr.Links() {
		if !link.IsHard() {
			s.log.Debug("skipping non-hard link",
				zap.String("name", link.Name), zap.Uint8("type", uint8(link.LinkType)))
			continue
		}
		children = append(children, childLink{name: link.Name, address: link.ObjectAddress})
	}

	// Densely stored links live in a fractal heap the scanner does not
	// walk. Failing beats silently losing the group's members.
	if li := hdr.LinkInfo(); li != nil && li.UsesDenseStorage(s.r) && len(children) == 0 {
		return nil, fmt.Errorf("%w: dense link storage", ErrUnsupported)
	}

	return children, nil
}

func (s *scanner) buildDataset(name string, hdr *object.Header) (*Dataset, error) {
	space := hdr.Dataspace()
	if space == nil {
		return nil, fmt.Errorf("%w: dataset without dataspace", ErrMalformed)
	}
	dtype := hdr.Datatype()
	if dtype == nil {
		return nil, fmt.Errorf("%w: dataset without datatype", ErrMalformed)
	}
	layout := hdr.DataLayout()
	if layout == nil {
		return nil, fmt.Errorf("%w: dataset without data layout", ErrMalformed)
	}

	d := &Dataset{
		Name: name,
		Dims: append([]uint64(nil), space.Dimensions...),
	}

	var reason string
	d.Dtype, reason = convertDatatype(dtype)
	d.Unsupported = reason

	if fv := hdr.FillValue(); fv != nil && fv.IsDefined && len(fv.Value) == int(d.Dtype.Size) {
		d.FillValue = append([]byte(nil), fv.Value...)
	}

	if fp := hdr.FilterPipeline(); fp != nil {
		for _, fi := range fp.Filters {
			d.Filters = append(d.Filters, Filter{
				ID:         fi.ID,
				ClientData: append([]uint32(nil), fi.ClientData...),
			})
		}
	}

	for _, attr := range hdr.Attributes() {
		d.Attrs = append(d.Attrs, convertAttribute(attr))
	}
	if ai := hdr.AttributeInfo(); ai != nil && ai.UsesDenseStorage(s.r) && d.Unsupported == "" {
		d.Unsupported = "dense attribute storage"
	}

	var chunks []Chunk

	switch {
	case layout.IsCompact():
		d.Layout = LayoutCompact
		d.ChunkDims = append([]uint64(nil), d.Dims...)
		d.CompactData = append([]byte(nil), layout.CompactData...)

	case layout.IsContiguous():
		d.Layout = LayoutContiguous
		d.ChunkDims = append([]uint64(nil), d.Dims...)
		if !s.r.IsUndefinedOffset(layout.Address) && d.NumElements() > 0 {
			chunks = append(chunks, Chunk{
				Offset:  make([]uint64, len(d.Dims)),
				Address: layout.Address,
				Size:    d.NumElements() * uint64(d.Dtype.Size),
			})
		}

	case layout.IsChunked():
		d.Layout = LayoutChunked
		d.ChunkDims = append([]uint64(nil), layout.ChunkDims...)
		raw, err := chunkdir.Read(s.r, layout, chunkdir.Params{
			Dims:        d.Dims,
			ChunkDims:   d.ChunkDims,
			ElementSize: d.Dtype.Size,
			Filtered:    len(d.Filters) > 0,
		})
		if err != nil {
			if errors.Is(err, chunkdir.ErrUnsupported) {
				if d.Unsupported == "" {
					d.Unsupported = err.Error()
				}
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		chunks = make([]Chunk, len(raw))
		for i, c := range raw {
			chunks[i] = Chunk{
				Offset:     c.Offset,
				Address:    c.Address,
				Size:       c.Size,
				FilterMask: c.FilterMask,
			}
		}

	default:
		// Virtual datasets and newer layout classes are listed but
		// not indexed; the rest of the file stays readable.
		d.ChunkDims = append([]uint64(nil), d.Dims...)
		if d.Unsupported == "" {
			d.Unsupported = fmt.Sprintf("layout class %d not indexed", layout.Class)
		}
	}

	if eof := s.sb.EOFAddress; eof > 0 && !s.r.IsUndefinedOffset(eof) {
		for i := range chunks {
			if chunks[i].Address+chunks[i].Size > eof {
				return nil, fmt.Errorf("%w: chunk at %v ends at %d past end of file %d",
					ErrTruncated, chunks[i].Offset,
					chunks[i].Address+chunks[i].Size, eof)
			}
		}
	}

	d, err := newDataset(d, chunks)
	if err != nil {
		return nil, err
	}

	s.log.Debug("indexed dataset",
		zap.String("name", name),
		zap.Uint64s("dims", d.Dims),
		zap.Int("chunks", d.NumChunks()),
		zap.String("class", d.Dtype.Class.String()))
	return d, nil
}

// convertDatatype reduces a datatype message to the index
// representation. The second return names the unsupported feature for
// types outside the readable subset, empty otherwise.
func convertDatatype(dt *message.Datatype) (Datatype, string) {
	out := Datatype{
		Size:      dt.Size,
		BigEndian: dt.BigEndian(),
		Signed:    dt.Signed,
	}

	switch {
	case dt.IsInteger():
		out.Class = ClassInteger
	case dt.IsFloat():
		out.Class = ClassFloat
	case dt.IsVarLen() && dt.IsVarLenString:
		out.Class = ClassVarLenString
	case dt.IsString():
		out.Class = ClassString
	default:
		out.Class = ClassOther
		return out, fmt.Sprintf("datatype class %d not readable", dt.Class)
	}

	if out.Size == 0 {
		return out, "zero-size datatype"
	}
	return out, ""
}

func convertAttribute(attr *message.Attribute) Attr {
	a := Attr{
		Name: attr.Name,
		Raw:  append([]byte(nil), attr.Data...),
	}
	if attr.Datatype != nil {
		a.Dtype, _ = convertDatatype(attr.Datatype)
	}
	if attr.Dataspace != nil {
		a.Dims = append([]uint64(nil), attr.Dataspace.Dimensions...)
	}
	return a
}
