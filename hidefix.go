// Package hidefix reads HDF5 and netCDF4 containers through a
// pre-built chunk index. Opening a file scans its metadata once; after
// that every read goes straight to the chunk bytes, without locks
// around the container metadata, so concurrent reads scale with the
// underlying storage.
//
// The index itself is serializable: it can be stored next to the data
// and reused across processes, skipping the metadata scan entirely.
package hidefix

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/alexander-buerger-met-no/hidefix/idx"
	"github.com/alexander-buerger-met-no/hidefix/reader"
)

// File is an indexed container open for reading. It is safe for
// concurrent use.
type File struct {
	path  string
	src   io.ReaderAt
	close func() error
	index *idx.Index
	opts  options

	mu      sync.Mutex
	readers map[string]*reader.Reader
}

// Open opens and indexes the container at path. Passing an IndexCache
// with WithIndexCache skips the scan when the cache holds a current
// index for the path.
func Open(path string, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var index *idx.Index
	if o.indexCache != nil {
		index, err = o.indexCache.Index(path, o.logger)
	} else {
		index, err = idx.ScanFile(path, idx.WithLogger(o.logger))
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{
		path:    path,
		src:     f,
		close:   f.Close,
		index:   index,
		opts:    o,
		readers: map[string]*reader.Reader{},
	}, nil
}

// OpenIndexed opens a byte source with an already built index, for
// deserialized indexes and non-file sources.
func OpenIndexed(src io.ReaderAt, index *idx.Index, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &File{
		path:    index.Origin.Path,
		src:     src,
		index:   index,
		opts:    o,
		readers: map[string]*reader.Reader{},
	}, nil
}

// Close releases the underlying file. Reads in flight on other
// goroutines must be finished first.
func (f *File) Close() error {
	if f.close != nil {
		return f.close()
	}
	return nil
}

// Path returns the path the file was opened from.
func (f *File) Path() string { return f.path }

// Index returns the chunk index.
func (f *File) Index() *idx.Index { return f.index }

// Variables returns all dataset names in lexical order.
func (f *File) Variables() []string { return f.index.Datasets() }

// Dataset returns the named dataset's index entry, or nil.
func (f *File) Dataset(name string) *idx.Dataset { return f.index.Dataset(name) }

// Reader returns the chunk reader for one variable, creating it on
// first use. Readers share the file's byte source but have their own
// chunk cache.
func (f *File) Reader(name string) (*reader.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.readers[name]; ok {
		return r, nil
	}

	ds := f.index.Dataset(name)
	if ds == nil {
		return nil, fmt.Errorf("variable %q not found", name)
	}

	r, err := reader.New(f.src, ds,
		reader.WithCacheSize(f.opts.cacheSize),
		reader.WithConcurrency(f.opts.concurrency),
		reader.WithLogger(f.opts.logger))
	if err != nil {
		return nil, &idx.VariableError{Name: name, Err: err}
	}
	f.readers[name] = r
	return r, nil
}

// Read reads a whole variable.
func (f *File) Read(ctx context.Context, name string) ([]byte, error) {
	return f.ReadSlice(ctx, name, idx.All())
}

// ReadSlice reads one hyperslab of a variable as raw little-endian
// bytes.
func (f *File) ReadSlice(ctx context.Context, name string, slab idx.Hyperslab) ([]byte, error) {
	r, err := f.Reader(name)
	if err != nil {
		return nil, err
	}
	return r.ReadSlice(ctx, slab)
}

// Float64s reads a hyperslab of a numeric variable widened to float64.
func (f *File) Float64s(ctx context.Context, name string, slab idx.Hyperslab) ([]float64, error) {
	r, err := f.Reader(name)
	if err != nil {
		return nil, err
	}
	return r.Float64s(ctx, slab)
}

// Strings reads a hyperslab of a string variable.
func (f *File) Strings(ctx context.Context, name string, slab idx.Hyperslab) ([]string, error) {
	r, err := f.Reader(name)
	if err != nil {
		return nil, err
	}
	return r.Strings(ctx, slab)
}

// Values reads a hyperslab decoded as a slice of T. The size of T
// must match the variable's element size.
func Values[T reader.Scalar](ctx context.Context, f *File, name string, slab idx.Hyperslab) ([]T, error) {
	r, err := f.Reader(name)
	if err != nil {
		return nil, err
	}
	return reader.Values[T](ctx, r, slab)
}

// GlobalAttr returns a global attribute, or nil.
func (f *File) GlobalAttr(name string) *idx.Attr {
	return f.index.Attr(name)
}

// Attr returns an attribute of a variable, or nil.
func (f *File) Attr(name, attr string) *idx.Attr {
	ds := f.index.Dataset(name)
	if ds == nil {
		return nil
	}
	return ds.Attr(attr)
}
