// Package reader serves hyperslab read requests against an indexed
// dataset. Chunks are fetched and decoded concurrently into disjoint
// regions of the output buffer, with a bounded cache of decoded chunks
// per reader.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alexander-buerger-met-no/hidefix/idx"
	"github.com/alexander-buerger-met-no/hidefix/internal/filter"
	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

const (
	// DefaultCacheSize bounds the decoded chunk cache per reader.
	DefaultCacheSize = 32 << 20

	// DefaultConcurrency bounds in-flight chunk fetches per request.
	DefaultConcurrency = 8
)

// Reader reads hyperslabs from one dataset. It is safe for concurrent
// use as long as the underlying byte source is.
type Reader struct {
	src      io.ReaderAt
	ds       *idx.Dataset
	pipeline *filter.Pipeline
	cache    *chunkCache
	flight   singleflight.Group
	workers  int
	log      *zap.Logger
}

type options struct {
	cacheSize   int64
	concurrency int
	logger      *zap.Logger
}

// Option configures a Reader.
type Option func(*options)

// WithCacheSize sets the decoded chunk cache budget in bytes. Zero
// disables caching.
func WithCacheSize(bytes int64) Option {
	return func(o *options) { o.cacheSize = bytes }
}

// WithConcurrency bounds how many chunks are fetched and decoded in
// parallel per request.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a reader for the dataset. Datasets outside the readable
// subset and datasets with unknown filters are rejected with
// idx.ErrUnsupported.
func New(src io.ReaderAt, ds *idx.Dataset, opts ...Option) (*Reader, error) {
	if !ds.Readable() {
		return nil, fmt.Errorf("%w: %s", idx.ErrUnsupported, ds.Unsupported)
	}

	o := options{
		cacheSize:   DefaultCacheSize,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	pipeline, err := filter.NewPipeline(pipelineMessage(ds.Filters))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", idx.ErrUnsupported, err)
	}

	return &Reader{
		src:      src,
		ds:       ds,
		pipeline: pipeline,
		cache:    newChunkCache(o.cacheSize),
		workers:  o.concurrency,
		log:      o.logger,
	}, nil
}

// pipelineMessage rebuilds the filter pipeline message the decode
// layer consumes from the serialized filter list.
func pipelineMessage(filters []idx.Filter) *message.FilterPipeline {
	if len(filters) == 0 {
		return nil
	}
	fp := &message.FilterPipeline{Version: 2}
	for _, f := range filters {
		fp.Filters = append(fp.Filters, message.FilterInfo{
			ID:         f.ID,
			ClientData: f.ClientData,
		})
	}
	return fp
}

// Dataset returns the dataset this reader serves.
func (r *Reader) Dataset() *idx.Dataset { return r.ds }

// Read reads the whole dataset.
func (r *Reader) Read(ctx context.Context) ([]byte, error) {
	return r.ReadSlice(ctx, idx.All())
}

// ReadSlice reads one hyperslab. The result holds the selected
// elements in row-major order with native little-endian values;
// unwritten chunks yield the fill value, or zero bytes when the
// container defines none.
func (r *Reader) ReadSlice(ctx context.Context, slab idx.Hyperslab) ([]byte, error) {
	slab, err := slab.Normalize(r.ds.Dims)
	if err != nil {
		return nil, err
	}

	elemSize := int(r.ds.Dtype.Size)
	out := make([]byte, slab.NumElements()*uint64(elemSize))
	if len(out) == 0 {
		return out, nil
	}

	if r.ds.Layout == idx.LayoutCompact {
		copyChunk(out, r.ds.CompactData, r.ds, make([]uint64, r.ds.Rank()), slab)
		r.swapToNative(out)
		return out, nil
	}

	refs, err := r.ds.ChunksIn(slab)
	if err != nil {
		return nil, err
	}

	prefilled := false
	for _, ref := range refs {
		if ref.Chunk == nil && !prefilled {
			fillBuffer(out, r.ds.FillValue)
			prefilled = true
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, ref := range refs {
		if ref.Chunk == nil {
			continue
		}
		ref := ref
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := r.chunkData(ref.Chunk)
			if err != nil {
				return err
			}
			copyChunk(out, data, r.ds, ref.Origin, slab)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.swapToNative(out)
	return out, nil
}

// chunkData returns the decoded bytes of one chunk, from cache when
// possible. Concurrent requests for the same chunk share one fetch.
func (r *Reader) chunkData(c *idx.Chunk) ([]byte, error) {
	if data, ok := r.cache.get(c.Address); ok {
		return data, nil
	}

	data, err, _ := r.flight.Do(fmt.Sprintf("%d", c.Address), func() (interface{}, error) {
		if data, ok := r.cache.get(c.Address); ok {
			return data, nil
		}
		decoded, err := r.fetchChunk(c)
		if err != nil {
			return nil, err
		}
		r.cache.put(c.Address, decoded)
		return decoded, nil
	})
	if err != nil {
		return nil, err
	}
	return data.([]byte), nil
}

func (r *Reader) fetchChunk(c *idx.Chunk) ([]byte, error) {
	raw := make([]byte, c.Size)
	if _, err := r.src.ReadAt(raw, int64(c.Address)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: chunk %v at address %d", idx.ErrTruncated, c.Offset, c.Address)
		}
		return nil, err
	}

	decoded, err := r.pipeline.Decode(raw, c.FilterMask)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %v at address %d: %v", idx.ErrDecode, c.Offset, c.Address, err)
	}

	if want := r.chunkByteSize(); uint64(len(decoded)) != want {
		return nil, fmt.Errorf("%w: chunk %v decoded to %d bytes, want %d",
			idx.ErrDecode, c.Offset, len(decoded), want)
	}
	return decoded, nil
}

// chunkByteSize is the decoded byte size of a full chunk.
func (r *Reader) chunkByteSize() uint64 {
	size := uint64(r.ds.Dtype.Size)
	for _, d := range r.ds.ChunkDims {
		size *= d
	}
	return size
}

// fillBuffer tiles the fill value over the buffer. A nil fill leaves
// the zero bytes in place.
func fillBuffer(buf, fill []byte) {
	if len(fill) == 0 {
		return
	}
	allZero := true
	for _, b := range fill {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return
	}
	for i := 0; i < len(buf); i += len(fill) {
		copy(buf[i:], fill)
	}
}

// swapToNative converts big-endian stored values in place. Strings
// and single-byte types are left alone.
func (r *Reader) swapToNative(buf []byte) {
	dt := r.ds.Dtype
	if !dt.BigEndian || dt.Size < 2 {
		return
	}
	if dt.Class != idx.ClassInteger && dt.Class != idx.ClassFloat {
		return
	}
	size := int(dt.Size)
	for i := 0; i+size <= len(buf); i += size {
		for a, b := i, i+size-1; a < b; a, b = a+1, b-1 {
			buf[a], buf[b] = buf[b], buf[a]
		}
	}
}
