package hidefix

import (
	"go.uber.org/zap"

	"github.com/alexander-buerger-met-no/hidefix/reader"
)

type options struct {
	logger      *zap.Logger
	cacheSize   int64
	concurrency int
	indexCache  *IndexCache
}

func defaultOptions() options {
	return options{
		logger:      zap.NewNop(),
		cacheSize:   reader.DefaultCacheSize,
		concurrency: reader.DefaultConcurrency,
	}
}

// Option configures Open and OpenMulti.
type Option func(*options)

// WithLogger sets the logger for scanning and reading. The default
// discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithChunkCache sets the decoded chunk cache budget per variable, in
// bytes. Zero disables chunk caching.
func WithChunkCache(bytes int64) Option {
	return func(o *options) { o.cacheSize = bytes }
}

// WithConcurrency bounds how many chunks each read request fetches in
// parallel.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithIndexCache makes Open look up and store indexes in the given
// cache instead of scanning on every open. Without it every Open
// scans the container.
func WithIndexCache(c *IndexCache) Option {
	return func(o *options) { o.indexCache = c }
}
