package hidefix

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alexander-buerger-met-no/hidefix/idx"
)

// IndexCache keeps built indexes per path so repeated opens of the
// same file skip the metadata scan. Entries are revalidated against
// file size and modification time; concurrent first opens of one path
// scan once. The caller owns the cache and decides its scope; Open
// uses no cache unless one is passed with WithIndexCache.
type IndexCache struct {
	mu      sync.Mutex
	flight  singleflight.Group
	entries map[string]*idx.Index
}

// NewIndexCache creates an empty cache.
func NewIndexCache() *IndexCache {
	return &IndexCache{entries: map[string]*idx.Index{}}
}

// Index returns the cached index for path, scanning the file when the
// cache has no current entry.
func (c *IndexCache) Index(path string, log *zap.Logger) (*idx.Index, error) {
	if log == nil {
		log = zap.NewNop()
	}

	c.mu.Lock()
	if x, ok := c.entries[path]; ok && x.Matches() {
		c.mu.Unlock()
		return x, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(path, func() (interface{}, error) {
		x, err := idx.ScanFile(path, idx.WithLogger(log))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[path] = x
		c.mu.Unlock()
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*idx.Index), nil
}

// Purge drops all cached indexes.
func (c *IndexCache) Purge() {
	c.mu.Lock()
	c.entries = map[string]*idx.Index{}
	c.mu.Unlock()
}

// Len returns the number of cached indexes.
func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
