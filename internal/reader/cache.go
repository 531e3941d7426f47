package reader

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"ddbridge/internal/schema"
)

// dictCache keeps recent metadata schema reads. Dictionary rows change only
// when the source system is transported, so entries live for a fixed TTL
// and the least recently used entry is evicted once maxItems is reached.
// Slices are copied in and out; callers own what they get.
type dictCache struct {
	mu    sync.Mutex
	items *lru.Cache
	ttl   time.Duration
	now   func() time.Time

	hits, misses int64
}

type dictEntry struct {
	specs   []schema.FieldSpec
	expires time.Time
}

func newDictCache(maxItems int, ttl time.Duration) *dictCache {
	return &dictCache{items: lru.New(maxItems), ttl: ttl, now: time.Now}
}

func (c *dictCache) get(key string) ([]schema.FieldSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	e := v.(dictEntry)
	if c.now().After(e.expires) {
		c.items.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return append([]schema.FieldSpec(nil), e.specs...), true
}

func (c *dictCache) set(key string, specs []schema.FieldSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, dictEntry{specs: append([]schema.FieldSpec(nil), specs...), expires: c.now().Add(c.ttl)})
}

// CacheStats reports metadata cache hits and misses.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Items  int   `json:"items"`
}

// EnableMetadataCache caches ReadMetadataSchema results for ttl. Empty
// results are not cached so a table whose dictionary rows arrive later is
// picked up on the next read.
func (r *Reader) EnableMetadataCache(maxItems int, ttl time.Duration) {
	if maxItems <= 0 || ttl <= 0 {
		r.cache = nil
		return
	}
	r.cache = newDictCache(maxItems, ttl)
}

// MetadataCacheStats returns zero stats when caching is disabled.
func (r *Reader) MetadataCacheStats() CacheStats {
	if r.cache == nil {
		return CacheStats{}
	}
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	return CacheStats{Hits: r.cache.hits, Misses: r.cache.misses, Items: r.cache.items.Len()}
}
