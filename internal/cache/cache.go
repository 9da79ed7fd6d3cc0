// Package cache implements the in-memory fragment cache for server's
// repeated segment/manifest requests. spec.md §1 lists "on-disk caching
// of manifest fragments" as an out-of-scope external collaborator; this
// is deliberately in-memory only, so it stays inside that boundary
// while still avoiding re-fragmenting a hot segment on every request.
package cache

import "github.com/tetsuo/vodstream/internal/lru"

// Options configures a fragment Cache's capacity.
type Options struct {
	// MaxEntries bounds the number of cached byte blobs. Zero or
	// negative falls back to lru.DefaultOptions.
	MaxEntries int
}

// Cache is a capacity-bounded, process-wide cache of rendered resource
// bytes (playlists, init segments, media segments), keyed by their
// resource path.
type Cache struct {
	cache *lru.Cache[string, []byte]
}

// New creates a Cache with the given options.
func New(opts Options) *Cache {
	return &Cache{cache: lru.New[string, []byte](lru.Options{MaxEntries: opts.MaxEntries})}
}

// Get returns the cached bytes for key, if present.
func (c *Cache) Get(key string) ([]byte, bool) {
	return c.cache.Get(key)
}

// Insert stores data under key, evicting the least-recently-used entry
// on overflow.
func (c *Cache) Insert(key string, data []byte) {
	c.cache.Insert(key, data)
}
