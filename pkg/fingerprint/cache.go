package fingerprint

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Cache memoizes fingerprints by exact SQL text. It is safe for concurrent
// use. A miss that races with another miss recomputes the same value.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Fingerprint

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Fingerprint)}
}

// Get returns the cached fingerprint of sql.
func (c *Cache) Get(sql string) (Fingerprint, bool) {
	c.mu.RLock()
	fp, ok := c.entries[sql]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return fp, ok
}

// Put stores fp for sql.
func (c *Cache) Put(sql string, fp Fingerprint) {
	c.mu.Lock()
	c.entries[sql] = fp
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries int   `json:"entries" yaml:"entries"`
	Hits    int64 `json:"hits" yaml:"hits"`
	Misses  int64 `json:"misses" yaml:"misses"`
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Entries: c.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Fingerprinter fingerprints SQL through a cache.
type Fingerprinter struct {
	cache  *Cache
	logger *slog.Logger
}

// NewFingerprinter creates a fingerprinter. A nil cache disables caching and
// a nil logger discards output.
func NewFingerprinter(cache *Cache, logger *slog.Logger) *Fingerprinter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fingerprinter{cache: cache, logger: logger}
}

// Fingerprint returns the fingerprint of sql. It is safe for concurrent use.
func (f *Fingerprinter) Fingerprint(sql string) Fingerprint {
	if f.cache != nil {
		if fp, ok := f.cache.Get(sql); ok {
			return fp
		}
	}

	fp, _, err := analyze(sql)
	if err != nil {
		f.logger.Debug("sql did not parse", "error", err, "sql", truncate(sql))
	}

	if f.cache != nil {
		f.cache.Put(sql, fp)
	}
	return fp
}

// Cache returns the cache in use, or nil.
func (f *Fingerprinter) Cache() *Cache { return f.cache }

func truncate(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
