package importer

import (
	"strings"
	"sync"
	"time"

	"github.com/RBarbieri13/decant/internal/models"
)

// defaultCacheTTL is how long a successful import short-circuits repeats.
const defaultCacheTTL = 5 * time.Minute

// Cache is the in-process import cache keyed by normalized URL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*models.ImportCacheEntry
	ttl     time.Duration
	hits    int
	misses  int
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]*models.ImportCacheEntry),
		ttl:     ttl,
	}
}

// Get returns the live entry for a URL, expiring it lazily.
func (c *Cache) Get(rawURL string) (*models.ImportCacheEntry, bool) {
	key := NormalizeURL(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(entry.CachedAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry, true
}

// Put stores a successful import fingerprint.
func (c *Cache) Put(rawURL string, entry *models.ImportCacheEntry) {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[NormalizeURL(rawURL)] = entry
}

// Invalidate removes entries matching the pattern and returns how many were
// dropped. A pattern containing "*" matches as a glob over normalized URLs;
// anything else is an exact normalized-URL match.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.Contains(pattern, "*") {
		key := NormalizeURL(pattern)
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			return 1
		}
		return 0
	}

	dropped := 0
	for key := range c.entries {
		if globMatch(pattern, key) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Stats reports cache size and hit accounting.
func (c *Cache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := 0
	for _, entry := range c.entries {
		if time.Since(entry.CachedAt) <= c.ttl {
			live++
		}
	}
	return map[string]interface{}{
		"entries":    live,
		"hits":       c.hits,
		"misses":     c.misses,
		"ttlSeconds": int(c.ttl.Seconds()),
	}
}

// globMatch does simple "*"-wildcard matching without regexp.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	if parts[0] != "" && !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	middle := parts[1 : len(parts)-1]
	for _, part := range middle {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}

	return last == "" || strings.HasSuffix(s, last)
}
