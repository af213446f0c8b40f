package catalog

import "sync"

// CoverCache remembers cover URLs discovered while mapping product details, keyed by
// catalog id. Each lookup session owns its own cache.
type CoverCache struct {
	mu   sync.Mutex
	urls map[string]string
}

// NewCoverCache creates an empty cache.
func NewCoverCache() *CoverCache {
	return &CoverCache{urls: make(map[string]string)}
}

// Put records the cover URL for id. Blank values are ignored.
func (c *CoverCache) Put(id, coverURL string) {
	if id == "" || coverURL == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls[id] = coverURL
}

// Get returns the cover URL for id.
func (c *CoverCache) Get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.urls[id]
	return u, ok
}

// Len returns the number of cached URLs.
func (c *CoverCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.urls)
}
