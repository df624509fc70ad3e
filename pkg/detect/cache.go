package detect

import (
	"sync"
)

// HintCache caches detection results per host to avoid repeated inspection
type HintCache struct {
	mu    sync.RWMutex
	cache map[string]DetectionResult
}

// NewHintCache creates a new hint cache
func NewHintCache() *HintCache {
	return &HintCache{
		cache: make(map[string]DetectionResult),
	}
}

// Get retrieves a cached detection result for a host
func (c *HintCache) Get(host string) (DetectionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.cache[host]
	return result, ok
}

// Set stores a detection result for a host
func (c *HintCache) Set(host string, result DetectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[host] = result
}

// Clear removes all cached entries
func (c *HintCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]DetectionResult)
}

// Size returns the number of cached entries
func (c *HintCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
