package router

import "sync"

// LeaderCache holds the last known leader. It is shared by every router of a
// client and passed in at construction, so independent clients (and tests) use
// independent caches.
type LeaderCache struct {
	mu     sync.RWMutex
	leader uint64
	known  bool
}

// NewLeaderCache creates an empty cache.
func NewLeaderCache() *LeaderCache {
	return &LeaderCache{}
}

// Get returns the cached leader. The second return value is false if no leader is known.
func (c *LeaderCache) Get() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leader, c.known
}

// Set stores leader as the known leader (last writer wins).
func (c *LeaderCache) Set(leader uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leader = leader
	c.known = true
}

// Invalidate forgets the cached leader if it still is expected. It returns true if
// the cache was invalidated.
func (c *LeaderCache) Invalidate(expected uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known || c.leader != expected {
		return false
	}
	c.leader = 0
	c.known = false
	return true
}
