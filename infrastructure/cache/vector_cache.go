package cache

import (
	"sync"

	"unimem/application/ports"
)

// VectorCache holds every memory's vector in process memory for brute-force search.
//
// All reads and writes go through one RWMutex, so a search scan never observes a
// half-inserted entry. There is no eviction and no capacity bound: the whole working
// set of vectors lives in memory, roughly 8 KiB per memory at 2048 float32 dimensions.
type VectorCache struct {
	mu      sync.RWMutex
	entries map[string]ports.IndexEntry
}

var _ ports.VectorIndex = (*VectorCache)(nil)

// NewVectorCache creates an empty cache
func NewVectorCache() *VectorCache {
	return &VectorCache{entries: make(map[string]ports.IndexEntry)}
}

// Insert adds or replaces an entry. The vector is copied so callers may reuse their slice.
func (c *VectorCache) Insert(entry ports.IndexEntry) {
	entry.Vector = entry.Vector.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.ID] = entry
}

// Remove deletes an entry; removing a missing id is a no-op.
func (c *VectorCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Get returns a copy of the entry for id.
func (c *VectorCache) Get(id string) (ports.IndexEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return ports.IndexEntry{}, false
	}
	entry.Vector = entry.Vector.Clone()
	return entry, true
}

// Len returns the number of cached vectors
func (c *VectorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ScanOwner visits ownerID's entries under the read lock. Other owners' entries are never passed to fn.
func (c *VectorCache) ScanOwner(ownerID string, fn func(entry ports.IndexEntry) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, entry := range c.entries {
		if entry.OwnerID != ownerID {
			continue
		}
		if !fn(entry) {
			return
		}
	}
}

// OwnerIDs returns the ids cached for ownerID
func (c *VectorCache) OwnerIDs(ownerID string) []string {
	var ids []string
	c.ScanOwner(ownerID, func(entry ports.IndexEntry) bool {
		ids = append(ids, entry.ID)
		return true
	})
	return ids
}

// replace swaps in a freshly built entry set.
func (c *VectorCache) replace(entries map[string]ports.IndexEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
}
