package ssi

import "sync"

// Cache keeps the wallet's DIDs in memory by DID and by verkey. Inbound
// messages are mapped to connections with the verkey lookup.
type Cache struct {
	byDID map[string]*DID
	byKey map[string]*DID
	sync.RWMutex
}

// Add adds or replaces the DID.
func (c *Cache) Add(d *DID) {
	c.Lock()
	defer c.Unlock()

	if c.byDID == nil {
		c.byDID = make(map[string]*DID)
		c.byKey = make(map[string]*DID)
	}
	c.byDID[d.DID] = d
	c.byKey[d.Verkey] = d
}

// Get returns the DID by its name or nil.
func (c *Cache) Get(s string) *DID {
	c.RLock()
	defer c.RUnlock()
	return c.byDID[s]
}

// GetByKey returns the DID by its verkey or nil.
func (c *Cache) GetByKey(vk string) *DID {
	c.RLock()
	defer c.RUnlock()
	return c.byKey[vk]
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.Lock()
	defer c.Unlock()
	c.byDID = nil
	c.byKey = nil
}
