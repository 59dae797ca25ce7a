package projection

import (
	"sync"

	"disputeSync/internal/model"
)

// Cache holds the last fetched profile per account. Entries never expire;
// they are dropped by Invalidate.
type Cache struct {
	mu          sync.RWMutex
	profiles    map[string]*model.Profile
	generations map[string]uint64
}

func NewCache() *Cache {
	return &Cache{
		profiles:    make(map[string]*model.Profile),
		generations: make(map[string]uint64),
	}
}

func (c *Cache) Get(account string) (*model.Profile, bool) {
	c.mu.RLock()
	p, ok := c.profiles[model.AddressKey(account)]
	c.mu.RUnlock()
	return p, ok
}

// Generation returns a token that changes on every invalidation of account.
func (c *Cache) Generation(account string) uint64 {
	c.mu.RLock()
	gen := c.generations[model.AddressKey(account)]
	c.mu.RUnlock()
	return gen
}

// SetIfCurrent stores p unless account was invalidated since gen was taken.
// A fetch that raced with a write must not repopulate the cache.
func (c *Cache) SetIfCurrent(account string, p *model.Profile, gen uint64) bool {
	key := model.AddressKey(account)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != gen {
		return false
	}
	c.profiles[key] = p
	return true
}

func (c *Cache) Invalidate(account string) {
	key := model.AddressKey(account)
	c.mu.Lock()
	delete(c.profiles, key)
	c.generations[key]++
	c.mu.Unlock()
}
