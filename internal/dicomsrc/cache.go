package dicomsrc

import "sync"

// Cache provides thread-safe caching of loaded instances to avoid parsing
// the same file twice.
//
// Instances are keyed by the exact path string given to Load. Different
// paths to the same file (relative vs absolute) are separate entries.
// Entries stay in memory until Evict or Clear is called.
//
// Only successful loads are cached.
type Cache struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		instances: make(map[string]*Instance),
	}
}

// Load returns the cached instance for path or reads it from disk.
func (c *Cache) Load(path string) (*Instance, error) {
	c.mu.RLock()
	if in, ok := c.instances[path]; ok {
		c.mu.RUnlock()
		return in, nil
	}
	c.mu.RUnlock()

	in, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.instances[path] = in
	c.mu.Unlock()

	return in, nil
}

// Len returns the number of cached instances.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instances)
}

// Clear removes every cached instance.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.instances = make(map[string]*Instance)
	c.mu.Unlock()
}

// Evict removes the instance cached for path, if any.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.instances, path)
	c.mu.Unlock()
}
