// Package module_cache keeps module lists of processes keyed by identity, so
// repeated lookups against the same process do not re-walk its memory map.
package module_cache

import (
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"memkit/process"
)

// DefaultCapacity is the number of module lists kept before eviction
const DefaultCapacity = 100

// Key identifies one process incarnation. A restarted process gets a new
// StartTime; a process that loaded or unloaded images gets a new ModuleCount.
type Key struct {
	StartTime   int64
	PID         process.ProcessID
	ModuleCount int
}

// Cache is safe for concurrent use
type Cache struct {
	mu    sync.Mutex
	cache *lru.Cache[Key, []process.Module]
}

// New returns a cache holding at most capacity module lists
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	// lru.New only fails on a non-positive size
	cache, _ := lru.New[Key, []process.Module](capacity)
	return &Cache{cache: cache}
}

// Get returns a copy of the cached list for key
func (c *Cache) Get(key Key) ([]process.Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	modules, ok := c.cache.Get(key)
	return slices.Clone(modules), ok
}

func (c *Cache) Add(key Key, modules []process.Module) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, slices.Clone(modules))
}

// GetOrLoad returns the cached list for key or stores the result of load.
// The lock is held while loading so one process is enumerated once. Callers
// always get their own copy.
func (c *Cache) GetOrLoad(key Key, load func() ([]process.Module, error)) ([]process.Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if modules, ok := c.cache.Get(key); ok {
		return slices.Clone(modules), nil
	}

	modules, err := load()
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, modules)
	return slices.Clone(modules), nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
}
