package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Cache implements ports.Cache in memory.
// Safe for concurrent use.
type Cache struct {
	data map[string]entry
	mu   sync.RWMutex
	now  func() time.Time
}

// NewCache creates a new in-memory cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Get retrieves a value from memory. Expired entries are removed lazily.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && cur.expires.Equal(e.expires) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, domain.ErrCacheMiss
	}

	// Copy on read so callers can't mutate the cached bytes.
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = e
	return nil
}

// Delete removes the entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
