package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Cache implements ports.Cache using Redis, so several arepl instances can
// share resource-scoped data such as parsed env files.
type Cache struct {
	client *backend.Client
	prefix string
}

type Option func(*Cache)

// WithPrefix sets the key prefix for cache entries.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// New creates a new Redis cache with options.
func New(address, password string, db int, opts ...Option) *Cache {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromURL creates a Redis cache from a redis:// URL.
func NewFromURL(url string, opts ...Option) (*Cache, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(options), opts...), nil
}

// NewFromClient creates a new Redis cache from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Cache {
	cache := &Cache{
		client: client,
		prefix: "arepl:cache:",
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// Client exposes the underlying client, e.g. to build a Locker on it.
func (c *Cache) Client() *backend.Client {
	return c.client
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

// Get retrieves a value from Redis.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return val, nil
}

// Set stores value with ttl. Redis treats 0 as no expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Delete removes the entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
