package ports

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys.
type Cache interface {
	// Get returns domain.ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
