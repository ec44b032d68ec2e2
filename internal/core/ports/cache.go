package ports

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by CacheService.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// CacheService defines the interface for the engine's metadata caches.
type CacheService interface {
	// Get retrieves a value from the cache.
	// The implementation should unmarshal the data into the 'dest' pointer.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in the cache with a TTL.
	// The implementation should marshal the value.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Sweeper is implemented by caches that need expired entries removed
// explicitly. It returns the number of entries removed.
type Sweeper interface {
	Sweep() int
}
