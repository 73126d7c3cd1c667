package output

import (
	"context"
	"time"
)

// ResponseCache defines the secondary port for caching rendered
// overview responses.
type ResponseCache interface {
	// Get returns the cached value for a key, with found=false on miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores a value under a key with the given TTL, associating
	// the key with a product for later invalidation.
	Set(ctx context.Context, product, key string, value []byte, ttl time.Duration) error

	// InvalidateProduct drops every cached key of a product.
	InvalidateProduct(ctx context.Context, product string) error

	// Ping verifies the cache connection.
	Ping(ctx context.Context) error

	// Close releases the cache connection.
	Close() error
}

// NoOpCache is an always-miss ResponseCache for deployments without a
// cache backend.
type NoOpCache struct{}

// Get implements ResponseCache.
func (n *NoOpCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set implements ResponseCache.
func (n *NoOpCache) Set(_ context.Context, _, _ string, _ []byte, _ time.Duration) error {
	return nil
}

// InvalidateProduct implements ResponseCache.
func (n *NoOpCache) InvalidateProduct(_ context.Context, _ string) error {
	return nil
}

// Ping implements ResponseCache.
func (n *NoOpCache) Ping(_ context.Context) error {
	return nil
}

// Close implements ResponseCache.
func (n *NoOpCache) Close() error {
	return nil
}
