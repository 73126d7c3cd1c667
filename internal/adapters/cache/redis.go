// Package cache implements the response cache on Redis. Cached values
// are rendered API responses; every key is tracked in a per-product
// index set so a product refresh can drop exactly its own entries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terradex/strata/internal/ports/output"
)

// indexTTL keeps index sets alive well past the longest value TTL, so
// invalidation still finds keys that have not expired yet.
const indexTTL = 24 * time.Hour

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Cache implements output.ResponseCache on a Redis client.
type Cache struct {
	client  *redis.Client
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, metrics output.MetricsCollector, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	logger.Info("response cache ready", "addr", cfg.Addr, "db", cfg.DB)
	return &Cache{client: client, metrics: metrics, logger: logger}, nil
}

// Get returns the cached value for a key. Redis errors degrade to a
// miss; a flaky cache must not fail reads.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.IncCacheRequest(false)
		return nil, false, nil
	}
	if err != nil {
		c.metrics.IncCacheRequest(false)
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false, nil
	}
	c.metrics.IncCacheRequest(true)
	return value, true, nil
}

// Set stores a value and records the key in the product's index set.
func (c *Cache) Set(ctx context.Context, product, key string, value []byte, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	index := indexKey(product)
	pipe.SAdd(ctx, index, key)
	pipe.Expire(ctx, index, indexTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("caching %s: %w", key, err)
	}
	return nil
}

// InvalidateProduct drops every cached key of a product along with the
// index set itself.
func (c *Cache) InvalidateProduct(ctx context.Context, product string) error {
	index := indexKey(product)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("invalidating %s: %w", product, err)
	}
	if err := c.client.Del(ctx, append(keys, index)...).Err(); err != nil {
		return fmt.Errorf("invalidating %s: %w", product, err)
	}
	c.logger.Debug("cache invalidated", "product", product, "keys", len(keys))
	return nil
}

// Ping verifies the cache connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the cache connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// indexKey returns the name of a product's key index set.
func indexKey(product string) string {
	return "strata:index:" + product
}
