// Package cache provides a Redis-backed cache used by the container pool
// to hold its last orchestrator snapshot with a short TTL, so multiple
// gateway replicas converge on the same view between forced refreshes
// without hitting the orchestrator on every allocate.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client. A disabled cache (nil client) makes Set and
// Close no-ops and Get return an error, so callers degrade to always
// refreshing from the orchestrator rather than failing.
type Cache struct {
	client *redis.Client
}

// Config holds cache connection settings.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// New creates a Redis-backed cache, or a disabled no-op cache if
// config.Enabled is false.
func New(config Config) (*Cache, error) {
	if !config.Enabled {
		return &Cache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsEnabled reports whether this cache is backed by a live Redis client.
func (c *Cache) IsEnabled() bool {
	return c.client != nil
}

// Get retrieves and unmarshals a cached value. Returns redis.Nil itself
// on a miss so callers can distinguish "not cached" from other errors
// with IsMiss; a disabled cache returns a "cache disabled" error instead.
func (c *Cache) Get(ctx context.Context, key string, target interface{}) error {
	if !c.IsEnabled() {
		return fmt.Errorf("cache disabled")
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), target)
}

// Set stores a value with the given TTL. No-op if caching is disabled.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// IsMiss reports whether err is the cache-miss sentinel.
func IsMiss(err error) bool {
	return err == redis.Nil
}
