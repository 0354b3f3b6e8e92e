package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = redis.Nil

// Redis adapts a go-redis client to the small key/value surface the
// service needs, so callers can substitute stubs in tests.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis-backed cache. prefix namespaces every key.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Set writes a value with an expiry.
func (c *Redis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, expiration).Err()
}

// Get retrieves a value; a missing key yields ErrMiss.
func (c *Redis) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.prefix+key).Result()
}

// IsMiss reports whether err means the key was absent.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
