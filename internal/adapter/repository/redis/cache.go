package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCachePrefix       = "walletledger:cache:"
	defaultIdempotencyPrefix = "walletledger:idempotency:"
)

// Option configures the key namespace of a Redis-backed store.
type Option func(*namespace)

type namespace struct {
	prefix string
}

// WithPrefix overrides the key prefix, letting several deployments share one
// Redis database.
func WithPrefix(prefix string) Option {
	return func(n *namespace) { n.prefix = prefix }
}

func newNamespace(prefix string, opts []Option) namespace {
	n := namespace{prefix: prefix}
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

func (n namespace) key(k string) string { return n.prefix + k }

// Cache implements usecase.Cache for projection read-through caching. A miss
// is a nil value and no error.
type Cache struct {
	client redis.Cmdable
	ns     namespace
}

// NewCache creates a Cache.
func NewCache(client redis.Cmdable, opts ...Option) *Cache {
	return &Cache{client: client, ns: newNamespace(defaultCachePrefix, opts)}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.ns.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.ns.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete evicts key. Evicting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.ns.key(key)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}
