package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// inFlight is stored under a claimed key until the first request finishes.
var inFlight = []byte("processing")

// IdempotencyStore implements usecase.IdempotencyStore.
type IdempotencyStore struct {
	client redis.Cmdable
	ns     namespace
}

// NewIdempotencyStore creates an IdempotencyStore.
func NewIdempotencyStore(client redis.Cmdable, opts ...Option) *IdempotencyStore {
	return &IdempotencyStore{client: client, ns: newNamespace(defaultIdempotencyPrefix, opts)}
}

// CheckAndSet claims key with SET NX. If someone else holds the key the
// stored value comes back instead: the in-flight marker while the first
// request runs, the recorded response afterwards. A key that expires between
// the SET and the GET is reported as held with an empty value, which callers
// treat like the in-flight marker.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	k := s.ns.key(key)

	value := response
	if value == nil {
		value = inFlight
	}

	claimed, err := s.client.SetNX(ctx, k, value, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return false, nil, nil
	}

	existing, err := s.client.Get(ctx, k).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, nil, fmt.Errorf("read idempotency key: %w", err)
	}
	return true, existing, nil
}

// Update stores the final response under a claimed key.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.ns.key(key), response, ttl).Err(); err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

// Release drops the key so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.ns.key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
