package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestCache(t *testing.T) {
	client, mr := setup(t)
	cache := NewCache(client)
	ctx := context.Background()

	projection := []byte(`{"id":"w-1","balance":"12.50","version":2}`)
	require.NoError(t, cache.Set(ctx, "wallet:w-1", projection, time.Minute))
	assert.True(t, mr.Exists("walletledger:cache:wallet:w-1"))

	got, err := cache.Get(ctx, "wallet:w-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(projection), string(got))

	require.NoError(t, cache.Delete(ctx, "wallet:w-1"))
	got, err = cache.Get(ctx, "wallet:w-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting twice is fine.
	assert.NoError(t, cache.Delete(ctx, "wallet:w-1"))
}

func TestCacheEntriesExpire(t *testing.T) {
	client, mr := setup(t)
	cache := NewCache(client, WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "wallet:w-2", []byte("{}"), time.Second))
	assert.Equal(t, time.Second, mr.TTL("test:wallet:w-2"))

	mr.FastForward(2 * time.Second)
	got, err := cache.Get(ctx, "wallet:w-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheReportsUnavailableRedis(t *testing.T) {
	client, mr := setup(t)
	cache := NewCache(client)
	mr.Close()

	_, err := cache.Get(context.Background(), "wallet:w-1")
	assert.ErrorContains(t, err, "cache get wallet:w-1")
	assert.Error(t, cache.Set(context.Background(), "wallet:w-1", []byte("{}"), time.Minute))
}

func TestIdempotencyClaimLifecycle(t *testing.T) {
	client, mr := setup(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()
	const key = "alice:POST:/api/v1/transfers:k-1"

	exists, value, err := store.CheckAndSet(ctx, key, nil, time.Hour)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, value)
	assert.Equal(t, time.Hour, mr.TTL(defaultIdempotencyPrefix+key))

	// A concurrent retry sees the in-flight marker.
	exists, value, err = store.CheckAndSet(ctx, key, nil, time.Hour)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, inFlight, value)

	response := []byte(`{"status":201,"body":{"transaction_id":"tx-1"}}`)
	require.NoError(t, store.Update(ctx, key, response, time.Hour))

	exists, value, err = store.CheckAndSet(ctx, key, nil, time.Hour)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, response, value)
}

func TestIdempotencyReleaseAllowsRetry(t *testing.T) {
	client, _ := setup(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "k-2", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k-2"))

	exists, _, err := store.CheckAndSet(ctx, "k-2", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIdempotencyClaimWithInitialResponse(t *testing.T) {
	client, mr := setup(t)
	store := NewIdempotencyStore(client, WithPrefix("idem:"))
	ctx := context.Background()

	exists, _, err := store.CheckAndSet(ctx, "k-3", []byte("seeded"), time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)

	stored, err := mr.Get("idem:k-3")
	require.NoError(t, err)
	assert.Equal(t, "seeded", stored)
}

func TestIdempotencyUnavailableRedis(t *testing.T) {
	client, mr := setup(t)
	store := NewIdempotencyStore(client)
	mr.Close()

	_, _, err := store.CheckAndSet(context.Background(), "k", nil, time.Minute)
	assert.ErrorContains(t, err, "claim idempotency key")
}
