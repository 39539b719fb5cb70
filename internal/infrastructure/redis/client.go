package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
)

// Options tunes the client beyond what the URL carries.
type Options struct {
	PoolSize    int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// NewClient parses redisURL, applies opts and verifies the server answers
// a PING before returning the client.
func NewClient(ctx context.Context, redisURL string, opts Options, logger zerolog.Logger) (*redis.Client, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if opts.PoolSize > 0 {
		parsed.PoolSize = opts.PoolSize
	}
	parsed.DialTimeout = orDefault(opts.DialTimeout, defaultDialTimeout)
	parsed.ReadTimeout = orDefault(opts.IOTimeout, defaultIOTimeout)
	parsed.WriteTimeout = parsed.ReadTimeout

	client := redis.NewClient(parsed)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", parsed.Addr, err)
	}

	logger.Info().
		Str("addr", parsed.Addr).
		Int("db", parsed.DB).
		Int("pool_size", parsed.PoolSize).
		Msg("connected to redis")

	return client, nil
}

// HealthCheck returns a readiness probe for client.
func HealthCheck(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
