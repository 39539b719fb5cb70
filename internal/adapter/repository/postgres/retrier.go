package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds how long a transient failure is retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy is used when NewRetrier gets no policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  10 * time.Second,
}

// Retrier re-runs idempotent calls (stream reads, BEGIN) with exponential
// backoff while the database reports a transient failure. Appends are never
// retried here; a lost race must reach the caller as a conflict.
type Retrier struct {
	policy RetryPolicy
	logger zerolog.Logger
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) RetrierOption {
	return func(r *Retrier) { r.policy = p }
}

// WithRetryLogger reports each retry to logger.
func WithRetryLogger(logger zerolog.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = logger }
}

// NewRetrier creates a Retrier. Without options it retries silently.
func NewRetrier(opts ...RetrierOption) *Retrier {
	r := &Retrier{policy: DefaultRetryPolicy, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retry runs fn until it succeeds, fails permanently, or the policy is
// exhausted. op names the call in retry logs.
func (r *Retrier) Retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = r.policy.MaxElapsedTime

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		r.logger.Warn().
			Err(err).
			Str("op", op).
			Int("retry", attempt).
			Dur("backoff", wait).
			Msg("transient database error, retrying")
	}

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx), notify)
}

// isRetryableError reports failures that leave no trace in the database:
// deadlocks, serialization failures, lost or refused connections, and
// anything pgconn marks as safe to retry.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", "40001", "57P03":
			return true
		}
		// Class 08: connection exception.
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}

	return pgconn.SafeToRetry(err)
}
