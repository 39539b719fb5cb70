package usecase

import (
	"context"
	"time"

	"github.com/iho/walletledger/internal/domain"
)

// EventStore is the append-only wallet event log.
type EventStore interface {
	// Append writes events in order inside tx. expectedVersion is the stream
	// tip the caller observed; a mismatch fails with domain.ErrConcurrencyConflict.
	Append(ctx context.Context, tx Transaction, aggregateType string, expectedVersion int64, events []domain.Event) error
	// EventsFor returns the whole stream ordered by version. An empty result
	// means the wallet does not exist.
	EventsFor(ctx context.Context, walletID string) ([]domain.Event, error)
	// EventsUntil returns the stream prefix with occurred_at <= at.
	EventsUntil(ctx context.Context, walletID string, at time.Time) ([]domain.Event, error)
	// TransferLegs returns every transfer leg that occurred at or after since.
	TransferLegs(ctx context.Context, since time.Time) ([]domain.MoneyTransferred, error)
}

// ProjectionRepository stores the current-state snapshot of each wallet.
type ProjectionRepository interface {
	Upsert(ctx context.Context, tx Transaction, projection *domain.WalletProjection) error
	GetByID(ctx context.Context, id string) (*domain.WalletProjection, error)
	GetByOwner(ctx context.Context, ownerID string) (*domain.WalletProjection, error)
	List(ctx context.Context, limit, offset int) ([]*domain.WalletProjection, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a storage transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claimed key so the request can be retried.
	Release(ctx context.Context, key string) error
}

// Metrics receives operational counters from the use cases.
type Metrics interface {
	RecordOperation(operation string, duration time.Duration, err error)
	RecordEventsAppended(kind string, n int)
	RecordConcurrencyConflict()
	RecordReconciliation(discrepancies, unmatchedLegs int)
}
