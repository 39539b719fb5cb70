package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/domain"
)

// WalletRepository loads wallets by replaying the event log and saves them by
// appending their pending events and refreshing the projection in one
// transaction.
type WalletRepository struct {
	txManager   TransactionManager
	events      EventStore
	projections ProjectionRepository
	clock       domain.Clock

	outbox   OutboxRepository
	outboxID IDGenerator
	cache    Cache
	cacheTTL time.Duration
	fence    versionFence
	metrics  Metrics
}

// versionFence remembers the newest projection version written by this
// process per wallet. A read that fetched its row before a concurrent Save
// committed carries an older version and must not repopulate the cache the
// Save just invalidated. Writers in other processes are not covered; their
// stale entries live at most cacheTTL.
type versionFence struct {
	mu     sync.Mutex
	latest map[string]int64
}

func (f *versionFence) raise(id string, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		f.latest = make(map[string]int64)
	}
	if version > f.latest[id] {
		f.latest[id] = version
	}
}

func (f *versionFence) stale(id string, version int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return version < f.latest[id]
}

// WalletRepositoryOption configures optional collaborators.
type WalletRepositoryOption func(*WalletRepository)

// WithOutbox enqueues an outbox record for every appended event.
func WithOutbox(outbox OutboxRepository, idGen IDGenerator) WalletRepositoryOption {
	return func(r *WalletRepository) {
		r.outbox = outbox
		r.outboxID = idGen
	}
}

// WithProjectionCache serves projection reads from cache.
func WithProjectionCache(cache Cache, ttl time.Duration) WalletRepositoryOption {
	return func(r *WalletRepository) {
		r.cache = cache
		r.cacheTTL = ttl
	}
}

// WithMetrics reports appended events and conflicts.
func WithMetrics(m Metrics) WalletRepositoryOption {
	return func(r *WalletRepository) {
		r.metrics = m
	}
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(
	txManager TransactionManager,
	events EventStore,
	projections ProjectionRepository,
	clock domain.Clock,
	opts ...WalletRepositoryOption,
) *WalletRepository {
	r := &WalletRepository{
		txManager:   txManager,
		events:      events,
		projections: projections,
		clock:       clock,
		cacheTTL:    DefaultProjectionCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clock returns the clock wallets loaded by this repository use.
func (r *WalletRepository) Clock() domain.Clock {
	return r.clock
}

// Save persists the wallet's pending events. Pending events are cleared only
// after the transaction commits, so a failed Save can be retried as is.
func (r *WalletRepository) Save(ctx context.Context, w *domain.Wallet) error {
	pending := w.PendingEvents()
	if len(pending) == 0 {
		return nil
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := r.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := r.events.Append(txCtx, tx, domain.AggregateTypeWallet, w.PersistedVersion(), pending); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) && r.metrics != nil {
			r.metrics.RecordConcurrencyConflict()
		}
		return err
	}

	now := r.clock.Now().UTC()
	if err := r.projections.Upsert(txCtx, tx, domain.ProjectionOf(w, now)); err != nil {
		return err
	}

	if r.outbox != nil {
		for _, e := range pending {
			if err := r.outbox.Create(txCtx, tx, domain.NewOutboxEvent(r.outboxID.Generate(), e, now)); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	w.TakePendingEvents()
	r.invalidate(ctx, w.ID(), w.Version())

	if r.metrics != nil {
		for _, e := range pending {
			r.metrics.RecordEventsAppended(e.Kind(), 1)
		}
	}

	return nil
}

// FindByID replays the full event stream of a wallet.
func (r *WalletRepository) FindByID(ctx context.Context, id string) (*domain.Wallet, error) {
	events, err := r.events.EventsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.ReplayWallet(events, r.clock)
}

// FindByIDAtTime replays the events that occurred at or before at.
func (r *WalletRepository) FindByIDAtTime(ctx context.Context, id string, at time.Time) (*domain.Wallet, error) {
	events, err := r.events.EventsUntil(ctx, id, at)
	if err != nil {
		return nil, err
	}
	return domain.ReplayWallet(events, r.clock)
}

// FindByOwner resolves the wallet id through the projection and replays it.
func (r *WalletRepository) FindByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	p, err := r.projections.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, p.ID)
}

// Events returns the stored event stream of a wallet.
func (r *WalletRepository) Events(ctx context.Context, id string) ([]domain.Event, error) {
	events, err := r.events.EventsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrWalletNotFound
	}
	return events, nil
}

// Projection returns the projection row for a wallet, consulting the cache first.
func (r *WalletRepository) Projection(ctx context.Context, id string) (*domain.WalletProjection, error) {
	if p, ok := r.cached(ctx, id); ok {
		return p, nil
	}

	p, err := r.projections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.store(ctx, p)
	return p, nil
}

// ProjectionByOwner returns the projection row for an owner.
func (r *WalletRepository) ProjectionByOwner(ctx context.Context, ownerID string) (*domain.WalletProjection, error) {
	return r.projections.GetByOwner(ctx, ownerID)
}

// Projections pages through all projection rows.
func (r *WalletRepository) Projections(ctx context.Context, limit, offset int) ([]*domain.WalletProjection, error) {
	return r.projections.List(ctx, limit, offset)
}

// TransferLegs returns transfer legs recorded since the given time.
func (r *WalletRepository) TransferLegs(ctx context.Context, since time.Time) ([]domain.MoneyTransferred, error) {
	return r.events.TransferLegs(ctx, since)
}

// RebuildProjection overwrites the projection row with the state folded from
// the event log.
func (r *WalletRepository) RebuildProjection(ctx context.Context, id string) (*domain.WalletProjection, error) {
	w, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := r.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	p := domain.ProjectionOf(w, r.clock.Now().UTC())
	if err := r.projections.Upsert(txCtx, tx, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	r.invalidate(ctx, id, p.Version)
	return p, nil
}

type cachedProjection struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Balance     decimal.Decimal `json:"balance"`
	Version     int64           `json:"version"`
	LastUpdated time.Time       `json:"last_updated"`
}

func projectionCacheKey(id string) string {
	return "wallet:projection:" + id
}

func (r *WalletRepository) cached(ctx context.Context, id string) (*domain.WalletProjection, bool) {
	if r.cache == nil {
		return nil, false
	}

	data, err := r.cache.Get(ctx, projectionCacheKey(id))
	if err != nil || data == nil {
		return nil, false
	}

	var c cachedProjection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, false
	}

	return &domain.WalletProjection{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Balance:     c.Balance,
		Version:     c.Version,
		LastUpdated: c.LastUpdated,
	}, true
}

func (r *WalletRepository) store(ctx context.Context, p *domain.WalletProjection) {
	if r.cache == nil || r.fence.stale(p.ID, p.Version) {
		return
	}

	data, err := json.Marshal(cachedProjection{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Balance:     p.Balance,
		Version:     p.Version,
		LastUpdated: p.LastUpdated,
	})
	if err != nil {
		return
	}

	// Cache failures only cost a projection read.
	_ = r.cache.Set(ctx, projectionCacheKey(p.ID), data, r.cacheTTL)
}

func (r *WalletRepository) invalidate(ctx context.Context, id string, version int64) {
	if r.cache == nil {
		return
	}
	r.fence.raise(id, version)
	_ = r.cache.Delete(ctx, projectionCacheKey(id))
}
