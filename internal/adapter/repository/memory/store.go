// Package memory provides a concurrency-safe in-memory event store,
// projection repository and outbox. Writes are staged on a Tx and applied
// atomically on Commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

var errForeignTx = errors.New("memory: transaction was not started by this store")

// Store holds wallet event streams, projections and outbox records.
type Store struct {
	mu          sync.RWMutex
	events      map[string][]domain.Event
	projections map[string]domain.WalletProjection
	owners      map[string]string
	outbox      []*domain.OutboxEvent
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		events:      make(map[string][]domain.Event),
		projections: make(map[string]domain.WalletProjection),
		owners:      make(map[string]string),
	}
}

type appendOp struct {
	walletID        string
	expectedVersion int64
	events          []domain.Event
}

// Tx stages writes until Commit.
type Tx struct {
	store   *Store
	appends []appendOp
	upserts []domain.WalletProjection
	outbox  []*domain.OutboxEvent
	done    bool
}

// Begin starts a new transaction.
func (s *Store) Begin(_ context.Context) (usecase.Transaction, error) {
	return &Tx{store: s}, nil
}

// Commit validates and applies every staged write, or none of them.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("%w: transaction already closed", domain.ErrStorage)
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tips := make(map[string]int64)
	for _, op := range t.appends {
		tip, ok := tips[op.walletID]
		if !ok {
			tip = int64(len(s.events[op.walletID]))
		}
		if tip != op.expectedVersion {
			return domain.ErrConcurrencyConflict
		}
		tips[op.walletID] = tip + int64(len(op.events))
	}

	owners := make(map[string]string)
	for _, p := range t.upserts {
		holder, ok := owners[p.OwnerID]
		if !ok {
			holder, ok = s.owners[p.OwnerID]
		}
		if ok && holder != p.ID {
			return domain.ErrWalletAlreadyExists
		}
		owners[p.OwnerID] = p.ID
	}

	for _, op := range t.appends {
		s.events[op.walletID] = append(s.events[op.walletID], op.events...)
	}
	for _, p := range t.upserts {
		if prev, ok := s.projections[p.ID]; ok && prev.OwnerID != p.OwnerID {
			delete(s.owners, prev.OwnerID)
		}
		s.projections[p.ID] = p
		s.owners[p.OwnerID] = p.ID
	}
	s.outbox = append(s.outbox, t.outbox...)

	return nil
}

// Rollback discards staged writes. It is safe to call after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	t.done = true
	t.appends = nil
	t.upserts = nil
	t.outbox = nil
	return nil
}

func asTx(tx usecase.Transaction) (*Tx, error) {
	mtx, ok := tx.(*Tx)
	if !ok {
		return nil, errForeignTx
	}
	if mtx.done {
		return nil, fmt.Errorf("%w: transaction already closed", domain.ErrStorage)
	}
	return mtx, nil
}

// Append stages events for a single wallet.
func (s *Store) Append(_ context.Context, tx usecase.Transaction, _ string, expectedVersion int64, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	mtx, err := asTx(tx)
	if err != nil {
		return err
	}

	walletID := events[0].AggregateID()
	for i, e := range events {
		if e.AggregateID() != walletID {
			return fmt.Errorf("%w: append spans wallets %s and %s", domain.ErrStorage, walletID, e.AggregateID())
		}
		if e.EventVersion() != expectedVersion+int64(i)+1 {
			return domain.ErrConcurrencyConflict
		}
	}

	s.mu.RLock()
	tip := int64(len(s.events[walletID]))
	s.mu.RUnlock()
	if tip != expectedVersion {
		return domain.ErrConcurrencyConflict
	}

	staged := make([]domain.Event, len(events))
	copy(staged, events)
	mtx.appends = append(mtx.appends, appendOp{walletID: walletID, expectedVersion: expectedVersion, events: staged})
	return nil
}

// EventsFor returns the full stream of a wallet.
func (s *Store) EventsFor(_ context.Context, walletID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.events[walletID]
	out := make([]domain.Event, len(stream))
	copy(out, stream)
	return out, nil
}

// EventsUntil returns the events that occurred at or before at.
func (s *Store) EventsUntil(_ context.Context, walletID string, at time.Time) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, e := range s.events[walletID] {
		if e.OccurredAt().After(at) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// TransferLegs returns all transfer legs since the given time.
func (s *Store) TransferLegs(_ context.Context, since time.Time) ([]domain.MoneyTransferred, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MoneyTransferred
	for _, stream := range s.events {
		for _, e := range stream {
			leg, ok := e.(domain.MoneyTransferred)
			if !ok || leg.OccurredAt().Before(since) {
				continue
			}
			out = append(out, leg)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].WalletID < out[j].WalletID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Upsert stages a projection overwrite.
func (s *Store) Upsert(_ context.Context, tx usecase.Transaction, p *domain.WalletProjection) error {
	mtx, err := asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	holder, taken := s.owners[p.OwnerID]
	s.mu.RUnlock()
	if taken && holder != p.ID {
		return domain.ErrWalletAlreadyExists
	}

	mtx.upserts = append(mtx.upserts, *p)
	return nil
}

// GetByID returns a projection by wallet id.
func (s *Store) GetByID(_ context.Context, id string) (*domain.WalletProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projections[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return &p, nil
}

// GetByOwner returns a projection by owner id.
func (s *Store) GetByOwner(_ context.Context, ownerID string) (*domain.WalletProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.owners[ownerID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	p := s.projections[id]
	return &p, nil
}

// List pages projections ordered by wallet id.
func (s *Store) List(_ context.Context, limit, offset int) ([]*domain.WalletProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.projections))
	for id := range s.projections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return []*domain.WalletProjection{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	out := make([]*domain.WalletProjection, 0, end-offset)
	for _, id := range ids[offset:end] {
		p := s.projections[id]
		out = append(out, &p)
	}
	return out, nil
}

// Create stages an outbox record.
func (s *Store) Create(_ context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	mtx, err := asTx(tx)
	if err != nil {
		return err
	}
	mtx.outbox = append(mtx.outbox, event)
	return nil
}

// GetUnpublished returns up to limit unpublished outbox records, oldest first.
func (s *Store) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.OutboxEvent
	for _, e := range s.outbox {
		if e.Published {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished flags an outbox record as published.
func (s *Store) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == id {
			e.Published = true
			at := publishedAt
			e.PublishedAt = &at
			return nil
		}
	}
	return fmt.Errorf("%w: outbox event %s not found", domain.ErrStorage, id)
}

// DeletePublished drops published records older than before.
func (s *Store) DeletePublished(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	for _, e := range s.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	s.outbox = kept
	return nil
}
