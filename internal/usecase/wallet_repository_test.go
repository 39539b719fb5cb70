package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/iho/walletledger/internal/adapter/repository/memory"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
	"github.com/iho/walletledger/internal/usecase/mocks"
)

type repoMocks struct {
	txManager   *mocks.MockTransactionManager
	tx          *mocks.MockTransaction
	events      *mocks.MockEventStore
	projections *mocks.MockProjectionRepository
	outbox      *mocks.MockOutboxRepository
	cache       *mocks.MockCache
	metrics     *mocks.MockMetrics
}

func newRepoMocks(ctrl *gomock.Controller) *repoMocks {
	return &repoMocks{
		txManager:   mocks.NewMockTransactionManager(ctrl),
		tx:          mocks.NewMockTransaction(ctrl),
		events:      mocks.NewMockEventStore(ctrl),
		projections: mocks.NewMockProjectionRepository(ctrl),
		outbox:      mocks.NewMockOutboxRepository(ctrl),
		cache:       mocks.NewMockCache(ctrl),
		metrics:     mocks.NewMockMetrics(ctrl),
	}
}

func (m *repoMocks) repository(clock domain.Clock) *usecase.WalletRepository {
	return usecase.NewWalletRepository(m.txManager, m.events, m.projections, clock,
		usecase.WithOutbox(m.outbox, mocks.NewSequenceIDGenerator("ob")),
		usecase.WithProjectionCache(m.cache, time.Minute),
		usecase.WithMetrics(m.metrics),
	)
}

func testClock() *mocks.StepClock {
	return mocks.NewStepClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), time.Second)
}

func TestWalletRepository_SaveNoPendingIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newRepoMocks(ctrl)
	clock := testClock()

	w, err := domain.NewWallet("w1", "owner", clock)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	w.TakePendingEvents()

	// No expectations: any storage call fails the test.
	if err := m.repository(clock).Save(context.Background(), w); err != nil {
		t.Fatalf("expected no-op save, got %v", err)
	}
}

func TestWalletRepository_Save(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newRepoMocks(ctrl)
	clock := testClock()

	w, _ := domain.NewWallet("w1", "owner", clock)
	_ = w.Deposit(decimal.NewFromInt(25), "tx-1")

	gomock.InOrder(
		m.txManager.EXPECT().Begin(gomock.Any()).Return(m.tx, nil),
		m.events.EXPECT().Append(gomock.Any(), m.tx, domain.AggregateTypeWallet, int64(0), gomock.Len(2)).Return(nil),
		m.projections.EXPECT().Upsert(gomock.Any(), m.tx, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ usecase.Transaction, p *domain.WalletProjection) error {
				if p.Version != 2 || !p.Balance.Equal(decimal.NewFromInt(25)) || p.OwnerID != "owner" {
					t.Errorf("unexpected projection %+v", p)
				}
				return nil
			}),
		m.outbox.EXPECT().Create(gomock.Any(), m.tx, gomock.Any()).Return(nil).Times(2),
		m.tx.EXPECT().Commit(gomock.Any()).Return(nil),
	)
	m.tx.EXPECT().Rollback(gomock.Any()).Return(nil)
	m.cache.EXPECT().Delete(gomock.Any(), "wallet:projection:w1").Return(nil)
	m.metrics.EXPECT().RecordEventsAppended(gomock.Any(), 1).Times(2)

	if err := m.repository(clock).Save(context.Background(), w); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(w.PendingEvents()) != 0 {
		t.Fatalf("expected pending buffer cleared")
	}
	if w.PersistedVersion() != 2 {
		t.Fatalf("expected persisted version 2, got %d", w.PersistedVersion())
	}
}

func TestWalletRepository_SaveFailureKeepsPending(t *testing.T) {
	storageErr := errors.New("disk on fire")

	tests := []struct {
		name      string
		setup     func(m *repoMocks)
		expectErr error
	}{
		{
			name: "begin fails",
			setup: func(m *repoMocks) {
				m.txManager.EXPECT().Begin(gomock.Any()).Return(nil, storageErr)
			},
			expectErr: storageErr,
		},
		{
			name: "append conflict",
			setup: func(m *repoMocks) {
				m.txManager.EXPECT().Begin(gomock.Any()).Return(m.tx, nil)
				m.events.EXPECT().Append(gomock.Any(), m.tx, gomock.Any(), int64(0), gomock.Any()).Return(domain.ErrConcurrencyConflict)
				m.metrics.EXPECT().RecordConcurrencyConflict()
				m.tx.EXPECT().Rollback(gomock.Any()).Return(nil)
			},
			expectErr: domain.ErrConcurrencyConflict,
		},
		{
			name: "projection upsert fails",
			setup: func(m *repoMocks) {
				m.txManager.EXPECT().Begin(gomock.Any()).Return(m.tx, nil)
				m.events.EXPECT().Append(gomock.Any(), m.tx, gomock.Any(), int64(0), gomock.Any()).Return(nil)
				m.projections.EXPECT().Upsert(gomock.Any(), m.tx, gomock.Any()).Return(domain.ErrWalletAlreadyExists)
				m.tx.EXPECT().Rollback(gomock.Any()).Return(nil)
			},
			expectErr: domain.ErrWalletAlreadyExists,
		},
		{
			name: "commit fails",
			setup: func(m *repoMocks) {
				m.txManager.EXPECT().Begin(gomock.Any()).Return(m.tx, nil)
				m.events.EXPECT().Append(gomock.Any(), m.tx, gomock.Any(), int64(0), gomock.Any()).Return(nil)
				m.projections.EXPECT().Upsert(gomock.Any(), m.tx, gomock.Any()).Return(nil)
				m.outbox.EXPECT().Create(gomock.Any(), m.tx, gomock.Any()).Return(nil)
				m.tx.EXPECT().Commit(gomock.Any()).Return(storageErr)
				m.tx.EXPECT().Rollback(gomock.Any()).Return(nil)
			},
			expectErr: storageErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := newRepoMocks(ctrl)
			tt.setup(m)
			clock := testClock()

			w, _ := domain.NewWallet("w1", "owner", clock)
			err := m.repository(clock).Save(context.Background(), w)
			if !errors.Is(err, tt.expectErr) {
				t.Fatalf("expected %v, got %v", tt.expectErr, err)
			}
			if len(w.PendingEvents()) != 1 {
				t.Fatalf("expected pending buffer intact, got %d events", len(w.PendingEvents()))
			}
		})
	}
}

func TestWalletRepository_FindByOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newRepoMocks(ctrl)
	clock := testClock()

	created := domain.WalletCreated{
		EventMeta: domain.EventMeta{WalletID: "w1", Version: 1, Timestamp: clock.Now()},
		OwnerID:   "owner",
	}
	m.projections.EXPECT().GetByOwner(gomock.Any(), "owner").Return(&domain.WalletProjection{ID: "w1", OwnerID: "owner"}, nil)
	m.events.EXPECT().EventsFor(gomock.Any(), "w1").Return([]domain.Event{created}, nil)

	w, err := m.repository(clock).FindByOwner(context.Background(), "owner")
	if err != nil {
		t.Fatalf("FindByOwner: %v", err)
	}
	if w.ID() != "w1" || w.Version() != 1 {
		t.Fatalf("unexpected wallet %s v%d", w.ID(), w.Version())
	}
}

func TestWalletRepository_FindByIDNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newRepoMocks(ctrl)

	m.events.EXPECT().EventsFor(gomock.Any(), "ghost").Return(nil, nil)

	_, err := m.repository(testClock()).FindByID(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestWalletRepository_ProjectionCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newRepoMocks(ctrl)

	t.Run("hit", func(t *testing.T) {
		data, _ := json.Marshal(map[string]any{
			"id": "w1", "owner_id": "owner", "balance": "12.5", "version": 4,
			"last_updated": "2024-02-01T10:00:00Z",
		})
		m.cache.EXPECT().Get(gomock.Any(), "wallet:projection:w1").Return(data, nil)

		p, err := m.repository(testClock()).Projection(context.Background(), "w1")
		if err != nil {
			t.Fatalf("Projection: %v", err)
		}
		if !p.Balance.Equal(decimal.RequireFromString("12.5")) || p.Version != 4 {
			t.Fatalf("unexpected cached projection %+v", p)
		}
	})

	t.Run("miss", func(t *testing.T) {
		m.cache.EXPECT().Get(gomock.Any(), "wallet:projection:w2").Return(nil, nil)
		m.projections.EXPECT().GetByID(gomock.Any(), "w2").Return(&domain.WalletProjection{ID: "w2", OwnerID: "o2", Balance: decimal.NewFromInt(3), Version: 2}, nil)
		m.cache.EXPECT().Set(gomock.Any(), "wallet:projection:w2", gomock.Any(), time.Minute).Return(nil)

		p, err := m.repository(testClock()).Projection(context.Background(), "w2")
		if err != nil {
			t.Fatalf("Projection: %v", err)
		}
		if p.ID != "w2" {
			t.Fatalf("unexpected projection %+v", p)
		}
	})
}

// interleavedProjections runs beforeReturn between reading a row and handing
// it back, simulating a writer that commits while a reader is in flight.
type interleavedProjections struct {
	usecase.ProjectionRepository
	beforeReturn func()
}

func (p *interleavedProjections) GetByID(ctx context.Context, id string) (*domain.WalletProjection, error) {
	row, err := p.ProjectionRepository.GetByID(ctx, id)
	if p.beforeReturn != nil {
		hook := p.beforeReturn
		p.beforeReturn = nil
		hook()
	}
	return row, err
}

func TestWalletRepository_StaleReadDoesNotRepopulateCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := memory.NewStore()
	clock := testClock()
	projections := &interleavedProjections{ProjectionRepository: store}
	repo := usecase.NewWalletRepository(store, store, projections, clock, usecase.WithProjectionCache(cache, time.Minute))
	ctx := context.Background()

	cache.EXPECT().Delete(gomock.Any(), "wallet:projection:w1").Return(nil).Times(2)
	cache.EXPECT().Get(gomock.Any(), "wallet:projection:w1").Return(nil, nil).Times(2)

	w, err := domain.NewWallet("w1", "owner", clock)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	if err := repo.Save(ctx, w); err != nil {
		t.Fatalf("Save: %v", err)
	}

	projections.beforeReturn = func() {
		if err := w.Deposit(decimal.NewFromInt(10), "tx-1"); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if err := repo.Save(ctx, w); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	// The in-flight reader sees version 1 after version 2 committed; no Set
	// is expected for it.
	stale, err := repo.Projection(ctx, "w1")
	if err != nil {
		t.Fatalf("Projection: %v", err)
	}
	if stale.Version != 1 {
		t.Fatalf("expected the pre-commit row, got version %d", stale.Version)
	}

	cache.EXPECT().Set(gomock.Any(), "wallet:projection:w1", gomock.Any(), time.Minute).DoAndReturn(
		func(_ context.Context, _ string, data []byte, _ time.Duration) error {
			var cached struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(data, &cached); err != nil || cached.Version != 2 {
				t.Errorf("expected version 2 to be cached, got %s", data)
			}
			return nil
		})

	fresh, err := repo.Projection(ctx, "w1")
	if err != nil {
		t.Fatalf("Projection: %v", err)
	}
	if fresh.Version != 2 || !fresh.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected projection %+v", fresh)
	}
}
