// Package sqlite implements the wallet event store, projection and outbox
// repositories on a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iho/walletledger/internal/adapter/repository/eventcodec"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// Store persists wallet events and projections in SQLite. It implements
// usecase.TransactionManager, usecase.EventStore, usecase.ProjectionRepository
// and usecase.OutboxRepository.
type Store struct {
	db    *sql.DB
	ids   usecase.IDGenerator
	clock domain.Clock
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB, ids usecase.IDGenerator, clock domain.Clock) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Store{db: db, ids: ids, clock: clock}
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// Tx wraps a database/sql transaction.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a new transaction.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError("begin", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit(_ context.Context) error {
	return mapError("commit", t.tx.Commit())
}

// Rollback rolls back the transaction. Rolling back a finished transaction
// is a no-op.
func (t *Tx) Rollback(_ context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func sqlTx(tx usecase.Transaction) (*sql.Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("%w: foreign transaction %T", domain.ErrStorage, tx)
	}
	return t.tx, nil
}

// Append inserts events after checking the stream tip.
func (s *Store) Append(ctx context.Context, tx usecase.Transaction, aggregateType string, expectedVersion int64, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	stx, err := sqlTx(tx)
	if err != nil {
		return err
	}

	aggregateID := events[0].AggregateID()
	for i, e := range events {
		if e.AggregateID() != aggregateID {
			return fmt.Errorf("%w: append spans wallets %s and %s", domain.ErrStorage, aggregateID, e.AggregateID())
		}
		if e.EventVersion() != expectedVersion+int64(i)+1 {
			return fmt.Errorf("%w: event version %d does not follow %d", domain.ErrConcurrencyConflict, e.EventVersion(), expectedVersion+int64(i))
		}
	}

	var tip int64
	err = stx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&tip)
	if err != nil {
		return mapError("read stream version", err)
	}
	if tip != expectedVersion {
		return fmt.Errorf("%w: wallet %s is at version %d, expected %d", domain.ErrConcurrencyConflict, aggregateID, tip, expectedVersion)
	}

	createdAt := toMicros(s.clock.Now())
	for _, e := range events {
		kind, payload, err := eventcodec.Encode(e)
		if err != nil {
			return err
		}

		var txID sql.NullString
		if id := eventcodec.TransactionID(e); id != "" {
			txID = sql.NullString{String: id, Valid: true}
		}

		_, err = stx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, version, transaction_id, payload, occurred_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ids.Generate(),
			e.AggregateID(),
			aggregateType,
			kind,
			e.EventVersion(),
			txID,
			string(payload),
			toMicros(e.OccurredAt()),
			createdAt,
		)
		if err != nil {
			return mapError("append event", err)
		}
	}

	return nil
}

const selectEvents = `SELECT id, aggregate_id, event_type, version, payload FROM events`

// EventsFor returns the full stream of a wallet ordered by version.
func (s *Store) EventsFor(ctx context.Context, walletID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+` WHERE aggregate_id = ? ORDER BY version`, walletID)
	if err != nil {
		return nil, mapError("load events", err)
	}
	return scanEvents(rows)
}

// EventsUntil returns the stream prefix that occurred at or before at.
func (s *Store) EventsUntil(ctx context.Context, walletID string, at time.Time) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvents+` WHERE aggregate_id = ? AND occurred_at <= ? ORDER BY version`,
		walletID, toMicros(at),
	)
	if err != nil {
		return nil, mapError("load events", err)
	}
	return scanEvents(rows)
}

// TransferLegs returns every transfer leg recorded at or after since.
func (s *Store) TransferLegs(ctx context.Context, since time.Time) ([]domain.MoneyTransferred, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvents+` WHERE event_type IN (?, ?) AND occurred_at >= ? ORDER BY occurred_at, aggregate_id, version`,
		domain.EventKindTransferSent, domain.EventKindTransferReceived, toMicros(since),
	)
	if err != nil {
		return nil, mapError("load transfer legs", err)
	}

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	legs := make([]domain.MoneyTransferred, 0, len(events))
	for _, e := range events {
		leg, ok := e.(domain.MoneyTransferred)
		if !ok {
			return nil, fmt.Errorf("%w: %s recorded as a transfer leg", domain.ErrCorruptEventStream, e.Kind())
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			id, aggregateID, kind, payload string
			version                        int64
		)
		if err := rows.Scan(&id, &aggregateID, &kind, &version, &payload); err != nil {
			return nil, mapError("scan event", err)
		}

		e, err := eventcodec.Decode(kind, []byte(payload))
		if err != nil {
			return nil, err
		}
		if e.AggregateID() != aggregateID || e.EventVersion() != version {
			return nil, fmt.Errorf("%w: row %s payload is %s v%d, column is %s v%d",
				domain.ErrCorruptEventStream, id, e.AggregateID(), e.EventVersion(), aggregateID, version)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("load events", err)
	}
	return events, nil
}

// Upsert writes the projection row within a transaction.
func (s *Store) Upsert(ctx context.Context, tx usecase.Transaction, p *domain.WalletProjection) error {
	stx, err := sqlTx(tx)
	if err != nil {
		return err
	}

	_, err = stx.ExecContext(ctx,
		`INSERT INTO wallet_projections (id, owner_id, balance, version, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   balance = excluded.balance,
		   version = excluded.version,
		   last_updated = excluded.last_updated`,
		p.ID, p.OwnerID, p.Balance.String(), p.Version, toMicros(p.LastUpdated),
	)
	return mapError("upsert projection", err)
}

const selectProjections = `SELECT id, owner_id, balance, version, last_updated FROM wallet_projections`

// GetByID retrieves a projection by wallet ID.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.WalletProjection, error) {
	return scanProjection(s.db.QueryRowContext(ctx, selectProjections+` WHERE id = ?`, id))
}

// GetByOwner retrieves the projection of an owner's wallet.
func (s *Store) GetByOwner(ctx context.Context, ownerID string) (*domain.WalletProjection, error) {
	return scanProjection(s.db.QueryRowContext(ctx, selectProjections+` WHERE owner_id = ?`, ownerID))
}

// List lists projections ordered by wallet ID.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*domain.WalletProjection, error) {
	rows, err := s.db.QueryContext(ctx, selectProjections+` ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, mapError("list projections", err)
	}
	defer rows.Close()

	var out []*domain.WalletProjection
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list projections", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProjection(row scanner) (*domain.WalletProjection, error) {
	var (
		p           domain.WalletProjection
		balance     string
		lastUpdated int64
	)
	err := row.Scan(&p.ID, &p.OwnerID, &balance, &p.Version, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, mapError("scan projection", err)
	}

	p.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("%w: projection %s balance %q: %w", domain.ErrSerialization, p.ID, balance, err)
	}
	p.LastUpdated = fromMicros(lastUpdated)
	return &p, nil
}

// Create enqueues an outbox event within a transaction.
func (s *Store) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	stx, err := sqlTx(tx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("%w: outbox payload: %w", domain.ErrSerialization, err)
	}

	_, err = stx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, version, payload, created_at, published)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.AggregateID, event.AggregateType, event.EventType, event.Version,
		string(payload), toMicros(event.CreatedAt), event.Published,
	)
	return mapError("create outbox event", err)
}

// GetUnpublished retrieves unpublished events in creation order.
func (s *Store) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, version, payload, created_at
		 FROM outbox_events
		 WHERE published = 0
		 ORDER BY created_at, aggregate_id, version
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, mapError("get unpublished events", err)
	}
	defer rows.Close()

	var out []*domain.OutboxEvent
	for rows.Next() {
		var (
			e         domain.OutboxEvent
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Version, &payload, &createdAt); err != nil {
			return nil, mapError("scan outbox event", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("%w: outbox event %s: %w", domain.ErrSerialization, e.ID, err)
		}
		e.CreatedAt = fromMicros(createdAt)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("get unpublished events", err)
	}
	return out, nil
}

// MarkPublished marks an event as published.
func (s *Store) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET published = 1, published_at = ? WHERE id = ?`,
		toMicros(publishedAt), id,
	)
	return mapError("mark event published", err)
}

// DeletePublished deletes published events older than before.
func (s *Store) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE published = 1 AND published_at < ?`,
		toMicros(before),
	)
	return mapError("delete published events", err)
}

// mapError translates SQLite errors into domain errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if isConstraintError(err) {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "events.aggregate_id"):
			return fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, msg)
		case strings.Contains(msg, "wallet_projections.owner_id"):
			return fmt.Errorf("%w: %s", domain.ErrWalletAlreadyExists, msg)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if isBusyError(err) {
		return fmt.Errorf("%w: %s: database is busy: %w", domain.ErrStorage, op, err)
	}

	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
