package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/adapter/repository/eventcodec"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/postgres/generated"
	"github.com/iho/walletledger/internal/usecase"
)

// EventStore implements usecase.EventStore on the events table. Rows are only
// ever inserted; the (aggregate_id, version) unique constraint turns racing
// appends into concurrency conflicts.
type EventStore struct {
	queries *generated.Queries
	ids     usecase.IDGenerator
	clock   domain.Clock
	retrier *Retrier
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *pgxpool.Pool, ids usecase.IDGenerator, clock domain.Clock, retrier *Retrier) *EventStore {
	return newEventStore(pool, ids, clock, retrier)
}

func newEventStore(db generated.DBTX, ids usecase.IDGenerator, clock domain.Clock, retrier *Retrier) *EventStore {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &EventStore{
		queries: generated.New(db),
		ids:     ids,
		clock:   clock,
		retrier: retrier,
	}
}

// Append inserts events inside tx after checking the stream tip.
func (s *EventStore) Append(ctx context.Context, tx usecase.Transaction, aggregateType string, expectedVersion int64, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}
	queries := generated.New(ptx)

	aggregateID := events[0].AggregateID()
	for i, e := range events {
		if e.AggregateID() != aggregateID {
			return fmt.Errorf("%w: append spans wallets %s and %s", domain.ErrStorage, aggregateID, e.AggregateID())
		}
		if e.EventVersion() != expectedVersion+int64(i)+1 {
			return fmt.Errorf("%w: event version %d does not follow %d", domain.ErrConcurrencyConflict, e.EventVersion(), expectedVersion+int64(i))
		}
	}

	tip, err := queries.GetStreamVersion(ctx, aggregateID)
	if err != nil {
		return mapError("read stream version", err)
	}
	if tip != expectedVersion {
		return fmt.Errorf("%w: wallet %s is at version %d, expected %d", domain.ErrConcurrencyConflict, aggregateID, tip, expectedVersion)
	}

	createdAt := timeToPgTimestamptz(s.clock.Now().UTC())
	for _, e := range events {
		kind, payload, err := eventcodec.Encode(e)
		if err != nil {
			return err
		}

		err = queries.InsertEvent(ctx, generated.InsertEventParams{
			ID:            s.ids.Generate(),
			AggregateID:   e.AggregateID(),
			AggregateType: aggregateType,
			EventType:     kind,
			Version:       e.EventVersion(),
			TransactionID: textOrNull(eventcodec.TransactionID(e)),
			Payload:       payload,
			OccurredAt:    timeToPgTimestamptz(e.OccurredAt()),
			CreatedAt:     createdAt,
		})
		if err != nil {
			return mapError("append event", err)
		}
	}

	return nil
}

// EventsFor returns the full stream of a wallet ordered by version.
func (s *EventStore) EventsFor(ctx context.Context, walletID string) ([]domain.Event, error) {
	var rows []generated.Event
	err := s.retry(ctx, "load events", func() error {
		var err error
		rows, err = s.queries.GetEventsByAggregate(ctx, walletID)
		return err
	})
	if err != nil {
		return nil, mapError("load events", err)
	}

	return rowsToEvents(rows)
}

// EventsUntil returns the stream prefix that occurred at or before at.
func (s *EventStore) EventsUntil(ctx context.Context, walletID string, at time.Time) ([]domain.Event, error) {
	var rows []generated.Event
	err := s.retry(ctx, "load events until", func() error {
		var err error
		rows, err = s.queries.GetEventsByAggregateUntil(ctx, generated.GetEventsByAggregateUntilParams{
			AggregateID: walletID,
			OccurredAt:  timeToPgTimestamptz(at),
		})
		return err
	})
	if err != nil {
		return nil, mapError("load events", err)
	}

	return rowsToEvents(rows)
}

// TransferLegs returns every transfer leg recorded at or after since.
func (s *EventStore) TransferLegs(ctx context.Context, since time.Time) ([]domain.MoneyTransferred, error) {
	var rows []generated.Event
	err := s.retry(ctx, "load transfer legs", func() error {
		var err error
		rows, err = s.queries.GetTransferEventsSince(ctx, timeToPgTimestamptz(since))
		return err
	})
	if err != nil {
		return nil, mapError("load transfer legs", err)
	}

	events, err := rowsToEvents(rows)
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

func (s *EventStore) retry(ctx context.Context, op string, fn func() error) error {
	if s.retrier == nil {
		return fn()
	}
	return s.retrier.Retry(ctx, op, fn)
}

func rowsToEvents(rows []generated.Event) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func rowToEvent(row generated.Event) (domain.Event, error) {
	e, err := eventcodec.Decode(row.EventType, row.Payload)
	if err != nil {
		return nil, err
	}

	if e.AggregateID() != row.AggregateID || e.EventVersion() != row.Version {
		return nil, fmt.Errorf("%w: row %s payload is %s v%d, column is %s v%d",
			domain.ErrCorruptEventStream, row.ID, e.AggregateID(), e.EventVersion(), row.AggregateID, row.Version)
	}

	return e, nil
}
