package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/postgres/generated"
	"github.com/iho/walletledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	queries *generated.Queries
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return newOutboxRepository(pool)
}

func newOutboxRepository(db generated.DBTX) *OutboxRepository {
	return &OutboxRepository{queries: generated.New(db)}
}

// Create creates a new outbox event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}
	queries := generated.New(ptx)

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("%w: outbox payload: %w", domain.ErrSerialization, err)
	}

	err = queries.CreateOutboxEvent(ctx, generated.CreateOutboxEventParams{
		ID:            event.ID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Version:       event.Version,
		Payload:       payload,
		CreatedAt:     timeToPgTimestamptz(event.CreatedAt),
		Published:     event.Published,
	})

	return mapError("create outbox event", err)
}

// GetUnpublished returns up to limit pending rows, oldest first. A row whose
// payload no longer decodes fails the whole batch rather than being skipped,
// since skipping it would publish that wallet's later events out of order.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.queries.GetUnpublishedEvents(ctx, int32(limit))
	if err != nil {
		return nil, mapError("get unpublished events", err)
	}

	events := make([]*domain.OutboxEvent, len(rows))
	for i, row := range rows {
		if events[i], err = outboxEventFromRow(row); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	err := r.queries.MarkEventPublished(ctx, generated.MarkEventPublishedParams{
		ID:          id,
		PublishedAt: timeToPgTimestamptz(publishedAt),
	})
	return mapError("mark event published", err)
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	return mapError("delete published events", r.queries.DeletePublishedEvents(ctx, timeToPgTimestamptz(before)))
}

func outboxEventFromRow(row generated.OutboxEvent) (*domain.OutboxEvent, error) {
	e := &domain.OutboxEvent{
		ID:            row.ID,
		AggregateID:   row.AggregateID,
		AggregateType: row.AggregateType,
		EventType:     row.EventType,
		Version:       row.Version,
		CreatedAt:     row.CreatedAt.Time,
		Published:     row.Published,
	}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("%w: outbox event %s: %w", domain.ErrSerialization, row.ID, err)
		}
	}
	if row.PublishedAt.Valid {
		at := row.PublishedAt.Time
		e.PublishedAt = &at
	}
	return e, nil
}
