package generated

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getStreamVersion = `-- name: GetStreamVersion :one
SELECT COALESCE(MAX(version), 0)::BIGINT AS version
FROM events
WHERE aggregate_id = $1
`

func (q *Queries) GetStreamVersion(ctx context.Context, aggregateID string) (int64, error) {
	row := q.db.QueryRow(ctx, getStreamVersion, aggregateID)
	var version int64
	err := row.Scan(&version)
	return version, err
}

const insertEvent = `-- name: InsertEvent :exec
INSERT INTO events (id, aggregate_id, aggregate_type, event_type, version, transaction_id, payload, occurred_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

type InsertEventParams struct {
	ID            string             `json:"id"`
	AggregateID   string             `json:"aggregate_id"`
	AggregateType string             `json:"aggregate_type"`
	EventType     string             `json:"event_type"`
	Version       int64              `json:"version"`
	TransactionID pgtype.Text        `json:"transaction_id"`
	Payload       []byte             `json:"payload"`
	OccurredAt    pgtype.Timestamptz `json:"occurred_at"`
	CreatedAt     pgtype.Timestamptz `json:"created_at"`
}

func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) error {
	_, err := q.db.Exec(ctx, insertEvent,
		arg.ID,
		arg.AggregateID,
		arg.AggregateType,
		arg.EventType,
		arg.Version,
		arg.TransactionID,
		arg.Payload,
		arg.OccurredAt,
		arg.CreatedAt,
	)
	return err
}

const getEventsByAggregate = `-- name: GetEventsByAggregate :many
SELECT id, aggregate_id, aggregate_type, event_type, version, transaction_id, payload, occurred_at, created_at
FROM events
WHERE aggregate_id = $1
ORDER BY version ASC
`

func (q *Queries) GetEventsByAggregate(ctx context.Context, aggregateID string) ([]Event, error) {
	rows, err := q.db.Query(ctx, getEventsByAggregate, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Event{}
	for rows.Next() {
		var i Event
		if err := rows.Scan(
			&i.ID,
			&i.AggregateID,
			&i.AggregateType,
			&i.EventType,
			&i.Version,
			&i.TransactionID,
			&i.Payload,
			&i.OccurredAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getEventsByAggregateUntil = `-- name: GetEventsByAggregateUntil :many
SELECT id, aggregate_id, aggregate_type, event_type, version, transaction_id, payload, occurred_at, created_at
FROM events
WHERE aggregate_id = $1 AND occurred_at <= $2
ORDER BY version ASC
`

type GetEventsByAggregateUntilParams struct {
	AggregateID string             `json:"aggregate_id"`
	OccurredAt  pgtype.Timestamptz `json:"occurred_at"`
}

func (q *Queries) GetEventsByAggregateUntil(ctx context.Context, arg GetEventsByAggregateUntilParams) ([]Event, error) {
	rows, err := q.db.Query(ctx, getEventsByAggregateUntil, arg.AggregateID, arg.OccurredAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Event{}
	for rows.Next() {
		var i Event
		if err := rows.Scan(
			&i.ID,
			&i.AggregateID,
			&i.AggregateType,
			&i.EventType,
			&i.Version,
			&i.TransactionID,
			&i.Payload,
			&i.OccurredAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTransferEventsSince = `-- name: GetTransferEventsSince :many
SELECT id, aggregate_id, aggregate_type, event_type, version, transaction_id, payload, occurred_at, created_at
FROM events
WHERE event_type IN ('MONEY_TRANSFERRED_SENT', 'MONEY_TRANSFERRED_RECEIVED')
  AND occurred_at >= $1
ORDER BY occurred_at ASC, aggregate_id ASC, version ASC
`

func (q *Queries) GetTransferEventsSince(ctx context.Context, occurredAt pgtype.Timestamptz) ([]Event, error) {
	rows, err := q.db.Query(ctx, getTransferEventsSince, occurredAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Event{}
	for rows.Next() {
		var i Event
		if err := rows.Scan(
			&i.ID,
			&i.AggregateID,
			&i.AggregateType,
			&i.EventType,
			&i.Version,
			&i.TransactionID,
			&i.Payload,
			&i.OccurredAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
