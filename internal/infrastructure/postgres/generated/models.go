package generated

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Event struct {
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

type OutboxEvent struct {
	ID            string             `json:"id"`
	AggregateID   string             `json:"aggregate_id"`
	AggregateType string             `json:"aggregate_type"`
	EventType     string             `json:"event_type"`
	Version       int64              `json:"version"`
	Payload       []byte             `json:"payload"`
	CreatedAt     pgtype.Timestamptz `json:"created_at"`
	PublishedAt   pgtype.Timestamptz `json:"published_at"`
	Published     bool               `json:"published"`
}

type WalletProjection struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"owner_id"`
	Balance     pgtype.Numeric     `json:"balance"`
	Version     int64              `json:"version"`
	LastUpdated pgtype.Timestamptz `json:"last_updated"`
}
