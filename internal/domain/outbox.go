package domain

import "time"

// OutboxEvent represents a wallet event waiting to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Version       int64
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewOutboxEvent builds the outbox record for a persisted wallet event.
func NewOutboxEvent(id string, e Event, createdAt time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   e.AggregateID(),
		AggregateType: AggregateTypeWallet,
		EventType:     e.Kind(),
		Version:       e.EventVersion(),
		Payload:       eventPayload(e),
		CreatedAt:     createdAt,
	}
}

func eventPayload(e Event) map[string]any {
	payload := map[string]any{
		"wallet_id":   e.AggregateID(),
		"version":     e.EventVersion(),
		"occurred_at": e.OccurredAt().Format(time.RFC3339Nano),
	}

	switch ev := e.(type) {
	case WalletCreated:
		payload["owner_id"] = ev.OwnerID
		payload["initial_balance"] = ev.InitialBalance.String()
	case MoneyDeposited:
		payload["amount"] = ev.Amount.String()
		payload["balance_after"] = ev.BalanceAfter.String()
		payload["transaction_id"] = ev.TransactionID
	case MoneyWithdrawn:
		payload["amount"] = ev.Amount.String()
		payload["balance_after"] = ev.BalanceAfter.String()
		payload["transaction_id"] = ev.TransactionID
	case MoneyTransferred:
		payload["direction"] = string(ev.Direction)
		payload["amount"] = ev.Amount.String()
		payload["balance_after"] = ev.BalanceAfter.String()
		payload["counterparty_id"] = ev.CounterpartyID
		payload["transaction_id"] = ev.TransactionID
	default:
		panic(unknownEvent(e))
	}

	return payload
}
