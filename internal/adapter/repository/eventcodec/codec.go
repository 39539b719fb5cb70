// Package eventcodec converts wallet events to and from the JSON payload
// stored in the event log. The recorded event kind, not the payload shape,
// selects the decoder.
package eventcodec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/domain"
)

type envelope struct {
	WalletID   string    `json:"wallet_id"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

type createdPayload struct {
	envelope
	OwnerID        string          `json:"owner_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type movementPayload struct {
	envelope
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	TransactionID string          `json:"transaction_id"`
}

type transferPayload struct {
	envelope
	Direction      domain.TransferDirection `json:"direction"`
	Amount         decimal.Decimal          `json:"amount"`
	BalanceAfter   decimal.Decimal          `json:"balance_after"`
	CounterpartyID string                   `json:"counterparty_id"`
	TransactionID  string                   `json:"transaction_id"`
}

func envelopeOf(e domain.Event) envelope {
	return envelope{
		WalletID:   e.AggregateID(),
		Version:    e.EventVersion(),
		OccurredAt: e.OccurredAt(),
	}
}

func (e envelope) meta() domain.EventMeta {
	return domain.EventMeta{
		WalletID:  e.WalletID,
		Version:   e.Version,
		Timestamp: e.OccurredAt.UTC(),
	}
}

// Encode returns the event kind and its JSON payload.
func Encode(e domain.Event) (string, []byte, error) {
	var v any

	switch ev := e.(type) {
	case domain.WalletCreated:
		v = createdPayload{envelope: envelopeOf(ev), OwnerID: ev.OwnerID, InitialBalance: ev.InitialBalance}
	case domain.MoneyDeposited:
		v = movementPayload{envelope: envelopeOf(ev), Amount: ev.Amount, BalanceAfter: ev.BalanceAfter, TransactionID: ev.TransactionID}
	case domain.MoneyWithdrawn:
		v = movementPayload{envelope: envelopeOf(ev), Amount: ev.Amount, BalanceAfter: ev.BalanceAfter, TransactionID: ev.TransactionID}
	case domain.MoneyTransferred:
		v = transferPayload{
			envelope:       envelopeOf(ev),
			Direction:      ev.Direction,
			Amount:         ev.Amount,
			BalanceAfter:   ev.BalanceAfter,
			CounterpartyID: ev.CounterpartyID,
			TransactionID:  ev.TransactionID,
		}
	default:
		return "", nil, fmt.Errorf("%w: cannot encode %T", domain.ErrSerialization, e)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("%w: encode %s: %w", domain.ErrSerialization, e.Kind(), err)
	}
	return e.Kind(), data, nil
}

// Decode rebuilds an event from its recorded kind and payload.
func Decode(kind string, data []byte) (domain.Event, error) {
	switch kind {
	case domain.EventKindWalletCreated:
		var p createdPayload
		if err := unmarshal(kind, data, &p, &p.envelope); err != nil {
			return nil, err
		}
		return domain.WalletCreated{EventMeta: p.meta(), OwnerID: p.OwnerID, InitialBalance: p.InitialBalance}, nil

	case domain.EventKindMoneyDeposited:
		var p movementPayload
		if err := unmarshal(kind, data, &p, &p.envelope); err != nil {
			return nil, err
		}
		return domain.MoneyDeposited{EventMeta: p.meta(), Amount: p.Amount, BalanceAfter: p.BalanceAfter, TransactionID: p.TransactionID}, nil

	case domain.EventKindMoneyWithdrawn:
		var p movementPayload
		if err := unmarshal(kind, data, &p, &p.envelope); err != nil {
			return nil, err
		}
		return domain.MoneyWithdrawn{EventMeta: p.meta(), Amount: p.Amount, BalanceAfter: p.BalanceAfter, TransactionID: p.TransactionID}, nil

	case domain.EventKindTransferSent, domain.EventKindTransferReceived:
		var p transferPayload
		if err := unmarshal(kind, data, &p, &p.envelope); err != nil {
			return nil, err
		}
		direction := domain.TransferSent
		if kind == domain.EventKindTransferReceived {
			direction = domain.TransferReceived
		}
		if p.Direction != "" && p.Direction != direction {
			return nil, fmt.Errorf("%w: %s payload carries direction %s", domain.ErrSerialization, kind, p.Direction)
		}
		return domain.MoneyTransferred{
			EventMeta:      p.meta(),
			Direction:      direction,
			Amount:         p.Amount,
			BalanceAfter:   p.BalanceAfter,
			CounterpartyID: p.CounterpartyID,
			TransactionID:  p.TransactionID,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", domain.ErrSerialization, kind)
	}
}

func unmarshal(kind string, data []byte, v any, env *envelope) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", domain.ErrSerialization, kind, err)
	}
	if env.WalletID == "" || env.Version < 1 {
		return fmt.Errorf("%w: %s payload missing wallet id or version", domain.ErrSerialization, kind)
	}
	return nil
}

// TransactionID extracts the transaction id of a payload, if it has one.
func TransactionID(e domain.Event) string {
	switch ev := e.(type) {
	case domain.MoneyDeposited:
		return ev.TransactionID
	case domain.MoneyWithdrawn:
		return ev.TransactionID
	case domain.MoneyTransferred:
		return ev.TransactionID
	default:
		return ""
	}
}
