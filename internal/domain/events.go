package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event kinds as recorded in the event log.
const (
	EventKindWalletCreated    = "WALLET_CREATED"
	EventKindMoneyDeposited   = "MONEY_DEPOSITED"
	EventKindMoneyWithdrawn   = "MONEY_WITHDRAWN"
	EventKindTransferSent     = "MONEY_TRANSFERRED_SENT"
	EventKindTransferReceived = "MONEY_TRANSFERRED_RECEIVED"
)

// AllEventKinds lists every kind understood by Wallet.Apply.
var AllEventKinds = []string{
	EventKindWalletCreated,
	EventKindMoneyDeposited,
	EventKindMoneyWithdrawn,
	EventKindTransferSent,
	EventKindTransferReceived,
}

// AggregateTypeWallet is the entity type tag stored next to every wallet event.
const AggregateTypeWallet = "Wallet"

// Event is an immutable fact about one wallet state change.
//
// The set of implementations is closed: WalletCreated, MoneyDeposited,
// MoneyWithdrawn and MoneyTransferred.
type Event interface {
	Kind() string
	AggregateID() string
	EventVersion() int64
	OccurredAt() time.Time

	walletEvent()
}

// EventMeta is the envelope shared by all wallet events.
type EventMeta struct {
	WalletID  string
	Version   int64
	Timestamp time.Time
}

func (m EventMeta) AggregateID() string   { return m.WalletID }
func (m EventMeta) EventVersion() int64   { return m.Version }
func (m EventMeta) OccurredAt() time.Time { return m.Timestamp }

func (m EventMeta) equal(o EventMeta) bool {
	return m.WalletID == o.WalletID && m.Version == o.Version && m.Timestamp.Equal(o.Timestamp)
}

// WalletCreated opens a wallet stream. It is always version 1.
type WalletCreated struct {
	EventMeta
	OwnerID        string
	InitialBalance decimal.Decimal
}

func (WalletCreated) Kind() string { return EventKindWalletCreated }
func (WalletCreated) walletEvent() {}

// MoneyDeposited records a credit from outside the ledger.
type MoneyDeposited struct {
	EventMeta
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	TransactionID string
}

func (MoneyDeposited) Kind() string { return EventKindMoneyDeposited }
func (MoneyDeposited) walletEvent() {}

// MoneyWithdrawn records a debit leaving the ledger.
type MoneyWithdrawn struct {
	EventMeta
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	TransactionID string
}

func (MoneyWithdrawn) Kind() string { return EventKindMoneyWithdrawn }
func (MoneyWithdrawn) walletEvent() {}

// TransferDirection distinguishes the two legs of a transfer.
type TransferDirection string

const (
	TransferSent     TransferDirection = "SENT"
	TransferReceived TransferDirection = "RECEIVED"
)

// Opposite returns the direction of the matching leg.
func (d TransferDirection) Opposite() TransferDirection {
	if d == TransferSent {
		return TransferReceived
	}
	return TransferSent
}

// MoneyTransferred is one leg of a wallet-to-wallet transfer. Both legs share
// the same TransactionID; CounterpartyID names the other wallet.
type MoneyTransferred struct {
	EventMeta
	Direction      TransferDirection
	Amount         decimal.Decimal
	BalanceAfter   decimal.Decimal
	CounterpartyID string
	TransactionID  string
}

func (e MoneyTransferred) Kind() string {
	if e.Direction == TransferReceived {
		return EventKindTransferReceived
	}
	return EventKindTransferSent
}

func (MoneyTransferred) walletEvent() {}

// EventsEqual reports whether two events have the same kind and identical fields.
func EventsEqual(a, b Event) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case WalletCreated:
		y := b.(WalletCreated)
		return x.EventMeta.equal(y.EventMeta) &&
			x.OwnerID == y.OwnerID &&
			x.InitialBalance.Equal(y.InitialBalance)
	case MoneyDeposited:
		y := b.(MoneyDeposited)
		return x.EventMeta.equal(y.EventMeta) &&
			x.Amount.Equal(y.Amount) &&
			x.BalanceAfter.Equal(y.BalanceAfter) &&
			x.TransactionID == y.TransactionID
	case MoneyWithdrawn:
		y := b.(MoneyWithdrawn)
		return x.EventMeta.equal(y.EventMeta) &&
			x.Amount.Equal(y.Amount) &&
			x.BalanceAfter.Equal(y.BalanceAfter) &&
			x.TransactionID == y.TransactionID
	case MoneyTransferred:
		y := b.(MoneyTransferred)
		return x.EventMeta.equal(y.EventMeta) &&
			x.Direction == y.Direction &&
			x.Amount.Equal(y.Amount) &&
			x.BalanceAfter.Equal(y.BalanceAfter) &&
			x.CounterpartyID == y.CounterpartyID &&
			x.TransactionID == y.TransactionID
	default:
		panic(unknownEvent(a))
	}
}

func unknownEvent(e Event) string {
	return "domain: unknown wallet event kind " + e.Kind()
}
