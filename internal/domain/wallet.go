package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the event-sourced ledger aggregate. Balance and version are only
// ever changed by folding events through Apply.
type Wallet struct {
	id             string
	ownerID        string
	balance        decimal.Decimal
	version        int64
	lastOccurredAt time.Time
	pending        []Event
	clock          Clock
}

// NewWallet creates a fresh wallet with a pending WalletCreated event.
// Owner uniqueness is not checked here.
func NewWallet(id, ownerID string, clock Clock) (*Wallet, error) {
	if err := ValidateWalletID(id); err != nil {
		return nil, err
	}
	if err := ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	w := &Wallet{clock: clock}
	w.record(WalletCreated{
		EventMeta:      w.nextMeta(id),
		OwnerID:        ownerID,
		InitialBalance: decimal.Zero,
	})
	return w, nil
}

// ReplayWallet rebuilds a wallet from its stored event stream.
func ReplayWallet(events []Event, clock Clock) (*Wallet, error) {
	if len(events) == 0 {
		return nil, ErrWalletNotFound
	}
	if _, ok := events[0].(WalletCreated); !ok {
		return nil, fmt.Errorf("%w: first event is %s", ErrCorruptEventStream, events[0].Kind())
	}

	w := &Wallet{clock: clock}
	for i, e := range events {
		if e.EventVersion() != int64(i+1) {
			return nil, fmt.Errorf("%w: expected version %d, got %d", ErrCorruptEventStream, i+1, e.EventVersion())
		}
		if i > 0 && e.AggregateID() != w.id {
			return nil, fmt.Errorf("%w: event for %s in stream of %s", ErrCorruptEventStream, e.AggregateID(), w.id)
		}
		w.Apply(e)
	}
	return w, nil
}

func (w *Wallet) ID() string               { return w.id }
func (w *Wallet) OwnerID() string          { return w.ownerID }
func (w *Wallet) Balance() decimal.Decimal { return w.balance }
func (w *Wallet) Version() int64           { return w.version }

// LastOccurredAt is the timestamp of the most recently folded event.
func (w *Wallet) LastOccurredAt() time.Time { return w.lastOccurredAt }

// Deposit credits the wallet.
func (w *Wallet) Deposit(amount decimal.Decimal, transactionID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	w.record(MoneyDeposited{
		EventMeta:     w.nextMeta(w.id),
		Amount:        amount,
		BalanceAfter:  w.balance.Add(amount),
		TransactionID: transactionID,
	})
	return nil
}

// Withdraw debits the wallet. The balance never goes negative.
func (w *Wallet) Withdraw(amount decimal.Decimal, transactionID string) error {
	if err := w.validateDebit(amount); err != nil {
		return err
	}

	w.record(MoneyWithdrawn{
		EventMeta:     w.nextMeta(w.id),
		Amount:        amount,
		BalanceAfter:  w.balance.Sub(amount),
		TransactionID: transactionID,
	})
	return nil
}

// TransferOut records the sending leg of a transfer to toID.
func (w *Wallet) TransferOut(toID string, amount decimal.Decimal, transactionID string) error {
	if toID == w.id {
		return ErrSameWallet
	}
	if err := w.validateDebit(amount); err != nil {
		return err
	}

	w.record(MoneyTransferred{
		EventMeta:      w.nextMeta(w.id),
		Direction:      TransferSent,
		Amount:         amount,
		BalanceAfter:   w.balance.Sub(amount),
		CounterpartyID: toID,
		TransactionID:  transactionID,
	})
	return nil
}

// TransferIn records the receiving leg of a transfer from fromID.
func (w *Wallet) TransferIn(fromID string, amount decimal.Decimal, transactionID string) error {
	if fromID == w.id {
		return ErrSameWallet
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	w.record(MoneyTransferred{
		EventMeta:      w.nextMeta(w.id),
		Direction:      TransferReceived,
		Amount:         amount,
		BalanceAfter:   w.balance.Add(amount),
		CounterpartyID: fromID,
		TransactionID:  transactionID,
	})
	return nil
}

// Apply folds a single event into the wallet state. It performs no
// validation; an unknown event kind panics.
func (w *Wallet) Apply(e Event) {
	switch ev := e.(type) {
	case WalletCreated:
		w.id = ev.WalletID
		w.ownerID = ev.OwnerID
		w.balance = ev.InitialBalance
	case MoneyDeposited:
		w.balance = ev.BalanceAfter
	case MoneyWithdrawn:
		w.balance = ev.BalanceAfter
	case MoneyTransferred:
		w.balance = ev.BalanceAfter
	default:
		panic(unknownEvent(e))
	}

	w.version = e.EventVersion()
	w.lastOccurredAt = e.OccurredAt()
}

// PendingEvents returns the events not yet persisted without clearing them.
func (w *Wallet) PendingEvents() []Event {
	out := make([]Event, len(w.pending))
	copy(out, w.pending)
	return out
}

// TakePendingEvents returns the pending events and clears the buffer.
func (w *Wallet) TakePendingEvents() []Event {
	out := w.pending
	w.pending = nil
	return out
}

// PersistedVersion is the version the event log held when this wallet was
// loaded, i.e. the version before any pending event.
func (w *Wallet) PersistedVersion() int64 {
	return w.version - int64(len(w.pending))
}

func (w *Wallet) validateDebit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(w.balance) {
		return ErrInsufficientFunds
	}
	return nil
}

func (w *Wallet) record(e Event) {
	w.Apply(e)
	w.pending = append(w.pending, e)
}

// nextMeta stamps the next event. Timestamps strictly increase within a
// stream, one TimestampPrecision tick past the previous event when the clock
// stalls or steps back, so replaying up to any event's timestamp yields
// exactly the events up to and including it.
func (w *Wallet) nextMeta(walletID string) EventMeta {
	now := w.now()
	if !w.lastOccurredAt.IsZero() && !now.After(w.lastOccurredAt) {
		now = w.lastOccurredAt.Add(TimestampPrecision)
	}
	return EventMeta{
		WalletID:  walletID,
		Version:   w.version + 1,
		Timestamp: now,
	}
}

func (w *Wallet) now() time.Time {
	clock := w.clock
	if clock == nil {
		clock = SystemClock{}
	}
	return clock.Now().UTC().Truncate(TimestampPrecision)
}
