package domain

import (
	"testing"
	"time"
)

func sampleEvents() []Event {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	meta := func(v int64) EventMeta { return EventMeta{WalletID: "w", Version: v, Timestamp: at} }

	return []Event{
		WalletCreated{EventMeta: meta(1), OwnerID: "o", InitialBalance: dec("0")},
		MoneyDeposited{EventMeta: meta(2), Amount: dec("5"), BalanceAfter: dec("5"), TransactionID: "t1"},
		MoneyWithdrawn{EventMeta: meta(3), Amount: dec("1"), BalanceAfter: dec("4"), TransactionID: "t2"},
		MoneyTransferred{EventMeta: meta(4), Direction: TransferSent, Amount: dec("1"), BalanceAfter: dec("3"), CounterpartyID: "x", TransactionID: "t3"},
		MoneyTransferred{EventMeta: meta(5), Direction: TransferReceived, Amount: dec("2"), BalanceAfter: dec("5"), CounterpartyID: "x", TransactionID: "t4"},
	}
}

func TestAllEventKindsAreFolded(t *testing.T) {
	seen := map[string]bool{}
	w := &Wallet{}
	for _, e := range sampleEvents() {
		w.Apply(e)
		seen[e.Kind()] = true
	}

	for _, kind := range AllEventKinds {
		if !seen[kind] {
			t.Errorf("kind %s not covered by sample events", kind)
		}
	}
	if len(seen) != len(AllEventKinds) {
		t.Errorf("sample covers %d kinds, AllEventKinds has %d", len(seen), len(AllEventKinds))
	}
}

func TestEventsEqual(t *testing.T) {
	events := sampleEvents()

	for _, e := range events {
		if !EventsEqual(e, e) {
			t.Errorf("%s not equal to itself", e.Kind())
		}
	}

	sent := events[3].(MoneyTransferred)
	received := sent
	received.Direction = TransferReceived
	if EventsEqual(sent, received) {
		t.Error("sent and received legs with identical fields must differ")
	}

	scaled := events[1].(MoneyDeposited)
	scaled.Amount = dec("5.00")
	if !EventsEqual(events[1], scaled) {
		t.Error("decimal scale should not affect equality")
	}

	later := events[1].(MoneyDeposited)
	later.Timestamp = later.Timestamp.Add(time.Microsecond)
	if EventsEqual(events[1], later) {
		t.Error("events with different timestamps must differ")
	}

	if EventsEqual(events[0], nil) {
		t.Error("event must not equal nil")
	}
}

func TestTransferDirectionOpposite(t *testing.T) {
	if TransferSent.Opposite() != TransferReceived || TransferReceived.Opposite() != TransferSent {
		t.Fatal("unexpected opposite direction")
	}
}

func TestNewOutboxEvent(t *testing.T) {
	e := sampleEvents()[3]
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	out := NewOutboxEvent("ob-1", e, created)

	if out.EventType != EventKindTransferSent || out.AggregateType != AggregateTypeWallet {
		t.Fatalf("unexpected outbox event %+v", out)
	}
	if out.Payload["counterparty_id"] != "x" || out.Payload["amount"] != "1" {
		t.Errorf("unexpected payload %v", out.Payload)
	}
	if out.Version != 4 {
		t.Errorf("expected version 4, got %d", out.Version)
	}
}
