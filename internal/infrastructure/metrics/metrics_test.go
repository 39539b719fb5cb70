package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

var _ usecase.Metrics = (*Metrics)(nil)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordOperation("deposit", 10*time.Millisecond, nil)
	m.RecordEventsAppended(domain.EventKindMoneyDeposited, 1)
	m.RecordConcurrencyConflict()
	m.RecordReconciliation(0, 0)
	m.RecordOutboxBatch(3)
	m.RecordOutboxPublish(nil)

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) < 8 {
		t.Fatalf("expected registered metrics, got %d families", len(metricFamilies))
	}
}

func TestRecordOperationLabelsOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordOperation("withdraw", time.Millisecond, domain.ErrInsufficientFunds)
	m.RecordOperation("withdraw", time.Millisecond, errors.New("boom"))
	m.RecordOperation("withdraw", time.Millisecond, nil)

	for _, result := range []string{"insufficient_funds", "error", "ok"} {
		if got := testutil.ToFloat64(m.Operations.WithLabelValues("withdraw", result)); got != 1 {
			t.Fatalf("expected one %s result, got %v", result, got)
		}
	}
}

func TestRecordReconciliationSetsGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordReconciliation(2, 5)

	if got := testutil.ToFloat64(m.ReconciliationDiscrepancies); got != 2 {
		t.Fatalf("expected 2 discrepancies, got %v", got)
	}
	if got := testutil.ToFloat64(m.UnmatchedTransferLegs); got != 5 {
		t.Fatalf("expected 5 unmatched legs, got %v", got)
	}
	if got := testutil.ToFloat64(m.ReconciliationRuns); got != 1 {
		t.Fatalf("expected one run, got %v", got)
	}
}
