package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iho/walletledger/internal/domain"
)

// Metrics holds all Prometheus metrics and implements usecase.Metrics.
type Metrics struct {
	// Wallet operation metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Event store metrics
	EventsAppended       *prometheus.CounterVec
	ConcurrencyConflicts prometheus.Counter

	// Reconciliation metrics
	ReconciliationRuns          prometheus.Counter
	ReconciliationDiscrepancies prometheus.Gauge
	UnmatchedTransferLegs       prometheus.Gauge
	LastReconciliation          prometheus.Gauge

	// Outbox metrics
	OutboxPublished *prometheus.CounterVec
	OutboxBacklog   prometheus.Gauge
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_operations_total",
				Help: "Total wallet operations by type and outcome",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletledger_operation_duration_seconds",
				Help:    "Duration of wallet operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		EventsAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_events_appended_total",
				Help: "Total events appended to the event store by kind",
			},
			[]string{"kind"},
		),
		ConcurrencyConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_concurrency_conflicts_total",
			Help: "Total appends rejected by optimistic concurrency control",
		}),

		ReconciliationRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_reconciliation_runs_total",
			Help: "Total reconciliation reports generated",
		}),
		ReconciliationDiscrepancies: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walletledger_reconciliation_discrepancies",
			Help: "Wallets whose projection disagreed with replay in the last report",
		}),
		UnmatchedTransferLegs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walletledger_unmatched_transfer_legs",
			Help: "Transfer legs without a counterpart in the last report",
		}),
		LastReconciliation: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walletledger_last_reconciliation_timestamp_seconds",
			Help: "Unix time of the last reconciliation report",
		}),

		OutboxPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_outbox_published_total",
				Help: "Total outbox events handed to the publisher by outcome",
			},
			[]string{"result"},
		),
		OutboxBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walletledger_outbox_batch_size",
			Help: "Unpublished events fetched by the last outbox poll",
		}),
	}
}

// RecordOperation counts an operation and observes its duration.
func (m *Metrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.Operations.WithLabelValues(operation, resultLabel(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventsAppended counts persisted events.
func (m *Metrics) RecordEventsAppended(kind string, n int) {
	m.EventsAppended.WithLabelValues(kind).Add(float64(n))
}

// RecordConcurrencyConflict counts a rejected append.
func (m *Metrics) RecordConcurrencyConflict() {
	m.ConcurrencyConflicts.Inc()
}

// RecordReconciliation publishes the outcome of a reconciliation report.
func (m *Metrics) RecordReconciliation(discrepancies, unmatchedLegs int) {
	m.ReconciliationRuns.Inc()
	m.ReconciliationDiscrepancies.Set(float64(discrepancies))
	m.UnmatchedTransferLegs.Set(float64(unmatchedLegs))
	m.LastReconciliation.SetToCurrentTime()
}

// RecordOutboxBatch records the size of a polled outbox batch.
func (m *Metrics) RecordOutboxBatch(size int) {
	m.OutboxBacklog.Set(float64(size))
}

// RecordOutboxPublish counts one publish attempt.
func (m *Metrics) RecordOutboxPublish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OutboxPublished.WithLabelValues(result).Inc()
}

// resultLabel keeps the result label to a fixed set of values.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrWalletNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrWalletAlreadyExists):
		return "already_exists"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}
