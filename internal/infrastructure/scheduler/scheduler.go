// Package scheduler runs periodic ledger maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iho/walletledger/internal/usecase"
)

// ReportGenerator produces reconciliation reports.
type ReportGenerator interface {
	GenerateReconciliationReport(ctx context.Context, since time.Time) (*usecase.ReconciliationReport, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	generator ReportGenerator
	logger    zerolog.Logger
	timeout   time.Duration
}

// New creates a scheduler. Job panics are recovered and logged.
func New(generator ReportGenerator, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cronLogger := cron.PrintfLogger(&logger)

	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		generator: generator,
		logger:    logger,
		timeout:   10 * time.Minute,
	}
}

// ScheduleReconciliation registers the reconciliation job on spec, a
// standard five-field cron expression or a descriptor such as "@every 15m".
func (s *Scheduler) ScheduleReconciliation(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunReconciliation); err != nil {
		return fmt.Errorf("failed to schedule reconciliation %q: %w", spec, err)
	}
	s.logger.Info().Str("schedule", spec).Msg("scheduled reconciliation job")
	return nil
}

// RunReconciliation generates one report over the whole ledger and logs
// every inconsistency it finds.
func (s *Scheduler) RunReconciliation() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.generator.GenerateReconciliationReport(ctx, time.Time{})
	if err != nil {
		s.logger.Error().Err(err).Msg("reconciliation failed")
		return
	}

	for _, d := range report.Discrepancies {
		s.logger.Warn().
			Str("wallet_id", d.WalletID).
			Str("recorded_balance", d.RecordedBalance.String()).
			Str("calculated_balance", d.CalculatedBalance.String()).
			Int64("recorded_version", d.RecordedVersion).
			Int64("calculated_version", d.CalculatedVersion).
			Bool("missing_projection", d.MissingProjection).
			Msg("projection discrepancy")
	}
	for _, leg := range report.UnmatchedLegs {
		s.logger.Warn().
			Str("transaction_id", leg.TransactionID).
			Str("wallet_id", leg.WalletID).
			Str("counterparty_id", leg.CounterpartyID).
			Str("direction", string(leg.Direction)).
			Str("amount", leg.Amount.String()).
			Time("occurred_at", leg.OccurredAt).
			Msg("unmatched transfer leg")
	}

	event := s.logger.Info()
	if !report.Consistent {
		event = s.logger.Warn()
	}
	event.
		Int("total_wallets", report.TotalWallets).
		Int("reconciled_wallets", report.ReconciledWallets).
		Int("discrepancies", len(report.Discrepancies)).
		Int("unmatched_legs", len(report.UnmatchedLegs)).
		Dur("duration", time.Since(start)).
		Msg("reconciliation completed")
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
