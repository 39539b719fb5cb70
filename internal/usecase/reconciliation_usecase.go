package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/domain"
)

// TransferSettleWindow is how long a transfer leg may wait for its
// counterpart before it is reported as unmatched.
const TransferSettleWindow = time.Minute

// ReconciliationUseCase compares projections with the event log and pairs
// transfer legs.
type ReconciliationUseCase struct {
	repo    *WalletRepository
	metrics Metrics
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(repo *WalletRepository, metrics Metrics) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		repo:    repo,
		metrics: metrics,
	}
}

// ReconciliationResult represents the result of a reconciliation check
type ReconciliationResult struct {
	WalletID          string
	RecordedBalance   decimal.Decimal
	CalculatedBalance decimal.Decimal
	Difference        decimal.Decimal
	RecordedVersion   int64
	CalculatedVersion int64
	MissingProjection bool
	IsReconciled      bool
	LastChecked       time.Time
}

// UnmatchedLeg is a transfer leg with no counterpart carrying the same
// transaction id.
type UnmatchedLeg struct {
	TransactionID  string
	WalletID       string
	CounterpartyID string
	Direction      domain.TransferDirection
	Amount         decimal.Decimal
	OccurredAt     time.Time
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalWallets      int
	ReconciledWallets int
	Discrepancies     []*ReconciliationResult
	UnmatchedLegs     []UnmatchedLeg
	Consistent        bool
	CheckedAt         time.Time
}

// ReconcileWallet replays a wallet and compares the result with its projection.
func (uc *ReconciliationUseCase) ReconcileWallet(ctx context.Context, walletID string) (*ReconciliationResult, error) {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return nil, err
	}

	w, err := uc.repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	result := &ReconciliationResult{
		WalletID:          walletID,
		CalculatedBalance: w.Balance(),
		CalculatedVersion: w.Version(),
		LastChecked:       uc.repo.Clock().Now().UTC(),
	}

	p, err := uc.repo.projections.GetByID(ctx, walletID)
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		result.MissingProjection = true
		result.RecordedBalance = decimal.Zero
	case err != nil:
		return nil, err
	default:
		result.RecordedBalance = p.Balance
		result.RecordedVersion = p.Version
		result.IsReconciled = p.Matches(w)
	}

	result.Difference = result.RecordedBalance.Sub(result.CalculatedBalance)
	return result, nil
}

// RebuildProjection overwrites a wallet's projection from its event log.
func (uc *ReconciliationUseCase) RebuildProjection(ctx context.Context, walletID string) (*domain.WalletProjection, error) {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return nil, err
	}
	return uc.repo.RebuildProjection(ctx, walletID)
}

// ReconcileAllWallets reconciles every wallet that has a projection row.
func (uc *ReconciliationUseCase) ReconcileAllWallets(ctx context.Context) ([]*ReconciliationResult, error) {
	var results []*ReconciliationResult

	for offset := 0; ; offset += reconciliationPageSize {
		page, err := uc.repo.Projections(ctx, reconciliationPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, p := range page {
			result, err := uc.ReconcileWallet(ctx, p.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile wallet %s: %w", p.ID, err)
			}
			results = append(results, result)
		}

		if len(page) < reconciliationPageSize {
			return results, nil
		}
	}
}

// FindUnmatchedTransferLegs pairs transfer legs recorded since the given time
// by transaction id. Legs younger than TransferSettleWindow are skipped since
// their counterpart may still be in flight.
func (uc *ReconciliationUseCase) FindUnmatchedTransferLegs(ctx context.Context, since time.Time) ([]UnmatchedLeg, error) {
	legs, err := uc.repo.TransferLegs(ctx, since)
	if err != nil {
		return nil, err
	}

	cutoff := uc.repo.Clock().Now().UTC().Add(-TransferSettleWindow)

	byTx := make(map[string][]domain.MoneyTransferred, len(legs))
	for _, leg := range legs {
		byTx[leg.TransactionID] = append(byTx[leg.TransactionID], leg)
	}

	var unmatched []UnmatchedLeg
	for _, leg := range legs {
		if leg.OccurredAt().After(cutoff) {
			continue
		}
		if hasCounterpart(leg, byTx[leg.TransactionID]) {
			continue
		}
		unmatched = append(unmatched, UnmatchedLeg{
			TransactionID:  leg.TransactionID,
			WalletID:       leg.WalletID,
			CounterpartyID: leg.CounterpartyID,
			Direction:      leg.Direction,
			Amount:         leg.Amount,
			OccurredAt:     leg.OccurredAt(),
		})
	}

	sort.Slice(unmatched, func(i, j int) bool {
		return unmatched[i].OccurredAt.Before(unmatched[j].OccurredAt)
	})

	return unmatched, nil
}

func hasCounterpart(leg domain.MoneyTransferred, candidates []domain.MoneyTransferred) bool {
	for _, c := range candidates {
		if c.Direction == leg.Direction.Opposite() &&
			c.WalletID == leg.CounterpartyID &&
			c.CounterpartyID == leg.WalletID &&
			c.Amount.Equal(leg.Amount) {
			return true
		}
	}
	return false
}

// GenerateReconciliationReport reconciles all wallets and reports transfer
// legs recorded since the given time that have no counterpart.
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context, since time.Time) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllWallets(ctx)
	if err != nil {
		return nil, err
	}

	unmatched, err := uc.FindUnmatchedTransferLegs(ctx, since)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		TotalWallets:  len(results),
		Discrepancies: make([]*ReconciliationResult, 0),
		UnmatchedLegs: unmatched,
		CheckedAt:     uc.repo.Clock().Now().UTC(),
	}

	for _, result := range results {
		if result.IsReconciled {
			report.ReconciledWallets++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	report.Consistent = len(report.Discrepancies) == 0 && len(report.UnmatchedLegs) == 0

	if uc.metrics != nil {
		uc.metrics.RecordReconciliation(len(report.Discrepancies), len(report.UnmatchedLegs))
	}

	return report, nil
}
