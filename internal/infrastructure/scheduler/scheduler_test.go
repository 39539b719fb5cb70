package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

type generatorFunc func(ctx context.Context, since time.Time) (*usecase.ReconciliationReport, error)

func (f generatorFunc) GenerateReconciliationReport(ctx context.Context, since time.Time) (*usecase.ReconciliationReport, error) {
	return f(ctx, since)
}

func TestRunReconciliationLogsFindings(t *testing.T) {
	var buf bytes.Buffer
	s := New(generatorFunc(func(ctx context.Context, since time.Time) (*usecase.ReconciliationReport, error) {
		assert.True(t, since.IsZero())
		return &usecase.ReconciliationReport{
			TotalWallets: 3,
			Discrepancies: []*usecase.ReconciliationResult{{
				WalletID: "w-2", RecordedBalance: decimal.NewFromInt(9), CalculatedBalance: decimal.NewFromInt(7),
			}},
			UnmatchedLegs: []usecase.UnmatchedLeg{{
				TransactionID: "tx-1", WalletID: "w-1", CounterpartyID: "w-3", Direction: domain.TransferSent, Amount: decimal.NewFromInt(1),
			}},
			ReconciledWallets: 2,
		}, nil
	}), zerolog.New(&buf))

	s.RunReconciliation()

	out := buf.String()
	assert.Contains(t, out, `"wallet_id":"w-2"`)
	assert.Contains(t, out, `"transaction_id":"tx-1"`)
	assert.Contains(t, out, `"message":"reconciliation completed"`)
	assert.Equal(t, 3, strings.Count(out, `"level":"warn"`))
}

func TestRunReconciliationLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	s := New(generatorFunc(func(ctx context.Context, since time.Time) (*usecase.ReconciliationReport, error) {
		return nil, errors.New("db down")
	}), zerolog.New(&buf))

	s.RunReconciliation()

	assert.Contains(t, buf.String(), "reconciliation failed")
}

func TestScheduleReconciliation(t *testing.T) {
	var runs atomic.Int32
	s := New(generatorFunc(func(ctx context.Context, since time.Time) (*usecase.ReconciliationReport, error) {
		runs.Add(1)
		return &usecase.ReconciliationReport{Consistent: true}, nil
	}), zerolog.Nop())

	require.Error(t, s.ScheduleReconciliation("not a schedule"))
	require.NoError(t, s.ScheduleReconciliation("@every 1s"))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
