package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/domain"
)

// WalletUseCase handles wallet commands.
type WalletUseCase struct {
	repo     *WalletRepository
	walletID IDGenerator
	txID     IDGenerator
	metrics  Metrics
}

// NewWalletUseCase creates a new WalletUseCase. walletIDs generates wallet
// identifiers and txIDs generates transaction identifiers.
func NewWalletUseCase(repo *WalletRepository, walletIDs, txIDs IDGenerator, metrics Metrics) *WalletUseCase {
	return &WalletUseCase{
		repo:     repo,
		walletID: walletIDs,
		txID:     txIDs,
		metrics:  metrics,
	}
}

// CreateWalletInput represents input for creating a wallet.
type CreateWalletInput struct {
	OwnerID string
}

// DepositInput represents input for a deposit.
type DepositInput struct {
	WalletID string
	Amount   decimal.Decimal
}

// WithdrawInput represents input for a withdrawal.
type WithdrawInput struct {
	WalletID string
	Amount   decimal.Decimal
}

// TransferInput represents input for a wallet-to-wallet transfer.
type TransferInput struct {
	FromWalletID string
	ToWalletID   string
	Amount       decimal.Decimal
}

// OperationResult is the outcome of a balance-changing command.
type OperationResult struct {
	Wallet        *domain.Wallet
	TransactionID string
}

// TransferResult is the outcome of a transfer.
type TransferResult struct {
	From          *domain.Wallet
	To            *domain.Wallet
	TransactionID string
}

// CreateWallet opens a wallet for an owner that has none yet.
func (uc *WalletUseCase) CreateWallet(ctx context.Context, input CreateWalletInput) (w *domain.Wallet, err error) {
	defer uc.observe(OpCreateWallet, time.Now(), &err)

	if err := domain.ValidateOwnerID(input.OwnerID); err != nil {
		return nil, err
	}

	// Fast path only; the unique owner index decides races.
	_, err = uc.repo.ProjectionByOwner(ctx, input.OwnerID)
	switch {
	case err == nil:
		return nil, domain.ErrWalletAlreadyExists
	case !errors.Is(err, domain.ErrWalletNotFound):
		return nil, err
	}

	w, err = domain.NewWallet(uc.walletID.Generate(), input.OwnerID, uc.repo.Clock())
	if err != nil {
		return nil, err
	}

	if err := uc.repo.Save(ctx, w); err != nil {
		return nil, err
	}

	return w, nil
}

// Deposit credits a wallet.
func (uc *WalletUseCase) Deposit(ctx context.Context, input DepositInput) (res *OperationResult, err error) {
	defer uc.observe(OpDeposit, time.Now(), &err)

	if err := validateCommand(input.WalletID, input.Amount); err != nil {
		return nil, err
	}

	w, err := uc.repo.FindByID(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}

	txID := uc.txID.Generate()
	if err := w.Deposit(input.Amount, txID); err != nil {
		return nil, err
	}

	if err := uc.repo.Save(ctx, w); err != nil {
		return nil, err
	}

	return &OperationResult{Wallet: w, TransactionID: txID}, nil
}

// Withdraw debits a wallet.
func (uc *WalletUseCase) Withdraw(ctx context.Context, input WithdrawInput) (res *OperationResult, err error) {
	defer uc.observe(OpWithdraw, time.Now(), &err)

	if err := validateCommand(input.WalletID, input.Amount); err != nil {
		return nil, err
	}

	w, err := uc.repo.FindByID(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}

	txID := uc.txID.Generate()
	if err := w.Withdraw(input.Amount, txID); err != nil {
		return nil, err
	}

	if err := uc.repo.Save(ctx, w); err != nil {
		return nil, err
	}

	return &OperationResult{Wallet: w, TransactionID: txID}, nil
}

// Transfer moves money between two wallets. The sending and receiving legs
// are saved separately; a failure between the two saves leaves an unmatched
// sent leg that reconciliation reports.
func (uc *WalletUseCase) Transfer(ctx context.Context, input TransferInput) (res *TransferResult, err error) {
	defer uc.observe(OpTransfer, time.Now(), &err)

	if input.FromWalletID == input.ToWalletID {
		return nil, domain.ErrSameWallet
	}
	if err := validateCommand(input.FromWalletID, input.Amount); err != nil {
		return nil, err
	}
	if err := domain.ValidateWalletID(input.ToWalletID); err != nil {
		return nil, err
	}

	from, err := uc.repo.FindByID(ctx, input.FromWalletID)
	if err != nil {
		return nil, err
	}
	to, err := uc.repo.FindByID(ctx, input.ToWalletID)
	if err != nil {
		return nil, err
	}

	txID := uc.txID.Generate()
	if err := from.TransferOut(to.ID(), input.Amount, txID); err != nil {
		return nil, err
	}
	if err := to.TransferIn(from.ID(), input.Amount, txID); err != nil {
		return nil, err
	}

	if err := uc.repo.Save(ctx, from); err != nil {
		return nil, err
	}
	if err := uc.repo.Save(ctx, to); err != nil {
		return nil, err
	}

	return &TransferResult{From: from, To: to, TransactionID: txID}, nil
}

func (uc *WalletUseCase) observe(op string, start time.Time, err *error) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordOperation(op, time.Since(start), *err)
}

func validateCommand(walletID string, amount decimal.Decimal) error {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return err
	}
	return domain.ValidateAmount(amount)
}
