package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/usecase"
)

// CreateWalletRequest represents a request to open a wallet.
type CreateWalletRequest struct {
	OwnerID string `json:"owner_id"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateWalletRequest) ToUseCaseInput() usecase.CreateWalletInput {
	return usecase.CreateWalletInput{OwnerID: r.OwnerID}
}

// AmountRequest is the body of deposit and withdraw requests.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ToDepositInput converts to use case input.
func (r *AmountRequest) ToDepositInput(walletID string) usecase.DepositInput {
	return usecase.DepositInput{WalletID: walletID, Amount: r.Amount}
}

// ToWithdrawInput converts to use case input.
func (r *AmountRequest) ToWithdrawInput(walletID string) usecase.WithdrawInput {
	return usecase.WithdrawInput{WalletID: walletID, Amount: r.Amount}
}

// TransferRequest represents a request to move money between wallets.
type TransferRequest struct {
	FromWalletID string          `json:"from_wallet_id"`
	ToWalletID   string          `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *TransferRequest) ToUseCaseInput() usecase.TransferInput {
	return usecase.TransferInput{
		FromWalletID: r.FromWalletID,
		ToWalletID:   r.ToWalletID,
		Amount:       r.Amount,
	}
}
