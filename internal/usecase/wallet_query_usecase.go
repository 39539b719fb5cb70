package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/domain"
)

// WalletQueryUseCase serves wallet reads. Current state comes from the
// projection; historical state is replayed from the event log.
type WalletQueryUseCase struct {
	repo *WalletRepository
}

// NewWalletQueryUseCase creates a new WalletQueryUseCase.
func NewWalletQueryUseCase(repo *WalletRepository) *WalletQueryUseCase {
	return &WalletQueryUseCase{repo: repo}
}

// WalletSnapshot is the folded state of a wallet at a point in time.
type WalletSnapshot struct {
	ID      string
	OwnerID string
	Balance decimal.Decimal
	Version int64
	At      time.Time
}

// GetWallet returns the current projection of a wallet.
func (uc *WalletQueryUseCase) GetWallet(ctx context.Context, id string) (*domain.WalletProjection, error) {
	if err := domain.ValidateWalletID(id); err != nil {
		return nil, err
	}
	return uc.repo.Projection(ctx, id)
}

// GetWalletByOwner returns the current projection of the owner's wallet.
func (uc *WalletQueryUseCase) GetWalletByOwner(ctx context.Context, ownerID string) (*domain.WalletProjection, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	return uc.repo.ProjectionByOwner(ctx, ownerID)
}

// GetWalletAtTime replays the wallet up to and including at.
func (uc *WalletQueryUseCase) GetWalletAtTime(ctx context.Context, id string, at time.Time) (*WalletSnapshot, error) {
	if err := domain.ValidateWalletID(id); err != nil {
		return nil, err
	}

	w, err := uc.repo.FindByIDAtTime(ctx, id, at)
	if err != nil {
		return nil, err
	}

	return &WalletSnapshot{
		ID:      w.ID(),
		OwnerID: w.OwnerID(),
		Balance: w.Balance(),
		Version: w.Version(),
		At:      at,
	}, nil
}

// GetHistory returns every event recorded for the wallet, oldest first.
func (uc *WalletQueryUseCase) GetHistory(ctx context.Context, id string) ([]domain.Event, error) {
	if err := domain.ValidateWalletID(id); err != nil {
		return nil, err
	}
	return uc.repo.Events(ctx, id)
}

// ListWalletsInput pages through wallet projections.
type ListWalletsInput struct {
	Limit  int
	Offset int
}

// Normalize returns the page that ListWallets will actually serve: limit
// clamped to [1, MaxListLimit], DefaultListLimit when unset, offset >= 0.
func (in ListWalletsInput) Normalize() ListWalletsInput {
	in.Limit, in.Offset = domain.ValidatePagination(in.Limit, in.Offset, DefaultListLimit, MaxListLimit)
	return in
}

// ListWallets returns projections ordered by id for the normalized page.
func (uc *WalletQueryUseCase) ListWallets(ctx context.Context, input ListWalletsInput) ([]*domain.WalletProjection, error) {
	page := input.Normalize()
	return uc.repo.Projections(ctx, page.Limit, page.Offset)
}
