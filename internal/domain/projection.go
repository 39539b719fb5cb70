package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletProjection is the denormalized current state of a wallet. It can
// always be rebuilt from the event log and is never authoritative.
type WalletProjection struct {
	ID          string
	OwnerID     string
	Balance     decimal.Decimal
	Version     int64
	LastUpdated time.Time
}

// ProjectionOf snapshots the folded state of w.
func ProjectionOf(w *Wallet, updatedAt time.Time) *WalletProjection {
	return &WalletProjection{
		ID:          w.ID(),
		OwnerID:     w.OwnerID(),
		Balance:     w.Balance(),
		Version:     w.Version(),
		LastUpdated: updatedAt,
	}
}

// Matches reports whether the projection agrees with the folded wallet.
func (p *WalletProjection) Matches(w *Wallet) bool {
	return p.ID == w.ID() &&
		p.OwnerID == w.OwnerID() &&
		p.Version == w.Version() &&
		p.Balance.Equal(w.Balance())
}
