package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// WalletResponse represents a wallet in API responses.
type WalletResponse struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Balance     decimal.Decimal `json:"balance"`
	Version     int64           `json:"version"`
	LastUpdated *time.Time      `json:"last_updated,omitempty"`
}

// WalletFromDomain converts a folded wallet to a response.
func WalletFromDomain(w *domain.Wallet) *WalletResponse {
	resp := &WalletResponse{
		ID:      w.ID(),
		OwnerID: w.OwnerID(),
		Balance: w.Balance(),
		Version: w.Version(),
	}
	if at := w.LastOccurredAt(); !at.IsZero() {
		resp.LastUpdated = &at
	}
	return resp
}

// WalletFromProjection converts a projection row to a response.
func WalletFromProjection(p *domain.WalletProjection) *WalletResponse {
	resp := &WalletResponse{
		ID:      p.ID,
		OwnerID: p.OwnerID,
		Balance: p.Balance,
		Version: p.Version,
	}
	if !p.LastUpdated.IsZero() {
		at := p.LastUpdated
		resp.LastUpdated = &at
	}
	return resp
}

// WalletListResponse is one page of wallets.
type WalletListResponse struct {
	Wallets []*WalletResponse `json:"wallets"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// WalletsFromProjections converts a page of projections.
func WalletsFromProjections(ps []*domain.WalletProjection, limit, offset int) *WalletListResponse {
	resp := &WalletListResponse{
		Wallets: make([]*WalletResponse, 0, len(ps)),
		Limit:   limit,
		Offset:  offset,
	}
	for _, p := range ps {
		resp.Wallets = append(resp.Wallets, WalletFromProjection(p))
	}
	return resp
}

// OperationResponse is returned by deposit and withdraw.
type OperationResponse struct {
	Wallet        *WalletResponse `json:"wallet"`
	TransactionID string          `json:"transaction_id"`
}

// OperationFromUseCase converts an operation result.
func OperationFromUseCase(res *usecase.OperationResult) *OperationResponse {
	return &OperationResponse{
		Wallet:        WalletFromDomain(res.Wallet),
		TransactionID: res.TransactionID,
	}
}

// TransferResponse is returned by transfers.
type TransferResponse struct {
	TransactionID string          `json:"transaction_id"`
	From          *WalletResponse `json:"from"`
	To            *WalletResponse `json:"to"`
}

// TransferFromUseCase converts a transfer result.
func TransferFromUseCase(res *usecase.TransferResult) *TransferResponse {
	return &TransferResponse{
		TransactionID: res.TransactionID,
		From:          WalletFromDomain(res.From),
		To:            WalletFromDomain(res.To),
	}
}

// SnapshotResponse is a wallet state reconstructed as of a point in time.
type SnapshotResponse struct {
	ID      string          `json:"id"`
	OwnerID string          `json:"owner_id"`
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
	At      time.Time       `json:"at"`
}

// SnapshotFromUseCase converts a wallet snapshot.
func SnapshotFromUseCase(s *usecase.WalletSnapshot) *SnapshotResponse {
	return &SnapshotResponse{
		ID:      s.ID,
		OwnerID: s.OwnerID,
		Balance: s.Balance,
		Version: s.Version,
		At:      s.At,
	}
}

// EventResponse is one entry of a wallet's event history.
type EventResponse struct {
	Type           string           `json:"type"`
	WalletID       string           `json:"wallet_id"`
	Version        int64            `json:"version"`
	OccurredAt     time.Time        `json:"occurred_at"`
	OwnerID        string           `json:"owner_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	BalanceAfter   *decimal.Decimal `json:"balance_after,omitempty"`
	CounterpartyID string           `json:"counterparty_id,omitempty"`
	TransactionID  string           `json:"transaction_id,omitempty"`
}

// EventFromDomain converts a stored event.
func EventFromDomain(e domain.Event) EventResponse {
	resp := EventResponse{
		Type:       e.Kind(),
		WalletID:   e.AggregateID(),
		Version:    e.EventVersion(),
		OccurredAt: e.OccurredAt(),
	}

	switch ev := e.(type) {
	case domain.WalletCreated:
		resp.OwnerID = ev.OwnerID
		resp.BalanceAfter = &ev.InitialBalance
	case domain.MoneyDeposited:
		resp.Amount, resp.BalanceAfter = &ev.Amount, &ev.BalanceAfter
		resp.TransactionID = ev.TransactionID
	case domain.MoneyWithdrawn:
		resp.Amount, resp.BalanceAfter = &ev.Amount, &ev.BalanceAfter
		resp.TransactionID = ev.TransactionID
	case domain.MoneyTransferred:
		resp.Amount, resp.BalanceAfter = &ev.Amount, &ev.BalanceAfter
		resp.CounterpartyID = ev.CounterpartyID
		resp.TransactionID = ev.TransactionID
	}

	return resp
}

// EventsFromDomain converts an event stream.
func EventsFromDomain(events []domain.Event) []EventResponse {
	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = EventFromDomain(e)
	}
	return out
}

// HistoryResponse lists a wallet's events.
type HistoryResponse struct {
	WalletID string          `json:"wallet_id"`
	Events   []EventResponse `json:"events"`
}

// ReconciliationResultResponse is the outcome of checking one wallet.
type ReconciliationResultResponse struct {
	WalletID          string          `json:"wallet_id"`
	RecordedBalance   decimal.Decimal `json:"recorded_balance"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	Difference        decimal.Decimal `json:"difference"`
	RecordedVersion   int64           `json:"recorded_version"`
	CalculatedVersion int64           `json:"calculated_version"`
	MissingProjection bool            `json:"missing_projection,omitempty"`
	IsReconciled      bool            `json:"is_reconciled"`
	LastChecked       time.Time       `json:"last_checked"`
}

// ReconciliationFromUseCase converts a reconciliation result.
func ReconciliationFromUseCase(r *usecase.ReconciliationResult) *ReconciliationResultResponse {
	return &ReconciliationResultResponse{
		WalletID:          r.WalletID,
		RecordedBalance:   r.RecordedBalance,
		CalculatedBalance: r.CalculatedBalance,
		Difference:        r.Difference,
		RecordedVersion:   r.RecordedVersion,
		CalculatedVersion: r.CalculatedVersion,
		MissingProjection: r.MissingProjection,
		IsReconciled:      r.IsReconciled,
		LastChecked:       r.LastChecked,
	}
}

// UnmatchedLegResponse is a transfer leg without its counterpart.
type UnmatchedLegResponse struct {
	TransactionID  string          `json:"transaction_id"`
	WalletID       string          `json:"wallet_id"`
	CounterpartyID string          `json:"counterparty_id"`
	Direction      string          `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// ReportResponse summarizes a full reconciliation run.
type ReportResponse struct {
	TotalWallets      int                             `json:"total_wallets"`
	ReconciledWallets int                             `json:"reconciled_wallets"`
	Consistent        bool                            `json:"consistent"`
	Discrepancies     []*ReconciliationResultResponse `json:"discrepancies"`
	UnmatchedLegs     []UnmatchedLegResponse          `json:"unmatched_legs"`
	CheckedAt         time.Time                       `json:"checked_at"`
}

// ReportFromUseCase converts a reconciliation report.
func ReportFromUseCase(r *usecase.ReconciliationReport) *ReportResponse {
	resp := &ReportResponse{
		TotalWallets:      r.TotalWallets,
		ReconciledWallets: r.ReconciledWallets,
		Consistent:        r.Consistent,
		Discrepancies:     make([]*ReconciliationResultResponse, 0, len(r.Discrepancies)),
		UnmatchedLegs:     make([]UnmatchedLegResponse, 0, len(r.UnmatchedLegs)),
		CheckedAt:         r.CheckedAt,
	}
	for _, d := range r.Discrepancies {
		resp.Discrepancies = append(resp.Discrepancies, ReconciliationFromUseCase(d))
	}
	for _, l := range r.UnmatchedLegs {
		resp.UnmatchedLegs = append(resp.UnmatchedLegs, UnmatchedLegResponse{
			TransactionID:  l.TransactionID,
			WalletID:       l.WalletID,
			CounterpartyID: l.CounterpartyID,
			Direction:      string(l.Direction),
			Amount:         l.Amount,
			OccurredAt:     l.OccurredAt,
		})
	}
	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
