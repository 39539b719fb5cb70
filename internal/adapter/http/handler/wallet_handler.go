package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/walletledger/internal/adapter/http/dto"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// WalletCommandService defines the mutations needed by WalletHandler.
type WalletCommandService interface {
	CreateWallet(ctx context.Context, input usecase.CreateWalletInput) (*domain.Wallet, error)
	Deposit(ctx context.Context, input usecase.DepositInput) (*usecase.OperationResult, error)
	Withdraw(ctx context.Context, input usecase.WithdrawInput) (*usecase.OperationResult, error)
}

// WalletQueryService defines the reads needed by WalletHandler.
type WalletQueryService interface {
	GetWallet(ctx context.Context, id string) (*domain.WalletProjection, error)
	GetWalletByOwner(ctx context.Context, ownerID string) (*domain.WalletProjection, error)
	GetWalletAtTime(ctx context.Context, id string, at time.Time) (*usecase.WalletSnapshot, error)
	GetHistory(ctx context.Context, id string) ([]domain.Event, error)
	ListWallets(ctx context.Context, input usecase.ListWalletsInput) ([]*domain.WalletProjection, error)
}

// WalletHandler handles wallet-related HTTP requests.
type WalletHandler struct {
	commands WalletCommandService
	queries  WalletQueryService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(commands WalletCommandService, queries WalletQueryService) *WalletHandler {
	return &WalletHandler{commands: commands, queries: queries}
}

// Create opens a wallet for an owner.
func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	wallet, err := h.commands.CreateWallet(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, r, "failed to create wallet", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.WalletFromDomain(wallet))
}

// Get returns the current projection of a wallet.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.queries.GetWallet(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "failed to get wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromProjection(p))
}

// GetByOwner returns the wallet belonging to an owner.
func (h *WalletHandler) GetByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	p, err := h.queries.GetWalletByOwner(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, r, "failed to get wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromProjection(p))
}

// List pages through wallets.
func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	page := usecase.ListWalletsInput{
		Limit:  parseIntQuery(r, "limit", usecase.DefaultListLimit),
		Offset: parseIntQuery(r, "offset", 0),
	}.Normalize()

	wallets, err := h.queries.ListWallets(r.Context(), page)
	if err != nil {
		writeDomainError(w, r, "failed to list wallets", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletsFromProjections(wallets, page.Limit, page.Offset))
}

// History returns the wallet's state as of the "at" query parameter.
func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	at, ok, err := parseTimeQuery(r, "at")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid query", "at is required")
		return
	}

	snapshot, err := h.queries.GetWalletAtTime(r.Context(), id, at)
	if err != nil {
		writeDomainError(w, r, "failed to get wallet history", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SnapshotFromUseCase(snapshot))
}

// Events returns the wallet's full event stream.
func (h *WalletHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.queries.GetHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "failed to get wallet events", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryResponse{
		WalletID: id,
		Events:   dto.EventsFromDomain(events),
	})
}

// Deposit credits a wallet.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.AmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	res, err := h.commands.Deposit(r.Context(), req.ToDepositInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, "failed to deposit", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OperationFromUseCase(res))
}

// Withdraw debits a wallet.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.AmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	res, err := h.commands.Withdraw(r.Context(), req.ToWithdrawInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, "failed to withdraw", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OperationFromUseCase(res))
}
