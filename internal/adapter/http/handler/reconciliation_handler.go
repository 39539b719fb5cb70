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

// ReconciliationService defines the behavior needed by ReconciliationHandler.
type ReconciliationService interface {
	ReconcileWallet(ctx context.Context, walletID string) (*usecase.ReconciliationResult, error)
	RebuildProjection(ctx context.Context, walletID string) (*domain.WalletProjection, error)
	GenerateReconciliationReport(ctx context.Context, since time.Time) (*usecase.ReconciliationReport, error)
}

// ReconciliationHandler exposes ledger consistency checks.
type ReconciliationHandler struct {
	reconciliationUC ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(reconciliationUC ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{reconciliationUC: reconciliationUC}
}

// Report checks every wallet and transfer leg since the optional "since"
// query parameter.
func (h *ReconciliationHandler) Report(w http.ResponseWriter, r *http.Request) {
	since, _, err := parseTimeQuery(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	report, err := h.reconciliationUC.GenerateReconciliationReport(r.Context(), since)
	if err != nil {
		writeDomainError(w, r, "failed to generate reconciliation report", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReportFromUseCase(report))
}

// Wallet reconciles a single wallet.
func (h *ReconciliationHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciliationUC.ReconcileWallet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to reconcile wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromUseCase(result))
}

// Rebuild replaces a wallet's projection with one folded from its events.
func (h *ReconciliationHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	p, err := h.reconciliationUC.RebuildProjection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to rebuild projection", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromProjection(p))
}
