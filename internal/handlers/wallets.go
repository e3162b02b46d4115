package handlers

import (
	"net/http"

	"escrowledger/internal/middleware"
	"escrowledger/internal/models"
	"escrowledger/internal/websocket"

	"github.com/go-chi/chi/v5"
)

// GetWallet returns a wallet to its owner, or to an admin.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if wallet.Owner() != userID && !middleware.IsAdmin(r.Context()) {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet_id":           wallet.ID,
		"currency":            wallet.Currency,
		"available_balance":   formatMoney(wallet.AvailableBalance),
		"locked_escrow_funds": formatMoney(wallet.LockedEscrowFunds),
		"status":              wallet.Status,
	})
}

// WSBalances streams balance updates for the token's owner. It runs behind
// Auth, which also accepts the token as a query parameter.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	websocket.ServeWS(w, r, h.upgrader, h.hub, userID)
}

func (h *Handler) SuspendWallet(w http.ResponseWriter, r *http.Request) {
	h.setWalletStatus(w, r, models.WalletSuspended)
}

func (h *Handler) ReactivateWallet(w http.ResponseWriter, r *http.Request) {
	h.setWalletStatus(w, r, models.WalletActive)
}

func (h *Handler) setWalletStatus(w http.ResponseWriter, r *http.Request, status models.WalletStatus) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	wallet, err := h.wallets.SetStatus(r.Context(), chi.URLParam(r, "id"), actorID, status)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"wallet_id": wallet.ID, "status": wallet.Status})
}
