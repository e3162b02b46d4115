package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.auditor.Reconcile(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile balances")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		ownerID := ""
		if row.OwnerID != nil {
			ownerID = *row.OwnerID
		}
		normalized = append(normalized, map[string]any{
			"wallet_id":        row.ID,
			"owner_id":         ownerID,
			"currency":         row.Currency,
			"stored_available": formatMoney(row.StoredAvailable),
			"ledger_available": formatMoney(row.LedgerAvailable),
			"available_diff":   formatMoney(row.AvailableDiff),
			"stored_locked":    formatMoney(row.StoredLocked),
			"ledger_locked":    formatMoney(row.LedgerLocked),
			"locked_diff":      formatMoney(row.LockedDiff),
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) WalletLedger(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	statement, err := h.auditor.WalletLedger(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statement)
}

func (h *Handler) Postings(w http.ResponseWriter, r *http.Request) {
	entries, err := h.auditor.Postings(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load postings")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	rows, err := h.auditor.AuditLog(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) EntityTrail(w http.ResponseWriter, r *http.Request) {
	rows, err := h.auditor.EntityTrail(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit trail")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
