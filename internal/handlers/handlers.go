package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"escrowledger/internal/money"
	"escrowledger/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps an engine error to a status and its kind.
func respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case services.IsRejection(err):
		status = http.StatusConflict
	}
	respondJSON(w, status, map[string]string{"error": services.Kind(err)})
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func pageParams(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit = parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}

func formatMoney(minor int64) string {
	return money.FormatMinor(minor)
}
