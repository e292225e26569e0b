package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"payledger/internal/db"
	"payledger/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps engine errors onto statuses. Anything
// unclassified is reported generically.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrSelfTransfer):
		respondError(w, http.StatusBadRequest, "self_transfer_forbidden")
	case errors.Is(err, services.ErrInvalidUseCount):
		respondError(w, http.StatusBadRequest, "invalid_use_count")
	case errors.Is(err, services.ErrInvalidPage):
		respondError(w, http.StatusBadRequest, "invalid_pagination")
	case errors.Is(err, services.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case errors.Is(err, services.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user_not_found")
	case errors.Is(err, services.ErrQRNotFound):
		respondError(w, http.StatusNotFound, "qr_not_found")
	case errors.Is(err, db.ErrTxRetryExceeded):
		respondError(w, http.StatusConflict, "conflict")
	default:
		log.Println("unhandled service error:", err)
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}
