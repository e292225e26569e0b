package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"payledger/internal/middleware"
	"payledger/internal/money"
	"payledger/internal/services"
	"payledger/internal/store"
)

const (
	defaultHistoryMonths = 6
	defaultPageSize      = 20
)

type amountRequest struct {
	Amount string `json:"amount"`
}

// paymentResponse is the shape shared by every balance mutation.
type paymentResponse struct {
	Message       string `json:"message"`
	Amount        string `json:"amount"`
	NewBalance    string `json:"new_balance"`
	TransactionID string `json:"transaction_id"`
	Timestamp     string `json:"timestamp"`
}

func newPaymentResponse(message string, receipt services.Receipt) paymentResponse {
	return paymentResponse{
		Message:       message,
		Amount:        money.Format(receipt.Amount),
		NewBalance:    money.Format(receipt.NewBalance),
		TransactionID: receipt.TransactionID,
		Timestamp:     receipt.Timestamp.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondServiceError(w, services.ErrInvalidAmount)
		return
	}
	receipt, err := h.service.TopUp(r.Context(), userID, amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPaymentResponse("Top-up successful", receipt))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondServiceError(w, services.ErrInvalidAmount)
		return
	}
	receipt, err := h.service.Withdraw(r.Context(), userID, amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPaymentResponse("Withdrawal successful", receipt))
}

type transferRequest struct {
	Recipient   string `json:"recipient_username"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Recipient == "" {
		respondError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondServiceError(w, services.ErrInvalidAmount)
		return
	}
	receipt, err := h.service.Transfer(r.Context(), userID, req.Recipient, amount, req.Description)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	message := fmt.Sprintf("Transfer to %s successful", req.Recipient)
	respondJSON(w, http.StatusOK, newPaymentResponse(message, receipt))
}

type historyEntry struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Amount          string  `json:"amount"`
	Description     string  `json:"description"`
	TransactionType string  `json:"transaction_type"`
	QRID            *string `json:"qr_id,omitempty"`
	Timestamp       string  `json:"timestamp"`
}

type historyResponse struct {
	Username          string         `json:"username"`
	TotalBalance      string         `json:"total_balance"`
	HistoryMonths     int            `json:"history_months"`
	Page              int            `json:"page"`
	PageSize          int            `json:"page_size"`
	Balances          []historyEntry `json:"balances"`
	TotalTransactions int            `json:"total_transactions"`
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	months, ok := parseBoundedInt(query.Get("months"), defaultHistoryMonths, 1, 24)
	if !ok {
		respondServiceError(w, services.ErrInvalidPage)
		return
	}
	page, ok := parseBoundedInt(query.Get("page"), 1, 1, 1<<30)
	if !ok {
		respondServiceError(w, services.ErrInvalidPage)
		return
	}
	pageSize, ok := parseBoundedInt(query.Get("page_size"), defaultPageSize, 1, 100)
	if !ok {
		respondServiceError(w, services.ErrInvalidPage)
		return
	}

	since := time.Now().AddDate(0, 0, -30*months)
	result, err := h.service.History(r.Context(), userID, since, page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	entries := make([]historyEntry, 0, len(result.Items))
	for _, tr := range result.Items {
		entries = append(entries, historyEntry{
			ID:              tr.ID,
			Type:            historyDirection(tr),
			Amount:          money.Format(tr.Amount),
			Description:     tr.Description,
			TransactionType: tr.Type,
			QRID:            tr.QRID,
			Timestamp:       tr.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, historyResponse{
		Username:          user.Username,
		TotalBalance:      money.Format(balance),
		HistoryMonths:     months,
		Page:              page,
		PageSize:          pageSize,
		Balances:          entries,
		TotalTransactions: result.TotalCount,
	})
}

// historyDirection collapses the four row types into credit or debit.
func historyDirection(tr store.Transaction) string {
	switch tr.Type {
	case store.TypeTopUp, store.TypeTransferReceived:
		return "credit"
	default:
		return "debit"
	}
}
