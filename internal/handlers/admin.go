package handlers

import (
	"net/http"
	"strings"
	"time"

	"payledger/internal/auth"
	"payledger/internal/websocket"
)

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list users")
		return
	}
	type userRow struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		CreatedAt string `json:"created_at"`
	}
	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow{
			ID:        u.ID,
			Username:  u.Username,
			CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": rows,
		"count": len(rows),
	})
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseBoundedInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, ok := parseBoundedInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	transactions, err := h.transactions.ListAll(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

func (h *Handler) AdminListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseBoundedInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, ok := parseBoundedInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	logs, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list audit logs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"audit_logs": logs,
		"count":      len(logs),
	})
}

// WSBalances upgrades to a websocket that pushes balance updates. Browser
// websocket clients cannot set headers, so the token may ride in the query
// string instead.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var one int
	if err := h.healthDB.GetContext(r.Context(), &one, "SELECT 1"); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
