package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"payledger/internal/middleware"
	"payledger/internal/money"
	"payledger/internal/qrimg"
	"payledger/internal/services"
	"payledger/internal/store"

	"github.com/go-chi/chi/v5"
)

type mintRequestQRRequest struct {
	Amount      *string    `json:"amount"`
	MaxUseCount *int       `json:"max_usercount"`
	Expire      *time.Time `json:"expire"`
}

// MintRequestQR mints a reusable request-payment intent and answers with
// the rendered PNG. The intent metadata rides in response headers so
// clients that only want the image still get the token.
func (h *Handler) MintRequestQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req mintRequestQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseOptionalAmount(req.Amount)
	if err != nil {
		respondServiceError(w, services.ErrInvalidAmount)
		return
	}
	maxUses := services.DefaultRequestMaxUses
	if req.MaxUseCount != nil {
		maxUses = *req.MaxUseCount
	}
	intent, err := h.service.MintRequest(r.Context(), userID, amount, maxUses, req.Expire)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	h.respondQRImage(w, r, intent, "/pay/request/")
}

type mintSendQRRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) MintSendQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req mintSendQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondServiceError(w, services.ErrInvalidAmount)
		return
	}
	intent, err := h.service.MintSend(r.Context(), userID, amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	h.respondQRImage(w, r, intent, "/pay/scan/")
}

func (h *Handler) respondQRImage(w http.ResponseWriter, r *http.Request, intent store.QRIntent, redeemPath string) {
	url := requestBaseURL(r) + redeemPath + intent.QRID
	png, err := qrimg.EncodePNG(url)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render qr code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("qr_id", intent.QRID)
	w.Header().Set("qr_url", url)
	w.Header().Set("qr_type", intent.QRType)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(png)
}

// requestBaseURL prefers the Origin header so the encoded link points at
// whatever host the client reached us through.
func requestBaseURL(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

type qrIntentResponse struct {
	QRID     string  `json:"qr_id"`
	QRType   string  `json:"qr_type"`
	Amount   *string `json:"amount,omitempty"`
	Expire   *string `json:"expire,omitempty"`
	UseCount *int    `json:"use_count,omitempty"`
	MaxUses  *int    `json:"max_use_count,omitempty"`
}

func (h *Handler) LookupQR(w http.ResponseWriter, r *http.Request) {
	qrID := chi.URLParam(r, "qr_id")
	intent, err := h.service.Lookup(r.Context(), qrID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	resp := qrIntentResponse{
		QRID:   intent.QRID,
		QRType: intent.QRType,
	}
	if intent.Amount != nil {
		formatted := money.Format(*intent.Amount)
		resp.Amount = &formatted
	}
	if intent.Expire != nil {
		expire := intent.Expire.UTC().Format(time.RFC3339)
		resp.Expire = &expire
	}
	if intent.QRType == store.QRTypeRequestPayment {
		used, err := h.service.UseCount(r.Context(), qrID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		resp.UseCount = &used
		resp.MaxUses = intent.MaxUseCount
	}
	respondJSON(w, http.StatusOK, resp)
}

type redeemRequestQRRequest struct {
	Amount *string `json:"amount"`
}

func (h *Handler) RedeemRequestQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	qrID := chi.URLParam(r, "qr_id")
	var req redeemRequestQRRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	amount, err := parseOptionalAmount(req.Amount)
	if err != nil {
		respondServiceError(w, services.ErrInvalidAmount)
		return
	}
	receipt, err := h.service.RedeemRequest(r.Context(), userID, qrID, amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPaymentResponse("Payment successful", receipt))
}

func (h *Handler) RedeemSendQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	qrID := chi.URLParam(r, "qr_id")
	receipt, err := h.service.RedeemSend(r.Context(), userID, qrID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPaymentResponse("Payment claimed", receipt))
}
