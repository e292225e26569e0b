package handlers

import (
	"net/http"

	"payledger/internal/config"
	"payledger/internal/db"
	"payledger/internal/middleware"
	"payledger/internal/store"
	"payledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	healthDB     store.Getter
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	transactions TransactionStore
	audit        AuditStore
	service      PaymentService
	hub          *websocket.Hub
}

func New(healthDB store.Getter, txRunner db.TxRunner, cfg config.Config, users UserStore, transactions TransactionStore, audit AuditStore, service PaymentService, hub *websocket.Hub) *Handler {
	return &Handler{
		healthDB:     healthDB,
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		transactions: transactions,
		audit:        audit,
		service:      service,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.Route("/pay", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/topup", h.TopUp)
		r.Post("/withdraw", h.Withdraw)
		r.Post("/transfer", h.Transfer)
		r.Get("/history", h.History)
		r.Post("/qrcode/request", h.MintRequestQR)
		r.Post("/qrcode/send", h.MintSendQR)
		r.Get("/qrcode/{qr_id}", h.LookupQR)
		r.Post("/request/{qr_id}", h.RedeemRequestQR)
		r.Post("/scan/{qr_id}", h.RedeemSendQR)
	})
	router.Get("/ws/balances", h.WSBalances)

	if h.cfg.AdminEnabled {
		router.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(h.cfg.JWTSecret))
			r.Get("/users", h.AdminListUsers)
			r.Get("/transactions", h.AdminListTransactions)
			r.Get("/audit", h.AdminListAuditLogs)
		})
	}

	router.Get("/health", h.Health)
	return router
}
