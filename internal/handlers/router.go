package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"escrowledger/internal/config"
	"escrowledger/internal/metrics"
	"escrowledger/internal/middleware"
	"escrowledger/internal/webhook"
	"escrowledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gws "github.com/gorilla/websocket"
)

type Handler struct {
	cfg      config.Config
	logger   *slog.Logger
	wallets  WalletService
	auditor  Auditor
	hub      *websocket.Hub
	upgrader gws.Upgrader
	stripe   http.Handler
	razorpay http.Handler
}

func New(cfg config.Config, logger *slog.Logger, wallets WalletService, auditor Auditor, gateway webhook.Applier, hub *websocket.Hub) *Handler {
	origins := allowedOrigins(cfg.AllowedOrigins)
	return &Handler{
		cfg:      cfg,
		logger:   logger,
		wallets:  wallets,
		auditor:  auditor,
		hub:      hub,
		upgrader: websocket.Upgrader(origins),
		stripe:   webhook.NewStripeHandler(cfg.StripeWebhookSecret, gateway),
		razorpay: webhook.NewRazorpayHandler(cfg.RazorpayWebhookSecret, gateway),
	}
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler())

	router.Route("/webhooks", func(r chi.Router) {
		r.Method(http.MethodPost, "/stripe", h.stripe)
		r.Method(http.MethodPost, "/razorpay", h.razorpay)
	})

	auth := middleware.Auth(h.cfg.JWTSecret)
	router.With(auth).Get("/ws/balances", h.WSBalances)
	router.With(auth).Get("/wallets/{id}", h.GetWallet)

	router.Route("/audit", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.RequireAdmin)
		r.Get("/reconcile", h.Reconcile)
		r.Get("/wallets/{id}/ledger", h.WalletLedger)
		r.Get("/postings/{table}/{id}", h.Postings)
		r.Get("/logs", h.ListAuditLogs)
		r.Get("/logs/{entityType}/{entityID}", h.EntityTrail)
	})

	router.Route("/admin/wallets/{id}", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.RequireAdmin)
		r.Post("/suspend", h.SuspendWallet)
		r.Post("/reactivate", h.ReactivateWallet)
	})
	return router
}
