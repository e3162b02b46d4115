package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"escrowledger/internal/auth"
	"escrowledger/internal/config"
	"escrowledger/internal/models"
	"escrowledger/internal/services"
	"escrowledger/internal/store"
	"escrowledger/internal/websocket"
)

type stubWallets struct {
	getFn       func(ctx context.Context, walletID string) (models.Wallet, error)
	setStatusFn func(ctx context.Context, walletID, actorID string, status models.WalletStatus) (models.Wallet, error)
}

func (s stubWallets) Get(ctx context.Context, walletID string) (models.Wallet, error) {
	if s.getFn == nil {
		return models.Wallet{}, services.ErrNotFound
	}
	return s.getFn(ctx, walletID)
}

func (s stubWallets) SetStatus(ctx context.Context, walletID, actorID string, status models.WalletStatus) (models.Wallet, error) {
	return s.setStatusFn(ctx, walletID, actorID, status)
}

type stubAuditor struct {
	walletLedgerFn func(ctx context.Context, walletID string, limit, offset int) (services.WalletStatement, error)
	reconcileFn    func(ctx context.Context, all bool) ([]store.WalletBalanceSummary, error)
	postingsFn     func(ctx context.Context, table, id string) ([]models.LedgerEntry, error)
	auditLogFn     func(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
	entityTrailFn  func(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error)
}

func (s stubAuditor) WalletLedger(ctx context.Context, walletID string, limit, offset int) (services.WalletStatement, error) {
	return s.walletLedgerFn(ctx, walletID, limit, offset)
}

func (s stubAuditor) Reconcile(ctx context.Context, all bool) ([]store.WalletBalanceSummary, error) {
	return s.reconcileFn(ctx, all)
}

func (s stubAuditor) Postings(ctx context.Context, table, id string) ([]models.LedgerEntry, error) {
	return s.postingsFn(ctx, table, id)
}

func (s stubAuditor) AuditLog(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	return s.auditLogFn(ctx, limit, offset)
}

func (s stubAuditor) EntityTrail(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	return s.entityTrailFn(ctx, entityType, entityID)
}

type stubGateway struct {
	applyFn func(ctx context.Context, ev services.GatewayEvent) (services.GatewayResult, error)
}

func (s stubGateway) ApplyGatewayEvent(ctx context.Context, ev services.GatewayEvent) (services.GatewayResult, error) {
	if s.applyFn == nil {
		return services.GatewayResult{Outcome: services.OutcomeApplied}, nil
	}
	return s.applyFn(ctx, ev)
}

func newTestHandler(wallets WalletService, auditor Auditor, gateway stubGateway) *Handler {
	cfg := config.Config{
		AppEnv:                "test",
		Port:                  "0",
		JWTSecret:             "secret",
		AllowedOrigins:        "*",
		StripeWebhookSecret:   "whsec_test",
		RazorpayWebhookSecret: "rzp_test",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger, wallets, auditor, gateway, websocket.NewHub())
}

func serve(t *testing.T, h *Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateAdminToken("secret", "ops-1", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func stringPtr(value string) *string {
	return &value
}

