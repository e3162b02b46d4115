package handlers

import (
	"context"

	"escrowledger/internal/models"
	"escrowledger/internal/services"
	"escrowledger/internal/store"
)

type WalletService interface {
	Get(ctx context.Context, walletID string) (models.Wallet, error)
	SetStatus(ctx context.Context, walletID, actorID string, status models.WalletStatus) (models.Wallet, error)
}

type Auditor interface {
	WalletLedger(ctx context.Context, walletID string, limit, offset int) (services.WalletStatement, error)
	Reconcile(ctx context.Context, all bool) ([]store.WalletBalanceSummary, error)
	Postings(ctx context.Context, referenceTable, referenceID string) ([]models.LedgerEntry, error)
	AuditLog(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
	EntityTrail(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error)
}
