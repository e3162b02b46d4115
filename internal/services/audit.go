package services

import (
	"context"

	"escrowledger/internal/models"
	"escrowledger/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Auditor is the read-only view used by compliance tooling.
type Auditor struct {
	wallets WalletStore
	ledger  LedgerStore
	audit   AuditStore
}

// WalletStatement is a page of a wallet's ledger plus the ledger totals
// computed over all its entries.
type WalletStatement struct {
	Wallet     models.Wallet        `json:"wallet"`
	Entries    []models.LedgerEntry `json:"entries"`
	Sums       store.LedgerSums     `json:"ledger_sums"`
	Consistent bool                 `json:"consistent"`
}

func (a *Auditor) WalletLedger(ctx context.Context, walletID string, limit, offset int) (WalletStatement, error) {
	limit, offset = page(limit, offset)
	wallet, err := a.wallets.GetByID(ctx, walletID)
	if err != nil {
		return WalletStatement{}, notFound(err, "wallet %s", walletID)
	}
	entries, err := a.ledger.ListByWallet(ctx, walletID, limit, offset)
	if err != nil {
		return WalletStatement{}, err
	}
	sums, err := a.ledger.SumsByWallet(ctx, walletID)
	if err != nil {
		return WalletStatement{}, err
	}
	return WalletStatement{
		Wallet:     wallet,
		Entries:    entries,
		Sums:       sums,
		Consistent: sums.Available == wallet.AvailableBalance && sums.Locked == wallet.LockedEscrowFunds,
	}, nil
}

// Reconcile lists wallets whose stored balances differ from their ledger.
// With all set, every wallet is listed.
func (a *Auditor) Reconcile(ctx context.Context, all bool) ([]store.WalletBalanceSummary, error) {
	return a.wallets.ListBalanceSummaries(ctx, all)
}

// Postings returns the ledger entries written for one source row, such as
// an escrow lock or a payment transaction.
func (a *Auditor) Postings(ctx context.Context, referenceTable, referenceID string) ([]models.LedgerEntry, error) {
	return a.ledger.ListByReference(ctx, referenceTable, referenceID)
}

func (a *Auditor) AuditLog(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	limit, offset = page(limit, offset)
	return a.audit.List(ctx, limit, offset)
}

func (a *Auditor) EntityTrail(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	return a.audit.ListByEntity(ctx, entityType, entityID)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
