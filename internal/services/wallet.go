package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"escrowledger/internal/models"
	"escrowledger/internal/store"
	"escrowledger/internal/validator"

	"github.com/google/uuid"
)

// Movement describes an amount to move on a single wallet. A non-empty
// Currency must match the wallet's.
type Movement struct {
	Amount      int64
	Currency    string
	Description string
	Reference   models.Reference
}

// WalletAccount performs lock-then-check-then-post on one wallet at a time.
// Every method takes the wallet row lock before reading a balance.
type WalletAccount struct {
	*runner
	wallets WalletStore
	ledger  *Ledger
}

// Get reads a wallet outside any transaction.
func (w *WalletAccount) Get(ctx context.Context, walletID string) (models.Wallet, error) {
	wallet, err := w.wallets.GetByID(ctx, walletID)
	if err != nil {
		return models.Wallet{}, notFound(err, "wallet %s", walletID)
	}
	return wallet, nil
}

// Open returns the owner's wallet for currency, creating an empty one when
// none exists yet.
func (w *WalletAccount) Open(ctx context.Context, ownerID, currency string) (models.Wallet, error) {
	if ownerID == "" {
		return models.Wallet{}, fmt.Errorf("%w: wallet owner is required", ErrInvalidRequest)
	}
	if err := validator.ValidateCurrency(currency); err != nil {
		return models.Wallet{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	existing, err := w.wallets.GetByOwnerAndCurrency(ctx, ownerID, currency)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, err
	}

	wallet := models.Wallet{
		ID:       uuid.NewString(),
		OwnerID:  &ownerID,
		Currency: currency,
		Status:   models.WalletActive,
	}
	op := operation{Name: "wallet.open", ActorID: ownerID, EntityType: "wallet", EntityID: wallet.ID}
	created := false
	err = w.execute(ctx, op, func(uow *unitOfWork) error {
		var err error
		created, err = w.wallets.Create(ctx, uow, wallet)
		if err != nil {
			return err
		}
		if !created {
			// A concurrent Open got there first.
			replayed(uow)
			return nil
		}
		return w.logSuccess(ctx, uow, op, map[string]any{"currency": currency})
	})
	if err != nil {
		return models.Wallet{}, err
	}
	if !created {
		existing, err := w.wallets.GetByOwnerAndCurrency(ctx, ownerID, currency)
		if err != nil {
			return models.Wallet{}, notFound(err, "wallet of %s in %s", ownerID, currency)
		}
		return existing, nil
	}
	return wallet, nil
}

// SetStatus suspends or reactivates a user wallet. A suspended wallet can
// still receive credits and settle escrow it already holds.
func (w *WalletAccount) SetStatus(ctx context.Context, walletID, actorID string, status models.WalletStatus) (models.Wallet, error) {
	if status != models.WalletActive && status != models.WalletSuspended {
		return models.Wallet{}, fmt.Errorf("%w: wallet status %q", ErrInvalidRequest, status)
	}
	var wallet models.Wallet
	op := operation{Name: "wallet.set_status", ActorID: actorID, EntityType: "wallet", EntityID: walletID}
	err := w.execute(ctx, op, func(uow *unitOfWork) error {
		var err error
		wallet, err = w.lock(ctx, uow, walletID)
		if err != nil {
			return err
		}
		if wallet.IsSystem {
			return fmt.Errorf("%w: system wallet %s", ErrForbidden, walletID)
		}
		if wallet.Status == status {
			replayed(uow)
			return nil
		}
		from := wallet.Status
		if err := w.wallets.SetStatus(ctx, uow, walletID, status); err != nil {
			return stale(err, "wallet %s", walletID)
		}
		wallet.Status = status
		return w.logSuccess(ctx, uow, op, map[string]any{"from": from, "to": status})
	})
	if err != nil {
		return models.Wallet{}, err
	}
	return wallet, nil
}

func (w *WalletAccount) lock(ctx context.Context, tx store.Tx, walletID string) (models.Wallet, error) {
	wallet, err := w.wallets.GetForUpdate(ctx, tx, walletID)
	if err != nil {
		return models.Wallet{}, notFound(err, "wallet %s", walletID)
	}
	snapshot(tx, "wallet:"+walletID, wallet)
	return wallet, nil
}

// lockWallets takes row locks in ascending id order so that two operations
// touching the same wallets cannot deadlock.
func (w *WalletAccount) lockWallets(ctx context.Context, tx store.Tx, ids ...string) (map[string]models.Wallet, error) {
	ordered := orderedIDs(ids...)
	locked := make(map[string]models.Wallet, len(ordered))
	for _, id := range ordered {
		wallet, err := w.lock(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = wallet
	}
	return locked, nil
}

func orderedIDs(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (w *WalletAccount) prepare(ctx context.Context, tx store.Tx, walletID string, m Movement) (models.Wallet, error) {
	if m.Amount <= 0 {
		return models.Wallet{}, fmt.Errorf("%w: %d", ErrInvalidAmount, m.Amount)
	}
	wallet, err := w.lock(ctx, tx, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	if m.Currency != "" && wallet.Currency != m.Currency {
		return models.Wallet{}, fmt.Errorf("%w: wallet %s holds %s, not %s", ErrCurrencyMismatch, walletID, wallet.Currency, m.Currency)
	}
	return wallet, nil
}

func (w *WalletAccount) post(ctx context.Context, tx store.Tx, wallet *models.Wallet, m Movement, legs ...leg) ([]models.LedgerEntry, error) {
	entries := make([]models.LedgerEntry, 0, len(legs))
	for _, l := range legs {
		entry, err := w.ledger.Apply(ctx, tx, LedgerPosting{
			WalletID:    wallet.ID,
			Currency:    wallet.Currency,
			Direction:   l.direction,
			Bucket:      l.bucket,
			Amount:      m.Amount,
			Description: m.Description,
			Reference:   m.Reference,
		})
		if err != nil {
			return nil, err
		}
		switch l.bucket {
		case models.BucketAvailable:
			wallet.AvailableBalance += entry.Signed()
		case models.BucketLocked:
			wallet.LockedEscrowFunds += entry.Signed()
		}
		entries = append(entries, entry)
	}
	touch(tx, *wallet)
	return entries, nil
}

type leg struct {
	direction models.Direction
	bucket    models.Bucket
}

func (w *WalletAccount) DebitAvailable(ctx context.Context, tx store.Tx, walletID string, m Movement) (models.Wallet, []models.LedgerEntry, error) {
	wallet, err := w.prepare(ctx, tx, walletID, m)
	if err != nil {
		return models.Wallet{}, nil, err
	}
	if wallet.Status == models.WalletSuspended {
		return models.Wallet{}, nil, fmt.Errorf("%w: %s", ErrWalletSuspended, walletID)
	}
	if wallet.AvailableBalance < m.Amount {
		return models.Wallet{}, nil, fmt.Errorf("%w: wallet %s has %d available, needs %d", ErrInsufficientFunds, walletID, wallet.AvailableBalance, m.Amount)
	}
	entries, err := w.post(ctx, tx, &wallet, m, leg{models.Debit, models.BucketAvailable})
	return wallet, entries, err
}

func (w *WalletAccount) CreditAvailable(ctx context.Context, tx store.Tx, walletID string, m Movement) (models.Wallet, []models.LedgerEntry, error) {
	wallet, err := w.prepare(ctx, tx, walletID, m)
	if err != nil {
		return models.Wallet{}, nil, err
	}
	entries, err := w.post(ctx, tx, &wallet, m, leg{models.Credit, models.BucketAvailable})
	return wallet, entries, err
}

func (w *WalletAccount) MoveAvailableToLocked(ctx context.Context, tx store.Tx, walletID string, m Movement) (models.Wallet, []models.LedgerEntry, error) {
	wallet, err := w.prepare(ctx, tx, walletID, m)
	if err != nil {
		return models.Wallet{}, nil, err
	}
	if wallet.Status == models.WalletSuspended {
		return models.Wallet{}, nil, fmt.Errorf("%w: %s", ErrWalletSuspended, walletID)
	}
	if wallet.AvailableBalance < m.Amount {
		return models.Wallet{}, nil, fmt.Errorf("%w: wallet %s has %d available, needs %d", ErrInsufficientFunds, walletID, wallet.AvailableBalance, m.Amount)
	}
	entries, err := w.post(ctx, tx, &wallet, m,
		leg{models.Debit, models.BucketAvailable},
		leg{models.Credit, models.BucketLocked},
	)
	return wallet, entries, err
}

func (w *WalletAccount) MoveLockedToAvailable(ctx context.Context, tx store.Tx, walletID string, m Movement) (models.Wallet, []models.LedgerEntry, error) {
	wallet, err := w.prepare(ctx, tx, walletID, m)
	if err != nil {
		return models.Wallet{}, nil, err
	}
	if wallet.LockedEscrowFunds < m.Amount {
		return models.Wallet{}, nil, fmt.Errorf("%w: wallet %s has %d locked, needs %d", ErrInsufficientFunds, walletID, wallet.LockedEscrowFunds, m.Amount)
	}
	entries, err := w.post(ctx, tx, &wallet, m,
		leg{models.Debit, models.BucketLocked},
		leg{models.Credit, models.BucketAvailable},
	)
	return wallet, entries, err
}

// DebitLocked removes settled escrow funds. Suspended wallets may still
// settle their existing locks.
func (w *WalletAccount) DebitLocked(ctx context.Context, tx store.Tx, walletID string, m Movement) (models.Wallet, []models.LedgerEntry, error) {
	wallet, err := w.prepare(ctx, tx, walletID, m)
	if err != nil {
		return models.Wallet{}, nil, err
	}
	if wallet.LockedEscrowFunds < m.Amount {
		return models.Wallet{}, nil, fmt.Errorf("%w: wallet %s has %d locked, needs %d", ErrInsufficientFunds, walletID, wallet.LockedEscrowFunds, m.Amount)
	}
	entries, err := w.post(ctx, tx, &wallet, m, leg{models.Debit, models.BucketLocked})
	return wallet, entries, err
}
