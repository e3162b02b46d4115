package store

import (
	"context"

	"escrowledger/internal/models"
)

type WalletStore struct {
	db DB
}

// WalletBalanceSummary compares the stored balance columns with the ledger.
type WalletBalanceSummary struct {
	ID              string  `db:"id"`
	OwnerID         *string `db:"owner_id"`
	Currency        string  `db:"currency"`
	StoredAvailable int64   `db:"stored_available"`
	StoredLocked    int64   `db:"stored_locked"`
	LedgerAvailable int64   `db:"ledger_available"`
	LedgerLocked    int64   `db:"ledger_locked"`
	AvailableDiff   int64   `db:"available_diff"`
	LockedDiff      int64   `db:"locked_diff"`
}

const walletColumns = `id, owner_id, currency, available_balance, locked_escrow_funds, status, is_system, created_at, updated_at`

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

// Create inserts an owned wallet and reports false when the owner already
// has one in that currency.
func (s *WalletStore) Create(ctx context.Context, tx Execer, wallet models.Wallet) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (id, owner_id, currency, status, is_system)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, currency) WHERE owner_id IS NOT NULL DO NOTHING
	`, wallet.ID, wallet.OwnerID, wallet.Currency, wallet.Status, wallet.IsSystem)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *WalletStore) GetByID(ctx context.Context, walletID string) (models.Wallet, error) {
	var row models.Wallet
	err := s.db.GetContext(ctx, &row, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetByOwnerAndCurrency(ctx context.Context, ownerID, currency string) (models.Wallet, error) {
	var row models.Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_id = $1 AND currency = $2
	`, ownerID, currency)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetSystemWallet(ctx context.Context, currency string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `
		SELECT id
		FROM wallets
		WHERE is_system = TRUE AND currency = $1
	`, currency)
	return id, err
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, walletID string) (models.Wallet, error) {
	var row models.Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

// ApplyDelta shifts both balance columns. Only the ledger apply path calls it;
// the CHECK constraints on the table reject a negative result.
func (s *WalletStore) ApplyDelta(ctx context.Context, tx Execer, walletID string, availableDelta, lockedDelta int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET available_balance = available_balance + $1,
		    locked_escrow_funds = locked_escrow_funds + $2,
		    updated_at = NOW()
		WHERE id = $3
	`, availableDelta, lockedDelta, walletID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (s *WalletStore) SetStatus(ctx context.Context, tx Execer, walletID string, status models.WalletStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, walletID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// ListBalanceSummaries returns every wallet whose stored balances disagree
// with its ledger; with all=true every wallet is returned.
func (s *WalletStore) ListBalanceSummaries(ctx context.Context, all bool) ([]WalletBalanceSummary, error) {
	var rows []WalletBalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id,
		       w.owner_id,
		       w.currency,
		       w.available_balance AS stored_available,
		       w.locked_escrow_funds AS stored_locked,
		       COALESCE(l.available, 0) AS ledger_available,
		       COALESCE(l.locked, 0) AS ledger_locked,
		       (w.available_balance - COALESCE(l.available, 0)) AS available_diff,
		       (w.locked_escrow_funds - COALESCE(l.locked, 0)) AS locked_diff
		FROM wallets w
		LEFT JOIN (
			SELECT wallet_id,
			       SUM(CASE WHEN bucket = 'AVAILABLE' THEN CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END ELSE 0 END) AS available,
			       SUM(CASE WHEN bucket = 'LOCKED' THEN CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END ELSE 0 END) AS locked
			FROM ledger_entries
			GROUP BY wallet_id
		) l ON l.wallet_id = w.id
		WHERE $1
		   OR w.available_balance <> COALESCE(l.available, 0)
		   OR w.locked_escrow_funds <> COALESCE(l.locked, 0)
		ORDER BY w.id
	`, all)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
