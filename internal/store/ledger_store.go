package store

import (
	"context"

	"escrowledger/internal/models"
)

// LedgerStore is append-only: it exposes an insert and reads, nothing else.
type LedgerStore struct {
	db DB
}

// LedgerSums are the signed per-bucket totals of a wallet's entries.
type LedgerSums struct {
	Available int64 `db:"available"`
	Locked    int64 `db:"locked"`
}

const ledgerColumns = `id, wallet_id, direction, bucket, amount, currency, description, reference_table, reference_id, created_at`

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entry models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, wallet_id, direction, bucket, amount, currency, description, reference_table, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.WalletID, entry.Direction, entry.Bucket, entry.Amount, entry.Currency,
		entry.Description, entry.ReferenceTable, entry.ReferenceID, entry.CreatedAt)
	return err
}

func (s *LedgerStore) SumsByWallet(ctx context.Context, walletID string) (LedgerSums, error) {
	var sums LedgerSums
	err := s.db.GetContext(ctx, &sums, `
		SELECT COALESCE(SUM(CASE WHEN bucket = 'AVAILABLE' THEN CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END ELSE 0 END), 0) AS available,
		       COALESCE(SUM(CASE WHEN bucket = 'LOCKED' THEN CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END ELSE 0 END), 0) AS locked
		FROM ledger_entries
		WHERE wallet_id = $1
	`, walletID)
	return sums, err
}

func (s *LedgerStore) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) ListByReference(ctx context.Context, table, id string) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE reference_table = $1 AND reference_id = $2
		ORDER BY created_at, id
	`, table, id)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
