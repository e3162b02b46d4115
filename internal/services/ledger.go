package services

import (
	"context"
	"fmt"
	"time"

	"escrowledger/internal/models"
	"escrowledger/internal/store"

	"github.com/google/uuid"
)

// LedgerPosting is one directional movement on one wallet bucket.
type LedgerPosting struct {
	WalletID    string
	Currency    string
	Direction   models.Direction
	Bucket      models.Bucket
	Amount      int64
	Description string
	Reference   models.Reference
}

// Ledger is the only writer of wallet balances: every change to a balance
// column goes through Apply together with its ledger row.
type Ledger struct {
	wallets WalletStore
	entries LedgerStore
	now     func() time.Time
}

func (l *Ledger) Apply(ctx context.Context, tx store.Tx, p LedgerPosting) (models.LedgerEntry, error) {
	if p.Amount <= 0 {
		return models.LedgerEntry{}, fmt.Errorf("%w: posting of %d", ErrInvalidAmount, p.Amount)
	}
	delta := p.Amount
	switch p.Direction {
	case models.Credit:
	case models.Debit:
		delta = -delta
	default:
		return models.LedgerEntry{}, fmt.Errorf("unknown ledger direction %q", p.Direction)
	}

	var availableDelta, lockedDelta int64
	switch p.Bucket {
	case models.BucketAvailable:
		availableDelta = delta
	case models.BucketLocked:
		lockedDelta = delta
	default:
		return models.LedgerEntry{}, fmt.Errorf("unknown ledger bucket %q", p.Bucket)
	}

	if err := l.wallets.ApplyDelta(ctx, tx, p.WalletID, availableDelta, lockedDelta); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("apply %s %s to wallet %s: %w", p.Direction, p.Bucket, p.WalletID, err)
	}
	entry := models.LedgerEntry{
		ID:             uuid.NewString(),
		WalletID:       p.WalletID,
		Direction:      p.Direction,
		Bucket:         p.Bucket,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Description:    p.Description,
		ReferenceTable: p.Reference.Table,
		ReferenceID:    p.Reference.ID,
		CreatedAt:      l.now().UTC(),
	}
	if err := l.entries.Insert(ctx, tx, entry); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return entry, nil
}

// ensureBalanced checks that postings spanning several wallets net to zero
// per currency.
func ensureBalanced(entries []models.LedgerEntry) error {
	sums := map[string]int64{}
	for _, entry := range entries {
		sums[entry.Currency] += entry.Signed()
	}
	for currency, sum := range sums {
		if sum != 0 {
			return fmt.Errorf("%w: %s off by %d", ErrUnbalancedPostings, currency, sum)
		}
	}
	return nil
}
