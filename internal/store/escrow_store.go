package store

import (
	"context"
	"time"

	"escrowledger/internal/models"
)

// EscrowLockOrderConstraint is the unique constraint enforcing one lock per order.
const EscrowLockOrderConstraint = "uq_escrow_locks_order"

type EscrowStore struct {
	db DB
}

const escrowColumns = `id, order_id, wallet_id, amount, platform_fee, refund_reason, locked_at, released_at, refunded_at`

func NewEscrowStore(db DB) *EscrowStore {
	return &EscrowStore{db: db}
}

func (s *EscrowStore) Create(ctx context.Context, tx Execer, lock models.EscrowLock) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_locks (id, order_id, wallet_id, amount, platform_fee, locked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, lock.ID, lock.OrderID, lock.WalletID, lock.Amount, lock.PlatformFee, lock.LockedAt)
	return err
}

func (s *EscrowStore) GetByOrder(ctx context.Context, orderID string) (models.EscrowLock, error) {
	var row models.EscrowLock
	err := s.db.GetContext(ctx, &row, `SELECT `+escrowColumns+` FROM escrow_locks WHERE order_id = $1`, orderID)
	if err != nil {
		return models.EscrowLock{}, err
	}
	return row, nil
}

func (s *EscrowStore) GetByOrderForUpdate(ctx context.Context, tx Getter, orderID string) (models.EscrowLock, error) {
	var row models.EscrowLock
	err := tx.GetContext(ctx, &row, `
		SELECT `+escrowColumns+`
		FROM escrow_locks
		WHERE order_id = $1
		FOR UPDATE
	`, orderID)
	if err != nil {
		return models.EscrowLock{}, err
	}
	return row, nil
}

// MarkReleased sets released_at on a lock that is still LOCKED.
func (s *EscrowStore) MarkReleased(ctx context.Context, tx Execer, lockID string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_locks
		SET released_at = $1
		WHERE id = $2 AND released_at IS NULL AND refunded_at IS NULL
	`, at, lockID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// MarkRefunded sets refunded_at on a lock that is still LOCKED.
func (s *EscrowStore) MarkRefunded(ctx context.Context, tx Execer, lockID, reason string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_locks
		SET refunded_at = $1, refund_reason = $2
		WHERE id = $3 AND released_at IS NULL AND refunded_at IS NULL
	`, at, reason, lockID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
