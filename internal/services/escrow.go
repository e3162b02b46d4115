package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"escrowledger/internal/db"
	"escrowledger/internal/models"
	"escrowledger/internal/store"

	"github.com/google/uuid"
)

const escrowReferenceTable = "escrow_locks"

type LockResult struct {
	Lock    models.EscrowLock
	Entries []models.LedgerEntry
	Buyer   models.Wallet
}

// ReleaseResult reports a release. Replayed is set, and Entries empty, when
// the lock had already been settled.
type ReleaseResult struct {
	Lock     models.EscrowLock
	Entries  []models.LedgerEntry
	Replayed bool
}

type RefundResult struct {
	Lock     models.EscrowLock
	Entries  []models.LedgerEntry
	Replayed bool
}

type SplitResult struct {
	Lock    models.EscrowLock
	Entries []models.LedgerEntry
}

// EscrowManager moves funds between a buyer's available and locked buckets
// and settles locks. Each order has at most one lock, which ends RELEASED or
// REFUNDED exactly once. Callers own the transaction.
type EscrowManager struct {
	wallets     *WalletAccount
	walletStore WalletStore
	locks       EscrowStore
	orders      OrderStore
	now         func() time.Time
}

// Lock moves the order price from the buyer wallet into escrow and moves the
// order to IN_ESCROW. The buyer is the owner of buyerWalletID.
func (e *EscrowManager) Lock(ctx context.Context, tx store.Tx, order models.Order, buyerWalletID string) (LockResult, error) {
	if order.Status != models.OrderActive {
		return LockResult{}, fmt.Errorf("%w: lock order %s in %s", ErrInvalidStateTransition, order.ID, order.Status)
	}
	if order.Price <= 0 || order.PlatformFee < 0 || order.PlatformFee > order.Price {
		return LockResult{}, fmt.Errorf("%w: order %s price %d fee %d", ErrInvalidAmount, order.ID, order.Price, order.PlatformFee)
	}
	if _, err := e.locks.GetByOrderForUpdate(ctx, tx, order.ID); err == nil {
		return LockResult{}, fmt.Errorf("%w: order %s", ErrDuplicateLock, order.ID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return LockResult{}, err
	}

	buyer, err := e.wallets.lock(ctx, tx, buyerWalletID)
	if err != nil {
		return LockResult{}, err
	}
	if buyer.IsSystem || buyer.OwnerID == nil {
		return LockResult{}, fmt.Errorf("%w: wallet %s cannot buy", ErrForbidden, buyerWalletID)
	}
	if buyer.Owner() == order.SellerID || buyerWalletID == order.SellerWalletID {
		return LockResult{}, fmt.Errorf("%w: order %s", ErrSameParty, order.ID)
	}

	lock := models.EscrowLock{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		WalletID:    buyerWalletID,
		Amount:      order.Price,
		PlatformFee: order.PlatformFee,
		LockedAt:    e.now().UTC(),
	}
	buyer, entries, err := e.wallets.MoveAvailableToLocked(ctx, tx, buyerWalletID, Movement{
		Amount:      order.Price,
		Currency:    order.Currency,
		Description: "escrow lock for order " + order.ID,
		Reference:   models.Reference{Table: escrowReferenceTable, ID: lock.ID},
	})
	if err != nil {
		return LockResult{}, err
	}
	if err := e.locks.Create(ctx, tx, lock); err != nil {
		if db.IsUniqueViolation(err, store.EscrowLockOrderConstraint) {
			return LockResult{}, fmt.Errorf("%w: order %s", ErrDuplicateLock, order.ID)
		}
		return LockResult{}, err
	}
	if err := e.orders.AttachBuyer(ctx, tx, order.ID, buyer.Owner(), buyerWalletID, models.OrderActive, models.OrderInEscrow); err != nil {
		return LockResult{}, stale(err, "order %s", order.ID)
	}
	return LockResult{Lock: lock, Entries: entries, Buyer: buyer}, nil
}

// lockForSettlement reads the order's lock under a row lock and reports
// ErrAlreadyTerminal when it is no longer LOCKED.
func (e *EscrowManager) lockForSettlement(ctx context.Context, tx store.Tx, orderID string) (models.EscrowLock, error) {
	lock, err := e.locks.GetByOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return models.EscrowLock{}, notFound(err, "escrow lock for order %s", orderID)
	}
	snapshot(tx, "escrow_lock", lock)
	state, ok := lock.State()
	if !ok {
		return lock, fmt.Errorf("%w: %s", ErrCorruptLock, lock.ID)
	}
	if state != models.EscrowLocked {
		return lock, fmt.Errorf("%w: lock %s is %s", ErrAlreadyTerminal, lock.ID, state)
	}
	return lock, nil
}

// Release pays the seller the locked amount less the platform fee, and the
// fee to the platform wallet. Releasing a settled lock is a no-op.
func (e *EscrowManager) Release(ctx context.Context, tx store.Tx, order models.Order) (ReleaseResult, error) {
	lock, err := e.lockForSettlement(ctx, tx, order.ID)
	if errors.Is(err, ErrAlreadyTerminal) {
		replayed(tx)
		return ReleaseResult{Lock: lock, Replayed: true}, nil
	}
	if err != nil {
		return ReleaseResult{}, err
	}
	if lock.PlatformFee < 0 || lock.PlatformFee > lock.Amount {
		return ReleaseResult{}, fmt.Errorf("%w: fee %d on lock %s", ErrInvalidAmount, lock.PlatformFee, lock.ID)
	}

	var platformID string
	if lock.PlatformFee > 0 {
		platformID, err = e.walletStore.GetSystemWallet(ctx, order.Currency)
		if err != nil {
			return ReleaseResult{}, notFound(err, "platform wallet for %s", order.Currency)
		}
	}
	if _, err := e.wallets.lockWallets(ctx, tx, lock.WalletID, order.SellerWalletID, platformID); err != nil {
		return ReleaseResult{}, err
	}

	ref := models.Reference{Table: escrowReferenceTable, ID: lock.ID}
	payout := lock.Amount - lock.PlatformFee
	// The buyer is debited once for the payout and once for the fee.
	legs := []struct {
		to     string
		amount int64
		debit  string
		credit string
	}{
		{order.SellerWalletID, payout, "escrow release for order " + order.ID, "seller payout for order " + order.ID},
		{platformID, lock.PlatformFee, "platform fee for order " + order.ID, "platform fee for order " + order.ID},
	}
	var entries []models.LedgerEntry
	for _, l := range legs {
		if l.amount == 0 {
			continue
		}
		_, posted, err := e.wallets.DebitLocked(ctx, tx, lock.WalletID, Movement{
			Amount: l.amount, Currency: order.Currency, Description: l.debit, Reference: ref,
		})
		if err != nil {
			return ReleaseResult{}, err
		}
		entries = append(entries, posted...)
		_, posted, err = e.wallets.CreditAvailable(ctx, tx, l.to, Movement{
			Amount: l.amount, Currency: order.Currency, Description: l.credit, Reference: ref,
		})
		if err != nil {
			return ReleaseResult{}, err
		}
		entries = append(entries, posted...)
	}
	if err := ensureBalanced(entries); err != nil {
		return ReleaseResult{}, err
	}

	at := e.now().UTC()
	if err := e.locks.MarkReleased(ctx, tx, lock.ID, at); err != nil {
		return ReleaseResult{}, stale(err, "release lock %s", lock.ID)
	}
	lock.ReleasedAt = &at
	return ReleaseResult{Lock: lock, Entries: entries}, nil
}

// Refund returns the locked amount to the buyer's available balance. No fee
// is charged. Refunding a settled lock is a no-op.
func (e *EscrowManager) Refund(ctx context.Context, tx store.Tx, order models.Order, reason string) (RefundResult, error) {
	lock, err := e.lockForSettlement(ctx, tx, order.ID)
	if errors.Is(err, ErrAlreadyTerminal) {
		replayed(tx)
		return RefundResult{Lock: lock, Replayed: true}, nil
	}
	if err != nil {
		return RefundResult{}, err
	}
	_, entries, err := e.wallets.MoveLockedToAvailable(ctx, tx, lock.WalletID, Movement{
		Amount:      lock.Amount,
		Currency:    order.Currency,
		Description: "escrow refund for order " + order.ID,
		Reference:   models.Reference{Table: escrowReferenceTable, ID: lock.ID},
	})
	if err != nil {
		return RefundResult{}, err
	}
	at := e.now().UTC()
	if err := e.locks.MarkRefunded(ctx, tx, lock.ID, reason, at); err != nil {
		return RefundResult{}, stale(err, "refund lock %s", lock.ID)
	}
	lock.RefundedAt = &at
	lock.RefundReason = &reason
	return RefundResult{Lock: lock, Entries: entries}, nil
}

// Split divides the locked amount between buyer and seller with no platform
// fee. The amounts must add up to the locked amount exactly.
func (e *EscrowManager) Split(ctx context.Context, tx store.Tx, order models.Order, buyerAmount, sellerAmount int64) (SplitResult, error) {
	if buyerAmount < 0 || sellerAmount < 0 {
		return SplitResult{}, fmt.Errorf("%w: split %d/%d", ErrInvalidAmount, buyerAmount, sellerAmount)
	}
	lock, err := e.lockForSettlement(ctx, tx, order.ID)
	if errors.Is(err, ErrAlreadyTerminal) {
		return SplitResult{}, fmt.Errorf("%w: %w", ErrInvalidStateTransition, err)
	}
	if err != nil {
		return SplitResult{}, err
	}
	if buyerAmount+sellerAmount != lock.Amount {
		return SplitResult{}, fmt.Errorf("%w: %d + %d != %d", ErrSplitAmountMismatch, buyerAmount, sellerAmount, lock.Amount)
	}
	if _, err := e.wallets.lockWallets(ctx, tx, lock.WalletID, order.SellerWalletID); err != nil {
		return SplitResult{}, err
	}

	ref := models.Reference{Table: escrowReferenceTable, ID: lock.ID}
	var entries []models.LedgerEntry
	_, posted, err := e.wallets.DebitLocked(ctx, tx, lock.WalletID, Movement{
		Amount: lock.Amount, Currency: order.Currency, Description: "escrow split for order " + order.ID, Reference: ref,
	})
	if err != nil {
		return SplitResult{}, err
	}
	entries = append(entries, posted...)
	for _, share := range []struct {
		walletID string
		amount   int64
		desc     string
	}{
		{lock.WalletID, buyerAmount, "buyer share for order " + order.ID},
		{order.SellerWalletID, sellerAmount, "seller share for order " + order.ID},
	} {
		if share.amount == 0 {
			continue
		}
		_, posted, err = e.wallets.CreditAvailable(ctx, tx, share.walletID, Movement{
			Amount: share.amount, Currency: order.Currency, Description: share.desc, Reference: ref,
		})
		if err != nil {
			return SplitResult{}, err
		}
		entries = append(entries, posted...)
	}
	if err := ensureBalanced(entries); err != nil {
		return SplitResult{}, err
	}

	at := e.now().UTC()
	if err := e.locks.MarkReleased(ctx, tx, lock.ID, at); err != nil {
		return SplitResult{}, stale(err, "split lock %s", lock.ID)
	}
	lock.ReleasedAt = &at
	return SplitResult{Lock: lock, Entries: entries}, nil
}
