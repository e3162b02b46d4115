package services

import (
	"context"
	"time"

	"escrowledger/internal/models"
	"escrowledger/internal/store"
	"escrowledger/internal/websocket"
)

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, wallet models.Wallet) (bool, error)
	GetByOwnerAndCurrency(ctx context.Context, ownerID, currency string) (models.Wallet, error)
	SetStatus(ctx context.Context, tx store.Execer, walletID string, status models.WalletStatus) error
	GetByID(ctx context.Context, walletID string) (models.Wallet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, walletID string) (models.Wallet, error)
	GetSystemWallet(ctx context.Context, currency string) (string, error)
	ApplyDelta(ctx context.Context, tx store.Execer, walletID string, availableDelta, lockedDelta int64) error
	ListBalanceSummaries(ctx context.Context, all bool) ([]store.WalletBalanceSummary, error)
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error)
	ListByReference(ctx context.Context, table, id string) ([]models.LedgerEntry, error)
	SumsByWallet(ctx context.Context, walletID string) (store.LedgerSums, error)
}

type EscrowStore interface {
	Create(ctx context.Context, tx store.Execer, lock models.EscrowLock) error
	GetByOrder(ctx context.Context, orderID string) (models.EscrowLock, error)
	GetByOrderForUpdate(ctx context.Context, tx store.Getter, orderID string) (models.EscrowLock, error)
	MarkReleased(ctx context.Context, tx store.Execer, lockID string, at time.Time) error
	MarkRefunded(ctx context.Context, tx store.Execer, lockID, reason string, at time.Time) error
}

type OrderStore interface {
	Create(ctx context.Context, tx store.Execer, order models.Order) error
	GetByID(ctx context.Context, orderID string) (models.Order, error)
	GetForUpdate(ctx context.Context, tx store.Getter, orderID string) (models.Order, error)
	AttachBuyer(ctx context.Context, tx store.Execer, orderID, buyerID, buyerWalletID string, from, to models.OrderStatus) error
	UpdateStatus(ctx context.Context, tx store.Execer, orderID string, from, to models.OrderStatus) error
}

type DisputeStore interface {
	Create(ctx context.Context, tx store.Execer, dispute models.Dispute) error
	GetByOrder(ctx context.Context, orderID string) (models.Dispute, error)
	GetByOrderForUpdate(ctx context.Context, tx store.Getter, orderID string) (models.Dispute, error)
	Resolve(ctx context.Context, tx store.Execer, input store.DisputeResolutionInput) error
}

type PaymentStore interface {
	Create(ctx context.Context, tx store.Execer, payment models.PaymentTransaction) error
	GetByReference(ctx context.Context, reference string) (models.PaymentTransaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx store.Getter, reference string) (models.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, tx store.Execer, paymentID string, status models.PaymentStatus, payload string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error)
}

type BalanceHub interface {
	BroadcastBalance(ownerID string, update websocket.BalanceUpdate)
}
