package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"escrowledger/internal/db"
	"escrowledger/internal/logging"
	"escrowledger/internal/metrics"
	"escrowledger/internal/models"
	"escrowledger/internal/money"
	"escrowledger/internal/store"
	"escrowledger/internal/tracing"
	"escrowledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Deps struct {
	TxRunner   db.TxRunner
	Wallets    WalletStore
	Ledger     LedgerStore
	Escrow     EscrowStore
	Orders     OrderStore
	Disputes   DisputeStore
	Payments   PaymentStore
	Audit      AuditStore
	Hub        BalanceHub
	FeePercent decimal.Decimal
	Now        func() time.Time
}

// Engine bundles the fund-movement components. They share one transaction
// runner and one audit trail.
type Engine struct {
	Ledger   *Ledger
	Wallets  *WalletAccount
	Escrow   *EscrowManager
	Orders   *OrderWorkflow
	Disputes *DisputeService
	Gateway  *Reconciler
	Auditor  *Auditor
}

func New(deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	hub := deps.Hub
	if hub == nil {
		hub = noopHub{}
	}
	r := &runner{txRunner: deps.TxRunner, audit: deps.Audit, hub: hub}
	ledger := &Ledger{wallets: deps.Wallets, entries: deps.Ledger, now: now}
	wallets := &WalletAccount{runner: r, wallets: deps.Wallets, ledger: ledger}
	escrow := &EscrowManager{
		wallets:     wallets,
		walletStore: deps.Wallets,
		locks:       deps.Escrow,
		orders:      deps.Orders,
		now:         now,
	}
	return &Engine{
		Ledger:  ledger,
		Wallets: wallets,
		Escrow:  escrow,
		Orders: &OrderWorkflow{
			runner:     r,
			wallets:    wallets,
			escrow:     escrow,
			orders:     deps.Orders,
			disputes:   deps.Disputes,
			feePercent: deps.FeePercent,
			now:        now,
		},
		Disputes: &DisputeService{
			runner:   r,
			escrow:   escrow,
			orders:   deps.Orders,
			disputes: deps.Disputes,
			now:      now,
		},
		Gateway: &Reconciler{
			runner:   r,
			wallets:  wallets,
			payments: deps.Payments,
		},
		Auditor: &Auditor{
			wallets: deps.Wallets,
			ledger:  deps.Ledger,
			audit:   deps.Audit,
		},
	}
}

type noopHub struct{}

func (noopHub) BroadcastBalance(string, websocket.BalanceUpdate) {}

type operation struct {
	Name       string
	ActorID    string
	EntityType string
	EntityID   string
}

// unitOfWork is the store.Tx handed to components during one attempt. It
// records the state read before any change, for failure audits, and the
// wallets changed, for the post-commit broadcast.
type unitOfWork struct {
	tx      *sqlx.Tx
	pre     map[string]any
	wallets map[string]models.Wallet
	outcome string
}

func newUnitOfWork(tx *sqlx.Tx) *unitOfWork {
	return &unitOfWork{
		tx:      tx,
		pre:     map[string]any{},
		wallets: map[string]models.Wallet{},
		outcome: "ok",
	}
}

func (u *unitOfWork) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return u.tx.ExecContext(ctx, query, args...)
}

func (u *unitOfWork) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return u.tx.GetContext(ctx, dest, query, args...)
}

// snapshot keeps the first value seen for key.
func snapshot(tx store.Tx, key string, value any) {
	u, ok := tx.(*unitOfWork)
	if !ok {
		return
	}
	if _, seen := u.pre[key]; !seen {
		u.pre[key] = value
	}
}

func touch(tx store.Tx, wallet models.Wallet) {
	if u, ok := tx.(*unitOfWork); ok {
		u.wallets[wallet.ID] = wallet
	}
}

func replayed(tx store.Tx) {
	if u, ok := tx.(*unitOfWork); ok {
		u.outcome = "replayed"
	}
}

type runner struct {
	txRunner db.TxRunner
	audit    AuditStore
	hub      BalanceHub
}

// execute runs fn in one transaction. On failure the rolled-back attempt's
// snapshot is written to the audit log in a transaction of its own.
func (r *runner) execute(ctx context.Context, op operation, fn func(uow *unitOfWork) error) error {
	ctx = logging.With(ctx, "operation", op.Name)
	ctx, span := tracing.StartSpan(ctx, op.Name, tracing.Actor(op.ActorID), tracing.EntityID(op.EntityType, op.EntityID))
	start := time.Now()

	var uow *unitOfWork
	err := r.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		uow = newUnitOfWork(tx)
		return fn(uow)
	})

	metrics.FundOperationDuration.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())
	tracing.End(span, err)
	if err != nil {
		metrics.FundOperationsTotal.WithLabelValues(op.Name, Kind(err)).Inc()
		r.recordFailure(ctx, op, uow, err)
		return err
	}
	if uow == nil {
		return nil
	}
	metrics.FundOperationsTotal.WithLabelValues(op.Name, uow.outcome).Inc()
	r.broadcast(uow)
	return nil
}

func (r *runner) recordFailure(ctx context.Context, op operation, uow *unitOfWork, cause error) {
	logger := logging.L(ctx).With("entity_type", op.EntityType, "entity_id", op.EntityID, "kind", Kind(cause))
	if IsRejection(cause) {
		logger.Warn("operation rejected", "error", cause)
	} else {
		logger.Error("operation failed", "error", cause)
	}

	data := map[string]any{
		"error": cause.Error(),
		"kind":  Kind(cause),
	}
	if uow != nil && len(uow.pre) > 0 {
		data["snapshot"] = uow.pre
	}
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("encode failure audit", "error", err)
		return
	}
	auditCtx := context.WithoutCancel(ctx)
	err = r.txRunner.WithTx(auditCtx, func(tx *sqlx.Tx) error {
		return r.audit.Log(auditCtx, tx, op.ActorID, op.Name+".failed", op.EntityType, op.EntityID, string(payload))
	})
	if err != nil {
		logger.Error("write failure audit", "error", errors.Join(cause, err))
	}
}

func (r *runner) broadcast(uow *unitOfWork) {
	for _, w := range uow.wallets {
		if w.OwnerID == nil {
			continue
		}
		r.hub.BroadcastBalance(*w.OwnerID, websocket.BalanceUpdate{
			WalletID:  w.ID,
			Available: money.FormatMinor(w.AvailableBalance),
			Locked:    money.FormatMinor(w.LockedEscrowFunds),
			Currency:  w.Currency,
		})
	}
}

func (r *runner) logSuccess(ctx context.Context, tx store.Execer, op operation, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return r.audit.Log(ctx, tx, op.ActorID, op.Name, op.EntityType, op.EntityID, string(payload))
}
