package services

import (
	"context"
	"fmt"
	"time"

	"escrowledger/internal/logging"
	"escrowledger/internal/metrics"
	"escrowledger/internal/models"
	"escrowledger/internal/money"
	"escrowledger/internal/orderstate"
	"escrowledger/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderWorkflow runs each order action as one unit of work. The order row
// is locked before any guard is evaluated.
type OrderWorkflow struct {
	*runner
	wallets    *WalletAccount
	escrow     *EscrowManager
	orders     OrderStore
	disputes   DisputeStore
	feePercent decimal.Decimal
	now        func() time.Time
}

type ListOrderRequest struct {
	SellerID       string
	SellerWalletID string
	Price          int64
	Currency       string
}

// OrderResult is the order after an action together with any postings the
// action wrote.
type OrderResult struct {
	Order   models.Order
	Lock    *models.EscrowLock
	Entries []models.LedgerEntry
}

func (w *OrderWorkflow) Get(ctx context.Context, orderID string) (models.Order, error) {
	order, err := w.orders.GetByID(ctx, orderID)
	if err != nil {
		return models.Order{}, notFound(err, "order %s", orderID)
	}
	return order, nil
}

// ListOrder creates an ACTIVE order. The platform fee is fixed here, from
// the configured percentage with banker's rounding.
func (w *OrderWorkflow) ListOrder(ctx context.Context, req ListOrderRequest) (models.Order, error) {
	if req.Price <= 0 {
		return models.Order{}, fmt.Errorf("%w: price %d", ErrInvalidAmount, req.Price)
	}
	if err := validator.ValidateCurrency(req.Currency); err != nil {
		return models.Order{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	order := models.Order{
		ID:             uuid.NewString(),
		SellerID:       req.SellerID,
		SellerWalletID: req.SellerWalletID,
		Price:          req.Price,
		PlatformFee:    money.PercentOf(req.Price, w.feePercent),
		Currency:       req.Currency,
		Status:         models.OrderActive,
	}
	op := operation{Name: "order.list", ActorID: req.SellerID, EntityType: "order", EntityID: order.ID}
	err := w.execute(ctx, op, func(uow *unitOfWork) error {
		wallet, err := w.wallets.lock(ctx, uow, req.SellerWalletID)
		if err != nil {
			return err
		}
		if wallet.Owner() != req.SellerID {
			return fmt.Errorf("%w: wallet %s is not owned by %s", ErrForbidden, req.SellerWalletID, req.SellerID)
		}
		if wallet.Currency != req.Currency {
			return fmt.Errorf("%w: wallet %s holds %s", ErrCurrencyMismatch, wallet.ID, wallet.Currency)
		}
		if err := w.orders.Create(ctx, uow, order); err != nil {
			return err
		}
		return w.logSuccess(ctx, uow, op, map[string]any{"price": order.Price, "platform_fee": order.PlatformFee, "currency": order.Currency})
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// lockOrder reads the order under a row lock and decides the action.
func (w *OrderWorkflow) lockOrder(ctx context.Context, uow *unitOfWork, orderID string, action orderstate.Action, actorID string) (models.Order, orderstate.Decision, error) {
	order, err := w.orders.GetForUpdate(ctx, uow, orderID)
	if err != nil {
		return models.Order{}, orderstate.Decision{}, notFound(err, "order %s", orderID)
	}
	snapshot(uow, "order", order)
	decision, err := orderstate.Decide(order, action, actorID)
	if err != nil {
		return order, orderstate.Decision{}, err
	}
	return order, decision, nil
}

// Purchase locks the order price from the buyer's wallet into escrow.
func (w *OrderWorkflow) Purchase(ctx context.Context, orderID, buyerID, buyerWalletID string) (OrderResult, error) {
	var result OrderResult
	op := operation{Name: "order.purchase", ActorID: buyerID, EntityType: "order", EntityID: orderID}
	err := w.execute(ctx, op, func(uow *unitOfWork) error {
		order, decision, err := w.lockOrder(ctx, uow, orderID, orderstate.Purchase, buyerID)
		if err != nil {
			return err
		}
		wallet, err := w.wallets.lock(ctx, uow, buyerWalletID)
		if err != nil {
			return err
		}
		if wallet.Owner() != buyerID {
			return fmt.Errorf("%w: wallet %s is not owned by %s", ErrForbidden, buyerWalletID, buyerID)
		}
		locked, err := w.escrow.Lock(ctx, uow, order, buyerWalletID)
		if err != nil {
			return err
		}
		order.Status = decision.To
		order.BuyerID = &buyerID
		order.BuyerWalletID = &buyerWalletID
		result = OrderResult{Order: order, Lock: &locked.Lock, Entries: locked.Entries}
		return w.logSuccess(ctx, uow, op, map[string]any{
			"lock_id":      locked.Lock.ID,
			"amount":       locked.Lock.Amount,
			"platform_fee": locked.Lock.PlatformFee,
			"wallet_id":    buyerWalletID,
		})
	})
	if err != nil {
		return OrderResult{}, err
	}
	metrics.LockedFundsMinor.WithLabelValues(result.Order.Currency).Add(float64(result.Order.Price))
	logging.L(ctx).Info("funds locked", "order_id", orderID, "wallet_id", buyerWalletID, "amount", result.Order.Price)
	return result, nil
}

// Complete is the buyer's delivery confirmation; it releases escrow to the
// seller.
func (w *OrderWorkflow) Complete(ctx context.Context, orderID, actorID string) (OrderResult, error) {
	var result OrderResult
	op := operation{Name: "order.complete", ActorID: actorID, EntityType: "order", EntityID: orderID}
	err := w.execute(ctx, op, func(uow *unitOfWork) error {
		order, decision, err := w.lockOrder(ctx, uow, orderID, orderstate.Complete, actorID)
		if err != nil {
			return err
		}
		released, err := w.escrow.Release(ctx, uow, order)
		if err != nil {
			return err
		}
		if released.Replayed {
			return settledLock(order, released.Lock)
		}
		if err := w.orders.UpdateStatus(ctx, uow, order.ID, decision.From, decision.To); err != nil {
			return stale(err, "order %s", order.ID)
		}
		order.Status = decision.To
		result = OrderResult{Order: order, Lock: &released.Lock, Entries: released.Entries}
		return w.logSuccess(ctx, uow, op, map[string]any{
			"lock_id": released.Lock.ID,
			"amount":  released.Lock.Amount,
			"fee":     released.Lock.PlatformFee,
		})
	})
	if err != nil {
		return OrderResult{}, err
	}
	logging.L(ctx).Info("escrow released", "order_id", orderID, "seller_wallet_id", result.Order.SellerWalletID, "amount", result.Order.Price, "fee", result.Order.PlatformFee)
	return result, nil
}

// Cancel withdraws an ACTIVE listing or refunds an order in escrow.
func (w *OrderWorkflow) Cancel(ctx context.Context, orderID, actorID, reason string) (OrderResult, error) {
	var result OrderResult
	op := operation{Name: "order.cancel", ActorID: actorID, EntityType: "order", EntityID: orderID}
	err := w.execute(ctx, op, func(uow *unitOfWork) error {
		order, decision, err := w.lockOrder(ctx, uow, orderID, orderstate.Cancel, actorID)
		if err != nil {
			return err
		}
		result = OrderResult{Order: order}
		if decision.Effect == orderstate.EffectRefund {
			refunded, err := w.escrow.Refund(ctx, uow, order, reason)
			if err != nil {
				return err
			}
			if refunded.Replayed {
				return settledLock(order, refunded.Lock)
			}
			result.Lock = &refunded.Lock
			result.Entries = refunded.Entries
		}
		if err := w.orders.UpdateStatus(ctx, uow, order.ID, decision.From, decision.To); err != nil {
			return stale(err, "order %s", order.ID)
		}
		result.Order.Status = decision.To
		return w.logSuccess(ctx, uow, op, map[string]any{"from": decision.From, "reason": reason, "refunded": decision.Effect == orderstate.EffectRefund})
	})
	if err != nil {
		return OrderResult{}, err
	}
	logging.L(ctx).Info("order cancelled", "order_id", orderID, "actor_id", actorID)
	return result, nil
}

// RaiseDispute freezes the order. Locked funds stay locked until the
// dispute is resolved.
func (w *OrderWorkflow) RaiseDispute(ctx context.Context, orderID, actorID, reason string) (models.Dispute, error) {
	var dispute models.Dispute
	op := operation{Name: "order.raise_dispute", ActorID: actorID, EntityType: "order", EntityID: orderID}
	err := w.execute(ctx, op, func(uow *unitOfWork) error {
		order, decision, err := w.lockOrder(ctx, uow, orderID, orderstate.RaiseDispute, actorID)
		if err != nil {
			return err
		}
		dispute = models.Dispute{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			RaisedBy:  actorID,
			Reason:    reason,
			Status:    models.DisputeOpen,
			CreatedAt: w.now().UTC(),
		}
		if err := w.disputes.Create(ctx, uow, dispute); err != nil {
			return err
		}
		if err := w.orders.UpdateStatus(ctx, uow, order.ID, decision.From, decision.To); err != nil {
			return stale(err, "order %s", order.ID)
		}
		return w.logSuccess(ctx, uow, op, map[string]any{"dispute_id": dispute.ID, "from": decision.From, "reason": reason})
	})
	if err != nil {
		return models.Dispute{}, err
	}
	logging.L(ctx).Info("dispute raised", "order_id", orderID, "dispute_id", dispute.ID)
	return dispute, nil
}

// settledLock rejects an order action whose lock was settled behind the
// order's back.
func settledLock(order models.Order, lock models.EscrowLock) error {
	state, _ := lock.State()
	return fmt.Errorf("%w: order %s is %s but lock %s is %s", ErrInvalidStateTransition, order.ID, order.Status, lock.ID, state)
}
