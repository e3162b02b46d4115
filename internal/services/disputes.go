package services

import (
	"context"
	"fmt"
	"time"

	"escrowledger/internal/logging"
	"escrowledger/internal/models"
	"escrowledger/internal/orderstate"
	"escrowledger/internal/store"
)

// DisputeService settles DISPUTED orders. Fund movement, the lock flag, the
// order status and the dispute row are written in one transaction.
type DisputeService struct {
	*runner
	escrow   *EscrowManager
	orders   OrderStore
	disputes DisputeStore
	now      func() time.Time
}

type ResolveRequest struct {
	OrderID    string
	ResolverID string
	Notes      string
}

type DisputeResult struct {
	Order   models.Order
	Dispute models.Dispute
	Lock    models.EscrowLock
	Entries []models.LedgerEntry
}

func (s *DisputeService) Get(ctx context.Context, orderID string) (models.Dispute, error) {
	dispute, err := s.disputes.GetByOrder(ctx, orderID)
	if err != nil {
		return models.Dispute{}, notFound(err, "dispute for order %s", orderID)
	}
	return dispute, nil
}

// ResolveForBuyer refunds the buyer in full and cancels the order.
func (s *DisputeService) ResolveForBuyer(ctx context.Context, req ResolveRequest) (DisputeResult, error) {
	return s.resolve(ctx, "dispute.resolve_buyer", req, orderstate.ResolveBuyer, models.ResolvedBuyer,
		func(uow *unitOfWork, order models.Order) (models.EscrowLock, []models.LedgerEntry, int64, int64, error) {
			refunded, err := s.escrow.Refund(ctx, uow, order, "dispute resolved for buyer")
			if err != nil {
				return models.EscrowLock{}, nil, 0, 0, err
			}
			if refunded.Replayed {
				return models.EscrowLock{}, nil, 0, 0, settledLock(order, refunded.Lock)
			}
			return refunded.Lock, refunded.Entries, refunded.Lock.Amount, 0, nil
		})
}

// ResolveForSeller releases escrow to the seller, charging the platform fee,
// and completes the order.
func (s *DisputeService) ResolveForSeller(ctx context.Context, req ResolveRequest) (DisputeResult, error) {
	return s.resolve(ctx, "dispute.resolve_seller", req, orderstate.ResolveSeller, models.ResolvedSeller,
		func(uow *unitOfWork, order models.Order) (models.EscrowLock, []models.LedgerEntry, int64, int64, error) {
			released, err := s.escrow.Release(ctx, uow, order)
			if err != nil {
				return models.EscrowLock{}, nil, 0, 0, err
			}
			if released.Replayed {
				return models.EscrowLock{}, nil, 0, 0, settledLock(order, released.Lock)
			}
			return released.Lock, released.Entries, 0, released.Lock.Amount - released.Lock.PlatformFee, nil
		})
}

// ResolvePartial splits the locked amount between the parties. No platform
// fee is charged on a split.
func (s *DisputeService) ResolvePartial(ctx context.Context, req ResolveRequest, buyerAmount, sellerAmount int64) (DisputeResult, error) {
	return s.resolve(ctx, "dispute.resolve_partial", req, orderstate.ResolvePartial, models.ResolvedPartial,
		func(uow *unitOfWork, order models.Order) (models.EscrowLock, []models.LedgerEntry, int64, int64, error) {
			split, err := s.escrow.Split(ctx, uow, order, buyerAmount, sellerAmount)
			if err != nil {
				return models.EscrowLock{}, nil, 0, 0, err
			}
			return split.Lock, split.Entries, buyerAmount, sellerAmount, nil
		})
}

type settleFunc func(uow *unitOfWork, order models.Order) (lock models.EscrowLock, entries []models.LedgerEntry, buyerAmount, sellerAmount int64, err error)

func (s *DisputeService) resolve(ctx context.Context, name string, req ResolveRequest, action orderstate.Action, resolution models.DisputeResolution, settle settleFunc) (DisputeResult, error) {
	var result DisputeResult
	op := operation{Name: name, ActorID: req.ResolverID, EntityType: "order", EntityID: req.OrderID}
	err := s.execute(ctx, op, func(uow *unitOfWork) error {
		order, err := s.orders.GetForUpdate(ctx, uow, req.OrderID)
		if err != nil {
			return notFound(err, "order %s", req.OrderID)
		}
		snapshot(uow, "order", order)
		decision, err := orderstate.Decide(order, action, req.ResolverID)
		if err != nil {
			return err
		}
		dispute, err := s.disputes.GetByOrderForUpdate(ctx, uow, order.ID)
		if err != nil {
			return notFound(err, "dispute for order %s", order.ID)
		}
		snapshot(uow, "dispute", dispute)
		if dispute.Status != models.DisputeOpen {
			return fmt.Errorf("%w: dispute %s is %s", ErrInvalidStateTransition, dispute.ID, dispute.Status)
		}

		lock, entries, buyerAmount, sellerAmount, err := settle(uow, order)
		if err != nil {
			return err
		}

		at := s.now().UTC()
		if err := s.disputes.Resolve(ctx, uow, store.DisputeResolutionInput{
			DisputeID:    dispute.ID,
			Resolution:   resolution,
			BuyerAmount:  buyerAmount,
			SellerAmount: sellerAmount,
			ResolvedBy:   req.ResolverID,
			AdminNotes:   req.Notes,
			ResolvedAt:   at,
		}); err != nil {
			return stale(err, "dispute %s", dispute.ID)
		}
		if err := s.orders.UpdateStatus(ctx, uow, order.ID, decision.From, decision.To); err != nil {
			return stale(err, "order %s", order.ID)
		}

		order.Status = decision.To
		dispute.Status = models.DisputeResolved
		dispute.Resolution = &resolution
		dispute.BuyerAmount = &buyerAmount
		dispute.SellerAmount = &sellerAmount
		dispute.ResolvedBy = &req.ResolverID
		dispute.AdminNotes = &req.Notes
		dispute.ResolvedAt = &at
		result = DisputeResult{Order: order, Dispute: dispute, Lock: lock, Entries: entries}
		return s.logSuccess(ctx, uow, op, map[string]any{
			"dispute_id":    dispute.ID,
			"resolution":    resolution,
			"buyer_amount":  buyerAmount,
			"seller_amount": sellerAmount,
		})
	})
	if err != nil {
		return DisputeResult{}, err
	}
	logging.L(ctx).Info("dispute resolved", "order_id", req.OrderID, "resolution", resolution)
	return result, nil
}
