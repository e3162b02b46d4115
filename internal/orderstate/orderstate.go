// Package orderstate holds the order lifecycle rules: which action is legal
// from which status, who may take it, and which escrow movement it implies.
// It performs no I/O.
package orderstate

import (
	"errors"
	"fmt"

	"escrowledger/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotParticipant    = errors.New("actor not allowed to perform action")
	ErrSameParty         = errors.New("buyer and seller must differ")
)

type Action string

const (
	Purchase       Action = "purchase"
	Complete       Action = "complete"
	Cancel         Action = "cancel"
	RaiseDispute   Action = "raise_dispute"
	ResolveBuyer   Action = "resolve_buyer"
	ResolveSeller  Action = "resolve_seller"
	ResolvePartial Action = "resolve_partial"
)

// Effect is the escrow movement a transition requires.
type Effect int

const (
	EffectNone Effect = iota
	EffectLock
	EffectRelease
	EffectRefund
	EffectSplit
)

func (e Effect) String() string {
	switch e {
	case EffectLock:
		return "lock"
	case EffectRelease:
		return "release"
	case EffectRefund:
		return "refund"
	case EffectSplit:
		return "split"
	default:
		return "none"
	}
}

type Decision struct {
	Action Action
	From   models.OrderStatus
	To     models.OrderStatus
	Effect Effect
}

type edge struct {
	to     models.OrderStatus
	effect Effect
}

var transitions = map[Action]map[models.OrderStatus]edge{
	Purchase: {
		models.OrderActive: {models.OrderInEscrow, EffectLock},
	},
	Complete: {
		models.OrderInEscrow: {models.OrderCompleted, EffectRelease},
	},
	Cancel: {
		models.OrderActive:   {models.OrderCancelled, EffectNone},
		models.OrderInEscrow: {models.OrderCancelled, EffectRefund},
	},
	RaiseDispute: {
		models.OrderActive:   {models.OrderDisputed, EffectNone},
		models.OrderInEscrow: {models.OrderDisputed, EffectNone},
	},
	ResolveBuyer: {
		models.OrderDisputed: {models.OrderCancelled, EffectRefund},
	},
	ResolveSeller: {
		models.OrderDisputed: {models.OrderCompleted, EffectRelease},
	},
	ResolvePartial: {
		models.OrderDisputed: {models.OrderCancelled, EffectSplit},
	},
}

// Terminal reports whether no action can leave status.
func Terminal(status models.OrderStatus) bool {
	return status == models.OrderCompleted || status == models.OrderCancelled
}

// Transition applies action to status without looking at who acts.
func Transition(status models.OrderStatus, action Action) (models.OrderStatus, error) {
	e, ok := transitions[action][status]
	if !ok {
		return status, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, status)
	}
	return e.to, nil
}

// LegalFrom lists the statuses action may be taken from.
func LegalFrom(action Action) []models.OrderStatus {
	var out []models.OrderStatus
	for _, s := range []models.OrderStatus{
		models.OrderActive, models.OrderInEscrow, models.OrderDisputed,
		models.OrderCompleted, models.OrderCancelled,
	} {
		if _, ok := transitions[action][s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Decide checks both the status transition and the actor's role. For
// Purchase the actor is the prospective buyer. Resolutions are taken by an
// arbiter who must not be a party to the order.
func Decide(order models.Order, action Action, actorID string) (Decision, error) {
	e, ok := transitions[action][order.Status]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, order.Status)
	}
	if err := guard(order, action, actorID); err != nil {
		return Decision{}, err
	}
	return Decision{Action: action, From: order.Status, To: e.to, Effect: e.effect}, nil
}

func guard(order models.Order, action Action, actorID string) error {
	buyer := order.Buyer()
	isSeller := actorID != "" && actorID == order.SellerID
	isBuyer := actorID != "" && actorID == buyer

	switch action {
	case Purchase:
		if actorID == "" {
			return fmt.Errorf("%w: purchase needs a buyer", ErrNotParticipant)
		}
		if isSeller {
			return ErrSameParty
		}
		if buyer != "" {
			return fmt.Errorf("%w: order already has a buyer", ErrInvalidTransition)
		}
	case Complete:
		if !isBuyer {
			return fmt.Errorf("%w: only the buyer confirms delivery", ErrNotParticipant)
		}
	case Cancel:
		if order.Status == models.OrderActive && !isSeller {
			return fmt.Errorf("%w: only the seller withdraws a listing", ErrNotParticipant)
		}
		if order.Status == models.OrderInEscrow && !isBuyer && !isSeller {
			return fmt.Errorf("%w: cancel", ErrNotParticipant)
		}
	case RaiseDispute:
		if order.Status == models.OrderActive && buyer == "" {
			return fmt.Errorf("%w: no buyer attached", ErrInvalidTransition)
		}
		if !isBuyer && !isSeller {
			return fmt.Errorf("%w: raise dispute", ErrNotParticipant)
		}
	case ResolveBuyer, ResolveSeller, ResolvePartial:
		if actorID == "" || isBuyer || isSeller {
			return fmt.Errorf("%w: parties cannot resolve their own dispute", ErrNotParticipant)
		}
	}
	return nil
}
