package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"escrowledger/internal/db"
	"escrowledger/internal/logging"
	"escrowledger/internal/metrics"
	"escrowledger/internal/models"
	"escrowledger/internal/validator"

	"github.com/google/uuid"
)

const (
	paymentReferenceTable      = "payment_transactions"
	paymentReferenceConstraint = "uq_payment_transactions_reference"
)

type GatewayEventType string

// DepositAttemptFailed reports one declined attempt: the payer may retry on
// the same reference, so the transaction stays open. DepositFailed means the
// provider has ended the payment.
const (
	DepositSucceeded     GatewayEventType = "DEPOSIT_SUCCEEDED"
	DepositAttemptFailed GatewayEventType = "DEPOSIT_ATTEMPT_FAILED"
	DepositFailed        GatewayEventType = "DEPOSIT_FAILED"
	WithdrawalSucceeded  GatewayEventType = "WITHDRAWAL_SUCCEEDED"
	WithdrawalFailed     GatewayEventType = "WITHDRAWAL_FAILED"
)

func (t GatewayEventType) paymentType() (models.PaymentType, bool) {
	switch t {
	case DepositSucceeded, DepositAttemptFailed, DepositFailed:
		return models.PaymentDeposit, true
	case WithdrawalSucceeded, WithdrawalFailed:
		return models.PaymentWithdrawal, true
	default:
		return "", false
	}
}

// GatewayEvent is a provider callback translated by a webhook receiver.
// Amount is optional; when set it must equal the transaction amount.
type GatewayEvent struct {
	Gateway   string
	Reference string
	Type      GatewayEventType
	Amount    int64
	Payload   string
}

type GatewayOutcome string

const (
	OutcomeApplied          GatewayOutcome = "APPLIED"
	OutcomeAlreadyApplied   GatewayOutcome = "ALREADY_APPLIED"
	OutcomeUnknownReference GatewayOutcome = "UNKNOWN_REFERENCE"
	OutcomeRejected         GatewayOutcome = "REJECTED"
	OutcomeRecorded         GatewayOutcome = "RECORDED"
)

type GatewayResult struct {
	Outcome     GatewayOutcome
	Transaction models.PaymentTransaction
	Entries     []models.LedgerEntry
}

// Reconciler applies payment gateway outcomes to wallets. The gateway
// reference is the idempotency key: a transaction in a terminal status is
// never applied again.
type Reconciler struct {
	*runner
	wallets  *WalletAccount
	payments PaymentStore
}

func (r *Reconciler) Get(ctx context.Context, reference string) (models.PaymentTransaction, error) {
	payment, err := r.payments.GetByReference(ctx, reference)
	if err != nil {
		return models.PaymentTransaction{}, notFound(err, "payment %s", reference)
	}
	return payment, nil
}

// ApplyGatewayEvent locks the payment transaction, then the wallet, and
// applies the event at most once.
func (r *Reconciler) ApplyGatewayEvent(ctx context.Context, ev GatewayEvent) (GatewayResult, error) {
	result := GatewayResult{Outcome: OutcomeRejected}
	op := operation{Name: "gateway.apply", EntityType: "payment_transaction", EntityID: ev.Reference}
	err := r.execute(ctx, op, func(uow *unitOfWork) error {
		result = GatewayResult{Outcome: OutcomeRejected}
		payment, err := r.payments.GetByReferenceForUpdate(ctx, uow, ev.Reference)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Outcome = OutcomeUnknownReference
				return fmt.Errorf("%w: %s %s", ErrUnknownReference, ev.Gateway, ev.Reference)
			}
			return err
		}
		snapshot(uow, "payment_transaction", payment)
		result.Transaction = payment
		if ev.Gateway != payment.Gateway {
			return fmt.Errorf("%w: %s event for %s transaction %s", ErrEventTypeMismatch, ev.Gateway, payment.Gateway, payment.ID)
		}
		if payment.Status.Terminal() {
			result.Outcome = OutcomeAlreadyApplied
			replayed(uow)
			return nil
		}

		paymentType, ok := ev.Type.paymentType()
		if !ok || paymentType != payment.Type {
			return fmt.Errorf("%w: %s event for %s transaction %s", ErrEventTypeMismatch, ev.Type, payment.Type, payment.ID)
		}
		if ev.Amount != 0 && ev.Amount != payment.Amount {
			return fmt.Errorf("%w: event %d, transaction %d", ErrGatewayAmountMismatch, ev.Amount, payment.Amount)
		}

		ref := models.Reference{Table: paymentReferenceTable, ID: payment.ID}
		status := models.PaymentCompleted
		outcome := OutcomeApplied
		switch ev.Type {
		case DepositSucceeded:
			_, result.Entries, err = r.wallets.CreditAvailable(ctx, uow, payment.WalletID, Movement{
				Amount: payment.Amount, Description: ev.Gateway + " deposit " + ev.Reference, Reference: ref,
			})
		case DepositAttemptFailed:
			status = payment.Status
			outcome = OutcomeRecorded
		case DepositFailed:
			status = models.PaymentFailed
		case WithdrawalSucceeded:
		case WithdrawalFailed:
			status = models.PaymentFailed
			_, result.Entries, err = r.wallets.CreditAvailable(ctx, uow, payment.WalletID, Movement{
				Amount: payment.Amount + payment.Fee, Description: ev.Gateway + " withdrawal reversal " + ev.Reference, Reference: ref,
			})
		}
		if err != nil {
			return err
		}
		if err := r.payments.UpdateStatus(ctx, uow, payment.ID, status, ev.Payload); err != nil {
			return stale(err, "payment %s", payment.ID)
		}
		payment.Status = status
		if ev.Payload != "" {
			payment.GatewayPayload = ev.Payload
		}
		result.Transaction = payment
		result.Outcome = outcome
		return r.logSuccess(ctx, uow, op, map[string]any{
			"gateway":    ev.Gateway,
			"event_type": ev.Type,
			"status":     status,
			"amount":     payment.Amount,
			"wallet_id":  payment.WalletID,
		})
	})
	metrics.GatewayEventsTotal.WithLabelValues(ev.Gateway, string(ev.Type), string(result.Outcome)).Inc()
	if err != nil {
		return result, err
	}
	logging.L(ctx).Info("gateway event reconciled", "gateway", ev.Gateway, "reference", ev.Reference, "type", ev.Type, "outcome", result.Outcome)
	return result, nil
}

type DepositRequest struct {
	WalletID  string
	Gateway   string
	Reference string
	Amount    int64
}

// InitiateDeposit records a PENDING deposit before the buyer is sent to the
// gateway. No funds move until the gateway confirms.
func (r *Reconciler) InitiateDeposit(ctx context.Context, req DepositRequest) (models.PaymentTransaction, error) {
	if req.Amount <= 0 {
		return models.PaymentTransaction{}, fmt.Errorf("%w: deposit %d", ErrInvalidAmount, req.Amount)
	}
	if err := validatePaymentKey(req.Gateway, req.Reference); err != nil {
		return models.PaymentTransaction{}, err
	}
	payment := models.PaymentTransaction{
		ID:               uuid.NewString(),
		WalletID:         req.WalletID,
		Type:             models.PaymentDeposit,
		Gateway:          req.Gateway,
		Amount:           req.Amount,
		Status:           models.PaymentPending,
		GatewayReference: req.Reference,
	}
	op := operation{Name: "gateway.initiate_deposit", EntityType: "payment_transaction", EntityID: req.Reference}
	err := r.execute(ctx, op, func(uow *unitOfWork) error {
		wallet, err := r.wallets.lock(ctx, uow, req.WalletID)
		if err != nil {
			return err
		}
		if wallet.IsSystem {
			return fmt.Errorf("%w: deposit into system wallet %s", ErrForbidden, wallet.ID)
		}
		if err := r.createPayment(ctx, uow, payment); err != nil {
			return err
		}
		return r.logSuccess(ctx, uow, op, map[string]any{"gateway": req.Gateway, "amount": req.Amount, "wallet_id": req.WalletID})
	})
	if err != nil {
		return models.PaymentTransaction{}, err
	}
	return payment, nil
}

type WithdrawalRequest struct {
	WalletID  string
	Gateway   string
	Reference string
	Amount    int64
	Fee       int64
}

// RequestWithdrawal debits the amount and the fee up front and leaves the
// transaction PROCESSING until the gateway reports the payout.
func (r *Reconciler) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (GatewayResult, error) {
	if req.Amount <= 0 || req.Fee < 0 {
		return GatewayResult{}, fmt.Errorf("%w: withdrawal %d fee %d", ErrInvalidAmount, req.Amount, req.Fee)
	}
	if err := validatePaymentKey(req.Gateway, req.Reference); err != nil {
		return GatewayResult{}, err
	}
	payment := models.PaymentTransaction{
		ID:               uuid.NewString(),
		WalletID:         req.WalletID,
		Type:             models.PaymentWithdrawal,
		Gateway:          req.Gateway,
		Amount:           req.Amount,
		Fee:              req.Fee,
		Status:           models.PaymentProcessing,
		GatewayReference: req.Reference,
	}
	var result GatewayResult
	op := operation{Name: "gateway.request_withdrawal", EntityType: "payment_transaction", EntityID: req.Reference}
	err := r.execute(ctx, op, func(uow *unitOfWork) error {
		ref := models.Reference{Table: paymentReferenceTable, ID: payment.ID}
		_, entries, err := r.wallets.DebitAvailable(ctx, uow, req.WalletID, Movement{
			Amount: req.Amount, Description: req.Gateway + " withdrawal " + req.Reference, Reference: ref,
		})
		if err != nil {
			return err
		}
		if req.Fee > 0 {
			_, feeEntries, err := r.wallets.DebitAvailable(ctx, uow, req.WalletID, Movement{
				Amount: req.Fee, Description: req.Gateway + " withdrawal fee " + req.Reference, Reference: ref,
			})
			if err != nil {
				return err
			}
			entries = append(entries, feeEntries...)
		}
		if err := r.createPayment(ctx, uow, payment); err != nil {
			return err
		}
		result = GatewayResult{Outcome: OutcomeApplied, Transaction: payment, Entries: entries}
		return r.logSuccess(ctx, uow, op, map[string]any{"gateway": req.Gateway, "amount": req.Amount, "fee": req.Fee, "wallet_id": req.WalletID})
	})
	if err != nil {
		return GatewayResult{}, err
	}
	logging.L(ctx).Info("withdrawal requested", "wallet_id", req.WalletID, "reference", req.Reference, "amount", req.Amount, "fee", req.Fee)
	return result, nil
}

// MarkProcessing records that the gateway accepted a PENDING request.
func (r *Reconciler) MarkProcessing(ctx context.Context, reference string) (models.PaymentTransaction, error) {
	var payment models.PaymentTransaction
	op := operation{Name: "gateway.mark_processing", EntityType: "payment_transaction", EntityID: reference}
	err := r.execute(ctx, op, func(uow *unitOfWork) error {
		var err error
		payment, err = r.payments.GetByReferenceForUpdate(ctx, uow, reference)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrUnknownReference, reference)
			}
			return err
		}
		snapshot(uow, "payment_transaction", payment)
		if payment.Status != models.PaymentPending {
			return fmt.Errorf("%w: payment %s is %s", ErrInvalidStateTransition, payment.ID, payment.Status)
		}
		if err := r.payments.UpdateStatus(ctx, uow, payment.ID, models.PaymentProcessing, payment.GatewayPayload); err != nil {
			return stale(err, "payment %s", payment.ID)
		}
		payment.Status = models.PaymentProcessing
		return r.logSuccess(ctx, uow, op, map[string]any{"gateway": payment.Gateway})
	})
	if err != nil {
		return models.PaymentTransaction{}, err
	}
	return payment, nil
}

func validatePaymentKey(gateway, reference string) error {
	if err := validator.ValidateGateway(gateway); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validator.ValidateReference(reference); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (r *Reconciler) createPayment(ctx context.Context, uow *unitOfWork, payment models.PaymentTransaction) error {
	if err := r.payments.Create(ctx, uow, payment); err != nil {
		if db.IsUniqueViolation(err, paymentReferenceConstraint) {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, payment.GatewayReference)
		}
		return err
	}
	return nil
}
