package services

import (
	"database/sql"
	"errors"
	"fmt"

	"escrowledger/internal/db"
	"escrowledger/internal/orderstate"
	"escrowledger/internal/store"
)

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDuplicateLock          = errors.New("order already has an escrow lock")
	ErrInvalidStateTransition = orderstate.ErrInvalidTransition
	ErrSplitAmountMismatch    = errors.New("split amounts do not add up to the locked amount")
	ErrUnknownReference       = errors.New("unknown gateway reference")
	ErrAlreadyTerminal        = errors.New("escrow lock already settled")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrWalletSuspended        = errors.New("wallet suspended")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = orderstate.ErrNotParticipant
	ErrEventTypeMismatch      = errors.New("gateway event does not match transaction type")
	ErrGatewayAmountMismatch  = errors.New("gateway amount does not match transaction")
	ErrSameParty              = orderstate.ErrSameParty
	ErrCurrencyMismatch       = errors.New("currency mismatch")
	ErrDuplicateReference     = errors.New("gateway reference already used")
	ErrUnbalancedPostings     = errors.New("ledger postings are not balanced")
	ErrCorruptLock            = errors.New("escrow lock is both released and refunded")
	ErrInvalidRequest         = errors.New("invalid request")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrDuplicateLock, "duplicate_lock"},
	{ErrInvalidStateTransition, "invalid_state_transition"},
	{ErrSplitAmountMismatch, "split_amount_mismatch"},
	{ErrUnknownReference, "unknown_reference"},
	{ErrAlreadyTerminal, "already_terminal"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrWalletSuspended, "wallet_suspended"},
	{ErrNotFound, "not_found"},
	{ErrForbidden, "forbidden"},
	{ErrEventTypeMismatch, "event_type_mismatch"},
	{ErrGatewayAmountMismatch, "gateway_amount_mismatch"},
	{ErrSameParty, "same_party"},
	{ErrCurrencyMismatch, "currency_mismatch"},
	{ErrDuplicateReference, "duplicate_reference"},
	{ErrUnbalancedPostings, "unbalanced_postings"},
	{ErrCorruptLock, "corrupt_lock"},
	{ErrInvalidRequest, "invalid_request"},
	{db.ErrRetryLimitExceeded, "retry_limit_exceeded"},
}

// Kind names the error for metrics labels and failure audit records.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsRejection reports whether err is a business rule rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	k := Kind(err)
	return k != "internal" && k != "retry_limit_exceeded" && k != "unbalanced_postings" && k != "corrupt_lock"
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return err
}

// stale maps a guarded UPDATE that matched nothing to a state conflict.
func stale(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrStaleRow) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidStateTransition)
	}
	return err
}
