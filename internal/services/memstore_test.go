package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"escrowledger/internal/models"
	"escrowledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// memDB is a transactional in-memory database for engine tests. WithTx
// serialises units of work and restores a snapshot when fn fails, which is
// what a SERIALIZABLE Postgres transaction looks like from the outside.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	wallets  map[string]models.Wallet
	entries  []models.LedgerEntry
	locks    map[string]models.EscrowLock
	orders   map[string]models.Order
	disputes map[string]models.Dispute
	payments map[string]models.PaymentTransaction
	audits   []models.AuditLog
}

type memState struct {
	wallets  map[string]models.Wallet
	entries  []models.LedgerEntry
	locks    map[string]models.EscrowLock
	orders   map[string]models.Order
	disputes map[string]models.Dispute
	payments map[string]models.PaymentTransaction
	audits   []models.AuditLog
}

func newMemDB() *memDB {
	return &memDB{
		wallets:  map[string]models.Wallet{},
		locks:    map[string]models.EscrowLock{},
		orders:   map[string]models.Order{},
		disputes: map[string]models.Dispute{},
		payments: map[string]models.PaymentTransaction{},
	}
}

func (m *memDB) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	saved := m.save()
	if err := fn(nil); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

func (m *memDB) save() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memState{
		wallets:  copyMap(m.wallets),
		entries:  append([]models.LedgerEntry(nil), m.entries...),
		locks:    copyMap(m.locks),
		orders:   copyMap(m.orders),
		disputes: copyMap(m.disputes),
		payments: copyMap(m.payments),
		audits:   append([]models.AuditLog(nil), m.audits...),
	}
}

func (m *memDB) restore(s memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets = s.wallets
	m.entries = s.entries
	m.locks = s.locks
	m.orders = s.orders
	m.disputes = s.disputes
	m.payments = s.payments
	m.audits = s.audits
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memDB) addWallet(owner, currency string, system bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := models.Wallet{ID: uuid.NewString(), Currency: currency, Status: models.WalletActive, IsSystem: system}
	if owner != "" {
		w.OwnerID = &owner
	}
	m.wallets[w.ID] = w
	return w.ID
}

func (m *memDB) wallet(id string) models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id]
}

func (m *memDB) setWalletStatus(id string, status models.WalletStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallets[id]
	w.Status = status
	m.wallets[id] = w
}

func (m *memDB) order(id string) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memDB) lockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *memDB) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

func (m *memDB) lastAudit() models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.audits) == 0 {
		return models.AuditLog{}
	}
	return m.audits[len(m.audits)-1]
}

func (m *memDB) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memDB) sums(walletID string) store.LedgerSums {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sumsLocked(walletID)
}

func (m *memDB) sumsLocked(walletID string) store.LedgerSums {
	var sums store.LedgerSums
	for _, e := range m.entries {
		if e.WalletID != walletID {
			continue
		}
		switch e.Bucket {
		case models.BucketAvailable:
			sums.Available += e.Signed()
		case models.BucketLocked:
			sums.Locked += e.Signed()
		}
	}
	return sums
}

func (m *memDB) stores() (memWallets, memLedger, memEscrow, memOrders, memDisputes, memPayments, memAudit) {
	return memWallets{m}, memLedger{m}, memEscrow{m}, memOrders{m}, memDisputes{m}, memPayments{m}, memAudit{m}
}

type memWallets struct{ m *memDB }

func (s memWallets) GetByID(_ context.Context, walletID string) (models.Wallet, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[walletID]
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	return w, nil
}

func (s memWallets) Create(_ context.Context, _ store.Execer, wallet models.Wallet) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, w := range s.m.wallets {
		if w.OwnerID != nil && wallet.OwnerID != nil && *w.OwnerID == *wallet.OwnerID && w.Currency == wallet.Currency {
			return false, nil
		}
	}
	s.m.wallets[wallet.ID] = wallet
	return true, nil
}

func (s memWallets) GetByOwnerAndCurrency(_ context.Context, ownerID, currency string) (models.Wallet, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, w := range s.m.wallets {
		if w.Owner() == ownerID && w.Currency == currency {
			return w, nil
		}
	}
	return models.Wallet{}, sql.ErrNoRows
}

func (s memWallets) SetStatus(_ context.Context, _ store.Execer, walletID string, status models.WalletStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[walletID]
	if !ok {
		return store.ErrStaleRow
	}
	w.Status = status
	s.m.wallets[walletID] = w
	return nil
}

func (s memWallets) GetForUpdate(ctx context.Context, _ store.Getter, walletID string) (models.Wallet, error) {
	return s.GetByID(ctx, walletID)
}

func (s memWallets) GetSystemWallet(_ context.Context, currency string) (string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, w := range s.m.wallets {
		if w.IsSystem && w.Currency == currency {
			return w.ID, nil
		}
	}
	return "", sql.ErrNoRows
}

func (s memWallets) ApplyDelta(_ context.Context, _ store.Execer, walletID string, availableDelta, lockedDelta int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[walletID]
	if !ok {
		return store.ErrStaleRow
	}
	w.AvailableBalance += availableDelta
	w.LockedEscrowFunds += lockedDelta
	if w.AvailableBalance < 0 {
		return &pq.Error{Code: "23514", Constraint: "chk_wallet_available_nonneg"}
	}
	if w.LockedEscrowFunds < 0 {
		return &pq.Error{Code: "23514", Constraint: "chk_wallet_locked_nonneg"}
	}
	s.m.wallets[walletID] = w
	return nil
}

func (s memWallets) ListBalanceSummaries(_ context.Context, all bool) ([]store.WalletBalanceSummary, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []store.WalletBalanceSummary
	for _, w := range s.m.wallets {
		sums := s.m.sumsLocked(w.ID)
		row := store.WalletBalanceSummary{
			ID:              w.ID,
			OwnerID:         w.OwnerID,
			Currency:        w.Currency,
			StoredAvailable: w.AvailableBalance,
			StoredLocked:    w.LockedEscrowFunds,
			LedgerAvailable: sums.Available,
			LedgerLocked:    sums.Locked,
			AvailableDiff:   w.AvailableBalance - sums.Available,
			LockedDiff:      w.LockedEscrowFunds - sums.Locked,
		}
		if all || row.AvailableDiff != 0 || row.LockedDiff != 0 {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memLedger struct{ m *memDB }

func (s memLedger) Insert(_ context.Context, _ store.Execer, entry models.LedgerEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if entry.Amount <= 0 {
		return &pq.Error{Code: "23514", Constraint: "chk_ledger_amount_positive"}
	}
	s.m.entries = append(s.m.entries, entry)
	return nil
}

func (s memLedger) ListByWallet(_ context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range s.m.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memLedger) ListByReference(_ context.Context, table, id string) ([]models.LedgerEntry, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range s.m.entries {
		if e.ReferenceTable == table && e.ReferenceID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s memLedger) SumsByWallet(_ context.Context, walletID string) (store.LedgerSums, error) {
	return s.m.sums(walletID), nil
}

type memEscrow struct{ m *memDB }

func (s memEscrow) Create(_ context.Context, _ store.Execer, lock models.EscrowLock) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.locks[lock.OrderID]; ok {
		return &pq.Error{Code: "23505", Constraint: store.EscrowLockOrderConstraint}
	}
	s.m.locks[lock.OrderID] = lock
	return nil
}

func (s memEscrow) GetByOrder(_ context.Context, orderID string) (models.EscrowLock, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	lock, ok := s.m.locks[orderID]
	if !ok {
		return models.EscrowLock{}, sql.ErrNoRows
	}
	return lock, nil
}

func (s memEscrow) GetByOrderForUpdate(ctx context.Context, _ store.Getter, orderID string) (models.EscrowLock, error) {
	return s.GetByOrder(ctx, orderID)
}

func (s memEscrow) settle(lockID string, apply func(*models.EscrowLock)) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for orderID, lock := range s.m.locks {
		if lock.ID != lockID {
			continue
		}
		if lock.ReleasedAt != nil || lock.RefundedAt != nil {
			return store.ErrStaleRow
		}
		apply(&lock)
		s.m.locks[orderID] = lock
		return nil
	}
	return store.ErrStaleRow
}

func (s memEscrow) MarkReleased(_ context.Context, _ store.Execer, lockID string, at time.Time) error {
	return s.settle(lockID, func(l *models.EscrowLock) { l.ReleasedAt = &at })
}

func (s memEscrow) MarkRefunded(_ context.Context, _ store.Execer, lockID, reason string, at time.Time) error {
	return s.settle(lockID, func(l *models.EscrowLock) {
		l.RefundedAt = &at
		l.RefundReason = &reason
	})
}

type memOrders struct{ m *memDB }

func (s memOrders) Create(_ context.Context, _ store.Execer, order models.Order) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.orders[order.ID]; ok {
		return &pq.Error{Code: "23505", Constraint: "orders_pkey"}
	}
	s.m.orders[order.ID] = order
	return nil
}

func (s memOrders) GetByID(_ context.Context, orderID string) (models.Order, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	order, ok := s.m.orders[orderID]
	if !ok {
		return models.Order{}, sql.ErrNoRows
	}
	return order, nil
}

func (s memOrders) GetForUpdate(ctx context.Context, _ store.Getter, orderID string) (models.Order, error) {
	return s.GetByID(ctx, orderID)
}

func (s memOrders) AttachBuyer(_ context.Context, _ store.Execer, orderID, buyerID, buyerWalletID string, from, to models.OrderStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	order, ok := s.m.orders[orderID]
	if !ok || order.Status != from {
		return store.ErrStaleRow
	}
	order.BuyerID = &buyerID
	order.BuyerWalletID = &buyerWalletID
	order.Status = to
	s.m.orders[orderID] = order
	return nil
}

func (s memOrders) UpdateStatus(_ context.Context, _ store.Execer, orderID string, from, to models.OrderStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	order, ok := s.m.orders[orderID]
	if !ok || order.Status != from {
		return store.ErrStaleRow
	}
	order.Status = to
	s.m.orders[orderID] = order
	return nil
}

type memDisputes struct{ m *memDB }

func (s memDisputes) Create(_ context.Context, _ store.Execer, dispute models.Dispute) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.disputes[dispute.OrderID]; ok {
		return &pq.Error{Code: "23505", Constraint: "uq_disputes_order"}
	}
	s.m.disputes[dispute.OrderID] = dispute
	return nil
}

func (s memDisputes) GetByOrder(_ context.Context, orderID string) (models.Dispute, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	dispute, ok := s.m.disputes[orderID]
	if !ok {
		return models.Dispute{}, sql.ErrNoRows
	}
	return dispute, nil
}

func (s memDisputes) GetByOrderForUpdate(ctx context.Context, _ store.Getter, orderID string) (models.Dispute, error) {
	return s.GetByOrder(ctx, orderID)
}

func (s memDisputes) Resolve(_ context.Context, _ store.Execer, in store.DisputeResolutionInput) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for orderID, d := range s.m.disputes {
		if d.ID != in.DisputeID {
			continue
		}
		if d.Status != models.DisputeOpen {
			return store.ErrStaleRow
		}
		resolution := in.Resolution
		d.Status = models.DisputeResolved
		d.Resolution = &resolution
		d.BuyerAmount = &in.BuyerAmount
		d.SellerAmount = &in.SellerAmount
		d.ResolvedBy = &in.ResolvedBy
		d.AdminNotes = &in.AdminNotes
		d.ResolvedAt = &in.ResolvedAt
		s.m.disputes[orderID] = d
		return nil
	}
	return store.ErrStaleRow
}

type memPayments struct{ m *memDB }

func (s memPayments) Create(_ context.Context, _ store.Execer, payment models.PaymentTransaction) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.payments[payment.GatewayReference]; ok {
		return &pq.Error{Code: "23505", Constraint: paymentReferenceConstraint}
	}
	s.m.payments[payment.GatewayReference] = payment
	return nil
}

func (s memPayments) GetByReference(_ context.Context, reference string) (models.PaymentTransaction, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	payment, ok := s.m.payments[reference]
	if !ok {
		return models.PaymentTransaction{}, sql.ErrNoRows
	}
	return payment, nil
}

func (s memPayments) GetByReferenceForUpdate(ctx context.Context, _ store.Getter, reference string) (models.PaymentTransaction, error) {
	return s.GetByReference(ctx, reference)
}

func (s memPayments) UpdateStatus(_ context.Context, _ store.Execer, paymentID string, status models.PaymentStatus, payload string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for ref, p := range s.m.payments {
		if p.ID != paymentID {
			continue
		}
		if p.Status.Terminal() {
			return store.ErrStaleRow
		}
		p.Status = status
		p.GatewayPayload = payload
		s.m.payments[ref] = p
		return nil
	}
	return store.ErrStaleRow
}

type memAudit struct{ m *memDB }

func (s memAudit) Log(_ context.Context, _ store.Execer, actorID, action, entityType, entityID, data string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	log := models.AuditLog{ID: fmt.Sprintf("log-%d", len(s.m.audits)+1), Action: action, EntityType: entityType, EntityID: entityID, Data: data}
	if actorID != "" {
		log.ActorID = &actorID
	}
	s.m.audits = append(s.m.audits, log)
	return nil
}

func (s memAudit) List(_ context.Context, limit, offset int) ([]models.AuditLog, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if offset >= len(s.m.audits) {
		return nil, nil
	}
	out := append([]models.AuditLog(nil), s.m.audits[offset:]...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memAudit) ListByEntity(_ context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.AuditLog
	for _, a := range s.m.audits {
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}
