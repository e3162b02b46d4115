package services

import (
	"testing"

	"escrowledger/internal/models"
)

// MemoryEngine is an Engine over the in-memory database, for tests outside
// this package.
type MemoryEngine struct {
	*Engine
	db *memDB
}

func NewMemoryEngine(t *testing.T) *MemoryEngine {
	t.Helper()
	h := newHarness(t)
	return &MemoryEngine{Engine: h.eng, db: h.db}
}

func (e *MemoryEngine) AddWallet(owner, currency string) string {
	return e.db.addWallet(owner, currency, false)
}

func (e *MemoryEngine) Wallet(id string) models.Wallet {
	return e.db.wallet(id)
}
