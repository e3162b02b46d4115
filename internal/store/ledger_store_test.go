package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"escrowledger/internal/models"
)

func TestLedgerStoreInsert(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO ledger_entries") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 10 || args[0] != "entry-1" || args[2] != models.Debit || args[3] != models.BucketLocked {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLedgerStore(stubDB{})
	entry := models.LedgerEntry{
		ID:             "entry-1",
		WalletID:       "wallet-1",
		Direction:      models.Debit,
		Bucket:         models.BucketLocked,
		Amount:         6000,
		Currency:       "INR",
		ReferenceTable: "escrow_locks",
		ReferenceID:    "lock-1",
		CreatedAt:      time.Now(),
	}
	if err := store.Insert(ctx, execer, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedgerStoreHasNoMutatingStatements(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, _ ...any) (sql.Result, error) {
			upper := strings.ToUpper(query)
			if strings.Contains(upper, "UPDATE LEDGER_ENTRIES") || strings.Contains(upper, "DELETE FROM LEDGER_ENTRIES") {
				t.Fatalf("ledger must be append-only: %s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLedgerStore(stubDB{})
	if err := store.Insert(ctx, execer, models.LedgerEntry{ID: "entry-1", Amount: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedgerStoreSumsByWallet(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM ledger_entries") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != "wallet-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*LedgerSums) = LedgerSums{Available: 4000, Locked: 6000}
			return nil
		},
	})
	sums, err := store.SumsByWallet(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sums.Available != 4000 || sums.Locked != 6000 {
		t.Fatalf("unexpected sums: %#v", sums)
	}
}

func TestLedgerStoreListByWallet(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE wallet_id = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 3 || args[1] != 20 || args[2] != 0 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]models.LedgerEntry) = []models.LedgerEntry{{ID: "entry-1"}, {ID: "entry-2"}}
			return nil
		},
	})
	rows, err := store.ListByWallet(ctx, "wallet-1", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[1].ID != "entry-2" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestLedgerStoreListByReferenceError(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		selectFn: func(context.Context, any, string, ...any) error {
			return sql.ErrConnDone
		},
	})
	if _, err := store.ListByReference(ctx, "escrow_locks", "lock-1"); err != sql.ErrConnDone {
		t.Fatalf("expected conn done, got %v", err)
	}
}
