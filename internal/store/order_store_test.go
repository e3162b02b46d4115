package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"escrowledger/internal/models"
)

func TestOrderStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO orders") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 7 || args[0] != "order-1" || args[6] != models.OrderActive {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewOrderStore(stubDB{})
	order := models.Order{ID: "order-1", SellerID: "seller", SellerWalletID: "wallet-s", Price: 6000, PlatformFee: 150, Currency: "INR", Status: models.OrderActive}
	if err := store.Create(ctx, execer, order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOrderStoreGetForUpdate(t *testing.T) {
	ctx := context.Background()
	tx := stubGetter{
		getFn: func(_ context.Context, dest any, query string, _ ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected row lock: %s", query)
			}
			*dest.(*models.Order) = models.Order{ID: "order-1", Status: models.OrderInEscrow}
			return nil
		},
	}
	store := NewOrderStore(stubDB{})
	order, err := store.GetForUpdate(ctx, tx, "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != models.OrderInEscrow {
		t.Fatalf("unexpected order: %#v", order)
	}
}

func TestOrderStoreUpdateStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "WHERE id = $2 AND status = $3") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != models.OrderCompleted || args[2] != models.OrderInEscrow {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 0}, nil
		},
	}
	store := NewOrderStore(stubDB{})
	err := store.UpdateStatus(ctx, execer, "order-1", models.OrderInEscrow, models.OrderCompleted)
	if !errors.Is(err, ErrStaleRow) {
		t.Fatalf("expected stale row, got %v", err)
	}
}

func TestOrderStoreAttachBuyer(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, _ string, args ...any) (sql.Result, error) {
			if len(args) != 5 || args[0] != "buyer" || args[1] != "wallet-b" || args[2] != models.OrderInEscrow {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewOrderStore(stubDB{})
	if err := store.AttachBuyer(ctx, execer, "order-1", "buyer", "wallet-b", models.OrderActive, models.OrderInEscrow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
