package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"escrowledger/internal/models"
)

func TestAuditStoreLog(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO audit_logs") {
				t.Fatalf("unexpected query: %s", query)
			}
			actor, ok := args[0].(*string)
			if len(args) != 5 || !ok || *actor != "actor-1" || args[1] != "escrow.release" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAuditStore(stubDB{})
	if err := store.Log(ctx, execer, "actor-1", "escrow.release", "order", "order-1", `{"amount":6000}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuditStoreLogSystemActor(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, _ string, args ...any) (sql.Result, error) {
			if actor, _ := args[0].(*string); actor != nil {
				t.Fatalf("expected nil actor, got %v", *actor)
			}
			if args[4] != "{}" {
				t.Fatalf("expected empty object data, got %v", args[4])
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAuditStore(stubDB{})
	if err := store.Log(ctx, execer, "", "gateway.apply.failed", "payment_transaction", "ref-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuditStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM audit_logs") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != 10 || args[1] != 5 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]models.AuditLog) = []models.AuditLog{{ID: "log-1"}}
			return nil
		},
	})
	rows, err := store.List(ctx, 10, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "log-1" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestAuditStoreListByEntity(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE entity_type = $1 AND entity_id = $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*[]models.AuditLog) = []models.AuditLog{{ID: "log-1"}, {ID: "log-2"}}
			return nil
		},
	})
	rows, err := store.ListByEntity(ctx, "order", "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
