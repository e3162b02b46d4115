// Package testutil provides shared setup for PostgreSQL integration tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"

	"escrowledger/internal/db"
	"escrowledger/migrations"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

// PGTest connects to POSTGRES_URL, applies the embedded migrations and
// returns the database plus a cleanup that truncates every table except
// goose's version table. The test is skipped when POSTGRES_URL is unset.
func PGTest(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}
	database, err := db.Connect(dbURL)
	if err != nil {
		t.Fatalf("pgtest: connect: %v", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("pgtest: dialect: %v", err)
	}
	if err := goose.UpContext(context.Background(), database.DB, "."); err != nil {
		_ = database.Close()
		t.Fatalf("pgtest: migrate: %v", err)
	}

	cleanup := func() {
		truncateAll(context.Background(), database)
		_ = database.Close()
	}
	return database, cleanup
}

// truncateAll clears application rows. System wallets are seeded by a
// migration, so they are re-created afterwards.
func truncateAll(ctx context.Context, database *sqlx.DB) {
	var tables []string
	err := database.SelectContext(ctx, &tables, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename <> 'goose_db_version'`)
	if err != nil || len(tables) == 0 {
		return
	}
	_, _ = database.ExecContext(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" CASCADE")
	_, _ = database.ExecContext(ctx, `
		INSERT INTO wallets (id, owner_id, currency, is_system)
		SELECT gen_random_uuid()::text, NULL, c, TRUE FROM unnest(ARRAY['INR', 'USD', 'EUR']) AS c
		ON CONFLICT DO NOTHING`)
}
