//go:build integration

package migrator_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/event-store/db/migrator"
)

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "migrations")
}

func setupPostgres(ctx context.Context, t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

func TestMigrator_ApplyAll(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(ctx, t)
	defer cleanup()

	m := migrator.New(pool, getMigrationsPath(), nil)
	if err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if count == 0 {
		t.Fatal("no migrations were applied")
	}

	if err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("second ApplyAll failed: %v", err)
	}

	var newCount int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM migrations").Scan(&newCount); err != nil {
		t.Fatalf("failed to count migrations after second run: %v", err)
	}
	if newCount != count {
		t.Fatalf("migration count changed: expected %d, got %d", count, newCount)
	}

	applied, err := m.ListApplied(ctx)
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	if len(applied) != count {
		t.Errorf("expected %d listed migrations, got %d", count, len(applied))
	}
}

func TestMigrator_VerifySchema(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(ctx, t)
	defer cleanup()

	if err := migrator.New(pool, getMigrationsPath(), nil).ApplyAll(ctx); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	for _, tableName := range []string{"migrations", "blockchain_transactions", "blockchain_events"} {
		var exists bool
		err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public'
				AND table_name = $1
			)`, tableName).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", tableName, err)
		}
		if !exists {
			t.Errorf("expected table %s does not exist", tableName)
		}
	}

	for _, constraint := range []string{
		"blockchain_transactions_transaction_hash_pk",
		"blockchain_events_transaction_hash_log_index_pk",
	} {
		var exists bool
		err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.table_constraints
				WHERE constraint_name = $1
			)`, constraint).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check constraint %s: %v", constraint, err)
		}
		if !exists {
			t.Errorf("expected constraint %s does not exist", constraint)
		}
	}

	for index, want := range map[string]bool{
		"blockchain_events_rv_kitty_id_idx":   true,
		"blockchain_events_rv_matron_id_idx":  true,
		"blockchain_events_rv_sire_id_idx":    true,
		"blockchain_events_rv_token_id_idx":   true,
		"blockchain_events_return_values_idx": false,
	} {
		var exists bool
		err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM pg_indexes
				WHERE schemaname = 'public'
				AND indexname = $1
			)`, index).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check index %s: %v", index, err)
		}
		if exists != want {
			t.Errorf("index %s: expected exists=%v, got %v", index, want, exists)
		}
	}
}

func TestMigrator_ChecksumVerification(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(ctx, t)
	defer cleanup()

	dir := t.TempDir()
	file := filepath.Join(dir, "20260122_150000_test.sql")
	if err := os.WriteFile(file, []byte("CREATE TABLE test_table (id SERIAL PRIMARY KEY, name TEXT);"), 0o644); err != nil {
		t.Fatalf("failed to write migration: %v", err)
	}

	m := migrator.New(pool, dir, nil)
	if err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("first ApplyAll failed: %v", err)
	}

	if err := os.WriteFile(file, []byte("CREATE TABLE test_table (id SERIAL PRIMARY KEY, name TEXT, extra TEXT);"), 0o644); err != nil {
		t.Fatalf("failed to modify migration: %v", err)
	}

	err := m.ApplyAll(ctx)
	if err == nil {
		t.Fatal("expected checksum error for modified migration, got nil")
	}
	if !strings.Contains(err.Error(), "migration has been modified") {
		t.Errorf("expected modified migration error, got %v", err)
	}
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(ctx, t)
	defer cleanup()

	dir := t.TempDir()
	content := "CREATE TABLE half_applied (id INT); SELECT * FROM does_not_exist;"
	if err := os.WriteFile(filepath.Join(dir, "20260122_160000_broken.sql"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write migration: %v", err)
	}

	if err := migrator.New(pool, dir, nil).ApplyAll(ctx); err == nil {
		t.Fatal("expected broken migration to fail")
	}

	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = 'half_applied'
		)`).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table: %v", err)
	}
	if exists {
		t.Error("expected half_applied table to be rolled back")
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no recorded migrations, got %d", count)
	}
}
