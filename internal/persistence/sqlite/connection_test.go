package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/delivery-availability/internal/persistence"
	"github.com/example/delivery-availability/internal/persistence/sqlite/migration"
)

func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	pool, err := NewConnectionPool(migration.DefaultSQLiteConfig(filepath.Join(t.TempDir(), "availability.db")), nil)
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
	})

	if err := Migrate(context.Background(), pool, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return pool
}

func TestMigrateCreatesSchema(t *testing.T) {
	pool := newTestPool(t)

	var tables []string
	if err := pool.DB().Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'availability_%' ORDER BY name`); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if fmt.Sprint(tables) != "[availability_overrides availability_schedules]" {
		t.Fatalf("unexpected tables %v", tables)
	}

	if err := Migrate(context.Background(), pool, nil); err != nil {
		t.Fatalf("expected re-running migrations to be a no-op: %v", err)
	}
}

func TestWithTransactionRollsBack(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO availability_schedules (id, user_id, weekly, created_at, updated_at) VALUES ('s1', 'u1', '{}', 'x', 'x')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	if err := pool.DB().Get(&count, `SELECT COUNT(*) FROM availability_schedules`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestErrorMapper(t *testing.T) {
	mapper := NewErrorMapper()

	if mapper.MapError(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
	if err := mapper.MapError(fmt.Errorf("get: %w", sql.ErrNoRows)); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mapper.MapError(errors.New("constraint failed: UNIQUE constraint failed: availability_schedules.user_id (2067)")); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mapper.MapError(errors.New("database is locked (5) (SQLITE_BUSY)")); !errors.Is(err, errBusy) {
		t.Fatalf("expected errBusy, got %v", err)
	}
}

func TestRetryHelper(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2})
	ctx := context.Background()

	attempts := 0
	err := helper.WithRetry(ctx, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success on third attempt, got %v after %d", err, attempts)
	}

	attempts = 0
	err = helper.WithRetry(ctx, func() error {
		attempts++
		return errors.New("database is locked")
	})
	if !errors.Is(err, errBusy) || attempts != 3 {
		t.Fatalf("expected exhausted retries, got %v after %d", err, attempts)
	}

	attempts = 0
	err = helper.WithRetry(ctx, func() error {
		attempts++
		return errors.New("UNIQUE constraint failed: availability_schedules.id")
	})
	if !errors.Is(err, persistence.ErrDuplicate) || attempts != 1 {
		t.Fatalf("expected no retry for constraint errors, got %v after %d", err, attempts)
	}
}

func TestAvailabilityRepositoryRejectsCorruptWeekly(t *testing.T) {
	pool := newTestPool(t)
	repo := NewAvailabilityRepository(pool)

	if _, err := pool.DB().Exec(`INSERT INTO availability_schedules (id, user_id, weekly, created_at, updated_at) VALUES ('s1', 'u1', 'not json', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.GetScheduleByUserID(context.Background(), "u1"); !errors.Is(err, persistence.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
