package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/delivery-availability/internal/persistence"
	"github.com/example/delivery-availability/internal/persistence/memory"
	"github.com/example/delivery-availability/internal/persistence/sqlite"
	"github.com/example/delivery-availability/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database.
type SQLiteHarness struct {
	Schedules *sqlite.AvailabilityRepository
	Pool      *sqlite.ConnectionPool

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness in tb's temp dir. Close is
// optional; it is also registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "availability.db")
	pool, err := sqlite.NewConnectionPool(migration.DefaultSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := sqlite.Migrate(context.Background(), pool, nil); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Schedules: sqlite.NewAvailabilityRepository(pool),
		Pool:      pool,
		cleanup: func() {
			_ = pool.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// Backend names a repository implementation for contract tests.
type Backend struct {
	Name string
	Repo persistence.AvailabilityRepository
}

// Backends returns a fresh instance of every embeddable store.
func Backends(tb testing.TB) []Backend {
	tb.Helper()
	return []Backend{
		{Name: "memory", Repo: memory.New()},
		{Name: "sqlite", Repo: NewSQLiteHarness(tb).Schedules},
	}
}
