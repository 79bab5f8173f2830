package migration

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const versionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL,
	checksum TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL DEFAULT 0
)`

// Runner applies pending migrations in version order.
type Runner struct {
	db         *sqlx.DB
	migrations []Migration
	logger     *zap.Logger
	now        func() time.Time
}

// NewRunner loads the migrations in dir and prepares a runner for db.
func NewRunner(db *sqlx.DB, fsys fs.FS, dir string, logger *zap.Logger) (*Runner, error) {
	migrations, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		db:         db,
		migrations: migrations,
		logger:     logger.With(zap.String("component", "migration")),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

type appliedRow struct {
	Version         int    `db:"version"`
	AppliedAt       string `db:"applied_at"`
	Checksum        string `db:"checksum"`
	ExecutionTimeMS int64  `db:"execution_time_ms"`
}

// Run applies every pending migration, each in its own transaction.
func (r *Runner) Run(ctx context.Context) error {
	status, err := r.Status(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("schema version",
		zap.Int("current_version", status.CurrentVersion),
		zap.Int("pending", len(status.Pending)),
	)

	for _, migration := range status.Pending {
		started := time.Now()
		if err := r.apply(ctx, migration, started); err != nil {
			r.logger.Error("migration failed", zap.Int("version", migration.Version), zap.String("file", migration.FilePath), zap.Error(err))
			return err
		}
		r.logger.Info("migration applied",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
	return nil
}

// Status reports applied and pending migrations. It fails when an applied
// migration's file changed since it ran.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	if _, err := r.db.ExecContext(ctx, versionTableSQL); err != nil {
		return Status{}, fmt.Errorf("create schema_migrations table: %w", err)
	}

	var rows []appliedRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY version`); err != nil {
		return Status{}, fmt.Errorf("read schema_migrations: %w", err)
	}

	applied := make(map[int]appliedRow, len(rows))
	status := Status{}
	for _, row := range rows {
		applied[row.Version] = row
		appliedAt, _ := time.Parse(time.RFC3339, row.AppliedAt)
		status.Applied = append(status.Applied, AppliedMigration{
			Version:       row.Version,
			AppliedAt:     appliedAt,
			ExecutionTime: time.Duration(row.ExecutionTimeMS) * time.Millisecond,
			Checksum:      row.Checksum,
		})
		if row.Version > status.CurrentVersion {
			status.CurrentVersion = row.Version
		}
	}

	for _, migration := range r.migrations {
		row, ok := applied[migration.Version]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if row.Checksum != migration.Checksum {
			return Status{}, newMigrationError(migration, "verify checksum", ErrChecksumMismatch)
		}
	}
	return status, nil
}

func (r *Runner) apply(ctx context.Context, migration Migration, started time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return newMigrationError(migration, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range splitStatements(migration.SQL) {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			err = newMigrationError(migration, fmt.Sprintf("execute statement %d", i+1), fmt.Errorf("%w: %v", ErrMigrationFailed, execErr))
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		migration.Version, r.now().Format(time.RFC3339), migration.Checksum, time.Since(started).Milliseconds(),
	)
	if err != nil {
		err = newMigrationError(migration, "record migration", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		err = newMigrationError(migration, "commit transaction", err)
		return err
	}
	return nil
}
