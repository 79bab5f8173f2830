package sqlite

import (
	"context"
	"embed"

	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, pool *ConnectionPool, logger *zap.Logger) error {
	runner, err := migration.NewRunner(pool.DB(), migrationFiles, "migrations", logger)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
