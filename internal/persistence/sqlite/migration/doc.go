// Package migration applies versioned SQL files to a SQLite database.
//
// Files are named {version}_{description}.sql and are read from an fs.FS,
// usually an embed.FS compiled into the binary. Applied versions and their
// checksums are tracked in the schema_migrations table; a file whose
// checksum changed after it was applied aborts the run.
//
// Example usage:
//
//	runner, err := migration.NewRunner(db, migrationFiles, "migrations", logger)
//	if err != nil {
//		return err
//	}
//	if err := runner.Run(ctx); err != nil {
//		return err
//	}
package migration
