package migration

import "time"

// Migration represents a database migration with its metadata and SQL content
type Migration struct {
	Version     int
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration represents a migration that has been successfully applied
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status provides information about the current migration state
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}
