package migration

import (
	"context"

	"trialrand/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL in execution order. Every statement is idempotent.
func (r *MigrationRunner) Statements() []string {
	return []string{
		createRunsTable,
		createRowsTable,
		createRowsUnitIndex,
		createRowsStratumIndex,
	}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin migration", err)
	}
	defer tx.Rollback()

	for _, stmt := range r.Statements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.DatabaseError("migration statement failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit migration", err)
	}
	return nil
}

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS randomisation_runs (
		id UUID PRIMARY KEY,
		study TEXT NOT NULL DEFAULT '',
		fingerprint CHAR(64) NOT NULL,
		total_rows INTEGER NOT NULL CHECK (total_rows > 0),
		id_width INTEGER NOT NULL,
		min_id_width INTEGER NOT NULL DEFAULT 0,
		code_version TEXT NOT NULL DEFAULT '',
		strata JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)
`

const createRowsTable = `
	CREATE TABLE IF NOT EXISTS randomisation_rows (
		run_id UUID NOT NULL REFERENCES randomisation_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		unit_id TEXT NOT NULL,
		stratum TEXT NOT NULL,
		block INTEGER NOT NULL,
		block_position INTEGER NOT NULL,
		block_length INTEGER NOT NULL,
		treatment TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	)
`

const createRowsUnitIndex = `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_randomisation_rows_unit
	ON randomisation_rows (run_id, unit_id)
`

const createRowsStratumIndex = `
	CREATE INDEX IF NOT EXISTS idx_randomisation_rows_stratum
	ON randomisation_rows (run_id, stratum, block)
`
