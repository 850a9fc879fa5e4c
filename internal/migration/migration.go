package migration

import (
	"context"
	"fmt"

	"imvqa/domain/plate"
	"imvqa/internal/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the fixed tables of the analysis store. The data
// relation depends on the feature columns of each save and is created by the
// store itself.
type MigrationRunner struct {
	version string
	cols    plate.Columns
}

// NewRunner creates a new migration runner for the given header names
func NewRunner(cols plate.Columns) *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
		cols:    cols,
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every statement
// is valid for both PostgreSQL and SQLite.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createAssayTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create assay table")
	}

	if err := r.createAnalysesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create analyses table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createAssayTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS assay (
			%s INTEGER NOT NULL,
			%s INTEGER NOT NULL,
			%s TEXT NOT NULL
		)
	`, pq.QuoteIdentifier(r.cols.Row), pq.QuoteIdentifier(r.cols.Column), pq.QuoteIdentifier(r.cols.Compound)))
	return err
}

func (r *MigrationRunner) createAnalysesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id VARCHAR(36) PRIMARY KEY,
			feature TEXT NOT NULL,
			control_median DOUBLE PRECISION,
			well_count INTEGER NOT NULL,
			record_count INTEGER NOT NULL,
			saved_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_analyses_saved_at ON analyses(saved_at)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_assay_well ON assay(%s, %s)`,
			pq.QuoteIdentifier(r.cols.Row), pq.QuoteIdentifier(r.cols.Column)),
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return err
		}
	}

	return nil
}
