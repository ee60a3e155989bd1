package migration

import (
	"context"

	"labstats/internal/errors"

	"github.com/jmoiron/sqlx"
)

// MigrationRunner creates the experiment schema read by the postgres observation source
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

// Step is one idempotent DDL statement
type Step struct {
	Name string
	SQL  string
}

// Steps returns the migration statements in execution order
func (r *MigrationRunner) Steps() []Step {
	return []Step{
		{"experiments table", `
			CREATE TABLE IF NOT EXISTS experiments (
				id UUID PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"individuals table", `
			CREATE TABLE IF NOT EXISTS individuals (
				id BIGSERIAL PRIMARY KEY,
				experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
				group_name TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"infection_status table", `
			CREATE TABLE IF NOT EXISTS infection_status (
				individual_id BIGINT PRIMARY KEY REFERENCES individuals(id) ON DELETE CASCADE,
				infected BOOLEAN NOT NULL,
				died BOOLEAN NOT NULL DEFAULT false,
				follow_up_days DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (follow_up_days >= 0)
			)`},
		{"reproduction_events table", `
			CREATE TABLE IF NOT EXISTS reproduction_events (
				id BIGSERIAL PRIMARY KEY,
				individual_id BIGINT NOT NULL REFERENCES individuals(id) ON DELETE CASCADE,
				metric TEXT NOT NULL,
				value DOUBLE PRECISION NOT NULL,
				recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"indexes", `
			CREATE INDEX IF NOT EXISTS idx_individuals_experiment ON individuals(experiment_id, group_name);
			CREATE INDEX IF NOT EXISTS idx_reproduction_events_metric ON reproduction_events(individual_id, metric)`},
	}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, s := range r.Steps() {
		if _, err := db.ExecContext(ctx, s.SQL); err != nil {
			return errors.Wrapf(errors.DatabaseError("migration step failed", err), "failed to create %s", s.Name)
		}
	}
	return nil
}
