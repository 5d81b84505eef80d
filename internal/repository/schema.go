package repository

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id            TEXT PRIMARY KEY,
		source_name   TEXT NOT NULL,
		status        TEXT NOT NULL,
		total_pages   INTEGER NOT NULL,
		settled_pages INTEGER NOT NULL,
		cancelled     BOOLEAN NOT NULL DEFAULT FALSE,
		failure_kind   TEXT,
		failure_detail TEXT,
		bundle_key    TEXT,
		created_at    TIMESTAMP NOT NULL,
		completed_at  TIMESTAMP,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS page_jobs (
		batch_id     TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		page_index   INTEGER NOT NULL,
		status       TEXT NOT NULL,
		status_rank  INTEGER NOT NULL,
		filename     TEXT,
		fields       TEXT,
		error_kind   TEXT,
		error_detail TEXT,
		source_key   TEXT NOT NULL,
		updated_at   TIMESTAMP NOT NULL,
		PRIMARY KEY (batch_id, page_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_completed_at ON batches(completed_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id            UUID PRIMARY KEY,
		source_name   TEXT NOT NULL,
		status        TEXT NOT NULL,
		total_pages   INTEGER NOT NULL,
		settled_pages INTEGER NOT NULL,
		cancelled     BOOLEAN NOT NULL DEFAULT FALSE,
		failure_kind   TEXT,
		failure_detail TEXT,
		bundle_key    TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS page_jobs (
		batch_id     UUID NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		page_index   INTEGER NOT NULL,
		status       TEXT NOT NULL,
		status_rank  INTEGER NOT NULL,
		filename     TEXT,
		fields       TEXT,
		error_kind   TEXT,
		error_detail TEXT,
		source_key   TEXT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (batch_id, page_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_completed_at ON batches(completed_at)`,
}

// Migrate creates the tables when missing.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if d.Driver == common.DriverPostgres {
		stmts = postgresSchema
	}
	for _, s := range stmts {
		if _, err := d.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%w: migrate: %v", common.ErrDatabase, err)
		}
	}
	return nil
}
