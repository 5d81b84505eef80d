package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// BatchRepository persists batch snapshots. Writes only move forward: a
// snapshot older than the stored one is ignored.
type BatchRepository interface {
	RecordBatch(ctx context.Context, snap entity.BatchSnapshot) error
	Get(ctx context.Context, id uuid.UUID) (entity.BatchSnapshot, error)
	PurgeBefore(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}

type batchRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewBatchRepository(db *DB, logger *slog.Logger) BatchRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &batchRepository{db: db, logger: logger}
}

const upsertBatch = `
INSERT INTO batches (id, source_name, status, total_pages, settled_pages, cancelled,
	failure_kind, failure_detail, bundle_key, created_at, completed_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	settled_pages = excluded.settled_pages,
	cancelled = excluded.cancelled,
	failure_kind = excluded.failure_kind,
	failure_detail = excluded.failure_detail,
	bundle_key = excluded.bundle_key,
	completed_at = excluded.completed_at,
	updated_at = excluded.updated_at
WHERE batches.completed_at IS NULL
	AND (excluded.completed_at IS NOT NULL OR excluded.settled_pages >= batches.settled_pages)`

const upsertPage = `
INSERT INTO page_jobs (batch_id, page_index, status, status_rank, filename, fields,
	error_kind, error_detail, source_key, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (batch_id, page_index) DO UPDATE SET
	status = excluded.status,
	status_rank = excluded.status_rank,
	filename = excluded.filename,
	fields = excluded.fields,
	error_kind = excluded.error_kind,
	error_detail = excluded.error_detail,
	updated_at = excluded.updated_at
WHERE excluded.status_rank >= page_jobs.status_rank`

// RecordBatch upserts the batch row and its pages in one transaction.
func (r *batchRepository) RecordBatch(ctx context.Context, snap entity.BatchSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	var failureKind, failureDetail sql.NullString
	if snap.Failure != nil {
		failureKind = sql.NullString{String: string(snap.Failure.Kind), Valid: true}
		failureDetail = sql.NullString{String: snap.Failure.Detail, Valid: true}
	}
	var completedAt sql.NullTime
	if snap.CompletedAt != nil {
		completedAt = sql.NullTime{Time: snap.CompletedAt.UTC(), Valid: true}
	}
	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, r.db.rebind(upsertBatch),
		snap.ID.String(), snap.SourceName, string(snap.Status), len(snap.Pages),
		snap.Progress.Named+snap.Progress.Failed, snap.Cancelled,
		failureKind, failureDetail, nullString(snap.BundleKey),
		snap.CreatedAt.UTC(), completedAt, now)
	if err != nil {
		return fmt.Errorf("%w: upsert batch %s: %v", common.ErrDatabase, snap.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: upsert batch %s: %v", common.ErrDatabase, snap.ID, err)
	}
	if n == 0 {
		r.logger.Debug("repository.batch.stale", "batch_id", snap.ID, "status", snap.Status)
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.db.rebind(upsertPage))
	if err != nil {
		return fmt.Errorf("%w: prepare page upsert: %v", common.ErrDatabase, err)
	}
	defer stmt.Close()
	for _, p := range snap.Pages {
		var fields sql.NullString
		if p.Fields != nil {
			data, err := json.Marshal(p.Fields)
			if err != nil {
				return fmt.Errorf("marshal fields of page %d: %w", p.Index, err)
			}
			fields = sql.NullString{String: string(data), Valid: true}
		}
		var errKind, errDetail sql.NullString
		if p.Error != nil {
			errKind = sql.NullString{String: string(p.Error.Kind), Valid: true}
			errDetail = sql.NullString{String: p.Error.Detail, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			snap.ID.String(), p.Index, string(p.Status), p.Status.Rank(),
			nullString(p.Filename), fields, errKind, errDetail, p.SourceKey, p.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("%w: upsert page %d of %s: %v", common.ErrDatabase, p.Index, snap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	return nil
}

// Get loads a stored batch. Status is the stored one; progress is recomputed
// from the pages.
func (r *batchRepository) Get(ctx context.Context, id uuid.UUID) (entity.BatchSnapshot, error) {
	var (
		snap                       entity.BatchSnapshot
		status                     string
		failureKind, failureDetail sql.NullString
		bundleKey                  sql.NullString
		completedAt                sql.NullTime
	)
	row := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT id, source_name, status, cancelled, failure_kind, failure_detail, bundle_key, created_at, completed_at
		FROM batches WHERE id = ?`), id.String())
	err := row.Scan(&snap.ID, &snap.SourceName, &status, &snap.Cancelled,
		&failureKind, &failureDetail, &bundleKey, &snap.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.BatchSnapshot{}, fmt.Errorf("batch %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return entity.BatchSnapshot{}, fmt.Errorf("%w: get batch %s: %v", common.ErrDatabase, id, err)
	}
	snap.Status = constants.BatchStatus(status)
	snap.BundleKey = bundleKey.String
	if failureKind.Valid {
		snap.Failure = &entity.BatchFailure{Kind: constants.ErrorKind(failureKind.String), Detail: failureDetail.String}
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		snap.CompletedAt = &t
	}
	snap.CreatedAt = snap.CreatedAt.UTC()

	pages, err := r.pages(ctx, id)
	if err != nil {
		return entity.BatchSnapshot{}, err
	}
	snap.Pages = pages
	snap.Progress = entity.ComputeProgress(pages)
	return snap, nil
}

func (r *batchRepository) pages(ctx context.Context, id uuid.UUID) ([]entity.PageJob, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
		SELECT page_index, status, filename, fields, error_kind, error_detail, source_key, updated_at
		FROM page_jobs WHERE batch_id = ? ORDER BY page_index`), id.String())
	if err != nil {
		return nil, fmt.Errorf("%w: list pages of %s: %v", common.ErrDatabase, id, err)
	}
	defer rows.Close()

	pages := []entity.PageJob{}
	for rows.Next() {
		var (
			p                  entity.PageJob
			status             string
			filename, fields   sql.NullString
			errKind, errDetail sql.NullString
		)
		if err := rows.Scan(&p.Index, &status, &filename, &fields, &errKind, &errDetail, &p.SourceKey, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan page: %v", common.ErrDatabase, err)
		}
		p.Status = constants.PageStatus(status)
		p.Filename = filename.String
		p.UpdatedAt = p.UpdatedAt.UTC()
		if fields.Valid {
			var f entity.ExtractedFields
			if err := json.Unmarshal([]byte(fields.String), &f); err != nil {
				return nil, fmt.Errorf("unmarshal fields of page %d: %w", p.Index, err)
			}
			p.Fields = &f
		}
		if errKind.Valid {
			p.Error = &entity.PageError{Kind: constants.ErrorKind(errKind.String), Detail: errDetail.String}
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// PurgeBefore deletes batches completed before the cutoff and returns their ids.
func (r *batchRepository) PurgeBefore(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, r.db.rebind(
		`SELECT id FROM batches WHERE completed_at IS NOT NULL AND completed_at < ? ORDER BY id`), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: select expired: %v", common.ErrDatabase, err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: scan id: %v", common.ErrDatabase, err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: select expired: %v", common.ErrDatabase, err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM page_jobs WHERE batch_id = ?`), id.String()); err != nil {
			return nil, fmt.Errorf("%w: delete pages of %s: %v", common.ErrDatabase, id, err)
		}
		if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM batches WHERE id = ?`), id.String()); err != nil {
			return nil, fmt.Errorf("%w: delete batch %s: %v", common.ErrDatabase, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	if len(ids) > 0 {
		r.logger.Info("repository.batches.purged", "count", len(ids), "before", before)
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
