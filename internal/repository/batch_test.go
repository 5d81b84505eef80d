package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), common.DatabaseConfig{Driver: common.DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func snapshot(id uuid.UUID, pages []entity.PageJob, completed *time.Time) entity.BatchSnapshot {
	b := entity.Batch{
		ID:          id,
		SourceName:  "janvier.pdf",
		Pages:       pages,
		CreatedAt:   time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC),
		CompletedAt: completed,
	}
	return entity.BatchSnapshot{
		Batch:    b,
		Status:   entity.ComputeBatchStatus(pages, nil),
		Progress: entity.ComputeProgress(pages),
	}
}

func page(idx int, status constants.PageStatus) entity.PageJob {
	p := entity.NewPageJob(idx, "batches/x/pages/p.pdf")
	p.Status = status
	return p
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(openTestDB(t), nil)
	id := uuid.New()

	named := page(1, constants.PageStatusNamed)
	named.Filename = "12345_DUPONT_Jean_0125.pdf"
	named.Fields = &entity.ExtractedFields{
		Identifier: entity.Field{Value: "12345", State: constants.FieldValid, Confidence: 1},
		Method:     constants.MethodPDFOCR,
	}
	failed := page(2, constants.PageStatusExtracting)
	require.NoError(t, failed.Fail(constants.ErrorKindExtraction, "unreadable"))

	done := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	snap := snapshot(id, []entity.PageJob{named, failed}, &done)
	snap.BundleKey = "bundles/x.zip"
	require.NoError(t, repo.RecordBatch(ctx, snap))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, constants.BatchStatusPartialSuccess, got.Status)
	assert.Equal(t, "bundles/x.zip", got.BundleKey)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, done, *got.CompletedAt, time.Second)
	require.Len(t, got.Pages, 2)
	assert.Equal(t, "12345_DUPONT_Jean_0125.pdf", got.Pages[0].Filename)
	require.NotNil(t, got.Pages[0].Fields)
	assert.Equal(t, "12345", got.Pages[0].Fields.Identifier.Value)
	require.NotNil(t, got.Pages[1].Error)
	assert.Equal(t, constants.ErrorKindExtraction, got.Pages[1].Error.Kind)
	assert.Equal(t, 1, got.Progress.Named)
	assert.Equal(t, 1, got.Progress.Failed)
}

func TestRecordIgnoresStaleSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(openTestDB(t), nil)
	id := uuid.New()

	early := snapshot(id, []entity.PageJob{page(1, constants.PageStatusExtracting)}, nil)
	done := time.Now().UTC()
	final := snapshot(id, []entity.PageJob{page(1, constants.PageStatusNamed)}, &done)

	require.NoError(t, repo.RecordBatch(ctx, final))
	require.NoError(t, repo.RecordBatch(ctx, early))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.BatchStatusAllSucceeded, got.Status)
	assert.Equal(t, constants.PageStatusNamed, got.Pages[0].Status)
}

func TestRecordPageNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(openTestDB(t), nil)
	id := uuid.New()

	ahead := snapshot(id, []entity.PageJob{page(1, constants.PageStatusNaming), page(2, constants.PageStatusPending)}, nil)
	behind := snapshot(id, []entity.PageJob{page(1, constants.PageStatusExtracting), page(2, constants.PageStatusExtracting)}, nil)
	require.NoError(t, repo.RecordBatch(ctx, ahead))
	require.NoError(t, repo.RecordBatch(ctx, behind))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.PageStatusNaming, got.Pages[0].Status)
	assert.Equal(t, constants.PageStatusExtracting, got.Pages[1].Status)
}

func TestCorruptBatchRecorded(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(openTestDB(t), nil)
	id := uuid.New()
	done := time.Now().UTC()
	snap := snapshot(id, []entity.PageJob{}, &done)
	snap.Failure = &entity.BatchFailure{Kind: constants.ErrorKindCorruptDocument, Detail: "corrupt document: no pages"}
	snap.Status = constants.BatchStatusAllFailed
	require.NoError(t, repo.RecordBatch(ctx, snap))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.BatchStatusAllFailed, got.Status)
	require.NotNil(t, got.Failure)
	assert.Equal(t, constants.ErrorKindCorruptDocument, got.Failure.Kind)
	assert.Empty(t, got.Pages)
}

func TestGetUnknown(t *testing.T) {
	_, err := NewBatchRepository(openTestDB(t), nil).Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPurgeBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(openTestDB(t), nil)

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()
	oldID, newID, openID := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, repo.RecordBatch(ctx, snapshot(oldID, []entity.PageJob{page(1, constants.PageStatusNamed)}, &old)))
	require.NoError(t, repo.RecordBatch(ctx, snapshot(newID, []entity.PageJob{page(1, constants.PageStatusNamed)}, &recent)))
	require.NoError(t, repo.RecordBatch(ctx, snapshot(openID, []entity.PageJob{page(1, constants.PageStatusPending)}, nil)))

	ids, err := repo.PurgeBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldID}, ids)

	_, err = repo.Get(ctx, oldID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = repo.Get(ctx, newID)
	assert.NoError(t, err)
	_, err = repo.Get(ctx, openID)
	assert.NoError(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{Driver: common.DriverPostgres}
	assert.Equal(t, "SELECT $1, $2", pg.rebind("SELECT ?, ?"))
	lite := &DB{Driver: common.DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{Driver: "oracle"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
