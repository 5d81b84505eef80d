package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/naming"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// Update is one page transition reported by a worker.
type Update struct {
	Page     int
	Status   constants.PageStatus
	Fields   *entity.ExtractedFields // with EXTRACTED
	Filename string                  // with NAMED
	Err      error                   // with FAILED
}

// Materializer packages a finished batch.
type Materializer interface {
	Materialize(ctx context.Context, snap entity.BatchSnapshot) (entity.Bundle, error)
}

// Recorder persists snapshots. Calls may arrive out of order.
type Recorder interface {
	RecordBatch(ctx context.Context, snap entity.BatchSnapshot) error
}

type batchState struct {
	mu        sync.Mutex
	batch     entity.Batch
	names     *naming.NameSet
	cancelled bool
	finalized bool

	bundle    *entity.Bundle
	bundleErr error
	done      chan struct{}
}

// Coordinator owns the batches, aggregates page reports and finalizes each
// batch exactly once.
type Coordinator struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*batchState

	materializer Materializer
	recorder     Recorder
	logger       *slog.Logger
}

type Option func(*Coordinator)

func WithMaterializer(m Materializer) Option {
	return func(c *Coordinator) { c.materializer = m }
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

func New(logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		batches: make(map[uuid.UUID]*batchState),
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register takes ownership of batch. Page indices must be exactly 1..N in
// order. A batch that is already terminal (whole-batch failure) is finalized
// immediately.
func (c *Coordinator) Register(ctx context.Context, batch entity.Batch, names *naming.NameSet) error {
	for i, p := range batch.Pages {
		if p.Index != i+1 {
			return fmt.Errorf("%w: page %d at position %d", common.ErrInvalidInput, p.Index, i+1)
		}
		if !p.Status.Valid() {
			return fmt.Errorf("%w: page %d has status %q", common.ErrInvalidInput, p.Index, p.Status)
		}
	}
	if names == nil {
		names = naming.NewNameSet()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	st := &batchState{batch: batch.Clone(), names: names, done: make(chan struct{})}

	c.mu.Lock()
	if _, dup := c.batches[batch.ID]; dup {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", common.ErrDuplicateBatch, batch.ID)
	}
	c.batches[batch.ID] = st
	c.mu.Unlock()

	st.mu.Lock()
	finalize := st.finalizeIfDoneLocked()
	snap := st.snapshotLocked()
	st.mu.Unlock()

	c.logger.Info("coordinator.batch.registered", "batch_id", batch.ID, "pages", len(batch.Pages), "status", snap.Status)
	c.afterChange(ctx, st, snap, finalize)
	return nil
}

// Report applies a page transition. Reports for cancelled or finalized
// batches are rejected with ErrBatchClosed and change nothing.
func (c *Coordinator) Report(ctx context.Context, id uuid.UUID, u Update) error {
	st, err := c.get(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if st.cancelled || st.finalized {
		st.mu.Unlock()
		return fmt.Errorf("report page %d of %s: %w", u.Page, id, common.ErrBatchClosed)
	}
	job, ok := st.batch.Page(u.Page)
	if !ok {
		st.mu.Unlock()
		return fmt.Errorf("%w: batch %s has no page %d", common.ErrInvalidInput, id, u.Page)
	}
	if err := apply(job, u); err != nil {
		st.mu.Unlock()
		return err
	}
	st.refreshNamesLocked()
	finalize := st.finalizeIfDoneLocked()
	snap := st.snapshotLocked()
	st.mu.Unlock()

	if u.Status == constants.PageStatusFailed {
		c.logger.Warn("coordinator.page.failed", "batch_id", id, "page", u.Page, "error", u.Err)
	}
	c.afterChange(ctx, st, snap, finalize)
	return nil
}

func apply(job *entity.PageJob, u Update) error {
	if u.Status == constants.PageStatusFailed {
		err := u.Err
		if err == nil {
			err = errors.New("unknown failure")
		}
		return job.Fail(common.KindOf(err), err.Error())
	}
	if err := job.Transition(u.Status); err != nil {
		return err
	}
	switch u.Status {
	case constants.PageStatusExtracted:
		if u.Fields != nil {
			f := *u.Fields
			job.Fields = &f
		}
	case constants.PageStatusNamed:
		job.Filename = u.Filename
	}
	return nil
}

// Cancel fails every non-terminal page with CANCELLED and rejects later
// reports. In-flight work is not interrupted. Cancelling a finished batch
// does nothing.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID) error {
	st, err := c.get(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if st.cancelled || st.finalized {
		st.mu.Unlock()
		return nil
	}
	st.cancelled = true
	cancelled := 0
	for i := range st.batch.Pages {
		p := &st.batch.Pages[i]
		if p.Status.Terminal() {
			continue
		}
		if err := p.Fail(constants.ErrorKindCancelled, common.ErrCancelled.Error()); err == nil {
			cancelled++
		}
	}
	finalize := st.finalizeIfDoneLocked()
	snap := st.snapshotLocked()
	st.mu.Unlock()

	c.logger.Info("coordinator.batch.cancelled", "batch_id", id, "pages_cancelled", cancelled, "status", snap.Status)
	c.afterChange(ctx, st, snap, finalize)
	return nil
}

// Status returns a snapshot with the computed batch status.
func (c *Coordinator) Status(id uuid.UUID) (entity.BatchSnapshot, error) {
	st, err := c.get(id)
	if err != nil {
		return entity.BatchSnapshot{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked(), nil
}

// IsComplete reports whether the batch is finalized and its bundle settled.
func (c *Coordinator) IsComplete(id uuid.UUID) (bool, error) {
	st, err := c.get(id)
	if err != nil {
		return false, err
	}
	select {
	case <-st.done:
		return true, nil
	default:
		return false, nil
	}
}

// Wait blocks until the batch is complete or ctx ends.
func (c *Coordinator) Wait(ctx context.Context, id uuid.UUID) error {
	st, err := c.get(id)
	if err != nil {
		return err
	}
	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the bundle of a complete batch. ALL_FAILED batches have no
// bundle; the error carries the failure detail.
func (c *Coordinator) Result(id uuid.UUID) (entity.Bundle, error) {
	st, err := c.get(id)
	if err != nil {
		return entity.Bundle{}, err
	}
	select {
	case <-st.done:
	default:
		return entity.Bundle{}, fmt.Errorf("batch %s: %w", id, common.ErrNotComplete)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.bundleErr != nil {
		return entity.Bundle{}, st.bundleErr
	}
	if st.bundle == nil {
		return entity.Bundle{}, fmt.Errorf("batch %s: %w", id, common.ErrNoBundle)
	}
	return *st.bundle, nil
}

// Evict forgets finalized batches completed before the cutoff and returns
// their ids so callers can drop stored blobs.
func (c *Coordinator) Evict(before time.Time) []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []uuid.UUID
	for id, st := range c.batches {
		st.mu.Lock()
		old := st.finalized && st.batch.CompletedAt != nil && st.batch.CompletedAt.Before(before)
		st.mu.Unlock()
		if old {
			delete(c.batches, id)
			evicted = append(evicted, id)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].String() < evicted[j].String() })
	if len(evicted) > 0 {
		c.logger.Info("coordinator.batches.evicted", "count", len(evicted), "before", before)
	}
	return evicted
}

// Len is the number of batches held.
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.batches)
}

func (c *Coordinator) get(id uuid.UUID) (*batchState, error) {
	c.mu.RLock()
	st, ok := c.batches[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, common.ErrNotFound)
	}
	return st, nil
}

// afterChange runs the slow side effects outside the batch lock.
func (c *Coordinator) afterChange(ctx context.Context, st *batchState, snap entity.BatchSnapshot, finalize bool) {
	ctx = context.WithoutCancel(ctx)
	if finalize {
		c.materialize(ctx, st, snap)
		st.mu.Lock()
		snap = st.snapshotLocked()
		st.mu.Unlock()
	}
	if c.recorder != nil {
		if err := c.recorder.RecordBatch(ctx, snap); err != nil {
			c.logger.Error("coordinator.record.failed", "batch_id", snap.ID, "error", err)
		}
	}
	if finalize {
		close(st.done)
	}
}

func (c *Coordinator) materialize(ctx context.Context, st *batchState, snap entity.BatchSnapshot) {
	log := c.logger.With("batch_id", snap.ID, "status", snap.Status)
	if snap.Status == constants.BatchStatusAllFailed {
		detail := "every page failed"
		if snap.Failure != nil {
			detail = fmt.Sprintf("%s: %s", snap.Failure.Kind, snap.Failure.Detail)
		}
		st.mu.Lock()
		st.bundleErr = fmt.Errorf("batch %s: %w: %s", snap.ID, common.ErrNoBundle, detail)
		st.mu.Unlock()
		log.Warn("coordinator.batch.failed", "detail", detail)
		return
	}

	var (
		b   entity.Bundle
		err error
	)
	if c.materializer != nil {
		b, err = c.materializer.Materialize(ctx, snap)
	} else {
		b = entity.DescribeBundle(snap)
	}
	st.mu.Lock()
	if err != nil {
		st.bundleErr = fmt.Errorf("materialize bundle: %w", err)
	} else {
		st.bundle = &b
	}
	st.mu.Unlock()
	if err != nil {
		log.Error("coordinator.bundle.failed", "error", err)
		return
	}
	log.Info("coordinator.batch.completed", "files", len(b.Files), "failures", len(b.Failures), "bundle_key", b.Key)
}

// refreshNamesLocked re-reads Named filenames, since a lower page claiming
// the same stem later shifts the suffixes of higher pages.
func (st *batchState) refreshNamesLocked() {
	for i := range st.batch.Pages {
		p := &st.batch.Pages[i]
		if p.Status != constants.PageStatusNamed {
			continue
		}
		if name, ok := st.names.Lookup(p.Index); ok {
			p.Filename = name
		}
	}
}

// finalizeIfDoneLocked freezes names and stamps completion once every page is
// terminal. It returns true exactly once per batch.
func (st *batchState) finalizeIfDoneLocked() bool {
	if st.finalized {
		return false
	}
	status := entity.ComputeBatchStatus(st.batch.Pages, st.batch.Failure)
	if !status.Done() {
		return false
	}
	named := make(map[int]bool, len(st.batch.Pages))
	for _, p := range st.batch.Pages {
		named[p.Index] = p.Status == constants.PageStatusNamed
	}
	st.names.Freeze(func(page int) bool { return named[page] })
	st.refreshNamesLocked()
	now := time.Now().UTC()
	st.batch.CompletedAt = &now
	st.finalized = true
	return true
}

func (st *batchState) snapshotLocked() entity.BatchSnapshot {
	snap := entity.BatchSnapshot{
		Batch:     st.batch.Clone(),
		Status:    entity.ComputeBatchStatus(st.batch.Pages, st.batch.Failure),
		Progress:  entity.ComputeProgress(st.batch.Pages),
		Cancelled: st.cancelled,
	}
	if st.bundle != nil {
		snap.BundleKey = st.bundle.Key
	}
	return snap
}
