// Package pipeline turns a submitted document into a batch of page jobs and
// drives every page through extraction and naming on a worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/blob"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/async"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/coordinator"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/naming"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/split"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// FieldExtractor reads the naming fields of one page.
type FieldExtractor interface {
	Extract(ctx context.Context, page entity.PageImage) (entity.ExtractedFields, error)
}

// NameResolver derives the unique filename of a page within its batch.
type NameResolver interface {
	Resolve(page int, f entity.ExtractedFields, names *naming.NameSet) (string, error)
}

type Config struct {
	// PageTimeout bounds field extraction of one page. Zero means none.
	PageTimeout time.Duration
	// UploadConcurrency bounds concurrent page writes to the blob store.
	UploadConcurrency int
}

// Pipeline is the entry point for clients: Submit, Status, Result, Cancel.
type Pipeline struct {
	splitter    split.Splitter
	extractor   FieldExtractor
	resolver    NameResolver
	coordinator *coordinator.Coordinator
	executor    async.Executor
	store       blob.Store
	cfg         Config
	logger      *slog.Logger
}

func New(
	splitter split.Splitter,
	extractor FieldExtractor,
	resolver NameResolver,
	coord *coordinator.Coordinator,
	executor async.Executor,
	store blob.Store,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 10
	}
	return &Pipeline{
		splitter:    splitter,
		extractor:   extractor,
		resolver:    resolver,
		coordinator: coord,
		executor:    executor,
		store:       store,
		cfg:         cfg,
		logger:      logger,
	}
}

// Submit splits doc and schedules one work item per page. It returns once
// every page is queued, not when the batch is done.
//
// An unusable document still gets a batch id: the batch is registered as
// ALL_FAILED and the CorruptDocumentError is returned alongside the id.
func (p *Pipeline) Submit(ctx context.Context, doc entity.SourceDocument) (uuid.UUID, error) {
	id := uuid.New()
	log := p.logger.With("batch_id", id, "source", doc.Name)

	pages, err := p.split(ctx, doc)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, common.ErrCorruptDocument) {
			return uuid.Nil, err
		}
		var corrupt *common.CorruptDocumentError
		if !errors.As(err, &corrupt) {
			corrupt = &common.CorruptDocumentError{Cause: err}
		}
		batch := entity.Batch{
			ID:         id,
			SourceName: doc.Name,
			Pages:      []entity.PageJob{},
			Failure:    &entity.BatchFailure{Kind: constants.ErrorKindCorruptDocument, Detail: corrupt.Error()},
			CreatedAt:  time.Now().UTC(),
		}
		log.Warn("pipeline.document.corrupt", "error", corrupt)
		if regErr := p.coordinator.Register(ctx, batch, nil); regErr != nil {
			return uuid.Nil, regErr
		}
		return id, corrupt
	}

	keys, err := p.persistPages(ctx, id, pages)
	if err != nil {
		log.Error("pipeline.persist.failed", "error", err)
		if delErr := p.store.DeletePrefix(context.WithoutCancel(ctx), blob.BatchPrefix(id.String())); delErr != nil {
			log.Warn("pipeline.persist.cleanup_failed", "error", delErr)
		}
		return uuid.Nil, err
	}

	batch := entity.Batch{
		ID:         id,
		SourceName: doc.Name,
		Pages:      make([]entity.PageJob, len(pages)),
		CreatedAt:  time.Now().UTC(),
	}
	for i, pg := range pages {
		batch.Pages[i] = entity.NewPageJob(pg.Index, keys[i])
	}
	names := naming.NewNameSet()
	if err := p.coordinator.Register(ctx, batch, names); err != nil {
		return uuid.Nil, err
	}
	log.Info("pipeline.batch.submitted", "pages", len(pages))

	for i, pg := range pages {
		err := p.executor.Submit(ctx, func(wctx context.Context) {
			p.runPage(wctx, id, pg, names)
		})
		if err != nil {
			p.abandon(ctx, id, pages[i:], err)
			return id, fmt.Errorf("schedule page %d: %w", pg.Index, err)
		}
	}
	return id, nil
}

func (p *Pipeline) split(ctx context.Context, doc entity.SourceDocument) ([]entity.PageImage, error) {
	seq, err := p.splitter.Split(ctx, doc)
	if err != nil {
		return nil, err
	}
	pages, err := split.Collect(seq)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, &common.CorruptDocumentError{Cause: errors.New("document has no pages")}
	}
	return pages, nil
}

// persistPages writes every page binary and returns their keys in page order.
func (p *Pipeline) persistPages(ctx context.Context, id uuid.UUID, pages []entity.PageImage) ([]string, error) {
	keys := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.UploadConcurrency)
	for i, pg := range pages {
		keys[i] = blob.PageKey(id.String(), pg.Index)
		g.Go(func() error {
			if err := p.store.Put(gctx, keys[i], pg.Content); err != nil {
				return fmt.Errorf("persist page %d: %w", pg.Index, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

// abandon fails pages that could not be queued.
func (p *Pipeline) abandon(ctx context.Context, id uuid.UUID, pages []entity.PageImage, cause error) {
	for _, pg := range pages {
		err := fmt.Errorf("%w: not scheduled: %v", common.ErrCancelled, cause)
		p.report(ctx, id, coordinator.Update{Page: pg.Index, Status: constants.PageStatusFailed, Err: err})
	}
}

// runPage is the work item of one page. Every step goes through the
// coordinator; once a report is rejected the item stops.
func (p *Pipeline) runPage(ctx context.Context, id uuid.UUID, page entity.PageImage, names *naming.NameSet) {
	ctx = common.WithPage(common.WithBatchID(ctx, id), page.Index)
	log := p.logger.With(common.LogAttrs(ctx)...)

	stage := constants.PageStatusExtracting
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause := fmt.Errorf("panic: %v", r)
		var err error = &common.ExtractionError{Page: page.Index, Cause: cause}
		if stage == constants.PageStatusNaming {
			err = &common.NamingError{Page: page.Index, Cause: cause}
			names.Release(page.Index)
		}
		log.Error("pipeline.page.panicked", "stage", stage, "panic", fmt.Sprint(r))
		p.report(ctx, id, coordinator.Update{Page: page.Index, Status: constants.PageStatusFailed, Err: err})
	}()

	if !p.report(ctx, id, coordinator.Update{Page: page.Index, Status: constants.PageStatusExtracting}) {
		return
	}

	start := time.Now()
	xctx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.PageTimeout > 0 {
		xctx, cancel = context.WithTimeout(ctx, p.cfg.PageTimeout)
	}
	fields, err := p.extractor.Extract(xctx, page)
	cancel()
	if err != nil {
		log.Warn("pipeline.page.failed", "stage", "extract", "error", err, "elapsed", time.Since(start))
		p.report(ctx, id, coordinator.Update{Page: page.Index, Status: constants.PageStatusFailed, Err: err})
		return
	}
	if !p.report(ctx, id, coordinator.Update{Page: page.Index, Status: constants.PageStatusExtracted, Fields: &fields}) {
		return
	}

	if !p.report(ctx, id, coordinator.Update{Page: page.Index, Status: constants.PageStatusNaming}) {
		return
	}
	stage = constants.PageStatusNaming
	name, err := p.resolver.Resolve(page.Index, fields, names)
	if err != nil {
		log.Warn("pipeline.page.failed", "stage", "naming", "error", err)
		p.report(ctx, id, coordinator.Update{Page: page.Index, Status: constants.PageStatusFailed, Err: err})
		return
	}
	if !p.report(ctx, id, coordinator.Update{Page: page.Index, Status: constants.PageStatusNamed, Filename: name}) {
		names.Release(page.Index)
		return
	}
	log.Debug("pipeline.page.named", "filename", name, "method", fields.Method, "elapsed", time.Since(start))
}

func (p *Pipeline) report(ctx context.Context, id uuid.UUID, u coordinator.Update) bool {
	err := p.coordinator.Report(ctx, id, u)
	if err == nil {
		return true
	}
	if errors.Is(err, common.ErrBatchClosed) {
		p.logger.Debug("pipeline.report.rejected", "batch_id", id, "page", u.Page, "status", u.Status)
	} else {
		p.logger.Error("pipeline.report.failed", "batch_id", id, "page", u.Page, "status", u.Status, "error", err)
	}
	return false
}

func (p *Pipeline) Status(id uuid.UUID) (entity.BatchSnapshot, error) {
	return p.coordinator.Status(id)
}

func (p *Pipeline) Result(id uuid.UUID) (entity.Bundle, error) {
	return p.coordinator.Result(id)
}

// Cancel stops a batch. Pages already running finish their current call but
// their reports are dropped.
func (p *Pipeline) Cancel(ctx context.Context, id uuid.UUID) error {
	return p.coordinator.Cancel(ctx, id)
}

func (p *Pipeline) Wait(ctx context.Context, id uuid.UUID) error {
	return p.coordinator.Wait(ctx, id)
}
