// Package server wires the pipeline components from configuration and hosts
// the long-running chores of the daemon.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/payslip-splitter/internal/blob"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/async"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/bundle"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/coordinator"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/fields"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/naming"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/ocr"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/pipeline"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/split"
	"github.com/joseph-ayodele/payslip-splitter/internal/ingest"
	repo "github.com/joseph-ayodele/payslip-splitter/internal/repository"
)

// Server owns every component of a running instance.
type Server struct {
	cfg    *common.Config
	logger *slog.Logger

	Store       blob.Store
	DB          *repo.DB
	Batches     repo.BatchRepository
	Coordinator *coordinator.Coordinator
	Pool        *async.Pool
	Pipeline    *pipeline.Pipeline
	Ingestor    *ingest.FSIngestor
}

type Option func(*options)

type options struct {
	store      blob.Store
	recognizer fields.Recognizer
	noDatabase bool
}

// WithStore replaces the store selected by configuration.
func WithStore(s blob.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRecognizer replaces the OCR engine.
func WithRecognizer(r fields.Recognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// WithoutDatabase keeps batch state in memory only.
func WithoutDatabase() Option {
	return func(o *options) { o.noDatabase = true }
}

// New validates cfg and builds the pipeline: blob store, database, OCR
// engine, field extractor, resolver, coordinator, worker pool.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{cfg: cfg, logger: logger, Store: o.store}
	if s.Store == nil {
		store, err := blob.Open(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		s.Store = store
	}

	var coordOpts []coordinator.Option
	coordOpts = append(coordOpts, coordinator.WithMaterializer(bundle.NewMaterializer(s.Store, cfg.Pipeline.BundleLayout, logger)))
	if !o.noDatabase {
		db, err := repo.Open(ctx, cfg.Database, logger)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.DB = db
		if err := db.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.Batches = repo.NewBatchRepository(db, logger)
		coordOpts = append(coordOpts, coordinator.WithRecorder(s.Batches))
	}
	s.Coordinator = coordinator.New(logger, coordOpts...)

	rec := o.recognizer
	if rec == nil {
		rec = ocr.NewEngine(ocr.Config{
			Pdftotext:         cfg.OCR.PdftotextBin,
			Pdftoppm:          cfg.OCR.PdftoppmBin,
			Tesseract:         cfg.OCR.TesseractBin,
			Lang:              cfg.OCR.Lang,
			DPI:               cfg.OCR.DPI,
			TessdataDir:       cfg.OCR.TessdataDir,
			PSM:               cfg.OCR.PSM,
			OEM:               cfg.OCR.OEM,
			MinTextLayerChars: cfg.OCR.MinTextLayerChars,
		}, logger)
	}
	extractor := fields.NewExtractor(rec, fields.Config{
		IdentifierWidth: cfg.Pipeline.IdentifierWidth,
		LowConfidence:   cfg.OCR.LowConfidence,
	}, logger)

	s.Pool = async.NewPool(logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
	)
	s.Pipeline = pipeline.New(
		split.NewPDFSplitter(logger),
		extractor,
		naming.NewResolver(cfg.Pipeline.OutputExt, logger),
		s.Coordinator,
		s.Pool,
		s.Store,
		pipeline.Config{
			PageTimeout:       cfg.Pipeline.PageTimeout,
			UploadConcurrency: cfg.Pipeline.UploadConcurrency,
		},
		logger,
	)
	s.Ingestor = ingest.NewFSIngestor(s.Pipeline, logger)

	logger.Info("server initialized",
		"storage", cfg.Storage.Backend,
		"database", !o.noDatabase,
		"workers", cfg.Pipeline.Workers,
		"layout", cfg.Pipeline.BundleLayout)
	return s, nil
}

// Close drains the worker pool, then releases the database and the store.
func (s *Server) Close(ctx context.Context) {
	if s.Pool != nil {
		if err := s.Pool.Shutdown(ctx); err != nil {
			s.logger.Warn("worker pool shutdown incomplete", "error", err)
		}
	}
	if s.DB != nil {
		s.DB.Close(s.logger)
	}
	if c, ok := s.Store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close blob store", "error", err)
		}
	}
}
