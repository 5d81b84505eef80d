package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/payslip-splitter/internal/blob"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/ingest"
	"github.com/joseph-ayodele/payslip-splitter/internal/server"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		in     = flag.String("in", "", "payslip PDF or directory of PDFs to split (required)")
		out    = flag.String("out", "", "output directory (optional, defaults to OUTBOX_DIR)")
		layout = flag.String("layout", "", "bundle layout: flat or by-identifier (optional)")
		inmem  = flag.Bool("inmem", false, "use in-memory SQLite database")
		nodb   = flag.Bool("nodb", false, "do not record batches in a database")
	)
	flag.Parse()

	if *in == "" {
		printError("Error: --in is required\n")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := common.LoadConfig()
	if *out == "" {
		*out = cfg.Ingest.OutboxDir
	}
	if *layout != "" {
		cfg.Pipeline.BundleLayout = *layout
	}
	if *inmem {
		cfg.Database.Driver = common.DriverSQLite
		cfg.Database.DSN = ":memory:"
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []server.Option{server.WithStore(blob.NewMemoryStore())}
	if *nodb {
		opts = append(opts, server.WithoutDatabase())
	}
	srv, err := server.New(ctx, cfg, logger, opts...)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close(context.Background())

	info, err := os.Stat(*in)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	var results []ingest.IngestionResult
	if info.IsDir() {
		var stats ingest.DirStats
		results, stats, err = srv.Ingestor.IngestDirectory(ctx, *in, true)
		if err != nil {
			logger.Error("failed to ingest directory", "error", err)
			os.Exit(1)
		}
		logger.Info("ingestion complete",
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"deduplicated", stats.Deduplicated)
	} else {
		r, err := srv.Ingestor.IngestPath(ctx, *in)
		if err != nil {
			r.Err = err.Error()
		}
		results = append(results, r)
	}

	var (
		exported, failedBatches int
		pagesNamed, pagesFailed int
		done                    = make(map[uuid.UUID]bool)
	)
	for _, r := range results {
		if r.BatchID == uuid.Nil || done[r.BatchID] {
			if r.Err != "" {
				printError("%s: %s\n", filepath.Base(r.SourcePath), r.Err)
				failedBatches++
			}
			continue
		}
		done[r.BatchID] = true

		dir, err := srv.ExportBundle(ctx, r.BatchID, *out)
		snap, serr := srv.Pipeline.Status(r.BatchID)
		if serr == nil {
			pagesNamed += snap.Progress.Named
			pagesFailed += snap.Progress.Failed
		}
		if err != nil {
			if errors.Is(err, common.ErrNoBundle) {
				printError("%s: no page could be processed: %v\n", filepath.Base(r.SourcePath), err)
			} else {
				printError("%s: %v\n", filepath.Base(r.SourcePath), err)
			}
			failedBatches++
			continue
		}
		exported++
		fmt.Printf("%s -> %s (%s)\n", filepath.Base(r.SourcePath), dir, snap.Status)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents exported: %d\n", exported)
	fmt.Printf("- Documents failed: %d\n", failedBatches)
	fmt.Printf("- Pages named: %d\n", pagesNamed)
	fmt.Printf("- Pages failed: %d\n", pagesFailed)
	fmt.Printf("- Output: %s\n", *out)
	if failedBatches > 0 {
		os.Exit(1)
	}
}
