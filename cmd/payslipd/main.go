package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/ingest"
	"github.com/joseph-ayodele/payslip-splitter/internal/server"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	cfg := common.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if cfg.Ingest.InboxDir == "" {
		logger.Error("missing INBOX_DIR environment variable")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := server.NewGRPCServer()
	go func() {
		logger.Info("payslipd listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	go srv.RunRetention(ctx)

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Ingest.InboxDir},
		InitialScan: true,
		Debounce:    cfg.Ingest.Debounce,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to watch inbox", "dir", cfg.Ingest.InboxDir, "error", err)
		os.Exit(1)
	}
	logger.Info("watching inbox", "dir", cfg.Ingest.InboxDir, "outbox", cfg.Ingest.OutboxDir)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case path, ok := <-events:
			if !ok {
				break loop
			}
			go handle(ctx, srv, logger, path, cfg.Ingest.OutboxDir)
		case err, ok := <-errs:
			if ok {
				logger.Warn("inbox watcher error", "error", err)
			}
		}
	}

	logger.Info("shutting down...")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Close(shutdownCtx)
	logger.Info("stopped")
}

// handle submits one inbox file and unpacks its bundle into the outbox.
func handle(ctx context.Context, srv *server.Server, logger *slog.Logger, path, outbox string) {
	ctx = common.WithRequestID(ctx, uuid.NewString())
	log := logger.With(common.LogAttrs(ctx)...)

	res, err := srv.Ingestor.IngestPath(ctx, path)
	if err != nil {
		log.Error("failed to ingest file", "path", path, "batch_id", res.BatchID, "error", err)
		return
	}
	if res.Deduplicated {
		return
	}
	dir, err := srv.ExportBundle(ctx, res.BatchID, outbox)
	if err != nil {
		log.Error("failed to export bundle", "path", path, "batch_id", res.BatchID, "error", err)
		return
	}
	snap, err := srv.Pipeline.Status(res.BatchID)
	if err != nil {
		return
	}
	log.Info("batch exported",
		"path", path,
		"batch_id", res.BatchID,
		"status", snap.Status,
		"named", snap.Progress.Named,
		"failed", snap.Progress.Failed,
		"dir", dir)
}
