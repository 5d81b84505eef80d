package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// FSIngestor reads PDFs from the local filesystem and submits them. A file
// whose content was already submitted is skipped.
type FSIngestor struct {
	submitter Submitter
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]uuid.UUID // content hash -> batch
}

func NewFSIngestor(s Submitter, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{submitter: s, logger: logger, seen: make(map[string]uuid.UUID)}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if !acceptedExt(ext) {
		return out, fmt.Errorf("%w: unsupported or missing extension %q", common.ErrInvalidInput, ext)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(data)
	out.HashHex = hex.EncodeToString(sum[:])

	i.mu.Lock()
	if id, ok := i.seen[out.HashHex]; ok {
		i.mu.Unlock()
		out.BatchID, out.Deduplicated = id, true
		i.logger.Info("ingest.file.duplicate", "path", abs, "batch_id", id)
		return out, nil
	}
	i.mu.Unlock()

	id, err := i.submitter.Submit(ctx, entity.SourceDocument{Name: filepath.Base(abs), Content: data})
	out.BatchID = id
	if id != uuid.Nil {
		i.mu.Lock()
		i.seen[out.HashHex] = id
		i.mu.Unlock()
	}
	if err != nil {
		return out, err
	}
	i.logger.Info("ingest.file.submitted", "path", abs, "batch_id", id, "bytes", len(data))
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each PDF. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && dotfile(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !acceptedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// acceptedExt reports whether ext names a payslip document.
func acceptedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// dotfile matches editor swap files and partial downloads such as
// ".payslips.pdf.part", which must never be submitted.
func dotfile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
