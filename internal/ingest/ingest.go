package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// Submitter starts a batch for a source document.
type Submitter interface {
	Submit(ctx context.Context, doc entity.SourceDocument) (uuid.UUID, error)
}

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	BatchID      uuid.UUID
	Deduplicated bool
	HashHex      string
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the daemon and the batch command depend on.
type Ingestor interface {
	// IngestPath submits a single file.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory submits all matching files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}
