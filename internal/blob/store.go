// Package blob stores page binaries and bundles under opaque keys.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
)

// Store is key-addressed binary storage. Get returns an error wrapping
// common.ErrNotFound for unknown keys; Delete of an unknown key is a no-op.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every key under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case common.StorageMemory:
		return NewMemoryStore(), nil
	case common.StorageFS, "":
		return NewFSStore(cfg.Root, logger)
	case common.StorageGCS:
		return NewGCSStore(ctx, cfg.Bucket, logger)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", common.ErrInvalidInput, cfg.Backend)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: bad blob key %q", common.ErrInvalidInput, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: bad blob key %q", common.ErrInvalidInput, key)
	}
	return clean, nil
}

func notFound(key string) error {
	return fmt.Errorf("blob %q: %w", key, common.ErrNotFound)
}

// PageKey is where page index of a batch is stored.
func PageKey(batchID string, index int) string {
	return fmt.Sprintf("batches/%s/pages/page_%03d.pdf", batchID, index)
}

// BatchPrefix holds every page of a batch.
func BatchPrefix(batchID string) string {
	return fmt.Sprintf("batches/%s/", batchID)
}

// BundleKey is where the bundle of a batch is stored.
func BundleKey(batchID string) string {
	return fmt.Sprintf("bundles/%s.zip", batchID)
}
