package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
)

// GCSStore keeps blobs in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	logger *slog.Logger
}

// NewGCSStore uses application default credentials. STORAGE_EMULATOR_HOST
// is honoured by the client library.
func NewGCSStore(ctx context.Context, bucket string, logger *slog.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is empty", common.ErrInvalidInput)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), logger: logger.With("bucket", bucket)}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(key).NewReader(ctx)
	if isNotFound(err) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", key, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", key, err)
	}
	return b, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(key).Delete(ctx); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete GCS object %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	key, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.bucket.Object(key).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat GCS object %s: %w", key, err)
	}
}

func (s *GCSStore) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: empty prefix", common.ErrInvalidInput)
	}
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list GCS prefix %s: %w", prefix, err)
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete GCS object %s: %w", attrs.Name, err)
		}
		deleted++
	}
	s.logger.Debug("blob.prefix.deleted", "prefix", prefix, "objects", deleted)
	return nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
