package blob

import (
	"context"
	"fmt"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	key := PageKey("b1", 7)
	assert.Equal(t, "batches/b1/pages/page_007.pdf", key)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.Put(ctx, key, []byte("one")))
	require.NoError(t, s.Put(ctx, key, []byte("two")))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Put(ctx, PageKey("b1", 8), []byte("x")))
	require.NoError(t, s.Put(ctx, BundleKey("b1"), []byte("zip")))
	require.NoError(t, s.DeletePrefix(ctx, BatchPrefix("b1")))
	ok, _ = s.Exists(ctx, PageKey("b1", 8))
	assert.False(t, ok)
	ok, _ = s.Exists(ctx, BundleKey("b1"))
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, BundleKey("b1")))
	require.NoError(t, s.Delete(ctx, BundleKey("b1")))

	for _, bad := range []string{"", "/abs", "../escape", "a/../../b"} {
		assert.ErrorIs(t, s.Put(ctx, bad, nil), common.ErrInvalidInput, bad)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFSStore(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	exerciseStore(t, s)
	assert.ErrorIs(t, s.DeletePrefix(context.Background(), "batches"), common.ErrInvalidInput)
}

func TestGCSStoreAgainstEmulator(t *testing.T) {
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" || os.Getenv("GCS_BUCKET") == "" {
		t.Skip("STORAGE_EMULATOR_HOST and GCS_BUCKET not set")
	}
	s, err := NewGCSStore(context.Background(), os.Getenv("GCS_BUCKET"), nil)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), common.StorageConfig{Backend: common.StorageMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(context.Background(), common.StorageConfig{Backend: common.StorageFS, Root: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	_, err = Open(context.Background(), common.StorageConfig{Backend: "s3"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, isNotFound(nil))
	assert.True(t, isNotFound(storage.ErrObjectNotExist))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 404})))
	assert.False(t, isNotFound(&googleapi.Error{Code: 412}))
}
