package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/blob"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/bundle"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/ocr"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
	"github.com/joseph-ayodele/payslip-splitter/internal/testutil"
)

type fixedRecognizer struct{ text string }

func (f fixedRecognizer) Recognize(context.Context, []byte) (ocr.Recognition, error) {
	return ocr.Recognition{Text: f.text, Method: constants.MethodPDFText, Confidence: 1}, nil
}

const page = `BULLETIN DE PAIE
DUPONT Jean 12345
Période : janvier 2025`

func newTestServer(t *testing.T) (*Server, *blob.MemoryStore) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", common.StorageMemory)
	t.Setenv("DB_DRIVER", common.DriverSQLite)
	t.Setenv("DB_URL", ":memory:")
	t.Setenv("PIPELINE_WORKERS", "2")

	store := blob.NewMemoryStore()
	s, err := New(context.Background(), common.LoadConfig(), nil,
		WithStore(store), WithRecognizer(fixedRecognizer{text: page}))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	})
	return s, store
}

func TestSubmitExportAndSweep(t *testing.T) {
	s, store := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := s.Pipeline.Submit(ctx, entity.SourceDocument{Name: "janvier.pdf", Content: testutil.BuildPDF("a", "b")})
	require.NoError(t, err)

	out := t.TempDir()
	dir, err := s.ExportBundle(ctx, id, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "janvier_"+id.String()[:8]), dir)
	for _, name := range []string{"12345_DUPONT_Jean_0125.pdf", "12345_DUPONT_Jean_0125_2.pdf", bundle.ManifestName, bundle.ReportName} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	stored, err := s.Batches.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.BatchStatusAllSucceeded, stored.Status)
	assert.Equal(t, blob.BundleKey(id.String()), stored.BundleKey)

	removed, err := s.Sweep(ctx, time.Now().Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, removed, id)
	assert.Equal(t, 0, s.Coordinator.Len())
	assert.Empty(t, store.Keys())
}

func TestSweepKeepsRecentBatches(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	id, err := s.Pipeline.Submit(ctx, entity.SourceDocument{Name: "x.pdf", Content: testutil.BuildPDF("a")})
	require.NoError(t, err)
	require.NoError(t, s.Pipeline.Wait(ctx, id))

	removed, err := s.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.NotEmpty(t, store.Keys())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Setenv("BUNDLE_LAYOUT", "nested")
	_, err := New(context.Background(), common.LoadConfig(), nil, WithoutDatabase(), WithStore(blob.NewMemoryStore()))
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
}
