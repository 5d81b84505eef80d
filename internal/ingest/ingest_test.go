package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	docs []entity.SourceDocument
}

func (r *recordingSubmitter) Submit(_ context.Context, doc entity.SourceDocument) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return uuid.New(), nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestPathDeduplicates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.PDF")
	writeFile(t, a, "%PDF same")
	writeFile(t, b, "%PDF same")

	sub := &recordingSubmitter{}
	ing := NewFSIngestor(sub, nil)
	first, err := ing.IngestPath(context.Background(), a)
	require.NoError(t, err)
	second, err := ing.IngestPath(context.Background(), b)
	require.NoError(t, err)

	assert.False(t, first.Deduplicated)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.BatchID, second.BatchID)
	assert.Equal(t, first.HashHex, second.HashHex)
	require.Len(t, sub.docs, 1)
	assert.Equal(t, "a.pdf", sub.docs[0].Name)
}

func TestIngestPathRejectsOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "scan.png")
	writeFile(t, p, "png")
	_, err := NewFSIngestor(&recordingSubmitter{}, nil).IngestPath(context.Background(), p)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "jan.pdf"), "1")
	writeFile(t, filepath.Join(dir, "sub", "feb.pdf"), "2")
	writeFile(t, filepath.Join(dir, "notes.txt"), "3")
	writeFile(t, filepath.Join(dir, ".hidden", "mar.pdf"), "4")

	sub := &recordingSubmitter{}
	results, stats, err := NewFSIngestor(sub, nil).IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, uint32(2), stats.Matched)
	assert.Equal(t, uint32(2), stats.Succeeded)
	assert.Equal(t, uint32(0), stats.Failed)
	assert.Len(t, sub.docs, 2)
}

func TestWatcherEmitsSettledPDFs(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.pdf")
	writeFile(t, existing, "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("no event")
			return ""
		}
	}
	assert.Equal(t, existing, next())

	fresh := filepath.Join(dir, "new.pdf")
	writeFile(t, filepath.Join(dir, "skip.txt"), "x")
	writeFile(t, fresh, "part one")
	require.NoError(t, os.WriteFile(fresh, []byte("part one and two"), 0o644))
	assert.Equal(t, fresh, next())

	cancel()
	for range events {
	}
}

func TestWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}

func TestFileFilters(t *testing.T) {
	assert.True(t, acceptedExt(".PDF"))
	assert.True(t, acceptedExt("pdf"))
	assert.False(t, acceptedExt(".png"))
	assert.False(t, acceptedExt(""))

	assert.True(t, dotfile("/inbox/.payslips.pdf.part"))
	assert.False(t, dotfile("/inbox/.hidden/payslips.pdf"))
	assert.False(t, dotfile("payslips.pdf"))
}
