// Package bundle turns a finished batch into a downloadable zip archive.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/blob"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

const (
	ManifestName = "manifest.json"
	ReportName   = "report.xlsx"
)

// Materializer writes the bundle of a finished batch to a blob store.
type Materializer struct {
	store  blob.Store
	layout string
	logger *slog.Logger
}

func NewMaterializer(store blob.Store, layout string, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	if layout == "" {
		layout = common.LayoutFlat
	}
	return &Materializer{store: store, layout: layout, logger: logger}
}

// Materialize packs every Named page in page order, plus manifest.json and
// report.xlsx, and stores the archive under blob.BundleKey.
func (m *Materializer) Materialize(ctx context.Context, snap entity.BatchSnapshot) (entity.Bundle, error) {
	b := entity.DescribeBundle(snap)
	if snap.Status == constants.BatchStatusAllFailed {
		return b, fmt.Errorf("batch %s: %w", snap.ID, common.ErrNoBundle)
	}

	sources := make(map[int]string, len(snap.Pages))
	fields := make(map[int]*entity.ExtractedFields, len(snap.Pages))
	for _, p := range snap.Pages {
		sources[p.Index] = p.SourceKey
		fields[p.Index] = p.Fields
	}
	for i := range b.Files {
		b.Files[i].Path = m.pathFor(b.Files[i], fields[b.Files[i].Page])
	}

	modified := snap.CreatedAt
	if snap.CompletedAt != nil {
		modified = *snap.CompletedAt
	}
	if modified.IsZero() {
		modified = time.Now()
	}

	manifest := newManifest(snap, b, m.layout)
	manifestJSON, err := encodeManifest(manifest)
	if err != nil {
		return b, err
	}
	report, err := buildReport(snap, manifest)
	if err != nil {
		return b, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range b.Files {
		if err := ctx.Err(); err != nil {
			return b, err
		}
		data, err := m.store.Get(ctx, sources[f.Page])
		if err != nil {
			return b, fmt.Errorf("read page %d: %w", f.Page, err)
		}
		if err := addEntry(zw, f.Path, modified, zip.Store, data); err != nil {
			return b, err
		}
	}
	if err := addEntry(zw, ManifestName, modified, zip.Deflate, manifestJSON); err != nil {
		return b, err
	}
	if err := addEntry(zw, ReportName, modified, zip.Store, report); err != nil {
		return b, err
	}
	if err := zw.Close(); err != nil {
		return b, fmt.Errorf("close zip: %w", err)
	}

	key := blob.BundleKey(snap.ID.String())
	if err := m.store.Put(ctx, key, buf.Bytes()); err != nil {
		return b, fmt.Errorf("store bundle: %w", err)
	}
	b.Key = key
	b.Size = int64(buf.Len())

	m.logger.Info("bundle written",
		"batch_id", snap.ID,
		"key", key,
		"files", len(b.Files),
		"failures", len(b.Failures),
		"bytes", b.Size)
	return b, nil
}

func (m *Materializer) pathFor(f entity.BundleFile, fl *entity.ExtractedFields) string {
	if m.layout != common.LayoutByIdentifier {
		return f.Filename
	}
	dir := constants.Placeholder
	if fl != nil && fl.Identifier.Present() {
		dir = fl.Identifier.Value
	}
	return path.Join(dir, f.Filename)
}

func addEntry(zw *zip.Writer, name string, modified time.Time, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("zip write %s: %w", name, err)
	}
	return nil
}
