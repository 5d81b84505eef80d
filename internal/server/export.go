package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/bundle"
)

// ExportBundle waits for a batch to complete and unpacks its bundle into
// <dir>/<source stem>_<batch id>. It returns the directory written.
func (s *Server) ExportBundle(ctx context.Context, id uuid.UUID, dir string) (string, error) {
	if err := s.Pipeline.Wait(ctx, id); err != nil {
		return "", err
	}
	b, err := s.Pipeline.Result(id)
	if err != nil {
		return "", err
	}
	snap, err := s.Pipeline.Status(id)
	if err != nil {
		return "", err
	}
	data, err := s.Store.Get(ctx, b.Key)
	if err != nil {
		return "", common.WrapError(err, "read bundle "+b.Key)
	}

	stem := strings.TrimSuffix(filepath.Base(snap.SourceName), filepath.Ext(snap.SourceName))
	if stem == "" || stem == "." {
		stem = "batch"
	}
	target := filepath.Join(dir, fmt.Sprintf("%s_%s", stem, id.String()[:8]))
	written, err := bundle.Unpack(data, target)
	if err != nil {
		return "", err
	}
	s.logger.Info("bundle exported",
		"batch_id", id,
		"status", snap.Status,
		"dir", target,
		"files", len(written))
	return target, nil
}
