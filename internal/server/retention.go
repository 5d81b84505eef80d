package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/internal/blob"
)

// Sweep drops batches completed before now-MaxAge: coordinator state, stored
// rows, page blobs and bundles.
func (s *Server) Sweep(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	cutoff := now.Add(-s.cfg.Retention.MaxAge)

	seen := make(map[uuid.UUID]bool)
	ids := s.Coordinator.Evict(cutoff)
	for _, id := range ids {
		seen[id] = true
	}
	if s.Batches != nil {
		purged, err := s.Batches.PurgeBefore(ctx, cutoff)
		if err != nil {
			return ids, err
		}
		for _, id := range purged {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	for _, id := range ids {
		if err := s.Store.DeletePrefix(ctx, blob.BatchPrefix(id.String())); err != nil {
			s.logger.Warn("retention: failed to delete pages", "batch_id", id, "error", err)
		}
		if err := s.Store.Delete(ctx, blob.BundleKey(id.String())); err != nil {
			s.logger.Warn("retention: failed to delete bundle", "batch_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		s.logger.Info("retention sweep", "removed", len(ids), "cutoff", cutoff)
	}
	return ids, nil
}

// RunRetention sweeps every Retention.Interval until ctx ends. A zero MaxAge
// disables it.
func (s *Server) RunRetention(ctx context.Context) {
	if s.cfg.Retention.MaxAge <= 0 || s.cfg.Retention.Interval <= 0 {
		s.logger.Info("retention disabled")
		return
	}
	t := time.NewTicker(s.cfg.Retention.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if _, err := s.Sweep(ctx, now); err != nil {
				s.logger.Error("retention sweep failed", "error", err)
			}
		}
	}
}
