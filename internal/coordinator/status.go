package coordinator

import (
	"context"

	"github.com/courtdata/scrapecoord/internal/entity"
)

// Snapshot aggregates progress counts for one record type, including the
// per-worker breakdown from the registry. Read-only, no locks taken.
func (s *Service) Snapshot(ctx context.Context, recordType string) (*entity.Snapshot, error) {
	return s.pages.Snapshot(ctx, recordType)
}

// Workers lists the worker registry, busiest first.
func (s *Service) Workers(ctx context.Context) ([]entity.Worker, error) {
	return s.workers.List(ctx)
}

// CompletedPages exposes the coordinator's completed-page ledger for the
// merge reconciler.
func (s *Service) CompletedPages(ctx context.Context, recordType string) ([]int, error) {
	return s.pages.CompletedPages(ctx, recordType)
}
