// Package coordinator is the lease manager: the only code path allowed to
// move a page between PENDING, ASSIGNED, and COMPLETED. Workers on any
// machine share nothing but the coordinator database it fronts.
package coordinator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/courtdata/scrapecoord/internal/common"
	"github.com/courtdata/scrapecoord/internal/entity"
	"github.com/courtdata/scrapecoord/internal/repository"
)

type Service struct {
	pages   repository.PageRepository
	workers repository.WorkerRepository
	logger  *slog.Logger
}

func NewService(pages repository.PageRepository, workers repository.WorkerRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pages: pages, workers: workers, logger: logger}
}

// Initialize creates the ledger and one PENDING page row per page number in
// [1, totalPages]. A second initialize for the same record type fails with
// ErrAlreadyInitialized; re-running a half-finished scrape is resume, not
// re-init.
func (s *Service) Initialize(ctx context.Context, recordType string, totalPages int) error {
	if strings.TrimSpace(recordType) == "" {
		return common.NewAppError("INIT_ERROR", "record type required", common.ErrInvalidInput)
	}
	if totalPages <= 0 {
		return common.NewAppError("INIT_ERROR", "total pages must be positive", common.ErrInvalidInput)
	}
	return s.pages.Initialize(ctx, recordType, totalPages)
}

// RegisterWorker records the worker in the registry. Registration is
// informational; an unregistered worker can still claim and complete.
func (s *Service) RegisterWorker(ctx context.Context, workerID, hostname string) error {
	if strings.TrimSpace(workerID) == "" {
		return common.NewAppError("WORKER_ERROR", "worker id required", common.ErrInvalidInput)
	}
	return s.workers.Register(ctx, workerID, hostname)
}

// Claim hands out the lowest eligible page, or ErrNoEligiblePages when
// everything is completed or under a live lease. Restart recovery is just
// calling Claim again: identity does not matter, lease expiry does.
func (s *Service) Claim(ctx context.Context, recordType, workerID string) (*entity.PageUnit, error) {
	page, err := s.pages.Claim(ctx, recordType, workerID)
	if err != nil {
		return nil, err
	}
	if hbErr := s.workers.Heartbeat(ctx, workerID); hbErr != nil {
		s.logger.Debug("heartbeat update failed", "worker_id", workerID, "error", hbErr)
	}
	return page, nil
}

// Complete reports a claimed page finished. ErrStaleLease means the lease
// expired and the page was (or may be) reassigned; the caller must discard
// its result for that page.
func (s *Service) Complete(ctx context.Context, recordType string, pageNumber int, workerID string) error {
	return s.pages.Complete(ctx, recordType, pageNumber, workerID)
}

// SweepExpired reverts expired leases to PENDING and returns how many were
// revoked. Optional: Claim sweeps lazily on every call.
func (s *Service) SweepExpired(ctx context.Context, recordType string) (int, error) {
	return s.pages.SweepExpired(ctx, recordType)
}

// MarkWorkerDone flags the worker as finished in the registry.
func (s *Service) MarkWorkerDone(ctx context.Context, workerID string) error {
	return s.workers.MarkDone(ctx, workerID)
}
