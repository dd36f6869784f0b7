// Package worker implements the claim-fetch-store-complete loop a worker
// process runs against the coordinator. The actual page fetching is behind
// PageFetcher; production workers plug in the portal scraper, tests and
// drills plug in a replay file.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/courtdata/scrapecoord/internal/common"
	"github.com/courtdata/scrapecoord/internal/entity"
	"github.com/courtdata/scrapecoord/internal/partition"
)

// Coordinator is the slice of the lease manager a worker needs. The
// coordinator service satisfies this.
type Coordinator interface {
	RegisterWorker(ctx context.Context, workerID, hostname string) error
	Claim(ctx context.Context, recordType, workerID string) (*entity.PageUnit, error)
	Complete(ctx context.Context, recordType string, pageNumber int, workerID string) error
	Snapshot(ctx context.Context, recordType string) (*entity.Snapshot, error)
	MarkWorkerDone(ctx context.Context, workerID string) error
}

// PageFetcher retrieves and parses one page of the remote source. It is the
// external collaborator boundary: everything behind it (HTTP session,
// pagination postbacks, HTML parsing) is out of the coordinator's hands.
type PageFetcher interface {
	FetchPage(ctx context.Context, recordType string, pageNumber int) ([]entity.CaseRecord, error)
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc func(ctx context.Context, recordType string, pageNumber int) ([]entity.CaseRecord, error)

func (f FetcherFunc) FetchPage(ctx context.Context, recordType string, pageNumber int) ([]entity.CaseRecord, error) {
	return f(ctx, recordType, pageNumber)
}

// Runner drives one worker through the shared coordinator until every page
// of the record type is completed or the context ends.
type Runner struct {
	coord      Coordinator
	store      *partition.Store
	fetcher    PageFetcher
	recordType string
	cfg        common.WorkerConfig
	logger     *slog.Logger
}

func NewRunner(
	coord Coordinator,
	store *partition.Store,
	fetcher PageFetcher,
	recordType string,
	cfg common.WorkerConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPoll < cfg.PollInterval {
		cfg.MaxPoll = cfg.PollInterval
	}
	if cfg.ClaimAttempts == 0 {
		cfg.ClaimAttempts = 5
	}
	return &Runner{
		coord:      coord,
		store:      store,
		fetcher:    fetcher,
		recordType: recordType,
		cfg:        cfg,
		logger:     logger.With("worker_id", cfg.ID, "record_type", recordType),
	}
}

// Run loops until all pages are completed. Crash recovery needs no special
// path here: a restarted worker just claims again, and whatever it abandoned
// comes back through lease expiry.
func (r *Runner) Run(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := r.coord.RegisterWorker(ctx, r.cfg.ID, hostname); err != nil {
		return err
	}
	r.logger.Info("worker started", "hostname", hostname)

	idle := r.cfg.PollInterval
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := r.claim(ctx)
		if errors.Is(err, common.ErrNoEligiblePages) {
			snap, serr := r.coord.Snapshot(ctx, r.recordType)
			if serr == nil && snap.Done() {
				if derr := r.coord.MarkWorkerDone(ctx, r.cfg.ID); derr != nil {
					r.logger.Debug("mark done failed", "error", derr)
				}
				r.logger.Info("all pages completed", "pages_processed", processed)
				return nil
			}
			// Other workers still hold live leases; poll until they finish
			// or their leases expire back to us.
			r.logger.Debug("nothing claimable, polling", "sleep", idle)
			if err := sleepCtx(ctx, idle); err != nil {
				return err
			}
			if idle *= 2; idle > r.cfg.MaxPoll {
				idle = r.cfg.MaxPoll
			}
			continue
		}
		if err != nil {
			return err
		}
		idle = r.cfg.PollInterval

		if done, err := r.process(ctx, page); err != nil {
			return err
		} else if done {
			processed++
		}

		if r.cfg.FetchDelay > 0 {
			if err := sleepCtx(ctx, r.cfg.FetchDelay); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) process(ctx context.Context, page *entity.PageUnit) (bool, error) {
	records, err := r.fetcher.FetchPage(ctx, r.recordType, page.PageNumber)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Leave the lease to expire; the page goes back to the pool.
		r.logger.Warn("fetch failed, abandoning lease", "page", page.PageNumber, "error", err)
		return false, nil
	}

	for _, rec := range records {
		rec.PageNumber = page.PageNumber
		if err := r.store.AddRecord(ctx, rec); err != nil {
			return false, common.WrapError(err, "storing record")
		}
	}
	if err := r.store.MarkPageCompleted(ctx, page.PageNumber); err != nil {
		return false, common.WrapError(err, "marking page completed")
	}

	err = r.complete(ctx, page.PageNumber)
	if errors.Is(err, common.ErrStaleLease) {
		// The lease expired while we fetched and someone else may own the
		// page now. One writer per completed page: drop our copy.
		if dropErr := r.store.DropPage(ctx, page.PageNumber); dropErr != nil {
			return false, common.WrapError(dropErr, "dropping stale page")
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.logger.Info("page processed", "page", page.PageNumber, "records", len(records))
	return true, nil
}

func (r *Runner) claim(ctx context.Context) (*entity.PageUnit, error) {
	var page *entity.PageUnit
	err := retry.Do(
		func() error {
			p, err := r.coord.Claim(ctx, r.recordType, r.cfg.ID)
			if err != nil {
				return err
			}
			page = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.ClaimAttempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, common.ErrStoreUnavailable) }),
	)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (r *Runner) complete(ctx context.Context, pageNumber int) error {
	return retry.Do(
		func() error {
			return r.coord.Complete(ctx, r.recordType, pageNumber, r.cfg.ID)
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.ClaimAttempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, common.ErrStoreUnavailable) }),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
