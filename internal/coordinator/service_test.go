package coordinator

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtdata/scrapecoord/internal/common"
	"github.com/courtdata/scrapecoord/internal/repository"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	db, err := repository.Open(context.Background(), repository.Config{
		Path: filepath.Join(t.TempDir(), "coordinator.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pages := repository.NewPageRepository(db, time.Minute, logger)
	workers := repository.NewWorkerRepository(db, logger)
	return NewService(pages, workers, logger)
}

func TestInitializeValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Initialize(ctx, "", 10), common.ErrInvalidInput)
	require.ErrorIs(t, svc.Initialize(ctx, "  ", 10), common.ErrInvalidInput)
	require.ErrorIs(t, svc.Initialize(ctx, "conviction", 0), common.ErrInvalidInput)
	require.NoError(t, svc.Initialize(ctx, "conviction", 10))
	require.ErrorIs(t, svc.Initialize(ctx, "conviction", 10), common.ErrAlreadyInitialized)
}

func TestRegisterWorkerValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.RegisterWorker(ctx, "", "host"), common.ErrInvalidInput)
	require.NoError(t, svc.RegisterWorker(ctx, "W1", "host"))

	workers, err := svc.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "W1", workers[0].ID)
	assert.Equal(t, "host", workers[0].Hostname)
}

// Progress: any set of workers repeatedly claiming and completing drives
// every page to COMPLETED.
func TestRepeatedClaimsDriveToCompletion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	const total = 25
	require.NoError(t, svc.Initialize(ctx, "pending", total))
	require.NoError(t, svc.RegisterWorker(ctx, "W1", "host-a"))
	require.NoError(t, svc.RegisterWorker(ctx, "W2", "host-b"))

	workers := []string{"W1", "W2"}
	done := 0
	for i := 0; ; i++ {
		workerID := workers[i%len(workers)]
		page, err := svc.Claim(ctx, "pending", workerID)
		if err != nil {
			require.ErrorIs(t, err, common.ErrNoEligiblePages)
			break
		}
		require.NoError(t, svc.Complete(ctx, "pending", page.PageNumber, workerID))
		done++
	}
	assert.Equal(t, total, done)

	snap, err := svc.Snapshot(ctx, "pending")
	require.NoError(t, err)
	assert.True(t, snap.Done())
	assert.Equal(t, total, snap.Completed)

	completed, err := svc.CompletedPages(ctx, "pending")
	require.NoError(t, err)
	assert.Len(t, completed, total)
}

func TestSnapshotRunsAlongsideClaims(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx, "conviction", 10))
	_, err := svc.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)

	// A snapshot between claim and complete sees the committed assignment.
	snap, err := svc.Snapshot(ctx, "conviction")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Assigned)
	assert.Equal(t, 9, snap.Pending)

	_, err = svc.Claim(ctx, "conviction", "W2")
	require.NoError(t, err)
	snap, err = svc.Snapshot(ctx, "conviction")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Assigned)
}
