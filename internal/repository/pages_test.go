package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtdata/scrapecoord/constants"
	"github.com/courtdata/scrapecoord/internal/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestRepo(t *testing.T, leaseTimeout time.Duration) (*pageRepo, WorkerRepository) {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "coordinator.db"),
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pages := NewPageRepository(db, leaseTimeout, testLogger()).(*pageRepo)
	workers := NewWorkerRepository(db, testLogger())
	return pages, workers
}

func TestInitializeRejectsSecondRun(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Initialize(ctx, "conviction", 10))
	err := repo.Initialize(ctx, "conviction", 10)
	require.ErrorIs(t, err, common.ErrAlreadyInitialized)

	// A different record type is independent.
	require.NoError(t, repo.Initialize(ctx, "pending", 5))
}

func TestInitializeValidatesInput(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.ErrorIs(t, repo.Initialize(ctx, "", 10), common.ErrInvalidInput)
	require.ErrorIs(t, repo.Initialize(ctx, "conviction", 0), common.ErrInvalidInput)
	require.ErrorIs(t, repo.Initialize(ctx, "conviction", -3), common.ErrInvalidInput)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	_, err := repo.Claim(ctx, "conviction", "PC1")
	require.ErrorIs(t, err, common.ErrNotInitialized)

	require.ErrorIs(t, repo.Complete(ctx, "conviction", 1, "PC1"), common.ErrNotInitialized)

	_, err = repo.SweepExpired(ctx, "conviction")
	require.ErrorIs(t, err, common.ErrNotInitialized)

	_, err = repo.Snapshot(ctx, "conviction")
	require.ErrorIs(t, err, common.ErrNotInitialized)
}

// The scenario from the coordination runbook: two machines starting at the
// same time must get distinct pages, and a revoked worker's completion for a
// page it no longer holds is rejected.
func TestTwoWorkerScenario(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Initialize(ctx, "conviction", 1500))

	p1, err := repo.Claim(ctx, "conviction", "PC1")
	require.NoError(t, err)
	assert.Equal(t, 1, p1.PageNumber)
	assert.Equal(t, constants.PageStatusAssigned, p1.Status)

	p2, err := repo.Claim(ctx, "conviction", "PC2")
	require.NoError(t, err)
	assert.Equal(t, 2, p2.PageNumber)

	require.NoError(t, repo.Complete(ctx, "conviction", 1, "PC1"))
	require.ErrorIs(t, repo.Complete(ctx, "conviction", 1, "PC2"), common.ErrStaleLease)
}

func TestCompleteIsTerminal(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Initialize(ctx, "conviction", 3))
	p, err := repo.Claim(ctx, "conviction", "PC1")
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, "conviction", p.PageNumber, "PC1"))

	// Completing twice fails: the lease is gone.
	require.ErrorIs(t, repo.Complete(ctx, "conviction", p.PageNumber, "PC1"), common.ErrStaleLease)

	// A completed page is never claimable again.
	for i := 0; i < 2; i++ {
		next, err := repo.Claim(ctx, "conviction", "PC2")
		require.NoError(t, err)
		assert.NotEqual(t, p.PageNumber, next.PageNumber)
	}
}

func TestCompleteUnknownPage(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Initialize(ctx, "conviction", 3))
	require.ErrorIs(t, repo.Complete(ctx, "conviction", 99, "PC1"), common.ErrNotFound)
}

func TestLeaseExpiryReassigns(t *testing.T) {
	repo, _ := newTestRepo(t, 30*time.Minute)
	ctx := context.Background()

	current := time.Now()
	repo.now = func() time.Time { return current }

	require.NoError(t, repo.Initialize(ctx, "conviction", 2))

	p, err := repo.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)
	require.Equal(t, 1, p.PageNumber)

	// Just shy of the timeout: the lease is still live, W2 gets page 2.
	current = current.Add(30*time.Minute - time.Second)
	p2, err := repo.Claim(ctx, "conviction", "W2")
	require.NoError(t, err)
	assert.Equal(t, 2, p2.PageNumber)

	// Past the timeout: page 1 is eligible again.
	current = current.Add(2 * time.Second)
	p3, err := repo.Claim(ctx, "conviction", "W3")
	require.NoError(t, err)
	assert.Equal(t, 1, p3.PageNumber)
	assert.Equal(t, 1, p3.RetryCount)

	// The original holder comes back late: stale.
	require.ErrorIs(t, repo.Complete(ctx, "conviction", 1, "W1"), common.ErrStaleLease)
	// The new holder completes fine.
	require.NoError(t, repo.Complete(ctx, "conviction", 1, "W3"))
}

// The lease is live through the full timeout; eligibility starts strictly
// after it elapses.
func TestLeaseLiveAtExactTimeout(t *testing.T) {
	repo, _ := newTestRepo(t, 30*time.Minute)
	ctx := context.Background()

	current := time.Now()
	repo.now = func() time.Time { return current }

	require.NoError(t, repo.Initialize(ctx, "conviction", 1))
	_, err := repo.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)

	current = current.Add(30 * time.Minute)
	_, err = repo.Claim(ctx, "conviction", "W2")
	require.ErrorIs(t, err, common.ErrNoEligiblePages)

	n, err := repo.SweepExpired(ctx, "conviction")
	require.NoError(t, err)
	assert.Zero(t, n)

	current = current.Add(time.Second)
	p, err := repo.Claim(ctx, "conviction", "W2")
	require.NoError(t, err)
	assert.Equal(t, 1, p.PageNumber)
}

// A second handle on the same file hitting the write lock surfaces
// ErrStoreUnavailable, not a raw driver error: callers retry, the page is
// not lost.
func TestClaimWhileStoreLockedReportsUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "coordinator.db")

	db1, err := Open(ctx, Config{Path: path}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db1.Close() })
	repo1 := NewPageRepository(db1, time.Minute, testLogger()).(*pageRepo)
	require.NoError(t, repo1.Initialize(ctx, "conviction", 3))

	db2, err := Open(ctx, Config{Path: path, BusyTimeout: time.Millisecond}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })
	repo2 := NewPageRepository(db2, time.Minute, testLogger()).(*pageRepo)

	// Transactions begin immediate, so the write lock is held from BEGIN
	// until this rolls back.
	tx, err := db1.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx,
		`UPDATE pages SET retry_count = retry_count + 1 WHERE record_type = ? AND page_number = 1`,
		"conviction")
	require.NoError(t, err)

	_, err = repo2.Claim(ctx, "conviction", "W1")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)

	// Once the lock clears, the same handle claims normally.
	require.NoError(t, tx.Rollback())
	p, err := repo2.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.PageNumber)
}

func TestClaimWithNothingEligible(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Initialize(ctx, "conviction", 1))
	_, err := repo.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)

	// Held under a live lease by W1: nothing for W2.
	_, err = repo.Claim(ctx, "conviction", "W2")
	require.ErrorIs(t, err, common.ErrNoEligiblePages)

	require.NoError(t, repo.Complete(ctx, "conviction", 1, "W1"))

	// All completed: still nothing.
	_, err = repo.Claim(ctx, "conviction", "W2")
	require.ErrorIs(t, err, common.ErrNoEligiblePages)
}

func TestSweepExpired(t *testing.T) {
	repo, _ := newTestRepo(t, 10*time.Minute)
	ctx := context.Background()

	current := time.Now()
	repo.now = func() time.Time { return current }

	require.NoError(t, repo.Initialize(ctx, "conviction", 3))
	_, err := repo.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)
	_, err = repo.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)

	// Nothing expired yet.
	n, err := repo.SweepExpired(ctx, "conviction")
	require.NoError(t, err)
	assert.Zero(t, n)

	current = current.Add(11 * time.Minute)
	n, err = repo.SweepExpired(ctx, "conviction")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := repo.Snapshot(ctx, "conviction")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Pending)
	assert.Zero(t, snap.Assigned)
}

func TestSnapshotCounts(t *testing.T) {
	repo, workers := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, workers.Register(ctx, "W1", "host-a"))
	require.NoError(t, repo.Initialize(ctx, "conviction", 5))

	p, err := repo.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, "conviction", p.PageNumber, "W1"))
	_, err = repo.Claim(ctx, "conviction", "W1")
	require.NoError(t, err)

	snap, err := repo.Snapshot(ctx, "conviction")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 3, snap.Pending)
	assert.Equal(t, 1, snap.Assigned)
	assert.Equal(t, 1, snap.Completed)

	ws, ok := snap.PerWorker["W1"]
	require.True(t, ok)
	assert.Equal(t, 1, ws.AssignedCount)
	assert.Equal(t, 1, ws.CompletedCount)
	assert.Equal(t, "host-a", ws.Hostname)
}

func TestCompletedPages(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Initialize(ctx, "conviction", 4))
	for i := 0; i < 2; i++ {
		p, err := repo.Claim(ctx, "conviction", "W1")
		require.NoError(t, err)
		require.NoError(t, repo.Complete(ctx, "conviction", p.PageNumber, "W1"))
	}

	pages, err := repo.CompletedPages(ctx, "conviction")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pages)
}

// No double-lease: concurrent claims across goroutines never hand the same
// page to two workers.
func TestConcurrentClaimsAreDisjoint(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute)
	ctx := context.Background()

	const totalPages = 60
	const workers = 6
	require.NoError(t, repo.Initialize(ctx, "conviction", totalPages))

	var (
		mu   sync.Mutex
		seen = make(map[int]string)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		workerID := string(rune('A' + w))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				p, err := repo.Claim(ctx, "conviction", workerID)
				if err != nil {
					assert.ErrorIs(t, err, common.ErrNoEligiblePages)
					return
				}
				mu.Lock()
				holder, taken := seen[p.PageNumber]
				assert.False(t, taken, "page %d handed to both %s and %s", p.PageNumber, holder, workerID)
				seen[p.PageNumber] = workerID
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, totalPages)
}
