package partition

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtdata/scrapecoord/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func rec(caseNumber string, page int, payload string) entity.CaseRecord {
	return entity.CaseRecord{
		CaseNumber: caseNumber,
		PageNumber: page,
		Payload:    json.RawMessage(payload),
	}
}

func TestPathForNaming(t *testing.T) {
	path := PathFor("/data/partitions", "conviction", "PC1")
	assert.Equal(t, filepath.Join("/data/partitions", "conviction_PC1.db"), path)
}

func TestAddRecordFirstWriteStays(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "conviction", "PC1", testLogger())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.AddRecord(ctx, rec("2019-CR-1", 1, `{"name":"first"}`)))
	// The portal repeats rows at page boundaries; the duplicate is ignored.
	require.NoError(t, store.AddRecord(ctx, rec("2019-CR-1", 2, `{"name":"second"}`)))

	records, err := store.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].PageNumber)
	assert.JSONEq(t, `{"name":"first"}`, string(records[0].Payload))
}

func TestCompletedPagesAndDrop(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "conviction", "PC1", testLogger())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.AddRecord(ctx, rec("A", 1, `{}`)))
	require.NoError(t, store.AddRecord(ctx, rec("B", 2, `{}`)))
	require.NoError(t, store.MarkPageCompleted(ctx, 1))
	require.NoError(t, store.MarkPageCompleted(ctx, 2))
	require.NoError(t, store.MarkPageCompleted(ctx, 2)) // idempotent

	pages, err := store.CompletedPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pages)

	// A stale lease means page 2's results may belong to someone else now.
	require.NoError(t, store.DropPage(ctx, 2))

	pages, err = store.CompletedPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pages)

	records, err := store.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].CaseNumber)
}

func TestRecordsSortedByCaseNumber(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "conviction", "PC1", testLogger())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.AddRecord(ctx, rec("C", 1, `{}`)))
	require.NoError(t, store.AddRecord(ctx, rec("A", 1, `{}`)))
	require.NoError(t, store.AddRecord(ctx, rec("B", 2, `{}`)))

	records, err := store.Records(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.CaseNumber)
	}
	assert.Equal(t, []string{"A", "B", "C"}, keys)
}

func TestDiscoverFindsOnlyMatchingType(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, workerID := range []string{"PC2", "PC1"} {
		store, err := Open(ctx, dir, "conviction", workerID, testLogger())
		require.NoError(t, err)
		require.NoError(t, store.Close())
	}
	other, err := Open(ctx, dir, "pending", "PC1", testLogger())
	require.NoError(t, err)
	require.NoError(t, other.Close())

	paths, err := Discover(dir, "conviction")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, PathFor(dir, "conviction", "PC1"), paths[0])
	assert.Equal(t, PathFor(dir, "conviction", "PC2"), paths[1])
}

func TestOpenReadMissingFile(t *testing.T) {
	_, err := OpenRead(context.Background(), filepath.Join(t.TempDir(), "absent.db"), testLogger())
	require.Error(t, err)
}

func TestOpenReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(ctx, dir, "conviction", "PC1", testLogger())
	require.NoError(t, err)
	require.NoError(t, store.AddRecord(ctx, rec("A", 1, `{"k":1}`)))
	require.NoError(t, store.MarkPageCompleted(ctx, 1))
	require.NoError(t, store.Close())

	ro, err := OpenRead(ctx, PathFor(dir, "conviction", "PC1"), testLogger())
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()

	records, err := ro.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	pages, err := ro.CompletedPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pages)
}
