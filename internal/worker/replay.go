package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/courtdata/scrapecoord/internal/entity"
)

// ReplayFetcher serves pages from a JSON file instead of the live portal.
// Used for coordination drills and tests: the file maps page numbers to the
// records that page would yield.
//
//	{"1": [{"case_number": "2019-CR-0001", "payload": {...}}], "2": [...]}
type ReplayFetcher struct {
	pages map[int][]entity.CaseRecord
}

func NewReplayFetcher(path string) (*ReplayFetcher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var byPage map[string][]entity.CaseRecord
	if err := json.Unmarshal(raw, &byPage); err != nil {
		return nil, fmt.Errorf("parsing replay file %s: %w", path, err)
	}
	pages := make(map[int][]entity.CaseRecord, len(byPage))
	for key, records := range byPage {
		page, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("replay file %s: page key %q is not a number", path, key)
		}
		pages[page] = records
	}
	return &ReplayFetcher{pages: pages}, nil
}

// FetchPage returns the canned records for a page. Pages absent from the
// replay file yield no records, matching an empty results page.
func (f *ReplayFetcher) FetchPage(_ context.Context, _ string, pageNumber int) ([]entity.CaseRecord, error) {
	return f.pages[pageNumber], nil
}
