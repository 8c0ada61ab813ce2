// Package aggregator collects extracted records for export.
package aggregator

import (
	"slices"

	"github.com/YKarmar/JobTracker/internal/types"
)

// Aggregator deduplicates records by message ID, keeping the first one seen.
type Aggregator struct {
	seen    map[string]struct{}
	records []types.ApplicationRecord
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

// Add stores rec and reports false when its message ID was already added.
func (a *Aggregator) Add(rec types.ApplicationRecord) bool {
	if _, dup := a.seen[rec.MessageID]; dup {
		return false
	}
	a.seen[rec.MessageID] = struct{}{}
	a.records = append(a.records, rec)
	return true
}

// Len returns the number of distinct records kept.
func (a *Aggregator) Len() int { return len(a.records) }

// Records returns a copy ordered by date, most recent first. Undated records
// come last and keep their arrival order, as do records sharing a date.
func (a *Aggregator) Records() []types.ApplicationRecord {
	out := slices.Clone(a.records)
	slices.SortStableFunc(out, compareByDateDesc)
	return out
}

func compareByDateDesc(x, y types.ApplicationRecord) int {
	switch {
	case !x.HasDate() && !y.HasDate():
		return 0
	case !x.HasDate():
		return 1
	case !y.HasDate():
		return -1
	}
	return y.Date.Compare(x.Date)
}

// Aggregate is a convenience over New, Add and Records.
func Aggregate(records []types.ApplicationRecord) []types.ApplicationRecord {
	a := New()
	for _, r := range records {
		a.Add(r)
	}
	return a.Records()
}
