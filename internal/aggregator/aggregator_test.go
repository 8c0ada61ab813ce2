package aggregator

import (
	"testing"
	"time"

	"github.com/YKarmar/JobTracker/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddDeduplicatesByMessageID(t *testing.T) {
	a := New()
	if !a.Add(types.ApplicationRecord{MessageID: "same", Company: "First"}) {
		t.Fatal("first Add should succeed")
	}
	if a.Add(types.ApplicationRecord{MessageID: "same", Company: "Second"}) {
		t.Fatal("duplicate Add should report false")
	}
	recs := a.Records()
	if len(recs) != 1 || recs[0].Company != "First" {
		t.Fatalf("records = %+v, want only the first", recs)
	}
}

func TestRecordsSortOrder(t *testing.T) {
	got := Aggregate([]types.ApplicationRecord{
		{MessageID: "jan", Date: day(2024, 1, 1)},
		{MessageID: "mar", Date: day(2024, 3, 1)},
		{MessageID: "none"},
	})
	want := []string{"mar", "jan", "none"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].MessageID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].MessageID, id)
		}
	}
}

func TestRecordsStableForTies(t *testing.T) {
	got := Aggregate([]types.ApplicationRecord{
		{MessageID: "u1"},
		{MessageID: "a", Date: day(2024, 5, 5)},
		{MessageID: "u2"},
		{MessageID: "b", Date: day(2024, 5, 5)},
	})
	order := ""
	for _, r := range got {
		order += r.MessageID + " "
	}
	if order != "a b u1 u2 " {
		t.Errorf("order = %q", order)
	}
}

func TestRecordsReturnsCopy(t *testing.T) {
	a := New()
	a.Add(types.ApplicationRecord{MessageID: "x", Company: "Acme"})
	recs := a.Records()
	recs[0].Company = "changed"
	if a.Records()[0].Company != "Acme" {
		t.Error("Records must not expose internal storage")
	}
	if a.Len() != 1 {
		t.Errorf("Len = %d", a.Len())
	}
}
