package host

import (
	"testing"

	"github.com/hostbridge/bridgectl/internal/testutil/testlog"
)

func fixture() *Model {
	m := NewModel()
	m.AddDocument(Document{
		Title: "Tower",
		Path:  "/models/Tower",
		Instances: []FamilyInstance{
			{Category: "Doors", Family: "Single-Flush", Type: "0915 x 2134mm", UniqueID: "d-1", NumericID: 10},
			{Category: "Doors", Family: "Single-Flush", Type: "0915 x 2134mm", UniqueID: "d-2", NumericID: 11},
			{Category: "Doors", Family: "Double-Glass", Type: "1730 x 2134mm", UniqueID: "d-3", NumericID: 12},
			{Category: "Windows", Family: "Fixed", Type: "0406 x 0610mm", UniqueID: "w-1", NumericID: 13},
		},
		Worksets: []Workset{
			{Name: "Shell", Kind: "UserWorkset", ElementCount: 3},
			{Name: "Interiors", Kind: "UserWorkset", ElementCount: 1},
		},
	})
	return m
}

func TestFamilyTypeCountsGroupsAndSorts(t *testing.T) {
	testlog.Start(t)

	counts, ok := fixture().FamilyTypeCounts("Tower")
	if !ok {
		t.Fatalf("document not found")
	}
	want := []FamilyTypeCount{
		{Category: "Doors", Family: "Double-Glass", Type: "1730 x 2134mm", Count: 1},
		{Category: "Doors", Family: "Single-Flush", Type: "0915 x 2134mm", Count: 2},
		{Category: "Windows", Family: "Fixed", Type: "0406 x 0610mm", Count: 1},
	}
	if len(counts) != len(want) {
		t.Fatalf("expected %d groups, got %+v", len(want), counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("group %d: got %+v want %+v", i, counts[i], want[i])
		}
	}
}

func TestCategoryCounts(t *testing.T) {
	testlog.Start(t)

	counts, ok := fixture().CategoryCounts("Tower")
	if !ok {
		t.Fatalf("document not found")
	}
	if len(counts) != 2 || counts[0].Category != "Doors" || counts[0].Count != 3 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if counts[1].Category != "Windows" || counts[1].Count != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestElementsFilters(t *testing.T) {
	testlog.Start(t)

	m := fixture()
	tests := []struct {
		name    string
		filters []ElementFilter
		wantIDs []string
	}{
		{name: "no filters returns everything", filters: nil, wantIDs: []string{"d-1", "d-2", "d-3", "w-1"}},
		{name: "category substring is case-insensitive", filters: []ElementFilter{{Category: "door"}}, wantIDs: []string{"d-1", "d-2", "d-3"}},
		{name: "family narrows within category", filters: []ElementFilter{{Category: "Doors", Family: "double"}}, wantIDs: []string{"d-3"}},
		{name: "filters union", filters: []ElementFilter{{Family: "Fixed"}, {Type: "1730"}}, wantIDs: []string{"d-3", "w-1"}},
		{name: "no match", filters: []ElementFilter{{Category: "Walls"}}, wantIDs: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := m.Elements("Tower", tc.filters)
			if !ok {
				t.Fatalf("document not found")
			}
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("expected %d elements, got %+v", len(tc.wantIDs), got)
			}
			for i, inst := range got {
				if inst.UniqueID != tc.wantIDs[i] {
					t.Fatalf("element %d: got %q want %q", i, inst.UniqueID, tc.wantIDs[i])
				}
			}
		})
	}
}

func TestWorksetsSortedByName(t *testing.T) {
	testlog.Start(t)

	ws, ok := fixture().Worksets("Tower")
	if !ok {
		t.Fatalf("document not found")
	}
	if len(ws) != 2 || ws[0].Name != "Interiors" || ws[1].Name != "Shell" {
		t.Fatalf("unexpected order: %+v", ws)
	}
}

func TestUnknownDocument(t *testing.T) {
	testlog.Start(t)

	m := fixture()
	if _, ok := m.FamilyTypeCounts("Ghost"); ok {
		t.Fatalf("expected miss for unknown document")
	}
	if _, ok := m.Worksets("Ghost"); ok {
		t.Fatalf("expected miss for unknown document")
	}
}

func TestRemoveDocument(t *testing.T) {
	testlog.Start(t)

	m := fixture()
	m.RemoveDocument("Tower")
	if docs := m.Documents(); len(docs) != 0 {
		t.Fatalf("document not removed: %+v", docs)
	}
}
