package index

import (
	"reflect"
	"testing"

	"axiograph/core"
)

func buildTextDemoPathDB() *core.PathDB {
	pdb := core.NewPathDB(1, "")
	pdb.PutEntity(&core.Entity{ID: 1, EntityType: "Doc", Plane: core.PlaneEvidence, Attrs: map[string]string{
		"title": "The Quick Brown Fox",
	}})
	pdb.PutEntity(&core.Entity{ID: 2, EntityType: "Doc", Plane: core.PlaneEvidence, Attrs: map[string]string{
		"title": "Quick Start Guide",
	}})
	pdb.PutEntity(&core.Entity{ID: 3, EntityType: "Doc", Plane: core.PlaneEvidence, Attrs: map[string]string{
		"title": "Unrelated",
	}})
	return pdb
}

func TestTextIndexSearchIsCaseInsensitiveAND(t *testing.T) {
	ti := buildTextIndex(buildTextDemoPathDB())

	got := ti.Search("title", []string{"quick"})
	want := []uint64{1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Search(title, [quick]) = %v, want %v", got, want)
	}

	got = ti.Search("title", []string{"QUICK", "Fox"})
	want = []uint64{1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Search(title, [QUICK Fox]) = %v, want %v", got, want)
	}

	if got := ti.Search("title", []string{"quick", "nonexistent"}); got != nil {
		t.Fatalf("expected no results for an AND term absent from all docs, got %v", got)
	}
}

func TestTextIndexFuzzyBoundedDistance(t *testing.T) {
	ti := buildTextIndex(buildTextDemoPathDB())

	got := ti.Fuzzy("title", "quick start guid", 2)
	want := []uint64{2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Fuzzy(title, 'quick start guid', 2) = %v, want %v", got, want)
	}

	if got := ti.Fuzzy("title", "completely different text", 2); got != nil {
		t.Fatalf("expected no fuzzy match beyond the bound, got %v", got)
	}
}

func TestBoundedLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
	}
	for _, c := range cases {
		if got := boundedLevenshtein(c.a, c.b, 10); got != c.want {
			t.Fatalf("boundedLevenshtein(%q,%q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
