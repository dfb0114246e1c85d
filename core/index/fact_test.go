package index

import (
	"reflect"
	"testing"

	"axiograph/core"
)

func buildDemoPathDB(t *testing.T) *core.PathDB {
	t.Helper()
	pdb := core.NewPathDB(1, "")
	pdb.PutEntity(&core.Entity{ID: 1, EntityType: "Person", Name: "alice", Plane: core.PlaneAccepted})
	pdb.PutEntity(&core.Entity{ID: 2, EntityType: "Person", Name: "bob", Plane: core.PlaneAccepted})
	pdb.PutEntity(&core.Entity{ID: 3, EntityType: "Person", Name: "carol", Plane: core.PlaneAccepted})
	pdb.PutEntity(&core.Entity{ID: 10, EntityType: "ParentFact", Plane: core.PlaneAccepted, Attrs: map[string]string{
		"axi_relation": "Parent",
		"axi_fact_id":  "f1",
	}})
	pdb.PutEntity(&core.Entity{ID: 11, EntityType: "ParentFact", Plane: core.PlaneAccepted, Attrs: map[string]string{
		"axi_relation": "Parent",
		"axi_fact_id":  "f2",
	}})
	// carol -Parent-> alice, alice -Parent-> bob (chain of 2)
	if err := pdb.AddRelation(&core.RelationEdge{From: 3, RelType: "Parent", To: 1, ConfidenceFP: core.ConfidenceFull}); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	if err := pdb.AddRelation(&core.RelationEdge{From: 1, RelType: "Parent", To: 2, ConfidenceFP: core.ConfidenceFull}); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	return pdb
}

func TestFactIndexGroupsByRelation(t *testing.T) {
	pdb := buildDemoPathDB(t)
	fi := buildFactIndex(pdb)
	got := fi.Facts("Parent")
	want := []uint64{10, 11}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Facts(Parent) = %v, want %v", got, want)
	}
	if fi.Facts("NoSuchRelation") != nil {
		t.Fatalf("expected nil for an unindexed relation")
	}
}
