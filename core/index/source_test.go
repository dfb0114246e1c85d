package index

import (
	"reflect"
	"testing"
)

func TestRelationBySourceIndexTargets(t *testing.T) {
	pdb := buildDemoPathDB(t)
	ri := buildRelationBySourceIndex(pdb)

	got := ri.Targets(3, "Parent")
	want := []uint64{1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Targets(3, Parent) = %v, want %v", got, want)
	}

	if got := ri.Targets(2, "Parent"); got != nil {
		t.Fatalf("expected no outgoing Parent edges from 2, got %v", got)
	}

	relTypes := ri.RelTypesFrom(1)
	if !reflect.DeepEqual(relTypes, []string{"Parent"}) {
		t.Fatalf("RelTypesFrom(1) = %v, want [Parent]", relTypes)
	}
}
