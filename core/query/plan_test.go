package query

import (
	"testing"

	"axiograph/core"
	"axiograph/core/index"
)

func planTestPathDB(t *testing.T) *core.PathDB {
	t.Helper()
	pdb := core.NewPathDB(1, "")
	pdb.PutEntity(&core.Entity{ID: 1, EntityType: "Person", Plane: core.PlaneData})
	pdb.PutEntity(&core.Entity{ID: 2, EntityType: "Person", Plane: core.PlaneData})
	pdb.PutEntity(&core.Entity{ID: 3, EntityType: "Person", Plane: core.PlaneData})
	pdb.PutEntity(&core.Entity{ID: 4, EntityType: "Context", Plane: core.PlaneData})
	pdb.PutEntity(&core.Entity{ID: 5, EntityType: "Context", Plane: core.PlaneData})
	if err := pdb.AddRelation(&core.RelationEdge{From: 1, RelType: "Parent", To: 4, ConfidenceFP: core.ConfidenceFull}); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	return pdb
}

func TestPlanConjunctSeedsSmallestThenSharesBoundVars(t *testing.T) {
	pdb := planTestPathDB(t)
	c := Conjunct{Atoms: []Atom{
		{Kind: AtomType, Var: "x", Type: "Person"},
		{Kind: AtomEdge, From: "x", To: "y", Edge: labelExpr("Parent")},
		{Kind: AtomType, Var: "y", Type: "Context"},
	}}
	plan := PlanConjunct(pdb, nil, index.DefaultConfig(), c)
	if len(plan.Steps) != 3 {
		t.Fatalf("plan = %+v, want 3 steps", plan)
	}
	if plan.Steps[0].Atom.Kind != AtomEdge {
		t.Fatalf("step0 = %+v, want the smallest-estimate edge atom seeded first", plan.Steps[0])
	}
	if plan.Steps[1].Atom.Kind != AtomType || plan.Steps[1].Atom.Var != "y" {
		t.Fatalf("step1 = %+v, want the Context type atom (smaller est. than Person)", plan.Steps[1])
	}
	if plan.Steps[2].Atom.Var != "x" {
		t.Fatalf("step2 = %+v, want the remaining Person type atom", plan.Steps[2])
	}
}

func TestPlanConjunctRoutesLongChainsToPathIndex(t *testing.T) {
	pdb := planTestPathDB(t)
	cfg := index.DefaultConfig() // PathIndexMinLen = 3
	chain := &RPQExpr{Kind: RPQConcat,
		Left: &RPQExpr{Kind: RPQConcat, Left: labelExpr("Parent"), Right: labelExpr("Parent")},
		Right: labelExpr("Parent"),
	}
	c := Conjunct{Atoms: []Atom{{Kind: AtomEdge, From: "x", To: "y", Edge: chain}}}
	plan := PlanConjunct(pdb, nil, cfg, c)
	step := plan.Steps[0]
	if !step.UsePathIndex {
		t.Fatalf("step = %+v, want UsePathIndex for a 3-label chain with PathIndexMinLen=3", step)
	}
	if len(step.Chain) != 3 {
		t.Fatalf("Chain = %v, want 3 labels", step.Chain)
	}
}

func TestPlanConjunctDoesNotUsePathIndexForShortOrComplexRPQ(t *testing.T) {
	pdb := planTestPathDB(t)
	cfg := index.DefaultConfig()

	short := Conjunct{Atoms: []Atom{{Kind: AtomEdge, From: "x", To: "y", Edge: labelExpr("Parent")}}}
	plan := PlanConjunct(pdb, nil, cfg, short)
	if plan.Steps[0].UsePathIndex {
		t.Fatalf("a single-label chain should not route through the Path index")
	}

	starred := Conjunct{Atoms: []Atom{{Kind: AtomEdge, From: "x", To: "y", Edge: &RPQExpr{Kind: RPQStar, Sub: labelExpr("Parent")}}}}
	plan = PlanConjunct(pdb, nil, cfg, starred)
	if plan.Steps[0].UsePathIndex || plan.Steps[0].Chain != nil {
		t.Fatalf("a Kleene-star RPQ is not a simple chain and must not route to the Path index")
	}
}
