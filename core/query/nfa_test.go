package query

import (
	"context"
	"testing"

	"axiograph/core"
)

func chainPathDB(t *testing.T, confidences ...uint32) *core.PathDB {
	t.Helper()
	pdb := core.NewPathDB(1, "")
	for i := uint64(1); i <= uint64(len(confidences))+1; i++ {
		pdb.PutEntity(&core.Entity{ID: i, EntityType: "Node", Plane: core.PlaneData})
	}
	for i, conf := range confidences {
		from := uint64(i + 1)
		to := uint64(i + 2)
		if err := pdb.AddRelation(&core.RelationEdge{From: from, RelType: "Parent", To: to, ConfidenceFP: conf}); err != nil {
			t.Fatalf("AddRelation: %v", err)
		}
	}
	return pdb
}

func labelExpr(l string) *RPQExpr { return &RPQExpr{Kind: RPQLabel, Label: l} }

func TestRunRPQSingleLabel(t *testing.T) {
	pdb := chainPathDB(t, core.ConfidenceFull)
	reached, truncated := runRPQ(context.Background(), pdb, labelExpr("Parent"), 1, 0, 0)
	if truncated {
		t.Fatalf("did not expect truncation")
	}
	step, ok := reached[2]
	if !ok || step == nil {
		t.Fatalf("reached = %+v, want an entry for 2", reached)
	}
	if step.From != 1 || step.To != 2 || step.RelType != "Parent" {
		t.Fatalf("witness = %+v", step)
	}
	if len(reached) != 1 {
		t.Fatalf("reached = %+v, want exactly {2}", reached)
	}
}

func TestRunRPQConcatenation(t *testing.T) {
	pdb := chainPathDB(t, core.ConfidenceFull, core.ConfidenceFull)
	expr := &RPQExpr{Kind: RPQConcat, Left: labelExpr("Parent"), Right: labelExpr("Parent")}
	reached, truncated := runRPQ(context.Background(), pdb, expr, 1, 0, 0)
	if truncated {
		t.Fatalf("did not expect truncation")
	}
	if _, ok := reached[3]; !ok {
		t.Fatalf("reached = %+v, want an entry for 3", reached)
	}
	if _, ok := reached[2]; ok {
		t.Fatalf("reached = %+v, did not expect 2 via a two-hop-only expression", reached)
	}
	step := reached[3]
	if step.From != 1 || step.To != 2 || step.Rest == nil {
		t.Fatalf("first hop = %+v", step)
	}
	if step.Rest.From != 2 || step.Rest.To != 3 || step.Rest.Rest != nil {
		t.Fatalf("terminal hop = %+v", step.Rest)
	}
}

func TestRunRPQAlternation(t *testing.T) {
	pdb := core.NewPathDB(1, "")
	pdb.PutEntity(&core.Entity{ID: 1, EntityType: "Node"})
	pdb.PutEntity(&core.Entity{ID: 2, EntityType: "Node"})
	pdb.PutEntity(&core.Entity{ID: 3, EntityType: "Node"})
	if err := pdb.AddRelation(&core.RelationEdge{From: 1, RelType: "Parent", To: 2, ConfidenceFP: core.ConfidenceFull}); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	if err := pdb.AddRelation(&core.RelationEdge{From: 1, RelType: "Knows", To: 3, ConfidenceFP: core.ConfidenceFull}); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	expr := &RPQExpr{Kind: RPQAlt, Left: labelExpr("Parent"), Right: labelExpr("Knows")}
	reached, truncated := runRPQ(context.Background(), pdb, expr, 1, 0, 0)
	if truncated {
		t.Fatalf("did not expect truncation")
	}
	if _, ok := reached[2]; !ok {
		t.Fatalf("expected to reach 2 via Parent")
	}
	if _, ok := reached[3]; !ok {
		t.Fatalf("expected to reach 3 via Knows")
	}
}

func TestRunRPQKleeneStarIsReflexive(t *testing.T) {
	pdb := chainPathDB(t, core.ConfidenceFull, core.ConfidenceFull, core.ConfidenceFull)
	expr := &RPQExpr{Kind: RPQStar, Sub: labelExpr("Parent")}
	reached, truncated := runRPQ(context.Background(), pdb, expr, 1, 0, 0)
	if truncated {
		t.Fatalf("did not expect truncation")
	}
	for _, id := range []uint64{1, 2, 3, 4} {
		if _, ok := reached[id]; !ok {
			t.Fatalf("reached = %+v, want all of 1..4 via Parent*", reached)
		}
	}
	if step := reached[1]; step != nil {
		t.Fatalf("reflexive witness for the start node should be nil, got %+v", step)
	}
}

func TestRunRPQMinConfFiltersLowConfidenceEdges(t *testing.T) {
	pdb := chainPathDB(t, 400_000, core.ConfidenceFull)
	reached, _ := runRPQ(context.Background(), pdb, labelExpr("Parent"), 1, 0, 500_000)
	if _, ok := reached[2]; ok {
		t.Fatalf("expected the low-confidence edge to 2 to be filtered out")
	}
}

func TestRunRPQMaxHopsBoundsTraversal(t *testing.T) {
	pdb := chainPathDB(t, core.ConfidenceFull, core.ConfidenceFull, core.ConfidenceFull)
	reached, truncated := runRPQ(context.Background(), pdb, &RPQExpr{Kind: RPQPlus, Sub: labelExpr("Parent")}, 1, 1, 0)
	if truncated {
		t.Fatalf("max_hops bounding should not itself report truncation")
	}
	if _, ok := reached[2]; !ok {
		t.Fatalf("expected to reach 2 within one hop")
	}
	if _, ok := reached[3]; ok {
		t.Fatalf("reached = %+v, did not expect 3 within max_hops=1", reached)
	}
}

func TestRunRPQDeadlineTruncates(t *testing.T) {
	pdb := chainPathDB(t, core.ConfidenceFull, core.ConfidenceFull, core.ConfidenceFull)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, truncated := runRPQ(ctx, pdb, &RPQExpr{Kind: RPQPlus, Sub: labelExpr("Parent")}, 1, 0, 0)
	if !truncated {
		t.Fatalf("expected a cancelled context to truncate the walk")
	}
}
