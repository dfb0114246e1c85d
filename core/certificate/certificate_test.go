package certificate

import (
	"context"
	"encoding/json"
	"testing"

	"axiograph/core"
	"axiograph/core/index"
	"axiograph/core/query"
)

const testModule = `module Family

schema People:
  object Person
  object Context
  Parent(a: Person, b: Person, c: Context @context, source=a, target=b)
  Knows(a: Person, b: Person, source=a, target=b)

instance Demo of People:
  Person = {alice, bob, carol}
  Context = {home}
  Parent = {(a=alice, b=bob, c=home), (a=bob, b=carol, c=home)}
  Knows = {(a=alice, b=carol)}
`

func mustTypedModule(t *testing.T) *core.TypedModule {
	t.Helper()
	m, err := core.Parse([]byte(testModule))
	if err != nil {
		t.Fatalf("core.Parse: %v", err)
	}
	tm, _, err := core.Typecheck(m, core.ProfileStrict)
	if err != nil {
		t.Fatalf("core.Typecheck: %v", err)
	}
	return tm
}

func testHandle(t *testing.T) (*core.TypedModule, *core.PathDB, *index.Handle) {
	t.Helper()
	tm := mustTypedModule(t)
	pdb, err := core.Materialize(tm, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	h := index.Build(pdb, "snap-1", index.DefaultConfig())
	return tm, pdb, h
}

func runTestQuery(t *testing.T, tm *core.TypedModule, pdb *core.PathDB, h *index.Handle, src string) (*query.Query, query.Result) {
	t.Helper()
	q, err := query.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	eq, err := query.Elaborate(tm, q)
	if err != nil {
		t.Fatalf("Elaborate(%q): %v", src, err)
	}
	res, err := query.Execute(context.Background(), pdb, h, index.DefaultConfig(), eq)
	if err != nil {
		t.Fatalf("Execute(%q): %v", src, err)
	}
	return eq, res
}

func marshals(t *testing.T, c *Certificate) []byte {
	t.Helper()
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return b
}

func TestBuildReachabilityV2ComposesMultiHopConfidence(t *testing.T) {
	tm, pdb, h := testHandle(t)
	_, res := runTestQuery(t, tm, pdb, h, `select ?x ?y where ?x -Parent/Parent-> ?y`)
	aliceID, _ := pdb.FindByName("alice")
	carolID, _ := pdb.FindByName("carol")
	var found *query.Row
	for i, row := range res.Rows {
		if row.Bindings["x"] == aliceID && row.Bindings["y"] == carolID {
			found = &res.Rows[i]
		}
	}
	if found == nil {
		t.Fatalf("rows = %+v, want alice->carol via two Parent hops", res.Rows)
	}
	var reach *query.ReachStep
	for _, w := range found.Witnesses {
		if w.Reach != nil {
			reach = w.Reach
		}
	}
	if reach == nil {
		t.Fatalf("expected a non-reflexive reachability witness for a 2-hop edge atom")
	}
	conf := ComposeChainConfidence(reach)
	if conf != core.ConfidenceFull {
		t.Fatalf("composed confidence = %d, want %d (both hops are full-confidence)", conf, core.ConfidenceFull)
	}
	cert := BuildReachabilityV2(pdb, NewSnapshotAnchor(pdb.ModuleDigest), aliceID, reach)
	b := marshals(t, cert)
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if decoded["kind"] != "reachability_v2" || decoded["version"].(float64) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
	proof, ok := decoded["proof"].(map[string]interface{})
	if !ok || proof["step"] == nil {
		t.Fatalf("proof = %+v, want a top-level step node", decoded["proof"])
	}
}

func TestBuildQueryResultV2TagsDisjunct(t *testing.T) {
	tm, pdb, h := testHandle(t)
	q, res := runTestQuery(t, tm, pdb, h, `select ?x where ?x is Person or ?x is Context`)
	cert := BuildQueryResultV2(pdb, NewSnapshotAnchor(pdb.ModuleDigest), q, res)
	proof := cert.Proof.(*QueryResultProof)
	if len(proof.Rows) != len(res.Rows) {
		t.Fatalf("rows = %d, want %d", len(proof.Rows), len(res.Rows))
	}
	for _, row := range proof.Rows {
		if row.Disjunct == nil {
			t.Fatalf("row = %+v, want a disjunct tag", row)
		}
	}
	marshals(t, cert)
}

func TestBuildQueryResultV1OmitsDisjunct(t *testing.T) {
	tm, pdb, h := testHandle(t)
	q, res := runTestQuery(t, tm, pdb, h, `select ?f ?x ?y where ?f = Parent(a=?x, b=?y)`)
	cert := BuildQueryResultV1(pdb, NewSnapshotAnchor(pdb.ModuleDigest), q, res)
	proof := cert.Proof.(*QueryResultProof)
	for _, row := range proof.Rows {
		if row.Disjunct != nil {
			t.Fatalf("row = %+v, v1 rows must not carry a disjunct tag", row)
		}
		var sawFact bool
		for _, w := range row.Witnesses {
			if w.Atom.Kind == "fact" {
				sawFact = true
				if w.FactID == nil {
					t.Fatalf("fact witness = %+v, want an axi_fact_id", w)
				}
			}
		}
		if !sawFact {
			t.Fatalf("witnesses = %+v, want a fact-atom witness", row.Witnesses)
		}
	}
}

func TestBuildAxiWellTypedV1(t *testing.T) {
	tm := mustTypedModule(t)
	cert := BuildAxiWellTypedV1(nil, tm)
	proof := cert.Proof.(WellTypedProof)
	if proof.ModuleName != "Family" || proof.SchemaCount != 1 || proof.InstanceCount != 1 {
		t.Fatalf("proof = %+v", proof)
	}
	if proof.TupleCount != 3 {
		t.Fatalf("TupleCount = %d, want 3 (2 Parent + 1 Knows)", proof.TupleCount)
	}
}

func TestBuildAxiConstraintsOkV1(t *testing.T) {
	tm := mustTypedModule(t)
	cert, err := BuildAxiConstraintsOkV1(nil, tm)
	if err != nil {
		t.Fatalf("BuildAxiConstraintsOkV1: %v", err)
	}
	proof := cert.Proof.(ConstraintsOkProof)
	if proof.ModuleName != "Family" {
		t.Fatalf("proof = %+v", proof)
	}
}

func TestBuildNormalizePathV2(t *testing.T) {
	expr := &core.PathExpr{Kind: core.PathTrans,
		Left:  &core.PathExpr{Kind: core.PathReflexive, Entity: "a"},
		Right: &core.PathExpr{Kind: core.PathStep, From: "a", Rel: "R", To: "b"},
	}
	cert := BuildNormalizePathV2(nil, expr, nil)
	proof := cert.Proof.(NormalizePathProof)
	if proof.Normalized != "step(a,R,b)" {
		t.Fatalf("Normalized = %q", proof.Normalized)
	}
	if len(proof.Derivation) != 1 || proof.Derivation[0].Rule != "id_left" {
		t.Fatalf("Derivation = %+v", proof.Derivation)
	}
	marshals(t, cert)
}

func TestBuildRewriteDerivationQualifiesCustomRule(t *testing.T) {
	lhs := &core.PathExpr{Kind: core.PathStep, From: "a", Rel: "Parent", To: "b"}
	rhs := &core.PathExpr{Kind: core.PathStep, From: "a", Rel: "Ancestor", To: "b"}
	rule := &core.RewriteRule{Name: "ParentIsAncestor", LHS: lhs, RHS: rhs}
	cert := BuildRewriteDerivation("rewrite_derivation_v2", nil, 0xABCD, "FamilyRules", lhs, []*core.RewriteRule{rule})
	proof := cert.Proof.(RewriteDerivationProof)
	if len(proof.Derivation) != 1 {
		t.Fatalf("Derivation = %+v", proof.Derivation)
	}
	want := "axi:" + FormatDigest(0xABCD) + ":FamilyRules:ParentIsAncestor"
	if proof.Derivation[0].RuleRef != want {
		t.Fatalf("rule_ref = %q, want %q", proof.Derivation[0].RuleRef, want)
	}
}

func TestBuildPathEquivV2(t *testing.T) {
	left := &core.PathExpr{Kind: core.PathTrans,
		Left: &core.PathExpr{Kind: core.PathTrans,
			Left:  &core.PathExpr{Kind: core.PathStep, From: "a", Rel: "R", To: "b"},
			Right: &core.PathExpr{Kind: core.PathStep, From: "b", Rel: "S", To: "c"},
		},
		Right: &core.PathExpr{Kind: core.PathReflexive, Entity: "c"},
	}
	right := &core.PathExpr{Kind: core.PathTrans,
		Left:  &core.PathExpr{Kind: core.PathStep, From: "a", Rel: "R", To: "b"},
		Right: &core.PathExpr{Kind: core.PathStep, From: "b", Rel: "S", To: "c"},
	}
	cert := BuildPathEquivV2(nil, left, right, nil)
	proof := cert.Proof.(PathEquivProof)
	if !proof.Equivalent {
		t.Fatalf("proof = %+v, want Equivalent", proof)
	}
	if proof.Normalized != "(step(a,R,b) ; step(b,S,c))" {
		t.Fatalf("Normalized = %q", proof.Normalized)
	}
}

func TestBuildDeltaFV1PullsBackAssignmentsByMorphism(t *testing.T) {
	target := &core.Instance{
		Name:       "Demo",
		SchemaName: "People",
		Assignments: []*core.Assignment{
			{Name: "Person", Objects: []string{"alice", "bob"}},
			{Name: "Parent", IsTuple: true, Tuples: []core.Tuple{{Fields: map[string]string{"a": "alice", "b": "bob"}}}},
		},
	}
	m := Morphism{
		Name:         "EmbedIndividual",
		SourceSchema: "Individual",
		TargetSchema: "People",
		ObjectMap:    map[string]string{"Member": "Person"},
		RelationMap:  map[string]string{"ParentOf": "Parent"},
	}
	cert := BuildDeltaFV1(nil, m, target)
	proof := cert.Proof.(DeltaFProof)
	if proof.SourceSchema != "Individual" || proof.TargetInstance != "Demo" {
		t.Fatalf("proof = %+v", proof)
	}
	if len(proof.PulledBackInstance.Assignments) != 2 {
		t.Fatalf("assignments = %+v, want 2 pulled-back assignments", proof.PulledBackInstance.Assignments)
	}
	names := map[string]bool{}
	for _, a := range proof.PulledBackInstance.Assignments {
		names[a.Name] = true
	}
	if !names["Member"] || !names["ParentOf"] {
		t.Fatalf("assignments = %+v, want Member and ParentOf (renamed via the morphism)", proof.PulledBackInstance.Assignments)
	}
}
