package core

import "testing"

func step(from, rel, to string) *PathExpr {
	return &PathExpr{Kind: PathStep, From: from, Rel: rel, To: to}
}

func trans(l, r *PathExpr) *PathExpr { return &PathExpr{Kind: PathTrans, Left: l, Right: r} }
func inv(p *PathExpr) *PathExpr      { return &PathExpr{Kind: PathInv, Inv: p} }
func refl(e string) *PathExpr        { return &PathExpr{Kind: PathReflexive, Entity: e} }

func TestNormalizeAssocRight(t *testing.T) {
	expr := trans(trans(step("a", "R", "b"), step("b", "S", "c")), step("c", "T", "d"))
	norm, derivation := Normalize(expr)
	want := trans(step("a", "R", "b"), trans(step("b", "S", "c"), step("c", "T", "d")))
	if !pathExprEqual(norm, want) {
		t.Fatalf("normalized = %s, want %s", PathExprString(norm), PathExprString(want))
	}
	if len(derivation) != 1 || derivation[0].Rule != "assoc_right" {
		t.Fatalf("derivation = %+v", derivation)
	}
}

func TestNormalizeIdentityLaws(t *testing.T) {
	left := trans(refl("a"), step("a", "R", "b"))
	norm, derivation := Normalize(left)
	if !pathExprEqual(norm, step("a", "R", "b")) {
		t.Fatalf("id_left result = %s", PathExprString(norm))
	}
	if len(derivation) != 1 || derivation[0].Rule != "id_left" {
		t.Fatalf("derivation = %+v", derivation)
	}

	right := trans(step("a", "R", "b"), refl("b"))
	norm2, derivation2 := Normalize(right)
	if !pathExprEqual(norm2, step("a", "R", "b")) {
		t.Fatalf("id_right result = %s", PathExprString(norm2))
	}
	if len(derivation2) != 1 || derivation2[0].Rule != "id_right" {
		t.Fatalf("derivation = %+v", derivation2)
	}
}

func TestNormalizeInvLaws(t *testing.T) {
	if norm, _ := Normalize(inv(refl("a"))); !pathExprEqual(norm, refl("a")) {
		t.Fatalf("inv_refl result = %s", PathExprString(norm))
	}
	p := step("a", "R", "b")
	if norm, _ := Normalize(inv(inv(p))); !pathExprEqual(norm, p) {
		t.Fatalf("inv_inv result = %s", PathExprString(norm))
	}
	a, b := step("a", "R", "b"), step("b", "S", "c")
	norm, _ := Normalize(inv(trans(a, b)))
	want := trans(inv(b), inv(a))
	if !pathExprEqual(norm, want) {
		t.Fatalf("inv_trans result = %s, want %s", PathExprString(norm), PathExprString(want))
	}
}

func TestNormalizeCancelHead(t *testing.T) {
	p := step("a", "R", "b")
	expr := trans(inv(p), p)
	norm, derivation := Normalize(expr)
	if norm.Kind != PathReflexive || norm.Entity != "b" {
		t.Fatalf("cancel_head result = %s, want refl(b)", PathExprString(norm))
	}
	if len(derivation) != 1 || derivation[0].Rule != "cancel_head" {
		t.Fatalf("derivation = %+v", derivation)
	}
}

func TestNormalizeRecordsPositionOfANestedRewrite(t *testing.T) {
	// The root trans doesn't itself match any rule; id_left fires on the
	// right child, so the derivation's Pos descends via .right (code 1).
	expr := trans(step("a", "R", "b"), trans(refl("b"), step("b", "S", "c")))
	norm, derivation := Normalize(expr)
	want := trans(step("a", "R", "b"), step("b", "S", "c"))
	if !pathExprEqual(norm, want) {
		t.Fatalf("normalized = %s, want %s", PathExprString(norm), PathExprString(want))
	}
	if len(derivation) != 1 || derivation[0].Rule != "id_left" {
		t.Fatalf("derivation = %+v", derivation)
	}
	if len(derivation[0].Pos) != 1 || derivation[0].Pos[0] != 1 {
		t.Fatalf("Pos = %v, want [1] (descend through .right)", derivation[0].Pos)
	}
}

func TestNormalizeAppliesCustomRule(t *testing.T) {
	lhs := step("a", "Parent", "b")
	rhs := step("a", "Ancestor", "b")
	rule := &RewriteRule{Name: "ParentIsAncestor", LHS: lhs, RHS: rhs}
	norm, derivation := NormalizeWithRules(lhs, []*RewriteRule{rule})
	if !pathExprEqual(norm, rhs) {
		t.Fatalf("normalized = %s, want %s", PathExprString(norm), PathExprString(rhs))
	}
	if len(derivation) != 1 || derivation[0].Rule != "custom:ParentIsAncestor" {
		t.Fatalf("derivation = %+v", derivation)
	}
}

func TestPathEquivByNormalform(t *testing.T) {
	left := trans(trans(step("a", "R", "b"), step("b", "S", "c")), refl("c"))
	right := trans(step("a", "R", "b"), step("b", "S", "c"))
	ln, _ := Normalize(left)
	rn, _ := Normalize(right)
	if !pathExprEqual(ln, rn) {
		t.Fatalf("expected left and right to normalize to the same shape: %s vs %s", PathExprString(ln), PathExprString(rn))
	}
}
