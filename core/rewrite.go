package core

import "fmt"

// DerivationStep is one rewrite applied during normalization: Pos
// navigates from the root of the expression being rewritten down to the
// rewritten subexpression (0 = .left, 1 = .right, 2 = .inv.path, per
// spec.md §4.8's normalize_path_v2 shape), and Rule names the rule that
// fired.
type DerivationStep struct {
	Pos  []int
	Rule string
}

// Normalize reduces a path expression to canonical form using the seven
// builtin category-style laws (assoc_right, id_left, id_right, inv_refl,
// inv_inv, inv_trans, cancel_head), returning the normal form plus the
// derivation that produced it. Rules are tried outermost-first at each
// node, then recursively within children; normalization halts once no
// rule applies anywhere in the tree.
func Normalize(expr *PathExpr) (*PathExpr, []DerivationStep) {
	return NormalizeWithRules(expr, nil)
}

// NormalizeWithRules additionally tries a schema's custom rewrite rules
// (theory-declared `lhs => rhs` pairs) at every step, alongside the
// builtin laws. A custom rule fires when a subexpression is structurally
// identical to the rule's LHS (ground-term rewriting, not pattern
// unification over path variables); its derivation step is tagged
// "custom:<RuleName>" rather than a builtin tag.
func NormalizeWithRules(expr *PathExpr, custom []*RewriteRule) (*PathExpr, []DerivationStep) {
	var derivation []DerivationStep
	cur := expr
	for {
		next, pos, rule, ok := rewriteStep(cur, custom)
		if !ok {
			return cur, derivation
		}
		derivation = append(derivation, DerivationStep{Pos: pos, Rule: rule})
		cur = next
	}
}

// rewriteStep applies the first matching rule found by a pre-order walk:
// try the current node, then descend into its children in the spec's
// .left/.right/.inv.path order.
func rewriteStep(expr *PathExpr, custom []*RewriteRule) (*PathExpr, []int, string, bool) {
	if next, rule, ok := applyOneRule(expr, custom); ok {
		return next, nil, rule, true
	}
	switch expr.Kind {
	case PathTrans:
		if next, pos, rule, ok := rewriteStep(expr.Left, custom); ok {
			out := *expr
			out.Left = next
			return &out, append([]int{0}, pos...), rule, true
		}
		if next, pos, rule, ok := rewriteStep(expr.Right, custom); ok {
			out := *expr
			out.Right = next
			return &out, append([]int{1}, pos...), rule, true
		}
	case PathInv:
		if next, pos, rule, ok := rewriteStep(expr.Inv, custom); ok {
			out := *expr
			out.Inv = next
			return &out, append([]int{2}, pos...), rule, true
		}
	}
	return nil, nil, "", false
}

// applyOneRule tries every builtin law, then every custom rule, against
// expr's root constructor.
func applyOneRule(expr *PathExpr, custom []*RewriteRule) (*PathExpr, string, bool) {
	switch expr.Kind {
	case PathTrans:
		if expr.Left.Kind == PathTrans {
			// assoc_right: trans(trans(a,b),c) => trans(a,trans(b,c))
			return &PathExpr{Kind: PathTrans, Left: expr.Left.Left, Right: &PathExpr{
				Kind: PathTrans, Left: expr.Left.Right, Right: expr.Right,
			}}, "assoc_right", true
		}
		if expr.Left.Kind == PathReflexive {
			// id_left: trans(reflexive(x), p) => p
			return expr.Right, "id_left", true
		}
		if expr.Right.Kind == PathReflexive {
			// id_right: trans(p, reflexive(x)) => p
			return expr.Left, "id_right", true
		}
		if expr.Left.Kind == PathInv && pathExprEqual(expr.Left.Inv, expr.Right) {
			// cancel_head: trans(inv(p), p) => reflexive(target(p))
			// inv(p) runs target(p)->source(p), then p runs source(p)->target(p),
			// so the composite starts and ends at target(p).
			return &PathExpr{Kind: PathReflexive, Entity: targetEntity(expr.Right)}, "cancel_head", true
		}
	case PathInv:
		if expr.Inv.Kind == PathReflexive {
			// inv_refl: inv(reflexive(x)) => reflexive(x)
			return &PathExpr{Kind: PathReflexive, Entity: expr.Inv.Entity}, "inv_refl", true
		}
		if expr.Inv.Kind == PathInv {
			// inv_inv: inv(inv(p)) => p
			return expr.Inv.Inv, "inv_inv", true
		}
		if expr.Inv.Kind == PathTrans {
			// inv_trans: inv(trans(a,b)) => trans(inv(b),inv(a))
			return &PathExpr{Kind: PathTrans,
				Left:  &PathExpr{Kind: PathInv, Inv: expr.Inv.Right},
				Right: &PathExpr{Kind: PathInv, Inv: expr.Inv.Left},
			}, "inv_trans", true
		}
	}
	for _, r := range custom {
		if pathExprEqual(expr, r.LHS) {
			return r.RHS, "custom:" + r.Name, true
		}
	}
	return nil, "", false
}

// PathExprEqual reports whether two path expressions are structurally
// identical, the equality path_equiv_v2 uses once both sides have been
// normalized.
func PathExprEqual(a, b *PathExpr) bool { return pathExprEqual(a, b) }

func pathExprEqual(a, b *PathExpr) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case PathReflexive:
		return a.Entity == b.Entity
	case PathStep:
		return a.From == b.From && a.Rel == b.Rel && a.To == b.To
	case PathTrans:
		return pathExprEqual(a.Left, b.Left) && pathExprEqual(a.Right, b.Right)
	case PathInv:
		return pathExprEqual(a.Inv, b.Inv)
	}
	return false
}

// sourceEntity returns the entity a path expression starts from, used to
// anchor the reflexive identity produced by cancel_head.
func sourceEntity(expr *PathExpr) string {
	switch expr.Kind {
	case PathReflexive:
		return expr.Entity
	case PathStep:
		return expr.From
	case PathTrans:
		return sourceEntity(expr.Left)
	case PathInv:
		return targetEntity(expr.Inv)
	}
	return ""
}

// targetEntity returns the entity a path expression ends at.
func targetEntity(expr *PathExpr) string {
	switch expr.Kind {
	case PathReflexive:
		return expr.Entity
	case PathStep:
		return expr.To
	case PathTrans:
		return targetEntity(expr.Right)
	case PathInv:
		return sourceEntity(expr.Inv)
	}
	return ""
}

// PathExprString renders a path expression in the compact form used by
// certificate payloads' `input`/`normalized`/`output` fields: refl(x),
// step(a,R,b), (p ; q), inv(p). This is not the .axi surface syntax that
// Pretty writes (reflexive(x), step(a, R, b), trans(p, q)).
func PathExprString(expr *PathExpr) string {
	switch expr.Kind {
	case PathReflexive:
		return fmt.Sprintf("refl(%s)", expr.Entity)
	case PathStep:
		return fmt.Sprintf("step(%s,%s,%s)", expr.From, expr.Rel, expr.To)
	case PathTrans:
		return fmt.Sprintf("(%s ; %s)", PathExprString(expr.Left), PathExprString(expr.Right))
	case PathInv:
		return fmt.Sprintf("inv(%s)", PathExprString(expr.Inv))
	}
	return ""
}
