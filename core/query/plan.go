package query

import (
	"strings"
	"unicode"

	"axiograph/core"
	"axiograph/core/index"
)

// PlanStep is one scheduled atom evaluation, in join order.
type PlanStep struct {
	Atom    Atom
	EstSize int

	// Chain is the flattened label sequence of a concatenation-only edge
	// atom (no alternation/Kleene); nil when the atom's RPQ expression
	// is not a simple chain. UsePathIndex is set when Chain is at least
	// PathIndexMinLen long (spec.md §4.7 planning step 3). The executor
	// then looks each anchor up in the Path index/LRU and skips anchors
	// whose cached result is empty; the atom itself is still evaluated by
	// the NFA walk over RelationsFrom, which produces the witnesses.
	Chain        []string
	UsePathIndex bool
}

// Plan is an ordered evaluation schedule for one conjunct.
type Plan struct {
	Steps []PlanStep
}

// PlanConjunct implements spec.md §4.7's deterministic, selectivity-
// informed planning: seed with the smallest estimated atom, then greedily
// extend by the atom sharing the most bound variables with the current
// frontier, breaking ties by estimated size.
func PlanConjunct(pdb *core.PathDB, h *index.Handle, cfg index.Config, c Conjunct) Plan {
	remaining := append([]Atom{}, c.Atoms...)
	bound := map[string]bool{}
	var steps []PlanStep

	for len(remaining) > 0 {
		best := -1
		bestShared := -1
		bestSize := -1
		for i, a := range remaining {
			shared := sharedBoundVars(a, bound)
			size := estimateSize(pdb, h, a)
			if len(steps) == 0 {
				if best == -1 || size < bestSize {
					best, bestSize, bestShared = i, size, shared
				}
				continue
			}
			if shared > bestShared || (shared == bestShared && (best == -1 || size < bestSize)) {
				best, bestShared, bestSize = i, shared, size
			}
		}
		a := remaining[best]
		remaining = append(remaining[:best:best], remaining[best+1:]...)

		step := PlanStep{Atom: a, EstSize: estimateSize(pdb, h, a)}
		if a.Kind == AtomEdge {
			if chain, ok := simpleChain(a.Edge); ok {
				step.Chain = chain
				step.UsePathIndex = len(chain) >= cfg.PathIndexMinLen
			}
		}
		steps = append(steps, step)
		for _, v := range varsOf(a) {
			bound[v] = true
		}
	}
	return Plan{Steps: steps}
}

// varsOf returns every variable an (already-elaborated, primitive) atom
// binds or references.
func varsOf(a Atom) []string {
	switch a.Kind {
	case AtomType:
		return []string{a.Var}
	case AtomAttr:
		vars := []string{a.Var}
		if a.Val.IsVar {
			vars = append(vars, a.Val.Var)
		}
		return vars
	case AtomEdge:
		return []string{a.From, a.To}
	case AtomFact:
		var vars []string
		if a.FactVar != "" {
			vars = append(vars, a.FactVar)
		}
		for _, f := range a.Fields {
			if f.Val.IsVar {
				vars = append(vars, f.Val.Var)
			}
		}
		return vars
	default:
		return nil
	}
}

func sharedBoundVars(a Atom, bound map[string]bool) int {
	n := 0
	for _, v := range varsOf(a) {
		if bound[v] {
			n++
		}
	}
	return n
}

// estimateSize produces a cheap, index-backed cardinality estimate used
// only to order plan steps — never to decide correctness.
func estimateSize(pdb *core.PathDB, h *index.Handle, a Atom) int {
	switch a.Kind {
	case AtomType:
		n := 0
		for _, e := range pdb.Entities() {
			if e.EntityType == a.Type {
				n++
			}
		}
		return n
	case AtomAttr:
		if a.Val.IsVar || h == nil || h.Text == nil {
			return len(pdb.Entities())
		}
		return len(h.Text.Search(a.Key, tokenize(a.Val.Lit)))
	case AtomFact:
		if h == nil || h.Facts == nil {
			return len(pdb.Entities())
		}
		return len(h.Facts.Facts(a.Relation))
	case AtomEdge:
		label := firstLabel(a.Edge)
		if label == "" {
			return len(pdb.Relations())
		}
		n := 0
		for _, r := range pdb.Relations() {
			if r.RelType == label {
				n++
			}
		}
		return n
	default:
		return len(pdb.Entities())
	}
}

// simpleChain flattens a concatenation-only RPQ expression (no
// alternation or Kleene quantifiers) into its label sequence, reporting
// ok=false for anything richer — those must run through the general NFA
// executor instead of a direct multi-hop index lookup.
func simpleChain(e *RPQExpr) ([]string, bool) {
	switch e.Kind {
	case RPQLabel:
		return []string{e.Label}, true
	case RPQConcat:
		l, ok := simpleChain(e.Left)
		if !ok {
			return nil, false
		}
		r, ok := simpleChain(e.Right)
		if !ok {
			return nil, false
		}
		return append(l, r...), true
	default:
		return nil, false
	}
}

// firstLabel returns the first relation label mentioned in an RPQ
// expression, used only for a rough edge-cardinality estimate.
func firstLabel(e *RPQExpr) string {
	switch e.Kind {
	case RPQLabel:
		return e.Label
	case RPQConcat, RPQAlt:
		if l := firstLabel(e.Left); l != "" {
			return l
		}
		return firstLabel(e.Right)
	case RPQStar, RPQPlus, RPQOpt:
		return firstLabel(e.Sub)
	default:
		return ""
	}
}

// tokenize matches core/index.TextIndex's tokenization so estimates
// reflect the same postings the executor will actually query.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
