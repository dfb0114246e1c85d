package query

import (
	"context"
	"sort"
	"strings"

	"axiograph/core"
	"axiograph/core/index"
)

// AtomWitness is the evidence the executor actually used to satisfy one
// plan step for one row: reachability for edge/RPQ atoms, presence for
// type/attr atoms, a fact-node id for fact atoms (spec.md §4.8's
// query_result witness shapes). The certificate producer (C8) never
// fabricates beyond what is recorded here.
type AtomWitness struct {
	Atom      Atom
	Present   bool
	FactID    uint64
	Reflexive bool
	Reach     *ReachStep
}

// Row is one query result: a variable binding plus the per-step
// witnesses that justified it, tagged with the UCQ branch that produced
// it (spec.md §4.7: "each returned row is tagged with the branch index").
type Row struct {
	Bindings  map[string]uint64
	Disjunct  int
	Witnesses []AtomWitness
}

// Result is the outcome of executing a whole (possibly disjunctive)
// query.
type Result struct {
	Rows      []Row
	Truncated bool // true iff the deadline was hit before completion; no certificate may be emitted (spec.md §5)
}

// Execute runs every disjunct of an elaborated query as a union of
// conjunctive queries, applying Limit across the combined rows.
// Soundness always holds; completeness holds only when Truncated is
// false and no atom used an approximate predicate (spec.md §4.7).
func Execute(ctx context.Context, pdb *core.PathDB, h *index.Handle, cfg index.Config, q *Query) (Result, error) {
	cfg = cfg.WithDefaults()
	var all []Row
	truncated := false
	for i, c := range q.Disjuncts {
		select {
		case <-ctx.Done():
			truncated = true
		default:
		}
		if truncated {
			break
		}
		rows, tr, err := executeConjunct(ctx, pdb, h, cfg, c, i)
		if err != nil {
			return Result{}, err
		}
		all = append(all, rows...)
		if tr {
			truncated = true
			break
		}
	}
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return Result{Rows: all, Truncated: truncated}, nil
}

func executeConjunct(ctx context.Context, pdb *core.PathDB, h *index.Handle, cfg index.Config, c Conjunct, disjunctIdx int) ([]Row, bool, error) {
	plan := PlanConjunct(pdb, h, cfg, c)
	rows := []Row{{Bindings: map[string]uint64{}, Disjunct: disjunctIdx}}

	for _, step := range plan.Steps {
		select {
		case <-ctx.Done():
			return rows, true, nil
		default:
		}
		var next []Row
		for _, r := range rows {
			exts, truncated, err := evalAtom(ctx, pdb, h, cfg, step, r.Bindings)
			if err != nil {
				return nil, false, err
			}
			for _, ext := range exts {
				nb := make(map[string]uint64, len(r.Bindings)+len(ext.delta))
				for k, v := range r.Bindings {
					nb[k] = v
				}
				for k, v := range ext.delta {
					nb[k] = v
				}
				nw := make([]AtomWitness, len(r.Witnesses)+1)
				copy(nw, r.Witnesses)
				nw[len(r.Witnesses)] = ext.witness
				next = append(next, Row{Bindings: nb, Disjunct: disjunctIdx, Witnesses: nw})
			}
			if truncated {
				return next, true, nil
			}
		}
		rows = next
		if len(rows) == 0 {
			break
		}
	}
	return rows, false, nil
}

type extension struct {
	delta   map[string]uint64
	witness AtomWitness
}

func evalAtom(ctx context.Context, pdb *core.PathDB, h *index.Handle, cfg index.Config, step PlanStep, bound map[string]uint64) ([]extension, bool, error) {
	switch step.Atom.Kind {
	case AtomType:
		return evalTypeAtom(pdb, step.Atom, bound), false, nil
	case AtomAttr:
		return evalAttrAtom(pdb, h, cfg, step.Atom, bound), false, nil
	case AtomFact:
		return evalFactAtom(pdb, h, step.Atom, bound), false, nil
	case AtomEdge:
		return evalEdgeAtom(ctx, pdb, h, step, bound)
	default:
		return nil, false, nil
	}
}

func evalTypeAtom(pdb *core.PathDB, a Atom, bound map[string]uint64) []extension {
	if id, ok := bound[a.Var]; ok {
		e, found := pdb.Entity(id)
		if !found || e.EntityType != a.Type {
			return nil
		}
		return []extension{{delta: map[string]uint64{}, witness: AtomWitness{Atom: a, Present: true}}}
	}
	var ids []uint64
	for _, e := range pdb.Entities() {
		if e.EntityType == a.Type {
			ids = append(ids, e.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	exts := make([]extension, len(ids))
	for i, id := range ids {
		exts[i] = extension{delta: map[string]uint64{a.Var: id}, witness: AtomWitness{Atom: a, Present: true}}
	}
	return exts
}

func evalAttrAtom(pdb *core.PathDB, h *index.Handle, cfg index.Config, a Atom, bound map[string]uint64) []extension {
	if id, ok := bound[a.Var]; ok {
		e, found := pdb.Entity(id)
		if !found || !matchAttr(h, cfg, e, a) {
			return nil
		}
		return []extension{{delta: map[string]uint64{}, witness: AtomWitness{Atom: a, Present: true}}}
	}

	var ids []uint64
	switch a.Approx {
	case "fuzzy":
		dist := a.FuzzyDist
		if dist == 0 {
			dist = cfg.FuzzyMaxDistance
		}
		if h != nil && h.Text != nil {
			ids = h.Text.Fuzzy(a.Key, a.Val.Lit, dist)
		}
	case "fts":
		if h != nil && h.Text != nil {
			ids = h.Text.Search("search_text", tokenize(a.Val.Lit))
		}
	case "contains":
		for _, e := range pdb.Entities() {
			if strings.Contains(strings.ToLower(e.Attrs[a.Key]), strings.ToLower(a.Val.Lit)) {
				ids = append(ids, e.ID)
			}
		}
	default:
		for _, e := range pdb.Entities() {
			if e.Attrs[a.Key] == a.Val.Lit {
				ids = append(ids, e.ID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	exts := make([]extension, len(ids))
	for i, id := range ids {
		exts[i] = extension{delta: map[string]uint64{a.Var: id}, witness: AtomWitness{Atom: a, Present: true}}
	}
	return exts
}

// matchAttr evaluates one attribute predicate against an already-bound
// entity. Approximate predicates (contains/fts/fuzzy) are evidence-plane
// shortcuts and are never certifiable (spec.md §4.7).
func matchAttr(h *index.Handle, cfg index.Config, e *core.Entity, a Atom) bool {
	switch a.Approx {
	case "":
		return e.Attrs[a.Key] == a.Val.Lit
	case "contains":
		return strings.Contains(strings.ToLower(e.Attrs[a.Key]), strings.ToLower(a.Val.Lit))
	case "fts":
		return strings.Contains(strings.ToLower(e.Attrs["search_text"]), strings.ToLower(a.Val.Lit))
	case "fuzzy":
		dist := a.FuzzyDist
		if dist == 0 {
			dist = cfg.FuzzyMaxDistance
		}
		if h == nil || h.Text == nil {
			return false
		}
		for _, id := range h.Text.Fuzzy(a.Key, a.Val.Lit, dist) {
			if id == e.ID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evalFactAtom(pdb *core.PathDB, h *index.Handle, a Atom, bound map[string]uint64) []extension {
	var candidates []uint64
	if a.FactVar != "" {
		if fv, ok := bound[a.FactVar]; ok {
			candidates = []uint64{fv}
		}
	}
	if candidates == nil {
		if h != nil && h.Facts != nil {
			candidates = append(candidates, h.Facts.Facts(a.Relation)...)
		} else {
			for _, e := range pdb.Entities() {
				if e.Attrs["axi_relation"] == a.Relation {
					candidates = append(candidates, e.ID)
				}
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	var exts []extension
	for _, fid := range candidates {
		delta := map[string]uint64{}
		ok := true
		for _, f := range a.Fields {
			edges := pdb.RelationsFrom(fid, f.Name)
			if len(edges) == 0 {
				ok = false
				break
			}
			target := edges[0].To
			if f.Val.IsVar {
				if existing, already := bound[f.Val.Var]; already && existing != target {
					ok = false
					break
				}
				if existing, already := delta[f.Val.Var]; already && existing != target {
					ok = false
					break
				}
				delta[f.Val.Var] = target
			} else {
				ent, found := pdb.Entity(target)
				if !found || ent.Name != f.Val.Lit {
					ok = false
					break
				}
			}
		}
		if !ok {
			continue
		}
		if a.FactVar != "" {
			if existing, already := bound[a.FactVar]; already && existing != fid {
				continue
			}
			delta[a.FactVar] = fid
		}
		exts = append(exts, extension{delta: delta, witness: AtomWitness{Atom: a, FactID: fid}})
	}
	return exts
}

func evalEdgeAtom(ctx context.Context, pdb *core.PathDB, h *index.Handle, step PlanStep, bound map[string]uint64) ([]extension, bool, error) {
	a := step.Atom
	fromBound, fromOK := bound[a.From]
	toBound, toOK := bound[a.To]

	var anchors []uint64
	if fromOK {
		anchors = []uint64{fromBound}
	} else {
		for _, e := range pdb.Entities() {
			anchors = append(anchors, e.ID)
		}
		sort.Slice(anchors, func(i, j int) bool { return anchors[i] < anchors[j] })
	}

	var exts []extension
	for _, anchor := range anchors {
		if step.UsePathIndex && h != nil && h.Paths != nil {
			if hint, ok := h.Paths.Lookup(anchor, step.Chain); ok && len(hint) == 0 {
				continue
			}
		}
		reached, truncated := runRPQ(ctx, pdb, a.Edge, anchor, a.MaxHops, a.MinConf)
		if truncated {
			return exts, true, nil
		}
		var tos []uint64
		for to := range reached {
			tos = append(tos, to)
		}
		sort.Slice(tos, func(i, j int) bool { return tos[i] < tos[j] })
		for _, to := range tos {
			if toOK && to != toBound {
				continue
			}
			delta := map[string]uint64{}
			if !fromOK {
				delta[a.From] = anchor
			}
			if !toOK {
				delta[a.To] = to
			}
			w := AtomWitness{Atom: a, Reach: reached[to], Reflexive: reached[to] == nil}
			exts = append(exts, extension{delta: delta, witness: w})
		}
	}
	return exts, false, nil
}
