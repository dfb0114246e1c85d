package certificate

import (
	"axiograph/core"
	"axiograph/core/query"
)

// AtomWitnessProof is the per-atom evidence carried by a query_result row:
// presence for type/attr atoms, a fact-node id for fact atoms, or a
// nested reachability proof for edge/RPQ atoms (spec.md §4.8).
type AtomWitnessProof struct {
	Atom         AtomIR          `json:"atom"`
	Present      bool            `json:"present,omitempty"`
	FactID       *uint64         `json:"axi_fact_id,omitempty"`
	Reachability *ReachStepProof `json:"reachability,omitempty"`
}

// RowProof is one result row: its bindings (rendered as entity refs) plus
// the witnesses that justified every atom.
type RowProof struct {
	Bindings  map[string]string  `json:"bindings"`
	Disjunct  *int               `json:"disjunct,omitempty"`
	Witnesses []AtomWitnessProof `json:"witnesses"`
}

// QueryResultProof is the shared payload shape of query_result_v1/v2/v3:
// the elaborated IR (select vars + per-disjunct atoms) plus one RowProof
// per returned row.
type QueryResultProof struct {
	Select []string    `json:"select"`
	Atoms  [][]AtomIR  `json:"atoms"`
	Rows   []*RowProof `json:"rows"`
}

func buildRowProof(pdb *core.PathDB, anchor *Anchor, q *query.Query, row query.Row, tagDisjunct bool) *RowProof {
	rp := &RowProof{Bindings: map[string]string{}}
	for v, id := range row.Bindings {
		rp.Bindings[v] = entityRef(pdb, id)
	}
	if tagDisjunct {
		d := row.Disjunct
		rp.Disjunct = &d
	}
	for _, w := range row.Witnesses {
		wp := AtomWitnessProof{Atom: atomIR(w.Atom), Present: w.Present}
		if w.Atom.Kind == query.AtomFact && w.FactID != 0 {
			id := w.FactID
			wp.FactID = &id
		}
		if w.Atom.Kind == query.AtomEdge {
			from := row.Bindings[w.Atom.From]
			wp.Reachability = buildReachProof(pdb, anchor, from, w.Reach)
		}
		rp.Witnesses = append(rp.Witnesses, wp)
	}
	return rp
}

func buildQueryResultProof(pdb *core.PathDB, anchor *Anchor, q *query.Query, res query.Result, tagDisjunct bool) *QueryResultProof {
	proof := &QueryResultProof{Select: q.Vars}
	for _, c := range q.Disjuncts {
		proof.Atoms = append(proof.Atoms, conjunctIR(c))
	}
	for _, row := range res.Rows {
		proof.Rows = append(proof.Rows, buildRowProof(pdb, anchor, q, row, tagDisjunct))
	}
	return proof
}

// BuildQueryResultV1 is the snapshot-anchored query_result certificate
// without per-row disjunct tagging (a single-disjunct query).
func BuildQueryResultV1(pdb *core.PathDB, anchor *Anchor, q *query.Query, res query.Result) *Certificate {
	return newCertificate("query_result_v1", anchor, buildQueryResultProof(pdb, anchor, q, res, false))
}

// BuildQueryResultV2 adds `disjunct: <idx>` to every row, for a UCQ query
// with more than one branch (spec.md §7 scenario 3).
func BuildQueryResultV2(pdb *core.PathDB, anchor *Anchor, q *query.Query, res query.Result) *Certificate {
	return newCertificate("query_result_v2", anchor, buildQueryResultProof(pdb, anchor, q, res, true))
}

// BuildQueryResultV3 is module-anchored (witnesses reference axi_fact_id
// rather than a snapshot relation_id).
func BuildQueryResultV3(pdb *core.PathDB, anchor *Anchor, q *query.Query, res query.Result) *Certificate {
	return newCertificate("query_result_v3", anchor, buildQueryResultProof(pdb, anchor, q, res, true))
}
