package certificate

import (
	"fmt"
	"strings"

	"axiograph/core/query"
)

// AtomIR is the elaborated-IR rendering of one AxQL atom carried inside a
// query_result certificate's `atoms` list (spec.md §4.8: "carries the
// elaborated query IR (select vars + atoms)").
type AtomIR struct {
	Kind     string   `json:"kind"`
	Var      string   `json:"var,omitempty"`
	Schema   string   `json:"schema,omitempty"`
	Type     string   `json:"type,omitempty"`
	Key      string   `json:"key,omitempty"`
	Val      string   `json:"val,omitempty"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	Edge     string   `json:"edge,omitempty"`
	Relation string   `json:"relation,omitempty"`
	FactVar  string   `json:"fact_var,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}

var atomKindNames = map[query.AtomKind]string{
	query.AtomType:  "type",
	query.AtomAttr:  "attr",
	query.AtomEdge:  "edge",
	query.AtomFact:  "fact",
	query.AtomHas:   "has",
	query.AtomAttrs: "attrs",
	query.AtomShape: "shape",
}

func termString(t query.Term) string {
	if t.IsVar {
		return "?" + t.Var
	}
	return t.Lit
}

func atomIR(a query.Atom) AtomIR {
	ir := AtomIR{Kind: atomKindNames[a.Kind], Var: a.Var, Schema: a.Schema}
	switch a.Kind {
	case query.AtomType:
		ir.Type = a.Type
	case query.AtomAttr:
		ir.Key, ir.Val = a.Key, termString(a.Val)
	case query.AtomEdge:
		ir.From, ir.To, ir.Edge = a.From, a.To, rpqString(a.Edge)
	case query.AtomFact:
		ir.FactVar, ir.Relation = a.FactVar, a.Relation
		for _, f := range a.Fields {
			ir.Fields = append(ir.Fields, fmt.Sprintf("%s=%s", f.Name, termString(f.Val)))
		}
	case query.AtomHas:
		ir.Fields = append(ir.Fields, a.HasRelations...)
	case query.AtomAttrs:
		for _, f := range a.AttrFields {
			ir.Fields = append(ir.Fields, fmt.Sprintf("%s=%s", f.Name, termString(f.Val)))
		}
	}
	return ir
}

// rpqString renders a regular-path expression back to its `/`, `|`, `*`,
// `+`, `?` surface syntax for the certificate's IR.
func rpqString(e *query.RPQExpr) string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case query.RPQLabel:
		return e.Label
	case query.RPQConcat:
		return rpqString(e.Left) + "/" + rpqString(e.Right)
	case query.RPQAlt:
		return "(" + rpqString(e.Left) + "|" + rpqString(e.Right) + ")"
	case query.RPQStar:
		return rpqString(e.Sub) + "*"
	case query.RPQPlus:
		return rpqString(e.Sub) + "+"
	case query.RPQOpt:
		return rpqString(e.Sub) + "?"
	}
	return ""
}

func conjunctIR(c query.Conjunct) []AtomIR {
	atoms := make([]AtomIR, 0, len(c.Atoms))
	for _, a := range c.Atoms {
		atoms = append(atoms, atomIR(a))
	}
	return atoms
}

func varsJoined(vars []string) string { return strings.Join(vars, ",") }
