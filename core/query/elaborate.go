package query

import (
	"fmt"
	"strings"

	"axiograph/core"
)

// Elaborate implements spec.md §4.7's elaboration pass: it desugars
// shape/attrs/has sugar into primitive atoms, resolves (and validates)
// relation/schema qualification on fact and edge atoms, and inserts type
// atoms implied by a relation's declared field signature. The planner
// and executor only ever see AtomType/AtomAttr/AtomEdge/AtomFact atoms
// afterward.
func Elaborate(tm *core.TypedModule, q *Query) (*Query, error) {
	e := &elaborator{tm: tm, relSchemas: relationSchemas(tm)}
	out := &Query{Vars: q.Vars, Limit: q.Limit}
	for _, c := range q.Disjuncts {
		nc, err := e.conjunct(c)
		if err != nil {
			return nil, err
		}
		out.Disjuncts = append(out.Disjuncts, nc)
	}
	return out, nil
}

type elaborator struct {
	tm         *core.TypedModule
	relSchemas map[string][]string
	freshN     int
}

// relationSchemas maps a bare relation name to every schema in the
// module declaring a relation of that name, the same grouping import.go
// uses to decide when a traversal edge needs schema qualification.
func relationSchemas(tm *core.TypedModule) map[string][]string {
	out := map[string][]string{}
	for _, s := range tm.Module.Schemas {
		for _, r := range s.Relations {
			out[r.Name] = append(out[r.Name], s.Name)
		}
	}
	return out
}

func (e *elaborator) freshVar() string {
	e.freshN++
	return fmt.Sprintf("_anon%d", e.freshN)
}

func (e *elaborator) conjunct(c Conjunct) (Conjunct, error) {
	var out []Atom
	for _, a := range c.Atoms {
		flat, err := e.atom(a)
		if err != nil {
			return Conjunct{}, err
		}
		out = append(out, flat...)
	}
	return Conjunct{Atoms: out}, nil
}

// atom elaborates and flattens a single parsed atom into zero or more
// primitive atoms.
func (e *elaborator) atom(a Atom) ([]Atom, error) {
	switch a.Kind {
	case AtomShape:
		var out []Atom
		for _, sub := range a.ShapeAtoms {
			flat, err := e.atom(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)
		}
		return out, nil

	case AtomAttrs:
		var out []Atom
		for _, f := range a.AttrFields {
			out = append(out, Atom{Kind: AtomAttr, Var: a.Var, Key: f.Name, Val: f.Val})
		}
		return out, nil

	case AtomHas:
		var out []Atom
		for _, rel := range a.HasRelations {
			out = append(out, Atom{
				Kind: AtomEdge,
				From: a.Var,
				Edge: &RPQExpr{Kind: RPQLabel, Label: rel},
				To:   e.freshVar(),
			})
		}
		return out, nil

	case AtomFact:
		return e.factAtom(a)

	case AtomEdge:
		if err := e.resolveRPQLabels(a.Edge); err != nil {
			return nil, err
		}
		return []Atom{a}, nil

	default: // AtomType, AtomAttr already primitive
		return []Atom{a}, nil
	}
}

// factAtom resolves schema qualification (step d), validates field names
// against the relation's declared signature (step e), and inserts
// implied type atoms for field variables whose field type is an object
// type (step c).
func (e *elaborator) factAtom(a Atom) ([]Atom, error) {
	schemaName, rel, err := e.resolveRelation(a.Schema, a.Relation)
	if err != nil {
		return nil, err
	}
	a.Schema = schemaName

	schema, _ := e.tm.SchemaByName(schemaName)
	var implied []Atom
	for _, f := range a.Fields {
		fld, ok := fieldByName(rel, f.Name)
		if !ok {
			return nil, fmt.Errorf("axiograph: unknown field %q on relation %s.%s", f.Name, schemaName, rel.Name)
		}
		if f.Val.IsVar && schema.HasObject(fld.Type) {
			implied = append(implied, Atom{Kind: AtomType, Var: f.Val.Var, Schema: schemaName, Type: fld.Type})
		}
	}
	return append([]Atom{a}, implied...), nil
}

func fieldByName(rel *core.Relation, name string) (core.Field, bool) {
	for _, f := range rel.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return core.Field{}, false
}

// resolveRelation finds the schema declaring relName: explicit takes the
// named schema directly; otherwise the relation must be unambiguous
// across every schema loaded in the module.
func (e *elaborator) resolveRelation(explicitSchema, relName string) (string, *core.Relation, error) {
	if explicitSchema != "" {
		s, ok := e.tm.SchemaByName(explicitSchema)
		if !ok {
			return "", nil, fmt.Errorf("axiograph: unknown schema %q", explicitSchema)
		}
		rel, ok := s.LookupRelation(relName)
		if !ok {
			return "", nil, fmt.Errorf("axiograph: schema %q declares no relation %q", explicitSchema, relName)
		}
		return explicitSchema, rel, nil
	}
	schemas := e.relSchemas[relName]
	switch len(schemas) {
	case 0:
		return "", nil, fmt.Errorf("axiograph: unknown relation %q", relName)
	case 1:
		s, _ := e.tm.SchemaByName(schemas[0])
		rel, _ := s.LookupRelation(relName)
		return schemas[0], rel, nil
	default:
		return "", nil, fmt.Errorf("axiograph: relation %q is ambiguous across schemas %s; qualify as Schema.%s", relName, strings.Join(schemas, ", "), relName)
	}
}

// resolveRPQLabels walks an RPQ tree and validates every bare label
// resolves unambiguously to a schema, matching the qualification rule
// import.go applies when materializing the corresponding traversal edge.
func (e *elaborator) resolveRPQLabels(expr *RPQExpr) error {
	if expr == nil {
		return nil
	}
	switch expr.Kind {
	case RPQLabel:
		if strings.Contains(expr.Label, ".") {
			parts := strings.SplitN(expr.Label, ".", 2)
			if _, _, err := e.resolveRelation(parts[0], parts[1]); err != nil {
				return err
			}
			return nil
		}
		if _, _, err := e.resolveRelation("", expr.Label); err != nil {
			return err
		}
		return nil
	case RPQConcat, RPQAlt:
		if err := e.resolveRPQLabels(expr.Left); err != nil {
			return err
		}
		return e.resolveRPQLabels(expr.Right)
	case RPQStar, RPQPlus, RPQOpt:
		return e.resolveRPQLabels(expr.Sub)
	default:
		return nil
	}
}
