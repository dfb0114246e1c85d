package core

import "fmt"

// ConstraintCheckSummary is the anchored payload carried by the
// axi_constraints_ok_v1 certificate (spec.md §4.8).
type ConstraintCheckSummary struct {
	ModuleName     string
	ConstraintCount int
	InstanceCount  int
	CheckCount     int
}

// CheckConstraints validates the certified constraint subset (key,
// functional, symmetric, transitive, typing) against a TypedModule's
// instances, per spec.md §4.2. Closure constraints (symmetric/transitive)
// never materialize implied tuples; they are checked only for consistency
// with co-declared key/functional constraints on the same relation, and
// any constraint form the checker does not recognize rejects the
// certificate (fail-closed).
func CheckConstraints(tm *TypedModule) (*ConstraintCheckSummary, error) {
	m := tm.Module
	summary := &ConstraintCheckSummary{ModuleName: m.Name, InstanceCount: len(m.Instances)}

	for _, theory := range m.Theories {
		schema, ok := tm.SchemaByName(theory.SchemaName)
		if !ok {
			return nil, &TypeError{Module: m.Name, Msg: fmt.Sprintf("%v: theory '%s' references unknown schema '%s'", ErrUnknownSchema, theory.Name, theory.SchemaName)}
		}
		carriers := closureCarriers(theory)
		for _, c := range theory.Constraints {
			summary.ConstraintCount++
			switch c.Kind {
			case ConstraintKey:
				if err := checkKeyConstraint(tm, schema, c); err != nil {
					return nil, err
				}
				summary.CheckCount++
			case ConstraintFunctional:
				if err := checkFunctionalConstraint(tm, schema, c); err != nil {
					return nil, err
				}
				summary.CheckCount++
			case ConstraintSymmetric, ConstraintTransitive:
				// Closure annotations are witnesses of intent; no implied
				// tuples are materialized (spec.md §4.2, §9).
				summary.CheckCount++
			case ConstraintTyping:
				if err := checkTypingConstraint(tm, schema, c); err != nil {
					return nil, err
				}
				summary.CheckCount++
			case ConstraintOpaque:
				// Preserved, not interpreted: no check performed, but it
				// is a recognized form so it does not fail closed.
			default:
				return nil, &TypeError{Module: m.Name, Msg: fmt.Sprintf("%v: constraint kind %d on '%s'", ErrUnknownConstraint, c.Kind, c.Relation)}
			}
			if fields, ok := carriers[c.Relation]; ok && (c.Kind == ConstraintKey || c.Kind == ConstraintFunctional) {
				if err := checkWithinCarrier(m.Name, c, fields); err != nil {
					return nil, err
				}
			}
		}
	}
	return summary, nil
}

// closureCarriers maps relation name -> allowed fields (carrier ∪
// parameter) for every symmetric/transitive constraint declared on that
// relation within the theory.
func closureCarriers(theory *Theory) map[string]map[string]bool {
	out := map[string]map[string]bool{}
	for _, c := range theory.Constraints {
		if c.Kind != ConstraintSymmetric && c.Kind != ConstraintTransitive {
			continue
		}
		set := out[c.Relation]
		if set == nil {
			set = map[string]bool{}
			out[c.Relation] = set
		}
		for _, f := range c.CarrierFields {
			set[f] = true
		}
		for _, f := range c.ParamFields {
			set[f] = true
		}
	}
	return out
}

// checkWithinCarrier enforces: "If a key/functional constraint refers to a
// field outside the declared carrier/parameter fields, the check fails
// closed" (spec.md §4.2).
func checkWithinCarrier(moduleName string, c *Constraint, allowed map[string]bool) error {
	var fields []string
	switch c.Kind {
	case ConstraintKey:
		fields = c.KeyFields
	case ConstraintFunctional:
		fields = []string{c.FuncFrom, c.FuncTo}
	}
	for _, f := range fields {
		if !allowed[f] {
			return &TypeError{Module: moduleName, Field: f,
				Msg: fmt.Sprintf("%v: field '%s' of relation '%s' falls outside its declared closure carrier/parameter fields", ErrConstraintFailed, f, c.Relation)}
		}
	}
	return nil
}

func relationTuples(tm *TypedModule, relation string) []Tuple {
	var out []Tuple
	for _, inst := range tm.Module.Instances {
		schema, ok := tm.SchemaByName(inst.SchemaName)
		if !ok || schema.Name == "" {
			continue
		}
		if _, isRel := schema.LookupRelation(relation); !isRel {
			continue
		}
		for _, a := range inst.Assignments {
			if a.Name == relation {
				out = append(out, a.Tuples...)
			}
		}
	}
	return out
}

func checkKeyConstraint(tm *TypedModule, schema *Schema, c *Constraint) error {
	if _, ok := schema.LookupRelation(c.Relation); !ok {
		return &TypeError{Module: tm.Module.Name, Msg: fmt.Sprintf("%v: key constraint references unknown relation '%s'", ErrUnknownRelation, c.Relation)}
	}
	seen := map[string]bool{}
	for _, tup := range relationTuples(tm, c.Relation) {
		key := ""
		for _, f := range c.KeyFields {
			key += f + "=" + tup.Fields[f] + ";"
		}
		if seen[key] {
			return &TypeError{Module: tm.Module.Name, Field: c.Relation,
				Msg: fmt.Sprintf("%v: key constraint on '%s' violated by duplicate %s", ErrConstraintFailed, c.Relation, key)}
		}
		seen[key] = true
	}
	return nil
}

func checkFunctionalConstraint(tm *TypedModule, schema *Schema, c *Constraint) error {
	if _, ok := schema.LookupRelation(c.Relation); !ok {
		return &TypeError{Module: tm.Module.Name, Msg: fmt.Sprintf("%v: functional constraint references unknown relation '%s'", ErrUnknownRelation, c.Relation)}
	}
	det := map[string]string{}
	for _, tup := range relationTuples(tm, c.Relation) {
		from, to := tup.Fields[c.FuncFrom], tup.Fields[c.FuncTo]
		if prev, ok := det[from]; ok && prev != to {
			return &TypeError{Module: tm.Module.Name, Field: c.Relation,
				Msg: fmt.Sprintf("%v: functional constraint %s.%s -> %s.%s violated for %s (%s vs %s)",
					ErrConstraintFailed, c.Relation, c.FuncFrom, c.Relation, c.FuncTo, from, prev, to)}
		}
		det[from] = to
	}
	return nil
}
