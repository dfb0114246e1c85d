package core

import (
	"fmt"
	"sort"
	"strings"
)

// Pretty renders a Module back to .axi source text. Re-parsing the
// result yields a Module equal to the input up to canonical ordering
// (spec.md §8: "parse ∘ pretty = identity on Module up to canonical
// ordering") — Pretty itself sorts declarations so the round trip is
// exact even when the input was already canonicalized.
func Pretty(m *Module) []byte {
	var b strings.Builder
	if m.Name != "" {
		fmt.Fprintf(&b, "module %s\n\n", m.Name)
	}
	schemas := append([]*Schema(nil), m.Schemas...)
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	for _, s := range schemas {
		writeSchema(&b, s)
	}
	theories := append([]*Theory(nil), m.Theories...)
	sort.Slice(theories, func(i, j int) bool { return theories[i].Name < theories[j].Name })
	for _, t := range theories {
		writeTheory(&b, t)
	}
	instances := append([]*Instance(nil), m.Instances...)
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	for _, inst := range instances {
		writeInstance(&b, inst)
	}
	for _, rs := range m.Rewrites {
		writeRewriteRuleSet(&b, rs)
	}
	return []byte(b.String())
}

func writeSchema(b *strings.Builder, s *Schema) {
	fmt.Fprintf(b, "schema %s:\n", s.Name)
	objs := append([]string(nil), s.Objects...)
	sort.Strings(objs)
	for _, o := range objs {
		fmt.Fprintf(b, "  object %s\n", o)
	}
	subs := append([]Subtype(nil), s.Subtypes...)
	sort.Slice(subs, func(i, j int) bool { return subs[i].Sub < subs[j].Sub })
	for _, st := range subs {
		fmt.Fprintf(b, "  %s < %s\n", st.Sub, st.Super)
	}
	rels := append([]*Relation(nil), s.Relations...)
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })
	for _, r := range rels {
		var parts []string
		for _, f := range r.Fields {
			s := f.Name + ": " + f.Type
			if f.Context {
				s += " @context"
			}
			if f.Temporal {
				s += " @temporal"
			}
			parts = append(parts, s)
		}
		if r.SourceField != "" {
			parts = append(parts, "source="+r.SourceField)
		}
		if r.TargetField != "" {
			parts = append(parts, "target="+r.TargetField)
		}
		fmt.Fprintf(b, "  %s(%s)\n", r.Name, strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

func writeTheory(b *strings.Builder, t *Theory) {
	fmt.Fprintf(b, "theory %s on %s:\n", t.Name, t.SchemaName)
	for _, c := range t.Constraints {
		switch c.Kind {
		case ConstraintKey:
			fmt.Fprintf(b, "  key %s(%s)\n", c.Relation, strings.Join(c.KeyFields, ", "))
		case ConstraintFunctional:
			fmt.Fprintf(b, "  functional %s.%s -> %s.%s\n", c.Relation, c.FuncFrom, c.Relation, c.FuncTo)
		case ConstraintSymmetric, ConstraintTransitive:
			kw := "symmetric"
			if c.Kind == ConstraintTransitive {
				kw = "transitive"
			}
			line := "  " + kw + " " + c.Relation
			if c.Where != "" {
				line += " where " + c.Where
			}
			if len(c.CarrierFields) > 0 {
				line += " on (" + strings.Join(c.CarrierFields, ", ") + ")"
			}
			if len(c.ParamFields) > 0 {
				line += " param (" + strings.Join(c.ParamFields, ", ") + ")"
			}
			b.WriteString(line + "\n")
		case ConstraintTyping:
			fmt.Fprintf(b, "  typing %s: %s\n", c.Relation, c.TypingRule)
		case ConstraintOpaque:
			fmt.Fprintf(b, "  %s = { %s }\n", c.OpaqueName, c.OpaqueBody)
		}
	}
	b.WriteString("\n")
}

func writeInstance(b *strings.Builder, inst *Instance) {
	fmt.Fprintf(b, "instance %s of %s:\n", inst.Name, inst.SchemaName)
	assigns := append([]*Assignment(nil), inst.Assignments...)
	sort.Slice(assigns, func(i, j int) bool { return assigns[i].Name < assigns[j].Name })
	for _, a := range assigns {
		if a.IsTuple {
			var tuples []string
			for _, tup := range a.Tuples {
				keys := append([]string(nil), tup.FieldOrder...)
				sort.Strings(keys)
				var parts []string
				for _, k := range keys {
					parts = append(parts, k+"="+tup.Fields[k])
				}
				tuples = append(tuples, "("+strings.Join(parts, ", ")+")")
			}
			fmt.Fprintf(b, "  %s = {%s}\n", a.Name, strings.Join(tuples, ", "))
		} else {
			objs := append([]string(nil), a.Objects...)
			sort.Strings(objs)
			fmt.Fprintf(b, "  %s = {%s}\n", a.Name, strings.Join(objs, ", "))
		}
	}
	b.WriteString("\n")
}

func writeRewriteRuleSet(b *strings.Builder, rs *RewriteRuleSet) {
	fmt.Fprintf(b, "rewrite rules %s on %s:\n", rs.Name, rs.SchemaName)
	for _, r := range rs.Rules {
		fmt.Fprintf(b, "  %s: %s => %s\n", r.Name, pathExprString(r.LHS), pathExprString(r.RHS))
	}
	b.WriteString("\n")
}

func pathExprString(pe *PathExpr) string {
	if pe == nil {
		return ""
	}
	switch pe.Kind {
	case PathReflexive:
		return "reflexive(" + pe.Entity + ")"
	case PathStep:
		return "step(" + pe.From + ", " + pe.Rel + ", " + pe.To + ")"
	case PathTrans:
		return "trans(" + pathExprString(pe.Left) + ", " + pathExprString(pe.Right) + ")"
	case PathInv:
		return "inv(" + pathExprString(pe.Inv) + ")"
	}
	return ""
}
