package core

import "fmt"

// TypedModule is the witness produced by Typecheck: a Module that has
// passed all ordered structural checks in spec.md §4.2, plus indexes used
// by downstream components (import pipeline, constraint checker,
// axi_well_typed_v1 certificate).
type TypedModule struct {
	Module *Module

	schemas  map[string]*Schema
	theories map[string][]*Theory // by schema name
}

// SchemaByName resolves a declared schema.
func (tm *TypedModule) SchemaByName(name string) (*Schema, bool) {
	s, ok := tm.schemas[name]
	return s, ok
}

// TheoriesOn returns the theories attached to a schema.
func (tm *TypedModule) TheoriesOn(schema string) []*Theory {
	return tm.theories[schema]
}

// QualityProfile selects how strictly checks 1-4 are enforced.
type QualityProfile int

const (
	// ProfileLint treats subtype cycles as a non-fatal warning (returned
	// alongside a valid TypedModule).
	ProfileLint QualityProfile = iota
	// ProfileStrict rejects subtype cycles outright.
	ProfileStrict
)

// Typecheck runs the ordered, fail-fast-within-an-instance checks of
// spec.md §4.2 and returns a TypedModule witness, or the first violated
// *TypeError. Warnings (currently only lint-profile subtype cycles) are
// returned alongside a successful result.
func Typecheck(m *Module, profile QualityProfile) (*TypedModule, []string, error) {
	tm := &TypedModule{Module: m, schemas: map[string]*Schema{}, theories: map[string][]*Theory{}}
	for _, s := range m.Schemas {
		tm.schemas[s.Name] = s
	}
	for _, t := range m.Theories {
		tm.theories[t.SchemaName] = append(tm.theories[t.SchemaName], t)
	}

	var warnings []string

	// Check 4: subtype cycles, evaluated per schema.
	for _, s := range m.Schemas {
		if cyc := findSubtypeCycle(s); cyc != "" {
			msg := fmt.Sprintf("subtype cycle involving '%s'", cyc)
			if profile == ProfileStrict {
				return nil, nil, &TypeError{Module: m.Name, Field: s.Name, Msg: msg}
			}
			warnings = append(warnings, msg)
		}
	}

	// Checks 1-3, per instance, fail-fast within the instance.
	for _, inst := range m.Instances {
		schema, ok := tm.schemas[inst.SchemaName]
		if !ok {
			return nil, nil, &TypeError{Module: m.Name, Instance: inst.Name, Msg: fmt.Sprintf("%v: schema '%s' not found", ErrUnknownSchema, inst.SchemaName)}
		}
		for _, a := range inst.Assignments {
			if err := checkAssignment(m.Name, inst.Name, schema, a); err != nil {
				return nil, nil, err
			}
		}
	}
	return tm, warnings, nil
}

// WellTypedSummary is the anchored payload carried by the
// axi_well_typed_v1 certificate (spec.md §4.8).
type WellTypedSummary struct {
	ModuleName      string
	SchemaCount     int
	TheoryCount     int
	InstanceCount   int
	AssignmentCount int
	TupleCount      int
}

// Summarize re-derives the axi_well_typed_v1 counts from a TypedModule.
// Producing the summary is itself a re-check: a module that fails
// Typecheck never reaches here, so the caller holds a positive witness
// that these counts describe a structurally valid module.
func (tm *TypedModule) Summarize() WellTypedSummary {
	m := tm.Module
	s := WellTypedSummary{
		ModuleName:    m.Name,
		SchemaCount:   len(m.Schemas),
		TheoryCount:   len(m.Theories),
		InstanceCount: len(m.Instances),
	}
	for _, inst := range m.Instances {
		s.AssignmentCount += len(inst.Assignments)
		for _, a := range inst.Assignments {
			s.TupleCount += len(a.Tuples)
		}
	}
	return s
}

func findSubtypeCycle(s *Schema) string {
	adj := map[string][]string{}
	for _, st := range s.Subtypes {
		adj[st.Sub] = append(adj[st.Sub], st.Super)
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var cyc string
	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				cyc = next
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	for n := range adj {
		if color[n] == white {
			if visit(n) {
				return cyc
			}
		}
	}
	return ""
}

// checkAssignment implements spec.md §4.2 checks 2 and 3 for a single
// assignment block.
func checkAssignment(moduleName, instName string, schema *Schema, a *Assignment) error {
	if rel, isRel := schema.LookupRelation(a.Name); isRel {
		if !a.IsTuple {
			return &TypeError{Module: moduleName, Instance: instName, Field: a.Name,
				Msg: "relation assignment must be a tuple set, not an object identifier set"}
		}
		for _, tup := range a.Tuples {
			if err := checkTupleShape(moduleName, instName, schema, rel, tup); err != nil {
				return err
			}
		}
		return nil
	}
	if schema.HasObject(a.Name) {
		if a.IsTuple {
			return &TypeError{Module: moduleName, Instance: instName, Field: a.Name,
				Msg: "object assignment must be an identifier set, not a tuple set"}
		}
		return nil
	}
	return &TypeError{Module: moduleName, Instance: instName, Field: a.Name,
		Msg: fmt.Sprintf("%v: '%s' is neither a declared object nor a relation of schema '%s'", ErrUnknownRelation, a.Name, schema.Name)}
}

func checkTupleShape(moduleName, instName string, schema *Schema, rel *Relation, tup Tuple) error {
	declared := map[string]Field{}
	for _, f := range rel.Fields {
		declared[f.Name] = f
	}
	seen := map[string]bool{}
	for _, fname := range tup.FieldOrder {
		f, ok := declared[fname]
		if !ok {
			return &TypeError{Module: moduleName, Instance: instName, Field: fname,
				Msg: fmt.Sprintf("%v: relation '%s' has no field '%s'", ErrFieldMismatch, rel.Name, fname)}
		}
		if seen[fname] {
			return &TypeError{Module: moduleName, Instance: instName, Field: fname,
				Msg: fmt.Sprintf("%v: duplicate field '%s' in tuple of '%s'", ErrFieldMismatch, fname, rel.Name)}
		}
		seen[fname] = true
		val := tup.Fields[fname]
		// Implicit value introduction: a value not previously declared as
		// an object identifier is allowed only when the field's declared
		// type is an Object type of the schema (not a relation, and not
		// ambiguous across subtypes) — spec.md §4.2 check 3.
		if !schema.HasObject(f.Type) && val != "" {
			return &TypeError{Module: moduleName, Instance: instName, Field: fname,
				Msg: fmt.Sprintf("field '%s' of relation '%s' has non-object type '%s'; implicit value introduction is not allowed", fname, rel.Name, f.Type)}
		}
	}
	if len(seen) != len(declared) {
		for fname := range declared {
			if !seen[fname] {
				return &TypeError{Module: moduleName, Instance: instName, Field: fname,
					Msg: fmt.Sprintf("%v: tuple of '%s' is missing field '%s'", ErrFieldMismatch, rel.Name, fname)}
			}
		}
	}
	return nil
}
