package certificate

import (
	"sort"

	"axiograph/core"
)

// Morphism is a schema morphism F: SourceSchema -> TargetSchema, mapping
// object and relation names (spec.md §9: "Dynamic polymorphism ...
// Cyclic and recursive structure ... represented via interfaces by ids").
// There is no `.axi` surface syntax for morphisms (spec.md's grammar
// never declares one); this is an internal, API-level input to the
// delta_f_v1 certificate rather than something parsed from source text.
type Morphism struct {
	Name         string
	SourceSchema string
	TargetSchema string
	ObjectMap    map[string]string // source object name -> target object name
	RelationMap  map[string]string // source relation name -> target relation name
}

// AssignmentIR is the JSON rendering of a core.Assignment.
type AssignmentIR struct {
	Name    string              `json:"name"`
	IsTuple bool                `json:"is_tuple"`
	Objects []string            `json:"objects,omitempty"`
	Tuples  []map[string]string `json:"tuples,omitempty"`
}

// InstanceIR is the JSON rendering of a core.Instance.
type InstanceIR struct {
	Name        string         `json:"name"`
	SchemaName  string         `json:"schema_name"`
	Assignments []AssignmentIR `json:"assignments"`
}

func assignmentIR(a *core.Assignment) AssignmentIR {
	ir := AssignmentIR{Name: a.Name, IsTuple: a.IsTuple, Objects: a.Objects}
	for _, t := range a.Tuples {
		ir.Tuples = append(ir.Tuples, t.Fields)
	}
	return ir
}

func findAssignment(inst *core.Instance, name string) (*core.Assignment, bool) {
	for _, a := range inst.Assignments {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// PullBack computes Δ_F(I) = I ∘ F: for every name X in F's domain
// (source object/relation names), the pulled-back instance's assignment
// for X is I's assignment for F(X). Names in F's domain with no matching
// assignment in I are simply absent from the result (I is not required
// to assign every name F maps).
func PullBack(m Morphism, target *core.Instance) *core.Instance {
	pb := &core.Instance{Name: target.Name + "@" + m.SourceSchema, SchemaName: m.SourceSchema}
	for srcObj, tgtObj := range m.ObjectMap {
		if a, ok := findAssignment(target, tgtObj); ok {
			pb.Assignments = append(pb.Assignments, &core.Assignment{Name: srcObj, IsTuple: a.IsTuple, Objects: a.Objects})
		}
	}
	for srcRel, tgtRel := range m.RelationMap {
		if a, ok := findAssignment(target, tgtRel); ok {
			pb.Assignments = append(pb.Assignments, &core.Assignment{Name: srcRel, IsTuple: a.IsTuple, Tuples: a.Tuples})
		}
	}
	sort.Slice(pb.Assignments, func(i, j int) bool { return pb.Assignments[i].Name < pb.Assignments[j].Name })
	return pb
}

// DeltaFProof is the delta_f_v1 payload: `{morphism, source_schema,
// target_instance, pulled_back_instance}` (spec.md §4.8).
type DeltaFProof struct {
	Morphism           string     `json:"morphism"`
	SourceSchema       string     `json:"source_schema"`
	TargetInstance     string     `json:"target_instance"`
	PulledBackInstance InstanceIR `json:"pulled_back_instance"`
}

// BuildDeltaFV1 computes the pullback and renders it as a certificate;
// the checker's replay is `PullBack(m, target)` again, compared for
// equality (spec.md §4.8: "checker recomputes Δ_F(I) = I ∘ F and
// compares").
func BuildDeltaFV1(anchor *Anchor, m Morphism, target *core.Instance) *Certificate {
	pb := PullBack(m, target)
	ir := InstanceIR{Name: pb.Name, SchemaName: pb.SchemaName}
	for _, a := range pb.Assignments {
		ir.Assignments = append(ir.Assignments, assignmentIR(a))
	}
	return newCertificate("delta_f_v1", anchor, DeltaFProof{
		Morphism:           m.Name,
		SourceSchema:       m.SourceSchema,
		TargetInstance:     target.Name,
		PulledBackInstance: ir,
	})
}
