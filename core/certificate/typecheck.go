package certificate

import "axiograph/core"

// WellTypedProof is the axi_well_typed_v1 payload: spec.md §4.8's anchored
// summary `{module_name, schema_count, theory_count, instance_count,
// assignment_count, tuple_count}`.
type WellTypedProof struct {
	ModuleName      string `json:"module_name"`
	SchemaCount     int    `json:"schema_count"`
	TheoryCount     int    `json:"theory_count"`
	InstanceCount   int    `json:"instance_count"`
	AssignmentCount int    `json:"assignment_count"`
	TupleCount      int    `json:"tuple_count"`
}

// BuildAxiWellTypedV1 re-derives the well-typed summary from a
// TypedModule: the checker's re-parse-and-re-check is `core.Typecheck`
// itself, which a caller must have already run successfully to hold a
// *core.TypedModule at all.
func BuildAxiWellTypedV1(anchor *Anchor, tm *core.TypedModule) *Certificate {
	s := tm.Summarize()
	return newCertificate("axi_well_typed_v1", anchor, WellTypedProof{
		ModuleName:      s.ModuleName,
		SchemaCount:     s.SchemaCount,
		TheoryCount:     s.TheoryCount,
		InstanceCount:   s.InstanceCount,
		AssignmentCount: s.AssignmentCount,
		TupleCount:      s.TupleCount,
	})
}

// ConstraintsOkProof is the axi_constraints_ok_v1 payload: `{module_name,
// constraint_count, instance_count, check_count}`.
type ConstraintsOkProof struct {
	ModuleName      string `json:"module_name"`
	ConstraintCount int    `json:"constraint_count"`
	InstanceCount   int    `json:"instance_count"`
	CheckCount      int    `json:"check_count"`
}

// BuildAxiConstraintsOkV1 re-verifies the certified constraint subset via
// core.CheckConstraints and wraps its summary into a certificate. Returns
// an error (no certificate) if re-verification fails, matching the
// emission policy: a certificate is never produced for a result that
// doesn't actually hold.
func BuildAxiConstraintsOkV1(anchor *Anchor, tm *core.TypedModule) (*Certificate, error) {
	summary, err := core.CheckConstraints(tm)
	if err != nil {
		return nil, err
	}
	return newCertificate("axi_constraints_ok_v1", anchor, ConstraintsOkProof{
		ModuleName:      summary.ModuleName,
		ConstraintCount: summary.ConstraintCount,
		InstanceCount:   summary.InstanceCount,
		CheckCount:      summary.CheckCount,
	}), nil
}
