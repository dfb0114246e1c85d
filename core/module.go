// Package core implements Axiograph's canonical module parser and
// typechecker (C1/C2), the PathDB in-memory model and binary codec (C4),
// and the import pipeline that materializes modules and WAL overlays into
// PathDB (C6).
package core

// Span locates a token or node in the original .axi source text.
type Span struct {
	Line, Col int
}

// Module is a named unit containing schemas, theories, instances and
// optional rewrite rules, per spec.md §3.
type Module struct {
	Name     string
	Schemas  []*Schema
	Theories []*Theory
	Instances []*Instance
	Rewrites []*RewriteRuleSet
	Span     Span

	// Dialect records which surface produced this AST ("axi_v1" or
	// "legacy-schema"); both normalize to this same structure.
	Dialect string
}

// Field is a relation argument: a name, a declared type, and optional
// annotations (@context marks the ctx field, @temporal marks the time
// field).
type Field struct {
	Name       string
	Type       string
	Context    bool
	Temporal   bool
}

// Relation is a signature R(f1: T1, ..., fn: Tn). SourceField/TargetField
// are set when the declaration designates which fields form the derived
// traversal edge (import pipeline step 3); both empty means "field edges
// only, no traversal edge."
type Relation struct {
	Name        string
	Fields      []Field
	SourceField string
	TargetField string
	Span        Span
}

// Subtype records a declared `A < B` relation between two object names.
type Subtype struct {
	Sub, Super string
	Span       Span
}

// Schema is a set of Object declarations, Subtype relations, and Relation
// signatures.
type Schema struct {
	Name      string
	Objects   []string
	Subtypes  []Subtype
	Relations []*Relation
	Span      Span
}

// LookupRelation finds a relation by name declared directly on the schema.
func (s *Schema) LookupRelation(name string) (*Relation, bool) {
	for _, r := range s.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// HasObject reports whether name is a declared object type of the schema.
func (s *Schema) HasObject(name string) bool {
	for _, o := range s.Objects {
		if o == name {
			return true
		}
	}
	return false
}

// ConstraintKind tags the shape of a Theory constraint.
type ConstraintKind int

const (
	ConstraintKey ConstraintKind = iota
	ConstraintFunctional
	ConstraintSymmetric
	ConstraintTransitive
	ConstraintTyping
	ConstraintOpaque
)

// Constraint is one member of a Theory, tagged by kind (spec.md §3).
type Constraint struct {
	Kind ConstraintKind

	// key R(fi, fj, ...)
	Relation string
	KeyFields []string

	// functional R.fi -> R.fj
	FuncFrom, FuncTo string

	// symmetric/transitive R [where ...] [on (fa, fb)] [param (p1,...)]
	CarrierFields []string
	ParamFields   []string
	Where         string

	// typing R: <builtin-name>
	TypingRule string

	// opaque named blocks: preserved verbatim, not interpreted.
	OpaqueName string
	OpaqueBody string

	Span Span
}

// Theory is a set of Constraints attached to a schema.
type Theory struct {
	Name        string
	SchemaName  string
	Constraints []*Constraint
	Span        Span
}

// Tuple assigns a value (an identifier, possibly freshly introduced) to
// every declared field of a relation.
type Tuple struct {
	Fields map[string]string
	// FieldOrder preserves source order for deterministic canonicalization
	// independent of map iteration order.
	FieldOrder []string
	Span       Span
}

// Assignment is either an enumerated set of object identifiers (for a
// declared Object/Subtype) or a set of tuples (for a declared Relation) —
// spec.md §4.2 check 2 requires these never mix within one assignment.
type Assignment struct {
	Name    string // object type name or relation name
	IsTuple bool
	Objects []string
	Tuples  []Tuple
	Span    Span
}

// Instance assigns objects/tuples/subtypes to a schema.
type Instance struct {
	Name        string
	SchemaName  string
	Assignments []*Assignment
	Span        Span
}

// RewriteRuleSet is a named, digest-referenced set of path-rewrite rules
// attached to a schema.
type RewriteRuleSet struct {
	Name       string
	SchemaName string
	Rules      []*RewriteRule
	Span       Span
}

// RewriteRule is one named rewrite `lhs => rhs` over path expressions.
type RewriteRule struct {
	Name string
	LHS  *PathExpr
	RHS  *PathExpr
	Span Span
}

// PathExprKind tags path-expression constructors (normalize_path_v2,
// spec.md §4.8).
type PathExprKind int

const (
	PathReflexive PathExprKind = iota
	PathStep
	PathTrans
	PathInv
)

// PathExpr is a path expression tree: reflexive(entity), step(a, rel, b),
// trans(left, right), inv(path).
type PathExpr struct {
	Kind PathExprKind

	// reflexive
	Entity string

	// step
	From, Rel, To string

	// trans
	Left, Right *PathExpr

	// inv
	Inv *PathExpr
}
