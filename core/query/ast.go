// Package query implements AxQL: the parser, elaborator, planner, and
// executor for Axiograph's query language (spec.md §4.7).
package query

import "strconv"

// ParseError is an AxQL diagnostic carrying a source locator, mirroring
// core.ParseError's shape for the .axi grammar.
type ParseError struct {
	Line, Col int
	Msg       string
}

func (e *ParseError) Error() string {
	return "line " + strconv.Itoa(e.Line) + ", col " + strconv.Itoa(e.Col) + ": " + e.Msg
}

// AtomKind tags an AxQL atom constructor.
type AtomKind int

const (
	AtomType AtomKind = iota
	AtomAttr
	AtomEdge
	AtomFact
	AtomHas
	AtomAttrs
	AtomShape
)

// Term is a value position in an atom: either a bound/free variable or a
// literal constant, distinguished the way the .axi grammar distinguishes
// identifiers from string literals.
type Term struct {
	IsVar bool
	Var   string // variable name, no leading '?'
	Lit   string // literal value
}

// Field is one `name=term` pair inside a fact atom, has(...), or
// attrs(...) macro.
type Field struct {
	Name string
	Val  Term
}

// Atom is one conjunct of an AxQL query, a tagged union over AtomKind
// mirroring the module package's PathExpr convention: only the fields
// relevant to Kind are populated.
type Atom struct {
	Kind AtomKind

	// AtomType: ?Var is [Schema.]Type
	Var    string
	Schema string
	Type   string

	// AtomAttr: attr(?Var, "Key", Val) / ?Var.Key = Val
	Key string
	Val Term

	// AtomEdge: From -Edge-> To (From/To are variable names)
	From string
	Edge *RPQExpr
	To   string

	// AtomFact: [FactVar =] [Schema.]Relation(Fields...)
	FactVar  string // empty if the fact node itself is not bound
	Relation string
	Fields   []Field

	// AtomHas: has(?Var, Rel1, Rel2, ...) — Var has an outgoing edge of
	// every named relation.
	HasRelations []string

	// AtomAttrs: attrs(?Var, k=v, ...) — conjunction of attr atoms.
	AttrFields []Field

	// AtomShape: ?Var { Atoms... } — Atoms implicitly share Var.
	ShapeAtoms []Atom

	// Modifiers, valid on AtomEdge/AtomFact; zero value means unset.
	Contexts     []string // "in C" (len 1, certifiable) or "in {C1,C2}" (union, execution-only)
	ContextUnion bool
	MaxHops      int    // 0 = unbounded
	MinConf      uint32 // fixed-point numerator over 10^6, 0 = unset
	Approx       string // "contains" | "fts" | "fuzzy"; "" = exact
	FuzzyDist    int    // fuzzy atom only; 0 = use the executor's configured default
}

// Conjunct is one branch of a UCQ disjunction.
type Conjunct struct {
	Atoms []Atom
}

// Query is a parsed AxQL query: `select Vars where Conjunct (or Conjunct)* [limit N]`.
type Query struct {
	Vars      []string
	Disjuncts []Conjunct
	Limit     int // 0 = unset
}

// RPQKind tags a regular-path-expression constructor used by edge-atom
// labels.
type RPQKind int

const (
	RPQLabel RPQKind = iota
	RPQConcat
	RPQAlt
	RPQStar
	RPQPlus
	RPQOpt
)

// RPQExpr is a regular path expression over relation labels: a single
// label, concatenation (`/`), alternation (`|`), or a Kleene-style
// postfix quantifier (`*`, `+`, `?`) applied to a sub-expression.
type RPQExpr struct {
	Kind  RPQKind
	Label string // RPQLabel; may be schema-qualified "Schema.Rel"

	Left, Right *RPQExpr // RPQConcat, RPQAlt
	Sub         *RPQExpr // RPQStar, RPQPlus, RPQOpt
}
