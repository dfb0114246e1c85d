package core

import "fmt"

// typing R: <builtin-name> rules verify that a relation's tuples are
// consistent with a small fixed set of differential-geometry facts
// recorded via four designated supporting relations: FormOn(form,
// manifold), FormDegree(form, degree), MetricOn(manifold), and
// ManifoldDimension(manifold, dim). Facts the supporting relations do not
// (yet) record are "producible" rather than violations (spec.md §4.2) —
// the rule only rejects a tuple when the supporting facts it DOES find
// are mutually inconsistent.
const (
	ruleManifoldIncrementsDegree = "preserves_manifold_and_increments_degree"
	ruleManifoldAddsDegree       = "preserves_manifold_and_adds_degree"
	ruleMetricDualizesDegree     = "depends_on_metric_and_dualizes_degree"
)

// supportFacts indexes the four designated supporting relations once per
// typing check so repeated lookups are O(1).
type supportFacts struct {
	formOn          map[string]string // form -> manifold
	formDegree      map[string]int    // form -> degree
	metricOn        map[string]bool   // manifold with a declared metric
	manifoldDim     map[string]int    // manifold -> dimension
}

func buildSupportFacts(tm *TypedModule) supportFacts {
	sf := supportFacts{
		formOn:      map[string]string{},
		formDegree:  map[string]int{},
		metricOn:    map[string]bool{},
		manifoldDim: map[string]int{},
	}
	fill2 := func(relation, keyField, valField string, dst map[string]string) {
		for _, tup := range anyRelationTuples(tm, relation) {
			dst[tup.Fields[keyField]] = tup.Fields[valField]
		}
	}
	fill2("FormOn", "form", "manifold", sf.formOn)
	for _, tup := range anyRelationTuples(tm, "FormDegree") {
		sf.formDegree[tup.Fields["form"]] = atoiSafe(tup.Fields["degree"])
	}
	for _, tup := range anyRelationTuples(tm, "MetricOn") {
		sf.metricOn[tup.Fields["manifold"]] = true
	}
	for _, tup := range anyRelationTuples(tm, "ManifoldDimension") {
		sf.manifoldDim[tup.Fields["manifold"]] = atoiSafe(tup.Fields["dim"])
	}
	return sf
}

// anyRelationTuples scans every instance for tuples of the named relation
// regardless of which schema declares it; supporting relations are looked
// up by name only, matching the certified subset's schema-agnostic
// treatment of well-known relation names.
func anyRelationTuples(tm *TypedModule, relation string) []Tuple {
	var out []Tuple
	for _, inst := range tm.Module.Instances {
		for _, a := range inst.Assignments {
			if a.Name == relation {
				out = append(out, a.Tuples...)
			}
		}
	}
	return out
}

func atoiSafe(s string) int {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// operandFields picks the two object-typed fields a typing rule reasons
// about: the declared source/target designation when present, otherwise
// the first and last declared fields.
func operandFields(rel *Relation) (from, to string, ok bool) {
	if rel.SourceField != "" && rel.TargetField != "" {
		return rel.SourceField, rel.TargetField, true
	}
	if len(rel.Fields) >= 2 {
		return rel.Fields[0].Name, rel.Fields[len(rel.Fields)-1].Name, true
	}
	return "", "", false
}

// addendField picks the third operand preserves_manifold_and_adds_degree
// needs: the wedge law deg(a∧b) = deg(a) + deg(b) relates three forms, not
// two, so the rule reads its addend from whichever declared field is
// neither the source nor the target. Relations with only two fields carry
// no such field; the rule is then producible rather than checked.
func addendField(rel *Relation, from, to string) (string, bool) {
	for _, f := range rel.Fields {
		if f.Name != from && f.Name != to {
			return f.Name, true
		}
	}
	return "", false
}

func checkTypingConstraint(tm *TypedModule, schema *Schema, c *Constraint) error {
	rel, ok := schema.LookupRelation(c.Relation)
	if !ok {
		return &TypeError{Module: tm.Module.Name, Msg: fmt.Sprintf("%v: typing constraint references unknown relation '%s'", ErrUnknownRelation, c.Relation)}
	}
	switch c.TypingRule {
	case ruleManifoldIncrementsDegree, ruleManifoldAddsDegree, ruleMetricDualizesDegree:
	default:
		return &TypeError{Module: tm.Module.Name, Msg: fmt.Sprintf("%v: typing rule '%s'", ErrUnknownConstraint, c.TypingRule)}
	}
	from, to, ok := operandFields(rel)
	if !ok {
		return nil // too few fields to reason about; nothing producible to check
	}
	var addend string
	if c.TypingRule == ruleManifoldAddsDegree {
		addend, _ = addendField(rel, from, to)
	}
	sf := buildSupportFacts(tm)
	for _, tup := range relationTuples(tm, c.Relation) {
		fv, tv := tup.Fields[from], tup.Fields[to]
		av := ""
		if addend != "" {
			av = tup.Fields[addend]
		}
		if err := checkTypingRuleOnPair(tm.Module.Name, c, sf, fv, tv, av); err != nil {
			return err
		}
	}
	return nil
}

func checkTypingRuleOnPair(moduleName string, c *Constraint, sf supportFacts, fv, tv, av string) error {
	fMan, fManOK := sf.formOn[fv]
	tMan, tManOK := sf.formOn[tv]
	fDeg, fDegOK := sf.formDegree[fv]
	tDeg, tDegOK := sf.formDegree[tv]

	switch c.TypingRule {
	case ruleManifoldIncrementsDegree, ruleManifoldAddsDegree:
		if fManOK && tManOK && fMan != tMan {
			return &TypeError{Module: moduleName, Field: c.Relation,
				Msg: fmt.Sprintf("%v: '%s' must preserve manifold but %s is on %s while %s is on %s", ErrConstraintFailed, c.TypingRule, fv, fMan, tv, tMan)}
		}
		if c.TypingRule == ruleManifoldIncrementsDegree {
			if fDegOK && tDegOK {
				want := fDeg + 1
				if tDeg != want {
					return &TypeError{Module: moduleName, Field: c.Relation,
						Msg: fmt.Sprintf("%v: '%s' expects degree %d on %s, found %d", ErrConstraintFailed, c.TypingRule, want, tv, tDeg)}
				}
			}
			break
		}
		// adds_degree: deg(a∧b) = deg(a) + deg(b) needs the addend's own
		// degree, not the target's — a fact not yet recorded is producible.
		aDeg, aDegOK := sf.formDegree[av]
		if fDegOK && tDegOK && aDegOK {
			want := fDeg + aDeg
			if tDeg != want {
				return &TypeError{Module: moduleName, Field: c.Relation,
					Msg: fmt.Sprintf("%v: '%s' expects degree %d on %s, found %d", ErrConstraintFailed, c.TypingRule, want, tv, tDeg)}
			}
		}
	case ruleMetricDualizesDegree:
		if fManOK && !sf.metricOn[fMan] {
			return nil // metric not yet declared: producible, not a violation
		}
		if fManOK && fDegOK && tDegOK {
			dim, dimOK := sf.manifoldDim[fMan]
			if dimOK && tDeg != dim-fDeg {
				return &TypeError{Module: moduleName, Field: c.Relation,
					Msg: fmt.Sprintf("%v: '%s' expects dual degree %d on %s, found %d", ErrConstraintFailed, c.TypingRule, dim-fDeg, tv, tDeg)}
			}
		}
	}
	return nil
}
