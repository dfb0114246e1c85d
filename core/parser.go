package core

import (
	"strings"
)

// Parse turns .axi source bytes into a Module AST. It is the sole
// external dependency boundary named in spec.md §6: a `parse_axi(bytes)`
// callback. On error it returns a single *ParseError with a line/column
// locator.
func Parse(src []byte) (*Module, error) {
	lx := newLexer(string(src))
	toks, err := lx.tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseModule()
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; if p.pos < len(p.toks)-1 { p.pos++ }; return t }

func (p *parser) errf(msg string) *ParseError {
	t := p.cur()
	return &ParseError{Line: t.line, Col: t.col, Msg: msg}
}

func (p *parser) skipNewlines() {
	for p.cur().kind == tokNewline {
		p.next()
	}
}

func (p *parser) expectPunct(s string) (token, error) {
	t := p.cur()
	if t.kind != tokPunct || t.text != s {
		return token{}, p.errf("expected '" + s + "'")
	}
	return p.next(), nil
}

func (p *parser) expectIdentText(s string) error {
	t := p.cur()
	if t.kind != tokIdent || t.text != s {
		return p.errf("expected '" + s + "'")
	}
	p.next()
	return nil
}

func (p *parser) expectIdent() (token, error) {
	t := p.cur()
	if t.kind != tokIdent {
		return token{}, p.errf("expected identifier")
	}
	return p.next(), nil
}

// parseModule dispatches on dialect: a file starting with `module` is
// axi_v1; a file starting directly with `schema` is the legacy
// schema-only dialect. Both normalize to the same Module AST shape.
func (p *parser) parseModule() (*Module, error) {
	p.skipNewlines()
	if p.cur().kind == tokIdent && p.cur().text == "module" {
		return p.parseUnifiedModule()
	}
	if p.cur().kind == tokIdent && p.cur().text == "schema" {
		return p.parseLegacySchemaOnly()
	}
	if p.cur().kind == tokEOF {
		return &Module{Dialect: "axi_v1"}, nil
	}
	return nil, p.errf("unknown top-level keyword '" + p.cur().text + "'")
}

func (p *parser) parseUnifiedModule() (*Module, error) {
	start := p.cur()
	if err := p.expectIdentText("module"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	mod := &Module{Name: name.text, Dialect: "axi_v1", Span: Span{start.line, start.col}}
	seen := map[string]bool{}
	for p.cur().kind != tokEOF {
		p.skipNewlines()
		if p.cur().kind == tokEOF {
			break
		}
		kw := p.cur()
		if kw.kind != tokIdent {
			return nil, p.errf("expected top-level declaration")
		}
		switch kw.text {
		case "schema":
			s, err := p.parseSchema()
			if err != nil {
				return nil, err
			}
			if seen["schema:"+s.Name] {
				return nil, p.errf("duplicate schema name '" + s.Name + "'")
			}
			seen["schema:"+s.Name] = true
			mod.Schemas = append(mod.Schemas, s)
		case "theory":
			t, err := p.parseTheory()
			if err != nil {
				return nil, err
			}
			if seen["theory:"+t.Name] {
				return nil, p.errf("duplicate theory name '" + t.Name + "'")
			}
			seen["theory:"+t.Name] = true
			mod.Theories = append(mod.Theories, t)
		case "instance":
			inst, err := p.parseInstance()
			if err != nil {
				return nil, err
			}
			if seen["instance:"+inst.Name] {
				return nil, p.errf("duplicate instance name '" + inst.Name + "'")
			}
			seen["instance:"+inst.Name] = true
			mod.Instances = append(mod.Instances, inst)
		case "rewrite":
			rs, err := p.parseRewriteRuleSet()
			if err != nil {
				return nil, err
			}
			mod.Rewrites = append(mod.Rewrites, rs)
		default:
			return nil, p.errf("unknown top-level keyword '" + kw.text + "'")
		}
		p.skipNewlines()
	}
	return mod, nil
}

// parseLegacySchemaOnly accepts a bare `schema S: ...` file with no module
// wrapper and normalizes it into a single-schema Module.
func (p *parser) parseLegacySchemaOnly() (*Module, error) {
	s, err := p.parseSchema()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if p.cur().kind != tokEOF {
		return nil, p.errf("legacy schema-only dialect accepts a single schema block")
	}
	return &Module{Name: s.Name, Dialect: "legacy-schema", Schemas: []*Schema{s}}, nil
}

func (p *parser) expectBlockOpen() error {
	if _, err := p.expectPunct(":"); err != nil {
		return err
	}
	p.skipNewlines()
	if p.cur().kind != tokIndent {
		return p.errf("expected indented block body")
	}
	p.next()
	return nil
}

func (p *parser) atBlockEnd() bool {
	p.skipBlankNewlines()
	return p.cur().kind == tokDedent || p.cur().kind == tokEOF
}

// skipBlankNewlines consumes newlines without crossing a dedent, so block
// termination can be probed without losing the dedent token itself.
func (p *parser) skipBlankNewlines() {
	for p.cur().kind == tokNewline {
		p.next()
	}
}

func (p *parser) expectBlockClose() error {
	if p.cur().kind == tokDedent {
		p.next()
		return nil
	}
	if p.cur().kind == tokEOF {
		return nil
	}
	return p.errf("expected dedent closing block")
}

func (p *parser) parseSchema() (*Schema, error) {
	start := p.cur()
	if err := p.expectIdentText("schema"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	s := &Schema{Name: name.text, Span: Span{start.line, start.col}}
	if err := p.expectBlockOpen(); err != nil {
		return nil, err
	}
	for !p.atBlockEnd() {
		switch {
		case p.cur().kind == tokIdent && p.cur().text == "object":
			p.next()
			obj, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			s.Objects = append(s.Objects, obj.text)
		case p.cur().kind == tokIdent && p.peekIsSubtype():
			sub, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct("<"); err != nil {
				return nil, err
			}
			super, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			s.Subtypes = append(s.Subtypes, Subtype{Sub: sub.text, Super: super.text, Span: Span{sub.line, sub.col}})
		case p.cur().kind == tokIdent:
			rel, err := p.parseRelation()
			if err != nil {
				return nil, err
			}
			s.Relations = append(s.Relations, rel)
		default:
			return nil, p.errf("expected schema member")
		}
		p.skipNewlines()
	}
	if err := p.expectBlockClose(); err != nil {
		return nil, err
	}
	return s, nil
}

// peekIsSubtype reports whether the current identifier is immediately
// followed by '<', distinguishing `A < B` from a relation declaration
// `A(...)` without consuming tokens.
func (p *parser) peekIsSubtype() bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	nx := p.toks[p.pos+1]
	return nx.kind == tokPunct && nx.text == "<"
}

func (p *parser) parseRelation() (*Relation, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	rel := &Relation{Name: name.text, Span: Span{name.line, name.col}}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for {
		if p.cur().kind == tokPunct && p.cur().text == ")" {
			break
		}
		if p.cur().kind == tokIdent && (p.cur().text == "source" || p.cur().text == "target") {
			isSource := p.cur().text == "source"
			p.next()
			if _, err := p.expectPunct("="); err != nil {
				return nil, err
			}
			fname, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if isSource {
				rel.SourceField = fname.text
			} else {
				rel.TargetField = fname.text
			}
		} else {
			f, err := p.parseField()
			if err != nil {
				return nil, err
			}
			for _, existing := range rel.Fields {
				if existing.Name == f.Name {
					return nil, p.errf("duplicate field name '" + f.Name + "'")
				}
			}
			rel.Fields = append(rel.Fields, f)
		}
		if p.cur().kind == tokPunct && p.cur().text == "," {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return rel, nil
}

func (p *parser) parseField() (Field, error) {
	name, err := p.expectIdent()
	if err != nil {
		return Field{}, err
	}
	if _, err := p.expectPunct(":"); err != nil {
		return Field{}, err
	}
	typ, err := p.expectIdent()
	if err != nil {
		return Field{}, err
	}
	f := Field{Name: name.text, Type: typ.text}
	for p.cur().kind == tokPunct && p.cur().text == "@" {
		p.next()
		ann, err := p.expectIdent()
		if err != nil {
			return Field{}, err
		}
		switch ann.text {
		case "context":
			f.Context = true
		case "temporal":
			f.Temporal = true
		default:
			return Field{}, p.errf("unknown field annotation '@" + ann.text + "'")
		}
	}
	return f, nil
}

func (p *parser) parseTheory() (*Theory, error) {
	start := p.cur()
	if err := p.expectIdentText("theory"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentText("on"); err != nil {
		return nil, err
	}
	schemaName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	th := &Theory{Name: name.text, SchemaName: schemaName.text, Span: Span{start.line, start.col}}
	if err := p.expectBlockOpen(); err != nil {
		return nil, err
	}
	for !p.atBlockEnd() {
		c, err := p.parseConstraint()
		if err != nil {
			return nil, err
		}
		th.Constraints = append(th.Constraints, c)
		p.skipNewlines()
	}
	if err := p.expectBlockClose(); err != nil {
		return nil, err
	}
	return th, nil
}

func (p *parser) parseConstraint() (*Constraint, error) {
	kw := p.cur()
	switch {
	case kw.kind == tokIdent && kw.text == "key":
		p.next()
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var fields []string
		for {
			f, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f.text)
			if p.cur().kind == tokPunct && p.cur().text == "," {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &Constraint{Kind: ConstraintKey, Relation: rel.text, KeyFields: fields, Span: Span{kw.line, kw.col}}, nil

	case kw.kind == tokIdent && kw.text == "functional":
		p.next()
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("."); err != nil {
			return nil, err
		}
		from, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("->"); err != nil {
			return nil, err
		}
		to, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.cur().kind == tokPunct && p.cur().text == "." {
			p.next()
			to, err = p.expectIdent()
			if err != nil {
				return nil, err
			}
		}
		return &Constraint{Kind: ConstraintFunctional, Relation: rel.text, FuncFrom: from.text, FuncTo: to.text, Span: Span{kw.line, kw.col}}, nil

	case kw.kind == tokIdent && (kw.text == "symmetric" || kw.text == "transitive"):
		closure := ConstraintSymmetric
		if kw.text == "transitive" {
			closure = ConstraintTransitive
		}
		p.next()
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		c := &Constraint{Kind: closure, Relation: rel.text, Span: Span{kw.line, kw.col}}
		for p.cur().kind == tokIdent && (p.cur().text == "where" || p.cur().text == "on" || p.cur().text == "param") {
			switch p.cur().text {
			case "where":
				p.next()
				var parts []string
				for p.cur().kind != tokNewline && p.cur().kind != tokEOF &&
					!(p.cur().kind == tokIdent && (p.cur().text == "on" || p.cur().text == "param")) {
					parts = append(parts, p.cur().text)
					p.next()
				}
				c.Where = strings.Join(parts, " ")
			case "on":
				p.next()
				fields, err := p.parseParenIdentPair()
				if err != nil {
					return nil, err
				}
				c.CarrierFields = fields
			case "param":
				p.next()
				fields, err := p.parseParenIdentList()
				if err != nil {
					return nil, err
				}
				c.ParamFields = fields
			}
		}
		return c, nil

	case kw.kind == tokIdent && kw.text == "typing":
		p.next()
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		ruleName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Constraint{Kind: ConstraintTyping, Relation: rel.text, TypingRule: ruleName.text, Span: Span{kw.line, kw.col}}, nil

	case kw.kind == tokIdent:
		// Opaque named block: NAME = { ... raw ... }
		name := p.next()
		if _, err := p.expectPunct("="); err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("{"); err != nil {
			return nil, err
		}
		var parts []string
		depth := 1
		for depth > 0 {
			t := p.cur()
			if t.kind == tokEOF {
				return nil, p.errf("unbalanced delimiter")
			}
			if t.kind == tokPunct && t.text == "{" {
				depth++
			}
			if t.kind == tokPunct && t.text == "}" {
				depth--
				if depth == 0 {
					p.next()
					break
				}
			}
			if t.kind != tokNewline {
				parts = append(parts, t.text)
			}
			p.next()
		}
		return &Constraint{Kind: ConstraintOpaque, OpaqueName: name.text, OpaqueBody: strings.Join(parts, " "), Span: Span{name.line, name.col}}, nil
	default:
		return nil, p.errf("expected constraint")
	}
}

func (p *parser) parseParenIdentPair() ([]string, error) {
	ids, err := p.parseParenIdentList()
	if err != nil {
		return nil, err
	}
	if len(ids) != 2 {
		return nil, p.errf("expected exactly two fields in carrier pair")
	}
	return ids, nil
}

func (p *parser) parseParenIdentList() ([]string, error) {
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var ids []string
	for {
		id, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id.text)
		if p.cur().kind == tokPunct && p.cur().text == "," {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *parser) parseInstance() (*Instance, error) {
	start := p.cur()
	if err := p.expectIdentText("instance"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentText("of"); err != nil {
		return nil, err
	}
	schemaName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	inst := &Instance{Name: name.text, SchemaName: schemaName.text, Span: Span{start.line, start.col}}
	if err := p.expectBlockOpen(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for !p.atBlockEnd() {
		a, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		if seen[a.Name] {
			return nil, p.errf("duplicate assignment for '" + a.Name + "'")
		}
		seen[a.Name] = true
		inst.Assignments = append(inst.Assignments, a)
		p.skipNewlines()
	}
	if err := p.expectBlockClose(); err != nil {
		return nil, err
	}
	return inst, nil
}

func (p *parser) parseAssignment() (*Assignment, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("="); err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	a := &Assignment{Name: name.text, Span: Span{name.line, name.col}}
	if p.cur().kind == tokPunct && p.cur().text == "}" {
		p.next()
		return a, nil
	}
	// Disambiguate: a tuple set starts each element with '(' ; an object
	// set starts each element with an identifier.
	if p.cur().kind == tokPunct && p.cur().text == "(" {
		a.IsTuple = true
		for {
			tup, err := p.parseTuple()
			if err != nil {
				return nil, err
			}
			a.Tuples = append(a.Tuples, tup)
			if p.cur().kind == tokPunct && p.cur().text == "," {
				p.next()
				continue
			}
			break
		}
	} else {
		for {
			id, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			a.Objects = append(a.Objects, id.text)
			if p.cur().kind == tokPunct && p.cur().text == "," {
				p.next()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return a, nil
}

func (p *parser) parseTuple() (Tuple, error) {
	start := p.cur()
	if _, err := p.expectPunct("("); err != nil {
		return Tuple{}, err
	}
	t := Tuple{Fields: map[string]string{}, Span: Span{start.line, start.col}}
	for {
		if p.cur().kind == tokPunct && p.cur().text == ")" {
			break
		}
		fname, err := p.expectIdent()
		if err != nil {
			return Tuple{}, err
		}
		if _, err := p.expectPunct("="); err != nil {
			return Tuple{}, err
		}
		var val string
		if p.cur().kind == tokString {
			val = p.next().text
		} else {
			id, err := p.expectIdent()
			if err != nil {
				return Tuple{}, err
			}
			val = id.text
		}
		if _, dup := t.Fields[fname.text]; dup {
			return Tuple{}, p.errf("duplicate field '" + fname.text + "' in tuple")
		}
		t.Fields[fname.text] = val
		t.FieldOrder = append(t.FieldOrder, fname.text)
		if p.cur().kind == tokPunct && p.cur().text == "," {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return Tuple{}, err
	}
	return t, nil
}

func (p *parser) parseRewriteRuleSet() (*RewriteRuleSet, error) {
	start := p.cur()
	if err := p.expectIdentText("rewrite"); err != nil {
		return nil, err
	}
	if err := p.expectIdentText("rules"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentText("on"); err != nil {
		return nil, err
	}
	schemaName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	rs := &RewriteRuleSet{Name: name.text, SchemaName: schemaName.text, Span: Span{start.line, start.col}}
	if err := p.expectBlockOpen(); err != nil {
		return nil, err
	}
	for !p.atBlockEnd() {
		ruleName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		lhs, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectArrow(); err != nil {
			return nil, err
		}
		rhs, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, &RewriteRule{Name: ruleName.text, LHS: lhs, RHS: rhs, Span: Span{ruleName.line, ruleName.col}})
		p.skipNewlines()
	}
	if err := p.expectBlockClose(); err != nil {
		return nil, err
	}
	return rs, nil
}

// expectArrow consumes the two-token '=' '>' sequence forming a rewrite
// rule's "=>" separator.
func (p *parser) expectArrow() error {
	if _, err := p.expectPunct("="); err != nil {
		return err
	}
	if _, err := p.expectPunct(">"); err != nil {
		return err
	}
	return nil
}

func (p *parser) parsePathExpr() (*PathExpr, error) {
	kw, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var pe *PathExpr
	switch kw.text {
	case "reflexive":
		e, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		pe = &PathExpr{Kind: PathReflexive, Entity: e.text}
	case "step":
		from, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(","); err != nil {
			return nil, err
		}
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(","); err != nil {
			return nil, err
		}
		to, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		pe = &PathExpr{Kind: PathStep, From: from.text, Rel: rel.text, To: to.text}
	case "trans":
		left, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(","); err != nil {
			return nil, err
		}
		right, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		pe = &PathExpr{Kind: PathTrans, Left: left, Right: right}
	case "inv":
		inner, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		pe = &PathExpr{Kind: PathInv, Inv: inner}
	default:
		return nil, p.errf("unknown path expression constructor '" + kw.text + "'")
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return pe, nil
}
