package query

import "strconv"

// Parse turns AxQL source text into a Query AST (spec.md §4.7's surface
// grammar). On error it returns a single *ParseError with a line/column
// locator, mirroring core.Parse's .axi contract.
func Parse(src string) (*Query, error) {
	toks, err := newQLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := &qparser{toks: toks}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != qTokEOF {
		return nil, p.errf("unexpected trailing input after query")
	}
	return q, nil
}

type qparser struct {
	toks []qtoken
	pos  int
}

func (p *qparser) cur() qtoken { return p.toks[p.pos] }

func (p *qparser) peekAt(n int) qtoken {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *qparser) next() qtoken {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *qparser) errf(msg string) *ParseError {
	t := p.cur()
	return &ParseError{Line: t.line, Col: t.col, Msg: msg}
}

func (p *qparser) expectPunct(s string) error {
	t := p.cur()
	if t.kind != qTokPunct || t.text != s {
		return p.errf("expected '" + s + "'")
	}
	p.next()
	return nil
}

func (p *qparser) expectIdentText(s string) error {
	t := p.cur()
	if t.kind != qTokIdent || t.text != s {
		return p.errf("expected '" + s + "'")
	}
	p.next()
	return nil
}

func (p *qparser) isIdentText(s string) bool {
	t := p.cur()
	return t.kind == qTokIdent && t.text == s
}

func (p *qparser) expectIdent() (string, error) {
	t := p.cur()
	if t.kind != qTokIdent {
		return "", p.errf("expected identifier")
	}
	p.next()
	return t.text, nil
}

func (p *qparser) expectVar() (string, error) {
	t := p.cur()
	if t.kind != qTokVar {
		return "", p.errf("expected a variable (?name)")
	}
	p.next()
	return t.text, nil
}

func (p *qparser) parseQuery() (*Query, error) {
	if err := p.expectIdentText("select"); err != nil {
		return nil, err
	}
	vars, err := p.parseVarList()
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentText("where"); err != nil {
		return nil, err
	}
	c, err := p.parseConjunct()
	if err != nil {
		return nil, err
	}
	disjuncts := []Conjunct{c}
	for p.isIdentText("or") {
		p.next()
		c2, err := p.parseConjunct()
		if err != nil {
			return nil, err
		}
		disjuncts = append(disjuncts, c2)
	}
	limit := 0
	if p.isIdentText("limit") {
		p.next()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		limit = n
	}
	return &Query{Vars: vars, Disjuncts: disjuncts, Limit: limit}, nil
}

func (p *qparser) parseVarList() ([]string, error) {
	first, err := p.expectVar()
	if err != nil {
		return nil, err
	}
	vars := []string{first}
	for p.cur().kind == qTokVar || (p.cur().kind == qTokPunct && p.cur().text == ",") {
		if p.cur().kind == qTokPunct {
			p.next()
		}
		v, err := p.expectVar()
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

func (p *qparser) parseConjunct() (Conjunct, error) {
	a, err := p.parseAtom()
	if err != nil {
		return Conjunct{}, err
	}
	atoms := []Atom{a}
	for p.cur().kind == qTokPunct && p.cur().text == "," {
		p.next()
		a2, err := p.parseAtom()
		if err != nil {
			return Conjunct{}, err
		}
		atoms = append(atoms, a2)
	}
	return Conjunct{Atoms: atoms}, nil
}

func (p *qparser) parseIntLiteral() (int, error) {
	t := p.cur()
	if t.kind != qTokNumber {
		return 0, p.errf("expected a number")
	}
	p.next()
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, &ParseError{Line: t.line, Col: t.col, Msg: "invalid integer literal '" + t.text + "'"}
	}
	return n, nil
}

func (p *qparser) parseFloatLiteral() (float64, error) {
	t := p.cur()
	if t.kind != qTokNumber {
		return 0, p.errf("expected a number")
	}
	p.next()
	f, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, &ParseError{Line: t.line, Col: t.col, Msg: "invalid number literal '" + t.text + "'"}
	}
	return f, nil
}

// parseAtom dispatches on the lookahead token shape to one of the atom
// productions in spec.md §4.7.
func (p *qparser) parseAtom() (Atom, error) {
	t := p.cur()
	switch {
	case t.kind == qTokVar:
		return p.parseVarLedAtom()
	case t.kind == qTokIdent && t.text == "has":
		return p.parseHasAtom()
	case t.kind == qTokIdent && t.text == "attrs":
		return p.parseAttrsAtom()
	case t.kind == qTokIdent && t.text == "attr":
		return p.parseAttrCallAtom()
	case t.kind == qTokIdent && (t.text == "contains" || t.text == "fts" || t.text == "fuzzy"):
		return p.parseApproxAtom(t.text)
	case t.kind == qTokIdent:
		return p.parseFactAtom("")
	default:
		return Atom{}, p.errf("expected an atom")
	}
}

func (p *qparser) parseVarLedAtom() (Atom, error) {
	name, err := p.expectVar()
	if err != nil {
		return Atom{}, err
	}
	la := p.cur()
	switch {
	case la.kind == qTokPunct && la.text == "-":
		return p.parseEdgeAtom(name)
	case la.kind == qTokIdent && la.text == "is":
		p.next()
		return p.parseTypeAtomTail(name)
	case la.kind == qTokPunct && la.text == ":":
		p.next()
		return p.parseTypeAtomTail(name)
	case la.kind == qTokPunct && la.text == ".":
		p.next()
		return p.parseAttrShorthandTail(name)
	case la.kind == qTokPunct && la.text == "{":
		return p.parseShapeAtomTail(name)
	case la.kind == qTokPunct && la.text == "=":
		p.next()
		return p.parseFactAtom(name)
	default:
		return Atom{}, p.errf("unrecognized atom starting with a variable")
	}
}

func (p *qparser) parseTypeAtomTail(v string) (Atom, error) {
	first, err := p.expectIdent()
	if err != nil {
		return Atom{}, err
	}
	schema, typ := "", first
	if p.cur().kind == qTokPunct && p.cur().text == "." {
		p.next()
		typ, err = p.expectIdent()
		if err != nil {
			return Atom{}, err
		}
		schema = first
	}
	return Atom{Kind: AtomType, Var: v, Schema: schema, Type: typ}, nil
}

func (p *qparser) parseAttrShorthandTail(v string) (Atom, error) {
	key, err := p.expectIdent()
	if err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct("="); err != nil {
		return Atom{}, err
	}
	val, err := p.parseTerm()
	if err != nil {
		return Atom{}, err
	}
	return Atom{Kind: AtomAttr, Var: v, Key: key, Val: val}, nil
}

func (p *qparser) parseShapeAtomTail(v string) (Atom, error) {
	if err := p.expectPunct("{"); err != nil {
		return Atom{}, err
	}
	var atoms []Atom
	for {
		a, err := p.parseShapeMember(v)
		if err != nil {
			return Atom{}, err
		}
		atoms = append(atoms, a)
		if p.cur().kind == qTokPunct && p.cur().text == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct("}"); err != nil {
		return Atom{}, err
	}
	return Atom{Kind: AtomShape, ShapeAtoms: atoms}, nil
}

// parseShapeMember parses one member of a shape literal: either the
// implicit `is T` / `.k = v` forms (bound to the enclosing shape var) or
// a fully explicit atom.
func (p *qparser) parseShapeMember(shapeVar string) (Atom, error) {
	t := p.cur()
	if t.kind == qTokIdent && t.text == "is" {
		p.next()
		return p.parseTypeAtomTail(shapeVar)
	}
	if t.kind == qTokPunct && t.text == ":" {
		p.next()
		return p.parseTypeAtomTail(shapeVar)
	}
	if t.kind == qTokPunct && t.text == "." {
		p.next()
		return p.parseAttrShorthandTail(shapeVar)
	}
	return p.parseAtom()
}

func (p *qparser) parseEdgeAtom(from string) (Atom, error) {
	if err := p.expectPunct("-"); err != nil {
		return Atom{}, err
	}
	rpq, err := p.parseRPQAlt()
	if err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct("->"); err != nil {
		return Atom{}, err
	}
	to, err := p.expectVar()
	if err != nil {
		return Atom{}, err
	}
	a := Atom{Kind: AtomEdge, From: from, Edge: rpq, To: to}
	if err := p.parseModifiers(&a); err != nil {
		return Atom{}, err
	}
	return a, nil
}

func (p *qparser) parseFactAtom(factVar string) (Atom, error) {
	first, err := p.expectIdent()
	if err != nil {
		return Atom{}, err
	}
	schema, relation := "", first
	if p.cur().kind == qTokPunct && p.cur().text == "." {
		p.next()
		relation, err = p.expectIdent()
		if err != nil {
			return Atom{}, err
		}
		schema = first
	}
	if err := p.expectPunct("("); err != nil {
		return Atom{}, err
	}
	var fields []Field
	if !(p.cur().kind == qTokPunct && p.cur().text == ")") {
		for {
			f, err := p.parseField()
			if err != nil {
				return Atom{}, err
			}
			fields = append(fields, f)
			if p.cur().kind == qTokPunct && p.cur().text == "," {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return Atom{}, err
	}
	a := Atom{Kind: AtomFact, FactVar: factVar, Schema: schema, Relation: relation, Fields: fields}
	if err := p.parseModifiers(&a); err != nil {
		return Atom{}, err
	}
	return a, nil
}

func (p *qparser) parseHasAtom() (Atom, error) {
	if err := p.expectIdentText("has"); err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return Atom{}, err
	}
	v, err := p.expectVar()
	if err != nil {
		return Atom{}, err
	}
	var rels []string
	for p.cur().kind == qTokPunct && p.cur().text == "," {
		p.next()
		r, err := p.expectIdent()
		if err != nil {
			return Atom{}, err
		}
		rels = append(rels, r)
	}
	if err := p.expectPunct(")"); err != nil {
		return Atom{}, err
	}
	return Atom{Kind: AtomHas, Var: v, HasRelations: rels}, nil
}

func (p *qparser) parseAttrsAtom() (Atom, error) {
	if err := p.expectIdentText("attrs"); err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return Atom{}, err
	}
	v, err := p.expectVar()
	if err != nil {
		return Atom{}, err
	}
	var fields []Field
	for p.cur().kind == qTokPunct && p.cur().text == "," {
		p.next()
		f, err := p.parseField()
		if err != nil {
			return Atom{}, err
		}
		fields = append(fields, f)
	}
	if err := p.expectPunct(")"); err != nil {
		return Atom{}, err
	}
	return Atom{Kind: AtomAttrs, Var: v, AttrFields: fields}, nil
}

func (p *qparser) parseAttrCallAtom() (Atom, error) {
	if err := p.expectIdentText("attr"); err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return Atom{}, err
	}
	v, err := p.expectVar()
	if err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct(","); err != nil {
		return Atom{}, err
	}
	keyTok := p.cur()
	if keyTok.kind != qTokString {
		return Atom{}, p.errf("expected a quoted attribute key")
	}
	p.next()
	if err := p.expectPunct(","); err != nil {
		return Atom{}, err
	}
	val, err := p.parseTerm()
	if err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct(")"); err != nil {
		return Atom{}, err
	}
	return Atom{Kind: AtomAttr, Var: v, Key: keyTok.text, Val: val}, nil
}

// parseApproxAtom parses contains(?x,"k","v"), fts(?x,"query"), and
// fuzzy(?x,"k","v"[,N]) — the evidence-plane-only atoms of spec.md §4.7,
// never certifiable.
func (p *qparser) parseApproxAtom(kind string) (Atom, error) {
	if err := p.expectIdentText(kind); err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return Atom{}, err
	}
	v, err := p.expectVar()
	if err != nil {
		return Atom{}, err
	}
	if err := p.expectPunct(","); err != nil {
		return Atom{}, err
	}
	a := Atom{Kind: AtomAttr, Var: v, Approx: kind}
	if kind == "fts" {
		val, err := p.parseTerm()
		if err != nil {
			return Atom{}, err
		}
		a.Val = val
	} else {
		keyTok := p.cur()
		if keyTok.kind != qTokString {
			return Atom{}, p.errf("expected a quoted attribute key")
		}
		p.next()
		if err := p.expectPunct(","); err != nil {
			return Atom{}, err
		}
		val, err := p.parseTerm()
		if err != nil {
			return Atom{}, err
		}
		a.Key, a.Val = keyTok.text, val
		if kind == "fuzzy" && p.cur().kind == qTokPunct && p.cur().text == "," {
			p.next()
			n, err := p.parseIntLiteral()
			if err != nil {
				return Atom{}, err
			}
			a.FuzzyDist = n
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return Atom{}, err
	}
	return a, nil
}

func (p *qparser) parseField() (Field, error) {
	name, err := p.expectIdent()
	if err != nil {
		return Field{}, err
	}
	if err := p.expectPunct("="); err != nil {
		return Field{}, err
	}
	val, err := p.parseTerm()
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Val: val}, nil
}

func (p *qparser) parseTerm() (Term, error) {
	t := p.cur()
	switch t.kind {
	case qTokVar:
		p.next()
		return Term{IsVar: true, Var: t.text}, nil
	case qTokString, qTokIdent, qTokNumber:
		p.next()
		return Term{Lit: t.text}, nil
	default:
		return Term{}, p.errf("expected a value (variable, string, identifier, or number)")
	}
}

// parseModifiers consumes zero or more trailing `in C`, `max_hops N`,
// `min_conf F` modifiers, in any order, attaching them to atom.
func (p *qparser) parseModifiers(atom *Atom) error {
	for {
		t := p.cur()
		if t.kind != qTokIdent {
			return nil
		}
		switch t.text {
		case "in":
			p.next()
			if p.cur().kind == qTokPunct && p.cur().text == "{" {
				p.next()
				for {
					id, err := p.expectIdent()
					if err != nil {
						return err
					}
					atom.Contexts = append(atom.Contexts, id)
					if p.cur().kind == qTokPunct && p.cur().text == "," {
						p.next()
						continue
					}
					break
				}
				if err := p.expectPunct("}"); err != nil {
					return err
				}
				atom.ContextUnion = true
			} else {
				id, err := p.expectIdent()
				if err != nil {
					return err
				}
				atom.Contexts = []string{id}
			}
		case "max_hops":
			p.next()
			n, err := p.parseIntLiteral()
			if err != nil {
				return err
			}
			atom.MaxHops = n
		case "min_conf":
			p.next()
			f, err := p.parseFloatLiteral()
			if err != nil {
				return err
			}
			atom.MinConf = uint32(f * 1_000_000)
		default:
			return nil
		}
	}
}

// parseRPQAlt, parseRPQConcat, parseRPQPostfix, parseRPQPrimary implement
// the RPQ grammar `alt := concat ('|' concat)*`, `concat := postfix
// ('/' postfix)*`, `postfix := primary ('*'|'+'|'?')?`,
// `primary := label | '(' alt ')'`.
func (p *qparser) parseRPQAlt() (*RPQExpr, error) {
	left, err := p.parseRPQConcat()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == qTokPunct && p.cur().text == "|" {
		p.next()
		right, err := p.parseRPQConcat()
		if err != nil {
			return nil, err
		}
		left = &RPQExpr{Kind: RPQAlt, Left: left, Right: right}
	}
	return left, nil
}

func (p *qparser) parseRPQConcat() (*RPQExpr, error) {
	left, err := p.parseRPQPostfix()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == qTokPunct && p.cur().text == "/" {
		p.next()
		right, err := p.parseRPQPostfix()
		if err != nil {
			return nil, err
		}
		left = &RPQExpr{Kind: RPQConcat, Left: left, Right: right}
	}
	return left, nil
}

func (p *qparser) parseRPQPostfix() (*RPQExpr, error) {
	e, err := p.parseRPQPrimary()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == qTokPunct && (p.cur().text == "*" || p.cur().text == "+" || p.cur().text == "?") {
		switch p.next().text {
		case "*":
			e = &RPQExpr{Kind: RPQStar, Sub: e}
		case "+":
			e = &RPQExpr{Kind: RPQPlus, Sub: e}
		case "?":
			e = &RPQExpr{Kind: RPQOpt, Sub: e}
		}
	}
	return e, nil
}

func (p *qparser) parseRPQPrimary() (*RPQExpr, error) {
	t := p.cur()
	if t.kind == qTokPunct && t.text == "(" {
		p.next()
		e, err := p.parseRPQAlt()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	if t.kind != qTokIdent {
		return nil, p.errf("expected a relation label or '(' in a path expression")
	}
	p.next()
	label := t.text
	if p.cur().kind == qTokPunct && p.cur().text == "." {
		p.next()
		rest, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		label = label + "." + rest
	}
	return &RPQExpr{Kind: RPQLabel, Label: label}, nil
}
