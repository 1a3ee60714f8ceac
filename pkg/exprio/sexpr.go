package exprio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/raymyers/symjit/pkg/expr"
)

// ErrIncomplete reports input that ended inside an open list or label.
// Interactive readers use it to ask for a continuation line.
var ErrIncomplete = errors.New("incomplete expression")

type tokKind int

const (
	tokEOF tokKind = iota
	tokOpen
	tokClose
	tokAtom
	tokLabel // #name=
	tokRef   // #name#
)

type token struct {
	kind      tokKind
	text      string
	line, col int
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	line, col := 1, 1
	advance := func() rune {
		r := rs[0]
		rs = rs[1:]
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		return r
	}
	for len(rs) > 0 {
		r := rs[0]
		tl, tc := line, col
		switch {
		case unicode.IsSpace(r):
			advance()
		case r == ';':
			for len(rs) > 0 && rs[0] != '\n' {
				advance()
			}
		case r == '(':
			advance()
			toks = append(toks, token{kind: tokOpen, text: "(", line: tl, col: tc})
		case r == ')':
			advance()
			toks = append(toks, token{kind: tokClose, text: ")", line: tl, col: tc})
		case r == '#':
			advance()
			var name strings.Builder
			for len(rs) > 0 && (unicode.IsLetter(rs[0]) || unicode.IsDigit(rs[0]) || rs[0] == '_') {
				name.WriteRune(advance())
			}
			if len(rs) == 0 {
				return nil, ErrIncomplete
			}
			if name.Len() == 0 {
				return nil, &SyntaxError{Line: tl, Col: tc, Msg: "empty label"}
			}
			kind := tokLabel
			switch advance() {
			case '=':
			case '#':
				kind = tokRef
			default:
				return nil, &SyntaxError{Line: tl, Col: tc, Msg: fmt.Sprintf("label #%s must end in = or #", name.String())}
			}
			toks = append(toks, token{kind: kind, text: name.String(), line: tl, col: tc})
		default:
			var atom strings.Builder
			for len(rs) > 0 && !unicode.IsSpace(rs[0]) && !strings.ContainsRune("();#", rs[0]) {
				atom.WriteRune(advance())
			}
			toks = append(toks, token{kind: tokAtom, text: atom.String(), line: tl, col: tc})
		}
	}
	return append(toks, token{kind: tokEOF, line: line, col: col}), nil
}

type sexprParser struct {
	toks   []token
	pos    int
	fac    expr.Factory
	labels map[string]expr.Node
	vars   *scope
}

// ParseSExpr reads a single expression. Bare symbols are variables in
// fac's domain and bare numbers are constants in it; (c re im) is a
// complex literal in any domain.
func ParseSExpr(src string, fac expr.Factory) (expr.Node, error) {
	if fac == nil {
		return nil, errors.New("exprio: nil factory")
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &sexprParser{toks: toks, fac: fac, labels: make(map[string]expr.Node), vars: newScope(fac)}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q after expression", t.text)
	}
	return n, nil
}

func (p *sexprParser) peek() token { return p.toks[p.pos] }

func (p *sexprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *sexprParser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Line: t.line, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *sexprParser) expr() (expr.Node, error) {
	t := p.next()
	switch t.kind {
	case tokEOF:
		return nil, ErrIncomplete
	case tokClose:
		return nil, p.errorf(t, "unexpected )")
	case tokLabel:
		if _, dup := p.labels[t.text]; dup {
			return nil, p.errorf(t, "label #%s defined twice", t.text)
		}
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		p.labels[t.text] = n
		return n, nil
	case tokRef:
		n, ok := p.labels[t.text]
		if !ok {
			return nil, p.errorf(t, "undefined label #%s#", t.text)
		}
		return n, nil
	case tokAtom:
		return p.atom(t)
	}
	return p.list(t)
}

func (p *sexprParser) atom(t token) (expr.Node, error) {
	if numberPattern.MatchString(t.text) {
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "bad number %q", t.text)
		}
		return constant(p.fac, v), nil
	}
	if identPattern.MatchString(t.text) {
		return p.vars.variable(t.text), nil
	}
	return nil, p.errorf(t, "unexpected %q", t.text)
}

func (p *sexprParser) number() (token, error) {
	t := p.next()
	switch {
	case t.kind == tokEOF:
		return t, ErrIncomplete
	case t.kind != tokAtom || !numberPattern.MatchString(t.text):
		return t, p.errorf(t, "expected a number, got %q", t.text)
	}
	return t, nil
}

func (p *sexprParser) close() error {
	t := p.next()
	switch t.kind {
	case tokClose:
		return nil
	case tokEOF:
		return ErrIncomplete
	}
	return p.errorf(t, "expected ), got %q", t.text)
}

func (p *sexprParser) list(open token) (expr.Node, error) {
	head := p.next()
	switch head.kind {
	case tokEOF:
		return nil, ErrIncomplete
	case tokAtom:
	default:
		return nil, p.errorf(head, "expected an operator after (")
	}
	op := canonicalOp(head.text)

	switch op {
	case "c":
		re, err := p.number()
		if err != nil {
			return nil, err
		}
		im, err := p.number()
		if err != nil {
			return nil, err
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		r, _ := strconv.ParseFloat(re.text, 64)
		i, _ := strconv.ParseFloat(im.text, 64)
		return expr.ComplexConst(r, i), nil
	case "divide":
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		t, err := p.number()
		if err != nil {
			return nil, err
		}
		by, perr := strconv.ParseInt(t.text, 10, 64)
		if perr != nil {
			return nil, p.errorf(t, "divisor must be an integer, got %q", t.text)
		}
		if err := p.close(); err != nil {
			return nil, err
		}
		return expr.NewDivideBy(x, by), nil
	}

	var args []expr.Node
	for p.peek().kind != tokClose {
		if p.peek().kind == tokEOF {
			return nil, ErrIncomplete
		}
		a, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	p.next()

	arity := func(want int) error {
		if len(args) != want {
			return p.errorf(open, "%s takes %d argument(s), got %d", head.text, want, len(args))
		}
		return nil
	}
	if mk, ok := nullaryOps[op]; ok {
		if err := arity(0); err != nil {
			return nil, err
		}
		return mk(p.fac), nil
	}
	if mk, ok := unaryOps[op]; ok {
		if err := arity(1); err != nil {
			return nil, err
		}
		return mk(args[0]), nil
	}
	if mk, ok := binaryOps[op]; ok {
		// n-ary sums and products fold to the left.
		if len(args) < 2 {
			return nil, p.errorf(open, "%s takes at least 2 arguments, got %d", head.text, len(args))
		}
		n := mk(args[0], args[1])
		for _, a := range args[2:] {
			n = mk(n, a)
		}
		return n, nil
	}
	if isFunc(op) {
		if err := arity(1); err != nil {
			return nil, err
		}
		return expr.NewFunc(op, args[0]), nil
	}
	return nil, p.errorf(head, "unknown operator %q", head.text)
}

// ParseValue reads a literal: a number, or (c re im) for a complex value.
// Plain numbers are read in domain d.
func ParseValue(s string, d expr.Domain) (expr.Value, error) {
	fac, err := expr.FactoryFor(d)
	if err != nil {
		return nil, err
	}
	n, err := ParseSExpr(s, fac)
	if err != nil {
		return nil, err
	}
	c, ok := n.(*expr.Const)
	if !ok {
		return nil, fmt.Errorf("%q is not a literal", s)
	}
	return c.V, nil
}

// ParseBinding reads a name=value pair as given to --env or :let.
func ParseBinding(s string, d expr.Domain) (string, expr.Value, error) {
	name, lit, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || !identPattern.MatchString(name) {
		return "", nil, fmt.Errorf("binding %q: want name=value", s)
	}
	v, err := ParseValue(strings.TrimSpace(lit), d)
	if err != nil {
		return "", nil, fmt.Errorf("binding %s: %w", name, err)
	}
	return name, v, nil
}
