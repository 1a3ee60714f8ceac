// Package exprio reads and writes expression trees.
//
// Two formats are understood. YAML documents describe a tree with op tags
// and use anchors and aliases for shared subtrees. S-expressions are the
// compact form used by the REPL, with #n= labels and #n# references for
// sharing. In both formats sharing in the text becomes node identity in the
// tree, which is what the compiler's common-subexpression elimination sees.
package exprio

import (
	"fmt"
	"slices"

	"github.com/coregx/coregex"
	"github.com/raymyers/symjit/pkg/expr"
)

var (
	identPattern  = mustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	numberPattern = mustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?$`)
)

func mustCompile(pattern string) *coregex.Regexp {
	re, err := coregex.Compile(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

var nullaryOps = map[string]func(expr.Factory) expr.Node{
	"zero":     func(f expr.Factory) expr.Node { return expr.NewZero(f) },
	"identity": func(f expr.Factory) expr.Node { return expr.NewIdentity(f) },
}

var unaryOps = map[string]func(expr.Node) expr.Node{
	"neg":          func(x expr.Node) expr.Node { return expr.NewNegate(x) },
	"invert_left":  func(x expr.Node) expr.Node { return expr.NewInvertLeft(x) },
	"invert_right": func(x expr.Node) expr.Node { return expr.NewInvertRight(x) },
	"reduce":       func(x expr.Node) expr.Node { return expr.NewReduction(x) },
	"abs":          func(x expr.Node) expr.Node { return expr.NewAbsoluteValue(x) },
}

var binaryOps = map[string]func(a, b expr.Node) expr.Node{
	"add":  func(a, b expr.Node) expr.Node { return expr.NewAdd(a, b) },
	"mult": func(a, b expr.Node) expr.Node { return expr.NewMult(a, b) },
}

// Short spellings accepted by the s-expression reader.
var opAliases = map[string]string{
	"+":   "add",
	"*":   "mult",
	"-":   "neg",
	"/":   "divide",
	"inv": "invert_left",
	"one": "identity",
}

func canonicalOp(op string) string {
	if c, ok := opAliases[op]; ok {
		return c
	}
	return op
}

func isFunc(name string) bool {
	return slices.Contains(expr.FuncNames(), name)
}

// constant makes a literal in fac's domain: complex documents read plain
// numbers as complex values with a zero imaginary part.
func constant(fac expr.Factory, v float64) expr.Node {
	if fac.Domain() == expr.Complex {
		return expr.ComplexConst(v, 0)
	}
	return expr.RealConst(v)
}

// scope hands out one *expr.Var per name within a single read, so every
// mention of a variable is the same node.
type scope struct {
	fac  expr.Factory
	vars map[string]*expr.Var
}

func newScope(fac expr.Factory) *scope {
	return &scope{fac: fac, vars: make(map[string]*expr.Var)}
}

func (s *scope) variable(name string) *expr.Var {
	v, ok := s.vars[name]
	if !ok {
		v = expr.NewVar(name, s.fac)
		s.vars[name] = v
	}
	return v
}

// SyntaxError is a malformed document. Line and Col are 1-based; zero
// means the position is unknown.
type SyntaxError struct {
	Line, Col int
	Msg       string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}
