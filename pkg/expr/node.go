// Package expr is the algebra layer consumed by the compiler: expression
// nodes, their numeric domains and the interpreted evaluation path.
//
// Node identity is pointer identity. The same node may appear under several
// parents; that sharing is what the compiler's common-subexpression
// elimination keys on.
package expr

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// Node is an evaluable expression. Implementations outside this package
// (compiled nodes, user-defined functions) are first-class and may appear as
// children of the core variants below.
type Node interface {
	Evaluate(env Env) (Value, error)
	Factory() Factory
}

// Zero is the additive identity of its factory's domain.
type Zero struct {
	Fac Factory
}

// Identity is the multiplicative identity of its factory's domain.
type Identity struct {
	Fac Factory
}

// Negate is the additive inverse of X.
type Negate struct {
	X Node
}

// Add is A + B.
type Add struct {
	A, B Node
}

// Mult is A * B (A on the left).
type Mult struct {
	A, B Node
}

// DivideBy divides X by an integer constant.
type DivideBy struct {
	X  Node
	By int64
}

// InvertLeft is the left inverse of X.
type InvertLeft struct {
	X Node
}

// InvertRight is the right inverse of X.
type InvertRight struct {
	X Node
}

// Reduction marks X as a compile-time constant. The compiler evaluates X once,
// with a nil environment, and bakes the result into the generated code.
// Callers must not use it for values that change after compilation.
type Reduction struct {
	X Node
}

// AbsoluteValue is |X|. For complex values the result is (|X|, 0).
type AbsoluteValue struct {
	X Node
}

// Var looks up Name in the evaluation environment.
type Var struct {
	Name string
	Fac  Factory
}

// Const is a literal value.
type Const struct {
	V Value
}

// Func applies a named elementary function (sin, cos, exp, log, sqrt) to X.
type Func struct {
	Name string
	X    Node
}

func NewZero(fac Factory) *Zero                    { return &Zero{Fac: fac} }
func NewIdentity(fac Factory) *Identity            { return &Identity{Fac: fac} }
func NewNegate(x Node) *Negate                     { return &Negate{X: x} }
func NewAdd(a, b Node) *Add                        { return &Add{A: a, B: b} }
func NewMult(a, b Node) *Mult                      { return &Mult{A: a, B: b} }
func NewDivideBy(x Node, by int64) *DivideBy       { return &DivideBy{X: x, By: by} }
func NewInvertLeft(x Node) *InvertLeft             { return &InvertLeft{X: x} }
func NewInvertRight(x Node) *InvertRight           { return &InvertRight{X: x} }
func NewReduction(x Node) *Reduction               { return &Reduction{X: x} }
func NewAbsoluteValue(x Node) *AbsoluteValue       { return &AbsoluteValue{X: x} }
func NewVar(name string, fac Factory) *Var         { return &Var{Name: name, Fac: fac} }
func NewConst(v Value) *Const                      { return &Const{V: v} }
func NewFunc(name string, x Node) *Func            { return &Func{Name: name, X: x} }
func RealConst(v float64) *Const                   { return &Const{V: RealValue(v)} }
func ComplexConst(re, im float64) *Const           { return &Const{V: ComplexValue{Re: re, Im: im}} }

func (n *Zero) Factory() Factory          { return n.Fac }
func (n *Identity) Factory() Factory      { return n.Fac }
func (n *Negate) Factory() Factory        { return n.X.Factory() }
func (n *Add) Factory() Factory           { return n.A.Factory() }
func (n *Mult) Factory() Factory          { return n.A.Factory() }
func (n *DivideBy) Factory() Factory      { return n.X.Factory() }
func (n *InvertLeft) Factory() Factory    { return n.X.Factory() }
func (n *InvertRight) Factory() Factory   { return n.X.Factory() }
func (n *Reduction) Factory() Factory     { return n.X.Factory() }
func (n *AbsoluteValue) Factory() Factory { return n.X.Factory() }
func (n *Var) Factory() Factory           { return n.Fac }
func (n *Func) Factory() Factory          { return n.X.Factory() }

func (n *Const) Factory() Factory {
	switch v := n.V.(type) {
	case ComplexValue:
		return ComplexFactory{}
	case MatrixValue:
		return MatrixFactory{N: v.N}
	}
	return RealFactory{}
}

func (n *Zero) Evaluate(Env) (Value, error)     { return n.Fac.Zero(), nil }
func (n *Identity) Evaluate(Env) (Value, error) { return n.Fac.Identity(), nil }
func (n *Const) Evaluate(Env) (Value, error)    { return n.V, nil }

func (n *Negate) Evaluate(env Env) (Value, error) {
	x, err := n.X.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return negValue(x)
}

func (n *Add) Evaluate(env Env) (Value, error) {
	a, err := n.A.Evaluate(env)
	if err != nil {
		return nil, err
	}
	b, err := n.B.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return addValues(a, b)
}

func (n *Mult) Evaluate(env Env) (Value, error) {
	a, err := n.A.Evaluate(env)
	if err != nil {
		return nil, err
	}
	b, err := n.B.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return mulValues(a, b)
}

func (n *DivideBy) Evaluate(env Env) (Value, error) {
	x, err := n.X.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return divValue(x, n.By)
}

func (n *InvertLeft) Evaluate(env Env) (Value, error) {
	x, err := n.X.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return invertValue(x)
}

func (n *InvertRight) Evaluate(env Env) (Value, error) {
	x, err := n.X.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return invertValue(x)
}

func (n *Reduction) Evaluate(env Env) (Value, error) {
	return n.X.Evaluate(env)
}

func (n *AbsoluteValue) Evaluate(env Env) (Value, error) {
	x, err := n.X.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return absValue(x)
}

func (n *Var) Evaluate(env Env) (Value, error) {
	v, ok := env[n.Name]
	if !ok {
		return nil, &UnboundError{Name: n.Name}
	}
	if want := n.Fac.Domain(); v.Domain() != want {
		return nil, &DomainError{Op: "var " + n.Name, Want: want, Got: v.Domain()}
	}
	return v, nil
}

func (n *Func) Evaluate(env Env) (Value, error) {
	fn, ok := elementary[n.Name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", n.Name)
	}
	x, err := n.X.Evaluate(env)
	if err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case RealValue:
		return RealValue(fn.real(float64(v))), nil
	case ComplexValue:
		z := fn.complex(complex(v.Re, v.Im))
		return ComplexValue{Re: real(z), Im: imag(z)}, nil
	}
	return nil, &DomainError{Op: n.Name, Want: Real, Got: x.Domain()}
}

type elementaryFunc struct {
	real    func(float64) float64
	complex func(complex128) complex128
}

var elementary = map[string]elementaryFunc{
	"sin":  {math.Sin, cmplx.Sin},
	"cos":  {math.Cos, cmplx.Cos},
	"exp":  {math.Exp, cmplx.Exp},
	"log":  {math.Log, cmplx.Log},
	"sqrt": {math.Sqrt, cmplx.Sqrt},
}

// FuncNames lists the elementary functions Func understands.
func FuncNames() []string {
	names := make([]string, 0, len(elementary))
	for name := range elementary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Children returns the direct children of the core variants and Func.
// Other nodes are leaves.
func Children(n Node) []Node {
	switch x := n.(type) {
	case *Negate:
		return []Node{x.X}
	case *Add:
		return []Node{x.A, x.B}
	case *Mult:
		return []Node{x.A, x.B}
	case *DivideBy:
		return []Node{x.X}
	case *InvertLeft:
		return []Node{x.X}
	case *InvertRight:
		return []Node{x.X}
	case *Reduction:
		return []Node{x.X}
	case *AbsoluteValue:
		return []Node{x.X}
	case *Func:
		return []Node{x.X}
	}
	return nil
}

// Walk calls fn once for every distinct node reachable from root, parents
// before children. Returning false from fn skips that node's children.
func Walk(root Node, fn func(Node) bool) {
	seen := make(map[Node]bool)
	var visit func(Node)
	visit = func(n Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		if !fn(n) {
			return
		}
		for _, c := range Children(n) {
			visit(c)
		}
	}
	visit(root)
}
