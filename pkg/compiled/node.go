// Package compiled provides the expression nodes that stand in for compiled
// subtrees. A compiled node evaluates through a kernel produced by a loader
// and satisfies the same expr.Node contract as the tree it replaces.
package compiled

import (
	"fmt"

	"github.com/raymyers/symjit/pkg/codegen"
	"github.com/raymyers/symjit/pkg/expr"
)

// Bridge evaluates captured children on behalf of generated code. It is the
// only path by which compiled code reaches back into the interpreter.
type Bridge interface {
	EvaluateOpaque(slot int, env expr.Env) (expr.Value, error)
}

// Children is the ordered list of a unit's captured children.
type Children []expr.Node

// EvaluateOpaque evaluates child slot in env.
func (c Children) EvaluateOpaque(slot int, env expr.Env) (expr.Value, error) {
	if slot < 0 || slot >= len(c) {
		return nil, fmt.Errorf("captured child %d out of range (have %d)", slot, len(c))
	}
	return c[slot].Evaluate(env)
}

// RealKernel is a loaded real-domain entry point.
type RealKernel func(cb codegen.RealCallback) (float64, error)

// ComplexKernel is a loaded complex-domain entry point.
type ComplexKernel func(cb codegen.ComplexCallback) (float64, float64, error)

// RealCallback adapts b to the callback signature of real kernels,
// unwrapping each boxed child value into a float64.
func RealCallback(b Bridge, env expr.Env) codegen.RealCallback {
	return func(slot int) (float64, error) {
		v, err := b.EvaluateOpaque(slot, env)
		if err != nil {
			return 0, err
		}
		r, ok := v.(expr.RealValue)
		if !ok {
			return 0, &expr.DomainError{Op: fmt.Sprintf("unwrap child %d", slot), Want: expr.Real, Got: v.Domain()}
		}
		return float64(r), nil
	}
}

// ComplexCallback adapts b to the callback signature of complex kernels.
func ComplexCallback(b Bridge, env expr.Env) codegen.ComplexCallback {
	return func(slot int) (float64, float64, error) {
		v, err := b.EvaluateOpaque(slot, env)
		if err != nil {
			return 0, 0, err
		}
		c, ok := v.(expr.ComplexValue)
		if !ok {
			return 0, 0, &expr.DomainError{Op: fmt.Sprintf("unwrap child %d", slot), Want: expr.Complex, Got: v.Domain()}
		}
		return c.Re, c.Im, nil
	}
}

// RealNode is a compiled real-domain subtree.
type RealNode struct {
	fac      expr.Factory
	unit     string
	kernel   RealKernel
	children Children
}

// NewRealNode wraps kernel as an expression node owned by fac.
func NewRealNode(fac expr.Factory, unit string, kernel RealKernel, children []expr.Node) *RealNode {
	return &RealNode{fac: fac, unit: unit, kernel: kernel, children: Children(children)}
}

func (n *RealNode) Evaluate(env expr.Env) (expr.Value, error) {
	v, err := n.kernel(RealCallback(n.children, env))
	if err != nil {
		return nil, err
	}
	return expr.RealValue(v), nil
}

func (n *RealNode) Factory() expr.Factory { return n.fac }
func (n *RealNode) Unit() string          { return n.unit }
func (n *RealNode) Children() []expr.Node { return n.children }
func (n *RealNode) String() string        { return "compiled(" + n.unit + ")" }

// ComplexNode is a compiled complex-domain subtree.
type ComplexNode struct {
	fac      expr.Factory
	unit     string
	kernel   ComplexKernel
	children Children
}

// NewComplexNode wraps kernel as an expression node owned by fac.
func NewComplexNode(fac expr.Factory, unit string, kernel ComplexKernel, children []expr.Node) *ComplexNode {
	return &ComplexNode{fac: fac, unit: unit, kernel: kernel, children: Children(children)}
}

func (n *ComplexNode) Evaluate(env expr.Env) (expr.Value, error) {
	re, im, err := n.kernel(ComplexCallback(n.children, env))
	if err != nil {
		return nil, err
	}
	return expr.ComplexValue{Re: re, Im: im}, nil
}

func (n *ComplexNode) Factory() expr.Factory { return n.fac }
func (n *ComplexNode) Unit() string          { return n.unit }
func (n *ComplexNode) Children() []expr.Node { return n.children }
func (n *ComplexNode) String() string        { return "compiled(" + n.unit + ")" }

// Node is implemented by both compiled node types.
type Node interface {
	expr.Node
	Unit() string
	Children() []expr.Node
}

var (
	_ Node = (*RealNode)(nil)
	_ Node = (*ComplexNode)(nil)
)
