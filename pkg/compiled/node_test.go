package compiled

import (
	"errors"
	"testing"

	"github.com/raymyers/symjit/pkg/codegen"
	"github.com/raymyers/symjit/pkg/expr"
)

var (
	rf = expr.RealFactory{}
	cf = expr.ComplexFactory{}
)

func interpKernel(t *testing.T, root expr.Node) (*codegen.Function, RealKernel, ComplexKernel) {
	t.Helper()
	fn, _, err := codegen.Lower("Jit_t", root, codegen.NewAllocator())
	if err != nil {
		t.Fatal(err)
	}
	rk := func(cb codegen.RealCallback) (float64, error) { return codegen.ExecReal(fn, cb) }
	ck := func(cb codegen.ComplexCallback) (float64, float64, error) { return codegen.ExecComplex(fn, cb) }
	return fn, rk, ck
}

func TestRealNodeEvaluate(t *testing.T) {
	x := expr.NewVar("x", rf)
	root := expr.NewAdd(expr.NewMult(x, x), expr.NewIdentity(rf))
	fn, kernel, _ := interpKernel(t, root)

	n := NewRealNode(rf, fn.Name, kernel, fn.Children())
	got, err := n.Evaluate(expr.Env{"x": expr.RealValue(3)})
	if err != nil {
		t.Fatal(err)
	}
	if got != expr.RealValue(10) {
		t.Errorf("got %v, want 10", got)
	}
	if n.Factory() != expr.Factory(rf) {
		t.Error("factory not passed through")
	}
	if n.Unit() != "Jit_t" || n.String() != "compiled(Jit_t)" {
		t.Errorf("unit %q string %q", n.Unit(), n.String())
	}
	if len(n.Children()) != 1 || n.Children()[0] != x {
		t.Errorf("children = %v", n.Children())
	}
}

func TestComplexNodeEvaluate(t *testing.T) {
	root := expr.NewMult(expr.ComplexConst(1, 0), expr.ComplexConst(0, 1))
	fn, _, kernel := interpKernel(t, root)

	n := NewComplexNode(cf, fn.Name, kernel, fn.Children())
	got, err := n.Evaluate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != (expr.ComplexValue{Re: 0, Im: 1}) {
		t.Errorf("got %v, want (0,1)", got)
	}
}

func TestChildErrorPropagates(t *testing.T) {
	x := expr.NewVar("x", rf)
	fn, kernel, _ := interpKernel(t, expr.NewNegate(x))
	n := NewRealNode(rf, fn.Name, kernel, fn.Children())

	_, err := n.Evaluate(expr.Env{})
	var ue *expr.UnboundError
	if !errors.As(err, &ue) || ue.Name != "x" {
		t.Errorf("err = %v, want UnboundError for x", err)
	}
}

func TestUnwrapShapeMismatch(t *testing.T) {
	children := Children{expr.ComplexConst(1, 2), expr.RealConst(3)}

	if _, err := RealCallback(children, nil)(0); err == nil {
		t.Error("real unwrap of complex value succeeded")
	} else {
		var de *expr.DomainError
		if !errors.As(err, &de) || de.Want != expr.Real || de.Got != expr.Complex {
			t.Errorf("err = %v", err)
		}
	}
	if _, _, err := ComplexCallback(children, nil)(1); err == nil {
		t.Error("complex unwrap of real value succeeded")
	}
	if v, err := RealCallback(children, nil)(1); err != nil || v != 3 {
		t.Errorf("RealCallback(1) = %v, %v", v, err)
	}
}

func TestChildrenOutOfRange(t *testing.T) {
	c := Children{expr.RealConst(1)}
	for _, slot := range []int{-1, 1, 5} {
		if _, err := c.EvaluateOpaque(slot, nil); err == nil {
			t.Errorf("slot %d: expected error", slot)
		}
	}
}

func TestCompiledNodeAsChild(t *testing.T) {
	// A compiled node can appear under an interpreted parent.
	x := expr.NewVar("x", rf)
	fn, kernel, _ := interpKernel(t, expr.NewMult(x, x))
	sq := NewRealNode(rf, fn.Name, kernel, fn.Children())

	parent := expr.NewAdd(sq, expr.NewIdentity(rf))
	got, err := parent.Evaluate(expr.Env{"x": expr.RealValue(4)})
	if err != nil {
		t.Fatal(err)
	}
	if got != expr.RealValue(17) {
		t.Errorf("got %v, want 17", got)
	}
}
