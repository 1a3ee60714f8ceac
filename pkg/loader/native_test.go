//go:build (linux || darwin) && cgo

package loader

import (
	"context"
	"errors"
	"math"
	"os/exec"
	"testing"

	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/toolchain"
)

// buildNative builds root with the system C compiler, skipping the test if
// there is none.
func buildNative(t *testing.T, name string, root expr.Node) *toolchain.Unit {
	t.Helper()
	cfg := toolchain.DefaultConfig()
	if _, err := exec.LookPath(cfg.CC); err != nil {
		t.Skip("no C compiler found")
	}
	cfg.ScratchDir = t.TempDir()
	o := toolchain.NewOrchestrator(cfg, nil, nil)
	u := lowerUnit(t, toolchain.BackendNative, name, root)
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	if err := o.Build(context.Background(), u); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return u
}

func loadNative(t *testing.T, u *toolchain.Unit, fac expr.Factory) expr.Node {
	t.Helper()
	l, err := NewNativeLoader()
	if err != nil {
		t.Fatal(err)
	}
	e, err := l.Load(u)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	n, err := e.Instantiate(fac, u.Function.Children())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return n
}

func TestNativeLoaderReal(t *testing.T) {
	x := expr.NewVar("x", rf)
	root := expr.NewAdd(expr.NewMult(x, x), expr.NewIdentity(rf))
	u := buildNative(t, "Jit_101", root)
	n := loadNative(t, u, rf)

	for _, v := range []float64{3, -1.5, 0} {
		env := expr.Env{"x": expr.RealValue(v)}
		got, err := n.Evaluate(env)
		if err != nil {
			t.Fatal(err)
		}
		want, _ := root.Evaluate(env)
		if !expr.ApproxEqual(got, want, 1e-12) {
			t.Errorf("x=%g: got %v, want %v", v, got, want)
		}
	}
}

func TestNativeLoaderComplex(t *testing.T) {
	root := expr.NewInvertLeft(expr.NewMult(expr.ComplexConst(1, 2), expr.NewIdentity(cf)))
	u := buildNative(t, "Jit_102", root)
	n := loadNative(t, u, cf)

	got, err := n.Evaluate(nil)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := root.Evaluate(nil)
	if !expr.ApproxEqual(got, want, 1e-12) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNativeLoaderComplexCapturedChild(t *testing.T) {
	z := expr.NewVar("z", cf)
	root := expr.NewAdd(expr.NewMult(z, z), expr.NewInvertLeft(z))
	u := buildNative(t, "Jit_107", root)
	if len(u.Function.Captures) != 1 {
		t.Fatalf("captures = %d, want 1", len(u.Function.Captures))
	}
	n := loadNative(t, u, cf)

	for _, v := range []expr.ComplexValue{{Re: 1, Im: 2}, {Re: -0.5, Im: 3}} {
		env := expr.Env{"z": v}
		got, err := n.Evaluate(env)
		if err != nil {
			t.Fatal(err)
		}
		want, _ := root.Evaluate(env)
		if !expr.ApproxEqual(got, want, 1e-12) {
			t.Errorf("z=%v: got %v, want %v", v, got, want)
		}
	}

	// A real value where a complex one is expected cannot be unwrapped.
	_, err := n.Evaluate(expr.Env{"z": expr.RealValue(1)})
	var de *expr.DomainError
	if !errors.As(err, &de) {
		t.Errorf("err = %v, want DomainError", err)
	}
}

func TestNativeLoaderChildError(t *testing.T) {
	x := expr.NewVar("x", rf)
	u := buildNative(t, "Jit_103", expr.NewNegate(x))
	n := loadNative(t, u, rf)

	_, err := n.Evaluate(expr.Env{})
	var ue *expr.UnboundError
	if !errors.As(err, &ue) {
		t.Errorf("err = %v, want UnboundError", err)
	}
}

type panicky struct{}

func (panicky) Evaluate(expr.Env) (expr.Value, error) { panic("boom") }
func (panicky) Factory() expr.Factory                 { return rf }

func TestNativeLoaderRecoversPanics(t *testing.T) {
	u := buildNative(t, "Jit_104", expr.NewAdd(panicky{}, expr.NewIdentity(rf)))
	n := loadNative(t, u, rf)
	if _, err := n.Evaluate(nil); err == nil {
		t.Error("panic in child not reported")
	}
}

func TestNativeLoaderInfinity(t *testing.T) {
	u := buildNative(t, "Jit_105", expr.NewInvertLeft(expr.NewZero(rf)))
	n := loadNative(t, u, rf)
	got, err := n.Evaluate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(float64(got.(expr.RealValue)), 1) {
		t.Errorf("1/0 = %v, want +Inf", got)
	}
}

func TestNativeLoaderMissingArtifact(t *testing.T) {
	u := lowerUnit(t, toolchain.BackendNative, "Jit_106", expr.NewIdentity(rf))
	u.Artifact = "/nonexistent/libJit_106.so"
	l, _ := NewNativeLoader()
	_, err := l.Load(u)
	var le *LoadError
	if !errors.As(err, &le) || le.Path != u.Artifact {
		t.Errorf("err = %v, want LoadError", err)
	}
}
