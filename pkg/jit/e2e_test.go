package jit

import (
	"context"
	"errors"
	"math"
	"os/exec"
	"testing"

	"github.com/raymyers/symjit/pkg/compiled"
	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/loader"
	"github.com/raymyers/symjit/pkg/toolchain"
)

// These tests drive the real toolchains and skip when they are missing.

func TestNativeEndToEnd(t *testing.T) {
	cfg := toolchain.DefaultConfig()
	if _, err := exec.LookPath(cfg.CC); err != nil {
		t.Skip("no C compiler found")
	}
	if _, err := loader.NewNativeLoader(); err != nil {
		t.Skipf("native loader unavailable: %v", err)
	}
	cfg.ScratchDir = t.TempDir()
	c := New(cfg)

	x := expr.NewVar("x", rf)
	z := expr.NewVar("z", cf)
	shared := expr.NewAdd(x, expr.NewIdentity(rf))
	tests := []struct {
		name string
		root expr.Node
		env  expr.Env
	}{
		{"scenario A", expr.NewAdd(expr.NewMult(x, x), expr.NewIdentity(rf)), expr.Env{"x": expr.RealValue(3)}},
		{"scenario B", expr.NewDivideBy(expr.NewIdentity(rf), 2), nil},
		{"shared subtree", expr.NewMult(shared, expr.NewInvertRight(shared)), expr.Env{"x": expr.RealValue(1.5)}},
		{"elementary child", expr.NewAbsoluteValue(expr.NewFunc("sin", x)), expr.Env{"x": expr.RealValue(4)}},
		{"scenario D", expr.NewMult(expr.ComplexConst(1, 0), expr.ComplexConst(0, 1)), nil},
		{"complex inverse", expr.NewInvertLeft(expr.NewAdd(expr.ComplexConst(3, 4), expr.NewZero(cf))), nil},
		{"complex captured child", expr.NewMult(z, expr.NewInvertRight(z)), expr.Env{"z": expr.ComplexValue{Re: 2, Im: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, unit, err := c.TryCompile(context.Background(), tt.root)
			if err != nil {
				t.Fatalf("TryCompile: %v", err)
			}
			if _, ok := n.(compiled.Node); !ok {
				t.Fatalf("got %T", n)
			}
			if unit.Kind != toolchain.BackendNative {
				t.Errorf("unit kind %s", unit.Kind)
			}
			got, err := n.Evaluate(tt.env)
			if err != nil {
				t.Fatal(err)
			}
			want, _ := tt.root.Evaluate(tt.env)
			if !expr.ApproxEqual(got, want, 1e-12) {
				t.Errorf("compiled %v, interpreted %v", got, want)
			}
		})
	}
}

func TestNativeDefaultConfigCompiles(t *testing.T) {
	cfg := toolchain.DefaultConfig()
	if _, err := exec.LookPath(cfg.CC); err != nil {
		t.Skip("no C compiler found")
	}
	if _, err := loader.NewNativeLoader(); err != nil {
		t.Skipf("native loader unavailable: %v", err)
	}
	cfg.ScratchDir = t.TempDir()
	c := New(cfg)

	n := c.Compile(context.Background(), expr.NewDivideBy(expr.NewIdentity(rf), 2))
	if _, ok := n.(compiled.Node); !ok {
		_, _, err := c.TryCompile(context.Background(), expr.NewDivideBy(expr.NewIdentity(rf), 2))
		t.Fatalf("Compile fell back to %T: %v", n, err)
	}
	if st := c.Stats(); st.Fallbacks != 0 {
		t.Errorf("stats = %+v", st)
	}
	got, err := n.Evaluate(nil)
	if err != nil || got != expr.RealValue(0.5) {
		t.Errorf("got %v, %v; want 0.5", got, err)
	}

	// Division by zero follows IEEE in native code.
	inv := c.Compile(context.Background(), expr.NewInvertLeft(expr.NewZero(rf)))
	if _, ok := inv.(compiled.Node); !ok {
		t.Fatalf("got %T", inv)
	}
	v, err := inv.Evaluate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(float64(v.(expr.RealValue)), 1) {
		t.Errorf("1/0 = %v, want +Inf", v)
	}
}

func TestNativeBrokenCompilerFallsBack(t *testing.T) {
	cfg := toolchain.DefaultConfig()
	if _, err := exec.LookPath(cfg.CC); err != nil {
		t.Skip("no C compiler found")
	}
	cfg.ScratchDir = t.TempDir()
	cfg.CFlags = []string{"-c", "-fPIC", "-DSYMJIT_BROKEN", "-include", "/nonexistent/header.h"}
	c := New(cfg)

	root := expr.NewDivideBy(expr.NewIdentity(rf), 2)
	_, _, err := c.TryCompile(context.Background(), root)
	var ie *toolchain.InvocationError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want InvocationError", err)
	}
	if len(ie.Diagnostics) == 0 {
		t.Errorf("no diagnostics extracted from:\n%s", ie.Output)
	}
	if got := c.Compile(context.Background(), root); got != expr.Node(root) {
		t.Error("broken compiler did not fall back")
	}
}

func TestHostEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("plugin build is slow")
	}
	cfg := toolchain.DefaultConfig()
	if _, err := exec.LookPath(cfg.Go); err != nil {
		t.Skip("go command not found")
	}
	if _, err := loader.NewPluginLoader(); err != nil {
		t.Skipf("plugin loader unavailable: %v", err)
	}
	cfg.ScratchDir = t.TempDir()
	cfg.Backend = toolchain.BackendHost
	c := New(cfg)

	x := expr.NewVar("x", rf)
	root := expr.NewAdd(expr.NewMult(x, x), expr.NewIdentity(rf))
	n, _, err := c.TryCompile(context.Background(), root)
	var le *loader.LoadError
	if errors.As(err, &le) {
		t.Skipf("plugin not loadable into the test binary: %v", err)
	}
	if err != nil {
		t.Fatalf("TryCompile: %v", err)
	}
	got, err := n.Evaluate(expr.Env{"x": expr.RealValue(3)})
	if err != nil || got != expr.RealValue(10) {
		t.Errorf("got %v, %v; want 10", got, err)
	}
}
