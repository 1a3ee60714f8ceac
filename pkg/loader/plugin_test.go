//go:build (linux || darwin) && cgo

package loader

import (
	"context"
	"os/exec"
	"testing"

	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/toolchain"
)

func TestPluginLoader(t *testing.T) {
	if testing.Short() {
		t.Skip("plugin build is slow")
	}
	cfg := toolchain.DefaultConfig()
	if _, err := exec.LookPath(cfg.Go); err != nil {
		t.Skip("go command not found")
	}
	cfg.ScratchDir = t.TempDir()
	o := toolchain.NewOrchestrator(cfg, nil, nil)

	x := expr.NewVar("x", rf)
	root := expr.NewAdd(expr.NewMult(x, x), expr.NewDivideBy(expr.NewIdentity(rf), 2))
	u := lowerUnit(t, toolchain.BackendHost, "Jit_201", root)
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	if err := o.Build(context.Background(), u); err != nil {
		t.Fatalf("Build: %v", err)
	}

	e, err := (&PluginLoader{}).Load(u)
	if err != nil {
		// A plugin only loads into a binary built with identical flags,
		// which go test does not guarantee.
		t.Skipf("plugin not loadable here: %v", err)
	}
	n, err := e.Instantiate(rf, u.Function.Children())
	if err != nil {
		t.Fatal(err)
	}
	got, err := n.Evaluate(expr.Env{"x": expr.RealValue(3)})
	if err != nil {
		t.Fatal(err)
	}
	if got != expr.RealValue(9.5) {
		t.Errorf("got %v, want 9.5", got)
	}
}
