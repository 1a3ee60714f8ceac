//go:build (linux || darwin) && cgo

package loader

import (
	"fmt"
	"plugin"

	"github.com/raymyers/symjit/pkg/codegen"
	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/toolchain"
)

// PluginLoader opens Go plugins produced by the host backend. The plugin
// exports a single Eval function whose type mentions only builtin types, so
// host and plugin share no packages beyond the standard library.
type PluginLoader struct{}

// NewPluginLoader creates a plugin loader.
func NewPluginLoader() (*PluginLoader, error) {
	return &PluginLoader{}, nil
}

// Load opens the plugin and asserts the type of its entry point.
func (*PluginLoader) Load(unit *toolchain.Unit) (Entry, error) {
	fail := func(err error) (Entry, error) {
		return nil, &LoadError{Path: unit.Artifact, Err: err}
	}
	if unit.Kind != toolchain.BackendHost {
		return fail(fmt.Errorf("unit %s is a %s unit", unit.Name, unit.Kind))
	}

	p, err := plugin.Open(unit.Artifact)
	if err != nil {
		return fail(err)
	}
	sym, err := p.Lookup(codegen.PluginEvalSymbol)
	if err != nil {
		return fail(err)
	}

	fn := unit.Function
	var e Entry
	switch eval := sym.(type) {
	case func(func(int) (float64, error)) (float64, error):
		if fn.Domain != expr.Real {
			return fail(fmt.Errorf("real entry point for a %s unit", fn.Domain))
		}
		e = NewRealEntry(unit.Name, len(fn.Captures), func(cb codegen.RealCallback) (float64, error) {
			return eval(cb)
		})
	case func(func(int) (float64, float64, error)) (float64, float64, error):
		if fn.Domain != expr.Complex {
			return fail(fmt.Errorf("complex entry point for a %s unit", fn.Domain))
		}
		e = NewComplexEntry(unit.Name, len(fn.Captures), func(cb codegen.ComplexCallback) (float64, float64, error) {
			return eval(cb)
		})
	default:
		return fail(fmt.Errorf("%s has unexpected type %T", codegen.PluginEvalSymbol, sym))
	}
	if err := unit.Advance(toolchain.Loaded); err != nil {
		return nil, err
	}
	return e, nil
}
