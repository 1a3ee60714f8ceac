package loader

import (
	"fmt"

	"github.com/raymyers/symjit/pkg/codegen"
	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/toolchain"
)

// InterpLoader executes a unit's IR in-process. It needs no artifact and no
// toolchain, and evaluates with the same IEEE semantics as the generated
// code.
type InterpLoader struct{}

// Load builds an entry over unit.Function.
func (InterpLoader) Load(unit *toolchain.Unit) (Entry, error) {
	fn := unit.Function
	if fn == nil {
		return nil, &LoadError{Path: unit.Name, Err: fmt.Errorf("unit has no function")}
	}

	var e Entry
	switch fn.Domain {
	case expr.Real:
		e = NewRealEntry(unit.Name, len(fn.Captures), func(cb codegen.RealCallback) (float64, error) {
			return codegen.ExecReal(fn, cb)
		})
	case expr.Complex:
		e = NewComplexEntry(unit.Name, len(fn.Captures), func(cb codegen.ComplexCallback) (float64, float64, error) {
			return codegen.ExecComplex(fn, cb)
		})
	default:
		return nil, &LoadError{Path: unit.Name, Err: fmt.Errorf("%w: %s", codegen.ErrUnsupportedDomain, fn.Domain)}
	}
	if err := unit.Advance(toolchain.Loaded); err != nil {
		return nil, err
	}
	return e, nil
}
