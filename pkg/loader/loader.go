// Package loader turns built compilation units into constructors for
// compiled nodes. Each backend has its own loader; all of them produce an
// Entry that instantiates the unit with its captured children.
package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/raymyers/symjit/pkg/compiled"
	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/toolchain"
)

// ErrNativeUnavailable is returned by loaders that were not built into this
// binary (no cgo, or an unsupported platform).
var ErrNativeUnavailable = errors.New("native loading is not available in this build")

// LoadError reports an artifact that could not be opened or lacks a symbol.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InstantiationError reports a unit that could not be constructed from its
// entry, typically because the children do not match what it captured.
type InstantiationError struct {
	Unit string
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate %s: %v", e.Unit, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// Entry is the constructor of a loaded unit. It may be instantiated any
// number of times, with different children of the same shape.
type Entry interface {
	Unit() string
	Domain() expr.Domain
	Instantiate(fac expr.Factory, children []expr.Node) (expr.Node, error)
}

// Loader loads built units.
type Loader interface {
	// Load opens unit's artifact and advances the unit to Loaded.
	Load(unit *toolchain.Unit) (Entry, error)
}

type entry struct {
	unit    string
	domain  expr.Domain
	arity   int
	real    compiled.RealKernel
	complex compiled.ComplexKernel
}

// NewRealEntry returns an entry for a real-domain kernel taking arity
// captured children.
func NewRealEntry(unit string, arity int, k compiled.RealKernel) Entry {
	return &entry{unit: unit, domain: expr.Real, arity: arity, real: k}
}

// NewComplexEntry returns an entry for a complex-domain kernel.
func NewComplexEntry(unit string, arity int, k compiled.ComplexKernel) Entry {
	return &entry{unit: unit, domain: expr.Complex, arity: arity, complex: k}
}

func (e *entry) Unit() string        { return e.unit }
func (e *entry) Domain() expr.Domain { return e.domain }

func (e *entry) Instantiate(fac expr.Factory, children []expr.Node) (expr.Node, error) {
	fail := func(format string, args ...any) (expr.Node, error) {
		return nil, &InstantiationError{Unit: e.unit, Err: fmt.Errorf(format, args...)}
	}
	if fac == nil {
		return fail("nil factory")
	}
	if fac.Domain() != e.domain {
		return fail("factory domain %s, unit domain %s", fac.Domain(), e.domain)
	}
	if len(children) != e.arity {
		return fail("got %d children, unit captured %d", len(children), e.arity)
	}
	for i, c := range children {
		if c == nil {
			return fail("child %d is nil", i)
		}
	}
	switch e.domain {
	case expr.Real:
		if e.real == nil {
			return fail("no real kernel")
		}
		return compiled.NewRealNode(fac, e.unit, e.real, children), nil
	case expr.Complex:
		if e.complex == nil {
			return fail("no complex kernel")
		}
		return compiled.NewComplexNode(fac, e.unit, e.complex, children), nil
	}
	return fail("no kernel for domain %s", e.domain)
}

// Registry records every entry loaded in the process. Unit names never
// repeat, so a name that is already present indicates a bug upstream.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds e under its unit name.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Unit()]; ok {
		return fmt.Errorf("unit %s already loaded", e.Unit())
	}
	r.entries[e.Unit()] = e
	return nil
}

// Lookup returns the entry registered for unit.
func (r *Registry) Lookup(unit string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[unit]
	return e, ok
}

// Len returns the number of loaded units.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
