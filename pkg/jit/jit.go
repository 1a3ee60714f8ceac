// Package jit is the compiler facade: it replaces an expression subtree
// with a compiled node that evaluates to the same value.
//
// Compilation is an optimization only. Compile never fails and never
// panics; when any stage goes wrong the original tree comes back unchanged.
package jit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/raymyers/symjit/pkg/codegen"
	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/loader"
	"github.com/raymyers/symjit/pkg/toolchain"
)

// ErrUnsupportedDomain is returned for roots whose domain has no backend.
var ErrUnsupportedDomain = codegen.ErrUnsupportedDomain

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.log = l }
}

// WithRunner replaces the subprocess runner used for the toolchain.
func WithRunner(r toolchain.Runner) Option {
	return func(c *Compiler) { c.runner = r }
}

// WithLoader replaces the loader used for a backend.
func WithLoader(kind toolchain.Backend, l loader.Loader) Option {
	return func(c *Compiler) { c.loaders[kind] = l }
}

// Stats counts compiler activity.
type Stats struct {
	Compiles  int64 // Compile and TryCompile calls
	Fallbacks int64 // Compile calls that returned the original tree
	CacheHits int64 // compilations served from the artifact cache
	Units     int   // units loaded
}

// Compiler compiles expression trees. It is safe for concurrent use; each
// call has its own emission context and only the name allocator, loaders
// and artifact cache are shared.
type Compiler struct {
	cfg    toolchain.Config
	cfgErr error
	log    *slog.Logger
	runner toolchain.Runner

	alloc    *codegen.Allocator
	orch     *toolchain.Orchestrator
	registry *loader.Registry
	cache    *loader.Cache

	loaderMu   sync.Mutex
	loaders    map[toolchain.Backend]loader.Loader
	loaderErrs map[toolchain.Backend]error

	compiles  atomic.Int64
	fallbacks atomic.Int64
	hits      atomic.Int64
}

// New creates a compiler. An invalid configuration is not an error here:
// every compilation will fall back and report it.
func New(cfg toolchain.Config, opts ...Option) *Compiler {
	c := &Compiler{
		alloc:      codegen.NewAllocator(),
		registry:   loader.NewRegistry(),
		loaders:    make(map[toolchain.Backend]loader.Loader),
		loaderErrs: make(map[toolchain.Backend]error),
	}
	c.cfgErr = cfg.Normalize()
	c.cfg = cfg
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.orch = toolchain.NewOrchestrator(c.cfg, c.runner, c.log)
	c.cache = loader.NewCache(c.cfg.CacheSize, func(key string, unit *toolchain.Unit) {
		if unit == nil {
			return
		}
		c.log.Debug("evicting unit", "unit", unit.Name)
		if err := c.orch.Discard(unit); err != nil {
			c.log.Warn("failed to discard unit", "unit", unit.Name, "err", err)
		}
	})
	return c
}

// Config returns the compiler's normalized configuration.
func (c *Compiler) Config() toolchain.Config { return c.cfg }

// ScratchDir returns the scratch directory, creating it if needed.
func (c *Compiler) ScratchDir() (string, error) { return c.orch.ScratchDir() }

// Stats returns a snapshot of the compiler's counters.
func (c *Compiler) Stats() Stats {
	return Stats{
		Compiles:  c.compiles.Load(),
		Fallbacks: c.fallbacks.Load(),
		CacheHits: c.hits.Load(),
		Units:     c.registry.Len(),
	}
}

// Compile returns a compiled replacement for root, or root itself if it
// cannot be compiled.
func (c *Compiler) Compile(ctx context.Context, root expr.Node) expr.Node {
	n, unit, err := c.TryCompile(ctx, root)
	if err != nil {
		c.fallbacks.Add(1)
		attrs := []any{"err", err}
		if unit != nil {
			attrs = append(attrs, "unit", unit.Name, "state", unit.State().String())
		}
		if errors.Is(err, ErrUnsupportedDomain) {
			c.log.Debug("not compiling", attrs...)
		} else {
			c.log.Warn("compilation failed, using interpreted tree", attrs...)
		}
		return root
	}
	return n
}

// TryCompile runs the pipeline and reports what went wrong. The unit is
// returned whenever one was created, including on failure.
func (c *Compiler) TryCompile(ctx context.Context, root expr.Node) (n expr.Node, unit *toolchain.Unit, err error) {
	c.compiles.Add(1)
	defer func() {
		if r := recover(); r != nil {
			n = nil
			err = fmt.Errorf("compiler panic: %v", r)
			if unit != nil {
				unit.Fail(err)
			}
		}
	}()

	if root == nil {
		return nil, nil, errors.New("nil expression")
	}
	if c.cfgErr != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", c.cfgErr)
	}
	fac := root.Factory()
	if fac == nil {
		return nil, nil, fmt.Errorf("%w: node %T has no factory", ErrUnsupportedDomain, root)
	}
	if d := fac.Domain(); d != expr.Real && d != expr.Complex {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedDomain, d)
	}

	backend := c.cfg.Backend
	ld, err := c.loaderFor(backend)
	if err != nil {
		return nil, nil, err
	}

	name := fmt.Sprintf("%s_%d", c.cfg.Prefix, c.alloc.Next())
	fn, gen, err := codegen.Lower(name, root, c.alloc)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}

	key := string(backend) + ":" + codegen.Fingerprint(fn)
	if entry, cached, ok := c.cache.Get(key); ok {
		n, err := entry.Instantiate(fac, fn.Children())
		if err == nil {
			c.hits.Add(1)
			c.log.Debug("artifact cache hit", "unit", entry.Unit(), "for", name)
			return n, cached, nil
		}
		c.log.Warn("cached unit failed to instantiate", "unit", entry.Unit(), "err", err)
	}

	unit = toolchain.NewUnit(backend, fn)
	if backend != toolchain.BackendInterp {
		if err := c.orch.Assemble(unit); err != nil {
			return nil, unit, err
		}
		if err := c.orch.Build(ctx, unit); err != nil {
			return nil, unit, err
		}
	}

	entry, err := ld.Load(unit)
	if err != nil {
		return nil, unit, unit.Fail(err)
	}
	if err := c.registry.Register(entry); err != nil {
		return nil, unit, unit.Fail(err)
	}
	n, err = entry.Instantiate(fac, fn.Children())
	if err != nil {
		return nil, unit, unit.Fail(err)
	}
	if err := unit.Advance(toolchain.Instantiated); err != nil {
		return nil, unit, unit.Fail(err)
	}
	c.cache.Add(key, entry, unit)

	c.log.Info("compiled",
		"unit", unit.Name,
		"backend", string(backend),
		"domain", fn.Domain.String(),
		"instrs", len(fn.Body),
		"captures", len(fn.Captures),
		"cse_hits", gen.CSEHits())
	return n, unit, nil
}

// Emit lowers root and renders the sources a backend would build, without
// writing or building anything.
func (c *Compiler) Emit(root expr.Node, backend toolchain.Backend) (*toolchain.Unit, error) {
	if c.cfgErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", c.cfgErr)
	}
	name := fmt.Sprintf("%s_%d", c.cfg.Prefix, c.alloc.Next())
	fn, _, err := codegen.Lower(name, root, c.alloc)
	if err != nil {
		return nil, err
	}
	unit := toolchain.NewUnit(backend, fn)
	if err := c.orch.Render(unit); err != nil {
		return nil, err
	}
	return unit, nil
}

func (c *Compiler) loaderFor(kind toolchain.Backend) (loader.Loader, error) {
	c.loaderMu.Lock()
	defer c.loaderMu.Unlock()
	if l, ok := c.loaders[kind]; ok {
		return l, nil
	}
	if err, ok := c.loaderErrs[kind]; ok {
		return nil, err
	}

	var (
		l   loader.Loader
		err error
	)
	switch kind {
	case toolchain.BackendNative:
		l, err = newNativeLoader()
	case toolchain.BackendHost:
		l, err = newPluginLoader()
	case toolchain.BackendInterp:
		l = loader.InterpLoader{}
	default:
		err = fmt.Errorf("unknown backend %q", kind)
	}
	if err != nil {
		c.loaderErrs[kind] = err
		return nil, err
	}
	c.loaders[kind] = l
	return l, nil
}

// The constructors return concrete pointer types; wrapping them here keeps
// a failed constructor from producing a non-nil interface around nil.
func newNativeLoader() (loader.Loader, error) {
	l, err := loader.NewNativeLoader()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func newPluginLoader() (loader.Loader, error) {
	l, err := loader.NewPluginLoader()
	if err != nil {
		return nil, err
	}
	return l, nil
}
