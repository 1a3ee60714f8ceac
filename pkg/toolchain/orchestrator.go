package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/raymyers/symjit/pkg/codegen"
)

// Orchestrator writes units to the scratch directory and builds them.
// It is safe for concurrent use; each unit has its own directory.
type Orchestrator struct {
	cfg     Config
	runner  Runner
	limiter *rate.Limiter
	log     *slog.Logger

	scratchOnce sync.Once
	scratch     string
	scratchErr  error
}

// NewOrchestrator creates an orchestrator. A nil runner runs real
// subprocesses; a nil logger discards.
func NewOrchestrator(cfg Config, runner Runner, log *slog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &Orchestrator{cfg: cfg, runner: runner, log: log}
	if cfg.BuildsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.BuildsPerSecond), 1)
	}
	return o
}

// Config returns the orchestrator's normalized configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// ScratchDir returns the scratch directory, creating it on first use. The
// directory is reused for the orchestrator's lifetime and never removed.
func (o *Orchestrator) ScratchDir() (string, error) {
	o.scratchOnce.Do(func() {
		if o.cfg.ScratchDir != "" {
			o.scratch = o.cfg.ScratchDir
			o.scratchErr = os.MkdirAll(o.scratch, 0o755)
			return
		}
		o.scratch, o.scratchErr = os.MkdirTemp("", "symjit-")
	})
	if o.scratchErr != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", o.scratchErr)
	}
	return o.scratch, nil
}

// Render fills unit.Sources without touching the filesystem.
func (o *Orchestrator) Render(unit *Unit) error {
	fn := unit.Function
	switch unit.Kind {
	case BackendNative:
		var h, c bytes.Buffer
		p := codegen.NewCPrinter(&h)
		p.PrintHeader(fn)
		codegen.NewCPrinter(&c).PrintUnit(fn)
		unit.Sources[fn.Name+".h"] = h.String()
		unit.Sources[fn.Name+".c"] = c.String()
	case BackendHost:
		var g bytes.Buffer
		codegen.NewGoPrinter(&g).PrintUnit(fn)
		unit.Sources["go.mod"] = pluginModule(fn.Name)
		unit.Sources[fn.Name+".go"] = g.String()
	default:
		return fmt.Errorf("unit %s: backend %q has no sources", unit.Name, unit.Kind)
	}
	return nil
}

// Assemble renders the unit's sources and writes them under the scratch
// directory, moving the unit from Draft to SourceWritten.
func (o *Orchestrator) Assemble(unit *Unit) error {
	if err := o.Render(unit); err != nil {
		return unit.Fail(err)
	}
	root, err := o.ScratchDir()
	if err != nil {
		return unit.Fail(err)
	}
	unit.Dir = filepath.Join(root, unit.Name)
	if err := os.MkdirAll(unit.Dir, 0o755); err != nil {
		return unit.Fail(fmt.Errorf("unit %s: %w", unit.Name, err))
	}

	// The header goes first; the translation unit includes it.
	files := unit.SourceFiles()
	if unit.Kind == BackendNative {
		files = []string{unit.Name + ".h", unit.Name + ".c"}
	}
	for _, name := range files {
		if err := os.WriteFile(unit.path(name), []byte(unit.Sources[name]), 0o644); err != nil {
			return unit.Fail(&InvocationError{Unit: unit.Name, Stage: StageWrite, Err: err})
		}
	}
	o.log.Debug("sources written", "unit", unit.Name, "dir", unit.Dir, "files", len(files))
	return unit.Advance(SourceWritten)
}

// Build runs the external tools over an assembled unit and records the
// artifact path. On success the unit is Linked (native) or HostCompiled.
func (o *Orchestrator) Build(ctx context.Context, unit *Unit) error {
	var err error
	switch unit.Kind {
	case BackendNative:
		err = o.buildNative(ctx, unit)
	case BackendHost:
		err = o.buildPlugin(ctx, unit)
	default:
		err = fmt.Errorf("unit %s: backend %q is not built", unit.Name, unit.Kind)
	}
	if err != nil {
		return unit.Fail(err)
	}
	if !o.cfg.KeepSources {
		o.removeIntermediates(unit)
	}
	return nil
}

func (o *Orchestrator) buildNative(ctx context.Context, unit *Unit) error {
	obj := unit.Name + ".o"
	lib := ArtifactName(BackendNative, unit.Name)

	args := append([]string{}, o.cfg.CFlags...)
	args = append(args, "-I"+unit.Dir)
	for _, dir := range o.cfg.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	args = append(args, unit.Name+".c", "-o", obj)
	if err := o.run(ctx, unit, StageCompile, Command{Dir: unit.Dir, Path: o.cfg.CC, Args: args}); err != nil {
		return err
	}
	if err := unit.Advance(NativeCompiled); err != nil {
		return err
	}

	args = append([]string{}, o.cfg.LDFlags...)
	args = append(args, "-o", lib, obj)
	args = append(args, o.cfg.LDLibs...)
	if err := o.run(ctx, unit, StageLink, Command{Dir: unit.Dir, Path: o.cfg.CC, Args: args}); err != nil {
		return err
	}
	unit.Artifact = unit.path(lib)
	return unit.Advance(Linked)
}

func (o *Orchestrator) buildPlugin(ctx context.Context, unit *Unit) error {
	out := ArtifactName(BackendHost, unit.Name)
	args := append([]string{}, o.cfg.GoFlags...)
	args = append(args, "-o", out, ".")
	cmd := Command{
		Dir:  unit.Dir,
		Path: o.cfg.Go,
		Args: args,
		Env:  []string{"GOWORK=off", "GOFLAGS=-mod=mod"},
	}
	if err := o.run(ctx, unit, StagePlugin, cmd); err != nil {
		return err
	}
	unit.Artifact = unit.path(out)
	return unit.Advance(HostCompiled)
}

// run invokes one tool under the configured timeout and rate limit.
func (o *Orchestrator) run(ctx context.Context, unit *Unit, stage Stage, cmd Command) error {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("unit %s: %s: %w", unit.Name, stage, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	o.log.Debug("running tool", "unit", unit.Name, "stage", string(stage), "cmd", cmd.String())
	output, code, err := o.runner.Run(runCtx, cmd)
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return &TimeoutError{Unit: unit.Name, Stage: stage, Command: cmd.Argv(), Timeout: o.cfg.Timeout, Err: err}
	case err != nil && ctx.Err() != nil:
		return fmt.Errorf("unit %s: %s: %w", unit.Name, stage, ctx.Err())
	case err != nil:
		return &InvocationError{
			Unit:     unit.Name,
			Stage:    stage,
			Command:  cmd.Argv(),
			ExitCode: code,
			Output:   string(output),
			Err:      err,
		}
	}

	if code != 0 {
		ierr := &InvocationError{
			Unit:        unit.Name,
			Stage:       stage,
			Command:     cmd.Argv(),
			ExitCode:    code,
			Output:      string(output),
			Diagnostics: Diagnostics(string(output)),
		}
		if !o.cfg.IgnoreExitStatus {
			return ierr
		}
		o.log.Warn("ignoring tool exit status", "unit", unit.Name, "stage", string(stage), "exit", code)
	}
	return nil
}

// removeIntermediates deletes everything but the artifact from the unit's
// directory.
func (o *Orchestrator) removeIntermediates(unit *Unit) {
	files := unit.SourceFiles()
	if unit.Kind == BackendNative {
		files = append(files, unit.Name+".o")
	}
	for _, name := range files {
		if err := os.Remove(unit.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.log.Debug("failed to remove intermediate", "unit", unit.Name, "file", name, "err", err)
		}
	}
}

// Discard removes a unit's directory. Libraries already mapped into the
// process stay usable.
func (o *Orchestrator) Discard(unit *Unit) error {
	if unit.Dir == "" {
		return nil
	}
	return os.RemoveAll(unit.Dir)
}

// pluginModule returns the go.mod of a plugin unit, pinned to the language
// version of the running binary so the plugin and host agree.
func pluginModule(name string) string {
	return fmt.Sprintf("module symjit.local/%s\n\ngo %s\n", strings.ToLower(name), goLanguageVersion())
}

func goLanguageVersion() string {
	v := strings.TrimPrefix(runtime.Version(), "go")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return "1.21"
	}
	minor := parts[1]
	if i := strings.IndexFunc(minor, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minor = minor[:i]
	}
	if parts[0] != "1" || minor == "" {
		return "1.21"
	}
	return "1." + minor
}
