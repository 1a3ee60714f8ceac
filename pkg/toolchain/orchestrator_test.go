package toolchain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// fakeRunner records invocations and answers from a script keyed by stage
// order. The zero value succeeds for every command and creates the -o file.
type fakeRunner struct {
	mu    sync.Mutex
	calls []Command
	// exits[i] is the exit code of the i-th call.
	exits map[int]int
	errs  map[int]error
	// block makes every call wait for its context.
	block  bool
	output string
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) ([]byte, int, error) {
	f.mu.Lock()
	i := len(f.calls)
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, -1, ctx.Err()
	}
	if err := f.errs[i]; err != nil {
		return nil, -1, err
	}
	if code := f.exits[i]; code != 0 {
		return []byte(f.output), code, nil
	}
	for j, a := range cmd.Args {
		if a == "-o" && j+1 < len(cmd.Args) {
			os.WriteFile(filepath.Join(cmd.Dir, cmd.Args[j+1]), []byte("artifact"), 0o644)
		}
	}
	return nil, 0, nil
}

func newTestOrchestrator(t *testing.T, cfg Config, r Runner) *Orchestrator {
	t.Helper()
	cfg.ScratchDir = t.TempDir()
	if cfg.CC == "" {
		cfg.CC = "cc"
	}
	return NewOrchestrator(cfg, r, nil)
}

func TestAssembleNative(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, &fakeRunner{})
	u := NewUnit(BackendNative, testFunction(t, "Jit_10"))

	if err := o.Assemble(u); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if u.State() != SourceWritten {
		t.Errorf("state = %s, want source-written", u.State())
	}
	if want := []string{"Jit_10.c", "Jit_10.h"}; !reflect.DeepEqual(u.SourceFiles(), want) {
		t.Errorf("sources = %v, want %v", u.SourceFiles(), want)
	}
	for _, name := range u.SourceFiles() {
		data, err := os.ReadFile(filepath.Join(u.Dir, name))
		if err != nil {
			t.Fatalf("source not written: %v", err)
		}
		if string(data) != u.Sources[name] {
			t.Errorf("%s on disk differs from unit source", name)
		}
	}
	if filepath.Base(u.Dir) != "Jit_10" {
		t.Errorf("unit dir = %s", u.Dir)
	}
}

func TestAssembleHost(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, &fakeRunner{})
	u := NewUnit(BackendHost, testFunction(t, "Jit_11"))
	if err := o.Assemble(u); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	mod := u.Sources["go.mod"]
	if !strings.HasPrefix(mod, "module symjit.local/jit_11\n") || !strings.Contains(mod, "\ngo 1.") {
		t.Errorf("go.mod = %q", mod)
	}
	if !strings.Contains(u.Sources["Jit_11.go"], "func Eval(") {
		t.Error("plugin source missing Eval")
	}
}

func TestAssembleInterpRejected(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, &fakeRunner{})
	u := NewUnit(BackendInterp, testFunction(t, "Jit_12"))
	if err := o.Assemble(u); err == nil {
		t.Fatal("interp unit assembled")
	}
	if u.State() != Failed {
		t.Errorf("state = %s, want failed", u.State())
	}
}

func TestBuildNativeCommands(t *testing.T) {
	r := &fakeRunner{}
	o := newTestOrchestrator(t, Config{CC: "mycc", IncludeDirs: []string{"/inc"}}, r)
	u := NewUnit(BackendNative, testFunction(t, "Jit_13"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	if err := o.Build(context.Background(), u); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(r.calls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(r.calls))
	}
	compile := r.calls[0].Argv()
	wantCompile := []string{"mycc", "-c", "-fPIC", "-O3", "-I" + u.Dir, "-I/inc", "Jit_13.c", "-o", "Jit_13.o"}
	if !reflect.DeepEqual(compile, wantCompile) {
		t.Errorf("compile = %v\nwant %v", compile, wantCompile)
	}
	lib := ArtifactName(BackendNative, "Jit_13")
	link := r.calls[1].Argv()
	wantLink := []string{"mycc", "-shared", "-fPIC", "-o", lib, "Jit_13.o", "-lm"}
	if !reflect.DeepEqual(link, wantLink) {
		t.Errorf("link = %v\nwant %v", link, wantLink)
	}
	for _, c := range r.calls {
		if c.Dir != u.Dir {
			t.Errorf("command ran in %s, want %s", c.Dir, u.Dir)
		}
	}

	if u.State() != Linked {
		t.Errorf("state = %s, want linked", u.State())
	}
	if u.Artifact != filepath.Join(u.Dir, lib) {
		t.Errorf("artifact = %s", u.Artifact)
	}
	// Intermediates are removed unless KeepSources is set.
	if _, err := os.Stat(filepath.Join(u.Dir, "Jit_13.c")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("source left behind: %v", err)
	}
	if _, err := os.Stat(u.Artifact); err != nil {
		t.Errorf("artifact removed: %v", err)
	}
}

func TestBuildKeepSources(t *testing.T) {
	o := newTestOrchestrator(t, Config{KeepSources: true}, &fakeRunner{})
	u := NewUnit(BackendNative, testFunction(t, "Jit_14"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	if err := o.Build(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Jit_14.c", "Jit_14.h", "Jit_14.o"} {
		if _, err := os.Stat(filepath.Join(u.Dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestBuildHostCommand(t *testing.T) {
	r := &fakeRunner{}
	o := newTestOrchestrator(t, Config{Go: "/usr/local/go/bin/go"}, r)
	u := NewUnit(BackendHost, testFunction(t, "Jit_15"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	if err := o.Build(context.Background(), u); err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{"/usr/local/go/bin/go", "build", "-buildmode=plugin", "-o", "Jit_15.so", "."}
	if got := r.calls[0].Argv(); !reflect.DeepEqual(got, want) {
		t.Errorf("plugin build = %v\nwant %v", got, want)
	}
	if !reflect.DeepEqual(r.calls[0].Env, []string{"GOWORK=off", "GOFLAGS=-mod=mod"}) {
		t.Errorf("env = %v", r.calls[0].Env)
	}
	if u.State() != HostCompiled {
		t.Errorf("state = %s, want host-compiled", u.State())
	}
}

func TestBuildExitStatus(t *testing.T) {
	output := "Jit_16.c:4:2: error: expected ';'\n1 error generated.\n"

	t.Run("checked", func(t *testing.T) {
		r := &fakeRunner{exits: map[int]int{0: 1}, output: output}
		o := newTestOrchestrator(t, Config{}, r)
		u := NewUnit(BackendNative, testFunction(t, "Jit_16"))
		if err := o.Assemble(u); err != nil {
			t.Fatal(err)
		}
		err := o.Build(context.Background(), u)
		var ie *InvocationError
		if !errors.As(err, &ie) {
			t.Fatalf("err = %v, want InvocationError", err)
		}
		if ie.Stage != StageCompile || ie.ExitCode != 1 {
			t.Errorf("stage %s exit %d", ie.Stage, ie.ExitCode)
		}
		if !reflect.DeepEqual(ie.Diagnostics, []string{"Jit_16.c:4:2: error: expected ';'"}) {
			t.Errorf("diagnostics = %q", ie.Diagnostics)
		}
		if len(r.calls) != 1 {
			t.Errorf("link ran after failed compile")
		}
		if u.State() != Failed || u.Err() != err {
			t.Errorf("unit state %s err %v", u.State(), u.Err())
		}
	})

	t.Run("ignored", func(t *testing.T) {
		r := &fakeRunner{exits: map[int]int{0: 1}, output: output}
		o := newTestOrchestrator(t, Config{IgnoreExitStatus: true}, r)
		u := NewUnit(BackendNative, testFunction(t, "Jit_17"))
		if err := o.Assemble(u); err != nil {
			t.Fatal(err)
		}
		if err := o.Build(context.Background(), u); err != nil {
			t.Fatalf("Build: %v", err)
		}
		if len(r.calls) != 2 {
			t.Errorf("got %d calls, want compile and link", len(r.calls))
		}
		if u.State() != Linked {
			t.Errorf("state = %s", u.State())
		}
	})
}

func TestBuildToolNotFound(t *testing.T) {
	o := newTestOrchestrator(t, Config{CC: "symjit-no-such-compiler"}, ExecRunner{})
	u := NewUnit(BackendNative, testFunction(t, "Jit_18"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	err := o.Build(context.Background(), u)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
	var ie *InvocationError
	if !errors.As(err, &ie) || ie.Stage != StageCompile {
		t.Errorf("err = %#v", err)
	}
}

func TestBuildTimeout(t *testing.T) {
	r := &fakeRunner{block: true}
	o := newTestOrchestrator(t, Config{Timeout: 20 * time.Millisecond}, r)
	u := NewUnit(BackendNative, testFunction(t, "Jit_19"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	err := o.Build(context.Background(), u)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if te.Stage != StageCompile || te.Timeout != 20*time.Millisecond {
		t.Errorf("timeout error = %+v", te)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v does not wrap context.DeadlineExceeded", err)
	}
}

func TestBuildCancelled(t *testing.T) {
	r := &fakeRunner{block: true}
	o := newTestOrchestrator(t, Config{}, r)
	u := NewUnit(BackendNative, testFunction(t, "Jit_20"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.Build(ctx, u)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		t.Error("cancellation reported as timeout")
	}
}

func TestRateLimitedBuilds(t *testing.T) {
	r := &fakeRunner{}
	o := newTestOrchestrator(t, Config{BuildsPerSecond: 20}, r)
	start := time.Now()
	for i, name := range []string{"Jit_21", "Jit_22"} {
		u := NewUnit(BackendNative, testFunction(t, name))
		if err := o.Assemble(u); err != nil {
			t.Fatal(err)
		}
		if err := o.Build(context.Background(), u); err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
	}
	// Four launches at 20/s with a burst of one take at least 150ms.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("four launches took %s, limiter not applied", elapsed)
	}
}

func TestScratchDirCreatedOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "scratch")
	o := NewOrchestrator(Config{ScratchDir: dir}, &fakeRunner{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := o.ScratchDir()
			if err != nil || got != dir {
				t.Errorf("ScratchDir = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("scratch dir not created: %v", err)
	}
}

func TestDiscard(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, &fakeRunner{})
	u := NewUnit(BackendNative, testFunction(t, "Jit_23"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	if err := o.Discard(u); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(u.Dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unit dir still present: %v", err)
	}
}

type diagnosticsCase struct {
	Name   string   `yaml:"name"`
	Output string   `yaml:"output"`
	Want   []string `yaml:"want"`
}

type diagnosticsFile struct {
	Tests []diagnosticsCase `yaml:"tests"`
}

func TestDiagnostics(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "diagnostics.yaml"))
	if err != nil {
		t.Fatalf("failed to read diagnostics.yaml: %v", err)
	}
	var file diagnosticsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to parse diagnostics.yaml: %v", err)
	}
	for _, tc := range file.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			got := Diagnostics(tc.Output)
			if len(got) != len(tc.Want) {
				t.Fatalf("got %q, want %q", got, tc.Want)
			}
			for i := range got {
				if got[i] != tc.Want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tc.Want[i])
				}
			}
		})
	}
}

// TestBuildNativeWithSystemCompiler runs the real C toolchain.
func TestBuildNativeWithSystemCompiler(t *testing.T) {
	cc := findCompiler()
	if _, err := exec.LookPath(cc); err != nil {
		t.Skip("no C compiler found")
	}
	o := NewOrchestrator(Config{ScratchDir: t.TempDir(), CC: cc}, nil, nil)
	u := NewUnit(BackendNative, testFunction(t, "Jit_24"))
	if err := o.Assemble(u); err != nil {
		t.Fatal(err)
	}
	if err := o.Build(context.Background(), u); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if fi, err := os.Stat(u.Artifact); err != nil || fi.Size() == 0 {
		t.Errorf("artifact missing or empty: %v", err)
	}
}
