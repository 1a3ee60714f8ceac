package toolchain

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	if c.Prefix != "Jit" {
		t.Errorf("Prefix = %q, want Jit", c.Prefix)
	}
	if !reflect.DeepEqual(c.CFlags, []string{"-c", "-fPIC", "-O3"}) {
		t.Errorf("CFlags = %v", c.CFlags)
	}
	if !reflect.DeepEqual(c.LDFlags, []string{"-shared", "-fPIC"}) {
		t.Errorf("LDFlags = %v", c.LDFlags)
	}
	if !reflect.DeepEqual(c.GoFlags, []string{"build", "-buildmode=plugin"}) {
		t.Errorf("GoFlags = %v", c.GoFlags)
	}
	if c.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %s, want 2m", c.Timeout)
	}
	if c.CacheSize != 64 {
		t.Errorf("CacheSize = %d, want 64", c.CacheSize)
	}
	if c.Backend != BackendNative {
		t.Errorf("Backend = %q, want native", c.Backend)
	}
	if c.IgnoreExitStatus {
		t.Error("IgnoreExitStatus should default to false")
	}
	if c.CC == "" {
		t.Error("CC should never be empty")
	}
}

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if c.Prefix != "Sym" {
		t.Errorf("Prefix = %q, want Sym", c.Prefix)
	}
	if c.CC != "clang" {
		t.Errorf("CC = %q, want clang", c.CC)
	}
	if !reflect.DeepEqual(c.CFlags, []string{"-c", "-fPIC", "-O2"}) {
		t.Errorf("CFlags = %v", c.CFlags)
	}
	if !reflect.DeepEqual(c.IncludeDirs, []string{"/opt/include"}) {
		t.Errorf("IncludeDirs = %v", c.IncludeDirs)
	}
	if c.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", c.Timeout)
	}
	if !c.IgnoreExitStatus || !c.KeepSources {
		t.Error("boolean flags not decoded")
	}
	if c.BuildsPerSecond != 4 || c.CacheSize != 8 {
		t.Errorf("BuildsPerSecond = %g, CacheSize = %d", c.BuildsPerSecond, c.CacheSize)
	}
	if c.Backend != BackendHost {
		t.Errorf("Backend = %q, want host", c.Backend)
	}
	// Unset fields still get defaults.
	if !reflect.DeepEqual(c.LDLibs, []string{"-lm"}) {
		t.Errorf("LDLibs = %v, want [-lm]", c.LDLibs)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad prefix", "prefix: 9lives\n"},
		{"prefix with dash", "prefix: my-jit\n"},
		{"bad backend", "backend: llvm\n"},
		{"negative timeout", "timeout: -1s\n"},
		{"negative rate", "builds_per_second: -2\n"},
		{"not yaml", "prefix: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.yaml)); err == nil {
				t.Errorf("ParseConfig(%q) succeeded, want error", tt.yaml)
			}
		})
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join("testdata", "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseBackend(t *testing.T) {
	for _, s := range []string{"native", "host", "interp"} {
		if b, err := ParseBackend(s); err != nil || string(b) != s {
			t.Errorf("ParseBackend(%q) = %q, %v", s, b, err)
		}
	}
	if _, err := ParseBackend("jvm"); err == nil {
		t.Error("ParseBackend(jvm) should fail")
	}
}
