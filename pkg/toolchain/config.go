// Package toolchain turns generated code into loadable artifacts: it writes
// a compilation unit's sources to the scratch directory and drives the
// external compiler and linker over them.
package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/coregx/coregex"
	"gopkg.in/yaml.v3"
)

// Backend selects how a compiled unit is built and loaded.
type Backend string

const (
	BackendNative Backend = "native" // C shared library loaded with dlopen
	BackendHost   Backend = "host"   // Go plugin
	BackendInterp Backend = "interp" // in-process IR execution, no toolchain
)

// ParseBackend parses a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendNative, BackendHost, BackendInterp:
		return b, nil
	}
	return "", fmt.Errorf("unknown backend %q (want native, host or interp)", s)
}

// Config controls naming, scratch space and the external tools.
type Config struct {
	// Prefix starts every unit name: <Prefix>_<id>.
	Prefix string `yaml:"prefix"`
	// ScratchDir holds generated sources and artifacts. Empty means a fresh
	// directory under os.TempDir, created on first use.
	ScratchDir string `yaml:"scratch_dir"`

	CC          string   `yaml:"cc"`
	CFlags      []string `yaml:"cflags"`
	IncludeDirs []string `yaml:"include_dirs"`
	LDFlags     []string `yaml:"ldflags"`
	LDLibs      []string `yaml:"ldlibs"`

	Go      string   `yaml:"go"`
	GoFlags []string `yaml:"goflags"`

	Timeout time.Duration `yaml:"timeout"`
	// IgnoreExitStatus logs a failing tool and carries on with the next
	// stage instead of failing the unit.
	IgnoreExitStatus bool    `yaml:"ignore_exit_status"`
	BuildsPerSecond  float64 `yaml:"builds_per_second"`

	CacheSize   int     `yaml:"cache_size"`
	KeepSources bool    `yaml:"keep_sources"`
	Backend     Backend `yaml:"backend"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

var identPattern = mustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func mustCompile(pattern string) *coregex.Regexp {
	re, err := coregex.Compile(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "Jit"
	}
	if c.CC == "" {
		c.CC = findCompiler()
	}
	if c.CFlags == nil {
		c.CFlags = []string{"-c", "-fPIC", "-O3"}
	}
	if c.LDFlags == nil {
		c.LDFlags = []string{"-shared", "-fPIC"}
	}
	if c.LDLibs == nil {
		c.LDLibs = []string{"-lm"}
	}
	if c.Go == "" {
		c.Go = "go"
	}
	if c.GoFlags == nil {
		c.GoFlags = []string{"build", "-buildmode=plugin"}
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.CacheSize == 0 {
		c.CacheSize = 64
	}
	if c.Backend == "" {
		c.Backend = BackendNative
	}
}

// Normalize fills unset fields with defaults and validates the result.
func (c *Config) Normalize() error {
	c.applyDefaults()
	if !identPattern.MatchString(c.Prefix) {
		return fmt.Errorf("prefix %q is not a valid identifier", c.Prefix)
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.BuildsPerSecond < 0 {
		return fmt.Errorf("builds_per_second must not be negative, got %g", c.BuildsPerSecond)
	}
	return nil
}

// LoadConfig reads a YAML configuration file and normalizes it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration and normalizes it.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Normalize(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// findCompiler searches for a C compiler on the system
func findCompiler() string {
	for _, cmd := range []string{"cc", "gcc", "clang"} {
		if path, err := exec.LookPath(cmd); err == nil {
			return path
		}
	}
	// A missing compiler surfaces as ErrToolNotFound at build time.
	return "cc"
}
