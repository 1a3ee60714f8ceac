package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/exprio"
	"github.com/raymyers/symjit/pkg/jit"
	"github.com/raymyers/symjit/pkg/toolchain"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "symjit: %v\n", err)
		return 1
	}
	return 0
}

// options are the flags shared by every subcommand that compiles.
type options struct {
	configPath string
	backend    string
	domain     string
	timeout    time.Duration
	keep       bool
	verbose    bool
	envs       []string
}

func addCompileFlags(fs *pflag.FlagSet, o *options) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Toolchain configuration file (YAML)")
	fs.StringVarP(&o.backend, "backend", "b", "", "Backend: native, host or interp (default from config)")
	fs.StringVarP(&o.domain, "domain", "d", "real", "Domain for s-expression input: real or complex")
	fs.DurationVar(&o.timeout, "timeout", 0, "Per-invocation toolchain timeout (default from config)")
	fs.BoolVar(&o.keep, "keep", false, "Keep generated sources and object files")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "Log pipeline activity to stderr")
}

// config loads the configuration file, if any, and applies flag overrides.
func (o *options) config(fs *pflag.FlagSet) (toolchain.Config, error) {
	cfg := toolchain.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = toolchain.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	if fs.Changed("backend") {
		b, err := toolchain.ParseBackend(o.backend)
		if err != nil {
			return cfg, err
		}
		cfg.Backend = b
	}
	if fs.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if o.keep {
		cfg.KeepSources = true
	}
	return cfg, cfg.Normalize()
}

func (o *options) compiler(fs *pflag.FlagSet, errOut io.Writer) (*jit.Compiler, error) {
	cfg, err := o.config(fs)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	return jit.New(cfg, jit.WithLogger(log)), nil
}

func (o *options) parseDomain() (expr.Domain, error) {
	d, err := expr.ParseDomain(o.domain)
	if err != nil {
		return 0, err
	}
	if d == expr.Matrix {
		return 0, errors.New("matrix trees can only be read from YAML documents")
	}
	return d, nil
}

// readDocument reads path and merges --env bindings over the document's.
func (o *options) readDocument(path string) (*exprio.Document, error) {
	d, err := o.parseDomain()
	if err != nil {
		return nil, err
	}
	doc, err := exprio.ReadFile(path, d)
	if err != nil {
		return nil, err
	}
	for _, b := range o.envs {
		name, v, err := exprio.ParseBinding(b, doc.Factory.Domain())
		if err != nil {
			return nil, err
		}
		doc.Env[name] = v
	}
	return doc, nil
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "symjit",
		Short: "symjit compiles expression trees to native code",
		Long: `symjit lowers expression trees over the reals or the complex numbers
to C or Go, builds them with the system toolchain, loads the result and
evaluates it next to the interpreted tree.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.AddCommand(newEvalCmd(out, errOut))
	rootCmd.AddCommand(newEmitCmd(out, errOut))
	rootCmd.AddCommand(newReplCmd(out, errOut))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "symjit %s\n", version)
		},
	})
	return rootCmd
}

func newEvalCmd(out, errOut io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "eval FILE",
		Short: "Compile a tree and evaluate it both ways",
		Long: `eval reads a tree from FILE (YAML for .yaml/.yml, otherwise an
s-expression), evaluates it with the interpreter, compiles it and evaluates
the compiled node. A tree that cannot be compiled is reported and the
interpreted result stands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := o.readDocument(args[0])
			if err != nil {
				return err
			}
			c, err := o.compiler(cmd.Flags(), errOut)
			if err != nil {
				return err
			}
			return doEval(cmd.Context(), c, doc, out)
		},
	}
	addCompileFlags(cmd.Flags(), &o)
	cmd.Flags().StringArrayVarP(&o.envs, "env", "e", nil, "Bind a variable (NAME=VALUE); repeatable")
	return cmd
}

func doEval(ctx context.Context, c *jit.Compiler, doc *exprio.Document, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintf(out, "tree:        %s\n", exprio.Format(doc.Root))
	if len(doc.Env) > 0 {
		fmt.Fprintf(out, "env:         %s\n", formatEnv(doc.Env))
	}

	want, ierr := doc.Root.Evaluate(doc.Env)
	if ierr != nil {
		fmt.Fprintf(out, "interpreted: error: %v\n", ierr)
	} else {
		fmt.Fprintf(out, "interpreted: %v\n", want)
	}

	n, unit, err := c.TryCompile(ctx, doc.Root)
	if err != nil {
		fmt.Fprintf(out, "compiled:    not compiled: %v\n", err)
		return ierr
	}
	got, cerr := n.Evaluate(doc.Env)
	if cerr != nil {
		fmt.Fprintf(out, "compiled:    error: %v\n", cerr)
	} else {
		fmt.Fprintf(out, "compiled:    %v\n", got)
	}
	fmt.Fprintf(out, "unit:        %s (%s, %d captured)\n", unit.Name, unit.Kind, len(unit.Function.Captures))
	if unit.Dir != "" && c.Config().KeepSources {
		fmt.Fprintf(out, "sources:     %s\n", unit.Dir)
	}
	if ierr != nil {
		return ierr
	}
	return cerr
}

func formatEnv(env expr.Env) string {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = fmt.Sprintf("%s=%v", name, env[name])
	}
	return strings.Join(pairs, " ")
}

func newEmitCmd(out, errOut io.Writer) *cobra.Command {
	var (
		o    options
		lang string
	)
	cmd := &cobra.Command{
		Use:   "emit FILE",
		Short: "Print the generated source for a tree without building it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var backend toolchain.Backend
			switch lang {
			case "c":
				backend = toolchain.BackendNative
			case "go":
				backend = toolchain.BackendHost
			default:
				return fmt.Errorf("unknown language %q (want c or go)", lang)
			}
			doc, err := o.readDocument(args[0])
			if err != nil {
				return err
			}
			c, err := o.compiler(cmd.Flags(), errOut)
			if err != nil {
				return err
			}
			unit, err := c.Emit(doc.Root, backend)
			if err != nil {
				return err
			}
			for _, name := range unit.SourceFiles() {
				fmt.Fprintf(out, "// ---- %s ----\n%s", name, unit.Sources[name])
			}
			return nil
		},
	}
	addCompileFlags(cmd.Flags(), &o)
	cmd.Flags().StringVarP(&lang, "lang", "l", "c", "Output language: c or go")
	return cmd
}
