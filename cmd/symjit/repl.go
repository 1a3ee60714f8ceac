package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/raymyers/symjit/pkg/compiled"
	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/exprio"
	"github.com/raymyers/symjit/pkg/jit"
	"github.com/spf13/cobra"
)

const (
	historyFile = ".symjit_history"
	promptMain  = "symjit> "
	promptCont  = "   ...> "
)

const replHelp = `Enter an s-expression to compile and evaluate it, e.g. (add (mult x x) 1).
  :let NAME VALUE   bind a variable (VALUE is a number or (c re im))
  :env              show bindings
  :stats            show compiler counters
  :quit             leave
`

func newReplCmd(out, errOut io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Compile and evaluate s-expressions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.parseDomain()
			if err != nil {
				return err
			}
			c, err := o.compiler(cmd.Flags(), errOut)
			if err != nil {
				return err
			}
			fac, _ := expr.FactoryFor(d)
			s := &session{compiler: c, fac: fac, env: expr.Env{}, out: out, errOut: errOut}
			return s.loop(cmd.Context())
		},
	}
	addCompileFlags(cmd.Flags(), &o)
	return cmd
}

// session is the state of one REPL run. It is separate from the line
// editor so it can be driven directly.
type session struct {
	compiler *jit.Compiler
	fac      expr.Factory
	env      expr.Env
	out      io.Writer
	errOut   io.Writer
}

func (s *session) loop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintf(s.out, "symjit %s (%s backend). Type :help for help.\n", version, s.compiler.Config().Backend)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		src, ok := s.read(ln)
		if !ok {
			fmt.Fprintln(s.out)
			return nil
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		if s.handle(ctx, src) {
			return nil
		}
	}
}

// read collects lines until they form a complete expression or command.
func (s *session) read(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl-C abandons the current input.
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := exprio.ParseSExpr(src, s.fac); !errors.Is(err, exprio.ErrIncomplete) {
			return src, true
		}
	}
}

// handle runs one command or expression and reports whether to quit.
func (s *session) handle(ctx context.Context, src string) bool {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, ":") {
		return s.command(src)
	}

	root, err := exprio.ParseSExpr(src, s.fac)
	if err != nil {
		fmt.Fprintf(s.errOut, "error: %v\n", err)
		return false
	}
	n := s.compiler.Compile(ctx, root)
	v, err := n.Evaluate(s.env)
	if err != nil {
		fmt.Fprintf(s.errOut, "error: %v\n", err)
		return false
	}
	how := "interpreted"
	if cn, ok := n.(compiled.Node); ok {
		how = cn.Unit()
	}
	fmt.Fprintf(s.out, "%v  [%s]\n", v, how)
	return false
}

func (s *session) command(src string) bool {
	fields := strings.Fields(src)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Fprint(s.out, replHelp)
	case ":env":
		if len(s.env) == 0 {
			fmt.Fprintln(s.out, "(no bindings)")
		} else {
			fmt.Fprintln(s.out, formatEnv(s.env))
		}
	case ":stats":
		st := s.compiler.Stats()
		fmt.Fprintf(s.out, "compiles=%d fallbacks=%d cache_hits=%d units=%d\n",
			st.Compiles, st.Fallbacks, st.CacheHits, st.Units)
	case ":let":
		rest := strings.TrimSpace(strings.TrimPrefix(src, ":let"))
		name, lit, ok := strings.Cut(rest, " ")
		if !ok {
			name, lit, ok = strings.Cut(rest, "=")
		}
		if !ok {
			fmt.Fprintln(s.errOut, "usage: :let NAME VALUE")
			return false
		}
		lit = strings.TrimPrefix(strings.TrimSpace(lit), "=")
		name, v, err := exprio.ParseBinding(name+"="+lit, s.fac.Domain())
		if err != nil {
			fmt.Fprintf(s.errOut, "error: %v\n", err)
			return false
		}
		s.env[name] = v
		fmt.Fprintf(s.out, "%s = %v\n", name, v)
	default:
		fmt.Fprintf(s.errOut, "unknown command %s. Type :help for help.\n", fields[0])
	}
	return false
}
