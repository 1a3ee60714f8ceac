package codegen

import (
	"fmt"
	"io"
	"math"

	"github.com/raymyers/symjit/pkg/expr"
)

// PluginEvalSymbol is the exported function a host-backend plugin provides.
// Its type is one of
//
//	func(func(int) (float64, error)) (float64, error)
//	func(func(int) (float64, float64, error)) (float64, float64, error)
//
// so the plugin and the host share no types beyond the builtins.
const PluginEvalSymbol = "Eval"

// GoPrinter emits a Go plugin package for a Function.
type GoPrinter struct {
	w io.Writer
}

// NewGoPrinter creates a Go printer writing to w.
func NewGoPrinter(w io.Writer) *GoPrinter {
	return &GoPrinter{w: w}
}

// PrintUnit writes the plugin's single source file.
func (p *GoPrinter) PrintUnit(fn *Function) {
	fmt.Fprintf(p.w, "// Code generated by symjit. DO NOT EDIT.\n\n")
	fmt.Fprintf(p.w, "package main\n\n")
	if needsMath(fn) {
		fmt.Fprintf(p.w, "import \"math\"\n\n")
	}
	fmt.Fprintf(p.w, "// Unit names the compilation unit this plugin was built from.\n")
	fmt.Fprintf(p.w, "var Unit = %q\n\n", fn.Name)

	if hasZeroDivisor(fn) {
		// Go rejects division by a constant zero at compile time.
		fmt.Fprintf(p.w, "var zeroDivisor float64\n\n")
	}

	if len(fn.Captures) > 0 {
		fmt.Fprintf(p.w, "const (\n")
		for _, c := range fn.Captures {
			fmt.Fprintf(p.w, "\t%s = %d\n", c.Member, c.Slot)
		}
		fmt.Fprintf(p.w, ")\n\n")
	}

	complexDomain := fn.Domain == expr.Complex
	zero := "0"
	if complexDomain {
		zero = "0, 0"
		fmt.Fprintf(p.w, "func %s(cb func(int) (float64, float64, error)) (float64, float64, error) {\n", PluginEvalSymbol)
	} else {
		fmt.Fprintf(p.w, "func %s(cb func(int) (float64, error)) (float64, error) {\n", PluginEvalSymbol)
	}

	read := make(map[Temp]bool)
	for _, in := range fn.Body {
		if a, ok := in.(Assign); ok {
			reads(a.Src, read)
		}
	}
	for _, t := range fn.Result {
		read[t] = true
	}

	for _, in := range fn.Body {
		switch i := in.(type) {
		case Assign:
			fmt.Fprintf(p.w, "\t%s := %s\n", i.Dst, goExpr(i.Src, false))
			if !read[i.Dst] {
				fmt.Fprintf(p.w, "\t_ = %s\n", i.Dst)
			}
		case Callback:
			if len(i.Dsts) == 1 {
				fmt.Fprintf(p.w, "\t%s, err := cb(%s)\n", i.Dsts[0], i.Member)
			} else {
				fmt.Fprintf(p.w, "\t%s, %s, err := cb(%s)\n", i.Dsts[0], i.Dsts[1], i.Member)
			}
			fmt.Fprintf(p.w, "\tif err != nil {\n\t\treturn %s, err\n\t}\n", zero)
			for _, d := range i.Dsts {
				if !read[d] {
					fmt.Fprintf(p.w, "\t_ = %s\n", d)
				}
			}
		}
	}

	if complexDomain {
		fmt.Fprintf(p.w, "\treturn %s, %s, nil\n", fn.Result[0], fn.Result[1])
	} else {
		fmt.Fprintf(p.w, "\treturn %s, nil\n", fn.Result[0])
	}
	fmt.Fprintf(p.w, "}\n")
}

func needsMath(fn *Function) bool {
	var uses func(Expr) bool
	uses = func(e Expr) bool {
		switch x := e.(type) {
		case Lit:
			return math.IsNaN(x.Val) || math.IsInf(x.Val, 0) || (x.Val == 0 && math.Signbit(x.Val))
		case Unary:
			return x.Op == Oabs || uses(x.X)
		case Binary:
			return uses(x.X) || uses(x.Y)
		}
		return false
	}
	for _, in := range fn.Body {
		if a, ok := in.(Assign); ok && uses(a.Src) {
			return true
		}
	}
	return false
}

func hasZeroDivisor(fn *Function) bool {
	var uses func(Expr) bool
	uses = func(e Expr) bool {
		switch x := e.(type) {
		case IntLit:
			return x.Val == 0
		case Unary:
			return uses(x.X)
		case Binary:
			return uses(x.X) || uses(x.Y)
		}
		return false
	}
	for _, in := range fn.Body {
		if a, ok := in.(Assign); ok && uses(a.Src) {
			return true
		}
	}
	return false
}

func goExpr(e Expr, nested bool) string {
	switch x := e.(type) {
	case Lit:
		return goLiteral(x.Val)
	case IntLit:
		if x.Val == 0 {
			return "zeroDivisor"
		}
		if x.Val < 0 {
			return fmt.Sprintf("(%d)", x.Val)
		}
		return fmt.Sprintf("%d", x.Val)
	case Ref:
		return x.T.String()
	case Unary:
		if x.Op == Oabs {
			return "math.Abs(" + goExpr(x.X, false) + ")"
		}
		s := "-" + goExpr(x.X, true)
		if nested {
			return "(" + s + ")"
		}
		return s
	case Binary:
		s := goExpr(x.X, true) + " " + x.Op.String() + " " + goExpr(x.Y, true)
		if nested {
			return "(" + s + ")"
		}
		return s
	}
	return "math.NaN()"
}

func goLiteral(v float64) string {
	switch {
	case math.IsNaN(v):
		return "math.NaN()"
	case math.IsInf(v, 1):
		return "math.Inf(1)"
	case math.IsInf(v, -1):
		return "math.Inf(-1)"
	case v == 0 && math.Signbit(v):
		// Constant expressions have no negative zero.
		return "math.Copysign(0, -1)"
	}
	s := floatLiteral(v)
	if v < 0 {
		return "(" + s + ")"
	}
	return s
}
