package codegen

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/raymyers/symjit/pkg/expr"
)

// BridgeTypedef is the C declaration of the host callback table. The loader
// fills one table per process and hands it to every unit's bind function, so
// its layout must match the loader's copy exactly.
const BridgeTypedef = `#ifndef SYMJIT_BRIDGE_DEFINED
#define SYMJIT_BRIDGE_DEFINED
typedef struct jit_bridge {
	double (*eval_real)(uintptr_t inv, int slot);
	void (*eval_complex)(uintptr_t inv, int slot, double *re, double *im);
} jit_bridge;
#endif
`

// BindSymbol and EvalSymbol name the two entry points of a native unit.
func BindSymbol(unit string) string { return unit + "_bind" }
func EvalSymbol(unit string) string { return unit + "_eval" }

// CPrinter emits the native translation unit and its header.
type CPrinter struct {
	w io.Writer
}

// NewCPrinter creates a C printer writing to w.
func NewCPrinter(w io.Writer) *CPrinter {
	return &CPrinter{w: w}
}

// PrintHeader writes the header declaring the unit's entry points.
func (p *CPrinter) PrintHeader(fn *Function) {
	guard := strings.ToUpper(fn.Name) + "_H"
	fmt.Fprintf(p.w, "/* Code generated by symjit. DO NOT EDIT. */\n\n")
	fmt.Fprintf(p.w, "#ifndef %s\n#define %s\n\n", guard, guard)
	fmt.Fprintf(p.w, "#include <stdint.h>\n\n")
	fmt.Fprint(p.w, BridgeTypedef)
	fmt.Fprintf(p.w, "\nvoid %s(const jit_bridge *b);\n", BindSymbol(fn.Name))
	fmt.Fprintf(p.w, "%s;\n", p.signature(fn))
	fmt.Fprintf(p.w, "\n#endif /* %s */\n", guard)
}

// PrintUnit writes the translation unit defining the entry points.
func (p *CPrinter) PrintUnit(fn *Function) {
	fmt.Fprintf(p.w, "/* Code generated by symjit. DO NOT EDIT. */\n\n")
	fmt.Fprintf(p.w, "#include <math.h>\n#include <stddef.h>\n#include <stdint.h>\n\n")
	fmt.Fprintf(p.w, "#include \"%s.h\"\n\n", fn.Name)
	fmt.Fprintf(p.w, "static const jit_bridge *jit_host = NULL;\n\n")

	for _, c := range fn.Captures {
		fmt.Fprintf(p.w, "static const int %s = %d;\n", c.Member, c.Slot)
	}
	if len(fn.Captures) > 0 {
		fmt.Fprintf(p.w, "\n")
	}

	// The bridge is resolved once per process and cached in jit_host.
	fmt.Fprintf(p.w, "void %s(const jit_bridge *b)\n{\n", BindSymbol(fn.Name))
	fmt.Fprintf(p.w, "\tif (jit_host == NULL) {\n\t\tjit_host = b;\n\t}\n}\n\n")

	fmt.Fprintf(p.w, "%s\n{\n", p.signature(fn))
	for _, in := range fn.Body {
		p.printInstr(in)
	}
	switch fn.Domain {
	case expr.Complex:
		fmt.Fprintf(p.w, "\t*out_re = %s;\n", fn.Result[0])
		fmt.Fprintf(p.w, "\t*out_im = %s;\n", fn.Result[1])
	default:
		fmt.Fprintf(p.w, "\treturn %s;\n", fn.Result[0])
	}
	fmt.Fprintf(p.w, "}\n")
}

func (p *CPrinter) signature(fn *Function) string {
	if fn.Domain == expr.Complex {
		return fmt.Sprintf("void %s(uintptr_t inv, double *out_re, double *out_im)", EvalSymbol(fn.Name))
	}
	return fmt.Sprintf("double %s(uintptr_t inv)", EvalSymbol(fn.Name))
}

func (p *CPrinter) printInstr(in Instr) {
	switch i := in.(type) {
	case Assign:
		fmt.Fprintf(p.w, "\tconst double %s = %s;\n", i.Dst, cExpr(i.Src, false))
	case Callback:
		if len(i.Dsts) == 1 {
			fmt.Fprintf(p.w, "\tconst double %s = jit_host->eval_real(inv, %s);\n", i.Dsts[0], i.Member)
			return
		}
		fmt.Fprintf(p.w, "\tdouble %s, %s;\n", i.Dsts[0], i.Dsts[1])
		fmt.Fprintf(p.w, "\tjit_host->eval_complex(inv, %s, &%s, &%s);\n", i.Member, i.Dsts[0], i.Dsts[1])
	}
}

func cExpr(e Expr, nested bool) string {
	switch x := e.(type) {
	case Lit:
		return cLiteral(x.Val)
	case IntLit:
		if x.Val < 0 {
			return fmt.Sprintf("(%dL)", x.Val)
		}
		return fmt.Sprintf("%dL", x.Val)
	case Ref:
		return x.T.String()
	case Unary:
		if x.Op == Oabs {
			return "fabs(" + cExpr(x.X, false) + ")"
		}
		s := "-" + cExpr(x.X, true)
		if nested {
			return "(" + s + ")"
		}
		return s
	case Binary:
		s := cExpr(x.X, true) + " " + x.Op.String() + " " + cExpr(x.Y, true)
		if nested {
			return "(" + s + ")"
		}
		return s
	}
	return "NAN"
}

func cLiteral(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "(-INFINITY)"
	}
	s := floatLiteral(v)
	if math.Signbit(v) {
		return "(" + s + ")"
	}
	return s
}

// floatLiteral formats v so that it round-trips and always reads as a
// floating-point constant.
func floatLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
