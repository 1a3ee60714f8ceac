package exprio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/symjit/pkg/expr"
)

// Format writes n as an s-expression that ParseSExpr reads back to an
// equivalent tree. Nodes reached more than once are labelled #1=, #2=, ...
// at their first occurrence and referenced as #1#, #2#, ... afterwards, so
// sharing survives the round trip. Variables are never labelled; reading
// gives every mention of a name the same node.
func Format(n expr.Node) string {
	refs := make(map[expr.Node]int)
	var count func(expr.Node)
	count = func(n expr.Node) {
		refs[n]++
		if refs[n] > 1 {
			return
		}
		for _, c := range expr.Children(n) {
			count(c)
		}
	}
	count(n)

	f := &formatter{refs: refs, labels: make(map[expr.Node]int)}
	f.node(n)
	return f.b.String()
}

type formatter struct {
	b      strings.Builder
	refs   map[expr.Node]int
	labels map[expr.Node]int
}

func (f *formatter) node(n expr.Node) {
	if id, ok := f.labels[n]; ok {
		fmt.Fprintf(&f.b, "#%d#", id)
		return
	}
	if _, isVar := n.(*expr.Var); f.refs[n] > 1 && !isVar {
		id := len(f.labels) + 1
		f.labels[n] = id
		fmt.Fprintf(&f.b, "#%d=", id)
	}

	switch x := n.(type) {
	case *expr.Zero:
		f.b.WriteString("(zero)")
	case *expr.Identity:
		f.b.WriteString("(identity)")
	case *expr.Var:
		f.b.WriteString(x.Name)
	case *expr.Const:
		f.value(x.V)
	case *expr.DivideBy:
		f.b.WriteString("(divide ")
		f.node(x.X)
		fmt.Fprintf(&f.b, " %d)", x.By)
	default:
		op := opName(n)
		if op == "" {
			fmt.Fprintf(&f.b, "<%v>", n)
			return
		}
		f.b.WriteString("(" + op)
		for _, c := range expr.Children(n) {
			f.b.WriteByte(' ')
			f.node(c)
		}
		f.b.WriteByte(')')
	}
}

func (f *formatter) value(v expr.Value) {
	switch v := v.(type) {
	case expr.RealValue:
		f.b.WriteString(formatFloat(float64(v)))
	case expr.ComplexValue:
		fmt.Fprintf(&f.b, "(c %s %s)", formatFloat(v.Re), formatFloat(v.Im))
	default:
		fmt.Fprintf(&f.b, "<%v>", v)
	}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if numberPattern.MatchString(s) {
		return s
	}
	// Inf and NaN have no literal form.
	return "<" + s + ">"
}

func opName(n expr.Node) string {
	switch x := n.(type) {
	case *expr.Negate:
		return "neg"
	case *expr.Add:
		return "add"
	case *expr.Mult:
		return "mult"
	case *expr.InvertLeft:
		return "invert_left"
	case *expr.InvertRight:
		return "invert_right"
	case *expr.Reduction:
		return "reduce"
	case *expr.AbsoluteValue:
		return "abs"
	case *expr.Func:
		return x.Name
	}
	return ""
}
