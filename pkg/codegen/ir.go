// Package codegen lowers numeric expression trees to a small scalar IR and
// prints that IR as C or Go source.
//
// Every compiled value is a float64 temporary named t_<n>; complex values
// are carried as (re, im) temporary pairs. Subtrees the generator does not
// understand are captured and evaluated through a callback, addressed by a
// member slot named m_<n>.
package codegen

import (
	"fmt"

	"github.com/raymyers/symjit/pkg/expr"
)

// Temp is a primitive result name.
type Temp uint64

func (t Temp) String() string { return fmt.Sprintf("t_%d", uint64(t)) }

// Member names a captured-child accessor.
type Member uint64

func (m Member) String() string { return fmt.Sprintf("m_%d", uint64(m)) }

// Instr is one emitted evaluation statement.
type Instr interface {
	implInstr()
}

// Assign defines Dst as the value of Src.
type Assign struct {
	Dst Temp
	Src Expr
}

// Callback evaluates captured child Slot through the host bridge and unwraps
// the boxed result into Dsts (one temp for real, two for complex).
type Callback struct {
	Member Member
	Slot   int
	Dsts   []Temp
}

func (Assign) implInstr()   {}
func (Callback) implInstr() {}

// Expr is a side-effect free scalar expression.
type Expr interface {
	implExpr()
}

// UnaryOp is a scalar unary operator.
type UnaryOp int

const (
	Oneg UnaryOp = iota // -x
	Oabs                // |x|
)

func (op UnaryOp) String() string {
	names := []string{"-", "abs"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// BinaryOp is a scalar binary operator.
type BinaryOp int

const (
	Oadd BinaryOp = iota
	Osub
	Omul
	Odiv
)

func (op BinaryOp) String() string {
	names := []string{"+", "-", "*", "/"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Lit is a float64 literal.
type Lit struct {
	Val float64
}

// IntLit is an integer literal; used for DivideBy divisors.
type IntLit struct {
	Val int64
}

// Ref reads a temporary.
type Ref struct {
	T Temp
}

// Unary applies Op to X.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// Binary applies Op to X and Y.
type Binary struct {
	Op   BinaryOp
	X, Y Expr
}

func (Lit) implExpr()    {}
func (IntLit) implExpr() {}
func (Ref) implExpr()    {}
func (Unary) implExpr()  {}
func (Binary) implExpr() {}

// Result names the temporaries holding a node's value: one for the real
// domain, (re, im) for complex.
type Result []Temp

// CapturedChild is an opaque node captured by a compilation unit.
type CapturedChild struct {
	Node   expr.Node
	Slot   int
	Member Member
}

// Function is a finished lowering: the body of one compilation unit's
// evaluation entry point.
type Function struct {
	Name     string
	Domain   expr.Domain
	Body     []Instr
	Result   Result
	Captures []CapturedChild
}

// Children returns the captured nodes in slot order.
func (f *Function) Children() []expr.Node {
	out := make([]expr.Node, len(f.Captures))
	for i, c := range f.Captures {
		out[i] = c.Node
	}
	return out
}

// reads collects every temporary read by e.
func reads(e Expr, into map[Temp]bool) {
	switch x := e.(type) {
	case Ref:
		into[x.T] = true
	case Unary:
		reads(x.X, into)
	case Binary:
		reads(x.X, into)
		reads(x.Y, into)
	}
}
