package codegen

import (
	"errors"
	"fmt"

	"github.com/raymyers/symjit/pkg/expr"
)

// ErrUnsupportedDomain is returned when no generator exists for a domain.
var ErrUnsupportedDomain = errors.New("unsupported numeric domain")

// ReductionError reports a constant reduction that could not be evaluated at
// generation time.
type ReductionError struct {
	Err error
}

func (e *ReductionError) Error() string {
	return fmt.Sprintf("constant reduction: %v", e.Err)
}

func (e *ReductionError) Unwrap() error { return e.Err }

// Generate emits code computing root into ctx and returns the temporaries
// holding the result. A node already generated in ctx is not emitted again.
func Generate(root expr.Node, ctx *Context) (Result, error) {
	switch ctx.domain {
	case expr.Real:
		return genReal(root, ctx)
	case expr.Complex:
		return genComplex(root, ctx)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDomain, ctx.domain)
}

// Lower runs Generate on a fresh context and packages the result.
func Lower(name string, root expr.Node, alloc *Allocator) (*Function, *Context, error) {
	if root == nil || root.Factory() == nil {
		return nil, nil, fmt.Errorf("%w: %T has no factory", ErrUnsupportedDomain, root)
	}
	ctx := NewContext(alloc, root.Factory().Domain())
	res, err := Generate(root, ctx)
	if err != nil {
		return nil, ctx, err
	}
	return ctx.Finish(name, res), ctx, nil
}

// memoized reports a previously generated result for n.
func (c *Context) memoized(n expr.Node) (Result, bool) {
	r, ok := c.memo[n]
	if c.Trace != nil {
		c.Trace(n, ok)
	}
	if ok {
		c.hits++
	}
	return r, ok
}

// sameDomain reports whether n can be lowered inline in ctx; nodes from
// another domain are captured instead.
func (c *Context) sameDomain(n expr.Node) bool {
	fac := n.Factory()
	return fac != nil && fac.Domain() == c.domain
}

func genReal(n expr.Node, ctx *Context) (Result, error) {
	if r, ok := ctx.memoized(n); ok {
		return r, nil
	}
	r, err := lowerReal(n, ctx)
	if err != nil {
		return nil, err
	}
	ctx.memo[n] = r
	return r, nil
}

func lowerReal(n expr.Node, ctx *Context) (Result, error) {
	if !ctx.sameDomain(n) {
		return ctx.callback(ctx.capture(n), 1), nil
	}

	unary := func(x expr.Node, build func(a Expr) Expr) (Result, error) {
		a, err := genReal(x, ctx)
		if err != nil {
			return nil, err
		}
		return Result{ctx.assign(build(Ref{a[0]}))}, nil
	}
	binary := func(x, y expr.Node, op BinaryOp) (Result, error) {
		a, err := genReal(x, ctx)
		if err != nil {
			return nil, err
		}
		b, err := genReal(y, ctx)
		if err != nil {
			return nil, err
		}
		return Result{ctx.assign(Binary{Op: op, X: Ref{a[0]}, Y: Ref{b[0]}})}, nil
	}
	reciprocal := func(a Expr) Expr { return Binary{Op: Odiv, X: Lit{1}, Y: a} }

	switch x := n.(type) {
	case *expr.Zero:
		return Result{ctx.assign(Lit{0})}, nil
	case *expr.Identity:
		return Result{ctx.assign(Lit{1})}, nil
	case *expr.Negate:
		return unary(x.X, func(a Expr) Expr { return Unary{Op: Oneg, X: a} })
	case *expr.Add:
		return binary(x.A, x.B, Oadd)
	case *expr.Mult:
		return binary(x.A, x.B, Omul)
	case *expr.DivideBy:
		return unary(x.X, func(a Expr) Expr { return Binary{Op: Odiv, X: a, Y: IntLit{x.By}} })
	case *expr.InvertLeft:
		return unary(x.X, reciprocal)
	case *expr.InvertRight:
		return unary(x.X, reciprocal)
	case *expr.AbsoluteValue:
		return unary(x.X, func(a Expr) Expr { return Unary{Op: Oabs, X: a} })
	case *expr.Reduction:
		v, err := reduce(x)
		if err != nil {
			return nil, err
		}
		rv, ok := v.(expr.RealValue)
		if !ok {
			return nil, &ReductionError{Err: &expr.DomainError{Op: "reduce", Want: expr.Real, Got: v.Domain()}}
		}
		return Result{ctx.assign(Lit{float64(rv)})}, nil
	default:
		return ctx.callback(ctx.capture(n), 1), nil
	}
}

func genComplex(n expr.Node, ctx *Context) (Result, error) {
	if r, ok := ctx.memoized(n); ok {
		return r, nil
	}
	r, err := lowerComplex(n, ctx)
	if err != nil {
		return nil, err
	}
	ctx.memo[n] = r
	return r, nil
}

func lowerComplex(n expr.Node, ctx *Context) (Result, error) {
	if !ctx.sameDomain(n) {
		return ctx.callback(ctx.capture(n), 2), nil
	}

	pair := func(re, im Expr) Result {
		r := ctx.assign(re)
		i := ctx.assign(im)
		return Result{r, i}
	}
	gen2 := func(x, y expr.Node) (Result, Result, error) {
		a, err := genComplex(x, ctx)
		if err != nil {
			return nil, nil, err
		}
		b, err := genComplex(y, ctx)
		if err != nil {
			return nil, nil, err
		}
		return a, b, nil
	}
	invert := func(x expr.Node) (Result, error) {
		a, err := genComplex(x, ctx)
		if err != nil {
			return nil, err
		}
		re, im := Ref{a[0]}, Ref{a[1]}
		norm := ctx.assign(Binary{Op: Oadd,
			X: Binary{Op: Omul, X: re, Y: re},
			Y: Binary{Op: Omul, X: im, Y: im}})
		return pair(
			Binary{Op: Odiv, X: re, Y: Ref{norm}},
			Binary{Op: Odiv, X: Unary{Op: Oneg, X: im}, Y: Ref{norm}},
		), nil
	}

	switch x := n.(type) {
	case *expr.Zero:
		return pair(Lit{0}, Lit{0}), nil
	case *expr.Identity:
		return pair(Lit{1}, Lit{0}), nil
	case *expr.Negate:
		a, err := genComplex(x.X, ctx)
		if err != nil {
			return nil, err
		}
		return pair(Unary{Op: Oneg, X: Ref{a[0]}}, Unary{Op: Oneg, X: Ref{a[1]}}), nil
	case *expr.Add:
		a, b, err := gen2(x.A, x.B)
		if err != nil {
			return nil, err
		}
		return pair(
			Binary{Op: Oadd, X: Ref{a[0]}, Y: Ref{b[0]}},
			Binary{Op: Oadd, X: Ref{a[1]}, Y: Ref{b[1]}},
		), nil
	case *expr.Mult:
		a, b, err := gen2(x.A, x.B)
		if err != nil {
			return nil, err
		}
		return pair(
			Binary{Op: Osub,
				X: Binary{Op: Omul, X: Ref{a[0]}, Y: Ref{b[0]}},
				Y: Binary{Op: Omul, X: Ref{a[1]}, Y: Ref{b[1]}}},
			Binary{Op: Oadd,
				X: Binary{Op: Omul, X: Ref{a[0]}, Y: Ref{b[1]}},
				Y: Binary{Op: Omul, X: Ref{a[1]}, Y: Ref{b[0]}}},
		), nil
	case *expr.DivideBy:
		a, err := genComplex(x.X, ctx)
		if err != nil {
			return nil, err
		}
		return pair(
			Binary{Op: Odiv, X: Ref{a[0]}, Y: IntLit{x.By}},
			Binary{Op: Odiv, X: Ref{a[1]}, Y: IntLit{x.By}},
		), nil
	case *expr.InvertLeft:
		return invert(x.X)
	case *expr.InvertRight:
		return invert(x.X)
	case *expr.Reduction:
		v, err := reduce(x)
		if err != nil {
			return nil, err
		}
		cv, ok := v.(expr.ComplexValue)
		if !ok {
			return nil, &ReductionError{Err: &expr.DomainError{Op: "reduce", Want: expr.Complex, Got: v.Domain()}}
		}
		return pair(Lit{cv.Re}, Lit{cv.Im}), nil
	default:
		// Includes AbsoluteValue, which has no complex lowering.
		return ctx.callback(ctx.capture(n), 2), nil
	}
}

// reduce evaluates a constant reduction at generation time.
func reduce(r *expr.Reduction) (expr.Value, error) {
	v, err := r.Evaluate(nil)
	if err != nil {
		return nil, &ReductionError{Err: err}
	}
	return v, nil
}
