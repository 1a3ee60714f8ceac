package codegen

import (
	"fmt"
	"math"
)

// RealCallback evaluates captured child slot and returns its real value.
type RealCallback func(slot int) (float64, error)

// ComplexCallback evaluates captured child slot and returns its (re, im) value.
type ComplexCallback func(slot int) (float64, float64, error)

// ExecReal runs a real-domain function in-process. It follows the same IEEE
// semantics as the generated C and Go code.
func ExecReal(fn *Function, cb RealCallback) (float64, error) {
	if len(fn.Result) != 1 {
		return 0, fmt.Errorf("%s: real function has %d result temps", fn.Name, len(fn.Result))
	}
	regs, err := run(fn, func(slot int, dsts []Temp, regs map[Temp]float64) error {
		v, err := cb(slot)
		if err != nil {
			return err
		}
		regs[dsts[0]] = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	return regs[fn.Result[0]], nil
}

// ExecComplex runs a complex-domain function in-process.
func ExecComplex(fn *Function, cb ComplexCallback) (float64, float64, error) {
	if len(fn.Result) != 2 {
		return 0, 0, fmt.Errorf("%s: complex function has %d result temps", fn.Name, len(fn.Result))
	}
	regs, err := run(fn, func(slot int, dsts []Temp, regs map[Temp]float64) error {
		re, im, err := cb(slot)
		if err != nil {
			return err
		}
		regs[dsts[0]] = re
		regs[dsts[1]] = im
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return regs[fn.Result[0]], regs[fn.Result[1]], nil
}

func run(fn *Function, call func(slot int, dsts []Temp, regs map[Temp]float64) error) (map[Temp]float64, error) {
	regs := make(map[Temp]float64, len(fn.Body))
	for _, in := range fn.Body {
		switch i := in.(type) {
		case Assign:
			regs[i.Dst] = evalExpr(i.Src, regs)
		case Callback:
			if err := call(i.Slot, i.Dsts, regs); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%s: unknown instruction %T", fn.Name, in)
		}
	}
	return regs, nil
}

func evalExpr(e Expr, regs map[Temp]float64) float64 {
	switch x := e.(type) {
	case Lit:
		return x.Val
	case IntLit:
		return float64(x.Val)
	case Ref:
		return regs[x.T]
	case Unary:
		v := evalExpr(x.X, regs)
		switch x.Op {
		case Oneg:
			return -v
		case Oabs:
			return math.Abs(v)
		}
	case Binary:
		a := evalExpr(x.X, regs)
		b := evalExpr(x.Y, regs)
		switch x.Op {
		case Oadd:
			return a + b
		case Osub:
			return a - b
		case Omul:
			return a * b
		case Odiv:
			return a / b
		}
	}
	return math.NaN()
}
