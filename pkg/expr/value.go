package expr

import (
	"fmt"
	"math"
	"strconv"
)

// Domain identifies the numeric field a node evaluates in.
type Domain int

const (
	Real Domain = iota
	Complex
	Matrix
)

func (d Domain) String() string {
	names := []string{"real", "complex", "matrix"}
	if int(d) >= 0 && int(d) < len(names) {
		return names[d]
	}
	return "?"
}

// ParseDomain is the inverse of Domain.String.
func ParseDomain(s string) (Domain, error) {
	switch s {
	case "real", "":
		return Real, nil
	case "complex":
		return Complex, nil
	case "matrix":
		return Matrix, nil
	}
	return 0, fmt.Errorf("unknown domain %q", s)
}

// Value is the boxed result of evaluating a node.
type Value interface {
	implValue()
	Domain() Domain
	String() string
}

// RealValue is a scalar real.
type RealValue float64

// ComplexValue is a scalar complex number.
type ComplexValue struct {
	Re, Im float64
}

// MatrixValue is a dense square matrix. No backend compiles it.
type MatrixValue struct {
	N    int
	Data []float64
}

func (RealValue) implValue()    {}
func (ComplexValue) implValue() {}
func (MatrixValue) implValue()  {}

func (RealValue) Domain() Domain    { return Real }
func (ComplexValue) Domain() Domain { return Complex }
func (MatrixValue) Domain() Domain  { return Matrix }

func (v RealValue) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

func (v ComplexValue) String() string {
	return fmt.Sprintf("(%s, %s)",
		strconv.FormatFloat(v.Re, 'g', -1, 64),
		strconv.FormatFloat(v.Im, 'g', -1, 64))
}

func (v MatrixValue) String() string {
	return fmt.Sprintf("matrix[%dx%d]", v.N, v.N)
}

// ApproxEqual reports whether a and b are in the same domain and agree within tol
// (absolute or relative). Infinities must match exactly; two NaNs compare equal.
func ApproxEqual(a, b Value, tol float64) bool {
	switch x := a.(type) {
	case RealValue:
		y, ok := b.(RealValue)
		return ok && floatClose(float64(x), float64(y), tol)
	case ComplexValue:
		y, ok := b.(ComplexValue)
		return ok && floatClose(x.Re, y.Re, tol) && floatClose(x.Im, y.Im, tol)
	case MatrixValue:
		y, ok := b.(MatrixValue)
		if !ok || x.N != y.N || len(x.Data) != len(y.Data) {
			return false
		}
		for i := range x.Data {
			if !floatClose(x.Data[i], y.Data[i], tol) {
				return false
			}
		}
		return true
	}
	return false
}

func floatClose(a, b, tol float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	diff := math.Abs(a - b)
	if diff <= tol {
		return true
	}
	return diff <= tol*math.Max(math.Abs(a), math.Abs(b))
}

// Factory produces the distinguished values of a domain. It is handed to
// compiled nodes unchanged.
type Factory interface {
	Domain() Domain
	Zero() Value
	Identity() Value
}

// RealFactory builds real scalars.
type RealFactory struct{}

func (RealFactory) Domain() Domain  { return Real }
func (RealFactory) Zero() Value     { return RealValue(0) }
func (RealFactory) Identity() Value { return RealValue(1) }

// ComplexFactory builds complex scalars.
type ComplexFactory struct{}

func (ComplexFactory) Domain() Domain  { return Complex }
func (ComplexFactory) Zero() Value     { return ComplexValue{} }
func (ComplexFactory) Identity() Value { return ComplexValue{Re: 1} }

// MatrixFactory builds N x N matrices.
type MatrixFactory struct {
	N int
}

func (f MatrixFactory) Domain() Domain { return Matrix }
func (f MatrixFactory) Zero() Value {
	return MatrixValue{N: f.N, Data: make([]float64, f.N*f.N)}
}
func (f MatrixFactory) Identity() Value {
	m := MatrixValue{N: f.N, Data: make([]float64, f.N*f.N)}
	for i := 0; i < f.N; i++ {
		m.Data[i*f.N+i] = 1
	}
	return m
}

// FactoryFor returns the scalar factory of d.
func FactoryFor(d Domain) (Factory, error) {
	switch d {
	case Real:
		return RealFactory{}, nil
	case Complex:
		return ComplexFactory{}, nil
	}
	return nil, fmt.Errorf("no scalar factory for domain %s", d)
}

// Env is the implicit evaluation context: variable bindings visible to every
// node of a tree during one evaluation.
type Env map[string]Value
