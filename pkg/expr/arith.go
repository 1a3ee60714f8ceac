package expr

import (
	"math"
	"math/cmplx"
)

// Value arithmetic used by the interpreted path.

func addValues(a, b Value) (Value, error) {
	switch x := a.(type) {
	case RealValue:
		y, ok := b.(RealValue)
		if !ok {
			return nil, &DomainError{Op: "add", Want: Real, Got: b.Domain()}
		}
		return x + y, nil
	case ComplexValue:
		y, ok := b.(ComplexValue)
		if !ok {
			return nil, &DomainError{Op: "add", Want: Complex, Got: b.Domain()}
		}
		return ComplexValue{Re: x.Re + y.Re, Im: x.Im + y.Im}, nil
	case MatrixValue:
		y, ok := b.(MatrixValue)
		if !ok || y.N != x.N {
			return nil, &DomainError{Op: "add", Want: Matrix, Got: b.Domain()}
		}
		out := MatrixValue{N: x.N, Data: make([]float64, len(x.Data))}
		for i := range x.Data {
			out.Data[i] = x.Data[i] + y.Data[i]
		}
		return out, nil
	}
	return nil, &DomainError{Op: "add", Want: Real, Got: a.Domain()}
}

func mulValues(a, b Value) (Value, error) {
	switch x := a.(type) {
	case RealValue:
		y, ok := b.(RealValue)
		if !ok {
			return nil, &DomainError{Op: "mult", Want: Real, Got: b.Domain()}
		}
		return x * y, nil
	case ComplexValue:
		y, ok := b.(ComplexValue)
		if !ok {
			return nil, &DomainError{Op: "mult", Want: Complex, Got: b.Domain()}
		}
		return ComplexValue{
			Re: x.Re*y.Re - x.Im*y.Im,
			Im: x.Re*y.Im + x.Im*y.Re,
		}, nil
	case MatrixValue:
		y, ok := b.(MatrixValue)
		if !ok || y.N != x.N {
			return nil, &DomainError{Op: "mult", Want: Matrix, Got: b.Domain()}
		}
		n := x.N
		out := MatrixValue{N: n, Data: make([]float64, n*n)}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				var s float64
				for k := 0; k < n; k++ {
					s += x.Data[i*n+k] * y.Data[k*n+j]
				}
				out.Data[i*n+j] = s
			}
		}
		return out, nil
	}
	return nil, &DomainError{Op: "mult", Want: Real, Got: a.Domain()}
}

func negValue(a Value) (Value, error) {
	switch x := a.(type) {
	case RealValue:
		return -x, nil
	case ComplexValue:
		return ComplexValue{Re: -x.Re, Im: -x.Im}, nil
	case MatrixValue:
		out := MatrixValue{N: x.N, Data: make([]float64, len(x.Data))}
		for i, v := range x.Data {
			out.Data[i] = -v
		}
		return out, nil
	}
	return nil, &DomainError{Op: "negate", Want: Real, Got: a.Domain()}
}

func divValue(a Value, k int64) (Value, error) {
	if k == 0 {
		return nil, ErrNotInvertible
	}
	d := float64(k)
	switch x := a.(type) {
	case RealValue:
		return x / RealValue(d), nil
	case ComplexValue:
		return ComplexValue{Re: x.Re / d, Im: x.Im / d}, nil
	case MatrixValue:
		out := MatrixValue{N: x.N, Data: make([]float64, len(x.Data))}
		for i, v := range x.Data {
			out.Data[i] = v / d
		}
		return out, nil
	}
	return nil, &DomainError{Op: "divide", Want: Real, Got: a.Domain()}
}

func invertValue(a Value) (Value, error) {
	switch x := a.(type) {
	case RealValue:
		if x == 0 {
			return nil, ErrNotInvertible
		}
		return 1 / x, nil
	case ComplexValue:
		den := x.Re*x.Re + x.Im*x.Im
		if den == 0 {
			return nil, ErrNotInvertible
		}
		return ComplexValue{Re: x.Re / den, Im: -x.Im / den}, nil
	case MatrixValue:
		return invertMatrix(x)
	}
	return nil, &DomainError{Op: "invert", Want: Real, Got: a.Domain()}
}

// invertMatrix uses Gauss-Jordan elimination with partial pivoting.
func invertMatrix(m MatrixValue) (Value, error) {
	n := m.N
	a := make([]float64, len(m.Data))
	copy(a, m.Data)
	inv := MatrixFactory{N: n}.Identity().(MatrixValue)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r*n+col]) > math.Abs(a[pivot*n+col]) {
				pivot = r
			}
		}
		if a[pivot*n+col] == 0 {
			return nil, ErrNotInvertible
		}
		if pivot != col {
			for j := 0; j < n; j++ {
				a[col*n+j], a[pivot*n+j] = a[pivot*n+j], a[col*n+j]
				inv.Data[col*n+j], inv.Data[pivot*n+j] = inv.Data[pivot*n+j], inv.Data[col*n+j]
			}
		}
		p := a[col*n+col]
		for j := 0; j < n; j++ {
			a[col*n+j] /= p
			inv.Data[col*n+j] /= p
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := a[r*n+col]
			for j := 0; j < n; j++ {
				a[r*n+j] -= f * a[col*n+j]
				inv.Data[r*n+j] -= f * inv.Data[col*n+j]
			}
		}
	}
	return inv, nil
}

func absValue(a Value) (Value, error) {
	switch x := a.(type) {
	case RealValue:
		return RealValue(math.Abs(float64(x))), nil
	case ComplexValue:
		return ComplexValue{Re: cmplx.Abs(complex(x.Re, x.Im))}, nil
	}
	return nil, &DomainError{Op: "abs", Want: Real, Got: a.Domain()}
}
