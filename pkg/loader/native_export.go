//go:build (linux || darwin) && cgo

package loader

/*
#include <stdint.h>
*/
import "C"

import (
	"fmt"
	"math"
	"runtime/cgo"
)

// The functions below are reached from generated code through the bridge
// table. A panic must not unwind through C frames, so each call recovers and
// parks the failure in the invocation; after the first failure the remaining
// callbacks return NaN without evaluating.

//export symjitEvalReal
func symjitEvalReal(handle C.uintptr_t, slot C.int) C.double {
	inv := cgo.Handle(handle).Value().(*invocation)
	if inv.err != nil || inv.real == nil {
		if inv.err == nil {
			inv.err = fmt.Errorf("real callback on a complex unit")
		}
		return C.double(math.NaN())
	}
	v, err := guardReal(inv.real, int(slot))
	if err != nil {
		inv.err = err
		return C.double(math.NaN())
	}
	return C.double(v)
}

//export symjitEvalComplex
func symjitEvalComplex(handle C.uintptr_t, slot C.int, re, im *C.double) {
	inv := cgo.Handle(handle).Value().(*invocation)
	*re, *im = C.double(math.NaN()), C.double(math.NaN())
	if inv.err != nil || inv.complex == nil {
		if inv.err == nil {
			inv.err = fmt.Errorf("complex callback on a real unit")
		}
		return
	}
	r, i, err := guardComplex(inv.complex, int(slot))
	if err != nil {
		inv.err = err
		return
	}
	*re, *im = C.double(r), C.double(i)
}

func guardReal(cb func(int) (float64, error), slot int) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating captured child %d: %v", slot, r)
		}
	}()
	return cb(slot)
}

func guardComplex(cb func(int) (float64, float64, error), slot int) (re, im float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating captured child %d: %v", slot, r)
		}
	}()
	return cb(slot)
}
