//go:build (linux || darwin) && cgo

package loader

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

#ifndef SYMJIT_BRIDGE_DEFINED
#define SYMJIT_BRIDGE_DEFINED
typedef struct jit_bridge {
	double (*eval_real)(uintptr_t inv, int slot);
	void (*eval_complex)(uintptr_t inv, int slot, double *re, double *im);
} jit_bridge;
#endif

extern double symjitEvalReal(uintptr_t inv, int slot);
extern void symjitEvalComplex(uintptr_t inv, int slot, double *re, double *im);

static const jit_bridge symjit_bridge = { symjitEvalReal, symjitEvalComplex };

typedef void (*symjit_bind_fn)(const jit_bridge *);
typedef double (*symjit_real_fn)(uintptr_t);
typedef void (*symjit_complex_fn)(uintptr_t, double *, double *);

static void *symjit_dlopen(const char *path) {
	return dlopen(path, RTLD_NOW | RTLD_LOCAL);
}

static const char *symjit_dlerror(void) {
	return dlerror();
}

// Clear dlerror, call dlsym, and return the error (if any) alongside the symbol.
static void *symjit_dlsym(void *h, const char *name, char **err) {
	dlerror();
	void *p = dlsym(h, name);
	char *e = dlerror();
	if (e) { *err = e; return NULL; }
	*err = NULL;
	return p;
}

static void symjit_bind(void *fn) {
	((symjit_bind_fn)fn)(&symjit_bridge);
}

static double symjit_call_real(void *fn, uintptr_t inv) {
	return ((symjit_real_fn)fn)(inv);
}

static void symjit_call_complex(void *fn, uintptr_t inv, double *re, double *im) {
	((symjit_complex_fn)fn)(inv, re, im);
}
*/
import "C"

import (
	"fmt"
	"os"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/raymyers/symjit/pkg/codegen"
	"github.com/raymyers/symjit/pkg/expr"
	"github.com/raymyers/symjit/pkg/toolchain"
)

// NativeLoader opens shared libraries produced by the native backend. Each
// library is opened once and stays mapped for the life of the process.
type NativeLoader struct {
	mu   sync.Mutex
	libs map[string]unsafe.Pointer
}

// NewNativeLoader creates a native loader.
func NewNativeLoader() (*NativeLoader, error) {
	return &NativeLoader{libs: make(map[string]unsafe.Pointer)}, nil
}

// dlerr returns the last dlerror as a Go string, or a fallback label.
func dlerr() string {
	if e := C.symjit_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}

func (l *NativeLoader) open(path string) (unsafe.Pointer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.libs[path]; ok {
		return h, nil
	}
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	h := C.symjit_dlopen(cs)
	if h == nil {
		return nil, fmt.Errorf("dlopen failed: %s", dlerr())
	}
	l.libs[path] = h
	return h, nil
}

func symbol(h unsafe.Pointer, name string) (unsafe.Pointer, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	var cerr *C.char
	p := C.symjit_dlsym(h, cs, &cerr)
	if cerr != nil {
		return nil, fmt.Errorf("dlsym(%q) failed: %s", name, C.GoString(cerr))
	}
	if p == nil {
		return nil, fmt.Errorf("dlsym(%q): symbol is NULL", name)
	}
	return p, nil
}

// Load opens the unit's library, binds the host bridge and wraps the
// evaluation entry point.
func (l *NativeLoader) Load(unit *toolchain.Unit) (Entry, error) {
	fail := func(err error) (Entry, error) {
		return nil, &LoadError{Path: unit.Artifact, Err: err}
	}
	if unit.Kind != toolchain.BackendNative {
		return fail(fmt.Errorf("unit %s is a %s unit", unit.Name, unit.Kind))
	}
	if _, err := os.Stat(unit.Artifact); err != nil {
		return fail(err)
	}

	h, err := l.open(unit.Artifact)
	if err != nil {
		return fail(err)
	}
	bind, err := symbol(h, codegen.BindSymbol(unit.Name))
	if err != nil {
		return fail(err)
	}
	eval, err := symbol(h, codegen.EvalSymbol(unit.Name))
	if err != nil {
		return fail(err)
	}
	C.symjit_bind(bind)

	fn := unit.Function
	var e Entry
	switch fn.Domain {
	case expr.Real:
		e = NewRealEntry(unit.Name, len(fn.Captures), nativeReal(eval))
	case expr.Complex:
		e = NewComplexEntry(unit.Name, len(fn.Captures), nativeComplex(eval))
	default:
		return fail(fmt.Errorf("%w: %s", codegen.ErrUnsupportedDomain, fn.Domain))
	}
	if err := unit.Advance(toolchain.Loaded); err != nil {
		return nil, err
	}
	return e, nil
}

// invocation carries one call's callback and the first error it raised
// across the C boundary.
type invocation struct {
	real    codegen.RealCallback
	complex codegen.ComplexCallback
	err     error
}

func nativeReal(eval unsafe.Pointer) func(codegen.RealCallback) (float64, error) {
	return func(cb codegen.RealCallback) (float64, error) {
		inv := &invocation{real: cb}
		h := cgo.NewHandle(inv)
		defer h.Delete()
		v := float64(C.symjit_call_real(eval, C.uintptr_t(h)))
		if inv.err != nil {
			return 0, inv.err
		}
		return v, nil
	}
}

func nativeComplex(eval unsafe.Pointer) func(codegen.ComplexCallback) (float64, float64, error) {
	return func(cb codegen.ComplexCallback) (float64, float64, error) {
		inv := &invocation{complex: cb}
		h := cgo.NewHandle(inv)
		defer h.Delete()
		var re, im C.double
		C.symjit_call_complex(eval, C.uintptr_t(h), &re, &im)
		if inv.err != nil {
			return 0, 0, inv.err
		}
		return float64(re), float64(im), nil
	}
}
