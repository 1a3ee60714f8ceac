//go:build !((linux || darwin) && cgo)

package loader

import "github.com/raymyers/symjit/pkg/toolchain"

// NativeLoader is unavailable in this build.
type NativeLoader struct{}

// NewNativeLoader reports ErrNativeUnavailable.
func NewNativeLoader() (*NativeLoader, error) {
	return nil, ErrNativeUnavailable
}

// Load always fails.
func (*NativeLoader) Load(unit *toolchain.Unit) (Entry, error) {
	return nil, &LoadError{Path: unit.Artifact, Err: ErrNativeUnavailable}
}
