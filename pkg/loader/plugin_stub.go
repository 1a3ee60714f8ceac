//go:build !((linux || darwin) && cgo)

package loader

import "github.com/raymyers/symjit/pkg/toolchain"

// PluginLoader is unavailable in this build.
type PluginLoader struct{}

// NewPluginLoader reports ErrNativeUnavailable.
func NewPluginLoader() (*PluginLoader, error) {
	return nil, ErrNativeUnavailable
}

// Load always fails.
func (*PluginLoader) Load(unit *toolchain.Unit) (Entry, error) {
	return nil, &LoadError{Path: unit.Artifact, Err: ErrNativeUnavailable}
}
