package toolchain

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/raymyers/symjit/pkg/codegen"
)

// State is a compilation unit's position in the build pipeline.
type State int

const (
	Draft State = iota
	SourceWritten
	NativeCompiled
	Linked
	HostCompiled
	Loaded
	Instantiated
	Failed
)

var stateNames = map[State]string{
	Draft:          "draft",
	SourceWritten:  "source-written",
	NativeCompiled: "native-compiled",
	Linked:         "linked",
	HostCompiled:   "host-compiled",
	Loaded:         "loaded",
	Instantiated:   "instantiated",
	Failed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions lists the legal successors of each state per backend. Failed
// is reachable from every non-terminal state and is handled by Fail.
var transitions = map[Backend]map[State]State{
	BackendNative: {
		Draft:          SourceWritten,
		SourceWritten:  NativeCompiled,
		NativeCompiled: Linked,
		Linked:         Loaded,
		Loaded:         Instantiated,
	},
	BackendHost: {
		Draft:         SourceWritten,
		SourceWritten: HostCompiled,
		HostCompiled:  Loaded,
		Loaded:        Instantiated,
	},
	BackendInterp: {
		Draft:  Loaded,
		Loaded: Instantiated,
	},
}

// TransitionError reports an attempt to move a unit to a state that does not
// follow its current one.
type TransitionError struct {
	Unit     string
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("unit %s: illegal transition %s -> %s", e.Unit, e.From, e.To)
}

// Unit is one generated compilation unit.
type Unit struct {
	Name     string
	Kind     Backend
	Function *codegen.Function
	// Dir is the unit's directory under the scratch directory.
	Dir string
	// Sources maps file names (relative to Dir) to their contents.
	Sources map[string]string
	// Artifact is the path of the loadable library once built.
	Artifact string

	state State
	err   error
}

// NewUnit creates a draft unit for fn.
func NewUnit(kind Backend, fn *codegen.Function) *Unit {
	return &Unit{
		Name:     fn.Name,
		Kind:     kind,
		Function: fn,
		Sources:  make(map[string]string),
	}
}

// State returns the unit's current state.
func (u *Unit) State() State { return u.state }

// Err returns the error that failed the unit, if any.
func (u *Unit) Err() error { return u.err }

// Advance moves the unit to next, which must be the successor of its current
// state for its backend.
func (u *Unit) Advance(next State) error {
	if succ, ok := transitions[u.Kind][u.state]; !ok || succ != next {
		return &TransitionError{Unit: u.Name, From: u.state, To: next}
	}
	u.state = next
	return nil
}

// Fail moves the unit to Failed and records err. It returns err so callers
// can write `return u.Fail(err)`.
func (u *Unit) Fail(err error) error {
	if u.state != Failed {
		u.state = Failed
		u.err = err
	}
	return err
}

// SourceFiles returns the names of the unit's sources in a stable order.
func (u *Unit) SourceFiles() []string {
	names := make([]string, 0, len(u.Sources))
	for name := range u.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ArtifactName returns the file name of the unit's loadable artifact.
func ArtifactName(kind Backend, name string) string {
	switch kind {
	case BackendNative:
		return "lib" + name + "." + sharedLibExt()
	case BackendHost:
		return name + ".so"
	}
	return ""
}

func sharedLibExt() string {
	switch runtime.GOOS {
	case "darwin":
		return "dylib"
	case "windows":
		return "dll"
	}
	return "so"
}

func (u *Unit) path(file string) string {
	return filepath.Join(u.Dir, file)
}
