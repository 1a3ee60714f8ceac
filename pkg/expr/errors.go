package expr

import (
	"errors"
	"fmt"
)

// ErrNotInvertible is returned by the interpreted path when a zero value is
// inverted or divided by a zero integer.
var ErrNotInvertible = errors.New("element is not invertible")

// DomainError reports a value of the wrong numeric domain.
type DomainError struct {
	Op   string
	Want Domain
	Got  Domain
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: want %s value, got %s", e.Op, e.Want, e.Got)
}

// UnboundError reports a variable missing from the evaluation environment.
type UnboundError struct {
	Name string
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("unbound variable %q", e.Name)
}
