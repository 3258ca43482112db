// Package parameter implements the finite-dimensional parameter domain
// D subset of R^p and its samplings (spec.md §4.1): a parameter is a fixed-
// size real vector, immutable once created; a sampling is an ordered
// sequence of parameters, built by one of three deterministic or
// pseudo-random generators, with support for the set-difference
// "complement" of a selected subsample against its super-sampling.
package parameter

import (
	"fmt"
)

// Parameter is a point mu in the parameter domain D. Values is never
// mutated after construction; New copies its input so later mutation of
// the caller's slice cannot alter the Parameter (spec.md §3: "value,
// immutable once created").
type Parameter struct {
	values []float64
}

// New creates a Parameter from the given coordinates, copying them.
func New(values []float64) Parameter {
	cp := make([]float64, len(values))
	copy(cp, values)
	return Parameter{values: cp}
}

// Dimension returns p, the number of coordinates.
func (mu Parameter) Dimension() int {
	return len(mu.values)
}

// At returns the i-th coordinate.
func (mu Parameter) At(i int) float64 {
	return mu.values[i]
}

// Values returns a defensive copy of the coordinates.
func (mu Parameter) Values() []float64 {
	cp := make([]float64, len(mu.values))
	copy(cp, mu.values)
	return cp
}

// Equal reports whether two parameters have identical coordinates.
func (mu Parameter) Equal(other Parameter) bool {
	if len(mu.values) != len(other.values) {
		return false
	}
	for i, v := range mu.values {
		if v != other.values[i] {
			return false
		}
	}
	return true
}

// String renders the parameter using the on-disk line format of spec.md
// §4.1/§6: "mu_i= [ v_0 , v_1 , ... , v_{p-1} ]" without the "mu_i=" prefix,
// which callers that need the full line (Sampling.WriteFile) prepend.
func (mu Parameter) String() string {
	s := "[ "
	for i, v := range mu.values {
		if i > 0 {
			s += " , "
		}
		s += fmt.Sprintf("%.*g", 17, v)
	}
	return s + " ]"
}
