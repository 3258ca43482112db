package parameter

import (
	"fmt"

	"gocrb/internal/errors"
)

// Space is the finite-dimensional parameter domain D = [min, max] subset
// of R^p (spec.md §4.1).
type Space struct {
	min, max Parameter
	dim      int
}

// NewSpace builds a Space from coordinate-wise bounds. min and max must
// have equal, positive length.
func NewSpace(min, max []float64) (*Space, error) {
	if len(min) == 0 || len(min) != len(max) {
		return nil, errors.ConfigInvalid(fmt.Sprintf("parameter space: min/max length mismatch (%d vs %d)", len(min), len(max)))
	}
	for i := range min {
		if min[i] > max[i] {
			return nil, errors.ConfigInvalid(fmt.Sprintf("parameter space: min[%d]=%g > max[%d]=%g", i, min[i], i, max[i]))
		}
	}
	return &Space{min: New(min), max: New(max), dim: len(min)}, nil
}

// Dimension returns p.
func (s *Space) Dimension() int { return s.dim }

// Min returns the lower bound of the domain.
func (s *Space) Min() Parameter { return s.min }

// Max returns the upper bound of the domain.
func (s *Space) Max() Parameter { return s.max }

// RefParameter returns a deterministic reference parameter (the
// coordinate-wise midpoint), used by truth models that need a default mu
// for preconditioner reuse or initial-guess assembly (spec.md §6,
// `refParameter()`).
func (s *Space) RefParameter() Parameter {
	v := make([]float64, s.dim)
	for i := range v {
		v[i] = 0.5 * (s.min.At(i) + s.max.At(i))
	}
	return New(v)
}

// Contains reports whether mu lies within [min, max] coordinate-wise.
func (s *Space) Contains(mu Parameter) bool {
	if mu.Dimension() != s.dim {
		return false
	}
	for i := 0; i < s.dim; i++ {
		if mu.At(i) < s.min.At(i) || mu.At(i) > s.max.At(i) {
			return false
		}
	}
	return true
}
