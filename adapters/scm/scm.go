// Package scm provides a reference ports.SCMProvider: a fixed coercivity
// lower bound, for truth models and studies that do not run the
// Successive Constraint Method linear program themselves (spec.md §4.8:
// "an external collaborator, out of core scope" -- this is the no-op
// stand-in, not a reimplementation of SCM).
package scm

import (
	"context"

	"gocrb/domain/parameter"
	"gocrb/internal/errors"
)

// ConstantBound is a ports.SCMProvider that always returns the same
// lower bound, suitable for problems whose coercivity constant is known
// a priori (e.g. compliant elliptic problems with alpha(mu) >= alpha_0)
// or for early-stage studies that have not yet wired a real SCM.
type ConstantBound struct {
	alpha float64
}

// NewConstantBound returns a ConstantBound provider with the given fixed
// lower bound, which must be strictly positive.
func NewConstantBound(alpha float64) (*ConstantBound, error) {
	if alpha <= 0 {
		return nil, errors.ConfigInvalid("scm: constant coercivity lower bound must be positive")
	}
	return &ConstantBound{alpha: alpha}, nil
}

// LowerBound always returns the configured constant.
func (c *ConstantBound) LowerBound(_ context.Context, _ parameter.Parameter) (float64, error) {
	return c.alpha, nil
}

// Enrich is a no-op: a constant bound has no sampling to refine.
func (c *ConstantBound) Enrich(_ context.Context, _ parameter.Parameter) error {
	return nil
}
