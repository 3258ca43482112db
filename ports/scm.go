package ports

import (
	"context"

	"gocrb/domain/parameter"
)

// SCMProvider is the Successive Constraint Method collaborator: it
// certifies a lower bound on the coercivity or inf-sup constant alpha(mu)
// across the parameter domain, independently of any particular greedy
// run (spec.md §4.8: "an external collaborator, out of core scope").
// The core depends only on this interface; an adapter under
// adapters/scm wires a concrete SCM implementation or a reference no-op.
type SCMProvider interface {
	// LowerBound returns alpha_LB(mu) <= alpha(mu), certified by the SCM
	// linear program over its current constraint set.
	LowerBound(ctx context.Context, mu parameter.Parameter) (float64, error)

	// Enrich adds mu to the SCM's own greedy sampling, tightening future
	// lower bounds. Call sites that also enrich the CRB basis at mu
	// typically enrich the SCM at the same mu (spec.md §4.8).
	Enrich(ctx context.Context, mu parameter.Parameter) error
}
