// Package ports declares the capability interfaces the core domain
// depends on but does not implement: the truth (full-order) model, the
// SCM and POD collaborators, and persistence. Concrete implementations
// live under adapters/ (spec.md §6).
package ports

import (
	"context"

	"gocrb/domain/crb"
	"gocrb/domain/parameter"
)

// AffineTerm identifies one term T_{q,m} of an affine decomposition
// Sum_q Sum_m beta_{q,m}(mu) T_{q,m} (spec.md §4.3).
type AffineTerm struct {
	Q, M int
}

// TruthModel is the capability interface every full-order solver must
// satisfy to drive an offline greedy run and the online residual
// estimator. It replaces the teacher-model's compile-time generic truth
// space type: the core never sees a concrete element type, only this
// interface and the opaque crb.Element values it hands back (spec.md §9
// redesign note).
//
// Every method that may involve a collective truth-space operation (an
// assembly, a distributed solve, a Riesz representer solve) takes a
// context so a long offline run can be cancelled cleanly.
type TruthModel interface {
	// Dimension returns the truth-space dimension used for logging and
	// sizing; it is informational only, never iterated over by the core.
	Dimension() int

	// QA, QM, QF, QL return the number of affine terms in the bilinear
	// stiffness form, the bilinear mass form (0 for steady problems), the
	// right-hand-side linear form, and the output linear form.
	QA() int
	QM() int
	QF() int
	QL() int

	// MMaxA, MMaxM, MMaxF, MMaxL return the number of sub-terms for term
	// q of each affine decomposition (spec.md §4.3: ragged m-dimension).
	MMaxA(q int) int
	MMaxM(q int) int
	MMaxF(q int) int
	MMaxL(q int) int

	// BetaA, BetaM, BetaF, BetaL evaluate the parameter-dependent
	// coefficients beta_{q,m}(mu) of each affine decomposition.
	BetaA(mu parameter.Parameter) [][]float64
	BetaM(mu parameter.Parameter) [][]float64
	BetaF(mu parameter.Parameter) [][]float64
	BetaL(mu parameter.Parameter) [][]float64

	// Solve computes the truth solution u(mu) (spec.md §4.1: "the
	// snapshot used to enrich the basis").
	Solve(ctx context.Context, mu parameter.Parameter) (crb.Element, error)

	// InnerProduct evaluates the truth scalar product (x, y)_X used by
	// Gram-Schmidt orthonormalization and by every norm in the estimator
	// (spec.md §4.4).
	InnerProduct(x, y crb.Element) (float64, error)

	// Axpy returns alpha*x + y as a new truth-space element, without
	// mutating x or y. It is the one vector-space primitive the core
	// needs on the otherwise-opaque crb.Element, for Gram-Schmidt
	// orthonormalization and snapshot recombination (spec.md §4.4).
	Axpy(alpha float64, x, y crb.Element) (crb.Element, error)

	// Scale returns alpha*x as a new truth-space element.
	Scale(alpha float64, x crb.Element) (crb.Element, error)

	// ApplyA, ApplyM apply affine term (q, m) of the stiffness/mass
	// bilinear form to v, returning T_{q,m} v as a truth-space element
	// (used to project onto the reduced basis, spec.md §4.3).
	ApplyA(term AffineTerm, v crb.Element) (crb.Element, error)
	ApplyM(term AffineTerm, v crb.Element) (crb.Element, error)

	// ApplyATranspose applies the transpose of affine term (q, m) of the
	// stiffness bilinear form, a_{q,m}(v, .) rather than a_{q,m}(., v).
	// The dual/adjoint problem solves against this transposed form
	// (spec.md §4.3: "with transpose if the truth bilinear form is not
	// symmetric"); truth models whose forms are symmetric may delegate
	// straight to ApplyA.
	ApplyATranspose(term AffineTerm, v crb.Element) (crb.Element, error)

	// EvaluateF, EvaluateL evaluate affine term (q, m) of the right-hand-
	// side / output linear form against a single truth-space element,
	// <F_{q,m}, v>_X or <L_{q,m}, v>_X (spec.md §6 "Fqm(outputIdx, q, m,
	// v)"), used to project the reduced right-hand-side and output
	// vectors onto the basis (spec.md §4.3).
	EvaluateF(term AffineTerm, v crb.Element) (float64, error)
	EvaluateL(term AffineTerm, v crb.Element) (float64, error)

	// RieszF, RieszA, RieszM solve the Riesz representation problem
	// (z, v)_X = <rhs, v>_X for all v, returning the representer z used
	// to assemble the residual-coupling tables (spec.md §4.7).
	RieszF(ctx context.Context, term AffineTerm) (crb.Element, error)
	RieszA(ctx context.Context, term AffineTerm, basisElement crb.Element) (crb.Element, error)
	RieszM(ctx context.Context, term AffineTerm, basisElement crb.Element) (crb.Element, error)

	// RieszL solves the Riesz representation problem for the output
	// functional, (z, v)_X = <L_{q,m}, v>_X for all v. It plays the same
	// role for the dual residual estimator that RieszF plays for the
	// primal one, since the dual problem's right-hand side is the
	// (negated) output functional (spec.md §4.6, §4.7).
	RieszL(ctx context.Context, term AffineTerm) (crb.Element, error)

	// OutputValue evaluates the compliant or non-compliant output
	// functional against a truth-space element.
	OutputValue(mu parameter.Parameter, v crb.Element) (float64, error)

	// CoercivityLowerBound returns a computable lower bound on the
	// coercivity (or inf-sup) constant alpha_LB(mu), used to scale the
	// residual dual norm into a certified error bound (spec.md §4.7,
	// §4.8). Truth models without an SCM collaborator may return a fixed
	// constant.
	CoercivityLowerBound(mu parameter.Parameter) (float64, error)

	// SolveDual computes the adjoint snapshot z(mu) solving
	// a_{q,m}(v, z) = -L(v) for all v (the transposed bilinear form), used
	// to enrich the dual basis (spec.md §4.5 step 1, §4.6). outputIndex
	// selects which output functional drives the adjoint when a truth
	// model exposes more than one.
	SolveDual(ctx context.Context, mu parameter.Parameter, outputIndex int) (crb.Element, error)

	// SolveTransient computes the truth-space trajectory u(mu, t_0),
	// u(mu, t_1), ..., u(mu, t_final) by a BDF1 march with zero initial
	// condition, the snapshot source POD-compresses before enrichment
	// (spec.md §4.5 step 2, §4.10). Steady truth models (QM() == 0) may
	// return an error.
	SolveTransient(ctx context.Context, mu parameter.Parameter, dt, tFinal float64) ([]crb.Element, error)
}
