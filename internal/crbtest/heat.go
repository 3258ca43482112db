// Package crbtest provides a small, fully self-contained truth model --
// a 1-D parametrized heat-conduction problem discretized by linear finite
// differences -- used to exercise the CRB engine end-to-end in tests and
// as the reference problem behind the `crb` CLI commands (spec.md scenario 1: "a
// 1-D affine-parametrized diffusion-reaction problem").
//
// The discrete truth space is R^n with the Euclidean inner product, so
// every ports.TruthModel method here is a few lines of dense linear
// algebra; it exists to give the rest of the engine something concrete
// to drive, not to model a realistic PDE discretization.
package crbtest

import (
	"context"
	"fmt"
	"math"

	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/ports"

	"gonum.org/v1/gonum/mat"
)

// Vector is the concrete crb.Element type this truth model produces: a
// plain discrete solution vector.
type Vector struct {
	Data []float64
}

// HeatModel discretizes -(kappa(mu) u')' + reaction(mu) u = source on
// (0, 1) with homogeneous Dirichlet boundary conditions, using n interior
// nodes. The affine decomposition has two stiffness terms (diffusion,
// reaction) and one right-hand-side term; mu = (kappa, reaction).
type HeatModel struct {
	n         int
	h         float64
	diff      *mat.Dense // stiffness contribution of the diffusion term (beta = kappa)
	reac      *mat.Dense // stiffness contribution of the reaction term (beta = reaction coefficient)
	rhs       *mat.VecDense
	transient bool       // true for models built by NewTransientHeatModel
	mass      *mat.Dense // lumped mass matrix, only set when transient
}

// NewHeatModel discretizes the problem with n interior nodes.
func NewHeatModel(n int) *HeatModel {
	return newHeatModel(n, false)
}

// NewTransientHeatModel discretizes the same problem as NewHeatModel but
// additionally exposes a one-term affine mass operator, enabling BDF
// time-stepping, transient residual estimation, and POD-based basis
// enrichment (spec.md §4.10) against this fixture.
func NewTransientHeatModel(n int) *HeatModel {
	return newHeatModel(n, true)
}

func newHeatModel(n int, transient bool) *HeatModel {
	h := 1.0 / float64(n+1)
	diff := mat.NewDense(n, n, nil)
	reac := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)

	for i := 0; i < n; i++ {
		diff.Set(i, i, 2.0/(h*h))
		reac.Set(i, i, h) // lumped-mass-like reaction contribution
		if i > 0 {
			diff.Set(i, i-1, -1.0/(h*h))
		}
		if i < n-1 {
			diff.Set(i, i+1, -1.0/(h*h))
		}
		rhs.SetVec(i, h) // constant unit source
	}

	m := &HeatModel{n: n, h: h, diff: diff, reac: reac, rhs: rhs, transient: transient}
	if transient {
		mass := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			mass.Set(i, i, h) // lumped mass, consistent with the reaction term's lumping
		}
		m.mass = mass
	}
	return m
}

func (m *HeatModel) Dimension() int { return m.n }

func (m *HeatModel) QA() int { return 2 }
func (m *HeatModel) QM() int {
	if m.transient {
		return 1
	}
	return 0
}
func (m *HeatModel) QF() int { return 1 }
func (m *HeatModel) QL() int { return 1 }

func (m *HeatModel) MMaxA(q int) int { return 1 }
func (m *HeatModel) MMaxM(q int) int {
	if m.transient {
		return 1
	}
	return 0
}
func (m *HeatModel) MMaxF(q int) int { return 1 }
func (m *HeatModel) MMaxL(q int) int { return 1 }

func (m *HeatModel) BetaA(mu parameter.Parameter) [][]float64 {
	return [][]float64{{mu.At(0)}, {mu.At(1)}}
}
func (m *HeatModel) BetaM(mu parameter.Parameter) [][]float64 {
	if !m.transient {
		return nil
	}
	return [][]float64{{1.0}} // mass operator does not depend on mu
}
func (m *HeatModel) BetaF(mu parameter.Parameter) [][]float64 { return [][]float64{{1.0}} }
func (m *HeatModel) BetaL(mu parameter.Parameter) [][]float64 { return [][]float64{{1.0}} }

func (m *HeatModel) assembleA(mu parameter.Parameter) *mat.Dense {
	a := mat.NewDense(m.n, m.n, nil)
	a.Scale(mu.At(0), m.diff)
	var reac mat.Dense
	reac.Scale(mu.At(1), m.reac)
	a.Add(a, &reac)
	return a
}

// Solve assembles and directly solves the truth-space linear system
// A(mu) u = F(mu).
func (m *HeatModel) Solve(_ context.Context, mu parameter.Parameter) (crb.Element, error) {
	a := m.assembleA(mu)
	u := mat.NewVecDense(m.n, nil)
	if err := u.SolveVec(a, m.rhs); err != nil {
		return nil, fmt.Errorf("heat model: singular system at mu=%s: %w", mu.String(), err)
	}
	return Vector{Data: append([]float64(nil), u.RawVector().Data...)}, nil
}

func (m *HeatModel) InnerProduct(x, y crb.Element) (float64, error) {
	xv, yv := x.(Vector), y.(Vector)
	var sum float64
	for i := range xv.Data {
		sum += xv.Data[i] * yv.Data[i]
	}
	return sum, nil
}

func (m *HeatModel) Axpy(alpha float64, x, y crb.Element) (crb.Element, error) {
	xv, yv := x.(Vector), y.(Vector)
	out := make([]float64, len(xv.Data))
	for i := range out {
		out[i] = alpha*xv.Data[i] + yv.Data[i]
	}
	return Vector{Data: out}, nil
}

func (m *HeatModel) Scale(alpha float64, x crb.Element) (crb.Element, error) {
	xv := x.(Vector)
	out := make([]float64, len(xv.Data))
	for i := range out {
		out[i] = alpha * xv.Data[i]
	}
	return Vector{Data: out}, nil
}

func (m *HeatModel) termMatrix(term ports.AffineTerm) *mat.Dense {
	if term.Q == 0 {
		return m.diff
	}
	return m.reac
}

func (m *HeatModel) ApplyA(term ports.AffineTerm, v crb.Element) (crb.Element, error) {
	vv := v.(Vector)
	vec := mat.NewVecDense(m.n, vv.Data)
	var out mat.VecDense
	out.MulVec(m.termMatrix(term), vec)
	return Vector{Data: append([]float64(nil), out.RawVector().Data...)}, nil
}

func (m *HeatModel) ApplyM(term ports.AffineTerm, v crb.Element) (crb.Element, error) {
	if !m.transient {
		return nil, fmt.Errorf("heat model: no mass operator (steady problem)")
	}
	vv := v.(Vector)
	vec := mat.NewVecDense(m.n, vv.Data)
	var out mat.VecDense
	out.MulVec(m.mass, vec)
	return Vector{Data: append([]float64(nil), out.RawVector().Data...)}, nil
}

// ApplyATranspose applies the transpose of term's stiffness matrix; both
// the diffusion and reaction contributions are symmetric, so this is
// exactly ApplyA.
func (m *HeatModel) ApplyATranspose(term ports.AffineTerm, v crb.Element) (crb.Element, error) {
	return m.ApplyA(term, v)
}

// EvaluateF evaluates <F_0, v> = sum_i rhs[i] v[i]; there is only one
// right-hand-side term (QF=1, MMaxF(0)=1).
func (m *HeatModel) EvaluateF(term ports.AffineTerm, v crb.Element) (float64, error) {
	vv := v.(Vector)
	var sum float64
	for i := range vv.Data {
		sum += m.rhs.AtVec(i) * vv.Data[i]
	}
	return sum, nil
}

// EvaluateL evaluates <L_0, v>; the output is the compliant integral
// functional sum_i h*v[i] (QL=1, MMaxL(0)=1), independent of the rhs
// term used to drive the primal problem.
func (m *HeatModel) EvaluateL(term ports.AffineTerm, v crb.Element) (float64, error) {
	vv := v.(Vector)
	var sum float64
	for i := range vv.Data {
		sum += m.h * vv.Data[i]
	}
	return sum, nil
}

// RieszF solves (z, v) = <F_0, v> for all v; since the truth inner
// product is the Euclidean dot product, the representer is just F_0
// itself.
func (m *HeatModel) RieszF(_ context.Context, term ports.AffineTerm) (crb.Element, error) {
	return Vector{Data: append([]float64(nil), m.rhs.RawVector().Data...)}, nil
}

// RieszA solves (z, v) = a_q(basisElement, v) for all v; with a
// Euclidean truth inner product this is A_q * basisElement.
func (m *HeatModel) RieszA(_ context.Context, term ports.AffineTerm, basisElement crb.Element) (crb.Element, error) {
	bv := basisElement.(Vector)
	vec := mat.NewVecDense(m.n, bv.Data)
	var out mat.VecDense
	out.MulVec(m.termMatrix(term), vec)
	return Vector{Data: append([]float64(nil), out.RawVector().Data...)}, nil
}

func (m *HeatModel) RieszM(_ context.Context, term ports.AffineTerm, basisElement crb.Element) (crb.Element, error) {
	if !m.transient {
		return nil, fmt.Errorf("heat model: no mass operator (steady problem)")
	}
	bv := basisElement.(Vector)
	vec := mat.NewVecDense(m.n, bv.Data)
	var out mat.VecDense
	out.MulVec(m.mass, vec)
	return Vector{Data: append([]float64(nil), out.RawVector().Data...)}, nil
}

// RieszL solves (z, v) = <L_0, v> for all v; since the truth inner
// product is Euclidean and L_0 is the same constant-h functional as F_0
// here, the representer is the same constant vector.
func (m *HeatModel) RieszL(_ context.Context, term ports.AffineTerm) (crb.Element, error) {
	out := make([]float64, m.n)
	for i := range out {
		out[i] = m.h
	}
	return Vector{Data: out}, nil
}

func (m *HeatModel) OutputValue(mu parameter.Parameter, v crb.Element) (float64, error) {
	vv := v.(Vector)
	var sum float64
	for i := range vv.Data {
		sum += m.h * vv.Data[i]
	}
	return sum, nil
}

// CoercivityLowerBound returns the minimum of the two affine
// coefficients, a valid (if not sharp) coercivity lower bound for this
// diagonally dominant discretization.
func (m *HeatModel) CoercivityLowerBound(mu parameter.Parameter) (float64, error) {
	k, r := mu.At(0), mu.At(1)
	if k < r {
		return k, nil
	}
	return r, nil
}

// SolveDual solves A(mu)^T z = -L for the adjoint snapshot. A(mu) is
// symmetric here, so this reuses assembleA directly rather than
// transposing. outputIndex is accepted for interface symmetry with
// truth models exposing more than one output; this fixture has one.
func (m *HeatModel) SolveDual(_ context.Context, mu parameter.Parameter, _ int) (crb.Element, error) {
	a := m.assembleA(mu)
	lVec := mat.NewVecDense(m.n, nil)
	for i := 0; i < m.n; i++ {
		lVec.SetVec(i, -m.h)
	}
	z := mat.NewVecDense(m.n, nil)
	if err := z.SolveVec(a, lVec); err != nil {
		return nil, fmt.Errorf("heat model: singular dual system at mu=%s: %w", mu.String(), err)
	}
	return Vector{Data: append([]float64(nil), z.RawVector().Data...)}, nil
}

// SolveTransient runs an implicit-Euler march of (M/dt + A(mu)) u^{n+1} =
// F + M/dt u^n from a zero initial condition, returning every step
// including u^0 (spec.md §4.5 step 2, §4.10 transient enrichment source).
func (m *HeatModel) SolveTransient(_ context.Context, mu parameter.Parameter, dt, tFinal float64) ([]crb.Element, error) {
	if !m.transient {
		return nil, fmt.Errorf("heat model: no mass operator (steady problem)")
	}
	a := m.assembleA(mu)
	var lhs mat.Dense
	lhs.Scale(1.0/dt, m.mass)
	lhs.Add(&lhs, a)

	steps := int(math.Ceil(tFinal / dt))
	traj := make([]crb.Element, 0, steps+1)
	u := mat.NewVecDense(m.n, nil)
	traj = append(traj, Vector{Data: append([]float64(nil), u.RawVector().Data...)})

	for step := 1; step <= steps; step++ {
		var mterm mat.VecDense
		mterm.MulVec(m.mass, u)
		mterm.Scale(1.0/dt, &mterm)
		var rhs mat.VecDense
		rhs.AddVec(m.rhs, &mterm)

		next := mat.NewVecDense(m.n, nil)
		if err := next.SolveVec(&lhs, &rhs); err != nil {
			return nil, fmt.Errorf("heat model: singular transient system at mu=%s, step %d: %w", mu.String(), step, err)
		}
		traj = append(traj, Vector{Data: append([]float64(nil), next.RawVector().Data...)})
		u = next
	}
	return traj, nil
}
