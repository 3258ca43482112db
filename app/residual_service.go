package app

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gocrb/domain/crb"
	"gocrb/internal/errors"
	"gocrb/ports"
)

// ResidualService precomputes and evaluates the dual-norm residual
// estimator tables of spec.md §4.7. One instance exists per estimator
// (primal, and optionally dual); DriverService owns whichever it needs.
//
// The primal estimator's right-hand side is the affine forcing F; the
// dual estimator's right-hand side is the affine output functional L
// (spec.md §4.6: the adjoint problem's data is -L). Both share the same
// Lambda/Gamma/Cmf/Cma/Cmm growth machinery, parameterized by rhsTerm.
type ResidualService struct {
	truth ports.TruthModel

	tables *crb.ResidualTables

	rhsTerm func(ctx context.Context, term ports.AffineTerm) (crb.Element, error)

	rieszF [][]crb.Element   // [q][m], N-independent
	rieszA [][][]crb.Element // [q][m][n], grows with n
	rieszM [][][]crb.Element // [q][m][n], grows with n (transient only, nil otherwise)
}

// NewResidualService allocates a primal ResidualService over the given
// affine term counts. mMaxM may be nil for a steady-only estimator.
func NewResidualService(truth ports.TruthModel, mMaxF, mMaxA, mMaxM []int) *ResidualService {
	return newResidualService(truth, mMaxF, mMaxA, mMaxM, truth.RieszF)
}

// NewDualResidualService allocates the dual-problem ResidualService of
// spec.md §4.6, §4.7: its right-hand side is the output functional L
// rather than the forcing F, so it reuses RieszL in place of RieszF and
// carries no mass coupling of its own (the dual residual is evaluated at
// the same reduced dimension as the dual basis, which this engine builds
// from steady adjoint snapshots only).
func NewDualResidualService(truth ports.TruthModel, mMaxL, mMaxA []int) *ResidualService {
	return newResidualService(truth, mMaxL, mMaxA, nil, truth.RieszL)
}

func newResidualService(truth ports.TruthModel, mMaxRHS, mMaxA, mMaxM []int, rhsTerm func(ctx context.Context, term ports.AffineTerm) (crb.Element, error)) *ResidualService {
	s := &ResidualService{
		truth:   truth,
		tables:  crb.NewResidualTables(mMaxRHS, mMaxA, mMaxM),
		rhsTerm: rhsTerm,
		rieszF:  make([][]crb.Element, len(mMaxRHS)),
		rieszA:  make([][][]crb.Element, len(mMaxA)),
	}
	for q, m := range mMaxRHS {
		s.rieszF[q] = make([]crb.Element, m)
	}
	for q, m := range mMaxA {
		s.rieszA[q] = make([][]crb.Element, m)
	}
	if mMaxM != nil {
		s.rieszM = make([][][]crb.Element, len(mMaxM))
		for q, m := range mMaxM {
			s.rieszM[q] = make([][]crb.Element, m)
		}
	}
	return s
}

// Tables returns the underlying precomputed tables, for persistence and
// for SteadyNormSquared/TransientNormSquared evaluation.
func (s *ResidualService) Tables() *crb.ResidualTables { return s.tables }

// PrecomputeRieszF solves for every right-hand-side representer and fills
// C0. Called once, before the greedy loop starts, since the right-hand
// side does not depend on N.
func (s *ResidualService) PrecomputeRieszF(ctx context.Context) error {
	for q := range s.rieszF {
		for m := range s.rieszF[q] {
			z, err := s.rhsTerm(ctx, ports.AffineTerm{Q: q, M: m})
			if err != nil {
				return errors.TruthModelFailure(fmt.Errorf("riesz representer rhs[%d,%d]: %w", q, m, err))
			}
			s.rieszF[q][m] = z
		}
	}
	for q1 := range s.rieszF {
		for m1 := range s.rieszF[q1] {
			for q2 := range s.rieszF {
				for m2 := range s.rieszF[q2] {
					v, err := s.truth.InnerProduct(s.rieszF[q1][m1], s.rieszF[q2][m2])
					if err != nil {
						return errors.TruthModelFailure(fmt.Errorf("C0[%d,%d,%d,%d]: %w", q1, m1, q2, m2, err))
					}
					s.tables.C0.Set(q1, m1, q2, m2, v)
				}
			}
		}
	}
	return nil
}

// Update extends every operator-coupled table (Lambda, Gamma, and the
// mass analogues Cmf/Cma/Cmm when massBasis is non-nil) to cover basis
// indices [oldN, newN), given the newly appended basis elements. It
// follows the growth policy of spec.md §4.3: previously computed
// rows/columns are never revisited.
//
// massBasis carries the same basis used to grow the mass-coupled Riesz
// representers; for this engine it is always the same *crb.Basis as
// basis (the primal problem projects mass and stiffness onto one
// reduced space), but the two are threaded separately so a future
// engine that keeps the two spaces distinct does not need a new method.
func (s *ResidualService) Update(ctx context.Context, basis *crb.Basis, massBasis *crb.Basis) error {
	newN := basis.Size()
	k := newN - s.currentN()
	if k <= 0 {
		return nil
	}

	if err := s.growRieszA(ctx, basis, k); err != nil {
		return err
	}
	if massBasis != nil && s.rieszM != nil {
		if err := s.growRieszM(ctx, massBasis, k); err != nil {
			return err
		}
	}

	shapeFA := s.tables.Lambda.Shape()
	for _, idx := range shapeFA.Indices() {
		entry := s.tables.Lambda.At(idx.Q1, idx.M1, idx.Q2, idx.M2)
		entry.Grow(newN, k, func(n int) float64 {
			v, err := s.truth.InnerProduct(s.rieszF[idx.Q1][idx.M1], s.rieszA[idx.Q2][idx.M2][n])
			if err != nil {
				return 0
			}
			return v
		})
	}

	shapeAA := s.tables.Gamma.Shape()
	for _, idx := range shapeAA.Indices() {
		entry := s.tables.Gamma.At(idx.Q1, idx.M1, idx.Q2, idx.M2)
		entry.Grow(newN, k, func(i, j int) float64 {
			v, err := s.truth.InnerProduct(s.rieszA[idx.Q1][idx.M1][i], s.rieszA[idx.Q2][idx.M2][j])
			if err != nil {
				return 0
			}
			return v
		})
	}

	if massBasis == nil || s.rieszM == nil || !s.tables.IsTransient() {
		return nil
	}

	shapeMF := s.tables.Cmf.Shape()
	for _, idx := range shapeMF.Indices() {
		entry := s.tables.Cmf.At(idx.Q1, idx.M1, idx.Q2, idx.M2)
		entry.Grow(newN, k, func(n int) float64 {
			v, err := s.truth.InnerProduct(s.rieszM[idx.Q1][idx.M1][n], s.rieszF[idx.Q2][idx.M2])
			if err != nil {
				return 0
			}
			return v
		})
	}

	shapeMA := s.tables.Cma.Shape()
	for _, idx := range shapeMA.Indices() {
		entry := s.tables.Cma.At(idx.Q1, idx.M1, idx.Q2, idx.M2)
		entry.Grow(newN, k, func(i, j int) float64 {
			v, err := s.truth.InnerProduct(s.rieszM[idx.Q1][idx.M1][i], s.rieszA[idx.Q2][idx.M2][j])
			if err != nil {
				return 0
			}
			return v
		})
	}

	shapeMM := s.tables.Cmm.Shape()
	for _, idx := range shapeMM.Indices() {
		entry := s.tables.Cmm.At(idx.Q1, idx.M1, idx.Q2, idx.M2)
		entry.Grow(newN, k, func(i, j int) float64 {
			v, err := s.truth.InnerProduct(s.rieszM[idx.Q1][idx.M1][i], s.rieszM[idx.Q2][idx.M2][j])
			if err != nil {
				return 0
			}
			return v
		})
	}

	return nil
}

func (s *ResidualService) growRieszA(ctx context.Context, basis *crb.Basis, k int) error {
	for _, n := range basis.Last(k) {
		el := basis.At(n)
		for q := range s.rieszA {
			for m := range s.rieszA[q] {
				z, err := s.truth.RieszA(ctx, ports.AffineTerm{Q: q, M: m}, el)
				if err != nil {
					return errors.TruthModelFailure(fmt.Errorf("riesz representer A[%d,%d] at basis index %d: %w", q, m, n, err))
				}
				s.rieszA[q][m] = append(s.rieszA[q][m], z)
			}
		}
	}
	return nil
}

func (s *ResidualService) growRieszM(ctx context.Context, massBasis *crb.Basis, k int) error {
	for _, n := range massBasis.Last(k) {
		el := massBasis.At(n)
		for q := range s.rieszM {
			for m := range s.rieszM[q] {
				z, err := s.truth.RieszM(ctx, ports.AffineTerm{Q: q, M: m}, el)
				if err != nil {
					return errors.TruthModelFailure(fmt.Errorf("riesz representer M[%d,%d] at basis index %d: %w", q, m, n, err))
				}
				s.rieszM[q][m] = append(s.rieszM[q][m], z)
			}
		}
	}
	return nil
}

// ConsistencyCheck recomputes ||r(mu)||_X'^2 by summing truth-space inner
// products over the cached Riesz representers directly, bypassing the
// Lambda/Gamma/C0 tables entirely, and returns its absolute gap against
// the table-based SteadyNormSquared result at the same (beta, uN). A
// nonzero gap means the cached tables have drifted from the
// representers that produced them (spec.md §11 "check.residual").
func (s *ResidualService) ConsistencyCheck(betaF, betaA [][]float64, uN *mat.VecDense) (float64, error) {
	direct, err := s.directNormSquared(betaF, betaA, uN)
	if err != nil {
		return 0, err
	}
	tabled := s.tables.SteadyNormSquared(betaF, betaA, uN)
	return math.Abs(direct - tabled), nil
}

func (s *ResidualService) directNormSquared(betaF, betaA [][]float64, uN *mat.VecDense) (float64, error) {
	n := uN.Len()
	r := make([]crb.Element, 0)
	for q, row := range betaF {
		for m, bf := range row {
			if bf == 0 {
				continue
			}
			scaled, err := s.truth.Scale(bf, s.rieszF[q][m])
			if err != nil {
				return 0, errors.TruthModelFailure(err)
			}
			r = append(r, scaled)
		}
	}
	for q, row := range betaA {
		for m, ba := range row {
			for i := 0; i < n; i++ {
				coef := -ba * uN.AtVec(i)
				if coef == 0 {
					continue
				}
				scaled, err := s.truth.Scale(coef, s.rieszA[q][m][i])
				if err != nil {
					return 0, errors.TruthModelFailure(err)
				}
				r = append(r, scaled)
			}
		}
	}
	if len(r) == 0 {
		return 0, nil
	}
	sum := r[0]
	var err error
	for _, term := range r[1:] {
		sum, err = s.truth.Axpy(1, term, sum)
		if err != nil {
			return 0, errors.TruthModelFailure(err)
		}
	}
	v, err := s.truth.InnerProduct(sum, sum)
	if err != nil {
		return 0, errors.TruthModelFailure(err)
	}
	return v, nil
}

func (s *ResidualService) currentN() int {
	for q := range s.rieszA {
		for m := range s.rieszA[q] {
			return len(s.rieszA[q][m])
		}
	}
	return 0
}
