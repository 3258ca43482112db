package app

import (
	"fmt"

	"gocrb/domain/crb"
	"gocrb/internal/errors"
	"gocrb/ports"
)

// AffineProjector updates the reduced affine-decomposition cache
// (Â_{q,m}, M̂_{q,m}, F̂_{q,m}, L̂_{q,m}) as the basis grows, the offline
// greedy driver's step 4 "update operator tables" (spec.md §4.5, §4.3).
// It grows only the newly added rows/columns of each MatrixEntry/
// VectorEntry, never revisiting indices below the previous N, per the
// growth policy documented on domain/crb.MatrixEntry.Grow.
type AffineProjector struct {
	truth ports.TruthModel
	n     int
	nDu   int
	nVar  int
}

// NewAffineProjector builds a projector over a truth model.
func NewAffineProjector(truth ports.TruthModel) *AffineProjector {
	return &AffineProjector{truth: truth}
}

// Update grows every table in ops to basis.Size(), including the mass
// table when ops.M is non-nil (transient problems project the mass form
// against the same primal basis by convention).
func (p *AffineProjector) Update(ops *crb.OperatorSet, basis *crb.Basis) error {
	newN := basis.Size()
	k := newN - p.n
	if k <= 0 {
		return nil
	}

	for q := 0; q < ops.A.Q(); q++ {
		for m := 0; m < ops.A.MMax(q); m++ {
			term := ports.AffineTerm{Q: q, M: m}
			entry := ops.A.At(q, m)
			var grow error
			entry.Grow(newN, k, func(i, j int) float64 {
				if grow != nil {
					return 0
				}
				tw, err := p.truth.ApplyA(term, basis.At(j))
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: A[%d,%d] apply at j=%d: %w", q, m, j, err))
					return 0
				}
				v, err := p.truth.InnerProduct(basis.At(i), tw)
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: A[%d,%d] inner product at (%d,%d): %w", q, m, i, j, err))
					return 0
				}
				return v
			})
			if grow != nil {
				return grow
			}
		}
	}

	if ops.M != nil {
		for q := 0; q < ops.M.Q(); q++ {
			for m := 0; m < ops.M.MMax(q); m++ {
				term := ports.AffineTerm{Q: q, M: m}
				entry := ops.M.At(q, m)
				var grow error
				entry.Grow(newN, k, func(i, j int) float64 {
					if grow != nil {
						return 0
					}
					tw, err := p.truth.ApplyM(term, basis.At(j))
					if err != nil {
						grow = errors.TruthModelFailure(fmt.Errorf("affine projector: M[%d,%d] apply at j=%d: %w", q, m, j, err))
						return 0
					}
					v, err := p.truth.InnerProduct(basis.At(i), tw)
					if err != nil {
						grow = errors.TruthModelFailure(fmt.Errorf("affine projector: M[%d,%d] inner product at (%d,%d): %w", q, m, i, j, err))
						return 0
					}
					return v
				})
				if grow != nil {
					return grow
				}
			}
		}
	}

	for q := 0; q < ops.F.Q(); q++ {
		for m := 0; m < ops.F.MMax(q); m++ {
			term := ports.AffineTerm{Q: q, M: m}
			entry := ops.F.At(q, m)
			var grow error
			entry.Grow(newN, k, func(i int) float64 {
				if grow != nil {
					return 0
				}
				v, err := p.truth.EvaluateF(term, basis.At(i))
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: F[%d,%d] at i=%d: %w", q, m, i, err))
					return 0
				}
				return v
			})
			if grow != nil {
				return grow
			}
		}
	}

	for q := 0; q < ops.L.Q(); q++ {
		for m := 0; m < ops.L.MMax(q); m++ {
			term := ports.AffineTerm{Q: q, M: m}
			entry := ops.L.At(q, m)
			var grow error
			entry.Grow(newN, k, func(i int) float64 {
				if grow != nil {
					return 0
				}
				v, err := p.truth.EvaluateL(term, basis.At(i))
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: L[%d,%d] at i=%d: %w", q, m, i, err))
					return 0
				}
				return v
			})
			if grow != nil {
				return grow
			}
		}
	}

	p.n = newN
	return nil
}

// UpdateDual grows the dual/output-correction couplings ADu, APrDu, FDu
// (spec.md §4.3, §4.6) to dualBasis.Size(). The primal and dual bases are
// grown in lockstep by GreedyService, one vector each per iteration, so
// both reach the same dimension N after every call; ADu and APrDu are
// therefore ordinary square N x N tables indexed the same way as ops.A.
func (p *AffineProjector) UpdateDual(ops *crb.OperatorSet, primalBasis, dualBasis *crb.Basis) error {
	newN := dualBasis.Size()
	k := newN - p.nDu
	if k <= 0 {
		return nil
	}

	for q := 0; q < ops.ADu.Q(); q++ {
		for m := 0; m < ops.ADu.MMax(q); m++ {
			term := ports.AffineTerm{Q: q, M: m}
			entry := ops.ADu.At(q, m)
			var grow error
			entry.Grow(newN, k, func(i, j int) float64 {
				if grow != nil {
					return 0
				}
				tw, err := p.truth.ApplyATranspose(term, dualBasis.At(j))
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: ADu[%d,%d] apply at j=%d: %w", q, m, j, err))
					return 0
				}
				v, err := p.truth.InnerProduct(dualBasis.At(i), tw)
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: ADu[%d,%d] inner product at (%d,%d): %w", q, m, i, j, err))
					return 0
				}
				return v
			})
			if grow != nil {
				return grow
			}
		}
	}

	for q := 0; q < ops.APrDu.Q(); q++ {
		for m := 0; m < ops.APrDu.MMax(q); m++ {
			term := ports.AffineTerm{Q: q, M: m}
			entry := ops.APrDu.At(q, m)
			var grow error
			entry.Grow(newN, k, func(i, j int) float64 {
				if grow != nil {
					return 0
				}
				tw, err := p.truth.ApplyA(term, primalBasis.At(j))
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: APrDu[%d,%d] apply at j=%d: %w", q, m, j, err))
					return 0
				}
				v, err := p.truth.InnerProduct(dualBasis.At(i), tw)
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: APrDu[%d,%d] inner product at (%d,%d): %w", q, m, i, j, err))
					return 0
				}
				return v
			})
			if grow != nil {
				return grow
			}
		}
	}

	for q := 0; q < ops.FDu.Q(); q++ {
		for m := 0; m < ops.FDu.MMax(q); m++ {
			term := ports.AffineTerm{Q: q, M: m}
			entry := ops.FDu.At(q, m)
			var grow error
			entry.Grow(newN, k, func(i int) float64 {
				if grow != nil {
					return 0
				}
				v, err := p.truth.EvaluateL(term, dualBasis.At(i))
				if err != nil {
					grow = errors.TruthModelFailure(fmt.Errorf("affine projector: FDu[%d,%d] at i=%d: %w", q, m, i, err))
					return 0
				}
				return v
			})
			if grow != nil {
				return grow
			}
		}
	}

	p.nDu = newN
	return nil
}

// UpdateVariance grows each Phi_q matrix of variance to basis.Size().
// Phi_q[i,j] = L_q(w_i) L_q(w_j), the rank-one outer product of output
// term q's projection onto the basis with itself, summed over q's
// m-subterms via ops.L (spec.md §4.9 variance functional); it is the
// same construction VarianceTables.Variance expects to contract against
// a per-q beta and the reduced solution.
func (p *AffineProjector) UpdateVariance(ops *crb.OperatorSet, variance *crb.VarianceTables, basis *crb.Basis) error {
	newN := basis.Size()
	k := newN - p.nVar
	if k <= 0 {
		return nil
	}

	lAt := func(q, i int) (float64, error) {
		var sum float64
		for m := 0; m < ops.L.MMax(q); m++ {
			v, err := p.truth.EvaluateL(ports.AffineTerm{Q: q, M: m}, basis.At(i))
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	}

	for q := 0; q < variance.Q(); q++ {
		entry := variance.Phi(q)
		var grow error
		entry.Grow(newN, k, func(i, j int) float64 {
			if grow != nil {
				return 0
			}
			li, err := lAt(q, i)
			if err != nil {
				grow = errors.TruthModelFailure(fmt.Errorf("affine projector: variance Phi[%d] at i=%d: %w", q, i, err))
				return 0
			}
			lj, err := lAt(q, j)
			if err != nil {
				grow = errors.TruthModelFailure(fmt.Errorf("affine projector: variance Phi[%d] at j=%d: %w", q, j, err))
				return 0
			}
			return li * lj
		})
		if grow != nil {
			return grow
		}
	}

	p.nVar = newN
	return nil
}
