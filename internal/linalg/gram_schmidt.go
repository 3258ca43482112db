// Package linalg holds the small numerical-linear-algebra primitives the
// domain layer needs but delegates to the truth model for the underlying
// vector-space operations: Gram-Schmidt orthonormalization, append-growth
// helpers for symmetric gonum matrices and vectors (the reduced-space
// caches in domain/crb grow through their own MatrixEntry/VectorEntry.Grow
// instead), and conditioning diagnostics (spec.md §4.4, §4.3, §4.9).
package linalg

import (
	"fmt"
	"math"

	"gocrb/domain/crb"
	"gocrb/internal/errors"
	"gocrb/ports"
)

// minNorm is the threshold below which a to-be-orthonormalized vector is
// considered linearly dependent on the existing basis (spec.md §4.4 edge
// case: "a snapshot numerically indistinguishable from the current
// span").
const minNorm = 1e-10

// Orthonormalizer runs modified Gram-Schmidt, in the scalar product of a
// ports.TruthModel, over the newly appended tail of a crb.Basis.
type Orthonormalizer struct {
	truth ports.TruthModel
	// Passes is the number of MGS sweeps performed per new vector.
	// Three passes recovers near machine-precision orthogonality even
	// when the existing basis is mildly ill-conditioned (spec.md §4.4).
	Passes int
}

// NewOrthonormalizer returns an Orthonormalizer configured for 3-pass
// modified Gram-Schmidt, the default of spec.md §4.4.
func NewOrthonormalizer(truth ports.TruthModel) *Orthonormalizer {
	return &Orthonormalizer{truth: truth, Passes: 3}
}

// Run orthonormalizes basis element index n against elements [0, n), then
// against itself (normalization), replacing it in place. It is called
// once per newly appended basis element, in increasing index order, so
// that element n is orthonormalized against an already-orthonormal
// prefix (spec.md §4.4, §3 invariant: "indices < N-k never mutated").
func (o *Orthonormalizer) Run(basis *crb.Basis, n int) error {
	v := basis.At(n)
	var err error
	for pass := 0; pass < o.Passes; pass++ {
		for j := 0; j < n; j++ {
			wj := basis.At(j)
			proj, ierr := o.truth.InnerProduct(v, wj)
			if ierr != nil {
				return errors.TruthModelFailure(fmt.Errorf("gram-schmidt inner product: %w", ierr))
			}
			v, err = o.truth.Axpy(-proj, wj, v)
			if err != nil {
				return errors.TruthModelFailure(fmt.Errorf("gram-schmidt axpy: %w", err))
			}
		}
	}

	normSq, err := o.truth.InnerProduct(v, v)
	if err != nil {
		return errors.TruthModelFailure(fmt.Errorf("gram-schmidt norm: %w", err))
	}
	norm := math.Sqrt(math.Max(normSq, 0))
	if norm < minNorm {
		return errors.InternalError(fmt.Sprintf("gram-schmidt: basis element %d has norm %.3e after orthogonalization, likely linearly dependent on the existing span", n, norm))
	}

	v, err = o.truth.Scale(1.0/norm, v)
	if err != nil {
		return errors.TruthModelFailure(fmt.Errorf("gram-schmidt scale: %w", err))
	}
	basis.Replace(n, v)
	return nil
}

// RunNew orthonormalizes every newly appended element returned by
// basis.Last(k), in order.
func (o *Orthonormalizer) RunNew(basis *crb.Basis, k int) error {
	for _, n := range basis.Last(k) {
		if err := o.Run(basis, n); err != nil {
			return err
		}
	}
	return nil
}
