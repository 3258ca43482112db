// Package pod implements the method-of-snapshots Proper Orthogonal
// Decomposition used to compress a transient trajectory before it is
// appended to the reduced basis (spec.md §4.10). The correlation matrix
// is built from truth-space inner products and eigendecomposed with
// gonum, so the opaque snapshot representation never needs to support
// anything beyond ports.TruthModel's inner product and vector-space
// primitives.
package pod

import (
	"fmt"
	"math"
	"sort"

	"gocrb/domain/crb"
	"gocrb/internal/errors"
	"gocrb/ports"

	"gonum.org/v1/gonum/mat"
)

// SnapshotPOD is a ports.PODProvider implementation over a ports.TruthModel.
type SnapshotPOD struct {
	truth ports.TruthModel
}

// NewSnapshotPOD returns a SnapshotPOD driven by truth.
func NewSnapshotPOD(truth ports.TruthModel) *SnapshotPOD {
	return &SnapshotPOD{truth: truth}
}

// Compress returns the modeCount most energetic POD modes of snapshots in
// the truth scalar product, via the method of snapshots: eigendecompose
// the n×n correlation matrix C_ij = (s_i, s_j)_X rather than the
// (typically much larger) truth-space covariance operator.
func (p *SnapshotPOD) Compress(snapshots []crb.Element, modeCount int) ([]crb.Element, float64, error) {
	n := len(snapshots)
	if n == 0 {
		return nil, 0, errors.InvalidInput("pod: no snapshots supplied")
	}
	if modeCount > n {
		modeCount = n
	}

	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v, err := p.truth.InnerProduct(snapshots[i], snapshots[j])
			if err != nil {
				return nil, 0, errors.TruthModelFailure(fmt.Errorf("pod correlation[%d,%d]: %w", i, j, err))
			}
			corr.SetSym(i, j, v)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(corr, true); !ok {
		return nil, 0, errors.InternalError("pod: correlation matrix eigendecomposition failed to converge")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	totalEnergy := 0.0
	for i, v := range values {
		if v < 0 {
			v = 0
		}
		pairs[i] = pair{value: v, index: i}
		totalEnergy += v
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].value > pairs[j].value })

	modes := make([]crb.Element, modeCount)
	retained := 0.0
	for m := 0; m < modeCount; m++ {
		idx := pairs[m].index
		lambda := pairs[m].value
		retained += lambda
		scale := 0.0
		if lambda > 1e-14 {
			scale = 1.0 / math.Sqrt(lambda*float64(n))
		}

		var mode crb.Element
		for i := 0; i < n; i++ {
			coeff := vectors.At(i, idx) * scale * float64(n)
			term, err := p.truth.Scale(coeff, snapshots[i])
			if err != nil {
				return nil, 0, errors.TruthModelFailure(err)
			}
			if mode == nil {
				mode = term
				continue
			}
			mode, err = p.truth.Axpy(1.0, term, mode)
			if err != nil {
				return nil, 0, errors.TruthModelFailure(err)
			}
		}
		modes[m] = mode
	}

	energyFraction := 0.0
	if totalEnergy > 0 {
		energyFraction = retained / totalEnergy
	}
	return modes, energyFraction, nil
}
