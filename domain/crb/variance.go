package crb

import "gonum.org/v1/gonum/mat"

// VarianceTables holds the Phi matrices used to certify the variance of a
// scalar output functional across a parameter sampling, rather than just
// its mean (spec.md §4.9). Construction is gated behind
// Options.Variance.Enabled: most studies only need the certified output
// bound, not its statistical spread, and assembling Phi costs one extra
// N×N solve per sample.
type VarianceTables struct {
	phi []*MatrixEntry // one N×N matrix per affine output term q
}

// NewVarianceTables allocates Q empty Phi entries.
func NewVarianceTables(q int) *VarianceTables {
	v := &VarianceTables{phi: make([]*MatrixEntry, q)}
	for i := range v.phi {
		v.phi[i] = NewMatrixEntry()
	}
	return v
}

// Q returns the number of affine output terms.
func (v *VarianceTables) Q() int { return len(v.phi) }

// Phi returns the Phi entry for output term q.
func (v *VarianceTables) Phi(q int) *MatrixEntry { return v.phi[q] }

// Variance evaluates uN^T Phi_q uN summed over the output's affine
// expansion, given the per-term coefficients beta and the reduced
// solution coefficients uN (spec.md §4.9 variance functional).
func (v *VarianceTables) Variance(beta []float64, uN *mat.VecDense) float64 {
	var total float64
	work := mat.NewVecDense(uN.Len(), nil)
	for q, b := range beta {
		if v.phi[q].Dense() == nil {
			continue
		}
		work.MulVec(v.phi[q].Dense(), uN)
		total += b * mat.Dot(uN, work)
	}
	return total
}
