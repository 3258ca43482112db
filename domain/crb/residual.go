package crb

import "gonum.org/v1/gonum/mat"

// ResidualTables holds the precomputed Riesz-representer inner-product
// tables used to evaluate the dual-norm residual error estimator without
// returning to the truth space (spec.md §4.7):
//
//   C0  - ||F_q||^2-type couplings between right-hand-side representers,
//         N-independent (ScalarRaggedTable).
//   Lambda - couplings between right-hand-side and operator representers,
//         one N-vector per (q1,m1,q2,m2) (VectorRaggedTable).
//   Gamma - couplings between operator representers, one N×N matrix per
//         (q1,m1,q2,m2) (MatrixRaggedTable).
//   Cmf, Cma, Cmm - the mass-matrix analogues of C0/Lambda/Gamma needed by
//         the transient (BDF) estimator (spec.md §4.10).
//
// A ResidualTables value exists once per estimator (primal, dual) per
// equation regime (steady, transient); DriverService owns one or two
// instances depending on whether a dual problem is solved.
type ResidualTables struct {
	C0     *ScalarRaggedTable
	Lambda *VectorRaggedTable
	Gamma  *MatrixRaggedTable

	Cmf *VectorRaggedTable
	Cma *MatrixRaggedTable
	Cmm *MatrixRaggedTable
}

// NewResidualTables allocates every sub-table against the affine-term
// counts of the right-hand side (mMaxF), the operator (mMaxA), and, for
// transient problems, the mass operator (mMaxM). mMaxM may be nil for
// steady problems, in which case the Cmf/Cma/Cmm tables are left nil.
func NewResidualTables(mMaxF, mMaxA, mMaxM []int) *ResidualTables {
	t := &ResidualTables{
		C0:     NewScalarRaggedTable(NewRaggedShape(mMaxF, mMaxF)),
		Lambda: NewVectorRaggedTable(NewRaggedShape(mMaxF, mMaxA)),
		Gamma:  NewMatrixRaggedTable(NewRaggedShape(mMaxA, mMaxA)),
	}
	if mMaxM != nil {
		t.Cmf = NewVectorRaggedTable(NewRaggedShape(mMaxM, mMaxF))
		t.Cma = NewMatrixRaggedTable(NewRaggedShape(mMaxM, mMaxA))
		t.Cmm = NewMatrixRaggedTable(NewRaggedShape(mMaxM, mMaxM))
	}
	return t
}

// IsTransient reports whether the mass-coupling tables were allocated.
func (t *ResidualTables) IsTransient() bool { return t.Cmm != nil }

// SteadyNormSquared evaluates ||r(mu)||_X'^2 for the steady residual
// r = F(mu) - A(mu) u_N, from the precomputed representer tables and the
// reduced solution uN, without any truth-space operation (spec.md §4.7,
// the classical affine residual dual-norm expansion):
//
//	||r||^2 = sum_{q1,m1,q2,m2} betaF[q1,m1] betaF[q2,m2] C0[q1,m1,q2,m2]
//	        - 2 sum_{q1,m1,q2,m2} betaF[q1,m1] betaA[q2,m2] (Lambda[q1,m1,q2,m2] . uN)
//	        + sum_{q1,m1,q2,m2} betaA[q1,m1] betaA[q2,m2] (uN^T Gamma[q1,m1,q2,m2] uN)
func (t *ResidualTables) SteadyNormSquared(betaF, betaA [][]float64, uN *mat.VecDense) float64 {
	var sum float64

	for q1, mRow := range betaF {
		for m1, bf1 := range mRow {
			for q2, mRow2 := range betaF {
				for m2, bf2 := range mRow2 {
					c0, _ := t.C0.Get(q1, m1, q2, m2)
					sum += bf1 * bf2 * c0
				}
			}
		}
	}

	for q1, mRow := range betaF {
		for m1, bf := range mRow {
			for q2, mRow2 := range betaA {
				for m2, ba := range mRow2 {
					lam := t.Lambda.At(q1, m1, q2, m2)
					if lam.VecDense() == nil || uN == nil {
						continue
					}
					sum -= 2 * bf * ba * mat.Dot(lam.VecDense(), uN)
				}
			}
		}
	}

	if uN != nil {
		work := mat.NewVecDense(uN.Len(), nil)
		for q1, mRow := range betaA {
			for m1, ba1 := range mRow {
				for q2, mRow2 := range betaA {
					for m2, ba2 := range mRow2 {
						gam := t.Gamma.At(q1, m1, q2, m2)
						if gam.Dense() == nil {
							continue
						}
						work.MulVec(gam.Dense(), uN)
						sum += ba1 * ba2 * mat.Dot(uN, work)
					}
				}
			}
		}
	}

	return sum
}

// TransientNormSquared evaluates ||r^n(mu)||_X'^2 for the BDF1 transient
// residual
//
//	r^n = F(mu) - A(mu) u_N^n - (1/dt) M(mu) u_N^n + (1/dt) M(mu) u_N^{n-1}
//
// by expanding the square into six representer couplings (spec.md §4.7,
// §4.10): the steady FF/FA/AA couplings of SteadyNormSquared, plus the
// mass couplings FM (Cmf), AM (Cma), and MM (Cmm), each scaled by the
// 1/dt or 1/dt^2 that its term in the residual carries. uPrev is the
// previous time level's reduced solution; for the first step (n=0) pass
// a zero vector of the same length.
func (t *ResidualTables) TransientNormSquared(betaF, betaA, betaM [][]float64, uCur, uPrev *mat.VecDense, dt float64) float64 {
	if !t.IsTransient() {
		return 0
	}
	invDt := 1.0 / dt
	invDt2 := invDt * invDt

	sum := t.SteadyNormSquared(betaF, betaA, uCur)

	sum -= 2 * invDt * linearCoupling(t.Cmf, betaM, betaF, uCur)
	sum += 2 * invDt * linearCoupling(t.Cmf, betaM, betaF, uPrev)

	sum += invDt2 * quadraticCoupling(t.Cmm, betaM, betaM, uCur, uCur)
	sum += invDt2 * quadraticCoupling(t.Cmm, betaM, betaM, uPrev, uPrev)
	sum -= 2 * invDt2 * quadraticCoupling(t.Cmm, betaM, betaM, uCur, uPrev)

	sum += 2 * invDt * quadraticCoupling(t.Cma, betaM, betaA, uCur, uCur)
	sum -= 2 * invDt * quadraticCoupling(t.Cma, betaM, betaA, uPrev, uCur)

	return sum
}

func linearCoupling(table *VectorRaggedTable, betaLeft, betaRight [][]float64, v *mat.VecDense) float64 {
	if v == nil {
		return 0
	}
	var sum float64
	for q1, row1 := range betaLeft {
		for m1, b1 := range row1 {
			for q2, row2 := range betaRight {
				for m2, b2 := range row2 {
					e := table.At(q1, m1, q2, m2)
					if e.VecDense() == nil {
						continue
					}
					sum += b1 * b2 * mat.Dot(e.VecDense(), v)
				}
			}
		}
	}
	return sum
}

func quadraticCoupling(table *MatrixRaggedTable, betaLeft, betaRight [][]float64, left, right *mat.VecDense) float64 {
	if left == nil || right == nil {
		return 0
	}
	work := mat.NewVecDense(right.Len(), nil)
	var sum float64
	for q1, row1 := range betaLeft {
		for m1, b1 := range row1 {
			for q2, row2 := range betaRight {
				for m2, b2 := range row2 {
					e := table.At(q1, m1, q2, m2)
					if e.Dense() == nil {
						continue
					}
					work.MulVec(e.Dense(), right)
					sum += b1 * b2 * mat.Dot(left, work)
				}
			}
		}
	}
	return sum
}
