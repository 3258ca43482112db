package linalg

import (
	"fmt"

	"gocrb/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// ConditionNumber returns the ratio of the largest to smallest eigenvalue
// magnitude of a symmetric reduced-space matrix (the online stiffness
// matrix A_N(mu), typically), used by OnlineService's conditioning
// diagnostic (spec.md §4.6, §4.9). It returns an error if the matrix has
// a zero eigenvalue, since the ratio is then undefined.
func ConditionNumber(a *mat.SymDense) (float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, false); !ok {
		return 0, errors.InternalError("condition number: eigendecomposition failed to converge")
	}
	values := eig.Values(nil)
	minAbs, maxAbs := abs(values[0]), abs(values[0])
	for _, v := range values[1:] {
		av := abs(v)
		if av < minAbs {
			minAbs = av
		}
		if av > maxAbs {
			maxAbs = av
		}
	}
	if minAbs == 0 {
		return 0, errors.InternalError(fmt.Sprintf("condition number: matrix of size %d is singular", a.SymmetricDim()))
	}
	return maxAbs / minAbs, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
