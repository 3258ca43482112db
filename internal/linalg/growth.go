package linalg

import (
	"gonum.org/v1/gonum/mat"
)

// GrowSymmetric extends a symmetric N×N reduced-space matrix (e.g. the
// truth-inner-product Gram matrix of the basis itself) to newN, filling
// only the new rows/columns via assemble and mirroring across the
// diagonal, per the append-row/append-column growth policy of spec.md
// §4.3.
func GrowSymmetric(old *mat.SymDense, newN int, assemble func(i, j int) float64) *mat.SymDense {
	grown := mat.NewSymDense(newN, nil)
	oldN := 0
	if old != nil {
		oldN, _ = old.Dims()
	}
	for i := 0; i < newN; i++ {
		for j := i; j < newN; j++ {
			if i < oldN && j < oldN {
				grown.SetSym(i, j, old.At(i, j))
				continue
			}
			grown.SetSym(i, j, assemble(i, j))
		}
	}
	return grown
}

// AppendVec returns a new vector of length newN, copying v's existing
// entries and filling [len(v), newN) via assemble.
func AppendVec(v *mat.VecDense, newN int, assemble func(i int) float64) *mat.VecDense {
	out := mat.NewVecDense(newN, nil)
	oldN := 0
	if v != nil {
		oldN = v.Len()
	}
	for i := 0; i < oldN; i++ {
		out.SetVec(i, v.AtVec(i))
	}
	for i := oldN; i < newN; i++ {
		out.SetVec(i, assemble(i))
	}
	return out
}
