package crb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrixEntryGrowPreservesOldBlock(t *testing.T) {
	e := NewMatrixEntry()
	calls := 0
	e.Grow(2, 2, func(i, j int) float64 {
		calls++
		return float64(10*i + j)
	})
	assert.Equal(t, 4, calls)
	snapshot := append([]float64(nil), e.Dense().RawMatrix().Data...)

	e.Grow(4, 2, func(i, j int) float64 {
		return float64(100*i + j)
	})
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.Equal(t, snapshot[i*2+j], e.Dense().At(i, j), "old block at (%d,%d) must not change", i, j)
		}
	}
	assert.Equal(t, float64(302), e.Dense().At(3, 2))
}

func TestVectorEntryGrowPreservesOldBlock(t *testing.T) {
	e := NewVectorEntry()
	e.Grow(2, 2, func(i int) float64 { return float64(i + 1) })
	assert.Equal(t, 1.0, e.VecDense().AtVec(0))
	assert.Equal(t, 2.0, e.VecDense().AtVec(1))

	e.Grow(5, 3, func(i int) float64 { return float64(100 + i) })
	assert.Equal(t, 1.0, e.VecDense().AtVec(0))
	assert.Equal(t, 2.0, e.VecDense().AtVec(1))
	assert.Equal(t, 102.0, e.VecDense().AtVec(2))
	assert.Equal(t, 104.0, e.VecDense().AtVec(4))
}

func TestAssembleMatrixAndVectorSumAffineTerms(t *testing.T) {
	mt := NewMatrixTable([]int{1, 1})
	mt.At(0, 0).Grow(2, 2, func(i, j int) float64 {
		if i == j {
			return 1
		}
		return 0
	})
	mt.At(1, 0).Grow(2, 2, func(i, j int) float64 {
		if i == j {
			return 2
		}
		return 0
	})
	beta := [][]float64{{3}, {5}}
	out := AssembleMatrix(mt, beta, 2)
	assert.Equal(t, 13.0, out.At(0, 0)) // 3*1 + 5*2
	assert.Equal(t, 13.0, out.At(1, 1))

	vt := NewVectorTable([]int{1})
	vt.At(0, 0).Grow(2, 2, func(i int) float64 { return float64(i + 1) })
	vOut := AssembleVector(vt, [][]float64{{4}}, 2)
	assert.Equal(t, 4.0, vOut.AtVec(0))
	assert.Equal(t, 8.0, vOut.AtVec(1))
}
