package crb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaggedShapeIndicesAreDeterministicAndComplete(t *testing.T) {
	shape := NewRaggedShape([]int{1, 2}, []int{2})
	first := shape.Indices()
	second := shape.Indices()
	require.Equal(t, first, second, "Indices() order must be stable across calls: persistence round-tripping depends on it")
	assert.Equal(t, shape.Len(), len(first))

	seen := make(map[RaggedIndex]bool)
	for _, idx := range first {
		assert.False(t, seen[idx], "duplicate index %+v", idx)
		seen[idx] = true
		assert.Less(t, idx.M1, shape.MMax1(idx.Q1))
		assert.Less(t, idx.M2, shape.MMax2(idx.Q2))
	}
}

func TestScalarRaggedTableSetGet(t *testing.T) {
	shape := NewRaggedShape([]int{1}, []int{1})
	table := NewScalarRaggedTable(shape)

	_, ok := table.Get(0, 0, 0, 0)
	assert.False(t, ok)

	table.Set(0, 0, 0, 0, 3.5)
	v, ok := table.Get(0, 0, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 3.5, v)
}

func TestVectorAndMatrixRaggedTableAddressingIsConsistentWithShape(t *testing.T) {
	shape := NewRaggedShape([]int{1, 1}, []int{1})
	vt := NewVectorRaggedTable(shape)
	mt := NewMatrixRaggedTable(shape)

	for _, idx := range shape.Indices() {
		entry := vt.At(idx.Q1, idx.M1, idx.Q2, idx.M2)
		assert.Equal(t, 0, entry.Size())
		mentry := mt.At(idx.Q1, idx.M1, idx.Q2, idx.M2)
		assert.Equal(t, 0, mentry.Size())
	}

	entry := vt.At(1, 0, 0, 0)
	entry.Grow(3, 3, func(i int) float64 { return float64(i) })
	assert.Equal(t, 3, vt.At(1, 0, 0, 0).Size())
	assert.Equal(t, 0, vt.At(0, 0, 0, 0).Size())
}
