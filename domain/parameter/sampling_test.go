package parameter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpace(t *testing.T) *Space {
	t.Helper()
	sp, err := NewSpace([]float64{0.1, 0.01}, []float64{10, 1})
	require.NoError(t, err)
	return sp
}

func TestSpaceRefParameterIsMidpoint(t *testing.T) {
	sp := testSpace(t)
	ref := sp.RefParameter()
	assert.InDelta(t, 5.05, ref.At(0), 1e-9)
	assert.InDelta(t, 0.505, ref.At(1), 1e-9)
}

func TestSpaceContainsRespectsBounds(t *testing.T) {
	sp := testSpace(t)
	assert.True(t, sp.Contains(New([]float64{5, 0.5})))
	assert.False(t, sp.Contains(New([]float64{0.01, 0.5})))
	assert.False(t, sp.Contains(New([]float64{5, 0.5, 0})))
}

func TestNewSpaceRejectsInvertedBounds(t *testing.T) {
	_, err := NewSpace([]float64{10}, []float64{1})
	require.Error(t, err)
}

func TestRandomSamplingIsReproducibleBySeed(t *testing.T) {
	sp := testSpace(t)
	a := NewRandomSampling(sp, 50, 42)
	b := NewRandomSampling(sp, 50, 42)
	require.Equal(t, a.Size(), b.Size())
	for i := 0; i < a.Size(); i++ {
		assert.True(t, a.At(i).Equal(b.At(i)))
		assert.True(t, sp.Contains(a.At(i)))
	}
}

func TestEquidistributedSamplingSizeAndBounds(t *testing.T) {
	sp := testSpace(t)
	s := NewEquidistributedSampling(sp, 20)
	assert.Equal(t, 20, s.Size())
	for i := 0; i < s.Size(); i++ {
		assert.True(t, sp.Contains(s.At(i)))
	}
}

func TestLogEquidistributedSamplingRejectsNonPositiveBounds(t *testing.T) {
	sp, err := NewSpace([]float64{-1}, []float64{10})
	require.NoError(t, err)
	_, err = NewLogEquidistributedSampling(sp, 10)
	require.Error(t, err)
}

func TestLogEquidistributedSamplingStaysInBounds(t *testing.T) {
	sp := testSpace(t)
	s, err := NewLogEquidistributedSampling(sp, 16)
	require.NoError(t, err)
	for i := 0; i < s.Size(); i++ {
		assert.True(t, sp.Contains(s.At(i)))
	}
}

func TestSamplingComplementExcludesSelected(t *testing.T) {
	sp := testSpace(t)
	super := NewSampling(sp, []Parameter{
		New([]float64{1, 0.1}),
		New([]float64{2, 0.2}),
		New([]float64{3, 0.3}),
	})
	selected := NewSampling(sp, []Parameter{super.At(1)})

	comp := selected.Complement(super)
	require.Equal(t, 2, comp.Size())
	assert.True(t, comp.At(0).Equal(super.At(0)))
	assert.True(t, comp.At(1).Equal(super.At(2)))
	assert.Equal(t, 0, comp.SuperIndex(0))
	assert.Equal(t, 2, comp.SuperIndex(1))
	assert.Equal(t, -1, super.SuperIndex(0))
}

func TestSamplingContains(t *testing.T) {
	sp := testSpace(t)
	mu := New([]float64{4, 0.4})
	s := NewSampling(sp, []Parameter{New([]float64{1, 0.1}), mu})
	assert.True(t, s.Contains(mu))
	assert.False(t, s.Contains(New([]float64{9, 0.9})))
}

func TestSamplingMinMaxLexicographicWithTieBreak(t *testing.T) {
	sp := testSpace(t)
	s := NewSampling(sp, []Parameter{
		New([]float64{2, 0.5}),
		New([]float64{1, 0.9}),
		New([]float64{1, 0.1}),
	})
	min, minIdx := s.Min()
	assert.True(t, min.Equal(New([]float64{1, 0.9})))
	assert.Equal(t, 1, minIdx)

	max, maxIdx := s.Max()
	assert.True(t, max.Equal(New([]float64{2, 0.5})))
	assert.Equal(t, 0, maxIdx)
}

func TestSamplingFileRoundTrip(t *testing.T) {
	sp := testSpace(t)
	s := NewRandomSampling(sp, 10, 7)
	path := filepath.Join(t.TempDir(), "sampling.txt")
	require.NoError(t, s.WriteFile(path))

	reloaded, err := ReadSamplingFile(sp, path)
	require.NoError(t, err)
	require.Equal(t, s.Size(), reloaded.Size())
	for i := 0; i < s.Size(); i++ {
		for d := 0; d < sp.Dimension(); d++ {
			assert.InDelta(t, s.At(i).At(d), reloaded.At(i).At(d), 1e-12)
		}
	}
}

func TestReadSamplingFileRejectsEmptyFile(t *testing.T) {
	sp := testSpace(t)
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := ReadSamplingFile(sp, path)
	require.Error(t, err)
}
