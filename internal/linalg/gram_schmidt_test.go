package linalg

import (
	"context"
	"math"
	"testing"

	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal/crbtest"

	"github.com/stretchr/testify/require"
)

func buildRawBasis(t *testing.T, truth *crbtest.HeatModel, mus []parameter.Parameter) *crb.Basis {
	t.Helper()
	basis := crb.NewBasis()
	for _, mu := range mus {
		el, err := truth.Solve(context.Background(), mu)
		require.NoError(t, err)
		basis.Append(el, mu)
	}
	return basis
}

func TestOrthonormalizerProducesOrthonormalBasis(t *testing.T) {
	truth := crbtest.NewHeatModel(40)
	mus := []parameter.Parameter{
		parameter.New([]float64{0.2, 0.05}),
		parameter.New([]float64{1.0, 0.2}),
		parameter.New([]float64{5.0, 0.8}),
		parameter.New([]float64{0.5, 0.5}),
	}
	basis := buildRawBasis(t, truth, mus)
	ortho := NewOrthonormalizer(truth)

	for n := 0; n < basis.Size(); n++ {
		require.NoError(t, ortho.Run(basis, n))
	}

	for i := 0; i < basis.Size(); i++ {
		for j := 0; j < basis.Size(); j++ {
			ip, err := truth.InnerProduct(basis.At(i), basis.At(j))
			require.NoError(t, err)
			expected := 0.0
			if i == j {
				expected = 1.0
			}
			if math.Abs(ip-expected) > 1e-8 {
				t.Fatalf("basis not orthonormal at (%d,%d): got %.3e, want %.3e", i, j, ip, expected)
			}
		}
	}
}

func TestOrthonormalizerRunNewOnlyTouchesNewIndices(t *testing.T) {
	truth := crbtest.NewHeatModel(20)
	mus := []parameter.Parameter{
		parameter.New([]float64{0.3, 0.1}),
		parameter.New([]float64{2.0, 0.3}),
	}
	basis := buildRawBasis(t, truth, mus[:1])
	ortho := NewOrthonormalizer(truth)
	require.NoError(t, ortho.RunNew(basis, 1))

	first := basis.At(0)

	basis.Append(mustSolve(t, truth, mus[1]), mus[1])
	require.NoError(t, ortho.RunNew(basis, 1))

	require.Equal(t, first, basis.At(0), "orthonormalizing the new tail must not mutate the already-orthonormal prefix")
}

func mustSolve(t *testing.T, truth *crbtest.HeatModel, mu parameter.Parameter) crb.Element {
	t.Helper()
	el, err := truth.Solve(context.Background(), mu)
	require.NoError(t, err)
	return el
}
