package app

import (
	"context"
	"math"
	"testing"

	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal/config"
	"gocrb/internal/crbtest"

	"github.com/stretchr/testify/require"
)

// TestBoundUpperBoundsTrueOutputError draws random parameters from the
// training space and checks that OnlineService.Bound, scaled by the
// output functional's operator norm, is a genuine upper bound on the
// true output error |s_N(mu) - s(mu)| -- the certification property of
// spec.md §4.7/§4.9 -- with a small numerical slack for discretization
// and floating-point error.
func TestBoundUpperBoundsTrueOutputError(t *testing.T) {
	dim := 50
	truth := crbtest.NewHeatModel(dim)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 30, 3)
	cfg := &config.GreedyConfig{DimensionMax: 5, Tolerance: 1e-3, EmpiricalFactor: 1.0}

	db := runGreedyToCompletion(t, truth, cfg, train)
	n := db.Dimension()
	require.Greater(t, n, 0)

	online := NewOnlineService(db, nil, nil, nil)

	// Operator norm of the output functional L (constant vector h, h, ...,
	// h in the Euclidean truth space), used to convert the certified
	// energy-norm bound into an output-error bound.
	h := 1.0 / float64(dim+1)
	lNorm := h * math.Sqrt(float64(dim))

	probes := parameter.NewRandomSampling(space, 25, 99)
	const slack = 1e-3

	for i := 0; i < probes.Size(); i++ {
		mu := probes.At(i)

		uN, err := online.SolveLinear(truth.BetaA(mu), truth.BetaF(mu))
		require.NoError(t, err)
		reducedOutput := online.Output(truth.BetaL(mu), truth.BetaA(mu), uN, nil)

		truthEl, err := truth.Solve(context.Background(), mu)
		require.NoError(t, err)
		truthOutput, err := truth.OutputValue(mu, truthEl)
		require.NoError(t, err)

		normSq := db.Residual.SteadyNormSquared(truth.BetaF(mu), truth.BetaA(mu), uN)
		alphaLB, err := truth.CoercivityLowerBound(mu)
		require.NoError(t, err)

		delta, err := online.Bound(crb.BoundCertified, normSq, alphaLB, reducedOutput)
		require.NoError(t, err)

		trueError := math.Abs(truthOutput - reducedOutput)
		require.LessOrEqual(t, trueError, delta*lNorm+slack,
			"certified bound violated at mu=%s: |true error|=%.3e > delta*||L||=%.3e", mu.String(), trueError, delta*lNorm)
	}
}
