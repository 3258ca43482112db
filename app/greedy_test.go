package app

import (
	"context"
	"testing"

	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal/config"
	"gocrb/internal/crbtest"

	"github.com/stretchr/testify/require"
)

func newTestSpace(t *testing.T) *parameter.Space {
	t.Helper()
	sp, err := parameter.NewSpace([]float64{0.1, 0.01}, []float64{10, 1})
	require.NoError(t, err)
	return sp
}

func collectCounts(q int, mMax func(int) int) []int {
	out := make([]int, q)
	for i := range out {
		out[i] = mMax(i)
	}
	return out
}

func newEmptyDatabase(truth *crbtest.HeatModel) *crb.Database {
	mMaxA := collectCounts(truth.QA(), truth.MMaxA)
	mMaxF := collectCounts(truth.QF(), truth.MMaxF)
	mMaxL := collectCounts(truth.QL(), truth.MMaxL)
	ops := &crb.OperatorSet{
		A: crb.NewMatrixTable(mMaxA),
		F: crb.NewVectorTable(mMaxF),
		L: crb.NewVectorTable(mMaxL),
	}
	return crb.NewDatabase(ops, mMaxF, mMaxA, nil, false, false, mMaxL)
}

func runGreedyToCompletion(t *testing.T, truth *crbtest.HeatModel, cfg *config.GreedyConfig, train *parameter.Sampling) *crb.Database {
	t.Helper()
	db := newEmptyDatabase(truth)
	residual := NewResidualService(truth, collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), nil)
	greedy := NewGreedyService(truth, residual, nil, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))
	return db
}

func TestGreedyRunMonotoneEnrichment(t *testing.T) {
	truth := crbtest.NewHeatModel(60)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 40, 11)
	cfg := &config.GreedyConfig{DimensionMax: 10, Tolerance: 1e-8, EmpiricalFactor: 1.0}

	db := runGreedyToCompletion(t, truth, cfg, train)
	points := db.Convergence.Points()
	require.GreaterOrEqual(t, len(points), 2)
	for i := 1; i < len(points); i++ {
		require.LessOrEqual(t, points[i].DeltaMax, points[i-1].DeltaMax+1e-9,
			"Delta_max must not increase as N grows (point %d: %.3e -> %.3e)", i, points[i-1].DeltaMax, points[i].DeltaMax)
	}
}

func TestGreedyReproducesTruthOutputAtSelectedMu(t *testing.T) {
	truth := crbtest.NewHeatModel(60)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 40, 11)
	cfg := &config.GreedyConfig{DimensionMax: 12, Tolerance: 1e-9, EmpiricalFactor: 1.0}

	db := runGreedyToCompletion(t, truth, cfg, train)
	n := db.Dimension()
	require.Greater(t, n, 0)

	online := NewOnlineService(db, nil, nil, nil)
	for i := 0; i < n; i++ {
		mu := db.Basis.ParameterAt(i)
		uN, err := online.SolveLinear(truth.BetaA(mu), truth.BetaF(mu))
		require.NoError(t, err)
		reducedOutput := online.Output(truth.BetaL(mu), truth.BetaA(mu), uN, nil)

		truthEl, err := truth.Solve(context.Background(), mu)
		require.NoError(t, err)
		truthOutput, err := truth.OutputValue(mu, truthEl)
		require.NoError(t, err)

		require.InDelta(t, truthOutput, reducedOutput, 1e-6,
			"reduced output at mu=%s (the parameter that produced basis vector %d) must reproduce the truth output", mu.String(), i)
	}
}
