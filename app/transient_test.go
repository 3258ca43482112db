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
	"gonum.org/v1/gonum/mat"
)

// newTransientDatabase mirrors newEmptyDatabase but allocates a mass
// operator table, the trigger GreedyService.enrichPrimal uses to switch
// from a single steady snapshot to a POD-compressed trajectory
// (spec.md §4.10).
func newTransientDatabase(truth *crbtest.HeatModel) *crb.Database {
	mMaxA := collectCounts(truth.QA(), truth.MMaxA)
	mMaxF := collectCounts(truth.QF(), truth.MMaxF)
	mMaxM := collectCounts(truth.QM(), truth.MMaxM)
	mMaxL := collectCounts(truth.QL(), truth.MMaxL)
	ops := &crb.OperatorSet{
		A: crb.NewMatrixTable(mMaxA),
		M: crb.NewMatrixTable(mMaxM),
		F: crb.NewVectorTable(mMaxF),
		L: crb.NewVectorTable(mMaxL),
	}
	return crb.NewDatabase(ops, mMaxF, mMaxA, mMaxM, false, false, mMaxL)
}

// TestTransientGreedyPopulatesMassResidualTables checks that running the
// greedy loop against a transient truth model enriches the basis via POD
// (rather than a bare steady snapshot) and that the resulting residual
// tables carry the mass-coupling terms needed by TransientNormSquared
// (spec.md §4.7, §4.10).
func TestTransientGreedyPopulatesMassResidualTables(t *testing.T) {
	truth := crbtest.NewTransientHeatModel(40)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 10, 8)
	cfg := &config.GreedyConfig{
		DimensionMax: 6, Tolerance: 1e-9, EmpiricalFactor: 1.0,
		PODModeCount: 3, TimeStep: 0.05, FinalTime: 0.2,
	}

	db := newTransientDatabase(truth)
	residual := NewResidualService(truth,
		collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), collectCounts(truth.QM(), truth.MMaxM))
	greedy := NewGreedyService(truth, residual, nil, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))

	require.Greater(t, db.Dimension(), 0)
	require.True(t, db.Residual.IsTransient())

	for step, appended := range db.ModeCountMap {
		require.GreaterOrEqual(t, appended, 1, "greedy step %d should append at least one POD mode", step)
	}

	n := db.Dimension()
	mu := parameter.New([]float64{1.5, 0.1})
	uCur := mat.NewVecDense(n, nil)
	uPrev := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		uCur.SetVec(i, 1.0/float64(i+1))
		uPrev.SetVec(i, 0.5/float64(i+1))
	}
	normSq := db.Residual.TransientNormSquared(truth.BetaF(mu), truth.BetaA(mu), truth.BetaM(mu), uCur, uPrev, cfg.TimeStep)
	require.False(t, math.IsNaN(normSq))
	require.False(t, math.IsInf(normSq, 0))
	require.GreaterOrEqual(t, normSq, 0.0)
}

// TestSolveTransientPrimalMarchesWithoutError exercises the BDF1 time
// march against a reduced basis built from a transient truth model, the
// online path that assembles the mass matrix from betaM rather than
// betaA (spec.md §4.10).
func TestSolveTransientPrimalMarchesWithoutError(t *testing.T) {
	truth := crbtest.NewTransientHeatModel(40)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 10, 12)
	cfg := &config.GreedyConfig{
		DimensionMax: 5, Tolerance: 1e-9, EmpiricalFactor: 1.0,
		PODModeCount: 3, TimeStep: 0.05, FinalTime: 0.2,
	}

	db := newTransientDatabase(truth)
	residual := NewResidualService(truth,
		collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), collectCounts(truth.QM(), truth.MMaxM))
	greedy := NewGreedyService(truth, residual, nil, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))

	n := db.Dimension()
	require.Greater(t, n, 0)
	online := NewOnlineService(db, residual, nil, &config.OnlineConfig{})

	mu := parameter.New([]float64{2.0, 0.08})
	u0 := mat.NewVecDense(n, nil)

	traj, err := online.SolveTransientPrimal(mu, truth.BetaA(mu), truth.BetaM(mu), truth.BetaF(mu), u0, 0.05, 0.2, 1)
	require.NoError(t, err)
	require.Greater(t, len(traj), 1)
	for _, step := range traj {
		require.Equal(t, n, step.Len())
		for i := 0; i < n; i++ {
			require.False(t, math.IsNaN(step.AtVec(i)))
		}
	}
}
