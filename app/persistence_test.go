package app

import (
	"testing"

	"gocrb/adapters/persistence"
	"gocrb/domain/parameter"
	"gocrb/internal/config"
	"gocrb/internal/crbtest"

	"github.com/stretchr/testify/require"
)

// TestArchiveRoundTripAnswersOnlineQueryIdentically saves a completed
// Database, reloads it through a fresh FileStore, and checks that an
// online query against the reloaded archive matches a query against
// the original in memory -- the self-containment invariant of spec.md
// §3/§9: a reloaded archive must answer online queries without the
// truth model, and must answer them identically.
func TestArchiveRoundTripAnswersOnlineQueryIdentically(t *testing.T) {
	truth := crbtest.NewHeatModel(45)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 25, 17)
	cfg := &config.GreedyConfig{DimensionMax: 5, Tolerance: 1e-6, EmpiricalFactor: 1.0}

	db := runGreedyToCompletion(t, truth, cfg, train)
	n := db.Dimension()
	require.Greater(t, n, 0)

	store, err := persistence.NewFileStore(t.TempDir(), crbtest.VectorCodec{})
	require.NoError(t, err)
	require.NoError(t, store.Save("heat-demo", db))

	reloaded, err := store.Load("heat-demo")
	require.NoError(t, err)
	require.Equal(t, n, reloaded.Dimension())

	probe := parameter.New([]float64{2.1, 0.4})

	original := NewOnlineService(db, nil, nil, nil)
	uNOrig, err := original.SolveLinear(truth.BetaA(probe), truth.BetaF(probe))
	require.NoError(t, err)
	outputOrig := original.Output(truth.BetaL(probe), truth.BetaA(probe), uNOrig, nil)
	normSqOrig := db.Residual.SteadyNormSquared(truth.BetaF(probe), truth.BetaA(probe), uNOrig)

	fromArchive := NewOnlineService(reloaded, nil, nil, nil)
	uNReload, err := fromArchive.SolveLinear(truth.BetaA(probe), truth.BetaF(probe))
	require.NoError(t, err)
	outputReload := fromArchive.Output(truth.BetaL(probe), truth.BetaA(probe), uNReload, nil)
	normSqReload := reloaded.Residual.SteadyNormSquared(truth.BetaF(probe), truth.BetaA(probe), uNReload)

	require.InDelta(t, outputOrig, outputReload, 1e-10)
	require.InDelta(t, normSqOrig, normSqReload, 1e-10)

	for i := 0; i < n; i++ {
		require.InDelta(t, uNOrig.AtVec(i), uNReload.AtVec(i), 1e-10)
	}

	require.Equal(t, len(db.Convergence.Points()), len(reloaded.Convergence.Points()))
	for i, p := range db.Convergence.Points() {
		require.Equal(t, p.N, reloaded.Convergence.Points()[i].N)
		require.InDelta(t, p.DeltaMax, reloaded.Convergence.Points()[i].DeltaMax, 1e-12)
	}
}
