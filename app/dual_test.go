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

// newDualDatabase mirrors newEmptyDatabase but allocates the dual-basis,
// dual-operator, and dual-residual state of spec.md §4.5 step 1, §4.6 --
// the fixture the dual pipeline tests build on.
func newDualDatabase(truth *crbtest.HeatModel) *crb.Database {
	mMaxA := collectCounts(truth.QA(), truth.MMaxA)
	mMaxF := collectCounts(truth.QF(), truth.MMaxF)
	mMaxL := collectCounts(truth.QL(), truth.MMaxL)
	ops := &crb.OperatorSet{
		A: crb.NewMatrixTable(mMaxA),
		F: crb.NewVectorTable(mMaxF),
		L: crb.NewVectorTable(mMaxL),
	}
	return crb.NewDatabase(ops, mMaxF, mMaxA, nil, true, false, mMaxL)
}

// TestGreedyRunBuildsDualBasisInLockstep checks that a dual-enabled
// Database comes out of GreedyService.Run with a dual basis, dual
// residual tables, and the ADu/APrDu/FDu couplings all populated at the
// same dimension as the primal basis (spec.md §4.5 step 1, §4.6).
func TestGreedyRunBuildsDualBasisInLockstep(t *testing.T) {
	truth := crbtest.NewHeatModel(50)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 30, 3)
	cfg := &config.GreedyConfig{DimensionMax: 6, Tolerance: 1e-9, EmpiricalFactor: 1.0, ErrorMode: "residual", OutputIndex: 0}

	db := newDualDatabase(truth)
	residual := NewResidualService(truth, collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), nil)
	dualResidual := NewDualResidualService(truth, collectCounts(truth.QL(), truth.MMaxL), collectCounts(truth.QA(), truth.MMaxA))
	greedy := NewGreedyService(truth, residual, dualResidual, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))

	require.NotNil(t, db.DualBasis)
	require.Equal(t, db.Dimension(), db.DualBasis.Size(), "primal and dual bases must grow in lockstep")
	require.NotNil(t, db.DualResidual)
	require.NotNil(t, db.Operators.ADu)
	require.NotNil(t, db.Operators.APrDu)
	require.NotNil(t, db.Operators.FDu)

	n := db.Dimension()
	aDu := crb.AssembleMatrix(db.Operators.ADu, truth.BetaA(db.BestMu), n)
	require.Equal(t, n, aDu.RawMatrix().Rows)
}

// TestOutputCorrectionIsNoWorseThanUncorrectedEstimate checks that the
// adjoint output correction of spec.md §4.6 is not a no-op: it changes
// the reported output, and the corrected value lies no farther (up to a
// 1e-6 slack) from the truth output than the uncorrected reduced output
// at a probe mu away from the training set.
func TestOutputCorrectionIsNoWorseThanUncorrectedEstimate(t *testing.T) {
	truth := crbtest.NewHeatModel(50)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 30, 5)
	cfg := &config.GreedyConfig{DimensionMax: 8, Tolerance: 1e-9, EmpiricalFactor: 1.0, ErrorMode: "residual", OutputIndex: 0}

	db := newDualDatabase(truth)
	residual := NewResidualService(truth, collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), nil)
	dualResidual := NewDualResidualService(truth, collectCounts(truth.QL(), truth.MMaxL), collectCounts(truth.QA(), truth.MMaxA))
	greedy := NewGreedyService(truth, residual, dualResidual, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))

	n := db.Dimension()
	nDu := db.DualBasis.Size()
	online := NewOnlineService(db, residual, dualResidual, nil)

	probe := parameter.New([]float64{3.3, 0.07})
	uN, err := online.SolveLinear(truth.BetaA(probe), truth.BetaF(probe))
	require.NoError(t, err)

	aDuN := crb.AssembleMatrix(db.Operators.ADu, truth.BetaA(probe), nDu)
	fDuN := crb.AssembleVector(db.Operators.FDu, truth.BetaL(probe), nDu)
	negFDu := mat.NewVecDense(nDu, nil)
	negFDu.ScaleVec(-1, fDuN)
	uDu := mat.NewVecDense(nDu, nil)
	require.NoError(t, uDu.SolveVec(aDuN, negFDu))

	plainOutput := online.Output(truth.BetaL(probe), truth.BetaA(probe), uN, nil)
	correctedOutput := online.Output(truth.BetaL(probe), truth.BetaA(probe), uN, uDu)
	require.NotEqual(t, plainOutput, correctedOutput, "dualUN must actually influence the returned output")

	truthEl, err := truth.Solve(context.Background(), probe)
	require.NoError(t, err)
	truthOutput, err := truth.OutputValue(probe, truthEl)
	require.NoError(t, err)

	plainErr := math.Abs(truthOutput - plainOutput)
	correctedErr := math.Abs(truthOutput - correctedOutput)
	require.Less(t, correctedErr, plainErr+1e-6,
		"output correction should not be worse than the uncorrected reduced output (plainErr=%.3e correctedErr=%.3e)", plainErr, correctedErr)
	require.Equal(t, n, uN.Len())
}

// TestSolveFixedPointAndNewtonMatchLinearSolveOnLinearProblem checks that
// both nonlinear steady solvers converge to the same reduced coefficients
// as the plain linear solve when the supplied NonlinearBeta ignores its
// argument, since the reduced problem is then exactly linear
// (spec.md §4.6 nonlinear steady solve).
func TestSolveFixedPointAndNewtonMatchLinearSolveOnLinearProblem(t *testing.T) {
	truth := crbtest.NewHeatModel(45)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 25, 9)
	cfg := &config.GreedyConfig{DimensionMax: 5, Tolerance: 1e-9, EmpiricalFactor: 1.0}
	db := runGreedyToCompletion(t, truth, cfg, train)

	opts := &config.OnlineConfig{
		FixedPointTolerance: 1e-10, FixedPointMaxIter: 20,
		NewtonTolerance: 1e-10, NewtonMaxIter: 20,
	}
	online := NewOnlineService(db, nil, nil, opts)

	mu := parameter.New([]float64{2.0, 0.2})
	linear, err := online.SolveLinear(truth.BetaA(mu), truth.BetaF(mu))
	require.NoError(t, err)

	constBeta := func(*mat.VecDense) (betaA, betaF [][]float64) { return truth.BetaA(mu), truth.BetaF(mu) }

	fp, fpIters, err := online.SolveFixedPoint(mu, constBeta)
	require.NoError(t, err)
	require.LessOrEqual(t, fpIters, 3)
	for i := 0; i < linear.Len(); i++ {
		require.InDelta(t, linear.AtVec(i), fp.AtVec(i), 1e-7)
	}

	n := db.Dimension()
	jacobian := func(*mat.VecDense) *mat.Dense { return crb.AssembleMatrix(db.Operators.A, truth.BetaA(mu), n) }
	newton, newtonIters, err := online.SolveNewton(mu, constBeta, jacobian)
	require.NoError(t, err)
	require.LessOrEqual(t, newtonIters, 3)
	for i := 0; i < linear.Len(); i++ {
		require.InDelta(t, linear.AtVec(i), newton.AtVec(i), 1e-7)
	}
}

// TestConditioningReportsFiniteCondition checks that OnlineService's
// conditioning diagnostic (spec.md §4.9, §11) returns a finite number at
// least 1 for a well-posed reduced system, and does not fall back to any
// hand-rolled estimate when internal/linalg.ConditionNumber is available.
func TestConditioningReportsFiniteCondition(t *testing.T) {
	truth := crbtest.NewHeatModel(45)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 25, 2)
	cfg := &config.GreedyConfig{DimensionMax: 6, Tolerance: 1e-9, EmpiricalFactor: 1.0}
	db := runGreedyToCompletion(t, truth, cfg, train)

	online := NewOnlineService(db, nil, nil, nil)
	mu := parameter.New([]float64{5.0, 0.05})
	cond, err := online.Conditioning(truth.BetaA(mu))
	require.NoError(t, err)
	require.False(t, math.IsNaN(cond))
	require.False(t, math.IsInf(cond, 0))
	require.GreaterOrEqual(t, cond, 1.0)
}

// TestRunDiagnosticsReportsNearZeroGapsOnACleanBasis checks that
// DriverService.RunDiagnostics reports near-zero orthonormality deviation
// and residual-table consistency gap on a basis that GreedyService just
// built, and that MonotoneEnrichment holds (spec.md §11, "check.residual").
func TestRunDiagnosticsReportsNearZeroGapsOnACleanBasis(t *testing.T) {
	truth := crbtest.NewHeatModel(45)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 25, 6)
	cfg := &config.GreedyConfig{DimensionMax: 6, Tolerance: 1e-9, EmpiricalFactor: 1.0}

	db := newEmptyDatabase(truth)
	residual := NewResidualService(truth, collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), nil)
	greedy := NewGreedyService(truth, residual, nil, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))

	driver := NewDriverService(truth, nil, &config.Options{}, nil)
	report, err := driver.RunDiagnostics(db, residual)
	require.NoError(t, err)
	require.Less(t, report.OrthonormalityMaxDeviation, 1e-8)
	require.Less(t, report.ResidualConsistencyMaxGap, 1e-6)
	require.True(t, report.MonotoneEnrichment)
}

// TestErrorModeNoneSelectsByRoundRobin checks that ErrorMode "none"
// bypasses the residual estimator entirely (every DeltaMax recorded is
// zero) and advances through the training sampling by round robin rather
// than by estimator value (spec.md §4.5, §9 error-mode dispatch).
func TestErrorModeNoneSelectsByRoundRobin(t *testing.T) {
	truth := crbtest.NewHeatModel(30)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 6, 1)
	cfg := &config.GreedyConfig{DimensionMax: 4, Tolerance: 1e-9, EmpiricalFactor: 1.0, ErrorMode: "none"}

	db := newEmptyDatabase(truth)
	residual := NewResidualService(truth, collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), nil)
	greedy := NewGreedyService(truth, residual, nil, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))

	require.Equal(t, cfg.DimensionMax, db.Dimension())
	points := db.Convergence.Points()
	require.Len(t, points, cfg.DimensionMax)
	for i, p := range points {
		require.Equal(t, 0.0, p.DeltaMax)
		require.Equal(t, (i+1)%train.Size(), p.MaxMu)
	}
}

// TestErrorModeEmpiricalProducesFiniteOutputBasedEstimates checks that
// ErrorMode "empirical" runs the greedy loop to completion using the
// |s_N - s_{N-1}| driver instead of the residual estimator, and that the
// recorded DeltaMax values are finite and non-negative throughout
// (spec.md §4.5, §9).
func TestErrorModeEmpiricalProducesFiniteOutputBasedEstimates(t *testing.T) {
	truth := crbtest.NewHeatModel(40)
	space := newTestSpace(t)
	train := parameter.NewRandomSampling(space, 20, 4)
	cfg := &config.GreedyConfig{DimensionMax: 8, Tolerance: 1e-6, EmpiricalFactor: 1.0, ErrorMode: "empirical"}

	db := newEmptyDatabase(truth)
	residual := NewResidualService(truth, collectCounts(truth.QF(), truth.MMaxF), collectCounts(truth.QA(), truth.MMaxA), nil)
	greedy := NewGreedyService(truth, residual, nil, cfg, nil)
	require.NoError(t, greedy.Run(context.Background(), db, train))

	require.Greater(t, db.Dimension(), 0)
	points := db.Convergence.Points()
	require.NotEmpty(t, points)
	for _, p := range points {
		require.False(t, math.IsNaN(p.DeltaMax))
		require.False(t, math.IsInf(p.DeltaMax, 0))
		require.GreaterOrEqual(t, p.DeltaMax, 0.0)
	}
}
