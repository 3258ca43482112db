package app

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"gocrb/adapters/pod"
	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal"
	"gocrb/internal/config"
	"gocrb/internal/errors"
	"gocrb/internal/linalg"
	"gocrb/ports"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// GreedyService runs the offline certified greedy loop of spec.md §4.5:
// repeatedly solve the truth problem at the training-sample parameter
// with the largest estimated error, enrich the basis with the snapshot,
// and update every derived cache, until the tolerance or dimension cap
// is reached.
//
// When the Database carries a dual basis (spec.md §4.5 step 1, §4.6),
// every iteration also solves the adjoint snapshot at the same mu and
// grows the dual basis/operators/residual tables in lockstep with the
// primal ones, so the dual and primal reduced spaces always share a
// dimension. When the truth model exposes a mass operator (a transient
// regime), the snapshot source switches from a single steady solve to a
// full trajectory compressed by POD (spec.md §4.10).
type GreedyService struct {
	truth        ports.TruthModel
	residual     *ResidualService
	dualResidual *ResidualService
	scm          ports.SCMProvider
	pod          ports.PODProvider
	ortho        *linalg.Orthonormalizer
	dualOrtho    *linalg.Orthonormalizer
	projector    *AffineProjector
	cfg          *config.GreedyConfig
	logger       *internal.Logger
}

// NewGreedyService builds a GreedyService over a truth model and its
// primal (and optional dual) residual estimators. dualResidual may be
// nil when the run has no output functional / no dual basis.
func NewGreedyService(truth ports.TruthModel, residual, dualResidual *ResidualService, cfg *config.GreedyConfig, logger *internal.Logger) *GreedyService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &GreedyService{
		truth: truth, residual: residual, dualResidual: dualResidual,
		pod:       pod.NewSnapshotPOD(truth),
		ortho:     linalg.NewOrthonormalizer(truth),
		dualOrtho: linalg.NewOrthonormalizer(truth),
		projector: NewAffineProjector(truth),
		cfg:       cfg, logger: logger,
	}
}

// WithSCM attaches the Successive Constraint Method collaborator used
// when cfg.ErrorMode is "residual+SCM" (spec.md §4.8). Without it, that
// mode falls back to the truth model's own CoercivityLowerBound.
func (g *GreedyService) WithSCM(scm ports.SCMProvider) *GreedyService {
	g.scm = scm
	return g
}

// estimate is one candidate's error estimate, returned from the
// parallel sweep over the training sampling.
type estimate struct {
	index int
	mu    parameter.Parameter
	delta float64
	err   error
}

// sweep evaluates the current estimator at every parameter in train,
// fanned out over GOMAXPROCS workers (spec.md §5: "per-mu error
// estimation sweep over Xi is parallelized, bounded by GOMAXPROCS").
func (g *GreedyService) sweep(ctx context.Context, db *crb.Database, train *parameter.Sampling) ([]estimate, error) {
	results := make([]estimate, train.Size())
	g.logger.Debug("greedy: sweeping %d training samples at N=%d", train.Size(), db.Dimension())

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < train.Size(); i++ {
		i := i
		mu := train.At(i)
		eg.Go(func() error {
			delta, err := g.estimateAt(egCtx, db, mu)
			if err != nil {
				if errors.HasCode(err, errors.CodeTruthModelFailure) || errors.HasCode(err, errors.CodeNonFiniteEstimator) {
					g.logger.Warn("greedy: estimator failed at mu=%s: %v (skipping)", mu.String(), err)
					results[i] = estimate{index: i, mu: mu, delta: -1}
					return nil
				}
				return err
			}
			results[i] = estimate{index: i, mu: mu, delta: delta}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// estimateAt evaluates the greedy selection criterion at mu, dispatching
// on cfg.ErrorMode (spec.md §4.5, §4.8):
//
//   - "residual": the certified dual-norm residual estimator Delta_N(mu).
//   - "residual+SCM": the same estimator, but alpha_LB(mu) comes from the
//     SCM collaborator instead of the truth model's own bound.
//   - "empirical": |s_N(mu) - s_{N-1}(mu)|, the uncertified output-based
//     driver that needs no residual tables at all.
//   - "none": a constant so every candidate ties; Run selects the next
//     mu by round-robin instead of by estimator value.
func (g *GreedyService) estimateAt(ctx context.Context, db *crb.Database, mu parameter.Parameter) (float64, error) {
	n := db.Dimension()
	if n == 0 {
		return 1, nil // every sample is equally "worst" before any basis exists
	}

	switch g.cfg.ErrorMode {
	case "none":
		return 1, nil
	case "empirical":
		return g.empiricalEstimateAt(db, mu, n)
	default:
		return g.residualEstimateAt(ctx, db, mu, n)
	}
}

func (g *GreedyService) residualEstimateAt(ctx context.Context, db *crb.Database, mu parameter.Parameter, n int) (float64, error) {
	betaA := g.truth.BetaA(mu)
	betaF := g.truth.BetaF(mu)

	uN, err := g.solveReduced(db, betaA, betaF, n)
	if err != nil {
		return 0, err
	}

	normSq := g.residual.tables.SteadyNormSquared(betaF, betaA, uN)

	var alphaLB float64
	if g.cfg.ErrorMode == "residual+SCM" && g.scm != nil {
		alphaLB, err = g.scm.LowerBound(ctx, mu)
	} else {
		alphaLB, err = g.truth.CoercivityLowerBound(mu)
	}
	if err != nil {
		return 0, errors.TruthModelFailure(fmt.Errorf("coercivity lower bound at mu=%s: %w", mu.String(), err))
	}
	if alphaLB <= 0 {
		return 0, errors.InternalError(fmt.Sprintf("greedy: non-positive coercivity lower bound at mu=%s", mu.String()))
	}
	delta := sqrtNonNeg(normSq) / alphaLB
	if isNonFinite(delta) {
		return 0, errors.NonFiniteEstimator(mu, [6]float64{normSq, alphaLB, 0, 0, 0, 0})
	}
	return delta, nil
}

func (g *GreedyService) empiricalEstimateAt(db *crb.Database, mu parameter.Parameter, n int) (float64, error) {
	betaA := g.truth.BetaA(mu)
	betaF := g.truth.BetaF(mu)
	betaL := g.truth.BetaL(mu)

	uN, err := g.solveReduced(db, betaA, betaF, n)
	if err != nil {
		return 0, err
	}
	sN := mat.Dot(crb.AssembleVector(db.Operators.L, betaL, n), uN)

	if n == 1 {
		return sqrtNonNeg(sN * sN), nil
	}
	uPrev, err := g.solveReduced(db, betaA, betaF, n-1)
	if err != nil {
		return 0, err
	}
	sPrev := mat.Dot(crb.AssembleVector(db.Operators.L, betaL, n-1), uPrev)

	delta := math.Abs(sN - sPrev)
	if isNonFinite(delta) {
		return 0, errors.NonFiniteEstimator(mu, [6]float64{sN, sPrev, 0, 0, 0, 0})
	}
	return delta, nil
}

func (g *GreedyService) solveReduced(db *crb.Database, betaA, betaF [][]float64, n int) (*mat.VecDense, error) {
	aN := crb.AssembleMatrix(db.Operators.A, betaA, n)
	fN := crb.AssembleVector(db.Operators.F, betaF, n)
	uN := mat.NewVecDense(n, nil)
	if err := uN.SolveVec(aN, fN); err != nil {
		return nil, errors.InternalError(fmt.Sprintf("greedy: reduced solve failed at N=%d: %v", n, err))
	}
	return uN, nil
}

// Run executes the greedy loop until Delta_max <= factor*tolerance or
// dimension-max is reached, returning the completed Database.
func (g *GreedyService) Run(ctx context.Context, db *crb.Database, train *parameter.Sampling) error {
	db.Residual = g.residual.Tables()
	if err := g.residual.PrecomputeRieszF(ctx); err != nil {
		return err
	}
	hasDual := db.DualBasis != nil
	if hasDual {
		db.DualResidual = g.dualResidual.Tables()
		if err := g.dualResidual.PrecomputeRieszF(ctx); err != nil {
			return err
		}
	}
	transient := db.Operators.M != nil

	mu := train.At(0)
	for db.Dimension() < g.cfg.DimensionMax {
		step := db.Dimension()
		appended, err := g.enrichPrimal(ctx, db, mu, transient)
		if err != nil {
			return err
		}
		db.ModeCountMap[step] = appended

		if err := g.projector.Update(db.Operators, db.Basis); err != nil {
			return err
		}
		if db.Variance != nil {
			if err := g.projector.UpdateVariance(db.Operators, db.Variance, db.Basis); err != nil {
				return err
			}
		}
		var massBasis *crb.Basis
		if transient {
			massBasis = db.Basis
		}
		if err := g.residual.Update(ctx, db.Basis, massBasis); err != nil {
			return err
		}

		var deltaDu float64
		if hasDual {
			deltaDu, err = g.enrichDual(ctx, db, mu)
			if err != nil {
				return err
			}
		}

		var deltaMax float64
		var bestMu parameter.Parameter
		var bestIdx int
		if g.cfg.ErrorMode == "none" {
			nextIdx := db.Dimension() % train.Size()
			bestMu = train.At(nextIdx)
			bestIdx = nextIdx
		} else {
			results, err := g.sweep(ctx, db, train)
			if err != nil {
				return err
			}
			best := results[0]
			for _, r := range results[1:] {
				if r.delta > best.delta {
					best = r
				}
			}
			deltaMax = best.delta
			bestMu = best.mu
			bestIdx = best.index
		}

		db.Convergence.Record(crb.ConvergencePoint{N: db.Dimension(), DeltaMax: deltaMax, DeltaDu: deltaDu, MaxMu: bestIdx})
		db.RecordBestMu(bestMu)
		g.logger.Info("greedy: N=%d Delta_max=%.3e DeltaDu=%.3e at mu=%s", db.Dimension(), deltaMax, deltaDu, bestMu.String())

		if g.scm != nil {
			if err := g.scm.Enrich(ctx, mu); err != nil {
				return err
			}
		}

		if g.cfg.ErrorMode != "none" && deltaMax <= g.cfg.EmpiricalFactor*g.cfg.Tolerance {
			return nil
		}
		mu = bestMu
	}
	return nil
}

// enrichPrimal appends one steady snapshot, or a POD-compressed
// transient trajectory, at mu, and orthonormalizes the appended modes
// in place. It returns the number of modes appended.
func (g *GreedyService) enrichPrimal(ctx context.Context, db *crb.Database, mu parameter.Parameter, transient bool) (int, error) {
	if !transient {
		element, err := g.truth.Solve(ctx, mu)
		if err != nil {
			return 0, errors.TruthModelFailure(fmt.Errorf("truth solve at mu=%s: %w", mu.String(), err))
		}
		db.Basis.Append(element, mu)
		if err := g.ortho.RunNew(db.Basis, 1); err != nil {
			return 0, err
		}
		return 1, nil
	}

	traj, err := g.truth.SolveTransient(ctx, mu, g.cfg.TimeStep, g.cfg.FinalTime)
	if err != nil {
		return 0, errors.TruthModelFailure(fmt.Errorf("transient truth solve at mu=%s: %w", mu.String(), err))
	}
	modeCount := g.cfg.PODModeCount
	if modeCount > len(traj) {
		modeCount = len(traj)
	}
	modes, energy, err := g.pod.Compress(traj, modeCount)
	if err != nil {
		return 0, errors.TruthModelFailure(fmt.Errorf("pod compression at mu=%s: %w", mu.String(), err))
	}
	g.logger.Debug("greedy: transient enrichment at mu=%s kept %d/%d modes (%.4g energy)", mu.String(), len(modes), len(traj), energy)

	db.Basis.AppendAll(modes, mu)
	if err := g.ortho.RunNew(db.Basis, len(modes)); err != nil {
		return 0, err
	}
	return len(modes), nil
}

// enrichDual solves the adjoint snapshot at mu, appends it to the dual
// basis, and grows the dual operator/residual tables (spec.md §4.5 step
// 1, §4.6). It returns the dual residual estimator value at mu, used
// only for reporting: the dual basis always grows at the same mu chosen
// by the primal criterion, so the dual problem contributes no selection
// decision of its own in this engine.
func (g *GreedyService) enrichDual(ctx context.Context, db *crb.Database, mu parameter.Parameter) (float64, error) {
	zDu, err := g.truth.SolveDual(ctx, mu, g.cfg.OutputIndex)
	if err != nil {
		return 0, errors.TruthModelFailure(fmt.Errorf("dual truth solve at mu=%s: %w", mu.String(), err))
	}
	db.DualBasis.Append(zDu, mu)
	if err := g.dualOrtho.RunNew(db.DualBasis, 1); err != nil {
		return 0, err
	}
	if err := g.projector.UpdateDual(db.Operators, db.Basis, db.DualBasis); err != nil {
		return 0, err
	}
	if err := g.dualResidual.Update(ctx, db.DualBasis, nil); err != nil {
		return 0, err
	}

	nDu := db.DualBasis.Size()
	betaA := g.truth.BetaA(mu)
	betaL := g.truth.BetaL(mu)
	aDuN := crb.AssembleMatrix(db.Operators.ADu, betaA, nDu)
	fDuN := crb.AssembleVector(db.Operators.FDu, betaL, nDu)

	uDu := mat.NewVecDense(nDu, nil)
	negFDu := mat.NewVecDense(nDu, nil)
	negFDu.ScaleVec(-1, fDuN)
	if err := uDu.SolveVec(aDuN, negFDu); err != nil {
		return 0, errors.InternalError(fmt.Sprintf("greedy: reduced dual solve failed at N=%d: %v", nDu, err))
	}
	normSq := g.dualResidual.tables.SteadyNormSquared(betaL, betaA, uDu)
	alphaLB, err := g.truth.CoercivityLowerBound(mu)
	if err != nil || alphaLB <= 0 {
		return sqrtNonNeg(normSq), nil
	}
	return sqrtNonNeg(normSq) / alphaLB, nil
}
