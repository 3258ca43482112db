package app

import (
	"fmt"
	"math"
	"time"

	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal/config"
	"gocrb/internal/errors"
	"gocrb/internal/linalg"

	"gonum.org/v1/gonum/mat"
)

// NonlinearBeta recomputes the affine coefficients as a function of the
// current reduced iterate, for problems whose operator depends on the
// solution itself. Steady linear problems never need this; fixed-point
// and Newton steady solves take it as their update rule (spec.md §4.6).
type NonlinearBeta func(uN *mat.VecDense) (betaA, betaF [][]float64)

// OnlineResult is the outcome of one online reduced solve: the reduced
// coefficients, the corrected output, and (for certified solves) the
// estimator value used to bound it.
type OnlineResult struct {
	UN          *mat.VecDense
	Output      float64
	Bound       float64
	BoundKind   crb.BoundKind
	Conditioning float64
	Iterations  int
}

// OnlineService answers certified queries against a completed (or
// in-progress) reduced basis: linear, fixed-point, and Newton steady
// solves, BDF transient solves, output correction via the dual problem,
// conditioning diagnostics, and timing benchmarks (spec.md §4.6, §4.9).
type OnlineService struct {
	db       *crb.Database
	residual *ResidualService
	dualResidual *ResidualService
	opts     *config.OnlineConfig
}

// NewOnlineService builds an OnlineService over a Database and its
// primal (and optional dual) residual estimators.
func NewOnlineService(db *crb.Database, residual, dualResidual *ResidualService, opts *config.OnlineConfig) *OnlineService {
	return &OnlineService{db: db, residual: residual, dualResidual: dualResidual, opts: opts}
}

// SolveLinear solves the reduced linear system A_N(mu) u_N = F_N(mu) and
// returns u_N; it evaluates neither the output functional nor any
// estimator (spec.md §4.6).
func (s *OnlineService) SolveLinear(betaA, betaF [][]float64) (*mat.VecDense, error) {
	n := s.db.Dimension()
	if n == 0 {
		return nil, errors.InternalError("online solve: reduced basis is empty")
	}
	aN := crb.AssembleMatrix(s.db.Operators.A, betaA, n)
	fN := crb.AssembleVector(s.db.Operators.F, betaF, n)

	uN := mat.NewVecDense(n, nil)
	if err := uN.SolveVec(aN, fN); err != nil {
		return nil, errors.InternalError(fmt.Sprintf("online solve: reduced system is singular at N=%d: %v", n, err))
	}
	return uN, nil
}

// SolveFixedPoint iterates u_N^{k+1} = A_N(beta(u_N^k))^{-1} F_N(beta(u_N^k))
// until the update is below tol or maxIter is exceeded (spec.md §4.6
// nonlinear steady solve, fixed-point branch).
func (s *OnlineService) SolveFixedPoint(mu parameter.Parameter, beta NonlinearBeta) (*mat.VecDense, int, error) {
	n := s.db.Dimension()
	uN := mat.NewVecDense(n, nil)

	for it := 0; it < s.opts.FixedPointMaxIter; it++ {
		betaA, betaF := beta(uN)
		next, err := s.SolveLinear(betaA, betaF)
		if err != nil {
			return nil, it, err
		}
		diff := mat.NewVecDense(n, nil)
		diff.SubVec(next, uN)
		delta := mat.Norm(diff, 2)
		uN = next
		if delta <= s.opts.FixedPointTolerance {
			return uN, it + 1, nil
		}
	}
	return nil, s.opts.FixedPointMaxIter, errors.Divergence(mu, "fixed-point", s.opts.FixedPointMaxIter)
}

// SolveNewton runs Newton's method on the reduced residual
// R(u_N) = A_N(beta(u_N)) u_N - F_N(beta(u_N)), using a caller-supplied
// Jacobian (spec.md §4.6 nonlinear steady solve, Newton branch).
func (s *OnlineService) SolveNewton(mu parameter.Parameter, beta NonlinearBeta, jacobian func(uN *mat.VecDense) *mat.Dense) (*mat.VecDense, int, error) {
	n := s.db.Dimension()
	uN := mat.NewVecDense(n, nil)

	for it := 0; it < s.opts.NewtonMaxIter; it++ {
		betaA, betaF := beta(uN)
		aN := crb.AssembleMatrix(s.db.Operators.A, betaA, n)
		fN := crb.AssembleVector(s.db.Operators.F, betaF, n)

		res := mat.NewVecDense(n, nil)
		res.MulVec(aN, uN)
		res.SubVec(res, fN)

		resNorm := mat.Norm(res, 2)
		if resNorm <= s.opts.NewtonTolerance {
			return uN, it, nil
		}

		jac := jacobian(uN)
		step := mat.NewVecDense(n, nil)
		if err := step.SolveVec(jac, res); err != nil {
			return nil, it, errors.InternalError(fmt.Sprintf("newton: singular jacobian at iteration %d: %v", it, err))
		}
		next := mat.NewVecDense(n, nil)
		next.SubVec(uN, step)
		uN = next
	}
	return nil, s.opts.NewtonMaxIter, errors.Divergence(mu, "newton", s.opts.NewtonMaxIter)
}

// SolveTransientPrimal runs a BDF time march of the given order over
// [0, T] with step dt, returning the trajectory of reduced coefficients
// (spec.md §4.10). order must be 1 or 2.
func (s *OnlineService) SolveTransientPrimal(mu parameter.Parameter, betaA, betaM, betaF [][]float64, u0 *mat.VecDense, dt, tFinal float64, order int) ([]*mat.VecDense, error) {
	n := s.db.Dimension()
	if s.db.Operators.M == nil {
		return nil, errors.InternalError("transient solve requested but no mass operator is present")
	}
	mN := crb.AssembleMatrix(s.db.Operators.M, betaM, n)
	aN := crb.AssembleMatrix(s.db.Operators.A, betaA, n)
	fN := crb.AssembleVector(s.db.Operators.F, betaF, n)

	steps := int(math.Ceil(tFinal / dt))
	traj := make([]*mat.VecDense, 0, steps+1)
	traj = append(traj, u0)

	for step := 1; step <= steps; step++ {
		var lhs mat.Dense
		var rhs mat.VecDense

		switch {
		case order == 1 || step == 1:
			// BDF1: (M/dt + A) u^{n+1} = F + M/dt u^n
			lhs.Scale(1.0/dt, mN)
			lhs.Add(&lhs, aN)
			var mu0 mat.VecDense
			mu0.MulVec(mN, traj[step-1])
			mu0.Scale(1.0/dt, &mu0)
			rhs.AddVec(fN, &mu0)
		case order == 2:
			// BDF2: (1.5 M/dt + A) u^{n+1} = F + M/dt (2 u^n - 0.5 u^{n-1})
			lhs.Scale(1.5/dt, mN)
			lhs.Add(&lhs, aN)
			var combo mat.VecDense
			combo.ScaleVec(2.0, traj[step-1])
			var prevHalf mat.VecDense
			prevHalf.ScaleVec(0.5, traj[step-2])
			combo.SubVec(&combo, &prevHalf)
			var mterm mat.VecDense
			mterm.MulVec(mN, &combo)
			mterm.Scale(1.0/dt, &mterm)
			rhs.AddVec(fN, &mterm)
		default:
			return nil, errors.ConfigInvalid(fmt.Sprintf("bdf order %d not supported", order))
		}

		next := mat.NewVecDense(n, nil)
		if err := next.SolveVec(&lhs, &rhs); err != nil {
			return nil, errors.Divergence(mu, fmt.Sprintf("bdf-%d", order), step)
		}
		traj = append(traj, next)
	}
	return traj, nil
}

// Output evaluates the (possibly output-corrected) scalar output from a
// reduced solution. When dualUN is non-nil the adjoint correction
//
//	s_N = L(u_N) + [ a(u_N, z_N) - F^du(z_N) ]
//
// is applied, where z_N is the reduced dual solution and a(., .), F^du
// are evaluated through the ADu/APrDu/FDu couplings built by
// AffineProjector.UpdateDual against betaA (spec.md §4.6, §4.3).
func (s *OnlineService) Output(betaL, betaA [][]float64, uN, dualUN *mat.VecDense) float64 {
	n := s.db.Dimension()
	lN := crb.AssembleVector(s.db.Operators.L, betaL, n)
	out := mat.Dot(lN, uN)
	if dualUN == nil {
		return out
	}
	if s.db.Operators.APrDu == nil || s.db.Operators.FDu == nil {
		return out
	}
	nDu := dualUN.Len()
	aPrDuN := crb.AssembleMatrix(s.db.Operators.APrDu, betaA, n)
	fDuN := crb.AssembleVector(s.db.Operators.FDu, betaL, nDu)

	aUN := mat.NewVecDense(nDu, nil)
	aUN.MulVec(aPrDuN, uN)

	out += mat.Dot(dualUN, aUN) - mat.Dot(fDuN, dualUN)
	return out
}

// Conditioning reports the condition number of the reduced operator
// A_N(mu) at the current basis dimension, the online-query diagnostic
// of spec.md §4.9/§11.
func (s *OnlineService) Conditioning(betaA [][]float64) (float64, error) {
	n := s.db.Dimension()
	aN := crb.AssembleMatrix(s.db.Operators.A, betaA, n)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (aN.At(i, j) + aN.At(j, i))
			sym.SetSym(i, j, v)
		}
	}
	return linalg.ConditionNumber(sym)
}

// Query runs a certified linear solve and bundles the reduced solution,
// output, bound, and conditioning into one OnlineResult (spec.md §4.6,
// §4.9 "certified query").
func (s *OnlineService) Query(betaA, betaF, betaL [][]float64, alphaLB float64, dualUN *mat.VecDense, kind crb.BoundKind) (*OnlineResult, error) {
	uN, err := s.SolveLinear(betaA, betaF)
	if err != nil {
		return nil, err
	}
	output := s.Output(betaL, betaA, uN, dualUN)

	normSq := s.residual.tables.SteadyNormSquared(betaF, betaA, uN)
	bound, err := s.Bound(kind, normSq, alphaLB, output)
	if err != nil {
		return nil, err
	}
	cond, err := s.Conditioning(betaA)
	if err != nil {
		return nil, err
	}
	return &OnlineResult{
		UN:           uN,
		Output:       output,
		Bound:        bound,
		BoundKind:    kind,
		Conditioning: cond,
		Iterations:   1,
	}, nil
}

// Bound evaluates the requested certified or relative bound given the
// squared primal residual dual norm (residualNorm; the square root is
// taken here) and the coercivity lower bound.
func (s *OnlineService) Bound(kind crb.BoundKind, residualNorm, alphaLB, output float64) (float64, error) {
	if alphaLB <= 0 {
		return 0, errors.InternalError("bound: coercivity lower bound must be positive")
	}
	delta := math.Sqrt(math.Max(residualNorm, 0)) / alphaLB
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, errors.NonFiniteEstimator(floatStringer(0), [6]float64{residualNorm, alphaLB, 0, 0, 0, 0})
	}
	switch kind {
	case crb.BoundCertified:
		return delta, nil
	case crb.BoundRelative:
		if output == 0 {
			return math.Inf(1), nil
		}
		return delta / math.Abs(output), nil
	default:
		return 0, errors.InternalError(fmt.Sprintf("unknown bound kind %v", kind))
	}
}

// Benchmark runs a solve repeatedly and reports the mean wall-clock time,
// the computational-time-vs-N diagnostic of spec.md §4.9/§11.
func (s *OnlineService) Benchmark(solve func() error, repetitions int) (time.Duration, error) {
	if repetitions <= 0 {
		repetitions = 1
	}
	start := time.Now()
	for i := 0; i < repetitions; i++ {
		if err := solve(); err != nil {
			return 0, err
		}
	}
	return time.Since(start) / time.Duration(repetitions), nil
}

type floatStringer float64

func (f floatStringer) String() string { return fmt.Sprintf("%g", float64(f)) }
