package crb

import (
	"gocrb/domain/parameter"
)

// BoundKind selects which quantity OnlineService.Bound reports for a
// given output: the fully certified two-sided bound, or an informal
// relative estimate. This replaces the teacher-model's single overloaded
// "ub()" accessor, whose meaning depended on which internal flags
// happened to be set (spec.md §9 open question, resolved explicitly).
type BoundKind int

const (
	// BoundCertified is the rigorous upper bound on |s_N - s| derived
	// from the dual-norm residual estimator and the coercivity/inf-sup
	// lower bound (spec.md §4.7, §4.8).
	BoundCertified BoundKind = iota
	// BoundRelative is Delta_N(mu) / |s_N(mu)|, useful for reporting but
	// not itself a certified quantity.
	BoundRelative
)

func (k BoundKind) String() string {
	switch k {
	case BoundCertified:
		return "certified"
	case BoundRelative:
		return "relative"
	default:
		return "unknown"
	}
}

// ErrorMode selects which norm the greedy loop maximizes over the
// training sampling at each iteration (spec.md §4.5).
type ErrorMode int

const (
	// ErrorModeResidual maximizes the dual-norm residual estimator
	// Delta_N(mu), the default certified greedy criterion.
	ErrorModeResidual ErrorMode = iota
	// ErrorModeOutput maximizes the estimator on the output functional
	// rather than the field variable.
	ErrorModeOutput
)

// SchemaVersion is bumped whenever the persisted Database layout changes
// in a way that is not purely additive (spec.md §4.11, §9 redesign note:
// "adopt an explicit schema version instead of an opaque binary format").
const SchemaVersion = 1

// Database is the complete in-memory state of one offline greedy run: the
// reduced basis, every affine-decomposition and residual-coupling cache
// derived from it, the convergence history that produced it, and the
// bookkeeping needed to resume or extend the run (spec.md §3, §4.2-§4.9).
//
// A primal-only steady study populates Primal* and leaves Dual* nil. A
// study with an output functional and adjoint-based output correction
// also populates the Dual* fields. A transient study additionally
// populates ModeCountMap (the number of POD modes contributed to the
// basis by each greedy step). No code path fills InitialProjection, and
// the file store does not persist it; transient runs start from a zero
// initial condition.
type Database struct {
	Version int

	Basis     *Basis
	DualBasis *Basis // nil if the problem has no dual / no output functional

	Operators *OperatorSet
	Residual  *ResidualTables
	DualResidual *ResidualTables // nil unless DualBasis != nil

	Variance *VarianceTables // nil unless variance certification is enabled

	Convergence *ConvergenceHistory

	ModeCountMap map[int]int // greedy step -> number of POD modes appended (transient only)
	InitialProjection []float64 // <u0, w_n> truth-inner-product coefficients, indexed by n

	ErrorMode  ErrorMode
	UseNewton  bool // true if the truth/reduced nonlinear solve uses Newton rather than fixed-point
	BestMu     parameter.Parameter
	BestMuSet  bool
}

// OperatorSet is the affine-decomposition cache of spec.md §4.3: the
// reduced projections of every affine term in the bilinear/linear forms
// that define the problem.
type OperatorSet struct {
	A *MatrixTable // stiffness-like bilinear form, Q_a terms
	M *MatrixTable // mass bilinear form, Q_m terms (transient only, may be nil)
	F *VectorTable // right-hand-side linear form, Q_f terms
	L *VectorTable // output linear form, Q_l terms (may equal F for compliant problems)

	// ADu, APrDu, FDu are the dual/adjoint couplings of spec.md §4.3,
	// §4.6: Â^du_{q,m}[i,j] = a_{q,m}(w_j^du, w_i^du) (transposed form),
	// Â^pr,du_{q,m}[i,j] = a_{q,m}(w_j, w_i^du), and F̂^du_{q,m}[i] =
	// <L_{q,m}, w_i^du>. All nil unless the Database has a dual basis.
	ADu   *MatrixTable
	APrDu *MatrixTable
	FDu   *VectorTable
}

// NewDatabase constructs an empty Database ready for the first greedy
// iteration. hasDual controls whether dual-basis, dual-operator, and
// dual-residual state is allocated (against mMaxA/mMaxL, since the dual
// right-hand side is the output functional); varianceEnabled controls
// whether VarianceTables is allocated (spec.md §9: Options.Variance.Enabled
// gate).
func NewDatabase(ops *OperatorSet, mMaxF, mMaxA, mMaxM []int, hasDual, varianceEnabled bool, mMaxL []int) *Database {
	db := &Database{
		Version:      SchemaVersion,
		Basis:        NewBasis(),
		Operators:    ops,
		Residual:     NewResidualTables(mMaxF, mMaxA, mMaxM),
		Convergence:  NewConvergenceHistory(),
		ModeCountMap: make(map[int]int),
	}
	if hasDual {
		db.DualBasis = NewBasis()
		db.DualResidual = NewResidualTables(mMaxL, mMaxA, nil)
		ops.ADu = NewMatrixTable(mMaxA)
		ops.APrDu = NewMatrixTable(mMaxA)
		ops.FDu = NewVectorTable(mMaxL)
	}
	if varianceEnabled {
		db.Variance = NewVarianceTables(len(mMaxL))
	}
	return db
}

// Dimension returns N, the current reduced primal dimension.
func (db *Database) Dimension() int { return db.Basis.Size() }

// RecordBestMu updates the parameter that achieved the largest estimator
// value in the most recent greedy iteration (spec.md §4.5).
func (db *Database) RecordBestMu(mu parameter.Parameter) {
	db.BestMu = mu
	db.BestMuSet = true
}
