// Package config loads runtime options for the CRB engine from the
// environment (with an optional .env file), following the same
// load-then-validate shape used throughout this codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gocrb/internal/errors"

	"github.com/joho/godotenv"
)

// GreedyConfig configures the offline greedy loop (spec.md §4.5).
type GreedyConfig struct {
	DimensionMax    int     // crb.dimension-max: hard cap on N
	Tolerance       float64 // crb.tolerance: stop when Delta_max <= Tolerance
	EmpiricalFactor float64 // crb.error-estimation-factor: scales Delta_max in the stopping test (spec.md §9: factor())
	ErrorMode       string  // crb.error-type: "residual", "residual+SCM", "none", or "empirical"
	SamplingSize    int     // crb.sampling-size: |Xi_train|
	SamplingKind    string  // crb.sampling-type: "random", "equidistributed", "log-equidistributed"
	Seed            uint64  // crb.sampling-seed: random sampling seed
	OutputIndex     int     // crb.output-index: which output functional drives the dual problem
	SCMLowerBound   float64 // crb.scm-lower-bound: constant coercivity bound fed to the SCM collaborator when error-type is "residual+SCM"
	PODModeCount    int     // crb.pod-mode-count: POD modes retained per transient snapshot trajectory
	TimeStep        float64 // crb.offline-time-step: dt used to build transient trajectories during greedy enrichment
	FinalTime       float64 // crb.offline-time-final: T used to build transient trajectories during greedy enrichment
}

// OnlineConfig configures the online reduced solve (spec.md §4.6).
type OnlineConfig struct {
	UseNewton           bool   // crb.use-newton: Newton vs. fixed-point for nonlinear steady problems
	BoundKind           string // crb.error-estimation-bound: "certified" or "relative"
	BDFOrder            int    // crb.bdf-order: backward-differentiation order for transient problems
	TimeStep            float64
	FinalTime           float64
	FixedPointTolerance float64
	FixedPointMaxIter   int
	NewtonTolerance     float64
	NewtonMaxIter       int
}

// VarianceConfig gates the Phi-matrix variance certification of spec.md
// §4.9, which is otherwise skipped.
type VarianceConfig struct {
	Enabled bool // crb.variance.enabled
}

// PersistenceConfig configures the on-disk archive store (spec.md §4.11).
type PersistenceConfig struct {
	ArchiveDir string // crb.database.dir
	ArchiveID  string // crb.database.id: cmd/crb uses "default" if empty
}

// ServerConfig configures the optional HTTP status/query surface
// (spec.md §6).
type ServerConfig struct {
	Host string
	Port int
}

// LoggingConfig holds CRB_LOG_LEVEL. The logger that cmd/crb builds
// (internal.NewDefaultLogger) reads LOG_LEVEL and does not consult it.
type LoggingConfig struct {
	Level string
}

// Options is the complete set of runtime options for the CRB engine.
type Options struct {
	Greedy      GreedyConfig
	Online      OnlineConfig
	Variance    VarianceConfig
	Persistence PersistenceConfig
	Server      ServerConfig
	Logging     LoggingConfig
}

// Load reads .env (if present) then the environment, applying defaults
// for anything unset, and validates the result.
func Load() (*Options, error) {
	_ = godotenv.Load()

	opts := &Options{
		Greedy: GreedyConfig{
			DimensionMax:    getEnvIntOrDefault("CRB_DIMENSION_MAX", 30),
			Tolerance:       getEnvFloatOrDefault("CRB_TOLERANCE", 1e-6),
			EmpiricalFactor: getEnvFloatOrDefault("CRB_ERROR_ESTIMATION_FACTOR", 1.0),
			ErrorMode:       getEnvOrDefault("CRB_ERROR_TYPE", "residual"),
			SamplingSize:    getEnvIntOrDefault("CRB_SAMPLING_SIZE", 100),
			SamplingKind:    getEnvOrDefault("CRB_SAMPLING_TYPE", "random"),
			Seed:            uint64(getEnvIntOrDefault("CRB_SAMPLING_SEED", 1)),
			OutputIndex:     getEnvIntOrDefault("CRB_OUTPUT_INDEX", 0),
			SCMLowerBound:   getEnvFloatOrDefault("CRB_SCM_LOWER_BOUND", 1.0),
			PODModeCount:    getEnvIntOrDefault("CRB_POD_MODE_COUNT", 3),
			TimeStep:        getEnvFloatOrDefault("CRB_OFFLINE_TIME_STEP", 0.1),
			FinalTime:       getEnvFloatOrDefault("CRB_OFFLINE_TIME_FINAL", 1.0),
		},
		Online: OnlineConfig{
			UseNewton:           getEnvBoolOrDefault("CRB_USE_NEWTON", false),
			BoundKind:           getEnvOrDefault("CRB_ERROR_ESTIMATION_BOUND", "certified"),
			BDFOrder:            getEnvIntOrDefault("CRB_BDF_ORDER", 2),
			TimeStep:            getEnvFloatOrDefault("CRB_TIME_STEP", 0.1),
			FinalTime:           getEnvFloatOrDefault("CRB_TIME_FINAL", 1.0),
			FixedPointTolerance: getEnvFloatOrDefault("CRB_FIXEDPOINT_TOLERANCE", 1e-8),
			FixedPointMaxIter:   getEnvIntOrDefault("CRB_FIXEDPOINT_MAXITER", 100),
			NewtonTolerance:     getEnvFloatOrDefault("CRB_NEWTON_TOLERANCE", 1e-10),
			NewtonMaxIter:       getEnvIntOrDefault("CRB_NEWTON_MAXITER", 50),
		},
		Variance: VarianceConfig{
			Enabled: getEnvBoolOrDefault("CRB_VARIANCE_ENABLED", false),
		},
		Persistence: PersistenceConfig{
			ArchiveDir: getEnvOrDefault("CRB_DATABASE_DIR", "./crbdb"),
			ArchiveID:  getEnvOrDefault("CRB_DATABASE_ID", ""),
		},
		Server: ServerConfig{
			Host: getEnvOrDefault("CRB_SERVER_HOST", "0.0.0.0"),
			Port: getEnvIntOrDefault("CRB_SERVER_PORT", 8080),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("CRB_LOG_LEVEL", "info"),
		},
	}

	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func validateOptions(o *Options) error {
	if o.Greedy.DimensionMax <= 0 {
		return errors.ConfigInvalid("crb.dimension-max must be positive")
	}
	if o.Greedy.Tolerance <= 0 {
		return errors.ConfigInvalid("crb.tolerance must be positive")
	}
	if o.Greedy.EmpiricalFactor <= 0 {
		return errors.ConfigInvalid("crb.error-estimation-factor must be positive")
	}
	switch o.Greedy.ErrorMode {
	case "residual", "residual+SCM", "none", "empirical":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("crb.error-type must be 'residual', 'residual+SCM', 'none', or 'empirical', got %q", o.Greedy.ErrorMode))
	}
	if o.Greedy.OutputIndex < 0 {
		return errors.ConfigInvalid("crb.output-index must be non-negative")
	}
	if o.Greedy.PODModeCount <= 0 {
		return errors.ConfigInvalid("crb.pod-mode-count must be positive")
	}
	if o.Greedy.TimeStep <= 0 {
		return errors.ConfigInvalid("crb.offline-time-step must be positive")
	}
	if o.Greedy.FinalTime <= 0 {
		return errors.ConfigInvalid("crb.offline-time-final must be positive")
	}
	if o.Greedy.SamplingSize <= 0 {
		return errors.ConfigInvalid("crb.sampling-size must be positive")
	}
	switch o.Greedy.SamplingKind {
	case "random", "equidistributed", "log-equidistributed":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("crb.sampling-type must be 'random', 'equidistributed', or 'log-equidistributed', got %q", o.Greedy.SamplingKind))
	}
	switch o.Online.BoundKind {
	case "certified", "relative":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("crb.error-estimation-bound must be 'certified' or 'relative', got %q", o.Online.BoundKind))
	}
	if o.Online.BDFOrder < 1 || o.Online.BDFOrder > 2 {
		return errors.ConfigInvalid("crb.bdf-order must be 1 or 2")
	}
	if o.Online.TimeStep <= 0 {
		return errors.ConfigInvalid("crb.time-step must be positive")
	}
	if o.Online.FinalTime <= 0 {
		return errors.ConfigInvalid("crb.time-final must be positive")
	}
	if o.Persistence.ArchiveDir == "" {
		return errors.ConfigInvalid("crb.database.dir must not be empty")
	}
	if o.Server.Port <= 0 || o.Server.Port > 65535 {
		return errors.ConfigInvalid("crb.server.port must be a valid TCP port")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDurationOrDefault(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
