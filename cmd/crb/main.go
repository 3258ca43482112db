// Command crb drives the offline greedy build, online certified queries,
// sampling generation, convergence reporting, and the optional HTTP
// status/query surface (spec.md §6 external interfaces).
package main

import (
	"context"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"gocrb/adapters/httpapi"
	"gocrb/adapters/persistence"
	"gocrb/app"
	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal"
	"gocrb/internal/config"
	"gocrb/internal/crbtest"

	"github.com/spf13/cobra"
)

// collect builds a per-term mMax slice by calling f(q) for q in [0, q).
func collect(q int, f func(int) int) []int {
	out := make([]int, q)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crb",
		Short: "Certified reduced basis engine",
	}
	root.AddCommand(newOfflineCmd(), newOnlineCmd(), newSamplingCmd(), newConvergenceStudyCmd(), newServeCmd(), newDiagnosticsCmd(), newTransientCmd())
	return root
}

// demoSpace is the parameter domain of the built-in 1-D heat fixture
// (spec.md scenario 1): kappa in [0.1, 10], reaction in [0.01, 1].
func demoSpace() (*parameter.Space, error) {
	return parameter.NewSpace([]float64{0.1, 0.01}, []float64{10, 1})
}

func loadEverything() (*config.Options, *internal.Logger, error) {
	opts, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewDefaultLogger()
	return opts, logger, nil
}

func newOfflineCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Run (or resume) the offline greedy basis construction",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := loadEverything()
			if err != nil {
				return err
			}
			space, err := demoSpace()
			if err != nil {
				return err
			}
			truth := crbtest.NewHeatModel(200)
			store, err := persistence.NewFileStore(opts.Persistence.ArchiveDir, crbtest.VectorCodec{})
			if err != nil {
				return err
			}
			driver := app.NewDriverService(truth, store, opts, logger)

			mode := app.ModeRebuild
			if resume {
				mode = app.ModeResume
			}
			archiveID := opts.Persistence.ArchiveID
			if archiveID == "" {
				archiveID = "default"
			}
			db, err := driver.Offline(context.Background(), mode, space, archiveID)
			if err != nil {
				return err
			}
			logger.Info("offline: finished at N=%d", db.Dimension())
			return nil
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "resume a previously persisted run instead of rebuilding")
	return cmd
}

func newOnlineCmd() *cobra.Command {
	var muFlag []float64
	var solver string
	cmd := &cobra.Command{
		Use:   "online",
		Short: "Answer one certified online query against a persisted archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := loadEverything()
			if err != nil {
				return err
			}
			space, err := demoSpace()
			if err != nil {
				return err
			}
			if len(muFlag) != space.Dimension() {
				return fmt.Errorf("online: --mu must have %d components", space.Dimension())
			}
			mu := parameter.New(muFlag)
			if !space.Contains(mu) {
				return fmt.Errorf("online: mu is outside the parameter domain")
			}

			truth := crbtest.NewHeatModel(200)
			store, err := persistence.NewFileStore(opts.Persistence.ArchiveDir, crbtest.VectorCodec{})
			if err != nil {
				return err
			}
			archiveID := opts.Persistence.ArchiveID
			if archiveID == "" {
				archiveID = "default"
			}
			db, err := store.Load(archiveID)
			if err != nil {
				return err
			}

			mMaxA := collect(truth.QA(), truth.MMaxA)
			mMaxF := collect(truth.QF(), truth.MMaxF)
			mMaxL := collect(truth.QL(), truth.MMaxL)
			residual := app.NewResidualService(truth, mMaxF, mMaxA, nil)
			var dualResidual *app.ResidualService
			if db.DualBasis != nil {
				dualResidual = app.NewDualResidualService(truth, mMaxL, mMaxA)
			}
			online := app.NewOnlineService(db, residual, dualResidual, &opts.Online)

			var uN *mat.VecDense
			switch solver {
			case "fixed-point":
				constBeta := func(*mat.VecDense) ([][]float64, [][]float64) { return truth.BetaA(mu), truth.BetaF(mu) }
				uN, _, err = online.SolveFixedPoint(mu, constBeta)
			case "newton":
				constBeta := func(*mat.VecDense) ([][]float64, [][]float64) { return truth.BetaA(mu), truth.BetaF(mu) }
				jacobian := func(*mat.VecDense) *mat.Dense { return crb.AssembleMatrix(db.Operators.A, truth.BetaA(mu), db.Dimension()) }
				uN, _, err = online.SolveNewton(mu, constBeta, jacobian)
			default:
				uN, err = online.SolveLinear(truth.BetaA(mu), truth.BetaF(mu))
			}
			if err != nil {
				return err
			}

			output := online.Output(truth.BetaL(mu), truth.BetaA(mu), uN, nil)
			alphaLB, err := truth.CoercivityLowerBound(mu)
			if err != nil {
				return err
			}
			cond, err := online.Conditioning(truth.BetaA(mu))
			if err != nil {
				return err
			}
			logger.Info("online: output=%.6g at mu=%s (coercivity lower bound %.4g, condition number %.4g)", output, mu.String(), alphaLB, cond)
			fmt.Printf("output=%g\n", output)
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&muFlag, "mu", nil, "query parameter, comma-separated")
	cmd.Flags().StringVar(&solver, "solver", "linear", "reduced solver: 'linear', 'fixed-point', or 'newton'")
	return cmd
}

// newDiagnosticsCmd runs RunDiagnostics against a persisted archive,
// printing the orthonormality and residual-table consistency self-checks
// of spec.md §11.
func newDiagnosticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Run offline self-checks against a persisted archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := loadEverything()
			if err != nil {
				return err
			}
			truth := crbtest.NewHeatModel(200)
			store, err := persistence.NewFileStore(opts.Persistence.ArchiveDir, crbtest.VectorCodec{})
			if err != nil {
				return err
			}
			archiveID := opts.Persistence.ArchiveID
			if archiveID == "" {
				archiveID = "default"
			}
			db, err := store.Load(archiveID)
			if err != nil {
				return err
			}
			mMaxA := collect(truth.QA(), truth.MMaxA)
			mMaxF := collect(truth.QF(), truth.MMaxF)
			residual := app.NewResidualService(truth, mMaxF, mMaxA, nil)

			driver := app.NewDriverService(truth, store, opts, logger)
			report, err := driver.RunDiagnostics(db, residual)
			if err != nil {
				return err
			}
			fmt.Printf("orthonormality-max-deviation=%g residual-consistency-max-gap=%g monotone-enrichment=%t\n",
				report.OrthonormalityMaxDeviation, report.ResidualConsistencyMaxGap, report.MonotoneEnrichment)
			return nil
		},
	}
}

// newTransientCmd builds a small transient reduced basis from scratch and
// runs a BDF time march against it, exercising the transient online path
// of spec.md §4.10 end to end without requiring a persisted archive.
func newTransientCmd() *cobra.Command {
	var muFlag []float64
	cmd := &cobra.Command{
		Use:   "transient",
		Short: "Build a small transient basis and run a BDF time march at one mu",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := loadEverything()
			if err != nil {
				return err
			}
			space, err := demoSpace()
			if err != nil {
				return err
			}
			if len(muFlag) != space.Dimension() {
				return fmt.Errorf("transient: --mu must have %d components", space.Dimension())
			}
			mu := parameter.New(muFlag)
			if !space.Contains(mu) {
				return fmt.Errorf("transient: mu is outside the parameter domain")
			}

			truth := crbtest.NewTransientHeatModel(80)
			mMaxA := collect(truth.QA(), truth.MMaxA)
			mMaxF := collect(truth.QF(), truth.MMaxF)
			mMaxM := collect(truth.QM(), truth.MMaxM)
			mMaxL := collect(truth.QL(), truth.MMaxL)
			ops := &crb.OperatorSet{
				A: crb.NewMatrixTable(mMaxA),
				M: crb.NewMatrixTable(mMaxM),
				F: crb.NewVectorTable(mMaxF),
				L: crb.NewVectorTable(mMaxL),
			}
			db := crb.NewDatabase(ops, mMaxF, mMaxA, mMaxM, false, false, mMaxL)

			residual := app.NewResidualService(truth, mMaxF, mMaxA, mMaxM)
			greedyCfg := opts.Greedy
			greedyCfg.DimensionMax = 8
			greedy := app.NewGreedyService(truth, residual, nil, &greedyCfg, logger)
			train := parameter.NewRandomSampling(space, 20, greedyCfg.Seed)
			if err := greedy.Run(context.Background(), db, train); err != nil {
				return err
			}
			logger.Info("transient: built basis of dimension N=%d", db.Dimension())

			online := app.NewOnlineService(db, residual, nil, &opts.Online)
			n := db.Dimension()
			u0 := mat.NewVecDense(n, nil)
			traj, err := online.SolveTransientPrimal(mu, truth.BetaA(mu), truth.BetaM(mu), truth.BetaF(mu), u0, opts.Online.TimeStep, opts.Online.FinalTime, opts.Online.BDFOrder)
			if err != nil {
				return err
			}
			logger.Info("transient: marched %d steps at mu=%s", len(traj)-1, mu.String())
			fmt.Printf("steps=%d final-output=%g\n", len(traj)-1, online.Output(truth.BetaL(mu), truth.BetaA(mu), traj[len(traj)-1], nil))
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&muFlag, "mu", nil, "query parameter, comma-separated")
	return cmd
}

func newSamplingCmd() *cobra.Command {
	generate := &cobra.Command{
		Use:   "generate [output-file]",
		Short: "Generate a training sampling and write it to a plain-text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, _, err := loadEverything()
			if err != nil {
				return err
			}
			space, err := demoSpace()
			if err != nil {
				return err
			}
			var sampling *parameter.Sampling
			switch opts.Greedy.SamplingKind {
			case "equidistributed":
				sampling = parameter.NewEquidistributedSampling(space, opts.Greedy.SamplingSize)
			case "log-equidistributed":
				sampling, err = parameter.NewLogEquidistributedSampling(space, opts.Greedy.SamplingSize)
				if err != nil {
					return err
				}
			default:
				sampling = parameter.NewRandomSampling(space, opts.Greedy.SamplingSize, opts.Greedy.Seed)
			}
			return sampling.WriteFile(args[0])
		},
	}
	root := &cobra.Command{Use: "sampling", Short: "Sampling utilities"}
	root.AddCommand(generate)
	return root
}

func newConvergenceStudyCmd() *cobra.Command {
	var exportPath string
	cmd := &cobra.Command{
		Use:   "convergence-study",
		Short: "Print (and optionally export) the recorded greedy convergence history of a persisted archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := loadEverything()
			if err != nil {
				return err
			}
			store, err := persistence.NewFileStore(opts.Persistence.ArchiveDir, crbtest.VectorCodec{})
			if err != nil {
				return err
			}
			archiveID := opts.Persistence.ArchiveID
			if archiveID == "" {
				archiveID = "default"
			}
			db, err := store.Load(archiveID)
			if err != nil {
				return err
			}
			driver := app.NewDriverService(nil, store, opts, logger)
			for _, p := range db.Convergence.Points() {
				fmt.Printf("N=%d Delta_max=%.6e\n", p.N, p.DeltaMax)
			}
			summary, err := driver.SummarizeConvergence(db)
			if err != nil {
				return err
			}
			fmt.Printf("summary: mean=%.6e stddev=%.6e min=%.6e max=%.6e median=%.6e\n",
				summary.Mean, summary.StdDev, summary.Min, summary.Max, summary.Median)
			if exportPath != "" {
				if err := driver.ExportConvergenceStudy(db, exportPath); err != nil {
					return err
				}
				logger.Info("convergence-study: wrote %s", exportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "write the convergence history to an .xlsx workbook at this path")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the online query HTTP API over a persisted archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := loadEverything()
			if err != nil {
				return err
			}
			space, err := demoSpace()
			if err != nil {
				return err
			}
			truth := crbtest.NewHeatModel(200)
			store, err := persistence.NewFileStore(opts.Persistence.ArchiveDir, crbtest.VectorCodec{})
			if err != nil {
				return err
			}
			archiveID := opts.Persistence.ArchiveID
			if archiveID == "" {
				archiveID = "default"
			}
			db, err := store.Load(archiveID)
			if err != nil {
				return err
			}

			mMaxA := collect(truth.QA(), truth.MMaxA)
			mMaxF := collect(truth.QF(), truth.MMaxF)
			mMaxL := collect(truth.QL(), truth.MMaxL)
			residual := app.NewResidualService(truth, mMaxF, mMaxA, nil)
			var dualResidual *app.ResidualService
			if db.DualBasis != nil {
				dualResidual = app.NewDualResidualService(truth, mMaxL, mMaxA)
			}
			online := app.NewOnlineService(db, residual, dualResidual, &opts.Online)

			server := httpapi.NewServer(db, online, residual, truth, space, logger)
			return server.Run(fmt.Sprintf("%s:%d", opts.Server.Host, opts.Server.Port))
		},
	}
}
