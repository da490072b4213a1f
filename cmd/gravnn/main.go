package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"

	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/dataset"
	"github.com/san-kum/gravnn/internal/experiment"
	"github.com/san-kum/gravnn/internal/gravity"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	logLevel   string
	procs      int
	configFile string
	preset     string
	dataframe  string

	// training
	epochs     int
	batchSize  int
	lr         float64
	hidden     []int
	activation string
	lossFcn    string
	scaler     string
	gravModel  string
	samples    int
	seed       uint64
	lbfgsIters int
	anneal     bool
	live       bool

	// evaluation
	planes          bool
	normal          int
	gridSize        int
	maxError        float64
	residualSamples int

	// orbits
	integrator   string
	dt           float64
	duration     float64
	radius       float64
	eccentricity float64
	exportPath   string

	// sweeps
	sweepLRs    []float64
	sweepWidths []int
	workers     int
	saveTrials  bool

	fromLog bool
	logName string

	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "gravnn",
		Short:        "physics-informed neural gravity models",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := config.SetupProcess(os.Stderr, logLevel, procs)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&procs, "procs", 0, "GOMAXPROCS limit, 0 keeps the runtime default")

	trainCmd := &cobra.Command{
		Use:   "train [constraint]",
		Short: "train a model on a sampled gravity field",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTrain,
	}
	addTrainingFlags(trainCmd)
	trainCmd.Flags().IntVar(&lbfgsIters, "lbfgs", 0, "L-BFGS fine-tuning iterations after training")
	trainCmd.Flags().BoolVar(&live, "live", false, "show live training progress")

	sweepCmd := &cobra.Command{
		Use:   "sweep [constraint]",
		Short: "grid search learning rate and layer width",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addTrainingFlags(sweepCmd)
	sweepCmd.Flags().Float64SliceVar(&sweepLRs, "lrs", []float64{1e-3, 3e-3, 1e-2}, "learning rates")
	sweepCmd.Flags().IntSliceVar(&sweepWidths, "widths", []int{16, 32}, "hidden layer widths")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "concurrent trials, 0 for GOMAXPROCS")
	sweepCmd.Flags().BoolVar(&saveTrials, "save", false, "save every trial model")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved models",
		Args:  cobra.NoArgs,
		RunE:  listModels,
	}
	listCmd.Flags().StringVar(&dataframe, "log", "", "read rows from a named log instead of the model directories")

	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "show a saved model",
		Args:  cobra.ExactArgs(1),
		RunE:  showModel,
	}
	showCmd.Flags().BoolVar(&fromLog, "from-log", false, "load through the log row")
	showCmd.Flags().StringVar(&logName, "log", config.DefaultDataframe, "log to read with --from-log")

	plotCmd := &cobra.Command{
		Use:   "plot [id]",
		Short: "plot the training history",
		Args:  cobra.ExactArgs(1),
		RunE:  plotModel,
	}

	evalCmd := &cobra.Command{
		Use:   "eval [id]",
		Short: "measure interpolation and extrapolation error",
		Args:  cobra.ExactArgs(1),
		RunE:  evalModel,
	}
	evalCmd.Flags().BoolVar(&planes, "planes", false, "also map the error on a plane through the origin")
	evalCmd.Flags().IntVar(&normal, "normal", 2, "plane normal axis (0, 1 or 2)")
	evalCmd.Flags().IntVar(&gridSize, "grid", 30, "plane samples per side")
	evalCmd.Flags().Float64Var(&maxError, "max-error", 10, "percent error at which the heatmap saturates")
	evalCmd.Flags().IntVar(&residualSamples, "residuals", 500, "training-shell samples for the Laplacian and curl residuals, 0 skips them")

	orbitCmd := &cobra.Command{
		Use:   "orbit [id]",
		Short: "propagate an orbit through the truth and the learned field",
		Args:  cobra.ExactArgs(1),
		RunE:  orbitModel,
	}
	orbitCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	orbitCmd.Flags().Float64Var(&dt, "dt", 0.01, "timestep")
	orbitCmd.Flags().Float64Var(&duration, "time", 50, "duration")
	orbitCmd.Flags().Float64Var(&radius, "radius", 3, "periapsis radius")
	orbitCmd.Flags().Float64Var(&eccentricity, "ecc", 0, "eccentricity")
	orbitCmd.Flags().StringVar(&exportPath, "export", "", "write both tracks to a .csv or .json file")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "rewrite saved records in the current format",
		Args:  cobra.NoArgs,
		RunE:  migrateModels,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [constraint]",
		Short: "list presets, gravity models and integrators",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	rootCmd.AddCommand(trainCmd, sweepCmd, listCmd, showCmd, plotCmd, evalCmd, orbitCmd, migrateCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addTrainingFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&epochs, "epochs", def.Training.Epochs, "training epochs")
	cmd.Flags().IntVar(&batchSize, "batch", def.Training.BatchSize, "batch size")
	cmd.Flags().Float64Var(&lr, "lr", def.Training.LearningRate, "learning rate")
	cmd.Flags().IntSliceVar(&hidden, "hidden", def.Network.Hidden, "hidden layer widths")
	cmd.Flags().StringVar(&activation, "activation", def.Network.Activation, "activation function")
	cmd.Flags().StringVar(&lossFcn, "loss", def.Physics.Loss, "loss function")
	cmd.Flags().StringVar(&scaler, "scaler", def.Scaler, "input/output scaler")
	cmd.Flags().StringVar(&gravModel, "model", def.Data.Model, "ground-truth gravity model")
	cmd.Flags().IntVar(&samples, "samples", def.Data.Samples, "training samples")
	cmd.Flags().Uint64Var(&seed, "seed", def.Training.Seed, "random seed")
	cmd.Flags().BoolVar(&anneal, "anneal", false, "anneal the physics loss weight")
}

// loadConfig resolves the config file or preset and applies the flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	constraint := ""
	if len(args) > 0 {
		constraint = args[0]
	}

	cfg := config.DefaultConfig()
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	case preset != "":
		name := constraint
		if name == "" {
			name = config.DefaultConstraint
		}
		cfg = config.GetPreset(name, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q for %s (available: %s)",
				preset, name, strings.Join(config.ListPresets(name), ", "))
		}
	}
	if constraint != "" {
		cfg.Physics.Constraint = constraint
	}

	flags := cmd.Flags()
	if flags.Changed("epochs") {
		cfg.Training.Epochs = epochs
	}
	if flags.Changed("batch") {
		cfg.Training.BatchSize = batchSize
	}
	if flags.Changed("lr") {
		cfg.Training.LearningRate = lr
	}
	if flags.Changed("hidden") {
		cfg.Network.Hidden = hidden
	}
	if flags.Changed("activation") {
		cfg.Network.Activation = activation
	}
	if flags.Changed("loss") {
		cfg.Physics.Loss = lossFcn
	}
	if flags.Changed("scaler") {
		cfg.Scaler = scaler
	}
	if flags.Changed("model") {
		cfg.Data.Model = gravModel
	}
	if flags.Changed("samples") {
		cfg.Data.Samples = samples
	}
	if flags.Changed("seed") {
		cfg.Training.Seed = seed
	}
	if flags.Changed("anneal") {
		cfg.Physics.Anneal = anneal
	}
	if flags.Lookup("lbfgs") != nil && flags.Changed("lbfgs") {
		cfg.Training.LBFGSIterations = lbfgsIters
	}
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// groundTruth builds the configured field and samples the training and
// validation sets from it. A separate validation shell is drawn when
// Data.Validation is set, otherwise ValidationSplit is held back.
func groundTruth(cfg *config.Config) (gravity.Model, dataset.Data, dataset.Data, error) {
	truth, err := experiment.NewRegistry().GetModel(cfg.Data, cfg.Training.Seed)
	if err != nil {
		return nil, dataset.Data{}, dataset.Data{}, err
	}
	rng := rand.New(rand.NewPCG(cfg.Training.Seed, cfg.Training.Seed+1))
	train := gravity.Generate(truth, gravity.SampleShell(rng, cfg.Data.RadiusMin, cfg.Data.RadiusMax, cfg.Data.Samples))

	var val dataset.Data
	switch {
	case cfg.Data.Validation > 0:
		val = gravity.Generate(truth, gravity.SampleShell(rng, cfg.Data.RadiusMin, cfg.Data.RadiusMax, cfg.Data.Validation))
	case cfg.Training.ValidationSplit > 0:
		train, val = train.Split(cfg.Training.ValidationSplit, rng)
	}
	return truth, train, val, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
