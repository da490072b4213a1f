package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/dataset"
	"github.com/san-kum/gravnn/internal/experiment"
	"github.com/san-kum/gravnn/internal/optim"
	"github.com/san-kum/gravnn/internal/pinn"
	"github.com/san-kum/gravnn/internal/storage"
	"github.com/san-kum/gravnn/internal/transform"
	"github.com/san-kum/gravnn/internal/tui"
	"github.com/san-kum/gravnn/internal/viz"
	"github.com/spf13/cobra"
)

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	_, train, val, err := groundTruth(cfg)
	if err != nil {
		return err
	}

	modelLogger := logger
	if live {
		// Log lines would tear the live view.
		modelLogger = slog.New(slog.DiscardHandler)
	}
	m, err := pinn.New(cfg, nil, transform.Set{}, pinn.WithLogger(modelLogger))
	if err != nil {
		return err
	}
	opts := m.TrainOptionsFromConfig()
	opts.Validation = val

	fmt.Printf("training %s on %d %s samples (%d parameters)\n",
		cfg.Physics.Constraint, train.Len(), cfg.Data.Model, m.NumParams())
	start := time.Now()

	if live {
		title := fmt.Sprintf("%s · %s", cfg.Physics.Constraint, cfg.Physics.Loss)
		_, err = tui.Train(ctx, title, opts.Epochs, func(ctx context.Context, onEpoch func(pinn.EpochRecord) error) (*pinn.History, error) {
			opts.OnEpochEnd = onEpoch
			return m.Fit(ctx, train, opts)
		})
	} else {
		_, err = m.Fit(ctx, train, opts)
	}
	st := storage.New(cfg.DataDir).WithLogger(logger)
	var diverged *pinn.DivergenceError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && len(m.History().Epochs) > 0:
		logger.Warn("training interrupted, saving partial model", "epochs", len(m.History().Epochs))
	case errors.As(err, &diverged):
		rec, serr := salvage(ctx, st, m, cfg.Dataframe, diverged)
		if serr != nil {
			return errors.Join(err, serr)
		}
		id, _ := rec.ID()
		fmt.Printf("partial model id: %s\n", storage.FormatID(id))
		return err
	default:
		return err
	}

	if cfg.Training.LBFGSIterations > 0 && ctx.Err() == nil {
		res, err := m.Optimize(ctx, train, cfg.Training.LBFGSIterations)
		if err != nil {
			return fmt.Errorf("l-bfgs: %w", err)
		}
		fmt.Printf("l-bfgs: loss %.4e -> %.4e in %d iterations (%s)\n", res.Initial, res.Loss, res.Iterations, res.Status)
	}
	elapsed := time.Since(start)

	holdout := val
	if holdout.Len() == 0 {
		holdout = train
	}
	metrics, err := m.Evaluate(holdout, cfg.Training.BatchSize)
	if err != nil {
		return err
	}
	errs, err := experiment.Compare(m, holdout, cfg.Training.BatchSize)
	if err != nil {
		return err
	}
	summary := experiment.Summarize(errs.Percent)

	rec, err := st.Save(context.WithoutCancel(ctx), m, storage.SaveOptions{
		Dataframe: cfg.Dataframe,
		Extra: map[string]any{
			"val_percent_mean":   summary.Mean,
			"val_percent_median": summary.Median,
			"val_percent_max":    summary.Max,
		},
	})
	if err != nil {
		return err
	}
	id, _ := rec.ID()

	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("model id: %s\n\n", storage.FormatID(id))
	fmt.Println(viz.MetricsPanel("validation", metrics))
	return nil
}

// salvage saves the weights of a diverged model, which are those of the
// last finite step, so they can be inspected later.
func salvage(ctx context.Context, st *storage.Store, m *pinn.Model, dataframe string, de *pinn.DivergenceError) (storage.Record, error) {
	logger.Error("training diverged, saving partial model",
		"epoch", de.Epoch, "step", de.Step, "component", de.Component)
	return st.Save(context.WithoutCancel(ctx), m, storage.SaveOptions{
		Dataframe: dataframe,
		Extra: map[string]any{
			"diverged":       de.Component,
			"diverged_epoch": de.Epoch,
			"diverged_step":  de.Step,
		},
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	_, train, val, err := groundTruth(cfg)
	if err != nil {
		return err
	}
	if val.Len() == 0 {
		val = train
	}

	widths := make([]float64, len(sweepWidths))
	for i, w := range sweepWidths {
		widths[i] = float64(w)
	}
	grid := optim.NewGridSearch([]string{"learning_rate", "width"}, [][]float64{sweepLRs, widths})
	grid.Workers = workers

	st := storage.New(cfg.DataDir).WithLogger(logger)
	quiet := slog.New(slog.DiscardHandler)
	trial := func(ctx context.Context, p map[string]float64) (float64, error) {
		c := trialConfig(cfg, p["learning_rate"], int(p["width"]))
		m, err := pinn.New(c, nil, transform.Set{}, pinn.WithLogger(quiet))
		if err != nil {
			return math.NaN(), err
		}
		score, err := fitAndScore(ctx, m, train, val)
		if err != nil {
			return math.NaN(), err
		}
		logger.Info("trial finished", "learning_rate", c.Training.LearningRate, "width", int(p["width"]), "percent_mean", score)
		if saveTrials {
			if _, err := st.Save(ctx, m, storage.SaveOptions{
				Dataframe: cfg.Dataframe,
				Extra:     map[string]any{"val_percent_mean": score},
			}); err != nil {
				return score, err
			}
		}
		return score, nil
	}

	fmt.Printf("sweeping %d configurations of %s\n", len(grid.Points()), cfg.Physics.Constraint)
	best, score, results, err := grid.Search(ctx, trial)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LR\tWIDTH\tPERCENT MEAN")
	for _, r := range optim.Ranked(results) {
		fmt.Fprintf(w, "%.2e\t%d\t%.4f\n", r.Params["learning_rate"], int(r.Params["width"]), r.Score)
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%.2e\t%d\tfailed: %v\n", r.Params["learning_rate"], int(r.Params["width"]), r.Err)
		}
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: lr %.2e width %d (%.4f%%)\n", best["learning_rate"], int(best["width"]), score)
	return nil
}

// trialConfig copies cfg with every hidden layer set to width.
func trialConfig(cfg *config.Config, lr float64, width int) *config.Config {
	c := *cfg
	c.Training.LearningRate = lr
	c.Network.Hidden = make([]int, len(cfg.Network.Hidden))
	for i := range c.Network.Hidden {
		c.Network.Hidden[i] = width
	}
	return &c
}

// fitAndScore trains m and returns its mean acceleration percent error on val.
func fitAndScore(ctx context.Context, m *pinn.Model, train, val dataset.Data) (float64, error) {
	opts := m.TrainOptionsFromConfig()
	if _, err := m.Fit(ctx, train, opts); err != nil {
		return math.NaN(), err
	}
	errs, err := experiment.Compare(m, val, opts.BatchSize)
	if err != nil {
		return math.NaN(), err
	}
	return experiment.Summarize(errs.Percent).Mean, nil
}
