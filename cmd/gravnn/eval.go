package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/experiment"
	"github.com/san-kum/gravnn/internal/gravity"
	"github.com/san-kum/gravnn/internal/storage"
	"github.com/san-kum/gravnn/internal/viz"
	"github.com/spf13/cobra"
)

// truthFor rebuilds the field a saved model was trained on.
func truthFor(cfg *config.Config) (gravity.Model, error) {
	return experiment.NewRegistry().GetModel(cfg.Data, cfg.Training.Seed)
}

func evalModel(cmd *cobra.Command, args []string) error {
	m, _, err := loadModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cfg := m.Config()
	truth, err := truthFor(&cfg)
	if err != nil {
		return err
	}

	ecfg := experiment.DefaultExtrapolationConfig(cfg.Data.RadiusMin, cfg.Data.RadiusMax)
	ecfg.BatchSize = cfg.Training.BatchSize
	ext, err := experiment.RunExtrapolation(m, truth, ecfg)
	if err != nil {
		return err
	}

	fmt.Printf("model: %s (%s)\n\n", args[0], cfg.Physics.Constraint)
	fmt.Println(viz.BoxWithTitle("extrapolation", viz.ErrorProfile(ext, 80, 12)))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tN\tMEAN %\tMEDIAN %\tMAX %")
	for _, row := range []struct {
		name string
		s    experiment.Summary
	}{
		{"interpolation", ext.Interpolation},
		{"extrapolation", ext.Extrapolation},
	} {
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\n", row.name, row.s.N, row.s.Mean, row.s.Median, row.s.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if m.Constraint().IsPINN() && residualSamples > 0 {
		rng := rand.New(rand.NewPCG(cfg.Training.Seed, cfg.Training.Seed+2))
		positions := gravity.SampleShell(rng, cfg.Data.RadiusMin, cfg.Data.RadiusMax, residualSamples)
		res, err := experiment.RunResiduals(m, positions, cfg.Training.BatchSize)
		if err != nil {
			return err
		}
		fmt.Println("\nphysics residuals:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  TERM\tMEAN\tMEDIAN\tMAX")
		fmt.Fprintf(w, "  |laplacian|\t%.4e\t%.4e\t%.4e\n", res.Laplacian.Mean, res.Laplacian.Median, res.Laplacian.Max)
		fmt.Fprintf(w, "  |curl|\t%.4e\t%.4e\t%.4e\n", res.Curl.Mean, res.Curl.Median, res.Curl.Max)
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if !planes {
		return nil
	}
	p, err := experiment.RunPlanes(m, truth, experiment.PlanesConfig{
		Normal:    normal,
		Extent:    cfg.Data.RadiusMax,
		Samples:   gridSize,
		MinRadius: cfg.Data.RadiusMin,
		BatchSize: cfg.Training.BatchSize,
	})
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(viz.BoxWithTitle(fmt.Sprintf("plane ⟂ axis %d", normal), viz.Heatmap(p, maxError)))
	return nil
}

func orbitModel(cmd *cobra.Command, args []string) error {
	m, _, err := loadModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cfg := m.Config()
	truth, err := truthFor(&cfg)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Orbit.Integrator = integrator
	}
	if flags.Changed("dt") {
		cfg.Orbit.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Orbit.Duration = duration
	}
	if flags.Changed("radius") {
		cfg.Orbit.Radius = radius
	}
	if flags.Changed("ecc") {
		cfg.Orbit.Eccentricity = eccentricity
	}
	tcfg := experiment.TrajectoryFromConfig(&cfg)

	fmt.Printf("propagating %s orbit (r=%.3g, e=%.3g) for %.4gs with %s...\n",
		cfg.Data.Model, cfg.Orbit.Radius, cfg.Orbit.Eccentricity, cfg.Orbit.Duration, tcfg.Integrator)
	traj, runErr := experiment.RunTrajectory(cmd.Context(), m, truth, tcfg)
	if traj == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warn("learned orbit stopped early", "err", runErr)
	}

	fmt.Println(viz.OrbitView(traj, 60, 24))
	if len(traj.Deviation) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(traj.Deviation,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("position deviation"),
		))
	}

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(traj.Truth.Metrics))
	for name := range traj.Truth.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  METRIC\tTRUTH\tLEARNED")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\t%.6g\t%.6g\n", name, traj.Truth.Metrics[name], traj.Predicted.Metrics[name])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if exportPath != "" {
		if err := exportOrbit(exportPath, cfg.Data.Model, tcfg, traj); err != nil {
			return err
		}
		fmt.Printf("\nexported to %s\n", exportPath)
	}
	return nil
}

func exportOrbit(path, model string, tcfg experiment.TrajectoryConfig, traj *experiment.Trajectory) error {
	e := storage.NewOrbitExport(model, tcfg.Integrator, tcfg.Sim, traj.Truth, traj.Predicted)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if filepath.Ext(path) == ".json" {
		err = e.WriteJSON(f)
	} else {
		err = e.WriteCSV(f)
	}
	if err != nil {
		return err
	}
	return f.Close()
}
