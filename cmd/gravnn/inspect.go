package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/constraints"
	"github.com/san-kum/gravnn/internal/experiment"
	"github.com/san-kum/gravnn/internal/integrators"
	"github.com/san-kum/gravnn/internal/losses"
	"github.com/san-kum/gravnn/internal/pinn"
	"github.com/san-kum/gravnn/internal/storage"
	"github.com/san-kum/gravnn/internal/viz"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func loadModel(ctx context.Context, arg string) (*pinn.Model, storage.Record, error) {
	id, err := storage.ParseID(arg)
	if err != nil {
		return nil, nil, err
	}
	st := storage.New(dataDir).WithLogger(logger)
	if fromLog {
		return st.LoadFromLog(ctx, logName, id, pinn.WithLogger(logger))
	}
	return st.Load(id, pinn.WithLogger(logger))
}

func listModels(cmd *cobra.Command, args []string) error {
	if dataframe != "" {
		return listLog(cmd.Context(), dataframe)
	}

	st := storage.New(dataDir)
	models, err := st.List()
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("no models found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tCONSTRAINT\tLOSS\tPARAMS\tSIZE\tFINAL LOSS")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			storage.FormatID(m.ID),
			m.Timetag,
			m.Constraint,
			m.Loss,
			humanize.Comma(int64(m.Params)),
			humanize.Bytes(uint64(m.Size)),
			formatLoss(m.FinalLoss),
		)
	}
	return w.Flush()
}

func listLog(ctx context.Context, name string) error {
	st := storage.New(dataDir)
	path := st.DataframePath(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("log %s: %w", name, err)
	}
	l := storage.NewLog(path)
	if err := l.Init(ctx); err != nil {
		return err
	}
	defer l.Close()

	rows, err := l.Rows(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUUID\tCONSTRAINT\tLOSS\tPARAMS\tSIZE\tFINAL LOSS")
	for _, r := range rows {
		final := math.NaN()
		if r.FinalLoss.Valid {
			final = r.FinalLoss.Float64
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			storage.FormatID(r.ID),
			r.UUID[:8],
			r.Constraint,
			r.Loss,
			humanize.Comma(r.Params),
			humanize.Bytes(uint64(r.Size)),
			formatLoss(final),
		)
	}
	return w.Flush()
}

func formatLoss(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4e", v)
}

func showModel(cmd *cobra.Command, args []string) error {
	m, rec, err := loadModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cfg := m.Config()
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	timetag, _ := rec.String("timetag")
	fmt.Printf("model: %s\n", args[0])
	fmt.Printf("saved: %s\n", timetag)
	fmt.Printf("params: %s\n", humanize.Comma(int64(m.NumParams())))
	if size, ok := rec.Float("size"); ok {
		fmt.Printf("size: %s\n", humanize.Bytes(uint64(size)))
	}
	fmt.Printf("compiled: %v\n", m.Compiled())
	fmt.Printf("epochs: %d (%s)\n\n", len(m.History().Epochs), m.History().Elapsed)
	fmt.Println(viz.BoxWithTitle("config", strings.TrimRight(string(out), "\n")))

	if last, ok := m.History().Last(); ok {
		fmt.Println(viz.MetricsPanel("final epoch", last.Train))
		if last.Validation != nil {
			fmt.Println(viz.MetricsPanel("validation", *last.Validation))
		}
	}
	return nil
}

func plotModel(cmd *cobra.Command, args []string) error {
	m, _, err := loadModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	h := m.History()
	if len(h.Epochs) == 0 {
		return errors.New("no history to plot")
	}
	fmt.Printf("model: %s\n", args[0])
	fmt.Printf("constraint: %s\n", m.Config().Physics.Constraint)
	fmt.Printf("epochs: %d\n\n", len(h.Epochs))
	fmt.Println(viz.LossCurve(h, 80, 15))
	return nil
}

func migrateModels(cmd *cobra.Command, args []string) error {
	n, err := storage.New(dataDir).WithLogger(logger).MigrateAll()
	if err != nil {
		return err
	}
	fmt.Printf("migrated %d records\n", n)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	names := constraints.Names()
	if len(args) > 0 {
		names = args
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONSTRAINT\tPRESETS")
	for _, c := range names {
		presets := config.ListPresets(c)
		slices.Sort(presets)
		fmt.Fprintf(w, "%s\t%s\n", c, strings.Join(presets, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nlosses: %s\n", strings.Join(losses.Names(), ", "))
	fmt.Printf("gravity models: %s\n", strings.Join(experiment.NewRegistry().ListModels(), ", "))
	fmt.Printf("integrators: %s\n", strings.Join(integrators.Names(), ", "))
	return nil
}
