package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/dataset"
	"github.com/san-kum/gravnn/internal/dynamo"
	"github.com/san-kum/gravnn/internal/gravity"
	"github.com/san-kum/gravnn/internal/pinn"
	"github.com/san-kum/gravnn/internal/transform"
)

func trainedModel(t *testing.T, constraint string) (*pinn.Model, dataset.Data) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Physics.Constraint = constraint
	cfg.Network.Hidden = []int{8}
	cfg.Training.LearningRate = 1e-2
	rng := rand.New(rand.NewPCG(11, 12))
	data := gravity.Generate(gravity.PointMass{Mu: 1}, gravity.SampleShell(rng, 1, 5, 64))
	x, a, u := data.Matrices()
	set, err := transform.FitSet(transform.NonDim, x, a, u)
	if err != nil {
		t.Fatal(err)
	}
	m, err := pinn.New(cfg, nil, set)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Fit(context.Background(), data, pinn.TrainOptions{Epochs: 2, BatchSize: 32}); err != nil {
		t.Fatal(err)
	}
	return m, data
}

func TestJulianDate(t *testing.T) {
	if got := JulianDate(time.Unix(0, 0)); got != 2440587.5 {
		t.Errorf("epoch JD = %v", got)
	}
	ms := time.Unix(0, int64(1500*time.Microsecond))
	if got := JulianDate(ms); math.Abs(got-(2440587.5+2.0/86400000)) > 1e-12 {
		t.Errorf("rounded JD = %v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, constraint := range []string{"pinn_a", "pinn_a_ur", "no_pinn"} {
		t.Run(constraint, func(t *testing.T) {
			m, data := trainedModel(t, constraint)
			store := New(t.TempDir())
			rec, err := store.Save(ctx, m, SaveOptions{Dataframe: "log.db"})
			if err != nil {
				t.Fatal(err)
			}
			id, _ := rec.ID()

			loaded, _, err := store.Load(id)
			if err != nil {
				t.Fatal(err)
			}
			queries := data.X[:10]
			want, err := m.Acceleration(queries, 0)
			if err != nil {
				t.Fatal(err)
			}
			got, err := loaded.Acceleration(queries, 0)
			if err != nil {
				t.Fatal(err)
			}
			for i := range want {
				for j := 0; j < 3; j++ {
					if math.Abs(got[i][j]-want[i][j]) > 1e-6 {
						t.Fatalf("acceleration[%d][%d] = %v, want %v", i, j, got[i][j], want[i][j])
					}
				}
			}
			if constraint != "no_pinn" {
				uw, _ := m.Potential(queries)
				ug, _ := loaded.Potential(queries)
				for i := range uw {
					if math.Abs(uw[i]-ug[i]) > 1e-6 {
						t.Fatalf("potential[%d] = %v, want %v", i, ug[i], uw[i])
					}
				}
			}
			if len(loaded.History().Epochs) != 2 {
				t.Errorf("history has %d epochs", len(loaded.History().Epochs))
			}

			fromLog, _, err := store.LoadFromLog(ctx, "log.db", id)
			if err != nil {
				t.Fatal(err)
			}
			if fromLog.Config().Physics.Constraint != constraint {
				t.Errorf("log constraint %s", fromLog.Config().Physics.Constraint)
			}
		})
	}
}

func TestConcurrentSavesGetDistinctIDs(t *testing.T) {
	m, _ := trainedModel(t, "pinn_a")
	store := New(t.TempDir())
	fixed := time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	const n = 8
	ids := make([]float64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := store.Save(context.Background(), m, SaveOptions{Dataframe: "shared.db"})
			if err != nil {
				t.Error(err)
				return
			}
			ids[i], _ = rec.ID()
		}()
	}
	wg.Wait()

	seen := map[float64]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %v", id)
		}
		seen[id] = true
	}
	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != n {
		t.Errorf("listed %d models", len(list))
	}
}

func TestLoadMissing(t *testing.T) {
	store := New(t.TempDir())
	_, _, err := store.Load(2459000.5)
	if !errors.Is(err, pinn.ErrPersistence) {
		t.Errorf("got %v, want persistence error", err)
	}
	var pe *pinn.PersistenceError
	if !errors.As(err, &pe) || pe.Op != "read" {
		t.Errorf("unexpected error %#v", err)
	}
}

func TestToConfigRequiresKeys(t *testing.T) {
	rec := Record{}
	rec.Set("id", 2459700.0)
	rec.Set("PINN_constraint_fcn", "pinn_a")
	_, _, err := rec.ToConfig()
	if !errors.Is(err, pinn.ErrConfiguration) {
		t.Errorf("got %v, want configuration error", err)
	}
}

func TestLogRows(t *testing.T) {
	ctx := context.Background()
	l := NewLog(t.TempDir() + "/rows.db")
	if err := l.Init(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })

	for i, c := range []string{"pinn_a", "no_pinn"} {
		rec := Record{}
		rec.Set("id", 2459700.0+float64(i))
		rec.Set("timetag", "now")
		rec.Set("PINN_constraint_fcn", c)
		rec.Set("loss_fcn", "rms_summed")
		rec.Set("params", 10)
		if err := l.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := l.Rows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].Constraint != "no_pinn" || rows[0].UUID == "" {
		t.Errorf("rows %+v", rows)
	}
	if rows[0].FinalLoss.Valid {
		t.Error("final loss should be null")
	}
	if _, ok, err := l.Get(ctx, 1); ok || err != nil {
		t.Errorf("missing row: ok=%v err=%v", ok, err)
	}
}

func TestMigrateAllRewritesRecords(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	id := 2459300.5
	if err := os.Mkdir(store.NetworkDir(id), 0755); err != nil {
		t.Fatal(err)
	}
	legacy := Record{}
	legacy.Set("id", id)
	legacy.Set("PINN_flag", "gradient")
	if err := writeRecord(filepath.Join(store.NetworkDir(id), configFile), legacy); err != nil {
		t.Fatal(err)
	}

	n, err := store.MigrateAll()
	if err != nil || n != 1 {
		t.Fatalf("migrated %d, err %v", n, err)
	}
	rec, err := store.ReadRecord(id)
	if err != nil {
		t.Fatal(err)
	}
	if c, _ := rec.String("PINN_constraint_fcn"); c != "pinn_a" {
		t.Errorf("constraint %q after migration", c)
	}
}

func TestOrbitExport(t *testing.T) {
	truth := &dynamo.Result{
		States:  []dynamo.State{{1, 0, 0, 0, 1, 0}, {0.9, 0.1, 0, -0.1, 1, 0}},
		Times:   []float64{0, 0.1},
		Metrics: map[string]float64{"energy_drift": 1e-9},
	}
	pred := &dynamo.Result{
		States:  []dynamo.State{{1, 0, 0, 0, 1, 0}},
		Times:   []float64{0},
		Metrics: map[string]float64{"energy_drift": 2e-3},
	}
	e := NewOrbitExport("point_mass", "rk4", dynamo.Config{Dt: 0.1, Duration: 0.1}, truth, pred)
	if e.Steps != 2 || e.Metrics["predicted_energy_drift"] != 2e-3 {
		t.Errorf("export %+v", e)
	}

	var buf bytes.Buffer
	if err := e.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || len(rows[0]) != 13 {
		t.Fatalf("csv shape %d rows", len(rows))
	}
	if rows[1][7] != "1" || rows[2][7] != "" {
		t.Errorf("predicted columns %q %q", rows[1][7], rows[2][7])
	}

	buf.Reset()
	if err := e.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"integrator": "rk4"`) {
		t.Errorf("json %s", buf.String())
	}
}
