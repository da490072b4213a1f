package dynamo_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/gravnn/internal/dynamo"
	"github.com/san-kum/gravnn/internal/integrators"
)

type pointMass struct{ mu float64 }

func (p pointMass) Acceleration(x [3]float64) ([3]float64, error) {
	r := math.Sqrt(x[0]*x[0] + x[1]*x[1] + x[2]*x[2])
	k := -p.mu / (r * r * r)
	return [3]float64{k * x[0], k * x[1], k * x[2]}, nil
}

func (p pointMass) Potential(x [3]float64) (float64, error) {
	return -p.mu / math.Sqrt(x[0]*x[0]+x[1]*x[1]+x[2]*x[2]), nil
}

type failing struct {
	pointMass
	after int
	calls int
}

func (f *failing) Acceleration(x [3]float64) ([3]float64, error) {
	f.calls++
	if f.calls > f.after {
		return [3]float64{}, errors.New("model unavailable")
	}
	return f.pointMass.Acceleration(x)
}

func TestCircularOrbitCloses(t *testing.T) {
	orbit := dynamo.NewOrbit(pointMass{mu: 1})
	sim := dynamo.New(orbit, integrators.NewRK4())

	cfg := dynamo.DefaultConfig()
	cfg.Duration = dynamo.Period(1, 0, 1)
	x0 := dynamo.Circular(1, 1)

	result, err := sim.Run(context.Background(), x0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	last := result.States[len(result.States)-1]
	if d := last.Sub(x0).Norm(); d > 1e-6 {
		t.Errorf("orbit did not close, distance %e", d)
	}
	if math.Abs(result.Times[len(result.Times)-1]-cfg.Duration) > 1e-12 {
		t.Errorf("final time %f", result.Times[len(result.Times)-1])
	}
	if result.EnergyDrift > 1e-7 {
		t.Errorf("energy drift %e", result.EnergyDrift)
	}
}

func TestAdaptiveRun(t *testing.T) {
	orbit := dynamo.NewOrbit(pointMass{mu: 1})
	sim := dynamo.New(orbit, integrators.NewRK45())

	cfg := dynamo.DefaultConfig()
	cfg.Adaptive = true
	cfg.Tolerance = 1e-10
	cfg.Duration = dynamo.Period(1, 0.5, 1)
	x0 := dynamo.Elliptic(1, 0.5, 1)

	result, err := sim.Run(context.Background(), x0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	last := result.States[len(result.States)-1]
	if d := last.Sub(x0).Norm(); d > 1e-5 {
		t.Errorf("elliptic orbit did not close, distance %e", d)
	}
}

func TestFieldErrorStopsRun(t *testing.T) {
	field := &failing{pointMass: pointMass{mu: 1}, after: 40}
	sim := dynamo.New(dynamo.NewOrbit(field), integrators.NewRK4())

	result, err := sim.Run(context.Background(), dynamo.Circular(1, 1), dynamo.DefaultConfig())
	if !errors.Is(err, dynamo.ErrField) {
		t.Fatalf("got %v, want field error", err)
	}
	var se *dynamo.SimulationError
	if !errors.As(err, &se) || se.Step != 10 {
		t.Errorf("unexpected error %#v", err)
	}
	if len(result.States) != 11 {
		t.Errorf("kept %d states", len(result.States))
	}
}

func TestDimensionMismatch(t *testing.T) {
	sim := dynamo.New(dynamo.NewOrbit(pointMass{mu: 1}), integrators.NewRK4())
	_, err := sim.Run(context.Background(), dynamo.State{1, 0, 0}, dynamo.DefaultConfig())
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	sim := dynamo.New(dynamo.NewOrbit(pointMass{mu: 1}), integrators.NewRK4())
	tests := []struct {
		name string
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.Config{Dt: 0, Duration: 1.0}},
		{"negative dt", dynamo.Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", dynamo.Config{Dt: 0.1, Duration: 0}},
		{"adaptive without tolerance", dynamo.Config{Dt: 0.1, Duration: 1, Adaptive: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sim.Run(context.Background(), dynamo.Circular(1, 1), tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := dynamo.New(dynamo.NewOrbit(pointMass{mu: 1}), integrators.NewRK4())
	if _, err := sim.Run(ctx, dynamo.Circular(1, 1), dynamo.DefaultConfig()); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

func TestEnsemble(t *testing.T) {
	ens := dynamo.NewEnsemble(func(int) (dynamo.System, dynamo.Integrator, []dynamo.Metric) {
		return dynamo.NewOrbit(pointMass{mu: 1}), integrators.NewRK4(), nil
	})
	initial := []dynamo.State{dynamo.Circular(1, 1), dynamo.Circular(2, 1), dynamo.Circular(3, 1)}

	cfg := dynamo.DefaultConfig()
	cfg.Duration = 1
	results, err := ens.Run(context.Background(), initial, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.States[0][0] != initial[i][0] {
			t.Errorf("result %d out of order", i)
		}
		p := r.Positions()
		radius := math.Sqrt(p[len(p)-1][0]*p[len(p)-1][0] + p[len(p)-1][1]*p[len(p)-1][1])
		if math.Abs(radius-initial[i][0]) > 1e-6 {
			t.Errorf("orbit %d radius %f", i, radius)
		}
	}
}

func TestEnsembleKeepsErrorPerRun(t *testing.T) {
	ens := dynamo.NewEnsemble(func(i int) (dynamo.System, dynamo.Integrator, []dynamo.Metric) {
		if i == 1 {
			return dynamo.NewOrbit(&failing{pointMass: pointMass{mu: 1}, after: 40}), integrators.NewRK4(), nil
		}
		return dynamo.NewOrbit(pointMass{mu: 1}), integrators.NewRK4(), nil
	})
	initial := []dynamo.State{dynamo.Circular(1, 1), dynamo.Circular(1, 1)}

	results, errs := ens.RunEach(context.Background(), initial, dynamo.DefaultConfig())
	if errs[0] != nil {
		t.Fatalf("healthy run failed: %v", errs[0])
	}
	if !errors.Is(errs[1], dynamo.ErrField) {
		t.Fatalf("got %v, want field error", errs[1])
	}
	if len(results[1].States) != 11 {
		t.Errorf("failed run kept %d states", len(results[1].States))
	}
	if len(results[0].States) <= len(results[1].States) {
		t.Errorf("healthy run stopped early with %d states", len(results[0].States))
	}

	if _, err := ens.Run(context.Background(), initial, dynamo.DefaultConfig()); !errors.Is(err, dynamo.ErrField) {
		t.Errorf("Run returned %v", err)
	}
}

func TestAngularMomentum(t *testing.T) {
	h := dynamo.AngularMomentum(dynamo.Circular(4, 1))
	if math.Abs(h[2]-2) > 1e-12 || h[0] != 0 || h[1] != 0 {
		t.Errorf("h = %v", h)
	}
}
