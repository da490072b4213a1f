package experiment

import (
	"context"
	"math"

	"github.com/san-kum/gravnn/internal/dynamo"
	"github.com/san-kum/gravnn/internal/gravity"
	"github.com/san-kum/gravnn/internal/integrators"
	"github.com/san-kum/gravnn/internal/metrics"
)

type TrajectoryConfig struct {
	Integrator string
	Sim        dynamo.Config
	Initial    dynamo.State
	// Bounds for the bounded metric; an orbit leaving them has impacted or
	// escaped.
	MinRadius float64
	MaxRadius float64
}

// Trajectory propagates the same initial state through the truth and the
// learned field. Deviation is the position distance at matching steps and
// is only filled for fixed-step runs.
type Trajectory struct {
	Truth     *dynamo.Result
	Predicted *dynamo.Result
	Deviation []float64
	Final     float64
}

// RunTrajectory returns the partial comparison together with the error
// when the learned orbit fails mid-run. The two orbits are propagated
// concurrently; pred is only called from the goroutine of the learned run,
// so it must not be used elsewhere until RunTrajectory returns.
func RunTrajectory(ctx context.Context, pred Predictor, truth gravity.Model, cfg TrajectoryConfig) (*Trajectory, error) {
	if _, err := integrators.New(cfg.Integrator); err != nil {
		return nil, err
	}
	fields := []dynamo.Field{TruthField{Model: truth}, Field{Predictor: pred}}
	ens := dynamo.NewEnsemble(func(i int) (dynamo.System, dynamo.Integrator, []dynamo.Metric) {
		return propagator(fields[i], cfg)
	})
	results, errs := ens.RunEach(ctx, []dynamo.State{cfg.Initial, cfg.Initial}, cfg.Sim)

	truthRes, predRes, predErr := results[0], results[1], errs[1]
	if errs[0] != nil {
		return nil, errs[0]
	}
	if predRes == nil {
		return nil, predErr
	}

	out := &Trajectory{Truth: truthRes, Predicted: predRes}
	if !cfg.Sim.Adaptive {
		n := min(len(truthRes.States), len(predRes.States))
		out.Deviation = make([]float64, n)
		for i := 0; i < n; i++ {
			out.Deviation[i] = distance(truthRes.States[i], predRes.States[i])
		}
	}
	out.Final = distance(truthRes.States[len(truthRes.States)-1], predRes.States[len(predRes.States)-1])
	if predErr != nil {
		out.Final = math.Inf(1)
	}
	return out, predErr
}

// propagator builds the orbit system and metrics for one field. The
// integrator name has already been checked.
func propagator(field dynamo.Field, cfg TrajectoryConfig) (dynamo.System, dynamo.Integrator, []dynamo.Metric) {
	integ, _ := integrators.New(cfg.Integrator)
	orbit := dynamo.NewOrbit(field)
	ms := []dynamo.Metric{metrics.NewEnergyDrift(orbit), metrics.NewMomentumDrift()}
	if cfg.MaxRadius > 0 {
		ms = append(ms, metrics.NewBounded(cfg.MinRadius, cfg.MaxRadius))
	}
	return orbit, integ, ms
}

func distance(a, b dynamo.State) float64 {
	pa, pb := a.Position(), b.Position()
	return math.Sqrt((pa[0]-pb[0])*(pa[0]-pb[0]) + (pa[1]-pb[1])*(pa[1]-pb[1]) + (pa[2]-pb[2])*(pa[2]-pb[2]))
}
