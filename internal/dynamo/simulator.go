package dynamo

import (
	"context"
	"fmt"
	"math"
)

type Simulator struct {
	dyn        System
	integrator Integrator
	metrics    []Metric
	observers  []Observer
}

func New(dyn System, integrator Integrator) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run propagates x0 for cfg.Duration. An invalid state ends the run early;
// the partial result is returned along with a *SimulationError.
func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != s.dyn.StateDim() {
		return nil, fmt.Errorf("%w: state has %d entries, system wants %d", ErrDimensionMismatch, len(x0), s.dyn.StateDim())
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &Result{
		States:  make([]State, 0, steps+1),
		Times:   make([]float64, 0, steps+1),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	initialEnergy := s.computeEnergy(x)

	var runErr error
	for i := 0; t < cfg.Duration-1e-6*cfg.Dt; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		for _, m := range s.metrics {
			m.Observe(x, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, t)
		}

		step := math.Min(dt, cfg.Duration-t)
		var newX State
		if cfg.Adaptive {
			var next float64
			var stepErr error
			newX, step, next, stepErr = s.adaptiveStep(x, t, step, cfg)
			if stepErr != nil {
				runErr = &SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: stepErr}
				break
			}
			dt = next
		} else {
			newX = s.integrator.Step(s.dyn, x, t, step)
		}

		if cfg.ValidateState && !newX.IsValid() {
			cause := ErrInvalidState
			if f, ok := s.dyn.(Failer); ok && f.Err() != nil {
				cause = f.Err()
			}
			runErr = &SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: cause}
			result.Errors = append(result.Errors, runErr)
			break
		}

		x = newX
		t += step
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Times = append(result.Times, t)
	}

	finalEnergy := s.computeEnergy(x)
	if initialEnergy != 0 && !math.IsNaN(initialEnergy) {
		result.EnergyDrift = math.Abs(finalEnergy-initialEnergy) / math.Abs(initialEnergy)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, runErr
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping")
	}
	return nil
}

func (s *Simulator) computeEnergy(x State) float64 {
	if ec, ok := s.dyn.(Hamiltonian); ok {
		return ec.Energy(x)
	}
	return 0
}

// adaptiveStep returns the new state, the step actually taken and the
// suggested next step.
func (s *Simulator) adaptiveStep(x State, t, dt float64, cfg Config) (State, float64, float64, error) {
	if adaptive, ok := s.integrator.(AdaptiveIntegrator); ok {
		for {
			newX, next, err := adaptive.StepAdaptive(s.dyn, x, t, dt, cfg.Tolerance)
			if err != nil {
				return nil, 0, 0, err
			}
			if newX != nil {
				return newX, dt, clamp(next, cfg), nil
			}
			if next < cfg.MinDt {
				return nil, 0, 0, ErrStepTooSmall
			}
			dt = next
		}
	}

	x1 := s.integrator.Step(s.dyn, x, t, dt)
	xHalf := s.integrator.Step(s.dyn, x, t, dt/2)
	x2 := s.integrator.Step(s.dyn, xHalf, t+dt/2, dt/2)

	err := x1.Sub(x2).Norm()

	if err > cfg.Tolerance && dt > cfg.MinDt {
		return s.adaptiveStep(x, t, dt/2, cfg)
	}

	next := dt
	if err < cfg.Tolerance/10 {
		next = dt * 2
	}
	return x2, dt, clamp(next, cfg), nil
}

func clamp(dt float64, cfg Config) float64 {
	if cfg.MaxDt > 0 && dt > cfg.MaxDt {
		return cfg.MaxDt
	}
	return math.Max(dt, cfg.MinDt)
}
