package dynamo

import "math"

// State is [x y z vx vy vz] for orbits; systems of other sizes are allowed.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Position returns the first three components.
func (s State) Position() [3]float64 {
	return [3]float64{s[0], s[1], s[2]}
}

// Velocity returns components three to five.
func (s State) Velocity() [3]float64 {
	return [3]float64{s[3], s[4], s[5]}
}

type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// Hamiltonian systems expose a conserved energy.
type Hamiltonian interface {
	Energy(x State) float64
}

// Failer is implemented by systems whose right-hand side can fail; the
// simulator reports the recorded error when a step goes invalid.
type Failer interface {
	Err() error
}

type Integrator interface {
	Step(dyn System, x State, t, dt float64) State
}

// AdaptiveIntegrator steps with error control. A rejected step returns a
// nil state and the smaller step to retry with.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, t, dt, tol float64) (State, float64, error)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, t float64)
}

type Config struct {
	Dt            float64
	Duration      float64
	Tolerance     float64
	MaxDt         float64
	MinDt         float64
	Adaptive      bool
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		Duration:      10.0,
		Tolerance:     1e-6,
		MaxDt:         0.1,
		MinDt:         1e-8,
		Adaptive:      false,
		ValidateState: true,
	}
}

type Result struct {
	States      []State
	Times       []float64
	Metrics     map[string]float64
	EnergyDrift float64
	StepsTaken  int
	Errors      []error
}

// Positions returns the position track of the result.
func (r *Result) Positions() [][3]float64 {
	out := make([][3]float64, len(r.States))
	for i, s := range r.States {
		out[i] = s.Position()
	}
	return out
}
