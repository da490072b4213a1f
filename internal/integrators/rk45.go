package integrators

import (
	"math"

	"github.com/san-kum/gravnn/internal/dynamo"
)

// RK45 is the Dormand-Prince embedded pair.
type RK45 struct {
	rk       explicitRK
	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return &RK45{
		rk:       newExplicitRK(dormandPrince),
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

// Step takes a fixed step of dt, ignoring the error estimate.
func (r *RK45) Step(dyn dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	next, _ := r.rk.step(dyn, x, t, dt)
	return next
}

func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, t, dt, tol float64) (dynamo.State, float64, error) {
	next, errMax := r.rk.step(dyn, x, t, dt)
	ratio := errMax / tol

	switch {
	case math.IsNaN(ratio):
		return next, dt, nil
	case ratio > 1:
		return nil, dt * math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25)), nil
	case ratio == 0:
		return next, dt * r.maxScale, nil
	default:
		return next, dt * math.Min(r.maxScale, r.safety*math.Pow(ratio, -0.2)), nil
	}
}
