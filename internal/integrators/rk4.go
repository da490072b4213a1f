package integrators

import "github.com/san-kum/gravnn/internal/dynamo"

type RK4 struct {
	rk explicitRK
}

func NewRK4() *RK4 {
	return &RK4{rk: newExplicitRK(classic)}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	next, _ := r.rk.step(dyn, x, t, dt)
	return next
}
