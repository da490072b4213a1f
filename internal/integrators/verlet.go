package integrators

import "github.com/san-kum/gravnn/internal/dynamo"

// Verlet is velocity Verlet. The state must be positions followed by
// velocities of equal length, with accelerations independent of velocity.
type Verlet struct{}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Step(dyn dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	half := len(x) / 2
	a0 := dyn.Derive(x, t)

	next := x.Clone()
	for i := 0; i < half; i++ {
		next[i] += dt*x[half+i] + 0.5*dt*dt*a0[half+i]
	}

	a1 := dyn.Derive(next, t+dt)
	for i := 0; i < half; i++ {
		next[half+i] += 0.5 * dt * (a0[half+i] + a1[half+i])
	}
	return next
}

// Leapfrog is the drift-kick-drift form, one field evaluation per step.
type Leapfrog struct{}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) Step(dyn dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	half := len(x) / 2

	next := x.Clone()
	for i := 0; i < half; i++ {
		next[i] += 0.5 * dt * x[half+i]
	}

	a := dyn.Derive(next, t+0.5*dt)
	for i := 0; i < half; i++ {
		next[half+i] += dt * a[half+i]
		next[i] += 0.5 * dt * next[half+i]
	}
	return next
}
