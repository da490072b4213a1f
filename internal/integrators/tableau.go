package integrators

import (
	"math"

	"github.com/san-kum/gravnn/internal/dynamo"
)

// tableau is an explicit Runge-Kutta Butcher tableau. e holds the weights
// minus the embedded lower-order weights; it is nil for fixed-step methods.
type tableau struct {
	c []float64
	a [][]float64
	b []float64
	e []float64
}

var classic = tableau{
	c: []float64{0, 0.5, 0.5, 1},
	a: [][]float64{nil, {0.5}, {0, 0.5}, {0, 0, 1}},
	b: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
}

// Dormand-Prince 5(4). The last stage is evaluated at the new state.
var dormandPrince = tableau{
	c: []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
	a: [][]float64{
		nil,
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	},
	b: []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
	e: []float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	},
}

type explicitRK struct {
	tb      tableau
	k       []dynamo.State
	scratch dynamo.State
}

func newExplicitRK(tb tableau) explicitRK {
	return explicitRK{tb: tb, k: make([]dynamo.State, len(tb.c))}
}

// step advances x by dt and returns the new state with the scaled maximum
// error estimate (zero without embedded weights).
func (r *explicitRK) step(dyn dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, float64) {
	n := len(x)
	if len(r.scratch) != n {
		r.scratch = make(dynamo.State, n)
	}

	for s := range r.tb.c {
		copy(r.scratch, x)
		for j, aij := range r.tb.a[s] {
			if aij == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				r.scratch[i] += dt * aij * r.k[j][i]
			}
		}
		r.k[s] = dyn.Derive(r.scratch, t+r.tb.c[s]*dt)
	}

	result := x.Clone()
	for s, bs := range r.tb.b {
		if bs == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			result[i] += dt * bs * r.k[s][i]
		}
	}

	if r.tb.e == nil {
		return result, 0
	}
	errMax := 0.0
	for i := 0; i < n; i++ {
		est := 0.0
		for s, es := range r.tb.e {
			est += es * r.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*r.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*est)/scale)
	}
	return result, errMax
}
