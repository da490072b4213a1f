package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the Adam optimizer with bias correction.
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64

	t    int
	m, v []*mat.Dense
}

func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7}
}

// Iterations returns the number of applied steps.
func (a *Adam) Iterations() int { return a.t }

// Step updates params in place. A nil gradient leaves its parameter and
// moment estimates untouched.
func (a *Adam) Step(params []*mat.Dense, grads []mat.Matrix) {
	if a.m == nil {
		a.m = make([]*mat.Dense, len(params))
		a.v = make([]*mat.Dense, len(params))
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range params {
		grad := grads[i]
		if grad == nil {
			continue
		}
		if a.m[i] == nil {
			r, c := p.Dims()
			a.m[i] = mat.NewDense(r, c, nil)
			a.v[i] = mat.NewDense(r, c, nil)
		}
		m, v := a.m[i], a.v[i]
		m.Apply(func(r, c int, old float64) float64 {
			return a.Beta1*old + (1-a.Beta1)*grad.At(r, c)
		}, m)
		v.Apply(func(r, c int, old float64) float64 {
			g := grad.At(r, c)
			return a.Beta2*old + (1-a.Beta2)*g*g
		}, v)
		p.Apply(func(r, c int, w float64) float64 {
			mHat := m.At(r, c) / c1
			vHat := v.At(r, c) / c2
			return w - a.LR*mHat/(math.Sqrt(vHat)+a.Epsilon)
		}, p)
	}
}

// Reset clears the moment estimates and the step count.
func (a *Adam) Reset() {
	a.t = 0
	a.m, a.v = nil, nil
}
