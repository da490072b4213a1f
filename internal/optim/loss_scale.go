package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LossScaler multiplies the loss before differentiation so small gradients
// survive reduced precision, and divides the gradients afterwards. A dynamic
// scaler halves its scale and asks for the step to be skipped whenever the
// gradients overflow, and doubles it after GrowthInterval clean steps.
type LossScaler struct {
	Dynamic        bool
	GrowthInterval int

	scale float64
	good  int
}

// NewLossScaler returns a fixed scaler of 1 unless dynamic is set.
func NewLossScaler(dynamic bool, initial float64) *LossScaler {
	if !dynamic || initial <= 0 {
		initial = 1
	}
	return &LossScaler{Dynamic: dynamic, GrowthInterval: 2000, scale: initial}
}

func (s *LossScaler) Scale() float64 { return s.scale }

// Unscale divides the gradients in place and reports whether all of them
// are finite. Nil gradients are ignored.
func (s *LossScaler) Unscale(grads []*mat.Dense) bool {
	finite := true
	inv := 1 / s.scale
	for _, g := range grads {
		if g == nil {
			continue
		}
		g.Apply(func(_, _ int, v float64) float64 {
			v *= inv
			if math.IsNaN(v) || math.IsInf(v, 0) {
				finite = false
			}
			return v
		}, g)
	}
	return finite
}

// Update adjusts the scale after a step and reports whether the step should
// be applied.
func (s *LossScaler) Update(finite bool) bool {
	if !s.Dynamic {
		return finite
	}
	if !finite {
		s.scale = math.Max(s.scale/2, 1)
		s.good = 0
		return false
	}
	s.good++
	if s.good >= s.GrowthInterval {
		s.scale *= 2
		s.good = 0
	}
	return true
}
