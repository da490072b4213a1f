package annealing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func grads(vals ...float64) []mat.Matrix {
	return []mat.Matrix{mat.NewDense(1, len(vals), vals)}
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name     string
		beta     float64
		constant float64
		data     []mat.Matrix
		physics  []mat.Matrix
		want     float64
	}{
		{"ratio", 0.9, 1, grads(4, -2), grads(1, -1), 0.9*1 + 0.1*4},
		{"beta one keeps constant", 1, 1, grads(4, -2), grads(1, -1), 1},
		{"beta zero takes fresh ratio", 0, 1, grads(4, -2), grads(1, -1), 4},
		{"zero physics gradient uses epsilon floor", 0.9, 1, grads(1), grads(0, 0), 1e3},
		{"no physics terms", 0.9, 2, grads(5), nil, 2},
		{"nil entries skipped", 0.9, 1, append(grads(3), nil), append(grads(-3), nil), 0.9 + 0.1},
		{"zero data gradient decays", 0.9, 1, grads(0), grads(1), 0.9},
		{"clip low", 0.9, 1e-3, grads(0), grads(1), 1e-3},
		{"non-finite keeps old", 0.9, 1.5, grads(math.NaN()), grads(1), 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Controller{Kind: GradientRatio, Beta: tt.beta, Min: 1e-3, Max: 1e3}
			got := c.Update(tt.constant, tt.data, tt.physics)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateBetaExtremesOverSteps(t *testing.T) {
	steps := []struct {
		data, physics []mat.Matrix
		ratio         float64
	}{
		{grads(4, -2), grads(1, -1), 4},
		{grads(1), grads(0.5), 2},
		{grads(-9, 3), grads(3, -3), 3},
	}

	frozen := Controller{Kind: GradientRatio, Beta: 1, Min: 1e-3, Max: 1e3}
	fresh := Controller{Kind: GradientRatio, Beta: 0, Min: 1e-3, Max: 1e3}
	kept, last := 0.7, 0.7
	for i, s := range steps {
		kept = frozen.Update(kept, s.data, s.physics)
		if kept != 0.7 {
			t.Fatalf("step %d: beta=1 changed constant to %v", i, kept)
		}
		last = fresh.Update(last, s.data, s.physics)
		if math.Abs(last-s.ratio) > 1e-12 {
			t.Fatalf("step %d: beta=0 gave %v, want ratio %v", i, last, s.ratio)
		}
	}
}

func TestHold(t *testing.T) {
	c := New(false, 0.5)
	if got := c.Update(3, grads(100), grads(1)); got != 3 {
		t.Errorf("hold changed constant to %v", got)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
	if err := (Controller{Kind: GradientRatio, Beta: 2, Min: 1, Max: 2}).Validate(); err == nil {
		t.Error("expected beta validation error")
	}
}
