package losses

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/gravnn/internal/autodiff"
	"github.com/san-kum/gravnn/internal/constraints"
	"gonum.org/v1/gonum/mat"
)

func TestParse(t *testing.T) {
	for _, name := range Names() {
		if _, err := Parse(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := Parse("mse"); !errors.Is(err, ErrUnknown) {
		t.Errorf("got %v, want ErrUnknown", err)
	}
}

func TestRMSAndPercent(t *testing.T) {
	g := autodiff.New()
	pred := g.Leaf(mat.NewDense(2, 3, []float64{1, 0, 0, 0, 2, 0}))
	target := g.Leaf(mat.NewDense(2, 3, []float64{2, 0, 0, 0, 2, 0}))

	rms := RMS(g, Residual(g, pred, target))
	if want := math.Sqrt(0.5); math.Abs(rms.Scalar()-want) > 1e-9 {
		t.Errorf("rms = %v, want %v", rms.Scalar(), want)
	}
	pct := Percent(g, pred, target)
	if got := pct.Value().At(0, 0); math.Abs(got-50) > 1e-6 {
		t.Errorf("percent row 0 = %v, want 50", got)
	}
	if got := pct.Value().At(1, 0); math.Abs(got) > 1e-6 {
		t.Errorf("percent row 1 = %v, want 0", got)
	}
}

func scalars(g *autodiff.Graph, vals map[constraints.Term]float64) map[constraints.Term]*autodiff.Node {
	out := make(map[constraints.Term]*autodiff.Node, len(vals))
	for t, v := range vals {
		out[t] = g.Fill(1, 1, v)
	}
	return out
}

func TestCombine(t *testing.T) {
	terms := []constraints.Term{constraints.Acceleration, constraints.Laplacian, constraints.Curl}
	vals := map[constraints.Term]float64{
		constraints.Acceleration: 1,
		constraints.Laplacian:    2,
		constraints.Curl:         3,
	}
	tests := []struct {
		kind Kind
		want float64
	}{
		{RMSSummed, 6},
		{AvgRMSSummed, 2},
		{PercentSummed, 0.4 + 2 + 3},
		{AvgPercentSummed, (0.4 + 2 + 3) / 3},
		{PercentRMSSummed, 6.4},
		{AvgPercentRMSSummed, 6.4 / 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			g := autodiff.New()
			pct := g.Fill(4, 1, 40)
			got := tt.kind.Combine(g, terms, scalars(g, vals), pct).Scalar()
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCombineMonotone(t *testing.T) {
	terms := []constraints.Term{constraints.Acceleration, constraints.Laplacian}
	for _, name := range Names() {
		k := Kind(name)
		g := autodiff.New()
		base := map[constraints.Term]float64{constraints.Acceleration: 0.5, constraints.Laplacian: 0.5}
		l0 := k.Combine(g, terms, scalars(g, base), g.Fill(2, 1, 10)).Scalar()
		for _, term := range terms {
			bumped := map[constraints.Term]float64{constraints.Acceleration: 0.5, constraints.Laplacian: 0.5}
			bumped[term] += 1
			if l1 := k.Combine(g, terms, scalars(g, bumped), g.Fill(2, 1, 10)).Scalar(); l1 < l0 {
				t.Errorf("%s decreased when %s grew: %v -> %v", k, term, l0, l1)
			}
		}
		if l1 := k.Combine(g, terms, scalars(g, base), g.Fill(2, 1, 20)).Scalar(); l1 < l0 {
			t.Errorf("%s decreased when percent grew", k)
		}
	}
}

func TestComputeUsesDeclaredTerms(t *testing.T) {
	c, _ := constraints.Parse("pinn_al")
	g := autodiff.New()
	pred := map[constraints.Term]*autodiff.Node{
		constraints.Acceleration: g.Fill(3, 3, 1),
		constraints.Laplacian:    g.Fill(3, 1, 2),
	}
	targets := c.Targets(g, g.Fill(3, 3, 1))
	comp := Compute(g, c, pred, targets)
	if len(comp.RMS) != 2 {
		t.Fatalf("got %d rms terms", len(comp.RMS))
	}
	if math.Abs(comp.RMS[constraints.Laplacian].Scalar()-2) > 1e-9 {
		t.Errorf("laplacian rms = %v", comp.RMS[constraints.Laplacian].Scalar())
	}
	if math.Abs(comp.RMS[constraints.Acceleration].Scalar()) > 1e-9 {
		t.Errorf("acceleration rms = %v", comp.RMS[constraints.Acceleration].Scalar())
	}
}
