package experiment

import (
	"math"

	"github.com/san-kum/gravnn/internal/gravity"
)

type PlanesConfig struct {
	// Normal is the axis perpendicular to the slice: 0, 1 or 2.
	Normal  int
	Extent  float64
	Samples int
	// MinRadius masks the interior, where the truth is singular or the
	// body is solid.
	MinRadius float64
	BatchSize int
}

// Planes is a Samples×Samples grid of acceleration percent errors, row
// major. Masked points are NaN.
type Planes struct {
	Samples   int
	Extent    float64
	Positions [][3]float64
	Percent   []float64
	Summary   Summary
}

// At returns the error at grid row i, column j.
func (p *Planes) At(i, j int) float64 { return p.Percent[i*p.Samples+j] }

func RunPlanes(pred Predictor, truth gravity.Model, cfg PlanesConfig) (*Planes, error) {
	if cfg.Samples <= 0 {
		return nil, errEmpty
	}
	grid := gravity.Plane(cfg.Normal, cfg.Extent, cfg.Samples)

	var idx []int
	var positions [][3]float64
	for i, p := range grid {
		if norm(p) >= cfg.MinRadius && norm(p) > 0 {
			idx = append(idx, i)
			positions = append(positions, p)
		}
	}
	if len(positions) == 0 {
		return nil, errEmpty
	}

	errs, err := Compare(pred, gravity.Generate(truth, positions), cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	out := &Planes{
		Samples:   cfg.Samples,
		Extent:    cfg.Extent,
		Positions: grid,
		Percent:   make([]float64, len(grid)),
	}
	for i := range out.Percent {
		out.Percent[i] = math.NaN()
	}
	for k, i := range idx {
		out.Percent[i] = errs.Percent[k]
	}
	out.Summary = Summarize(out.Percent)
	return out, nil
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
