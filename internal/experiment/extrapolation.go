package experiment

import (
	"math/rand/v2"
	"sort"

	"github.com/san-kum/gravnn/internal/gravity"
)

type ExtrapolationConfig struct {
	// RadiusMin and RadiusMax bound the training region.
	RadiusMin float64
	RadiusMax float64
	// Factor sets the outer edge of the extrapolation shell, Factor*RadiusMax.
	Factor    float64
	Points    int
	Window    int
	BatchSize int
	Seed      uint64
}

func DefaultExtrapolationConfig(rmin, rmax float64) ExtrapolationConfig {
	return ExtrapolationConfig{
		RadiusMin: rmin,
		RadiusMax: rmax,
		Factor:    10,
		Points:    500,
		Window:    50,
		Seed:      1234,
	}
}

// Extrapolation holds errors sorted by radius over the training shell and
// an equally sampled shell beyond it.
type Extrapolation struct {
	Radii         []float64
	Errors        Errors
	Trend         []float64
	Interpolation Summary
	Extrapolation Summary
}

func RunExtrapolation(pred Predictor, truth gravity.Model, cfg ExtrapolationConfig) (*Extrapolation, error) {
	if cfg.Points <= 0 {
		return nil, errEmpty
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	inner := gravity.SampleShell(rng, cfg.RadiusMin, cfg.RadiusMax, cfg.Points)
	outer := gravity.SampleShell(rng, cfg.RadiusMax, cfg.Factor*cfg.RadiusMax, cfg.Points)
	positions := append(inner, outer...)
	sort.Slice(positions, func(i, j int) bool { return norm(positions[i]) < norm(positions[j]) })

	data := gravity.Generate(truth, positions)
	errs, err := Compare(pred, data, cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	out := &Extrapolation{
		Radii:  make([]float64, len(positions)),
		Errors: errs,
		Trend:  Rolling(errs.Percent, cfg.Window, cfg.Window/2),
	}
	var in, ex []float64
	for i, p := range positions {
		out.Radii[i] = norm(p)
		if out.Radii[i] <= cfg.RadiusMax {
			in = append(in, errs.Percent[i])
		} else {
			ex = append(ex, errs.Percent[i])
		}
	}
	out.Interpolation = Summarize(in)
	out.Extrapolation = Summarize(ex)
	return out, nil
}
