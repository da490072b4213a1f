// Package experiment measures a learned field against ground truth: error
// versus radius, error over planar slices, and orbit propagation.
package experiment

import (
	"errors"
	"math"
	"sort"

	"github.com/san-kum/gravnn/internal/dataset"
	"github.com/san-kum/gravnn/internal/gravity"
	"github.com/san-kum/gravnn/internal/pinn"
	"gonum.org/v1/gonum/stat"
)

// Predictor is a batched gravity field. *pinn.Model satisfies it.
type Predictor interface {
	Potential(positions [][3]float64) ([]float64, error)
	Acceleration(positions [][3]float64, batchSize int) ([][3]float64, error)
}

// Exact serves a ground-truth model through the Predictor interface.
type Exact struct {
	Model gravity.Model
}

func (e Exact) Potential(positions [][3]float64) ([]float64, error) {
	out := make([]float64, len(positions))
	for i, x := range positions {
		out[i] = e.Model.Potential(x)
	}
	return out, nil
}

func (e Exact) Acceleration(positions [][3]float64, _ int) ([][3]float64, error) {
	out := make([][3]float64, len(positions))
	for i, x := range positions {
		out[i] = e.Model.Acceleration(x)
	}
	return out, nil
}

// Field evaluates a Predictor one position at a time for propagation.
type Field struct {
	Predictor Predictor
}

func (f Field) Acceleration(x [3]float64) ([3]float64, error) {
	a, err := f.Predictor.Acceleration([][3]float64{x}, 1)
	if err != nil {
		return [3]float64{}, err
	}
	return a[0], nil
}

func (f Field) Potential(x [3]float64) (float64, error) {
	u, err := f.Predictor.Potential([][3]float64{x})
	if err != nil {
		return 0, err
	}
	return u[0], nil
}

// TruthField adapts a ground-truth model for propagation.
type TruthField struct {
	Model gravity.Model
}

func (f TruthField) Acceleration(x [3]float64) ([3]float64, error) {
	return f.Model.Acceleration(x), nil
}

func (f TruthField) Potential(x [3]float64) (float64, error) {
	return f.Model.Potential(x), nil
}

// Errors holds per-sample errors of a prediction. PotentialPercent is nil
// when the predictor has no potential.
type Errors struct {
	Percent          []float64
	RMS              []float64
	PotentialPercent []float64
}

// Compare evaluates pred on the positions of truth.
func Compare(pred Predictor, truth dataset.Data, batchSize int) (Errors, error) {
	a, err := pred.Acceleration(truth.X, batchSize)
	if err != nil {
		return Errors{}, err
	}
	e := Errors{
		Percent: make([]float64, len(a)),
		RMS:     make([]float64, len(a)),
	}
	for i := range a {
		diff, mag := 0.0, 0.0
		for j := 0; j < 3; j++ {
			d := a[i][j] - truth.A[i][j]
			diff += d * d
			mag += truth.A[i][j] * truth.A[i][j]
		}
		e.RMS[i] = math.Sqrt(diff)
		e.Percent[i] = 100 * math.Sqrt(diff) / math.Sqrt(mag)
	}

	u, err := pred.Potential(truth.X)
	if errors.Is(err, pinn.ErrConfiguration) {
		// Acceleration-only networks have no potential to compare.
		return e, nil
	}
	if err != nil {
		return Errors{}, err
	}
	e.PotentialPercent = make([]float64, len(u))
	for i := range u {
		e.PotentialPercent[i] = 100 * math.Abs(u[i]-truth.U[i]) / math.Abs(truth.U[i])
	}
	return e, nil
}

// Summary is a set of descriptive statistics over finite values.
type Summary struct {
	N      int
	Mean   float64
	Std    float64
	Median float64
	Max    float64
}

func Summarize(values []float64) Summary {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return Summary{Mean: math.NaN(), Std: math.NaN(), Median: math.NaN(), Max: math.NaN()}
	}
	sort.Float64s(finite)
	s := Summary{N: len(finite), Max: finite[len(finite)-1]}
	s.Mean, s.Std = stat.MeanStdDev(finite, nil)
	if len(finite) == 1 {
		s.Std = 0
	}
	s.Median = stat.Quantile(0.5, stat.Empirical, finite, nil)
	return s
}

// Rolling returns the windowed mean of values; entries with fewer than
// minPeriods observations in their window are NaN.
func Rolling(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	sum, count := 0.0, 0
	for i, v := range values {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
		if j := i - window; j >= 0 && !math.IsNaN(values[j]) {
			sum -= values[j]
			count--
		}
		if count >= minPeriods && count > 0 {
			out[i] = sum / float64(count)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

var errEmpty = errors.New("experiment: no sample points")
