// Package annealing rebalances physics loss terms against the data term.
package annealing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kind selects the update rule.
type Kind string

const (
	// Hold keeps the constant fixed.
	Hold Kind = "hold"
	// GradientRatio moves the constant toward max|∇data| / mean|∇physics|.
	GradientRatio Kind = "gradient_ratio"
)

const epsilon = 1e-12

// Controller updates the adaptive constant once per training step.
type Controller struct {
	Kind Kind
	// Beta is the weight kept on the previous constant.
	Beta float64
	Min  float64
	Max  float64
}

// New returns a gradient-ratio controller when enabled, a Hold controller otherwise.
func New(enabled bool, beta float64) Controller {
	c := Controller{Kind: Hold, Beta: beta, Min: 1e-6, Max: 1e6}
	if enabled {
		c.Kind = GradientRatio
	}
	return c
}

func (c Controller) Validate() error {
	if c.Beta < 0 || c.Beta > 1 {
		return fmt.Errorf("beta %v outside [0, 1]", c.Beta)
	}
	if c.Min <= 0 || c.Max < c.Min {
		return fmt.Errorf("invalid clip range [%v, %v]", c.Min, c.Max)
	}
	return nil
}

// Update returns the next constant. dataGrads and physicsGrads are the
// gradients of the unscaled data and physics losses with respect to each
// weight; nil entries (weights the loss does not depend on) are skipped.
// Without physics gradients, or when the update is not finite, the constant
// is returned unchanged.
func (c Controller) Update(constant float64, dataGrads, physicsGrads []mat.Matrix) float64 {
	if c.Kind != GradientRatio {
		return constant
	}
	dataMax, _ := absStats(dataGrads)
	physMax, physMean := absStats(physicsGrads)
	if math.IsInf(physMax, -1) {
		return constant
	}
	if math.IsInf(dataMax, -1) {
		dataMax = 0
	}
	ratio := dataMax / math.Max(physMean, epsilon)
	next := c.Beta*constant + (1-c.Beta)*ratio
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return constant
	}
	return math.Min(math.Max(next, c.Min), c.Max)
}

// absStats returns the max and mean absolute element over all non-nil
// matrices. max is -Inf when there are no elements.
func absStats(ms []mat.Matrix) (maxAbs, mean float64) {
	maxAbs = math.Inf(-1)
	n := 0
	sum := 0.0
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, cols := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < cols; j++ {
				v := math.Abs(m.At(i, j))
				maxAbs = math.Max(maxAbs, v)
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return maxAbs, 0
	}
	return maxAbs, sum / float64(n)
}
