// Package losses turns term residuals into per-term RMS and percent errors
// and combines them into the scalar that is minimized.
package losses

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/gravnn/internal/autodiff"
	"github.com/san-kum/gravnn/internal/constraints"
)

var ErrUnknown = errors.New("unknown loss")

// floor keeps square roots differentiable at zero residual.
const floor = 1e-20

type Kind string

const (
	RMSSummed           Kind = "rms_summed"
	AvgRMSSummed        Kind = "avg_rms_summed"
	PercentSummed       Kind = "percent_summed"
	AvgPercentSummed    Kind = "avg_percent_summed"
	PercentRMSSummed    Kind = "percent_rms_summed"
	AvgPercentRMSSummed Kind = "avg_percent_rms_summed"
)

var kinds = map[Kind]struct {
	rms, percent, avg bool
}{
	RMSSummed:           {rms: true},
	AvgRMSSummed:        {rms: true, avg: true},
	PercentSummed:       {percent: true},
	AvgPercentSummed:    {percent: true, avg: true},
	PercentRMSSummed:    {rms: true, percent: true},
	AvgPercentRMSSummed: {rms: true, percent: true, avg: true},
}

func Parse(name string) (Kind, error) {
	if _, ok := kinds[Kind(name)]; !ok {
		return "", fmt.Errorf("%w %q (have %v)", ErrUnknown, name, Names())
	}
	return Kind(name), nil
}

func Names() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// Residual is the per-sample squared error, B×1.
func Residual(g *autodiff.Graph, pred, target *autodiff.Node) *autodiff.Node {
	return g.SumCols(g.Square(g.Sub(pred, target)))
}

// RMS reduces a per-sample residual to sqrt(mean), 1×1.
func RMS(g *autodiff.Graph, residual *autodiff.Node) *autodiff.Node {
	return g.Sqrt(g.AddConst(g.Mean(residual), floor))
}

// Percent is the per-sample relative error |pred − target| / |target| · 100, B×1.
func Percent(g *autodiff.Graph, pred, target *autodiff.Node) *autodiff.Node {
	diff := g.Sqrt(g.AddConst(Residual(g, pred, target), floor))
	norm := g.AddConst(g.Sqrt(g.AddConst(g.SumCols(g.Square(target)), floor)), floor)
	return g.Scale(g.Div(diff, norm), 100)
}

// Components are the per-term errors of one batch.
type Components struct {
	Terms []constraints.Term
	// RMS holds a 1×1 node per present term.
	RMS map[constraints.Term]*autodiff.Node
	// Percent is the per-sample acceleration percent error, B×1. Physics
	// terms have zero targets, so percent error is not defined for them.
	Percent *autodiff.Node
}

// Compute evaluates RMS and percent errors for every term of c.
func Compute(g *autodiff.Graph, c constraints.Constraint, pred, targets map[constraints.Term]*autodiff.Node) Components {
	comp := Components{
		Terms: c.Terms,
		RMS:   make(map[constraints.Term]*autodiff.Node, len(c.Terms)),
	}
	for _, t := range c.Terms {
		comp.RMS[t] = RMS(g, Residual(g, pred[t], targets[t]))
	}
	comp.Percent = Percent(g, pred[constraints.Acceleration], targets[constraints.Acceleration])
	return comp
}

// Combine reduces term losses to the scalar objective. rms may already be
// scaled by the adaptive constant. Every combination is a non-negative
// weighted sum of its inputs, so it never decreases when one of them grows.
func (k Kind) Combine(g *autodiff.Graph, terms []constraints.Term, rms map[constraints.Term]*autodiff.Node, percent *autodiff.Node) *autodiff.Node {
	spec := kinds[k]
	var parts []*autodiff.Node
	for _, t := range terms {
		if t == constraints.Acceleration && !spec.rms {
			continue
		}
		parts = append(parts, rms[t])
	}
	if spec.percent && percent != nil {
		parts = append(parts, g.Scale(g.Mean(percent), 0.01))
	}
	if len(parts) == 0 {
		return g.Fill(1, 1, 0)
	}
	total := parts[0]
	for _, p := range parts[1:] {
		total = g.Add(total, p)
	}
	if spec.avg {
		total = g.Scale(total, 1/float64(len(parts)))
	}
	return total
}
