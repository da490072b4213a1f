package pinn

import (
	"math"

	"github.com/san-kum/gravnn/internal/annealing"
	"github.com/san-kum/gravnn/internal/autodiff"
	"github.com/san-kum/gravnn/internal/constraints"
	"github.com/san-kum/gravnn/internal/losses"
	"gonum.org/v1/gonum/mat"
)

// Metrics summarizes one step.
type Metrics struct {
	Loss              float64            `json:"loss" yaml:"loss"`
	PercentMean       float64            `json:"percent_mean" yaml:"percent_mean"`
	PercentMax        float64            `json:"percent_max" yaml:"percent_max"`
	LossComponents    map[string]float64 `json:"loss_components" yaml:"loss_components"`
	PercentComponents map[string]float64 `json:"percent_components" yaml:"percent_components"`
	AdaptiveConstant  float64            `json:"adaptive_constant" yaml:"adaptive_constant"`
	// Skipped is set when a dynamic loss scaler rejected the update.
	Skipped bool `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// trace is one recorded step graph. The compiled path keeps traces per batch
// size and replays them; the interpreted path records a fresh one per call.
type trace struct {
	g         *autodiff.Graph
	x, a      *autodiff.Node
	lossScale *autodiff.Node
	params    []*autodiff.Node

	loss    *autodiff.Node
	rms     map[constraints.Term]*autodiff.Node
	percent *autodiff.Node

	grads     []*autodiff.Node
	dataGrads []*autodiff.Node
	physGrads []*autodiff.Node
}

func (m *Model) record(x, a *mat.Dense, training bool) *trace {
	g := autodiff.New()
	tr := &trace{
		g:         g,
		x:         g.Leaf(mat.DenseCopyOf(x)),
		a:         g.Leaf(mat.DenseCopyOf(a)),
		lossScale: g.Leaf(mat.NewDense(1, 1, []float64{m.scaler.Scale()})),
	}
	bound := m.net.Bind(g)
	tr.params = bound.Params
	constant := g.Leaf(m.adaptive)

	pred := m.constraint.Evaluate(g, bound.Forward, tr.x)
	comp := losses.Compute(g, m.constraint, pred.Terms, m.constraint.Targets(g, tr.a))
	tr.rms, tr.percent = comp.RMS, comp.Percent
	scaled := constraints.ScaleTerms(g, comp.RMS, constant)
	tr.loss = m.loss.Combine(g, m.constraint.Terms, scaled, comp.Percent)
	if !training {
		return tr
	}

	tr.grads = g.Grad(g.Mul(tr.loss, tr.lossScale), tr.params...)
	if phys := m.constraint.PhysicsTerms(); m.annealer.Kind == annealing.GradientRatio && len(phys) > 0 {
		tr.dataGrads = g.Grad(comp.RMS[constraints.Acceleration], tr.params...)
		total := comp.RMS[phys[0]]
		for _, t := range phys[1:] {
			total = g.Add(total, comp.RMS[t])
		}
		tr.physGrads = g.Grad(total, tr.params...)
	}
	return tr
}

// prepare returns a trace evaluated on (x, a) with the current weights.
func (m *Model) prepare(x, a *mat.Dense, training bool) *trace {
	if !m.compiled {
		return m.record(x, a, training)
	}
	cache := m.evalTraces
	if training {
		cache = m.trainTraces
	}
	rows, _ := x.Dims()
	tr, ok := cache[rows]
	if !ok {
		tr = m.record(x, a, training)
		cache[rows] = tr
		return tr
	}
	tr.x.Set(x)
	tr.a.Set(a)
	tr.lossScale.Value().Set(0, 0, m.scaler.Scale())
	tr.g.Replay()
	return tr
}

// TrainStep runs one optimization step on a batch in network units. On a
// non-finite loss it returns a *DivergenceError and leaves the weights
// untouched.
func (m *Model) TrainStep(x, a *mat.Dense) (Metrics, error) {
	x, a = m.precision(x), m.precision(a)
	tr := m.prepare(x, a, true)
	metrics := m.metrics(tr)
	if err := divergence(tr, metrics); err != nil {
		return metrics, err
	}

	grads := values(tr.grads)
	finite := m.scaler.Unscale(grads)
	if !m.scaler.Update(finite) {
		if !m.scaler.Dynamic {
			return metrics, &DivergenceError{Component: "gradient", Value: math.NaN()}
		}
		m.logger.Debug("skipping step with overflowed gradients", "loss_scale", m.scaler.Scale())
		metrics.Skipped = true
		return metrics, nil
	}

	if tr.physGrads != nil {
		next := m.annealer.Update(m.AdaptiveConstant(), matrices(values(tr.dataGrads)), matrices(values(tr.physGrads)))
		m.adaptive.Set(0, 0, next)
	}
	m.optimizer.Step(m.net.Params(), matrices(grads))
	if m.singlePrecision() {
		m.net.RoundFloat32()
	}
	metrics.AdaptiveConstant = m.AdaptiveConstant()
	return metrics, nil
}

// EvalStep computes the metrics of a batch without touching the weights or
// the adaptive constant.
func (m *Model) EvalStep(x, a *mat.Dense) (Metrics, error) {
	x, a = m.precision(x), m.precision(a)
	tr := m.prepare(x, a, false)
	metrics := m.metrics(tr)
	return metrics, divergence(tr, metrics)
}

func (m *Model) metrics(tr *trace) Metrics {
	pct := tr.percent.Value()
	rows, _ := pct.Dims()
	out := Metrics{
		Loss:              tr.loss.Scalar(),
		PercentMean:       mat.Sum(pct) / float64(rows),
		PercentMax:        mat.Max(pct),
		LossComponents:    make(map[string]float64, len(tr.rms)),
		PercentComponents: make(map[string]float64, 1),
		AdaptiveConstant:  m.AdaptiveConstant(),
	}
	for _, t := range m.constraint.Terms {
		out.LossComponents[string(t)] = tr.rms[t].Scalar()
	}
	out.PercentComponents[string(constraints.Acceleration)] = out.PercentMean
	return out
}

func divergence(tr *trace, metrics Metrics) error {
	if finite(metrics.Loss) {
		return nil
	}
	for term, n := range tr.rms {
		if v := n.Scalar(); !finite(v) {
			return &DivergenceError{Component: string(term), Value: v}
		}
	}
	if !finite(metrics.PercentMean) {
		return &DivergenceError{Component: "percent", Value: metrics.PercentMean}
	}
	return &DivergenceError{Component: "loss", Value: metrics.Loss}
}

func (m *Model) precision(v *mat.Dense) *mat.Dense {
	if !m.singlePrecision() {
		return v
	}
	out := mat.DenseCopyOf(v)
	out.Apply(func(_, _ int, f float64) float64 { return float64(float32(f)) }, out)
	return out
}

// values copies gradient nodes out of the graph so later replays cannot
// overwrite them. Nil nodes stay nil.
func values(nodes []*autodiff.Node) []*mat.Dense {
	out := make([]*mat.Dense, len(nodes))
	for i, n := range nodes {
		if n != nil {
			out[i] = mat.DenseCopyOf(n.Value())
		}
	}
	return out
}

// matrices converts to interfaces while keeping nil entries nil.
func matrices(ds []*mat.Dense) []mat.Matrix {
	out := make([]mat.Matrix, len(ds))
	for i, d := range ds {
		if d != nil {
			out[i] = d
		}
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
