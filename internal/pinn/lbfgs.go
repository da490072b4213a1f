package pinn

import (
	"context"
	"math"
	"slices"

	"github.com/san-kum/gravnn/internal/dataset"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// LBFGSResult summarizes a fine-tuning run.
type LBFGSResult struct {
	Iterations  int
	Evaluations int
	Initial     float64
	Loss        float64
	Status      string
}

// Optimize fine-tunes the weights with L-BFGS on the full data set, using
// the same loss as training with the adaptive constant held fixed. It is far
// slower per step than Adam and meant for polishing a trained model.
func (m *Model) Optimize(ctx context.Context, data dataset.Data, iterations int) (LBFGSResult, error) {
	if err := data.Validate(); err != nil {
		return LBFGSResult{}, err
	}
	if !m.transforms.Fitted() {
		if err := m.fitTransforms(data); err != nil {
			return LBFGSResult{}, err
		}
	}
	x, a, err := m.networkUnits(data)
	if err != nil {
		return LBFGSResult{}, err
	}
	x, a = m.precision(x), m.precision(a)

	tr := m.record(x, a, true)
	tr.lossScale.Value().Set(0, 0, 1)
	params := m.net.Params()
	init := flatten(params)
	var last []float64

	eval := func(theta []float64) {
		if slices.Equal(theta, last) {
			return
		}
		unflatten(theta, params)
		tr.g.Replay()
		last = append(last[:0], theta...)
	}
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			if ctx.Err() != nil {
				return math.NaN()
			}
			eval(theta)
			return tr.loss.Scalar()
		},
		Grad: func(grad, theta []float64) {
			eval(theta)
			off := 0
			for i, p := range params {
				r, c := p.Dims()
				n := r * c
				if g := tr.grads[i]; g != nil {
					copy(grad[off:off+n], g.Value().RawMatrix().Data)
				} else {
					clear(grad[off : off+n])
				}
				off += n
			}
		},
	}

	eval(init)
	res := LBFGSResult{Initial: tr.loss.Scalar()}
	if !finite(res.Initial) {
		return res, divergence(tr, m.metrics(tr))
	}
	settings := &optimize.Settings{
		MajorIterations:   iterations,
		GradientThreshold: 1e-12,
	}
	result, err := optimize.Minimize(problem, init, settings, &optimize.LBFGS{})
	if cerr := ctx.Err(); cerr != nil {
		unflatten(init, params)
		return res, cerr
	}
	if result == nil || !finite(result.F) || result.F > res.Initial {
		unflatten(init, params)
		if err != nil {
			m.logger.Warn("l-bfgs did not improve the loss", "err", err)
		}
		res.Loss = res.Initial
		return res, nil
	}
	if err != nil {
		m.logger.Debug("l-bfgs stopped", "status", result.Status, "err", err)
	}
	unflatten(result.X, params)
	if m.singlePrecision() {
		m.net.RoundFloat32()
	}
	res.Iterations = result.Stats.MajorIterations
	res.Evaluations = result.Stats.FuncEvaluations
	res.Loss = result.F
	res.Status = result.Status.String()
	m.logger.Info("l-bfgs finished", "iterations", res.Iterations, "initial", res.Initial, "loss", res.Loss)
	return res, nil
}

func flatten(params []*mat.Dense) []float64 {
	var out []float64
	for _, p := range params {
		out = append(out, p.RawMatrix().Data...)
	}
	return out
}

func unflatten(theta []float64, params []*mat.Dense) {
	off := 0
	for _, p := range params {
		raw := p.RawMatrix().Data
		copy(raw, theta[off:off+len(raw)])
		off += len(raw)
	}
}
