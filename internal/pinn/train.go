package pinn

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/san-kum/gravnn/internal/dataset"
	"github.com/san-kum/gravnn/internal/transform"
	"gonum.org/v1/gonum/mat"
)

// EpochRecord is one entry of the training history.
type EpochRecord struct {
	Epoch      int      `json:"epoch" yaml:"epoch"`
	Train      Metrics  `json:"train" yaml:"train"`
	Validation *Metrics `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// History is the append-only record of a training run.
type History struct {
	Epochs  []EpochRecord `json:"epochs" yaml:"epochs"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Losses returns the training loss per epoch.
func (h *History) Losses() []float64 {
	out := make([]float64, len(h.Epochs))
	for i, e := range h.Epochs {
		out[i] = e.Train.Loss
	}
	return out
}

// Last returns the final record, or false when the history is empty.
func (h *History) Last() (EpochRecord, bool) {
	if len(h.Epochs) == 0 {
		return EpochRecord{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

type TrainOptions struct {
	Epochs    int
	BatchSize int
	Shuffle   bool
	Seed      uint64
	// Validation is evaluated at the end of every epoch when not empty.
	Validation dataset.Data
	// OnEpochEnd runs after each epoch. Returning ErrStopTraining ends the
	// run without error; any other error aborts it.
	OnEpochEnd func(EpochRecord) error
	// LogEvery controls how often progress is logged, in epochs.
	LogEvery int
}

// TrainOptionsFromConfig fills options from the model configuration.
func (m *Model) TrainOptionsFromConfig() TrainOptions {
	return TrainOptions{
		Epochs:    m.cfg.Training.Epochs,
		BatchSize: m.cfg.Training.BatchSize,
		Shuffle:   true,
		Seed:      m.cfg.Training.Seed,
		LogEvery:  max(1, m.cfg.Training.Epochs/10),
	}
}

// Fit trains on data in physical units. Transformers that are not fitted yet
// are fitted on data using the configured scaler kind.
func (m *Model) Fit(ctx context.Context, data dataset.Data, opts TrainOptions) (*History, error) {
	if err := data.Validate(); err != nil {
		return m.history, err
	}
	if !m.transforms.Fitted() {
		if err := m.fitTransforms(data); err != nil {
			return m.history, err
		}
	}
	x, a, err := m.networkUnits(data)
	if err != nil {
		return m.history, err
	}
	var vx, va *mat.Dense
	if opts.Validation.Len() > 0 {
		if err := opts.Validation.Validate(); err != nil {
			return m.history, fmt.Errorf("validation data: %w", err)
		}
		if vx, va, err = m.networkUnits(opts.Validation); err != nil {
			return m.history, err
		}
	}

	var rng *rand.Rand
	if opts.Shuffle {
		rng = rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))
	}
	logEvery := max(opts.LogEvery, 1)
	start := time.Now()
	defer func() { m.history.Elapsed += time.Since(start) }()

	m.logger.Info("training started",
		"constraint", m.constraint.Kind,
		"loss", m.loss,
		"compiled", m.compiled,
		"samples", data.Len(),
		"epochs", opts.Epochs,
	)
	first := len(m.history.Epochs)
	for epoch := first; epoch < first+opts.Epochs; epoch++ {
		var sums Metrics
		var seen int
		for step, idx := range dataset.Batches(data.Len(), opts.BatchSize, rng) {
			if err := ctx.Err(); err != nil {
				return m.history, err
			}
			metrics, err := m.TrainStep(rows(x, idx), rows(a, idx))
			if err != nil {
				var div *DivergenceError
				if errors.As(err, &div) {
					div.Epoch, div.Step = epoch, step
					m.logger.Error("training diverged", "epoch", epoch, "step", step, "component", div.Component)
				}
				return m.history, err
			}
			accumulate(&sums, metrics, len(idx))
			seen += len(idx)
		}
		rec := EpochRecord{Epoch: epoch, Train: average(sums, seen)}
		rec.Train.AdaptiveConstant = m.AdaptiveConstant()
		if vx != nil {
			val, err := m.evaluate(vx, va, opts.BatchSize)
			if err != nil {
				var div *DivergenceError
				if errors.As(err, &div) {
					div.Epoch = epoch
				}
				return m.history, err
			}
			rec.Validation = &val
		}
		m.history.Epochs = append(m.history.Epochs, rec)

		if (epoch-first+1)%logEvery == 0 {
			args := []any{"epoch", epoch, "loss", rec.Train.Loss, "percent_mean", rec.Train.PercentMean}
			if rec.Validation != nil {
				args = append(args, "val_loss", rec.Validation.Loss)
			}
			m.logger.Info("epoch", args...)
		}
		if opts.OnEpochEnd != nil {
			if err := opts.OnEpochEnd(rec); err != nil {
				if errors.Is(err, ErrStopTraining) {
					return m.history, nil
				}
				return m.history, err
			}
		}
	}
	return m.history, nil
}

// Evaluate scores data in physical units without updating the model.
func (m *Model) Evaluate(data dataset.Data, batchSize int) (Metrics, error) {
	if err := data.Validate(); err != nil {
		return Metrics{}, err
	}
	x, a, err := m.networkUnits(data)
	if err != nil {
		return Metrics{}, err
	}
	return m.evaluate(x, a, batchSize)
}

func (m *Model) evaluate(x, a *mat.Dense, batchSize int) (Metrics, error) {
	n, _ := x.Dims()
	var sums Metrics
	for _, idx := range dataset.Batches(n, batchSize, nil) {
		metrics, err := m.EvalStep(rows(x, idx), rows(a, idx))
		if err != nil {
			return metrics, err
		}
		accumulate(&sums, metrics, len(idx))
	}
	out := average(sums, n)
	out.AdaptiveConstant = m.AdaptiveConstant()
	return out, nil
}

func (m *Model) fitTransforms(data dataset.Data) error {
	kind, err := transform.ParseKind(m.cfg.Scaler)
	if err != nil {
		return &ConfigurationError{Key: "scaler", Value: m.cfg.Scaler, Err: err}
	}
	x, a, u := data.Matrices()
	set, err := transform.FitSet(kind, x, a, u)
	if err != nil {
		return fmt.Errorf("fit transformers: %w", err)
	}
	m.transforms = set
	m.logger.Debug("fitted transformers", "kind", kind)
	return nil
}

func (m *Model) networkUnits(data dataset.Data) (x, a *mat.Dense, err error) {
	if err := m.checkTransforms(); err != nil {
		return nil, nil, err
	}
	rawX, rawA, _ := data.Matrices()
	if x, err = m.transforms.X.Transform(rawX); err != nil {
		return nil, nil, fmt.Errorf("transform x: %w", err)
	}
	if a, err = m.transforms.A.Transform(rawA); err != nil {
		return nil, nil, fmt.Errorf("transform a: %w", err)
	}
	return x, a, nil
}

func rows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, k := range idx {
		out.SetRow(i, m.RawRowView(k))
	}
	return out
}

// accumulate adds sample-weighted metrics. PercentMax keeps the maximum.
func accumulate(sum *Metrics, m Metrics, n int) {
	w := float64(n)
	sum.Loss += m.Loss * w
	sum.PercentMean += m.PercentMean * w
	sum.PercentMax = max(sum.PercentMax, m.PercentMax)
	if sum.LossComponents == nil {
		sum.LossComponents = make(map[string]float64, len(m.LossComponents))
		sum.PercentComponents = make(map[string]float64, len(m.PercentComponents))
	}
	for k, v := range m.LossComponents {
		sum.LossComponents[k] += v * w
	}
	for k, v := range m.PercentComponents {
		sum.PercentComponents[k] += v * w
	}
	sum.Skipped = sum.Skipped || m.Skipped
}

func average(sum Metrics, n int) Metrics {
	if n == 0 {
		return sum
	}
	w := float64(n)
	sum.Loss /= w
	sum.PercentMean /= w
	for k := range sum.LossComponents {
		sum.LossComponents[k] /= w
	}
	for k := range sum.PercentComponents {
		sum.PercentComponents[k] /= w
	}
	return sum
}
