// Package pinn wraps a network with the physics constraints, losses and
// derivative machinery needed to train and query a gravity model.
package pinn

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/san-kum/gravnn/internal/annealing"
	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/constraints"
	"github.com/san-kum/gravnn/internal/losses"
	"github.com/san-kum/gravnn/internal/network"
	"github.com/san-kum/gravnn/internal/optim"
	"github.com/san-kum/gravnn/internal/transform"
	"gonum.org/v1/gonum/mat"
)

// Model is a trainable gravity model.
type Model struct {
	cfg        config.Config
	net        *network.Network
	transforms transform.Set

	constraint constraints.Constraint
	loss       losses.Kind
	annealer   annealing.Controller
	adaptive   *mat.Dense
	optimizer  *optim.Adam
	scaler     *optim.LossScaler
	compiled   bool

	trainTraces map[int]*trace
	evalTraces  map[int]*trace
	accelTraces map[int]*accelTrace

	history *History
	logger  *slog.Logger
}

type Option func(*Model)

func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// New validates cfg and builds the model. When net is nil a network is
// created from cfg, or loaded from cfg.Network.InitFile when set. Unfitted
// transformers are accepted; Fit fits them from the training data.
func New(cfg *config.Config, net *network.Network, transforms transform.Set, opts ...Option) (*Model, error) {
	if cfg == nil {
		return nil, &ConfigurationError{Key: "config", Err: errors.New("missing")}
	}
	c, err := constraints.Parse(cfg.Physics.Constraint)
	if err != nil {
		return nil, &ConfigurationError{Key: "constraint", Value: cfg.Physics.Constraint, Err: err}
	}
	lk, err := losses.Parse(cfg.Physics.Loss)
	if err != nil {
		return nil, &ConfigurationError{Key: "loss", Value: cfg.Physics.Loss, Err: err}
	}
	if dt := cfg.Numerics.DType; dt != "float32" && dt != "float64" {
		return nil, &ConfigurationError{Key: "dtype", Value: dt, Err: errors.New("want float32 or float64")}
	}
	annealer := annealing.New(cfg.Physics.Anneal, cfg.Physics.Beta)
	if err := annealer.Validate(); err != nil {
		return nil, &ConfigurationError{Key: "beta", Value: fmt.Sprint(cfg.Physics.Beta), Err: err}
	}
	if cfg.Training.LearningRate <= 0 {
		return nil, &ConfigurationError{Key: "learning_rate", Value: fmt.Sprint(cfg.Training.LearningRate), Err: errors.New("must be positive")}
	}

	if net == nil {
		net, err = buildNetwork(cfg, c)
		if err != nil {
			return nil, err
		}
	}
	if net.InputDim() != 3 || net.OutputDim() != c.OutputDim {
		return nil, &ConfigurationError{
			Key:   "network",
			Value: fmt.Sprintf("%d->%d", net.InputDim(), net.OutputDim()),
			Err:   fmt.Errorf("constraint %s needs 3->%d", c.Kind, c.OutputDim),
		}
	}

	m := &Model{
		cfg:         *cfg,
		net:         net,
		transforms:  transforms,
		constraint:  c,
		loss:        lk,
		annealer:    annealer,
		adaptive:    mat.NewDense(1, 1, []float64{cfg.Physics.AdaptiveConstant}),
		optimizer:   optim.NewAdam(cfg.Training.LearningRate),
		scaler:      optim.NewLossScaler(cfg.Numerics.MixedPrecision, cfg.Numerics.LossScale),
		trainTraces: make(map[int]*trace),
		evalTraces:  make(map[int]*trace),
		accelTraces: make(map[int]*accelTrace),
		history:     &History{},
		logger:      slog.Default(),
	}
	m.cfg.Network.Hidden = net.Hidden()
	m.cfg.Network.Activation = net.Activation()
	if m.adaptive.At(0, 0) <= 0 {
		m.adaptive.Set(0, 0, 1)
	}
	// Second-order graphs and warm starts always take the interpreted path.
	m.compiled = cfg.Numerics.JITCompile && !c.SecondOrder && cfg.Network.InitFile == ""
	for _, opt := range opts {
		opt(m)
	}
	if cfg.Numerics.DType == "float32" {
		m.net.RoundFloat32()
	}
	return m, nil
}

func buildNetwork(cfg *config.Config, c constraints.Constraint) (*network.Network, error) {
	if path := cfg.Network.InitFile; path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, &ConfigurationError{Key: "init_file", Value: path, Err: err}
		}
		net, err := network.Load(path)
		if err != nil {
			return nil, &ConfigurationError{Key: "init_file", Value: path, Err: err}
		}
		return net, nil
	}
	if len(cfg.Network.Hidden) == 0 {
		return nil, &ConfigurationError{Key: "network", Err: errors.New("no hidden layers")}
	}
	net, err := network.New(3, cfg.Network.Hidden, c.OutputDim, cfg.Network.Activation, cfg.Training.Seed)
	if err != nil {
		return nil, &ConfigurationError{Key: "network", Value: cfg.Network.Activation, Err: err}
	}
	return net, nil
}

// Config returns the configuration the model was built with.
func (m *Model) Config() config.Config { return m.cfg }

func (m *Model) Network() *network.Network { return m.net }

func (m *Model) Transforms() transform.Set { return m.transforms }

// SetTransforms replaces the transformers, for example after loading.
func (m *Model) SetTransforms(s transform.Set) { m.transforms = s }

func (m *Model) Constraint() constraints.Constraint { return m.constraint }

// Compiled reports whether steps replay a cached graph.
func (m *Model) Compiled() bool { return m.compiled }

func (m *Model) AdaptiveConstant() float64 { return m.adaptive.At(0, 0) }

func (m *Model) History() *History { return m.history }

// SetHistory attaches a history, for example one restored from disk.
func (m *Model) SetHistory(h *History) {
	if h != nil {
		m.history = h
	}
}

// NumParams counts the non-zero trainable weights.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.net.Params() {
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if p.At(i, j) != 0 {
					n++
				}
			}
		}
	}
	return n
}

// invalidate drops cached graphs after the parameter storage changed.
func (m *Model) invalidate() {
	clear(m.trainTraces)
	clear(m.evalTraces)
	clear(m.accelTraces)
}

func (m *Model) checkTransforms() error {
	for _, item := range []struct {
		name string
		t    transform.Transformer
	}{
		{"x", m.transforms.X},
		{"u", m.transforms.U},
		{"a", m.transforms.A},
	} {
		if item.t == nil || !item.t.Fitted() {
			return &UninitializedTransformError{Name: item.name}
		}
	}
	return nil
}

func (m *Model) singlePrecision() bool { return m.cfg.Numerics.DType == "float32" }
