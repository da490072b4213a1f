package storage

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/pinn"
	"github.com/san-kum/gravnn/internal/transform"
	"gopkg.in/yaml.v3"
)

// Record is the persisted configuration: every key maps to a one-element
// list, the layout the dataframe log and older saves use.
type Record map[string][]any

// Get returns the single value stored under key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r[key]
	if !ok || len(v) == 0 {
		return nil, false
	}
	return v[0], true
}

func (r Record) Set(key string, v any) { r[key] = []any{v} }

func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

func (r Record) String(key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (r Record) Float(key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (r Record) Bool(key string) (bool, bool) {
	v, ok := r.Get(key)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

// ID returns the Julian-date identifier.
func (r Record) ID() (float64, error) {
	id, ok := r.Float("id")
	if !ok {
		return 0, errors.New("record has no numeric id")
	}
	return id, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// JulianDate converts t, rounded to the millisecond, to a Julian date.
func JulianDate(t time.Time) float64 {
	ms := t.Round(time.Millisecond).UnixMilli()
	return float64(ms)/86400000 + 2440587.5
}

// FormatID renders an identifier as used for directory names.
func FormatID(id float64) string {
	return strconv.FormatFloat(id, 'f', -1, 64)
}

// ParseID accepts the directory-name form of an identifier.
func ParseID(s string) (float64, error) {
	id, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(id) {
		return 0, fmt.Errorf("invalid model id %q", s)
	}
	return id, nil
}

// NewRecord snapshots a model's configuration, transformers, history and
// size statistics.
func NewRecord(m *pinn.Model, id float64, saved time.Time) (Record, error) {
	cfg := m.Config()
	r := Record{}
	r.Set("id", id)
	r.Set("timetag", saved.UTC().Format(time.ANSIC))

	r.Set("PINN_constraint_fcn", cfg.Physics.Constraint)
	r.Set("loss_fcn", cfg.Physics.Loss)
	r.Set("lr_anneal", cfg.Physics.Anneal)
	r.Set("beta", cfg.Physics.Beta)
	r.Set("adaptive_constant", m.AdaptiveConstant())

	r.Set("layers", cfg.Network.Hidden)
	r.Set("activation", cfg.Network.Activation)
	r.Set("init_file", cfg.Network.InitFile)

	r.Set("dtype", cfg.Numerics.DType)
	r.Set("mixed_precision", cfg.Numerics.MixedPrecision)
	r.Set("loss_scale", cfg.Numerics.LossScale)
	r.Set("jit_compile", cfg.Numerics.JITCompile)

	r.Set("epochs", cfg.Training.Epochs)
	r.Set("batch_size", cfg.Training.BatchSize)
	r.Set("learning_rate", cfg.Training.LearningRate)
	r.Set("validation_split", cfg.Training.ValidationSplit)
	r.Set("seed", cfg.Training.Seed)
	r.Set("lbfgs_iterations", cfg.Training.LBFGSIterations)

	r.Set("mu", cfg.Data.Mu)
	r.Set("radius_min", cfg.Data.RadiusMin)
	r.Set("radius_max", cfg.Data.RadiusMax)
	r.Set("N_train", cfg.Data.Samples)
	r.Set("N_val", cfg.Data.Validation)
	r.Set("gravity_model", cfg.Data.Model)
	r.Set("scaler", cfg.Scaler)

	set := m.Transforms().Spec()
	for key, spec := range map[string]transform.Spec{
		"x_transformer":     set.X,
		"u_transformer":     set.U,
		"a_transformer":     set.A,
		"a_bar_transformer": set.ABar,
	} {
		v, err := generic(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		r.Set(key, v)
	}

	r.Set("params", m.NumParams())
	if h := m.History(); h != nil && len(h.Epochs) > 0 {
		v, err := generic(h)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		r.Set("history", v)
		last, _ := h.Last()
		r.Set("final_loss", last.Train.Loss)
		r.Set("final_percent", last.Train.PercentMean)
		if last.Validation != nil {
			r.Set("final_val_percent", last.Validation.PercentMean)
		}
	}
	return r, nil
}

// ToConfig rebuilds the typed configuration from a migrated record. The
// constraint, loss and transformer keys are required.
func (r Record) ToConfig() (*config.Config, transform.Set, error) {
	cfg := config.DefaultConfig()
	for _, key := range []string{"PINN_constraint_fcn", "loss_fcn"} {
		if _, ok := r.String(key); !ok {
			return nil, transform.Set{}, &pinn.ConfigurationError{Key: key, Err: errors.New("missing")}
		}
	}
	cfg.Physics.Constraint, _ = r.String("PINN_constraint_fcn")
	cfg.Physics.Loss, _ = r.String("loss_fcn")
	cfg.Physics.Anneal, _ = r.Bool("lr_anneal")
	if v, ok := r.Float("beta"); ok {
		cfg.Physics.Beta = v
	}
	if v, ok := r.Float("adaptive_constant"); ok {
		cfg.Physics.AdaptiveConstant = v
	}

	if v, ok := r.Get("layers"); ok {
		if err := decode(v, &cfg.Network.Hidden); err != nil {
			return nil, transform.Set{}, &pinn.ConfigurationError{Key: "layers", Err: err}
		}
	}
	if v, ok := r.String("activation"); ok {
		cfg.Network.Activation = v
	}
	cfg.Network.InitFile, _ = r.String("init_file")

	if v, ok := r.String("dtype"); ok {
		cfg.Numerics.DType = v
	}
	cfg.Numerics.MixedPrecision, _ = r.Bool("mixed_precision")
	if v, ok := r.Float("loss_scale"); ok {
		cfg.Numerics.LossScale = v
	}
	if v, ok := r.Bool("jit_compile"); ok {
		cfg.Numerics.JITCompile = v
	}

	intField := func(key string, dst *int) {
		if v, ok := r.Float(key); ok {
			*dst = int(v)
		}
	}
	intField("epochs", &cfg.Training.Epochs)
	intField("batch_size", &cfg.Training.BatchSize)
	intField("lbfgs_iterations", &cfg.Training.LBFGSIterations)
	intField("N_train", &cfg.Data.Samples)
	intField("N_val", &cfg.Data.Validation)
	if v, ok := r.Float("learning_rate"); ok {
		cfg.Training.LearningRate = v
	}
	if v, ok := r.Float("validation_split"); ok {
		cfg.Training.ValidationSplit = v
	}
	if v, ok := r.Float("seed"); ok {
		cfg.Training.Seed = uint64(v)
	}
	if v, ok := r.Float("mu"); ok {
		cfg.Data.Mu = v
	}
	if v, ok := r.Float("radius_min"); ok {
		cfg.Data.RadiusMin = v
	}
	if v, ok := r.Float("radius_max"); ok {
		cfg.Data.RadiusMax = v
	}
	if v, ok := r.String("gravity_model"); ok {
		cfg.Data.Model = v
	}
	if v, ok := r.String("scaler"); ok {
		cfg.Scaler = v
	}

	var spec transform.SetSpec
	for key, dst := range map[string]*transform.Spec{
		"x_transformer":     &spec.X,
		"u_transformer":     &spec.U,
		"a_transformer":     &spec.A,
		"a_bar_transformer": &spec.ABar,
	} {
		v, ok := r.Get(key)
		if !ok {
			if key == "a_bar_transformer" {
				continue
			}
			return nil, transform.Set{}, &pinn.ConfigurationError{Key: key, Err: errors.New("missing")}
		}
		if err := decode(v, dst); err != nil {
			return nil, transform.Set{}, &pinn.ConfigurationError{Key: key, Err: err}
		}
	}
	set, err := transform.SetFromSpec(spec)
	if err != nil {
		return nil, transform.Set{}, &pinn.ConfigurationError{Key: "transformers", Err: err}
	}
	return cfg, set, nil
}

// History decodes the stored training history, if any.
func (r Record) History() (*pinn.History, error) {
	v, ok := r.Get("history")
	if !ok {
		return nil, nil
	}
	h := &pinn.History{}
	if err := decode(v, h); err != nil {
		return nil, err
	}
	return h, nil
}

// generic converts a typed value into plain maps and slices via YAML so the
// record stays schema-free.
func generic(v any) (any, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decode(v any, dst any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, dst)
}
