// Package transform implements the reversible scalings applied to positions,
// potentials and accelerations before they reach the network.
package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotFitted   = errors.New("transform: transformer not fitted")
	ErrDegenerate  = errors.New("transform: degenerate data (zero range or variance)")
	ErrWidth       = errors.New("transform: column count mismatch")
	ErrUnknownKind = errors.New("transform: unknown scaler kind")
)

// Kind selects how a Scaler derives its parameters in Fit.
type Kind string

const (
	// Uniform maps all columns into [-1, 1] with one shared scale.
	Uniform Kind = "uniform"
	// MinMax maps every column into [-1, 1] independently.
	MinMax Kind = "minmax"
	// Standard removes the column mean and divides by the standard deviation.
	Standard Kind = "standard"
	// NonDim divides by a characteristic magnitude (largest row norm) and keeps zero fixed.
	NonDim Kind = "nondim"
	// Identity leaves data untouched.
	Identity Kind = "identity"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Uniform, MinMax, Standard, NonDim, Identity:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Transformer is a fitted, reversible, column-wise mapping.
type Transformer interface {
	Fit(data mat.Matrix) error
	Transform(data mat.Matrix) (*mat.Dense, error)
	InverseTransform(data mat.Matrix) (*mat.Dense, error)
	Fitted() bool
	Spec() Spec
}

// Spec is the serializable state of a Scaler.
type Spec struct {
	Kind   Kind      `yaml:"kind" json:"kind"`
	Scale  []float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
	Offset []float64 `yaml:"offset,omitempty" json:"offset,omitempty"`
}

// Scaler applies y = x·scale + offset per column.
type Scaler struct {
	kind   Kind
	scale  []float64
	offset []float64
}

// New returns an unfitted scaler of the given kind.
func New(kind Kind) *Scaler {
	return &Scaler{kind: kind}
}

// NewCharacteristic returns a fitted NonDim scaler of the given width that
// divides by star.
func NewCharacteristic(width int, star float64) (*Scaler, error) {
	if star == 0 || math.IsNaN(star) || math.IsInf(star, 0) {
		return nil, fmt.Errorf("%w: characteristic value %v", ErrDegenerate, star)
	}
	s := &Scaler{kind: NonDim, scale: make([]float64, width), offset: make([]float64, width)}
	for j := range s.scale {
		s.scale[j] = 1 / star
	}
	return s, nil
}

// FromSpec rebuilds a scaler from its serialized form.
func FromSpec(spec Spec) (*Scaler, error) {
	if _, err := ParseKind(string(spec.Kind)); err != nil {
		return nil, err
	}
	if len(spec.Scale) != len(spec.Offset) {
		return nil, fmt.Errorf("%w: %d scales, %d offsets", ErrWidth, len(spec.Scale), len(spec.Offset))
	}
	for _, v := range spec.Scale {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: scale %v", ErrDegenerate, v)
		}
	}
	s := &Scaler{kind: spec.Kind}
	if len(spec.Scale) > 0 {
		s.scale = append([]float64(nil), spec.Scale...)
		s.offset = append([]float64(nil), spec.Offset...)
	}
	return s, nil
}

func (s *Scaler) Kind() Kind { return s.kind }

func (s *Scaler) Fitted() bool { return len(s.scale) > 0 }

func (s *Scaler) Spec() Spec {
	return Spec{
		Kind:   s.kind,
		Scale:  append([]float64(nil), s.scale...),
		Offset: append([]float64(nil), s.offset...),
	}
}

// Fit derives scale and offset from data. It never leaves a zero scale
// behind: degenerate columns return ErrDegenerate and the scaler stays as it was.
func (s *Scaler) Fit(data mat.Matrix) error {
	r, c := data.Dims()
	if r == 0 || c == 0 {
		return fmt.Errorf("%w: empty data", ErrDegenerate)
	}
	scale := make([]float64, c)
	offset := make([]float64, c)

	switch s.kind {
	case Identity:
		for j := range scale {
			scale[j] = 1
		}
	case NonDim:
		star := maxRowNorm(data)
		for j := range scale {
			scale[j] = 1 / star
		}
	case Uniform:
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := 0; j < c; j++ {
			cmin, cmax := columnRange(data, j)
			lo, hi = math.Min(lo, cmin), math.Max(hi, cmax)
		}
		for j := range scale {
			scale[j] = 2 / (hi - lo)
			offset[j] = -1 - lo*scale[j]
		}
	case MinMax:
		for j := 0; j < c; j++ {
			cmin, cmax := columnRange(data, j)
			scale[j] = 2 / (cmax - cmin)
			offset[j] = -1 - cmin*scale[j]
		}
	case Standard:
		col := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(col, j, data)
			mean, std := stat.MeanStdDev(col, nil)
			scale[j] = 1 / std
			offset[j] = -mean / std
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.kind)
	}

	for j, v := range scale {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: column %d", ErrDegenerate, j)
		}
	}
	s.scale, s.offset = scale, offset
	return nil
}

func (s *Scaler) check(data mat.Matrix) (int, int, error) {
	if !s.Fitted() {
		return 0, 0, ErrNotFitted
	}
	r, c := data.Dims()
	if r == 0 {
		return 0, 0, fmt.Errorf("%w: empty batch", ErrWidth)
	}
	if c != len(s.scale) {
		return 0, 0, fmt.Errorf("%w: got %d columns, fitted on %d", ErrWidth, c, len(s.scale))
	}
	return r, c, nil
}

func (s *Scaler) Transform(data mat.Matrix) (*mat.Dense, error) {
	r, c, err := s.check(data)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return v*s.scale[j] + s.offset[j]
	}, data)
	return out, nil
}

func (s *Scaler) InverseTransform(data mat.Matrix) (*mat.Dense, error) {
	r, c, err := s.check(data)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.offset[j]) / s.scale[j]
	}, data)
	return out, nil
}

// UniformScale reports the single scale shared by all columns, if any.
// Offsets must be zero for derivative quantities to transform consistently.
func UniformScale(t Transformer) (float64, bool) {
	if t == nil || !t.Fitted() {
		return 0, false
	}
	spec := t.Spec()
	for j, v := range spec.Scale {
		if v != spec.Scale[0] || spec.Offset[j] != 0 {
			return 0, false
		}
	}
	return spec.Scale[0], true
}

func columnRange(data mat.Matrix, j int) (float64, float64) {
	r, _ := data.Dims()
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < r; i++ {
		v := data.At(i, j)
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return lo, hi
}

func maxRowNorm(data mat.Matrix) float64 {
	r, c := data.Dims()
	best := 0.0
	for i := 0; i < r; i++ {
		s := 0.0
		for j := 0; j < c; j++ {
			v := data.At(i, j)
			s += v * v
		}
		best = math.Max(best, math.Sqrt(s))
	}
	return best
}
