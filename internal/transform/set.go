package transform

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Set groups the transformers a model needs. ABar only records the
// non-dimensionalization of the raw accelerations.
type Set struct {
	X    Transformer
	U    Transformer
	A    Transformer
	ABar Transformer
}

// Fitted reports whether the three transformers used for inference are fitted.
func (s Set) Fitted() bool {
	return s.X != nil && s.X.Fitted() &&
		s.U != nil && s.U.Fitted() &&
		s.A != nil && s.A.Fitted()
}

// SetSpec is the serializable form of a Set.
type SetSpec struct {
	X    Spec `yaml:"x" json:"x"`
	U    Spec `yaml:"u" json:"u"`
	A    Spec `yaml:"a" json:"a"`
	ABar Spec `yaml:"a_bar" json:"a_bar"`
}

func (s Set) Spec() SetSpec {
	var out SetSpec
	if s.X != nil {
		out.X = s.X.Spec()
	}
	if s.U != nil {
		out.U = s.U.Spec()
	}
	if s.A != nil {
		out.A = s.A.Spec()
	}
	if s.ABar != nil {
		out.ABar = s.ABar.Spec()
	}
	return out
}

// SetFromSpec rebuilds all four transformers.
func SetFromSpec(spec SetSpec) (Set, error) {
	var set Set
	for _, item := range []struct {
		name string
		spec Spec
		dst  *Transformer
	}{
		{"x", spec.X, &set.X},
		{"u", spec.U, &set.U},
		{"a", spec.A, &set.A},
		{"a_bar", spec.ABar, &set.ABar},
	} {
		if item.spec.Kind == "" {
			continue
		}
		sc, err := FromSpec(item.spec)
		if err != nil {
			return Set{}, fmt.Errorf("%s transformer: %w", item.name, err)
		}
		*item.dst = sc
	}
	return set, nil
}

// FitSet fits transformers for positions x (N×3), accelerations a (N×3) and
// potentials u (N×1).
//
// NonDim uses x* = max|x| and u* = max|u| and scales accelerations by x*/u*,
// so a = -∇U holds in network units as well as physical units.
func FitSet(kind Kind, x, a, u mat.Matrix) (Set, error) {
	if kind == NonDim {
		xs := maxRowNorm(x)
		us := maxRowNorm(u)
		xScaler, err := NewCharacteristic(3, xs)
		if err != nil {
			return Set{}, fmt.Errorf("x transformer: %w", err)
		}
		uScaler, err := NewCharacteristic(1, us)
		if err != nil {
			return Set{}, fmt.Errorf("u transformer: %w", err)
		}
		aScaler, err := NewCharacteristic(3, us/xs)
		if err != nil {
			return Set{}, fmt.Errorf("a transformer: %w", err)
		}
		aBar := New(NonDim)
		if err := aBar.Fit(a); err != nil {
			return Set{}, fmt.Errorf("a_bar transformer: %w", err)
		}
		return Set{X: xScaler, U: uScaler, A: aScaler, ABar: aBar}, nil
	}

	set := Set{X: New(kind), U: New(kind), A: New(kind), ABar: New(kind)}
	for _, item := range []struct {
		name string
		t    Transformer
		data mat.Matrix
	}{
		{"x", set.X, x},
		{"u", set.U, u},
		{"a", set.A, a},
		{"a_bar", set.ABar, a},
	} {
		if err := item.t.Fit(item.data); err != nil {
			return Set{}, fmt.Errorf("%s transformer: %w", item.name, err)
		}
	}
	return set, nil
}
