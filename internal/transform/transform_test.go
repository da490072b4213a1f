package transform

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func sample() *mat.Dense {
	return mat.NewDense(4, 3, []float64{
		1, -2, 0.5,
		3, 4, -1,
		-7, 0.1, 2,
		2, 2, 2,
	})
}

func TestRoundTrip(t *testing.T) {
	for _, kind := range []Kind{Uniform, MinMax, Standard, NonDim, Identity} {
		t.Run(string(kind), func(t *testing.T) {
			s := New(kind)
			data := sample()
			if err := s.Fit(data); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			y, err := s.Transform(data)
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			back, err := s.InverseTransform(y)
			if err != nil {
				t.Fatalf("InverseTransform: %v", err)
			}
			r, c := data.Dims()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					want := data.At(i, j)
					if got := back.At(i, j); math.Abs(got-want) > 1e-5*math.Max(1, math.Abs(want)) {
						t.Errorf("(%d,%d): got %v, want %v", i, j, got, want)
					}
				}
			}
		})
	}
}

func TestMinMaxRange(t *testing.T) {
	s := New(MinMax)
	if err := s.Fit(sample()); err != nil {
		t.Fatal(err)
	}
	y, _ := s.Transform(sample())
	if mat.Min(y) < -1-1e-12 || mat.Max(y) > 1+1e-12 {
		t.Errorf("values outside [-1,1]: min %v max %v", mat.Min(y), mat.Max(y))
	}
}

func TestDegenerateColumn(t *testing.T) {
	flat := mat.NewDense(3, 2, []float64{1, 5, 2, 5, 3, 5})
	for _, kind := range []Kind{MinMax, Standard} {
		s := New(kind)
		if err := s.Fit(flat); !errors.Is(err, ErrDegenerate) {
			t.Errorf("%s: got %v, want ErrDegenerate", kind, err)
		}
		if s.Fitted() {
			t.Errorf("%s: scaler fitted after degenerate data", kind)
		}
	}
	zeros := mat.NewDense(2, 3, nil)
	if err := New(NonDim).Fit(zeros); !errors.Is(err, ErrDegenerate) {
		t.Errorf("nondim on zeros: got %v", err)
	}
}

func TestNotFittedAndWidth(t *testing.T) {
	s := New(Uniform)
	if _, err := s.Transform(sample()); !errors.Is(err, ErrNotFitted) {
		t.Errorf("got %v, want ErrNotFitted", err)
	}
	if err := s.Fit(sample()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transform(mat.NewDense(2, 2, nil)); !errors.Is(err, ErrWidth) {
		t.Errorf("got %v, want ErrWidth", err)
	}
}

func TestUniformScale(t *testing.T) {
	tests := []struct {
		kind Kind
		ok   bool
	}{
		{NonDim, true},
		{Identity, true},
		{MinMax, false},
		{Standard, false},
	}
	for _, tt := range tests {
		s := New(tt.kind)
		if err := s.Fit(sample()); err != nil {
			t.Fatal(err)
		}
		if _, ok := UniformScale(s); ok != tt.ok {
			t.Errorf("%s: UniformScale ok = %v, want %v", tt.kind, ok, tt.ok)
		}
	}
	if _, ok := UniformScale(New(NonDim)); ok {
		t.Error("unfitted scaler reported a uniform scale")
	}
}

func TestSpecRoundTrip(t *testing.T) {
	s := New(Standard)
	if err := s.Fit(sample()); err != nil {
		t.Fatal(err)
	}
	r, err := FromSpec(s.Spec())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := s.Transform(sample())
	b, _ := r.Transform(sample())
	if !mat.EqualApprox(a, b, 1e-12) {
		t.Error("rebuilt scaler transforms differently")
	}
	if _, err := FromSpec(Spec{Kind: "bogus"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("got %v, want ErrUnknownKind", err)
	}
}

func TestFitSetNonDim(t *testing.T) {
	x := mat.NewDense(2, 3, []float64{3, 4, 0, 0, 0, 10})
	a := mat.NewDense(2, 3, []float64{1, 0, 0, 0, 2, 0})
	u := mat.NewDense(2, 1, []float64{-5, -20})
	set, err := FitSet(NonDim, x, a, u)
	if err != nil {
		t.Fatal(err)
	}
	xs, _ := UniformScale(set.X)
	us, _ := UniformScale(set.U)
	as, _ := UniformScale(set.A)
	if math.Abs(xs-0.1) > 1e-12 || math.Abs(us-0.05) > 1e-12 {
		t.Errorf("x scale %v u scale %v", xs, us)
	}
	if math.Abs(as-10.0/20.0) > 1e-12 {
		t.Errorf("a scale %v, want x*/u* = 0.5", as)
	}
	if !set.Fitted() {
		t.Error("set not fitted")
	}
	rebuilt, err := SetFromSpec(set.Spec())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := UniformScale(rebuilt.A); s != as {
		t.Errorf("rebuilt a scale %v", s)
	}
}
