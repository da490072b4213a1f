package derivatives

import (
	"math"
	"testing"

	"github.com/san-kum/gravnn/internal/autodiff"
	"gonum.org/v1/gonum/mat"
)

// pointMass records U = -mu/|x|.
func pointMass(mu float64) PotentialFunc {
	return func(g *autodiff.Graph, x *autodiff.Node) *autodiff.Node {
		r := g.Sqrt(g.SumCols(g.Square(x)))
		rows, _ := x.Dims()
		return g.Scale(g.Div(g.Fill(rows, 1, 1), r), -mu)
	}
}

func quadratic(g *autodiff.Graph, x *autodiff.Node) *autodiff.Node {
	// U = x0² + 2·x1² + 3·x2² + x0·x1
	x0 := g.SliceCols(x, 0, 1)
	x1 := g.SliceCols(x, 1, 2)
	x2 := g.SliceCols(x, 2, 3)
	u := g.Add(g.Square(x0), g.Scale(g.Square(x1), 2))
	u = g.Add(u, g.Scale(g.Square(x2), 3))
	return g.Add(u, g.Mul(x0, x1))
}

func positions() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0.5, -1.5, 2,
		-3, 4, 1,
	})
}

func TestPointMassFields(t *testing.T) {
	const mu = 2.5
	g := autodiff.New()
	x := g.Leaf(positions())
	f := Full(g, pointMass(mu), x)

	for i := 0; i < 3; i++ {
		p := positions().RawRowView(i)
		r := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
		if got, want := f.Potential.Value().At(i, 0), -mu/r; math.Abs(got-want) > 1e-12 {
			t.Errorf("row %d potential %v, want %v", i, got, want)
		}
		for j := 0; j < 3; j++ {
			want := -mu * p[j] / (r * r * r)
			if got := f.Acceleration.Value().At(i, j); math.Abs(got-want) > 1e-12 {
				t.Errorf("row %d a[%d] = %v, want %v", i, j, got, want)
			}
			if c := f.Curl.Value().At(i, j); math.Abs(c) > 1e-10 {
				t.Errorf("row %d curl[%d] = %v, want 0", i, j, c)
			}
		}
		if l := f.Laplacian.Value().At(i, 0); math.Abs(l) > 1e-10 {
			t.Errorf("row %d laplacian = %v, want 0", i, l)
		}
	}
}

func TestQuadraticHessian(t *testing.T) {
	g := autodiff.New()
	x := g.Leaf(positions())
	f := Full(g, quadratic, x)
	want := [3][3]float64{{2, 1, 0}, {1, 4, 0}, {0, 0, 6}}
	for s := 0; s < 3; s++ {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if got := f.Hessian[i].Value().At(s, j); math.Abs(got-want[i][j]) > 1e-12 {
					t.Errorf("sample %d H[%d][%d] = %v, want %v", s, i, j, got, want[i][j])
				}
			}
		}
		if got := f.Laplacian.Value().At(s, 0); math.Abs(got-12) > 1e-12 {
			t.Errorf("sample %d laplacian = %v, want 12", s, got)
		}
	}
}

func TestAccelerationMatchesFull(t *testing.T) {
	g := autodiff.New()
	x := g.Leaf(positions())
	_, a := Acceleration(g, pointMass(1), x)
	f := Full(g, pointMass(1), x)
	if !mat.EqualApprox(a.Value(), f.Acceleration.Value(), 1e-14) {
		t.Error("light acceleration path differs from Full")
	}
}

func TestJacobianOfPointMass(t *testing.T) {
	const mu = 1.0
	g := autodiff.New()
	x := g.Leaf(positions())
	_, a := Acceleration(g, pointMass(mu), x)
	rows := Jacobian(g, a, x)
	for s := 0; s < 3; s++ {
		p := positions().RawRowView(s)
		r := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
		for k := 0; k < 3; k++ {
			for j := 0; j < 3; j++ {
				// ∂a_k/∂x_j = mu(3 x_k x_j / r^5 - δ_kj / r^3)
				want := mu * 3 * p[k] * p[j] / math.Pow(r, 5)
				if k == j {
					want -= mu / math.Pow(r, 3)
				}
				if got := rows[k].Value().At(s, j); math.Abs(got-want) > 1e-10 {
					t.Errorf("sample %d J[%d][%d] = %v, want %v", s, k, j, got, want)
				}
			}
		}
	}
}

func TestGradientOfConstantIsZero(t *testing.T) {
	g := autodiff.New()
	x := g.Leaf(positions())
	constant := func(g *autodiff.Graph, x *autodiff.Node) *autodiff.Node {
		r, _ := x.Dims()
		return g.Fill(r, 1, 3)
	}
	_, a := Acceleration(g, constant, x)
	if mat.Norm(a.Value(), 1) != 0 {
		t.Error("expected zero acceleration for a constant potential")
	}
}
