package pinn

import (
	"fmt"
	"math"

	"github.com/san-kum/gravnn/internal/autodiff"
	"github.com/san-kum/gravnn/internal/dataset"
	"github.com/san-kum/gravnn/internal/derivatives"
	"github.com/san-kum/gravnn/internal/transform"
	"gonum.org/v1/gonum/mat"
)

// DefaultBatchSize bounds the rows evaluated per graph during inference.
const DefaultBatchSize = 131072

// FieldSet is every quantity the model can produce at a set of positions.
// Laplacian and curl are returned in physical units when the position and
// potential transformers share a single zero-offset scale, and in network
// units otherwise.
type FieldSet struct {
	U         []float64
	A         [][3]float64
	Laplacian []float64
	Curl      [][3]float64
}

type accelTrace struct {
	g *autodiff.Graph
	x *autodiff.Node
	a *autodiff.Node
}

// Potential returns U at positions in physical units.
func (m *Model) Potential(positions [][3]float64) ([]float64, error) {
	if !m.constraint.IsPINN() {
		return nil, &ConfigurationError{Key: "constraint", Value: string(m.constraint.Kind), Err: fmt.Errorf("no potential output")}
	}
	x, err := m.inputs(positions)
	if err != nil {
		return nil, err
	}
	u := m.net.Predict(x)
	if m.constraint.Modified {
		u.Apply(func(i, _ int, v float64) float64 {
			return v / mat.Norm(x.RowView(i), 2)
		}, u)
	}
	out, err := m.transforms.U.InverseTransform(u)
	if err != nil {
		return nil, fmt.Errorf("inverse transform u: %w", err)
	}
	return dataset.Column(out), nil
}

// Acceleration returns a at positions in physical units, evaluating at most
// batchSize rows per graph.
func (m *Model) Acceleration(positions [][3]float64, batchSize int) ([][3]float64, error) {
	x, err := m.inputs(positions)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	n, _ := x.Dims()
	out := mat.NewDense(n, 3, nil)
	for lo := 0; lo < n; lo += batchSize {
		hi := min(lo+batchSize, n)
		chunk := mat.DenseCopyOf(x.Slice(lo, hi, 0, 3))
		out.Slice(lo, hi, 0, 3).(*mat.Dense).Copy(m.networkAcceleration(chunk))
	}
	a, err := m.transforms.A.InverseTransform(out)
	if err != nil {
		return nil, fmt.Errorf("inverse transform a: %w", err)
	}
	return dataset.Rows(a), nil
}

func (m *Model) networkAcceleration(x *mat.Dense) *mat.Dense {
	if !m.constraint.IsPINN() {
		return m.net.Predict(x)
	}
	rows, _ := x.Dims()
	if m.compiled {
		if tr, ok := m.accelTraces[rows]; ok {
			tr.x.Set(x)
			tr.g.Replay()
			return mat.DenseCopyOf(tr.a.Value())
		}
	}
	g := autodiff.New()
	tr := &accelTrace{g: g, x: g.Leaf(mat.DenseCopyOf(x))}
	_, tr.a = derivatives.Acceleration(g, m.potential(g), tr.x)
	if m.compiled {
		m.accelTraces[rows] = tr
	}
	return mat.DenseCopyOf(tr.a.Value())
}

func (m *Model) potential(g *autodiff.Graph) derivatives.PotentialFunc {
	return m.constraint.Potential(m.net.Bind(g).Forward)
}

// AccelerationJacobian returns ∂a/∂x at positions in physical units. The
// network-unit Jacobian is divided by t*² with l* = 1/x_scale and
// t* = sqrt(a_scale·l*).
func (m *Model) AccelerationJacobian(positions [][3]float64) ([][3][3]float64, error) {
	x, err := m.inputs(positions)
	if err != nil {
		return nil, err
	}
	g := autodiff.New()
	xn := g.Leaf(x)
	var a *autodiff.Node
	if m.constraint.IsPINN() {
		_, a = derivatives.Acceleration(g, m.potential(g), xn)
	} else {
		a = m.net.Bind(g).Forward(xn)
	}
	jac := derivatives.Jacobian(g, a, xn)

	factor, perElement := m.jacobianScale()
	n, _ := x.Dims()
	out := make([][3][3]float64, n)
	for s := range out {
		for k := 0; k < 3; k++ {
			for j := 0; j < 3; j++ {
				f := factor
				if perElement != nil {
					f = perElement[k][j]
				}
				out[s][k][j] = jac[k].Value().At(s, j) * f
			}
		}
	}
	return out, nil
}

// jacobianScale returns the uniform factor 1/t*², or per-element factors
// x_scale[j]/a_scale[k] when a transformer scales columns differently.
func (m *Model) jacobianScale() (float64, *[3][3]float64) {
	xs, okX := transform.UniformScale(m.transforms.X)
	as, okA := transform.UniformScale(m.transforms.A)
	if okX && okA {
		lStar := 1 / xs
		tStar := math.Sqrt(as * lStar)
		return 1 / (tStar * tStar), nil
	}
	xSpec, aSpec := m.transforms.X.Spec(), m.transforms.A.Spec()
	var f [3][3]float64
	for k := 0; k < 3; k++ {
		for j := 0; j < 3; j++ {
			f[k][j] = xSpec.Scale[j] / aSpec.Scale[k]
		}
	}
	return 0, &f
}

// Fields evaluates U, a, the Laplacian and the curl. It needs second
// derivatives and is much more expensive than Acceleration.
func (m *Model) Fields(positions [][3]float64) (FieldSet, error) {
	if !m.constraint.IsPINN() {
		return FieldSet{}, &ConfigurationError{Key: "constraint", Value: string(m.constraint.Kind), Err: fmt.Errorf("no potential output")}
	}
	x, err := m.inputs(positions)
	if err != nil {
		return FieldSet{}, err
	}
	g := autodiff.New()
	f := derivatives.Full(g, m.potential(g), g.Leaf(x))

	u, err := m.transforms.U.InverseTransform(f.Potential.Value())
	if err != nil {
		return FieldSet{}, fmt.Errorf("inverse transform u: %w", err)
	}
	a, err := m.transforms.A.InverseTransform(f.Acceleration.Value())
	if err != nil {
		return FieldSet{}, fmt.Errorf("inverse transform a: %w", err)
	}

	second := 1.0
	xs, okX := transform.UniformScale(m.transforms.X)
	us, okU := transform.UniformScale(m.transforms.U)
	if okX && okU {
		second = xs * xs / us
	}
	lap := mat.DenseCopyOf(f.Laplacian.Value())
	lap.Scale(second, lap)
	curl := mat.DenseCopyOf(f.Curl.Value())
	curl.Scale(second, curl)

	return FieldSet{
		U:         dataset.Column(u),
		A:         dataset.Rows(a),
		Laplacian: dataset.Column(lap),
		Curl:      dataset.Rows(curl),
	}, nil
}

func (m *Model) inputs(positions [][3]float64) (*mat.Dense, error) {
	if err := m.checkTransforms(); err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("pinn: no positions")
	}
	x, err := m.transforms.X.Transform(dataset.Vectors(positions))
	if err != nil {
		return nil, fmt.Errorf("transform x: %w", err)
	}
	return m.precision(x), nil
}
