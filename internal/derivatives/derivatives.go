// Package derivatives computes gravity fields from a potential recorded on an
// autodiff graph. All quantities are batched: row i of every output belongs to
// row i of x, and derivatives are taken of batch sums so that no cross-sample
// terms appear.
package derivatives

import "github.com/san-kum/gravnn/internal/autodiff"

// PotentialFunc records U(x) for x (B×3) and returns a B×1 node.
type PotentialFunc func(g *autodiff.Graph, x *autodiff.Node) *autodiff.Node

// Fields holds the potential and every derived quantity.
type Fields struct {
	Potential    *autodiff.Node // B×1
	Acceleration *autodiff.Node // B×3, a = -∇U
	Hessian      [3]*autodiff.Node
	Laplacian    *autodiff.Node // B×1
	Curl         *autodiff.Node // B×3
}

// HessianAt returns ∂²U/∂x_i∂x_j for every sample as a B×1 node.
func (f Fields) HessianAt(g *autodiff.Graph, i, j int) *autodiff.Node {
	return g.SliceCols(f.Hessian[i], j, j+1)
}

// Potential evaluates U only.
func Potential(g *autodiff.Graph, u PotentialFunc, x *autodiff.Node) *autodiff.Node {
	return u(g, x)
}

// Acceleration evaluates U and a = -∇U with a single differentiation pass.
func Acceleration(g *autodiff.Graph, u PotentialFunc, x *autodiff.Node) (pot, acc *autodiff.Node) {
	pot = u(g, x)
	return pot, g.Neg(gradient(g, pot, x))
}

// Full evaluates U, a, the Hessian rows, the Laplacian and the curl.
//
// The curl is assembled from the off-diagonal Hessian entries as
// (H21−H12, H02−H20, H10−H01); for an exact potential it vanishes.
func Full(g *autodiff.Graph, u PotentialFunc, x *autodiff.Node) Fields {
	pot := u(g, x)
	du := gradient(g, pot, x)
	f := Fields{Potential: pot, Acceleration: g.Neg(du)}
	for i := range f.Hessian {
		f.Hessian[i] = gradient(g, g.SliceCols(du, i, i+1), x)
	}

	lap := f.HessianAt(g, 0, 0)
	for i := 1; i < 3; i++ {
		lap = g.Add(lap, f.HessianAt(g, i, i))
	}
	f.Laplacian = lap

	f.Curl = g.ConcatCols(
		g.Sub(f.HessianAt(g, 2, 1), f.HessianAt(g, 1, 2)),
		g.Sub(f.HessianAt(g, 0, 2), f.HessianAt(g, 2, 0)),
		g.Sub(f.HessianAt(g, 1, 0), f.HessianAt(g, 0, 1)),
	)
	return f
}

// Jacobian returns the rows J_k = ∂f_k/∂x of a vector field f (B×k) with
// respect to x (B×3). Row k is a B×3 node.
func Jacobian(g *autodiff.Graph, f, x *autodiff.Node) []*autodiff.Node {
	_, k := f.Dims()
	rows := make([]*autodiff.Node, k)
	for i := range rows {
		rows[i] = gradient(g, g.SliceCols(f, i, i+1), x)
	}
	return rows
}

// gradient returns ∂(Σ y)/∂x, or zeros when y does not depend on x.
func gradient(g *autodiff.Graph, y, x *autodiff.Node) *autodiff.Node {
	if d := g.Grad(y, x)[0]; d != nil {
		return d
	}
	r, c := x.Dims()
	return g.Fill(r, c, 0)
}
