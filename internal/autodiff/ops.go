package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

func passThrough(grad *Node) *Node { return grad }

// Add returns a + b.
func (g *Graph) Add(a, b *Node) *Node {
	r, c := sameDims("add", a, b)
	n := g.apply("add", r, c, []*Node{a, b}, func(dst *mat.Dense) {
		dst.Add(a.value, b.value)
	})
	n.partials = []func(*Node) *Node{passThrough, passThrough}
	return n
}

// Sub returns a - b.
func (g *Graph) Sub(a, b *Node) *Node {
	r, c := sameDims("sub", a, b)
	n := g.apply("sub", r, c, []*Node{a, b}, func(dst *mat.Dense) {
		dst.Sub(a.value, b.value)
	})
	n.partials = []func(*Node) *Node{
		passThrough,
		func(grad *Node) *Node { return g.Neg(grad) },
	}
	return n
}

// Mul returns the element-wise product of a and b.
func (g *Graph) Mul(a, b *Node) *Node {
	r, c := sameDims("mul", a, b)
	n := g.apply("mul", r, c, []*Node{a, b}, func(dst *mat.Dense) {
		dst.MulElem(a.value, b.value)
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.Mul(grad, b) },
		func(grad *Node) *Node { return g.Mul(grad, a) },
	}
	return n
}

// Div returns the element-wise quotient a / b.
func (g *Graph) Div(a, b *Node) *Node {
	r, c := sameDims("div", a, b)
	var n *Node
	n = g.apply("div", r, c, []*Node{a, b}, func(dst *mat.Dense) {
		dst.DivElem(a.value, b.value)
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.Div(grad, b) },
		func(grad *Node) *Node { return g.Neg(g.Div(g.Mul(grad, n), b)) },
	}
	return n
}

// Neg returns -a.
func (g *Graph) Neg(a *Node) *Node {
	return g.Scale(a, -1)
}

// Scale returns s·a.
func (g *Graph) Scale(a *Node, s float64) *Node {
	r, c := a.Dims()
	n := g.apply("scale", r, c, []*Node{a}, func(dst *mat.Dense) {
		dst.Scale(s, a.value)
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.Scale(grad, s) },
	}
	return n
}

// AddConst returns a + s element-wise.
func (g *Graph) AddConst(a *Node, s float64) *Node {
	r, c := a.Dims()
	n := g.apply("add_const", r, c, []*Node{a}, func(dst *mat.Dense) {
		dst.Apply(func(_, _ int, v float64) float64 { return v + s }, a.value)
	})
	n.partials = []func(*Node) *Node{passThrough}
	return n
}

// MatMul returns the matrix product a·b.
func (g *Graph) MatMul(a, b *Node) *Node {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("autodiff: matmul dims mismatch %dx%d · %dx%d", ar, ac, br, bc))
	}
	n := g.apply("matmul", ar, bc, []*Node{a, b}, func(dst *mat.Dense) {
		dst.Mul(a.value, b.value)
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.MatMul(grad, g.T(b)) },
		func(grad *Node) *Node { return g.MatMul(g.T(a), grad) },
	}
	return n
}

// T returns the transpose of a.
func (g *Graph) T(a *Node) *Node {
	r, c := a.Dims()
	n := g.apply("transpose", c, r, []*Node{a}, func(dst *mat.Dense) {
		dst.Copy(a.value.T())
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.T(grad) },
	}
	return n
}

func (g *Graph) unary(op string, a *Node, fn func(float64) float64) *Node {
	r, c := a.Dims()
	return g.apply(op, r, c, []*Node{a}, func(dst *mat.Dense) {
		dst.Apply(func(_, _ int, v float64) float64 { return fn(v) }, a.value)
	})
}

// Tanh applies the hyperbolic tangent element-wise.
func (g *Graph) Tanh(a *Node) *Node {
	var n *Node
	n = g.unary("tanh", a, math.Tanh)
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node {
			return g.Mul(grad, g.AddConst(g.Neg(g.Mul(n, n)), 1))
		},
	}
	return n
}

// Sin applies sin element-wise.
func (g *Graph) Sin(a *Node) *Node {
	n := g.unary("sin", a, math.Sin)
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.Mul(grad, g.Cos(a)) },
	}
	return n
}

// Cos applies cos element-wise.
func (g *Graph) Cos(a *Node) *Node {
	n := g.unary("cos", a, math.Cos)
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.Neg(g.Mul(grad, g.Sin(a))) },
	}
	return n
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func softplus(v float64) float64 {
	if v > 0 {
		return v + math.Log1p(math.Exp(-v))
	}
	return math.Log1p(math.Exp(v))
}

// Sigmoid applies the logistic function element-wise.
func (g *Graph) Sigmoid(a *Node) *Node {
	var n *Node
	n = g.unary("sigmoid", a, sigmoid)
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node {
			return g.Mul(grad, g.Mul(n, g.AddConst(g.Neg(n), 1)))
		},
	}
	return n
}

// Softplus applies log(1+exp(a)) element-wise.
func (g *Graph) Softplus(a *Node) *Node {
	n := g.unary("softplus", a, softplus)
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.Mul(grad, g.Sigmoid(a)) },
	}
	return n
}

// Sqrt applies the square root element-wise.
func (g *Graph) Sqrt(a *Node) *Node {
	var n *Node
	n = g.unary("sqrt", a, math.Sqrt)
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.Div(g.Scale(grad, 0.5), n) },
	}
	return n
}

// SumCols sums each row across its columns: r×c -> r×1.
func (g *Graph) SumCols(a *Node) *Node {
	r, c := a.Dims()
	n := g.apply("sum_cols", r, 1, []*Node{a}, func(dst *mat.Dense) {
		src := a.value.RawMatrix()
		out := dst.RawMatrix()
		for i := 0; i < r; i++ {
			row := src.Data[i*src.Stride : i*src.Stride+c]
			s := 0.0
			for _, v := range row {
				s += v
			}
			out.Data[i*out.Stride] = s
		}
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.BroadcastCols(grad, c) },
	}
	return n
}

// BroadcastCols repeats an r×1 column c times: r×1 -> r×c.
func (g *Graph) BroadcastCols(a *Node, c int) *Node {
	r, ac := a.Dims()
	if ac != 1 {
		panic(fmt.Sprintf("autodiff: broadcast_cols needs a column, got %dx%d", r, ac))
	}
	n := g.apply("broadcast_cols", r, c, []*Node{a}, func(dst *mat.Dense) {
		src := a.value.RawMatrix()
		out := dst.RawMatrix()
		for i := 0; i < r; i++ {
			v := src.Data[i*src.Stride]
			row := out.Data[i*out.Stride : i*out.Stride+c]
			for j := range row {
				row[j] = v
			}
		}
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.SumCols(grad) },
	}
	return n
}

// SumRows sums each column across its rows: r×c -> 1×c.
func (g *Graph) SumRows(a *Node) *Node {
	r, c := a.Dims()
	n := g.apply("sum_rows", 1, c, []*Node{a}, func(dst *mat.Dense) {
		src := a.value.RawMatrix()
		out := dst.RawMatrix()
		for j := 0; j < c; j++ {
			out.Data[j] = 0
		}
		for i := 0; i < r; i++ {
			row := src.Data[i*src.Stride : i*src.Stride+c]
			for j, v := range row {
				out.Data[j] += v
			}
		}
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.BroadcastRows(grad, r) },
	}
	return n
}

// BroadcastRows repeats a 1×c row r times: 1×c -> r×c.
func (g *Graph) BroadcastRows(a *Node, r int) *Node {
	ar, c := a.Dims()
	if ar != 1 {
		panic(fmt.Sprintf("autodiff: broadcast_rows needs a row, got %dx%d", ar, c))
	}
	n := g.apply("broadcast_rows", r, c, []*Node{a}, func(dst *mat.Dense) {
		src := a.value.RawMatrix()
		out := dst.RawMatrix()
		for i := 0; i < r; i++ {
			copy(out.Data[i*out.Stride:i*out.Stride+c], src.Data[:c])
		}
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.SumRows(grad) },
	}
	return n
}

// SliceCols returns columns [i, j) of a.
func (g *Graph) SliceCols(a *Node, i, j int) *Node {
	r, c := a.Dims()
	if i < 0 || j > c || i >= j {
		panic(fmt.Sprintf("autodiff: slice_cols [%d,%d) out of range for %d columns", i, j, c))
	}
	n := g.apply("slice_cols", r, j-i, []*Node{a}, func(dst *mat.Dense) {
		dst.Copy(a.value.Slice(0, r, i, j))
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.PadCols(grad, i, c) },
	}
	return n
}

// PadCols places a (r×k) at column offset i of an r×c zero matrix.
func (g *Graph) PadCols(a *Node, i, c int) *Node {
	r, k := a.Dims()
	if i < 0 || i+k > c {
		panic(fmt.Sprintf("autodiff: pad_cols offset %d width %d exceeds %d columns", i, k, c))
	}
	n := g.apply("pad_cols", r, c, []*Node{a}, func(dst *mat.Dense) {
		dst.Zero()
		dst.Slice(0, r, i, i+k).(*mat.Dense).Copy(a.value)
	})
	n.partials = []func(*Node) *Node{
		func(grad *Node) *Node { return g.SliceCols(grad, i, i+k) },
	}
	return n
}

// Square returns a·a element-wise.
func (g *Graph) Square(a *Node) *Node { return g.Mul(a, a) }

// Sum reduces a to a 1×1 node.
func (g *Graph) Sum(a *Node) *Node { return g.SumRows(g.SumCols(a)) }

// Mean reduces a to the 1×1 average of its elements.
func (g *Graph) Mean(a *Node) *Node {
	r, c := a.Dims()
	return g.Scale(g.Sum(a), 1/float64(r*c))
}

// Expand broadcasts a 1×1 node to r×c.
func (g *Graph) Expand(s *Node, r, c int) *Node {
	return g.BroadcastRows(g.BroadcastCols(s, c), r)
}

// ConcatCols joins nodes with equal row counts side by side.
func (g *Graph) ConcatCols(parts ...*Node) *Node {
	if len(parts) == 1 {
		return parts[0]
	}
	total := 0
	for _, p := range parts {
		_, c := p.Dims()
		total += c
	}
	var out *Node
	offset := 0
	for _, p := range parts {
		_, c := p.Dims()
		padded := g.PadCols(p, offset, total)
		offset += c
		if out == nil {
			out = padded
		} else {
			out = g.Add(out, padded)
		}
	}
	return out
}
