package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Node is a value in the graph together with the recipe that produced it.
type Node struct {
	g        *Graph
	id       int
	op       string
	value    *mat.Dense
	inputs   []*Node
	eval     func(dst *mat.Dense)
	partials []func(grad *Node) *Node
}

// Value returns the node's current value. Callers must not resize it.
func (n *Node) Value() *mat.Dense { return n.value }

// Dims returns the rows and columns of the node's value.
func (n *Node) Dims() (int, int) { return n.value.Dims() }

// Scalar returns the top-left element, used for 1×1 results.
func (n *Node) Scalar() float64 { return n.value.At(0, 0) }

// Op names the operation that produced the node.
func (n *Node) Op() string { return n.op }

// IsLeaf reports whether the node was created by Leaf or Fill.
func (n *Node) IsLeaf() bool { return n.eval == nil }

// Set copies m into a leaf's value. The dimensions must match.
func (n *Node) Set(m mat.Matrix) {
	if !n.IsLeaf() {
		panic("autodiff: Set on a non-leaf node")
	}
	r, c := m.Dims()
	nr, nc := n.value.Dims()
	if r != nr || c != nc {
		panic(fmt.Sprintf("autodiff: Set dims %dx%d into %dx%d leaf", r, c, nr, nc))
	}
	n.value.Copy(m)
}

// Graph is an append-only record of operations.
type Graph struct {
	nodes []*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make([]*Node, 0, 256)}
}

// Len returns the number of recorded nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Leaf wraps m without copying. Mutations of m are visible on Replay.
func (g *Graph) Leaf(m *mat.Dense) *Node {
	n := &Node{g: g, id: len(g.nodes), op: "leaf", value: m}
	g.nodes = append(g.nodes, n)
	return n
}

// Fill returns a new r×c leaf with every element set to v.
func (g *Graph) Fill(r, c int, v float64) *Node {
	m := mat.NewDense(r, c, nil)
	if v != 0 {
		raw := m.RawMatrix()
		for i := range raw.Data {
			raw.Data[i] = v
		}
	}
	n := g.Leaf(m)
	n.op = "fill"
	return n
}

// Replay re-evaluates all non-leaf nodes in creation order.
func (g *Graph) Replay() {
	for _, n := range g.nodes {
		if n.eval != nil {
			n.eval(n.value)
		}
	}
}

func (g *Graph) apply(op string, r, c int, inputs []*Node, eval func(dst *mat.Dense)) *Node {
	for _, in := range inputs {
		if in.g != g {
			panic(fmt.Sprintf("autodiff: %s mixes nodes from different graphs", op))
		}
	}
	n := &Node{
		g:      g,
		id:     len(g.nodes),
		op:     op,
		value:  mat.NewDense(r, c, nil),
		inputs: inputs,
		eval:   eval,
	}
	eval(n.value)
	g.nodes = append(g.nodes, n)
	return n
}

// Grad returns d(sum of y)/dx for every x in xs. A nil entry means y does not
// depend on that x. The returned nodes belong to g and can be differentiated
// again.
func (g *Graph) Grad(y *Node, xs ...*Node) []*Node {
	out := make([]*Node, len(xs))
	if len(xs) == 0 {
		return out
	}

	lo := y.id
	reach := make([]bool, y.id+1)
	for _, x := range xs {
		if x.g != g {
			panic("autodiff: Grad with node from a different graph")
		}
		if x.id <= y.id {
			reach[x.id] = true
			lo = min(lo, x.id)
		}
	}
	for i := lo; i <= y.id; i++ {
		if reach[i] {
			continue
		}
		for _, in := range g.nodes[i].inputs {
			if reach[in.id] {
				reach[i] = true
				break
			}
		}
	}
	if !reach[y.id] {
		return out
	}

	grads := make([]*Node, y.id+1)
	r, c := y.Dims()
	grads[y.id] = g.Fill(r, c, 1)

	for i := y.id; i >= lo; i-- {
		gi := grads[i]
		n := g.nodes[i]
		if gi == nil || n.partials == nil {
			continue
		}
		for k, in := range n.inputs {
			if !reach[in.id] {
				continue
			}
			d := n.partials[k](gi)
			if grads[in.id] == nil {
				grads[in.id] = d
			} else {
				grads[in.id] = g.Add(grads[in.id], d)
			}
		}
	}

	for k, x := range xs {
		if x.id <= y.id {
			out[k] = grads[x.id]
		}
	}
	return out
}

func sameDims(op string, a, b *Node) (int, int) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Sprintf("autodiff: %s dims mismatch %dx%d vs %dx%d", op, ar, ac, br, bc))
	}
	return ar, ac
}
