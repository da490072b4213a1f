// Package autodiff provides reverse-mode automatic differentiation over dense
// matrices.
//
// A [Graph] records every operation in creation order, which is also a valid
// topological order. Gradients returned by [Graph.Grad] are themselves graph
// nodes built from the same operations, so they can be differentiated again:
//
//	g := autodiff.New()
//	x := g.Leaf(positions)              // B×3
//	u := potential(g, x)                // B×1
//	du := g.Grad(g.Sum(u), x)[0]        // B×3, first derivatives
//	h0 := g.Grad(g.Sum(g.SliceCols(du, 0, 1)), x)[0] // B×3, Hessian row 0
//
// Sums over the batch dimension keep samples independent, which yields
// batched Jacobians without cross-sample terms.
//
// # Replay
//
// Leaves share their matrices with the caller. After mutating leaf values in
// place (or through [Node.Set]), [Graph.Replay] re-evaluates every node,
// including the gradient nodes, without rebuilding the graph.
//
// # Thread Safety
//
// A Graph is NOT thread-safe. Build one graph per goroutine.
package autodiff
