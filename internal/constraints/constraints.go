// Package constraints is the registry of physics constraints a model can be
// trained under.
package constraints

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/gravnn/internal/autodiff"
	"github.com/san-kum/gravnn/internal/derivatives"
)

var ErrUnknown = errors.New("unknown constraint")

type Kind string

const (
	NoPINN  Kind = "no_pinn"
	PINNA   Kind = "pinn_a"
	PINNAL  Kind = "pinn_al"
	PINNALC Kind = "pinn_alc"
	PINNAUr Kind = "pinn_a_ur"
)

// Term is a residual the loss can contain.
type Term string

const (
	Acceleration Term = "acceleration"
	Laplacian    Term = "laplacian"
	Curl         Term = "curl"
)

// Constraint describes what a kind evaluates.
type Constraint struct {
	Kind  Kind
	Terms []Term
	// OutputDim is the network output width: 1 for a potential, 3 for a
	// direct acceleration.
	OutputDim int
	// SecondOrder is set when the terms need the Hessian.
	SecondOrder bool
	// Modified divides the network output by |x| before differentiating.
	Modified bool
}

var registry = map[Kind]Constraint{
	NoPINN:  {Kind: NoPINN, Terms: []Term{Acceleration}, OutputDim: 3},
	PINNA:   {Kind: PINNA, Terms: []Term{Acceleration}, OutputDim: 1},
	PINNAL:  {Kind: PINNAL, Terms: []Term{Acceleration, Laplacian}, OutputDim: 1, SecondOrder: true},
	PINNALC: {Kind: PINNALC, Terms: []Term{Acceleration, Laplacian, Curl}, OutputDim: 1, SecondOrder: true},
	PINNAUr: {Kind: PINNAUr, Terms: []Term{Acceleration}, OutputDim: 1, Modified: true},
}

// Parse looks up a registered constraint.
func Parse(name string) (Constraint, error) {
	c, ok := registry[Kind(name)]
	if !ok {
		return Constraint{}, fmt.Errorf("%w %q (have %v)", ErrUnknown, name, Names())
	}
	return c, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

func (c Constraint) Has(t Term) bool {
	for _, term := range c.Terms {
		if term == t {
			return true
		}
	}
	return false
}

// IsPINN reports whether acceleration comes from differentiating a potential.
func (c Constraint) IsPINN() bool { return c.Kind != NoPINN }

// PhysicsTerms returns the terms whose target is identically zero.
func (c Constraint) PhysicsTerms() []Term {
	var out []Term
	for _, t := range c.Terms {
		if t != Acceleration {
			out = append(out, t)
		}
	}
	return out
}

// Forward records the network on a graph.
type Forward func(x *autodiff.Node) *autodiff.Node

// Potential wraps a network as a potential. For Modified constraints the
// output is divided by |x|, so a network converging to a constant yields a
// point-mass field.
func (c Constraint) Potential(net Forward) derivatives.PotentialFunc {
	return func(g *autodiff.Graph, x *autodiff.Node) *autodiff.Node {
		out := net(x)
		if c.Modified {
			out = g.Div(out, g.Sqrt(g.SumCols(g.Square(x))))
		}
		return out
	}
}

// Prediction holds the evaluated terms. Potential is nil for NoPINN.
type Prediction struct {
	Potential *autodiff.Node
	Terms     map[Term]*autodiff.Node
}

// Evaluate records the network and every term the constraint declares.
func (c Constraint) Evaluate(g *autodiff.Graph, net Forward, x *autodiff.Node) Prediction {
	p := Prediction{Terms: make(map[Term]*autodiff.Node, len(c.Terms))}
	switch {
	case !c.IsPINN():
		p.Terms[Acceleration] = net(x)
	case c.SecondOrder:
		f := derivatives.Full(g, c.Potential(net), x)
		p.Potential = f.Potential
		p.Terms[Acceleration] = f.Acceleration
		p.Terms[Laplacian] = f.Laplacian
		if c.Has(Curl) {
			p.Terms[Curl] = f.Curl
		}
	default:
		p.Potential, p.Terms[Acceleration] = derivatives.Acceleration(g, c.Potential(net), x)
	}
	return p
}

// Targets returns the value every term is trained toward: the data for
// acceleration and zeros for the physics terms.
func (c Constraint) Targets(g *autodiff.Graph, accel *autodiff.Node) map[Term]*autodiff.Node {
	rows, _ := accel.Dims()
	out := map[Term]*autodiff.Node{Acceleration: accel}
	for _, t := range c.PhysicsTerms() {
		width := 1
		if t == Curl {
			width = 3
		}
		out[t] = g.Fill(rows, width, 0)
	}
	return out
}

// ScaleTerms multiplies every physics term loss by the adaptive constant,
// a 1×1 node. The acceleration term is returned unchanged.
func ScaleTerms(g *autodiff.Graph, losses map[Term]*autodiff.Node, constant *autodiff.Node) map[Term]*autodiff.Node {
	out := make(map[Term]*autodiff.Node, len(losses))
	for t, l := range losses {
		if t == Acceleration {
			out[t] = l
			continue
		}
		r, cols := l.Dims()
		out[t] = g.Mul(l, g.Expand(constant, r, cols))
	}
	return out
}
