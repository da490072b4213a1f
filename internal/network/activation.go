package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/gravnn/internal/autodiff"
)

// Activation is a hidden-layer nonlinearity expressed both on the graph and
// on plain values.
type Activation struct {
	Name  string
	Graph func(g *autodiff.Graph, x *autodiff.Node) *autodiff.Node
	Value func(float64) float64
}

var activations = map[string]Activation{
	"tanh": {
		Name:  "tanh",
		Graph: (*autodiff.Graph).Tanh,
		Value: math.Tanh,
	},
	"sin": {
		Name:  "sin",
		Graph: (*autodiff.Graph).Sin,
		Value: math.Sin,
	},
	"softplus": {
		Name:  "softplus",
		Graph: (*autodiff.Graph).Softplus,
		Value: func(v float64) float64 {
			if v > 0 {
				return v + math.Log1p(math.Exp(-v))
			}
			return math.Log1p(math.Exp(v))
		},
	},
}

// LookupActivation returns the registered activation with the given name.
func LookupActivation(name string) (Activation, error) {
	a, ok := activations[name]
	if !ok {
		return Activation{}, fmt.Errorf("unknown activation %q (have %v)", name, ActivationNames())
	}
	return a, nil
}

func ActivationNames() []string {
	names := make([]string, 0, len(activations))
	for k := range activations {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
