// Package network holds the multilayer perceptron the model trains.
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"github.com/san-kum/gravnn/internal/autodiff"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrShape = errors.New("network: shape mismatch")

// Layer is a dense layer. W is in×out, B is 1×out.
type Layer struct {
	W *mat.Dense
	B *mat.Dense
}

// Network is a fully connected MLP with a linear output layer.
type Network struct {
	Layers     []Layer
	activation Activation
}

// New builds a network with Glorot-uniform weights and zero biases.
func New(input int, hidden []int, output int, activation string, seed uint64) (*Network, error) {
	act, err := LookupActivation(activation)
	if err != nil {
		return nil, err
	}
	if input <= 0 || output <= 0 {
		return nil, fmt.Errorf("%w: input %d output %d", ErrShape, input, output)
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	widths := append(append([]int{input}, hidden...), output)
	n := &Network{activation: act}
	for i := 0; i+1 < len(widths); i++ {
		in, out := widths[i], widths[i+1]
		if out <= 0 {
			return nil, fmt.Errorf("%w: layer %d has width %d", ErrShape, i, out)
		}
		limit := math.Sqrt(6 / float64(in+out))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}
		w := mat.NewDense(in, out, nil)
		w.Apply(func(_, _ int, _ float64) float64 { return dist.Rand() }, w)
		n.Layers = append(n.Layers, Layer{W: w, B: mat.NewDense(1, out, nil)})
	}
	return n, nil
}

func (n *Network) Activation() string { return n.activation.Name }

func (n *Network) InputDim() int {
	r, _ := n.Layers[0].W.Dims()
	return r
}

func (n *Network) OutputDim() int {
	_, c := n.Layers[len(n.Layers)-1].W.Dims()
	return c
}

// Hidden returns the hidden layer widths.
func (n *Network) Hidden() []int {
	out := make([]int, 0, len(n.Layers)-1)
	for _, l := range n.Layers[:len(n.Layers)-1] {
		_, c := l.W.Dims()
		out = append(out, c)
	}
	return out
}

// Params returns the trainable matrices in layer order (W0, B0, W1, B1, ...).
// The matrices are shared, not copied.
func (n *Network) Params() []*mat.Dense {
	ps := make([]*mat.Dense, 0, 2*len(n.Layers))
	for _, l := range n.Layers {
		ps = append(ps, l.W, l.B)
	}
	return ps
}

// NumParams counts trainable scalars.
func (n *Network) NumParams() int {
	total := 0
	for _, p := range n.Params() {
		r, c := p.Dims()
		total += r * c
	}
	return total
}

// Bound is a network whose parameters are leaves of a graph.
type Bound struct {
	net    *Network
	g      *autodiff.Graph
	Params []*autodiff.Node
}

// Bind registers the parameters as graph leaves. The leaves share storage
// with the network so in-place updates are visible to Graph.Replay.
func (n *Network) Bind(g *autodiff.Graph) *Bound {
	b := &Bound{net: n, g: g}
	for _, p := range n.Params() {
		b.Params = append(b.Params, g.Leaf(p))
	}
	return b
}

// Forward records the network applied to x (B×in) on the graph.
func (b *Bound) Forward(x *autodiff.Node) *autodiff.Node {
	g := b.g
	rows, _ := x.Dims()
	h := x
	last := len(b.net.Layers) - 1
	for i := range b.net.Layers {
		w, bias := b.Params[2*i], b.Params[2*i+1]
		h = g.Add(g.MatMul(h, w), g.BroadcastRows(bias, rows))
		if i < last {
			h = b.net.activation.Graph(g, h)
		}
	}
	return h
}

// Predict evaluates the network without recording a graph.
func (n *Network) Predict(x mat.Matrix) *mat.Dense {
	var h mat.Dense
	h.CloneFrom(x)
	last := len(n.Layers) - 1
	for i, l := range n.Layers {
		var next mat.Dense
		next.Mul(&h, l.W)
		bias := l.B.RawRowView(0)
		next.Apply(func(_, j int, v float64) float64 {
			v += bias[j]
			if i < last {
				v = n.activation.Value(v)
			}
			return v
		}, &next)
		h = next
	}
	return &h
}

// Clone returns a deep copy.
func (n *Network) Clone() *Network {
	c := &Network{activation: n.activation}
	for _, l := range n.Layers {
		c.Layers = append(c.Layers, Layer{W: mat.DenseCopyOf(l.W), B: mat.DenseCopyOf(l.B)})
	}
	return c
}

// CopyFrom overwrites the parameters with those of src.
func (n *Network) CopyFrom(src *Network) error {
	if len(src.Layers) != len(n.Layers) {
		return fmt.Errorf("%w: %d layers, want %d", ErrShape, len(src.Layers), len(n.Layers))
	}
	for i, l := range src.Layers {
		if !sameShape(l.W, n.Layers[i].W) || !sameShape(l.B, n.Layers[i].B) {
			return fmt.Errorf("%w: layer %d", ErrShape, i)
		}
	}
	for i, l := range src.Layers {
		n.Layers[i].W.Copy(l.W)
		n.Layers[i].B.Copy(l.B)
	}
	return nil
}

// RoundFloat32 rounds every parameter to float32 precision.
func (n *Network) RoundFloat32() {
	for _, p := range n.Params() {
		p.Apply(func(_, _ int, v float64) float64 { return float64(float32(v)) }, p)
	}
}

type layerFile struct {
	In  int       `json:"in"`
	Out int       `json:"out"`
	W   []float64 `json:"w"`
	B   []float64 `json:"b"`
}

type networkFile struct {
	Activation string      `json:"activation"`
	Layers     []layerFile `json:"layers"`
}

func (n *Network) MarshalJSON() ([]byte, error) {
	f := networkFile{Activation: n.activation.Name}
	for _, l := range n.Layers {
		in, out := l.W.Dims()
		f.Layers = append(f.Layers, layerFile{
			In:  in,
			Out: out,
			W:   append([]float64(nil), l.W.RawMatrix().Data...),
			B:   append([]float64(nil), l.B.RawRowView(0)...),
		})
	}
	return json.Marshal(f)
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var f networkFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	act, err := LookupActivation(f.Activation)
	if err != nil {
		return err
	}
	if len(f.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrShape)
	}
	layers := make([]Layer, 0, len(f.Layers))
	for i, l := range f.Layers {
		if len(l.W) != l.In*l.Out || len(l.B) != l.Out || l.In <= 0 || l.Out <= 0 {
			return fmt.Errorf("%w: layer %d", ErrShape, i)
		}
		if i > 0 && f.Layers[i-1].Out != l.In {
			return fmt.Errorf("%w: layer %d input %d after output %d", ErrShape, i, l.In, f.Layers[i-1].Out)
		}
		layers = append(layers, Layer{
			W: mat.NewDense(l.In, l.Out, append([]float64(nil), l.W...)),
			B: mat.NewDense(1, l.Out, append([]float64(nil), l.B...)),
		})
	}
	n.Layers = layers
	n.activation = act
	return nil
}

// Save writes the network as JSON.
func (n *Network) Save(path string) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a network written by Save.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	n := &Network{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return n, nil
}

func sameShape(a, b *mat.Dense) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}
