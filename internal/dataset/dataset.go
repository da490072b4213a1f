// Package dataset holds ground-truth samples and batches them for training.
package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

var ErrLength = errors.New("dataset: inconsistent sample counts")

// Data is a set of (position, acceleration, potential) samples in physical
// units.
type Data struct {
	X [][3]float64
	A [][3]float64
	U []float64
}

func (d Data) Len() int { return len(d.X) }

func (d Data) Validate() error {
	if len(d.A) != len(d.X) || len(d.U) != len(d.X) {
		return fmt.Errorf("%w: x %d, a %d, u %d", ErrLength, len(d.X), len(d.A), len(d.U))
	}
	if len(d.X) == 0 {
		return fmt.Errorf("%w: empty", ErrLength)
	}
	return nil
}

// Subset copies the samples at idx.
func (d Data) Subset(idx []int) Data {
	out := Data{
		X: make([][3]float64, len(idx)),
		A: make([][3]float64, len(idx)),
		U: make([]float64, len(idx)),
	}
	for i, k := range idx {
		out.X[i], out.A[i], out.U[i] = d.X[k], d.A[k], d.U[k]
	}
	return out
}

// Append concatenates two data sets.
func (d Data) Append(o Data) Data {
	return Data{
		X: append(append([][3]float64(nil), d.X...), o.X...),
		A: append(append([][3]float64(nil), d.A...), o.A...),
		U: append(append([]float64(nil), d.U...), o.U...),
	}
}

// Split holds back frac of the samples, chosen with rng, for validation.
func (d Data) Split(frac float64, rng *rand.Rand) (train, val Data) {
	n := d.Len()
	perm := rng.Perm(n)
	k := int(frac * float64(n))
	return d.Subset(perm[k:]), d.Subset(perm[:k])
}

// Matrices returns x (N×3), a (N×3) and u (N×1).
func (d Data) Matrices() (x, a, u *mat.Dense) {
	return Vectors(d.X), Vectors(d.A), mat.NewDense(len(d.U), 1, append([]float64(nil), d.U...))
}

// Batches partitions [0, n) into index batches of at most size. Order is
// shuffled when rng is not nil.
func Batches(n, size int, rng *rand.Rand) [][]int {
	if size <= 0 || size > n {
		size = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if rng != nil {
		rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	var out [][]int
	for lo := 0; lo < n; lo += size {
		out = append(out, idx[lo:min(lo+size, n)])
	}
	return out
}

// Vectors packs rows into an N×3 matrix.
func Vectors(v [][3]float64) *mat.Dense {
	data := make([]float64, 0, 3*len(v))
	for _, r := range v {
		data = append(data, r[0], r[1], r[2])
	}
	return mat.NewDense(len(v), 3, data)
}

// Rows unpacks an N×3 matrix.
func Rows(m mat.Matrix) [][3]float64 {
	r, _ := m.Dims()
	out := make([][3]float64, r)
	for i := range out {
		out[i] = [3]float64{m.At(i, 0), m.At(i, 1), m.At(i, 2)}
	}
	return out
}

// Column unpacks the first column of a matrix.
func Column(m mat.Matrix) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.At(i, 0)
	}
	return out
}
