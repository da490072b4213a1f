// Package gravity provides analytic ground-truth fields and samplers.
package gravity

import (
	"math"
	"math/rand/v2"

	"github.com/san-kum/gravnn/internal/dataset"
)

// Model is an analytic gravity field.
type Model interface {
	Potential(x [3]float64) float64
	Acceleration(x [3]float64) [3]float64
}

// PointMass is U = -mu/|x - c|.
type PointMass struct {
	Mu     float64
	Center [3]float64
}

func (p PointMass) Potential(x [3]float64) float64 {
	_, r := p.offset(x)
	return -p.Mu / r
}

func (p PointMass) Acceleration(x [3]float64) [3]float64 {
	d, r := p.offset(x)
	k := -p.Mu / (r * r * r)
	return [3]float64{k * d[0], k * d[1], k * d[2]}
}

func (p PointMass) offset(x [3]float64) ([3]float64, float64) {
	d := [3]float64{x[0] - p.Center[0], x[1] - p.Center[1], x[2] - p.Center[2]}
	return d, norm(d)
}

// Mascons is a sum of point masses, a crude irregular body.
type Mascons []PointMass

func (m Mascons) Potential(x [3]float64) float64 {
	u := 0.0
	for _, p := range m {
		u += p.Potential(x)
	}
	return u
}

func (m Mascons) Acceleration(x [3]float64) [3]float64 {
	var a [3]float64
	for _, p := range m {
		pa := p.Acceleration(x)
		a[0] += pa[0]
		a[1] += pa[1]
		a[2] += pa[2]
	}
	return a
}

// BrillouinRadius is the radius of the smallest origin-centred sphere that
// encloses every mass.
func (m Mascons) BrillouinRadius() float64 {
	r := 0.0
	for _, p := range m {
		r = math.Max(r, norm(p.Center))
	}
	return r
}

// NewMascons places n masses of total mu on a sphere of the given radius
// around a central mass that carries the remaining fraction.
func NewMascons(mu, radius, fraction float64, n int, rng *rand.Rand) Mascons {
	m := Mascons{{Mu: mu * (1 - fraction)}}
	for i := 0; i < n; i++ {
		d := direction(rng)
		m = append(m, PointMass{
			Mu:     mu * fraction / float64(n),
			Center: [3]float64{radius * d[0], radius * d[1], radius * d[2]},
		})
	}
	return m
}

// SampleShell draws n positions with radius uniform in [rmin, rmax] and
// isotropic direction.
func SampleShell(rng *rand.Rand, rmin, rmax float64, n int) [][3]float64 {
	out := make([][3]float64, n)
	for i := range out {
		r := rmin + (rmax-rmin)*rng.Float64()
		d := direction(rng)
		out[i] = [3]float64{r * d[0], r * d[1], r * d[2]}
	}
	return out
}

// Generate evaluates m at every position.
func Generate(m Model, positions [][3]float64) dataset.Data {
	d := dataset.Data{
		X: append([][3]float64(nil), positions...),
		A: make([][3]float64, len(positions)),
		U: make([]float64, len(positions)),
	}
	for i, x := range positions {
		d.A[i] = m.Acceleration(x)
		d.U[i] = m.Potential(x)
	}
	return d
}

// Plane returns an n×n grid of positions spanning [-extent, extent] in the
// two axes other than normal (0, 1 or 2).
func Plane(normal int, extent float64, n int) [][3]float64 {
	out := make([][3]float64, 0, n*n)
	a, b := (normal+1)%3, (normal+2)%3
	step := 0.0
	if n > 1 {
		step = 2 * extent / float64(n-1)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var p [3]float64
			p[a] = -extent + float64(i)*step
			p[b] = -extent + float64(j)*step
			out = append(out, p)
		}
	}
	return out
}

func direction(rng *rand.Rand) [3]float64 {
	for {
		v := [3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		if n := norm(v); n > 1e-12 {
			return [3]float64{v[0] / n, v[1] / n, v[2] / n}
		}
	}
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
