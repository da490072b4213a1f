package gravity

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestPointMassGradient(t *testing.T) {
	p := PointMass{Mu: 3, Center: [3]float64{0.1, -0.2, 0.3}}
	x := [3]float64{1.5, 0.7, -2}
	a := p.Acceleration(x)
	const h = 1e-6
	for i := 0; i < 3; i++ {
		xp, xm := x, x
		xp[i] += h
		xm[i] -= h
		want := -(p.Potential(xp) - p.Potential(xm)) / (2 * h)
		if math.Abs(a[i]-want) > 1e-6 {
			t.Errorf("a[%d] = %v, -dU/dx = %v", i, a[i], want)
		}
	}
}

func TestMasconsTotalMass(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	m := NewMascons(2, 0.5, 0.3, 10, rng)
	total := 0.0
	for _, p := range m {
		total += p.Mu
	}
	if math.Abs(total-2) > 1e-12 {
		t.Errorf("total mu = %v", total)
	}
	if math.Abs(m.BrillouinRadius()-0.5) > 1e-12 {
		t.Errorf("brillouin radius %v", m.BrillouinRadius())
	}
	// far field approaches a point mass
	far := [3]float64{1000, 0, 0}
	if got, want := m.Potential(far), -2.0/1000; math.Abs(got-want)/math.Abs(want) > 1e-3 {
		t.Errorf("far potential %v, want %v", got, want)
	}
}

func TestSampleShell(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for _, x := range SampleShell(rng, 1, 10, 500) {
		r := norm(x)
		if r < 1-1e-12 || r > 10+1e-12 {
			t.Fatalf("radius %v outside shell", r)
		}
	}
}

func TestGenerateAndPlane(t *testing.T) {
	pts := Plane(2, 1, 3)
	if len(pts) != 9 {
		t.Fatalf("plane has %d points", len(pts))
	}
	for _, p := range pts {
		if p[2] != 0 {
			t.Fatalf("point %v not in xy plane", p)
		}
	}
	d := Generate(PointMass{Mu: 1}, [][3]float64{{2, 0, 0}})
	if d.U[0] != -0.5 || d.A[0][0] != -0.25 {
		t.Errorf("generated %+v", d)
	}
}
