package dynamo

import (
	"fmt"
	"math"
)

// Field yields the gravitational acceleration at a position.
type Field interface {
	Acceleration(x [3]float64) ([3]float64, error)
}

// PotentialField is a Field that can also report the potential, which
// makes the orbit energy available.
type PotentialField interface {
	Field
	Potential(x [3]float64) (float64, error)
}

// Orbit is a test particle moving in a field. The first evaluation error
// is kept and every later derivative is NaN so the run stops.
type Orbit struct {
	field Field
	err   error
}

func NewOrbit(field Field) *Orbit {
	return &Orbit{field: field}
}

func (o *Orbit) StateDim() int { return 6 }

func (o *Orbit) Derive(x State, t float64) State {
	dx := make(State, 6)
	if o.err != nil {
		return nan(dx)
	}
	a, err := o.field.Acceleration(x.Position())
	if err != nil {
		o.err = fmt.Errorf("%w at t=%.4f: %w", ErrField, t, err)
		return nan(dx)
	}
	copy(dx[:3], x[3:6])
	copy(dx[3:], a[:])
	return dx
}

func (o *Orbit) Err() error { return o.err }

// Energy is the specific orbital energy; NaN when the field has no potential.
func (o *Orbit) Energy(x State) float64 {
	pf, ok := o.field.(PotentialField)
	if !ok {
		return math.NaN()
	}
	u, err := pf.Potential(x.Position())
	if err != nil {
		return math.NaN()
	}
	v := x.Velocity()
	return 0.5*(v[0]*v[0]+v[1]*v[1]+v[2]*v[2]) + u
}

// AngularMomentum returns the specific angular momentum r × v.
func AngularMomentum(x State) [3]float64 {
	r, v := x.Position(), x.Velocity()
	return [3]float64{
		r[1]*v[2] - r[2]*v[1],
		r[2]*v[0] - r[0]*v[2],
		r[0]*v[1] - r[1]*v[0],
	}
}

// Circular returns the initial state of a circular orbit of the given
// radius in the xy plane around a point mass mu.
func Circular(radius, mu float64) State {
	return Elliptic(radius, 0, mu)
}

// Elliptic starts at periapsis radius with eccentricity e in the xy plane.
func Elliptic(periapsis, e, mu float64) State {
	v := math.Sqrt(mu * (1 + e) / periapsis)
	return State{periapsis, 0, 0, 0, v, 0}
}

// Period is the Keplerian period of an orbit with the given periapsis and
// eccentricity.
func Period(periapsis, e, mu float64) float64 {
	a := periapsis / (1 - e)
	return 2 * math.Pi * math.Sqrt(a*a*a/mu)
}

func nan(s State) State {
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
