package metrics

import (
	"math"

	"github.com/san-kum/gravnn/internal/dynamo"
)

// Bounded is the fraction of samples whose radius stayed inside
// [min, max]; an orbit that impacts or escapes scores below one.
type Bounded struct {
	min, max   float64
	violations int
	samples    int
}

func NewBounded(min, max float64) *Bounded {
	return &Bounded{min: min, max: max}
}

func (b *Bounded) Name() string { return "bounded" }

func (b *Bounded) Observe(x dynamo.State, t float64) {
	b.samples++
	p := x.Position()
	r := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
	if r < b.min || r > b.max {
		b.violations++
	}
}

func (b *Bounded) Value() float64 {
	if b.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(b.violations)/float64(b.samples)
}

func (b *Bounded) Reset() {
	b.violations = 0
	b.samples = 0
}
