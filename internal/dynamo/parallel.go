package dynamo

import (
	"context"
	"sync"
)

// Factory builds the system, integrator and metrics for run i. Each run
// gets its own instances; a system handed out for one index must not be
// shared with another.
type Factory func(i int) (System, Integrator, []Metric)

type Ensemble struct {
	factory Factory
}

func NewEnsemble(factory Factory) *Ensemble {
	return &Ensemble{factory: factory}
}

// Run propagates every initial state on its own goroutine. Results are in
// input order; the first error is returned alongside them.
func (e *Ensemble) Run(ctx context.Context, initial []State, cfg Config) ([]*Result, error) {
	results, errs := e.RunEach(ctx, initial, cfg)
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunEach is Run with the error of every run kept at its index. A failed
// run may still carry the partial result up to the failure.
func (e *Ensemble) RunEach(ctx context.Context, initial []State, cfg Config) ([]*Result, []error) {
	results := make([]*Result, len(initial))
	errs := make([]error, len(initial))

	var wg sync.WaitGroup
	for i := range initial {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			dyn, integ, metrics := e.factory(idx)
			s := New(dyn, integ)
			for _, m := range metrics {
				s.AddMetric(m)
			}

			results[idx], errs[idx] = s.Run(ctx, initial[idx], cfg)
		}(i)
	}

	wg.Wait()
	return results, errs
}
