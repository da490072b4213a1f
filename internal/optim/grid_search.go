package optim

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"
	"sync"
)

// Trial runs one configuration and returns the score to minimize.
type Trial func(ctx context.Context, params map[string]float64) (float64, error)

// TrialResult is the outcome of one grid point.
type TrialResult struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Workers bounds concurrent trials; 0 means GOMAXPROCS.
	Workers int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Points enumerates the grid in lexical order of the parameter list.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.collect(depth+1, newParams, out)
	}
}

// Search runs every grid point and returns the lowest-scoring parameters.
// Failed trials are reported in results and never win.
func (g *GridSearch) Search(ctx context.Context, trial Trial) (map[string]float64, float64, []TrialResult, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, errors.New("optim: parameter names and ranges differ in length")
	}
	points := g.Points()
	results := make([]TrialResult, len(points))

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				score, err := trial(ctx, points[i])
				results[i] = TrialResult{Params: points[i], Score: score, Err: err}
			}
		}()
	}
feed:
	for i := range points {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, r := range results {
		if r.Params == nil || r.Err != nil || math.IsNaN(r.Score) {
			continue
		}
		if r.Score < best {
			best = r.Score
			bestParams = r.Params
		}
	}
	if err := ctx.Err(); err != nil {
		return bestParams, best, results, err
	}
	if bestParams == nil {
		return nil, best, results, errors.New("optim: no trial succeeded")
	}
	return bestParams, best, results, nil
}

// Ranked returns successful results sorted by score.
func Ranked(results []TrialResult) []TrialResult {
	var out []TrialResult
	for _, r := range results {
		if r.Params != nil && r.Err == nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}
