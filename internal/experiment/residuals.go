package experiment

import (
	"fmt"
	"math"

	"github.com/san-kum/gravnn/internal/pinn"
)

// FieldEvaluator yields the full output of a potential model.
type FieldEvaluator interface {
	Fields(positions [][3]float64) (pinn.FieldSet, error)
}

// Residuals summarizes |∇²U| and |∇×a| over a set of positions. Outside
// the body a gravity field is harmonic and curl free, so both should be
// close to zero for a well trained potential model.
type Residuals struct {
	Laplacian Summary
	Curl      Summary
}

// RunResiduals evaluates the physics residuals in batches of batchSize
// positions, all at once when batchSize <= 0.
func RunResiduals(f FieldEvaluator, positions [][3]float64, batchSize int) (Residuals, error) {
	if len(positions) == 0 {
		return Residuals{}, fmt.Errorf("residuals: no positions")
	}
	if batchSize <= 0 {
		batchSize = len(positions)
	}
	lap := make([]float64, 0, len(positions))
	curl := make([]float64, 0, len(positions))
	for start := 0; start < len(positions); start += batchSize {
		end := min(start+batchSize, len(positions))
		fs, err := f.Fields(positions[start:end])
		if err != nil {
			return Residuals{}, fmt.Errorf("residuals at %d: %w", start, err)
		}
		for _, v := range fs.Laplacian {
			lap = append(lap, math.Abs(v))
		}
		for _, c := range fs.Curl {
			curl = append(curl, norm(c))
		}
	}
	return Residuals{Laplacian: Summarize(lap), Curl: Summarize(curl)}, nil
}
