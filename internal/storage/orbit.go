package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/san-kum/gravnn/internal/dynamo"
)

// OrbitExport is a propagated orbit pair in a form other tools can read.
type OrbitExport struct {
	Model      string             `json:"model"`
	Integrator string             `json:"integrator"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Steps      int                `json:"steps"`
	Times      []float64          `json:"times"`
	Truth      [][]float64        `json:"truth"`
	Predicted  [][]float64        `json:"predicted"`
	Metrics    map[string]float64 `json:"metrics"`
}

// NewOrbitExport copies the truth and learned runs. The learned run may be
// shorter when it failed; its metrics are prefixed with "predicted_".
func NewOrbitExport(model, integrator string, cfg dynamo.Config, truth, predicted *dynamo.Result) OrbitExport {
	e := OrbitExport{
		Model:      model,
		Integrator: integrator,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Steps:      len(truth.Times),
		Times:      truth.Times,
		Truth:      make([][]float64, len(truth.States)),
		Metrics:    make(map[string]float64, len(truth.Metrics)),
	}
	for i, s := range truth.States {
		e.Truth[i] = s
	}
	for k, v := range truth.Metrics {
		e.Metrics[k] = v
	}
	if predicted != nil {
		e.Predicted = make([][]float64, len(predicted.States))
		for i, s := range predicted.States {
			e.Predicted[i] = s
		}
		for k, v := range predicted.Metrics {
			e.Metrics["predicted_"+k] = v
		}
	}
	return e
}

func (e OrbitExport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// WriteCSV writes one row per truth step. Predicted columns are empty past
// the end of a failed learned run.
func (e OrbitExport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"t", "x", "y", "z", "vx", "vy", "vz", "pred_x", "pred_y", "pred_z", "pred_vx", "pred_vy", "pred_vz"}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, t := range e.Times {
		clear(row)
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, v := range e.Truth[i] {
			row[1+j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if i < len(e.Predicted) {
			for j, v := range e.Predicted[i] {
				row[7+j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
