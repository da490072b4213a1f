package viz

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/gravnn/internal/experiment"
	"github.com/san-kum/gravnn/internal/pinn"
)

// LossCurve plots training loss, and validation loss when recorded, on a
// log10 axis.
func LossCurve(h *pinn.History, width, height int) string {
	if h == nil || len(h.Epochs) == 0 {
		return Subtle.Render("no training history")
	}
	train := make([]float64, 0, len(h.Epochs))
	val := make([]float64, 0, len(h.Epochs))
	for _, e := range h.Epochs {
		train = append(train, log10(e.Train.Loss))
		if e.Validation != nil {
			val = append(val, log10(e.Validation.Loss))
		}
	}
	series := [][]float64{finite(train)}
	legend := SparkGood.Render("── train")
	if v := finite(val); len(v) > 0 {
		series = append(series, v)
		legend += "  " + SparkPoor.Render("── validation")
	}
	if len(series[0]) == 0 {
		return Subtle.Render("loss never finite")
	}
	graph := asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Red),
		asciigraph.Caption("log10 loss per epoch"),
	)
	return graph + "\n" + legend
}

// ErrorProfile plots the rolling mean acceleration percent error against
// sample index, ordered by radius.
func ErrorProfile(e *experiment.Extrapolation, width, height int) string {
	trend := finite(e.Trend)
	if len(trend) == 0 {
		return Subtle.Render("not enough samples for a trend")
	}
	caption := fmt.Sprintf("percent error, r = %.3g … %.3g", e.Radii[0], e.Radii[len(e.Radii)-1])
	graph := asciigraph.Plot(trend,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
	return graph + "\n" +
		Metric("interpolation", e.Interpolation.Mean) + "\n" +
		Metric("extrapolation", e.Extrapolation.Mean)
}

// heat goes from low to high error.
var heat = []lipgloss.Color{"#1a9850", "#91cf60", "#d9ef8b", "#fee08b", "#fc8d59", "#d73027"}

// Heatmap draws each grid point as a two-column cell colored by percent
// error, saturating at maxPercent. Masked points are blank.
func Heatmap(p *experiment.Planes, maxPercent float64) string {
	var b strings.Builder
	for i := 0; i < p.Samples; i++ {
		for j := 0; j < p.Samples; j++ {
			v := p.At(i, j)
			if math.IsNaN(v) {
				b.WriteString("  ")
				continue
			}
			bin := int(v / maxPercent * float64(len(heat)))
			bin = max(0, min(bin, len(heat)-1))
			b.WriteString(lipgloss.NewStyle().Foreground(heat[bin]).Render("██"))
		}
		b.WriteByte('\n')
	}
	b.WriteString(Subtle.Render(fmt.Sprintf("0 … %.3g%%  mean %.3g%%  max %.3g%%", maxPercent, p.Summary.Mean, p.Summary.Max)))
	return b.String()
}

// OrbitView draws the truth and predicted tracks in the xy plane.
// Cells only the truth visits are green, prediction-only cells are red.
func OrbitView(t *experiment.Trajectory, width, height int) string {
	truth, pred := t.Truth.Positions(), t.Predicted.Positions()

	extent := 0.0
	for _, p := range truth {
		extent = math.Max(extent, math.Max(math.Abs(p[0]), math.Abs(p[1])))
	}
	if extent == 0 {
		extent = 1
	}
	extent *= 1.2

	ct, cp := NewCanvas(width, height), NewCanvas(width, height)
	for _, c := range []*Canvas{ct, cp} {
		c.Window(-extent, extent, -extent, extent)
	}
	ct.Plot(axis(truth, 0), axis(truth, 1))
	cp.Plot(axis(pred, 0), axis(pred, 1))

	var b strings.Builder
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			cell := string(ct.Grid[row][col] | cp.Grid[row][col])
			switch inT, inP := ct.Lit(col, row), cp.Lit(col, row); {
			case inT && inP:
				b.WriteString(cell)
			case inT:
				b.WriteString(SparkGood.Render(cell))
			case inP:
				b.WriteString(SparkPoor.Render(cell))
			default:
				b.WriteString(cell)
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString(SparkGood.Render("truth") + "  " + SparkPoor.Render("prediction") + "  " +
		Subtle.Render(fmt.Sprintf("final separation %.3g", t.Final)))
	return b.String()
}

// MetricsPanel summarizes one step or evaluation.
func MetricsPanel(title string, m pinn.Metrics) string {
	lines := []string{
		Metric("loss", m.Loss),
		Metric("percent mean", m.PercentMean),
		Metric("percent max", m.PercentMax),
		Metric("adaptive const", m.AdaptiveConstant),
	}
	for _, name := range sortedKeys(m.LossComponents) {
		lines = append(lines, Metric("rms "+name, m.LossComponents[name]))
	}
	return BoxWithTitle(title, strings.Join(lines, "\n"))
}

func axis(points [][3]float64, k int) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p[k]
	}
	return out
}

func log10(v float64) float64 {
	if v <= 0 {
		return math.NaN()
	}
	return math.Log10(v)
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	return slices.Sorted(maps.Keys(m))
}
