package viz

import (
	"math"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
const brailleBase = 0x2800

var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a braille dot grid of Width×Height cells, each 2×4 dots, with a
// world window mapped onto it.
type Canvas struct {
	Width, Height int
	Grid          [][]rune

	xmin, xmax, ymin, ymax float64
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	c.Window(-1, 1, -1, 1)
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Window sets the world rectangle shown on the canvas.
func (c *Canvas) Window(xmin, xmax, ymin, ymax float64) {
	c.xmin, c.xmax, c.ymin, c.ymax = xmin, xmax, ymin, ymax
}

// Set turns on the dot at sub-pixel (x, y); out of range is ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= pixelMap[y%4][x%2]
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBase
		}
	}
}

// Dots maps world coordinates to sub-pixels, y up.
func (c *Canvas) Dots(x, y float64) (int, int) {
	px := (x - c.xmin) / (c.xmax - c.xmin) * float64(2*c.Width-1)
	py := (c.ymax - y) / (c.ymax - c.ymin) * float64(4*c.Height-1)
	return int(math.Round(px)), int(math.Round(py))
}

// Plot draws a polyline through world points.
func (c *Canvas) Plot(xs, ys []float64) {
	for i := range xs {
		x1, y1 := c.Dots(xs[i], ys[i])
		if i == 0 {
			c.Set(x1, y1)
			continue
		}
		x0, y0 := c.Dots(xs[i-1], ys[i-1])
		c.DrawLine(x0, y0, x1, y1)
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx - dy
	// Long jumps come from escaping orbits; skip them.
	if dx > 4*c.Width || dy > 8*c.Height {
		return
	}
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Lit reports whether any dot of cell (col, row) is on.
func (c *Canvas) Lit(col, row int) bool {
	return c.Grid[row][col] != brailleBase
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
