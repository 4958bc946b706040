package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/drivesim/internal/sim"
)

type Point struct{ X, Y float64 }

// Portrait is the trajectory of one series against another.
type Portrait struct {
	XName, YName string
	Points       []Point
}

// FromResult pairs two series of res sample by sample.
func FromResult(res *sim.Result, xName, yName string) (*Portrait, error) {
	xs, ok := res.Series(xName)
	if !ok {
		return nil, fmt.Errorf("analysis: unknown series %q", xName)
	}
	ys, ok := res.Series(yName)
	if !ok {
		return nil, fmt.Errorf("analysis: unknown series %q", yName)
	}
	p := &Portrait{XName: xName, YName: yName, Points: make([]Point, len(xs))}
	for i := range xs {
		p.Points[i] = Point{xs[i], ys[i]}
	}
	return p, nil
}

// Bounds returns the extent of the points.
func (p *Portrait) Bounds() (minX, maxX, minY, maxY float64) {
	if len(p.Points) == 0 {
		return
	}
	minX, maxX = p.Points[0].X, p.Points[0].X
	minY, maxY = p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX = math.Min(minX, pt.X)
		maxX = math.Max(maxX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxY = math.Max(maxY, pt.Y)
	}
	return
}

// ASCII draws the portrait as a width x height scatter. Points are drawn
// '.', 'o' and '●' for the first, middle and last third of the run.
func (p *Portrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX, minY, maxY := p.Bounds()
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	// Zero axes where they cross the visible area.
	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := range canvas {
			canvas[row][col] = '│'
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := range canvas[row] {
			canvas[row][col] = '─'
		}
	}

	n := len(p.Points)
	for i, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row < 0 || row >= height || col < 0 || col >= width {
			continue
		}
		switch {
		case i < n/3:
			canvas[row][col] = '.'
		case i < 2*n/3:
			canvas[row][col] = 'o'
		default:
			canvas[row][col] = '●'
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%10.2f ┌%s┐\n", maxY, strings.Repeat("─", width))
	for i, row := range canvas {
		if i == height/2 {
			fmt.Fprintf(&sb, "%10.2f │", (maxY+minY)/2)
		} else {
			sb.WriteString("           │")
		}
		sb.WriteString(string(row))
		sb.WriteString("│\n")
	}
	fmt.Fprintf(&sb, "%10.2f └%s┘\n", minY, strings.Repeat("─", width))
	fmt.Fprintf(&sb, "%12.2f%*.2f\n", minX, width, maxX)
	fmt.Fprintf(&sb, "x: %s  y: %s\n", p.XName, p.YName)
	return sb.String()
}

// Crossings records the (xName, yName) operating point each time the
// trigger series rises through threshold, interpolated between samples.
func Crossings(res *sim.Result, trigger string, threshold float64, xName, yName string) (*Portrait, error) {
	tr, ok := res.Series(trigger)
	if !ok {
		return nil, fmt.Errorf("analysis: unknown series %q", trigger)
	}
	full, err := FromResult(res, xName, yName)
	if err != nil {
		return nil, err
	}

	out := &Portrait{XName: xName, YName: yName}
	for i := 1; i < len(tr); i++ {
		prev, curr := tr[i-1], tr[i]
		if prev >= threshold || curr < threshold {
			continue
		}
		frac := (threshold - prev) / (curr - prev)
		a, b := full.Points[i-1], full.Points[i]
		out.Points = append(out.Points, Point{
			X: a.X + frac*(b.X-a.X),
			Y: a.Y + frac*(b.Y-a.Y),
		})
	}
	return out, nil
}
