// Package export renders simulation results and rimpull curves as PNG/SVG
// charts and self-contained HTML reports.
package export

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/drivesim/internal/rimpull"
	"github.com/san-kum/drivesim/internal/sim"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// limitedTicker spreads maxLabels evenly spaced ticks over the axis range.
func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(8)
	p.X.Label.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)
	p.X.Tick.Marker = limitedTicker(8, "%.0f")
	p.Y.Tick.Marker = limitedTicker(8, "%.1f")
	p.Add(plotter.NewGrid())
}

func xys(xs, ys []float64, scale float64) plotter.XYs {
	n := min(len(xs), len(ys))
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		pts[i].X = xs[i]
		pts[i].Y = ys[i] * scale
	}
	return pts
}

// TimePlot draws the named series of res against time. Unknown names are
// an error.
func TimePlot(res *sim.Result, title, ylabel string, names ...string) (*plot.Plot, error) {
	if res.NumPoints() == 0 {
		return nil, fmt.Errorf("export: empty result")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = ylabel
	stylePlot(p)

	for i, name := range names {
		s, ok := res.Series(name)
		if !ok {
			return nil, fmt.Errorf("export: unknown series %q", name)
		}
		line, err := plotter.NewLine(xys(res.Time, s, 1))
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// parseHex reads "#rrggbb".
func parseHex(s string) (color.Color, bool) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return nil, false
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, true
}

// RimpullPlot draws tractive effort against speed in km/h, forces in kN.
func RimpullPlot(title string, curves []rimpull.Curve) (*plot.Plot, error) {
	if len(curves) == 0 {
		return nil, fmt.Errorf("export: no rimpull curves")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "speed (km/h)"
	p.Y.Label.Text = "rimpull (kN)"
	stylePlot(p)

	for i, c := range curves {
		pts := make(plotter.XYs, len(c.Points))
		for k, pt := range c.Points {
			pts[k].X = pt.Velocity * 3.6
			pts[k].Y = pt.Force / 1000
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(2)
		line.LineStyle.Color = plotutil.Color(i)
		if col, ok := parseHex(c.Color); ok {
			line.LineStyle.Color = col
		}
		if strings.Contains(c.Name, "Resistance") {
			line.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		}
		p.Add(line)
		p.Legend.Add(c.Name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// Save writes p; the format follows the file extension (.png, .svg, .pdf).
func Save(p *plot.Plot, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("export: unsupported image format %q", filepath.Ext(path))
	}
	return p.Save(plotWidth, plotHeight, path)
}

// StandardPlots are the charts written for every run: velocity, actuator
// torques, shaft speeds and, when present, battery SOC.
func StandardPlots(res *sim.Result) (map[string]*plot.Plot, error) {
	out := make(map[string]*plot.Plot)

	v, err := TimePlot(res, "Vehicle velocity", "velocity (m/s)", "velocity")
	if err != nil {
		return nil, err
	}
	out["velocity"] = v

	if torques := matching(res.Names(), "T_"); len(torques) > 0 {
		if out["torque"], err = TimePlot(res, "Actuator torque commands", "torque (N·m)", torques...); err != nil {
			return nil, err
		}
	}
	if rpms := matching(res.Names(), "rpm_"); len(rpms) > 0 {
		if out["rpm"], err = TimePlot(res, "Shaft speeds", "speed (rpm)", rpms...); err != nil {
			return nil, err
		}
	}
	var socs []string
	for _, n := range res.StateNames {
		if strings.HasSuffix(n, ".SOC") {
			socs = append(socs, n)
		}
	}
	if len(socs) > 0 {
		if out["soc"], err = TimePlot(res, "Battery state of charge", "SOC", socs...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WritePlots saves StandardPlots into dir as <name>.<ext> and returns the
// written paths.
func WritePlots(res *sim.Result, dir, ext string) ([]string, error) {
	plots, err := StandardPlots(res)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, name := range []string{"velocity", "torque", "rpm", "soc"} {
		p, ok := plots[name]
		if !ok {
			continue
		}
		path := filepath.Join(dir, name+"."+strings.TrimPrefix(ext, "."))
		if err := Save(p, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func matching(names []string, prefix string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}
