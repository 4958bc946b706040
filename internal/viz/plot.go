package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/drivesim/internal/sim"
)

// PlotSeries draws the named series of res as an ASCII chart, resampled
// to at most width points.
func PlotSeries(res *sim.Result, name string, width, height int) (string, error) {
	s, ok := res.Series(name)
	if !ok {
		return "", fmt.Errorf("unknown series %q", name)
	}
	if len(s) == 0 {
		return "", fmt.Errorf("series %q is empty", name)
	}
	data := downsample(s, width)
	caption := fmt.Sprintf("%s over %.1f s", name, res.Duration())
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	), nil
}

// PlotMany overlays several equally long series.
func PlotMany(series [][]float64, caption string, width, height int) string {
	data := make([][]float64, 0, len(series))
	for _, s := range series {
		if len(s) > 0 {
			data = append(data, downsample(s, width))
		}
	}
	if len(data) == 0 {
		return ""
	}
	return asciigraph.PlotMany(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Yellow, asciigraph.Cyan),
	)
}

func downsample(s []float64, n int) []float64 {
	if n <= 0 || len(s) <= n {
		return s
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = s[i*(len(s)-1)/(n-1)]
	}
	return out
}
