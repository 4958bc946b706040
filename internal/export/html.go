package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/san-kum/drivesim/internal/rimpull"
	"github.com/san-kum/drivesim/internal/sim"
)

func newLine(title, subtitle, xName, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
			Width: "1000px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName, Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
	)
	return line
}

func lineData(xs, ys []float64, xScale, yScale float64) []opts.LineData {
	n := min(len(xs), len(ys))
	items := make([]opts.LineData, n)
	for i := 0; i < n; i++ {
		items[i] = opts.LineData{Value: []any{xs[i] * xScale, ys[i] * yScale}}
	}
	return items
}

func addSeries(line *charts.Line, res *sim.Result, names []string, scale float64) {
	for _, name := range names {
		s, ok := res.Series(name)
		if !ok {
			continue
		}
		line.AddSeries(name, lineData(res.Time, s, 1, scale),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
}

// RimpullChart plots rimpull curves in kN against km/h.
func RimpullChart(title string, curves []rimpull.Curve) *charts.Line {
	line := newLine(title, "tractive effort at the wheels", "km/h", "kN")
	for _, c := range curves {
		xs := make([]float64, len(c.Points))
		ys := make([]float64, len(c.Points))
		for i, p := range c.Points {
			xs[i], ys[i] = p.Velocity, p.Force
		}
		style := opts.LineStyle{Color: c.Color, Width: 2}
		if strings.Contains(c.Name, "Resistance") {
			style.Type = "dashed"
		}
		line.AddSeries(c.Name, lineData(xs, ys, 3.6, 1e-3),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(style),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: c.Color}))
	}
	return line
}

// ReportCharts builds the chart set of a single run. curves may be nil.
func ReportCharts(name string, res *sim.Result, curves []rimpull.Curve) []components.Charter {
	names := res.Names()
	var out []components.Charter

	v := newLine("Velocity", name, "s", "m/s")
	addSeries(v, res, []string{"velocity"}, 1)
	out = append(out, v)

	if torques := matching(names, "T_"); len(torques) > 0 {
		t := newLine("Torque commands", name, "s", "N·m")
		addSeries(t, res, torques, 1)
		out = append(out, t)
	}
	if rpms := matching(names, "rpm_"); len(rpms) > 0 {
		r := newLine("Shaft speeds", name, "s", "rpm")
		addSeries(r, res, rpms, 1)
		out = append(out, r)
	}
	if powers := matching(names, "P_"); len(powers) > 0 {
		p := newLine("Power", name, "s", "kW")
		addSeries(p, res, powers, 1e-3)
		out = append(out, p)
	}
	var gears []string
	for _, n := range names {
		if strings.HasSuffix(n, ".gear") {
			gears = append(gears, n)
		}
	}
	if len(gears) > 0 {
		g := newLine("Gear", name, "s", "gear index")
		addSeries(g, res, gears, 1)
		out = append(out, g)
	}
	var socs []string
	for _, n := range res.StateNames {
		if strings.HasSuffix(n, ".SOC") {
			socs = append(socs, n)
		}
	}
	if len(socs) > 0 {
		s := newLine("State of charge", name, "s", "%")
		addSeries(s, res, socs, 100)
		out = append(out, s)
	}
	if len(curves) > 0 {
		out = append(out, RimpullChart("Rimpull", curves))
	}
	return out
}

// Report renders a single-run HTML page to w.
func Report(w io.Writer, name string, res *sim.Result, curves []rimpull.Curve) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("drivesim: %s", name)
	page.AddCharts(ReportCharts(name, res, curves)...)
	return page.Render(w)
}

func WriteReport(path, name string, res *sim.Result, curves []rimpull.Curve) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Report(f, name, res, curves)
}

// CompareReport overlays the velocity of several runs and charts one bar
// group per metric.
func CompareReport(w io.Writer, runs map[string]*sim.Result, metrics map[string]map[string]float64) error {
	keys := make([]string, 0, len(runs))
	for k := range runs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	v := newLine("Velocity comparison", strings.Join(keys, " vs "), "s", "m/s")
	for _, k := range keys {
		res := runs[k]
		v.AddSeries(k, lineData(res.Time, res.Velocity(), 1, 1),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	page := components.NewPage()
	page.PageTitle = "drivesim: comparison"
	page.AddCharts(v)

	metricNames := map[string]bool{}
	for _, m := range metrics {
		for name := range m {
			metricNames[name] = true
		}
	}
	sortedMetrics := make([]string, 0, len(metricNames))
	for name := range metricNames {
		sortedMetrics = append(sortedMetrics, name)
	}
	sort.Strings(sortedMetrics)

	for _, metric := range sortedMetrics {
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: "1000px"}),
			charts.WithTitleOpts(opts.Title{Title: metric}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		)
		items := make([]opts.BarData, len(keys))
		for i, k := range keys {
			items[i] = opts.BarData{Value: metrics[k][metric]}
		}
		bar.SetXAxis(keys).AddSeries(metric, items)
		page.AddCharts(bar)
	}
	return page.Render(w)
}
