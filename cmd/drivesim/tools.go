package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/drivesim/internal/automation"
	"github.com/san-kum/drivesim/internal/config"
	"github.com/san-kum/drivesim/internal/experiment"
	"github.com/san-kum/drivesim/internal/export"
	"github.com/san-kum/drivesim/internal/optim"
	"github.com/san-kum/drivesim/internal/rimpull"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
	"github.com/san-kum/drivesim/internal/viz"
)

var (
	kpRange    []float64
	kiRange    []float64
	tuneMetric string
	workers    int
	// Sweep and Monte Carlo
	sweepParam  string
	sweepRange  []float64
	trials      int
	seed        int64
	vSpread     float64
	gradeSpread float64
)

func rimpullCurves(cmd *cobra.Command, args []string) error {
	doc, err := topology.Resolve(args[0])
	if err != nil {
		return err
	}
	curves := rimpull.Compute(doc)
	if len(curves) == 0 {
		return fmt.Errorf("no rimpull curves for %s", doc.Name)
	}

	fmt.Printf("%s (%s)\n\n", doc.Name, rimpull.Detect(doc))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CURVE\tPEAK kN\tV RANGE km/h")
	vMax := 0.0
	for _, c := range curves {
		if len(c.Points) == 0 {
			continue
		}
		lo, hi := c.Points[0].Velocity, c.Points[len(c.Points)-1].Velocity
		vMax = math.Max(vMax, hi)
		fmt.Fprintf(w, "%s\t%.1f\t%.1f - %.1f\n", c.Name, c.Max()/1000, lo*3.6, hi*3.6)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	// Envelope of the tractive curves over a common velocity grid.
	const n = 80
	envelope := make([]float64, n)
	for i := range envelope {
		v := vMax * float64(i) / float64(n-1)
		for _, c := range curves {
			if !strings.Contains(c.Name, "Resistance") {
				envelope[i] = math.Max(envelope[i], c.At(v)/1000)
			}
		}
	}
	fmt.Println()
	fmt.Println(viz.PlotMany([][]float64{envelope}, fmt.Sprintf("rimpull envelope (kN), 0 - %.0f km/h", vMax*3.6), n, 12))

	if outPath == "" {
		return nil
	}
	if strings.EqualFold(filepath.Ext(outPath), ".html") {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		page := export.RimpullChart(doc.Name, curves)
		if err := page.Render(f); err != nil {
			return err
		}
	} else {
		p, err := export.RimpullPlot(doc.Name, curves)
		if err != nil {
			return err
		}
		if err := export.Save(p, outPath); err != nil {
			return err
		}
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func validateGraph(cmd *cobra.Command, args []string) error {
	doc, err := topology.Resolve(args[0])
	if err != nil {
		return err
	}
	topo, err := doc.Build()
	if err != nil {
		return err
	}
	msgs := topo.Validate()
	if len(msgs) == 0 {
		fmt.Printf("%s: valid (%d components, %d connections)\n", doc.Name, topo.Len(), len(topo.Connections()))
		return nil
	}
	fmt.Printf("%s: %d problems\n", doc.Name, len(msgs))
	for _, m := range msgs {
		fmt.Printf("  - %s\n", m)
	}
	return fmt.Errorf("invalid topology")
}

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("topologies:")
		for _, name := range topology.PresetNames() {
			fmt.Printf("  %-14s %s\n", name, topology.PresetDescription(name))
		}
		return nil
	}
	presets := config.ListPresets(args[0])
	if len(presets) == 0 {
		fmt.Printf("no presets for topology: %s\n", args[0])
		return nil
	}
	fmt.Printf("presets for %s:\n", args[0])
	for _, p := range presets {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

func tuneGains(cmd *cobra.Command, args []string) error {
	base, err := runConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(kpRange) != 3 || len(kiRange) != 3 {
		return fmt.Errorf("ranges are min,max,steps")
	}
	gs := optim.NewGridSearch(
		[]string{"kp", "ki"},
		[][]float64{
			optim.Linspace(kpRange[0], kpRange[1], int(kpRange[2])),
			optim.Linspace(kiRange[0], kiRange[1], int(kiRange[2])),
		},
	).WithLogger(slog.Default())

	ctx, stop := signalContext()
	defer stop()

	best, value, results, err := gs.Search(ctx, func(p map[string]float64) (*experiment.Experiment, error) {
		cfg := base
		cfg.Kp, cfg.Ki = p["kp"], p["ki"]
		return experiment.New(cfg), nil
	}, tuneMetric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "KP\tKI\t%s\n", strings.ToUpper(tuneMetric))
	for _, tr := range results {
		if tr.Err != nil {
			fmt.Fprintf(w, "%.1f\t%.1f\terror: %v\n", tr.Params["kp"], tr.Params["ki"], tr.Err)
			continue
		}
		fmt.Fprintf(w, "%.1f\t%.1f\t%.6f\n", tr.Params["kp"], tr.Params["ki"], tr.Value)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: kp=%.1f ki=%.1f %s=%.6f\n", best["kp"], best["ki"], tuneMetric, value)
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("scenario %s: %s\n", scenario.Name, scenario.Description)
	steps, err := automation.RunScenario(ctx, scenario, experiment.NewRegistry())
	for _, s := range steps {
		id, serr := saveRun(s.Config, s.Result, s.Metrics)
		if serr != nil {
			return serr
		}
		fmt.Printf("\n%s -> %s\n", s.Name, id)
		for _, name := range sortedNames(s.Metrics) {
			fmt.Printf("  %s: %.6f\n", name, s.Metrics[name])
		}
	}
	return err
}

func compareTopologies(cmd *cobra.Command, args []string) error {
	base, err := runConfig(cmd, args[:1])
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	comps, err := automation.Compare(ctx, base, args, experiment.NewRegistry(), workers)
	if err != nil {
		slog.Warn("comparison incomplete", "err", err)
	}

	seen := make(map[string]float64)
	for _, c := range comps {
		for k := range c.Metrics {
			seen[k] = 0
		}
	}
	cols := sortedNames(seen)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TOPOLOGY\t%s\n", strings.ToUpper(strings.Join(cols, "\t")))
	runs := make(map[string]*sim.Result)
	values := make(map[string]map[string]float64)
	for _, c := range comps {
		if c.Result == nil {
			fmt.Fprintf(w, "%s\tfailed\n", c.Topology)
			continue
		}
		runs[c.Topology] = c.Result
		values[c.Topology] = c.Metrics
		row := []string{c.Topology}
		for _, k := range cols {
			if v, ok := c.Metrics[k]; ok {
				row = append(row, fmt.Sprintf("%.4f", v))
			} else {
				row = append(row, "-")
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.CompareReport(f, runs, values); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outPath)
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := runConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(sweepRange) != 3 {
		return fmt.Errorf("--range is min,max,steps")
	}
	ctx, stop := signalContext()
	defer stop()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      base,
		ParamName: sweepParam,
		ParamMin:  sweepRange[0],
		ParamMax:  sweepRange[1],
		NumSteps:  int(sweepRange[2]),
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tOK\tFINAL V\tMAX V\tDISTANCE\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%v\t%.3f\t%.3f\t%.1f\n", r.ParamValue, r.Success, r.FinalVelocity, r.MaxVelocity, r.Metrics["distance_m"])
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	base, err := runConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:           base,
		VelocitySpread: vSpread,
		GradeSpread:    gradeSpread,
		NumTrials:      trials,
		Seed:           seed,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	finals := make([]float64, len(results))
	for i, r := range results {
		finals[i] = r.FinalVelocity
	}
	fmt.Printf("trials: %d  stable: %d  unstable: %d\n", len(results), stable, unstable)
	fmt.Printf("final velocity: %s\n", viz.SparklineChart(finals, 60))
	return nil
}
