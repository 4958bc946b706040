package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/drivesim/internal/analysis"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/export"
	"github.com/san-kum/drivesim/internal/rimpull"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/storage"
	"github.com/san-kum/drivesim/internal/store"
	"github.com/san-kum/drivesim/internal/telemetry"
	"github.com/san-kum/drivesim/internal/topology"
	"github.com/san-kum/drivesim/internal/viz"
)

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// loadRun resolves a run id prefix and loads its metadata and series.
func loadRun(prefix string) (*storage.RunMetadata, *sim.Result, error) {
	st := storage.New(dataDir)
	id, err := st.Resolve(prefix)
	if err != nil {
		return nil, nil, err
	}
	meta, err := st.Load(id)
	if err != nil {
		return nil, nil, err
	}
	res, err := st.LoadResult(id)
	if err != nil {
		return nil, nil, err
	}
	return meta, res, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPOLOGY\tTIME\tDURATION\tDT\tMETHOD\tCTRL\tOK")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1fs\t%.3fs\t%s\t%s\t%v\n",
			run.ID,
			run.Topology,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.DtOutput,
			run.Method,
			run.Controller,
			run.Success,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if res.NumPoints() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("topology: %s\n", meta.Topology)
	fmt.Printf("samples: %d\n\n", res.NumPoints())

	names := series
	if len(names) == 0 {
		names = []string{"velocity"}
		for _, s := range meta.StateNames {
			if strings.HasSuffix(s, ".SOC") {
				names = append(names, s)
			}
		}
	}
	for _, name := range names {
		graph, err := viz.PlotSeries(res, name, 80, 10)
		if err != nil {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(res.Names(), ", "))
		}
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if res.NumPoints() == 0 {
		return fmt.Errorf("no data to export")
	}
	return storage.WriteCSV(os.Stdout, res)
}

func exportHeader(meta *storage.RunMetadata) store.Header {
	return store.Header{
		Topology:   meta.Topology,
		Controller: meta.Controller,
		Method:     meta.Method,
		DtOutput:   meta.DtOutput,
	}
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outPath == "" {
		return store.ExportJSONStdout(exportHeader(meta), res)
	}
	if err := store.ExportJSON(outPath, exportHeader(meta), res); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

// runCurves computes the rimpull curves of the topology a run was made
// with. Graphs that can no longer be resolved yield none.
func runCurves(meta *storage.RunMetadata) []rimpull.Curve {
	doc, err := topology.Resolve(meta.Topology)
	if err != nil {
		return nil
	}
	return rimpull.Compute(doc)
}

func reportRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	dir := outPath
	if dir == "" {
		dir = filepath.Join(dataDir, meta.ID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if format == "html" {
		path := filepath.Join(dir, "report.html")
		if err := export.WriteReport(path, meta.ID, res, runCurves(meta)); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	}

	files, err := export.WritePlots(res, dir, format)
	if err != nil {
		return err
	}
	if curves := runCurves(meta); len(curves) > 0 {
		p, err := export.RimpullPlot(meta.Topology+" rimpull", curves)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "rimpull."+strings.TrimPrefix(format, "."))
		if err := export.Save(p, path); err != nil {
			return err
		}
		files = append(files, path)
	}
	for _, f := range files {
		fmt.Printf("wrote %s\n", f)
	}
	return nil
}

func canDump(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	doc, err := topology.Resolve(meta.Topology)
	if err != nil {
		return err
	}
	topo, err := doc.Build()
	if err != nil {
		return err
	}
	d, err := drivetrain.Compile(topo)
	if err != nil {
		return err
	}
	m, err := telemetry.ForDrivetrain(d)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	var w telemetry.Writer
	switch {
	case canIface != "":
		sw, err := telemetry.NewSocketCANWriter(ctx, canIface)
		if err != nil {
			return err
		}
		w = sw
	case outPath != "":
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		w = &fileLogWriter{LogWriter: telemetry.NewLogWriter(f, ""), f: f}
	default:
		w = telemetry.NewLogWriter(os.Stdout, "")
	}
	defer w.Close()

	n, err := telemetry.Dump(ctx, res, m, w)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d frames in %d samples\n", n, res.NumPoints())
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	var p *analysis.Portrait
	if crossSeries != "" {
		p, err = analysis.Crossings(res, crossSeries, crossValue, xSeries, ySeries)
	} else {
		p, err = analysis.FromResult(res, xSeries, ySeries)
	}
	if err != nil {
		return err
	}
	if len(p.Points) == 0 {
		return fmt.Errorf("no points to plot")
	}

	fmt.Printf("phase plot: %s\n", meta.ID)
	fmt.Printf("topology: %s\n\n", meta.Topology)
	fmt.Print(p.ASCII(70, 20))
	fmt.Printf("\nLegend: . = early, o = middle, ● = late\n")
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	s, ok := res.Series(ySeries)
	if !ok {
		return fmt.Errorf("unknown series %q (available: %s)", ySeries, strings.Join(res.Names(), ", "))
	}
	spec, err := analysis.PowerSpectrum(s, meta.DtOutput)
	if err != nil {
		return err
	}

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("series: %s\n\n", ySeries)
	fmt.Println(viz.PlotMany([][]float64{spec.Power}, fmt.Sprintf("amplitude spectrum, 0 - %.2f Hz", spec.Freq[len(spec.Freq)-1]), 80, 15))

	freq, amp := spec.Dominant()
	fmt.Printf("\ndominant frequency: %.3f hz (amplitude %.4g)\n", freq, amp)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1/freq)
	}
	return nil
}
