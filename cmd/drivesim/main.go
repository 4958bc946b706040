package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	dataDir  string
	logLevel string
	// Run selection
	configFile   string
	preset       string
	controller   string
	target       float64
	kp           float64
	ki           float64
	grade        float64
	gradeProfile string
	method       string
	duration     float64
	dtOutput     float64
	velocity     float64
	soc          float64
	// Telemetry while running
	canIface string
	canLog   string
	// Output paths
	outPath string
	format  string
	series  []string
	// Phase and spectrum axes
	xSeries     string
	ySeries     string
	crossSeries string
	crossValue  float64
)

// main registers the drivesim command tree and exits with status 1 when a
// command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "drivesim",
		Short:         "drivetrain simulation lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".drivesim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [topology]",
		Short: "run a simulation and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&canIface, "can", "", "stream telemetry frames to a SocketCAN interface while running")
	runCmd.Flags().StringVar(&canLog, "can-log", "", "write telemetry frames to a candump log file while running")

	liveCmd := &cobra.Command{
		Use:   "live [topology]",
		Short: "run a simulation with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench [topology]",
		Short: "benchmark the integration methods",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchTopology,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run series in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&series, "series", nil, "series to plot (default velocity and state of charge)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data and summary to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	reportCmd := &cobra.Command{
		Use:   "report [run_id]",
		Short: "render charts of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  reportRun,
	}
	reportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output directory (default the run directory)")
	reportCmd.Flags().StringVar(&format, "format", "html", "html, png, svg or pdf")

	canDumpCmd := &cobra.Command{
		Use:   "can-dump [run_id]",
		Short: "replay a run as CAN telemetry frames",
		Args:  cobra.ExactArgs(1),
		RunE:  canDump,
	}
	canDumpCmd.Flags().StringVar(&canIface, "can", "", "transmit on a SocketCAN interface instead of writing a log")
	canDumpCmd.Flags().StringVarP(&outPath, "out", "o", "", "log file (default stdout)")

	rimpullCmd := &cobra.Command{
		Use:   "rimpull [topology]",
		Short: "compute rimpull and resistance curves",
		Args:  cobra.ExactArgs(1),
		RunE:  rimpullCurves,
	}
	rimpullCmd.Flags().StringVarP(&outPath, "out", "o", "", "write a chart (.png, .svg, .pdf or .html)")

	validateCmd := &cobra.Command{
		Use:   "validate [graph]",
		Short: "validate a topology graph document",
		Args:  cobra.ExactArgs(1),
		RunE:  validateGraph,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [topology]",
		Short: "list topology presets, or the run presets of a topology",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [topology]",
		Short: "grid search controller gains",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneGains,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&kpRange, "kp-range", []float64{1000, 50000, 5}, "kp min,max,steps")
	tuneCmd.Flags().Float64SliceVar(&kiRange, "ki-range", []float64{0, 5000, 3}, "ki min,max,steps")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "speed_error", "metric to minimize")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run every step of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	compareCmd := &cobra.Command{
		Use:   "compare [topology] [topology] ...",
		Short: "run several topologies on the same cycle",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareTopologies,
	}
	addRunFlags(compareCmd)
	compareCmd.Flags().StringVarP(&outPath, "out", "o", "", "write an HTML comparison report")
	compareCmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (default one per CPU)")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "plot one series of a run against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xSeries, "x", "velocity", "series for the x-axis")
	phaseCmd.Flags().StringVar(&ySeries, "y", "", "series for the y-axis")
	phaseCmd.Flags().StringVar(&crossSeries, "cross", "", "only plot points where this series rises through --at")
	phaseCmd.Flags().Float64Var(&crossValue, "at", 0, "crossing threshold for --cross")
	_ = phaseCmd.MarkFlagRequired("y")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a run series",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&ySeries, "series", "velocity", "series to analyze")

	sweepCmd := &cobra.Command{
		Use:   "sweep [topology]",
		Short: "sweep one run setting or node parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "target_speed", "target_speed, kp, ki, grade or <node>.<param>")
	sweepCmd.Flags().Float64SliceVar(&sweepRange, "range", []float64{4, 14, 6}, "min,max,steps")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [topology]",
		Short: "run randomly perturbed initial velocity and grade",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addRunFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	monteCarloCmd.Flags().Float64Var(&vSpread, "velocity-spread", 2, "initial velocity spread in m/s")
	monteCarloCmd.Flags().Float64Var(&gradeSpread, "grade-spread", 0.03, "grade spread")

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd,
		reportCmd, canDumpCmd, rimpullCmd, validateCmd, presetsCmd, tuneCmd, scenarioCmd, compareCmd,
		phaseCmd, analyzeCmd, sweepCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use a run preset of the topology")
	cmd.Flags().StringVar(&controller, "controller", "", "controller (speed, diesel)")
	cmd.Flags().Float64Var(&target, "target", 10, "target speed in m/s")
	cmd.Flags().Float64Var(&kp, "kp", 0, "speed controller kp")
	cmd.Flags().Float64Var(&ki, "ki", 0, "speed controller ki")
	cmd.Flags().Float64Var(&grade, "grade", 0, "road grade (rise over run)")
	cmd.Flags().StringVar(&gradeProfile, "grade-profile", "", "grade profile (constant, haul, step)")
	cmd.Flags().StringVar(&method, "method", "RK4", "integration method (Euler, RK4, RK45)")
	cmd.Flags().Float64Var(&duration, "time", 60, "simulated duration in seconds")
	cmd.Flags().Float64Var(&dtOutput, "dt", 0.1, "output interval in seconds")
	cmd.Flags().Float64Var(&velocity, "velocity", 0, "initial velocity in m/s")
	cmd.Flags().Float64Var(&soc, "soc", 0, "initial battery state of charge")
}
