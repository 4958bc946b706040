package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/drivesim/internal/config"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/experiment"
	"github.com/san-kum/drivesim/internal/metrics"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/storage"
	"github.com/san-kum/drivesim/internal/telemetry"
	"github.com/san-kum/drivesim/internal/viz"
)

// runConfig assembles the run configuration: defaults, then a preset, then
// a config file, then the flags the user actually set.
func runConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		cfg.Topology = args[0]
	}

	if preset != "" {
		p := config.GetPreset(cfg.Topology, preset)
		if p == nil {
			return config.Config{}, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Topology))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		if len(args) > 0 {
			loaded.Topology = args[0]
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("target") {
		cfg.TargetSpeed = target
	}
	if flags.Changed("kp") {
		cfg.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.Ki = ki
	}
	if flags.Changed("grade") {
		cfg.Grade.Value = grade
	}
	if flags.Changed("grade-profile") {
		cfg.Grade.Profile = gradeProfile
	}
	if flags.Changed("method") {
		cfg.Sim.Method = method
	}
	if flags.Changed("time") {
		cfg.Sim.TEnd = cfg.Sim.TStart + duration
	}
	if flags.Changed("dt") {
		cfg.Sim.DtOutput = dtOutput
	}
	if flags.Changed("velocity") {
		cfg.Initial.Velocity = velocity
	}
	if flags.Changed("soc") {
		cfg.Initial.SOC = soc
	}
	return *cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func saveRun(cfg config.Config, res *sim.Result, values map[string]float64) (string, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	kind, _ := res.Metadata["controller"].(string)
	return st.Save(storage.RunMetadata{
		Topology:    cfg.Topology,
		Method:      cfg.Sim.Method,
		DtOutput:    cfg.Sim.DtOutput,
		Controller:  kind,
		TargetSpeed: cfg.TargetSpeed,
		Metrics:     values,
	}, res)
}

// telemetryWriter opens the frame sink selected by --can or --can-log, or
// returns nil when neither is set.
func telemetryWriter(ctx context.Context) (telemetry.Writer, error) {
	switch {
	case canIface != "":
		return telemetry.NewSocketCANWriter(ctx, canIface)
	case canLog != "":
		f, err := os.Create(canLog)
		if err != nil {
			return nil, err
		}
		return &fileLogWriter{LogWriter: telemetry.NewLogWriter(f, ""), f: f}, nil
	}
	return nil, nil
}

type fileLogWriter struct {
	*telemetry.LogWriter
	f *os.File
}

func (w *fileLogWriter) Close() error { return w.f.Close() }

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := runConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	exp := experiment.New(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}
	w, err := telemetryWriter(ctx)
	if err != nil {
		return err
	}
	var streamer *telemetry.Streamer
	if w != nil {
		defer w.Close()
		m, err := telemetry.ForDrivetrain(exp.Drivetrain())
		if err != nil {
			return err
		}
		streamer = telemetry.NewStreamer(ctx, exp.Drivetrain(), m, w, exp.Grade(), slog.Default())
		exp.GetSimulator().AddObserver(streamer)
	}

	fmt.Printf("running %s (%s, %s)...\n", exp.Graph().Name, exp.ControllerKind(), cfg.Sim.Method)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil && result == nil {
		return err
	}
	elapsed := time.Since(start)
	if streamer != nil {
		if serr := streamer.Err(); serr != nil {
			slog.Warn("telemetry stopped", "err", serr)
		}
		fmt.Printf("telemetry frames: %d\n", streamer.Frames())
	}

	runID, serr := saveRun(exp.Config(), result, exp.Metrics())
	if serr != nil {
		return serr
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.NumPoints())
	if !result.Success {
		fmt.Printf("failed: %s\n", result.Message)
	}
	fmt.Println("\nmetrics:")
	for _, name := range sortedNames(exp.Metrics()) {
		fmt.Printf("  %s: %.6f\n", name, exp.Metrics()[name])
	}
	fmt.Println()
	fmt.Println(viz.SummaryTable("SUMMARY", metrics.Summarize(result).Rows()))
	return err
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := runConfig(cmd, args)
	if err != nil {
		return err
	}
	exp := experiment.New(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job, err := exp.RunAsync(ctx)
	if err != nil {
		return err
	}

	m := viz.NewModel(job, cancel, exp.Graph().Name, exp.Target)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}

	res, runErr := final.(viz.Model).Result()
	if res == nil {
		// Quit before the run finished.
		if _, runErr = job.Wait(); errors.Is(runErr, context.Canceled) {
			fmt.Println("cancelled")
			return nil
		}
		return runErr
	}
	if res.Metadata == nil {
		res.Metadata = make(map[string]any)
	}
	res.Metadata["controller"] = exp.ControllerKind()
	runID, err := saveRun(exp.Config(), res, exp.Evaluate(res))
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return runErr
}

func benchTopology(cmd *cobra.Command, args []string) error {
	topo := config.DefaultTopology
	if len(args) > 0 {
		topo = args[0]
	}

	durations := []float64{10, 60}
	methods := []string{dynamo.MethodEuler, dynamo.MethodRK4, dynamo.MethodRK45}

	fmt.Printf("benchmarking %s\n\n", topo)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DURATION\tMETHOD\tPOINTS\tTIME\tSIM/WALL\tFINAL V")

	for _, dur := range durations {
		for _, m := range methods {
			cfg := config.DefaultConfig()
			cfg.Topology = topo
			cfg.Sim.Method = m
			cfg.Sim.TEnd = dur

			exp := experiment.New(*cfg)
			if err := exp.Setup(); err != nil {
				return err
			}

			start := time.Now()
			result, err := exp.Run(context.Background())
			if err != nil && result == nil {
				return err
			}
			elapsed := time.Since(start)

			final, _ := result.Final("velocity")
			fmt.Fprintf(w, "%.0fs\t%s\t%d\t%v\t%.0fx\t%.3f\n",
				dur, m, result.NumPoints(), elapsed.Round(time.Microsecond), dur/elapsed.Seconds(), final)
		}
	}

	return w.Flush()
}
