// Package automation runs scripted scenarios, parameter sweeps, Monte
// Carlo trials and drivetrain comparisons.
package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/drivesim/internal/config"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/experiment"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
)

// Scenario defines a scripted simulation sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is a single run. Zero fields keep config.DefaultConfig.
type ScenarioStep struct {
	Topology    string             `yaml:"topology"`
	Controller  string             `yaml:"controller"`
	TargetSpeed float64            `yaml:"target_speed"`
	Kp          float64            `yaml:"kp"`
	Ki          float64            `yaml:"ki"`
	Grade       config.GradeConfig `yaml:"grade"`
	Method      string             `yaml:"method"`
	Duration    float64            `yaml:"duration"`
	DtOutput    float64            `yaml:"dt_output"`
	Velocity    float64            `yaml:"velocity"`
	SOC         float64            `yaml:"soc"`
	SaveAs      string             `yaml:"save_as"`
}

func (s ScenarioStep) Config() config.Config {
	cfg := config.DefaultConfig()
	if s.Topology != "" {
		cfg.Topology = s.Topology
	}
	cfg.Controller = s.Controller
	if s.TargetSpeed > 0 {
		cfg.TargetSpeed = s.TargetSpeed
	}
	cfg.Kp, cfg.Ki = s.Kp, s.Ki
	if s.Grade.Profile != "" || s.Grade.Value != 0 {
		cfg.Grade = s.Grade
	}
	if s.Method != "" {
		cfg.Sim.Method = s.Method
	}
	if s.Duration > 0 {
		cfg.Sim.TEnd = cfg.Sim.TStart + s.Duration
	}
	if s.DtOutput > 0 {
		cfg.Sim.DtOutput = s.DtOutput
	}
	cfg.Initial.Velocity = s.Velocity
	cfg.Initial.SOC = s.SOC
	return *cfg
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Name    string
	Config  config.Config
	Result  *sim.Result
	Metrics map[string]float64
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// RunScenario executes all steps in a scenario
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg := step.Config()
		fmt.Printf("Running step %d/%d: %s\n", i+1, len(scenario.Steps), cfg.Topology)

		exp := experiment.New(cfg).WithRegistry(registry)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		name := step.SaveAs
		if name == "" {
			name = fmt.Sprintf("step%d_%s", i+1, cfg.Topology)
		}
		results = append(results, StepResult{Name: name, Config: exp.Config(), Result: result, Metrics: exp.Metrics()})
	}

	return results, nil
}

// ParameterSweep runs simulations across a range of parameter values.
// ParamName is a run setting (target_speed, kp, ki, grade) or a topology
// node parameter written as <node>.<param>, e.g. vehicle.payloadFraction.
type ParameterSweep struct {
	Base      config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	ParamValue    float64
	Success       bool
	FinalVelocity float64
	MaxVelocity   float64
	Metrics       map[string]float64
}

func (sweep *ParameterSweep) apply(registry *experiment.Registry, cfg *config.Config, val float64) error {
	switch sweep.ParamName {
	case "target_speed":
		cfg.TargetSpeed = val
	case "kp":
		cfg.Kp = val
	case "ki":
		cfg.Ki = val
	case "grade":
		cfg.Grade = config.GradeConfig{Profile: config.GradeConstant, Value: val}
	default:
		node, key, ok := strings.Cut(sweep.ParamName, ".")
		if !ok {
			return fmt.Errorf("unknown sweep parameter %q", sweep.ParamName)
		}
		doc, err := registry.GetTopology(sweep.Base.Topology)
		if err != nil {
			return err
		}
		swept, err := doc.WithParam(node, key, val)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s[%s=%g]", sweep.Base.Topology, sweep.ParamName, val)
		registry.RegisterTopology(name, func() *topology.GraphDoc { return swept })
		cfg.Topology = name
	}
	return nil
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", sweep.NumSteps)
	}
	results := make([]SweepResult, 0, sweep.NumSteps)
	paramStep := (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep
		cfg := sweep.Base
		if err := sweep.apply(registry, &cfg, paramVal); err != nil {
			return nil, err
		}

		exp := experiment.New(cfg).WithRegistry(registry)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		result, err := exp.Run(ctx)
		if err != nil && result == nil {
			return nil, err
		}

		sr := SweepResult{ParamValue: paramVal, Success: result.Success, Metrics: exp.Metrics()}
		if v, ok := result.Final("velocity"); ok {
			sr.FinalVelocity = v
		}
		if v, ok := result.Max("velocity"); ok {
			sr.MaxVelocity = v
		}
		results = append(results, sr)

		fmt.Printf("Sweep %d/%d: %s=%.4f\n", i+1, sweep.NumSteps, sweep.ParamName, paramVal)
	}

	return results, nil
}

// MonteCarloConfig perturbs the initial velocity and the road grade of
// Base uniformly by up to the given spreads.
type MonteCarloConfig struct {
	Base           config.Config
	VelocitySpread float64
	GradeSpread    float64
	NumTrials      int
	Seed           int64
}

// MonteCarloResult holds statistics from Monte Carlo runs
type MonteCarloResult struct {
	TrialID       int
	Velocity0     float64
	Grade         float64
	FinalVelocity float64
	Stable        bool // finished and stayed bounded
}

// RunMonteCarlo executes multiple trials with random perturbations
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry) ([]MonteCarloResult, error) {
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for trial := 0; trial < cfg.NumTrials; trial++ {
		run := cfg.Base
		run.Initial.Velocity = math.Max(0, run.Initial.Velocity+(rng.Float64()-0.5)*2*cfg.VelocitySpread)
		run.Grade = config.GradeConfig{
			Profile: config.GradeConstant,
			Value:   run.Grade.Value + (rng.Float64()-0.5)*2*cfg.GradeSpread,
		}

		exp := experiment.New(run).WithRegistry(registry)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		result, err := exp.Run(ctx)
		if err != nil && result == nil {
			return nil, err
		}

		final, _ := result.Final("velocity")
		maxV, _ := result.Max("velocity")
		results = append(results, MonteCarloResult{
			TrialID:       trial,
			Velocity0:     run.Initial.Velocity,
			Grade:         run.Grade.Value,
			FinalVelocity: final,
			Stable:        result.Success && maxV < 1e3 && !math.IsNaN(final),
		})

		if (trial+1)%10 == 0 {
			fmt.Printf("Monte Carlo: %d/%d trials complete\n", trial+1, cfg.NumTrials)
		}
	}

	return results, nil
}

// MonteCarloStats computes summary statistics from Monte Carlo results
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}

// Comparison is one drivetrain's run in a Compare.
type Comparison struct {
	Topology string
	Result   *sim.Result
	Metrics  map[string]float64
}

// Compare runs base on every topology concurrently and evaluates the
// default metrics. The controller is chosen per topology unless base names
// one.
func Compare(ctx context.Context, base config.Config, topologies []string, registry *experiment.Registry, workers int) ([]Comparison, error) {
	cases := make([]sim.Case, len(topologies))
	built := make([]*drivetrain.Drivetrain, len(topologies))
	var mu sync.Mutex
	for i, topo := range topologies {
		cfg := base
		cfg.Topology = topo
		c, err := registry.Case(topo, cfg, func(d *drivetrain.Drivetrain) {
			mu.Lock()
			built[i] = d
			mu.Unlock()
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", topo, err)
		}
		cases[i] = c
	}

	results, err := sim.NewEnsemble(cases, workers).Run(ctx)
	out := make([]Comparison, len(topologies))
	for i, topo := range topologies {
		out[i] = Comparison{Topology: topo, Result: results[i]}
		if results[i] == nil || built[i] == nil {
			continue
		}
		target := func(float64) float64 { return base.TargetSpeed }
		if g, gerr := base.GradeProfile(); gerr == nil {
			if sched, ok := g.(sim.SpeedSchedule); ok {
				target = sched.TargetSpeed
			}
		}
		out[i].Metrics = registry.Evaluate(built[i], results[i], target)
	}
	return out, err
}
