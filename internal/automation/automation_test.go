package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/drivesim/internal/config"
	"github.com/san-kum/drivesim/internal/experiment"
)

const scenarioYAML = `name: smoke
description: two short runs
steps:
  - topology: electric
    target_speed: 4
    velocity: 2
    duration: 2
    dt_output: 0.5
    save_as: ev
  - topology: diesel-793d
    duration: 2
    dt_output: 0.5
    grade:
      profile: constant
      value: 0.02
`

func shortBase(topo string) config.Config {
	cfg := config.DefaultConfig()
	cfg.Topology = topo
	cfg.TargetSpeed = 4
	cfg.Initial.Velocity = 2
	cfg.Sim.TEnd = 2
	cfg.Sim.DtOutput = 0.5
	return *cfg
}

func TestLoadAndRunScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	if err := os.WriteFile(path, []byte(scenarioYAML), 0644); err != nil {
		t.Fatal(err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(sc.Steps))
	}

	results, err := RunScenario(context.Background(), sc, experiment.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Name != "ev" || results[1].Name != "step2_diesel-793d" {
		t.Errorf("names = %s, %s", results[0].Name, results[1].Name)
	}
	if results[1].Config.Grade.Value != 0.02 {
		t.Errorf("grade = %v", results[1].Config.Grade.Value)
	}
	for _, r := range results {
		if !r.Result.Success || r.Result.NumPoints() != 5 {
			t.Errorf("%s: success=%v points=%d", r.Name, r.Result.Success, r.Result.NumPoints())
		}
	}
	if _, ok := results[1].Metrics["fuel_kg"]; !ok {
		t.Error("diesel step should report fuel")
	}
}

func TestLoadScenario_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	_ = os.WriteFile(path, []byte("name: empty\n"), 0644)
	if _, err := LoadScenario(path); err == nil {
		t.Error("expected error for scenario without steps")
	}
}

func TestRunSweep(t *testing.T) {
	reg := experiment.NewRegistry()
	sweep := &ParameterSweep{Base: shortBase("electric"), ParamName: "target_speed", ParamMin: 2, ParamMax: 6, NumSteps: 3}
	results, err := RunSweep(context.Background(), sweep, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || results[1].ParamValue != 4 {
		t.Fatalf("unexpected sweep %+v", results)
	}
	if results[2].FinalVelocity <= results[0].FinalVelocity {
		t.Errorf("higher target should end faster: %v vs %v", results[2].FinalVelocity, results[0].FinalVelocity)
	}
}

func TestRunSweep_NodeParam(t *testing.T) {
	reg := experiment.NewRegistry()
	base := shortBase("electric")
	base.Grade = config.GradeConfig{Profile: config.GradeConstant, Value: 0.05}
	sweep := &ParameterSweep{Base: base, ParamName: "vehicle.payloadFraction", ParamMin: 0.1, ParamMax: 1, NumSteps: 2}
	results, err := RunSweep(context.Background(), sweep, reg)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].FinalVelocity <= results[1].FinalVelocity {
		t.Errorf("lighter truck should be faster on a climb: %v vs %v", results[0].FinalVelocity, results[1].FinalVelocity)
	}
	if len(reg.ListTopologies()) != 7 {
		t.Errorf("expected the swept variants to be registered, got %v", reg.ListTopologies())
	}

	bad := &ParameterSweep{Base: base, ParamName: "mass", NumSteps: 2}
	if _, err := RunSweep(context.Background(), bad, reg); err == nil {
		t.Error("expected unknown parameter error")
	}
}

func TestRunMonteCarlo(t *testing.T) {
	cfg := &MonteCarloConfig{Base: shortBase("electric"), VelocitySpread: 1, GradeSpread: 0.01, NumTrials: 3, Seed: 7}
	results, err := RunMonteCarlo(context.Background(), cfg, experiment.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	stable, unstable := MonteCarloStats(results)
	if stable != 3 || unstable != 0 {
		t.Errorf("stable=%d unstable=%d", stable, unstable)
	}
	for _, r := range results {
		if r.Velocity0 < 1 || r.Velocity0 > 3 {
			t.Errorf("velocity perturbation out of range: %v", r.Velocity0)
		}
	}
}

func TestCompare(t *testing.T) {
	out, err := Compare(context.Background(), shortBase(""), []string{"electric", "ecvt-split"}, experiment.NewRegistry(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 comparisons, got %d", len(out))
	}
	for _, c := range out {
		if c.Result == nil || !c.Result.Success {
			t.Errorf("%s did not complete", c.Topology)
			continue
		}
		if c.Result.Metadata["case"] != c.Topology {
			t.Errorf("case metadata = %v", c.Result.Metadata["case"])
		}
		if _, ok := c.Metrics["speed_error"]; !ok {
			t.Errorf("%s: missing speed_error", c.Topology)
		}
	}
	if _, ok := out[1].Metrics["fuel_kg"]; !ok {
		t.Error("ecvt-split should report fuel")
	}
}
