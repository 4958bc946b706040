package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/control"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
)

const (
	DefaultTopology    = "ecvt-split"
	DefaultTargetSpeed = 10.0
	DefaultVelocity    = 0.0
)

// Grade profile names accepted in GradeConfig.Profile.
const (
	GradeConstant = "constant"
	GradeHaul     = "haul"
	GradeStep     = "step"
)

// Config describes one simulation run.
type Config struct {
	Topology    string        `yaml:"topology"`
	Controller  string        `yaml:"controller"`
	TargetSpeed float64       `yaml:"target_speed"`
	Kp          float64       `yaml:"kp"`
	Ki          float64       `yaml:"ki"`
	Grade       GradeConfig   `yaml:"grade"`
	Sim         dynamo.Config `yaml:"sim"`
	Initial     InitialConfig `yaml:"initial"`
}

type GradeConfig struct {
	Profile string  `yaml:"profile"`
	Value   float64 `yaml:"value"`
	// Start is when a step climb begins.
	Start float64 `yaml:"start,omitempty"`
}

// InitialConfig overrides the derived starting state. Zero fields keep
// the derived value.
type InitialConfig struct {
	Velocity  float64 `yaml:"velocity"`
	EngineRpm float64 `yaml:"engine_rpm,omitempty"`
	SOC       float64 `yaml:"soc,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Topology:    DefaultTopology,
		TargetSpeed: DefaultTargetSpeed,
		Grade:       GradeConfig{Profile: GradeConstant},
		Sim:         dynamo.DefaultConfig(),
		Initial:     InitialConfig{Velocity: DefaultVelocity},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Topology == "" {
		return fmt.Errorf("config: topology is required")
	}
	if c.TargetSpeed < 0 {
		return fmt.Errorf("config: target_speed must not be negative, got %g", c.TargetSpeed)
	}
	if _, err := c.GradeProfile(); err != nil {
		return err
	}
	if err := c.Sim.Validate(); err != nil {
		return fmt.Errorf("config: sim: %w", err)
	}
	if c.Initial.SOC < 0 || c.Initial.SOC > 1 {
		return fmt.Errorf("config: initial soc must be within [0, 1], got %g", c.Initial.SOC)
	}
	return nil
}

// GradeProfile turns the grade section into a profile.
func (c *Config) GradeProfile() (sim.GradeProfile, error) {
	switch c.Grade.Profile {
	case "", GradeConstant:
		return sim.ConstantGrade(c.Grade.Value), nil
	case GradeHaul:
		return sim.DefaultHaulCycle(), nil
	case GradeStep:
		return sim.StepClimb{Start: c.Grade.Start, Rise: c.Grade.Value}, nil
	default:
		return nil, fmt.Errorf("config: unknown grade profile %q", c.Grade.Profile)
	}
}

// Graph resolves the topology reference to a graph document.
func (c *Config) Graph() (*topology.GraphDoc, error) {
	return topology.Resolve(c.Topology)
}

// ControllerSpec returns the controller selection, picking the diesel
// shift logic for engine-only drivetrains when none is named.
func (c *Config) ControllerSpec(doc *topology.GraphDoc) control.Spec {
	kind := c.Controller
	if kind == "" {
		kind = DefaultController(doc)
	}
	return control.Spec{Kind: kind, Kp: c.Kp, Ki: c.Ki, Target: c.TargetSpeed}
}

// DefaultController is "diesel" for a drivetrain with an engine and no
// electric machines, "speed" otherwise.
func DefaultController(doc *topology.GraphDoc) string {
	if doc == nil {
		return "speed"
	}
	if len(doc.NodesOfType(component.TypeEngine)) > 0 && len(doc.NodesOfType(component.TypeMotor)) == 0 {
		return "diesel"
	}
	return "speed"
}

// InitialState derives the starting state for d and applies the overrides.
func (c *Config) InitialState(d *drivetrain.Drivetrain) map[string]float64 {
	state := sim.InitialState(d, c.Initial.Velocity)
	if c.Initial.EngineRpm > 0 {
		for _, dof := range d.IndependentDOFs() {
			if comp, ok := d.Component(dof.Component); ok && comp.Kind() == component.KindEngine {
				state[dof.Name] = c.Initial.EngineRpm / component.RadPerSecToRpm
			}
		}
	}
	if c.Initial.SOC > 0 {
		for _, comp := range d.Components() {
			if comp.Kind() == component.KindBattery {
				state[comp.Name()+".SOC"] = c.Initial.SOC
			}
		}
	}
	return state
}
