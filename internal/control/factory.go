package control

import (
	"fmt"
	"sort"

	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
)

// Controller is what every controller in this package provides.
type Controller interface {
	Compute(state map[string]float64, grade float64) dynamo.Control
	ComputeAt(t float64, state map[string]float64, grade float64) dynamo.Control
	Reset()
	GetParams() map[string]float64
	SetParam(name string, value float64)
}

// Spec selects and parameterizes a controller. Zero gains take the
// controller's defaults.
type Spec struct {
	Kind    string  `yaml:"kind" json:"kind"`
	Kp      float64 `yaml:"kp,omitempty" json:"kp,omitempty"`
	Ki      float64 `yaml:"ki,omitempty" json:"ki,omitempty"`
	Target  float64 `yaml:"target,omitempty" json:"target,omitempty"`
	Engine  string  `yaml:"engine,omitempty" json:"engine,omitempty"`
	Gearbox string  `yaml:"gearbox,omitempty" json:"gearbox,omitempty"`

	Allocation *Allocation `yaml:"allocation,omitempty" json:"allocation,omitempty"`
}

type builder func(d *drivetrain.Drivetrain, s Spec) (Controller, error)

var builders = map[string]builder{
	"speed": func(d *drivetrain.Drivetrain, s Spec) (Controller, error) {
		kp, ki := s.Kp, s.Ki
		if kp == 0 {
			kp = DefaultSpeedKp
		}
		if ki == 0 {
			ki = DefaultSpeedKi
		}
		c, err := NewAllocatedSpeedController(d, kp, ki, nil, s.Allocation)
		if err != nil {
			return nil, err
		}
		if s.Target > 0 {
			c.Target = s.Target
		}
		return c, nil
	},
	"diesel": func(d *drivetrain.Drivetrain, s Spec) (Controller, error) {
		engine, gearbox := s.Engine, s.Gearbox
		if engine == "" {
			engine = "engine"
		}
		if gearbox == "" {
			gearbox = "gearbox"
		}
		c, err := NewConventionalDiesel(d, engine, gearbox)
		if err != nil {
			return nil, err
		}
		if s.Kp > 0 {
			c.Kp = s.Kp
		}
		if s.Target > 0 {
			c.Target = s.Target
		}
		return c, nil
	},
}

func New(d *drivetrain.Drivetrain, s Spec) (Controller, error) {
	kind := s.Kind
	if kind == "" {
		kind = "speed"
	}
	b, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("control: unknown controller %q", kind)
	}
	return b(d, s)
}

func Kinds() []string {
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
