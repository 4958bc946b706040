package control

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
)

const (
	defaultTarget       = 10.0
	defaultVMax         = 15.0
	integralLimit       = 100.0
	untimedStep         = 0.1
	downshiftGrade      = 0.05
	firstGearGrade      = 0.1
	DefaultSpeedKp      = 50_000.0
	DefaultSpeedKi      = 5_000.0
	DefaultDieselKp     = 50_000.0
	defaultFixedRatio   = 16.0
	defaultShiftHyst    = 1.0
	defaultUpshiftRpm   = 1500.0
	defaultDownshiftRpm = 1000.0
)

var (
	ErrNoActuators       = errors.New("control: drivetrain has no engine or motor")
	ErrInvalidAllocation = errors.New("control: invalid torque allocation")
)

type actuator struct {
	name     string
	dof      string
	engine   bool
	fraction float64
	actuator component.Actuator
}

// Allocation names the actuators a SpeedController drives and the fraction
// of the torque demand each receives. IsEngine may be nil, in which case
// engines are recognized by component kind.
type Allocation struct {
	Actuators []string  `yaml:"actuators" json:"actuators"`
	Fractions []float64 `yaml:"fractions" json:"fractions"`
	IsEngine  []bool    `yaml:"isEngine,omitempty" json:"isEngine,omitempty"`
}

func (a *Allocation) validate() error {
	if len(a.Actuators) == 0 {
		return fmt.Errorf("%w: no actuators", ErrInvalidAllocation)
	}
	if len(a.Fractions) != len(a.Actuators) {
		return fmt.Errorf("%w: %d fractions for %d actuators", ErrInvalidAllocation, len(a.Fractions), len(a.Actuators))
	}
	if a.IsEngine != nil && len(a.IsEngine) != len(a.Actuators) {
		return fmt.Errorf("%w: %d engine flags for %d actuators", ErrInvalidAllocation, len(a.IsEngine), len(a.Actuators))
	}
	seen := make(map[string]bool, len(a.Actuators))
	for i, f := range a.Fractions {
		if seen[a.Actuators[i]] {
			return fmt.Errorf("%w: %s listed twice", ErrInvalidAllocation, a.Actuators[i])
		}
		seen[a.Actuators[i]] = true
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: fraction %v for %s", ErrInvalidAllocation, f, a.Actuators[i])
		}
	}
	return nil
}

// SpeedController tracks a target velocity with a PI loop. Without an
// explicit Allocation the torque demand is shared equally among all
// actuators; engines never receive a negative share. A single shiftable gearbox, if present, is stepped
// through equal speed bands up to the vehicle's vMax.
type SpeedController struct {
	// Target is the desired velocity in m/s. Schedule overrides it when set.
	Target   float64
	Schedule func(t float64) float64

	d         *drivetrain.Drivetrain
	pid       *PID
	actuators []actuator
	gearbox   string
	nGears    int
	vMax      float64
	clock     float64
}

func NewSpeedController(d *drivetrain.Drivetrain, kp, ki float64, schedule func(t float64) float64) (*SpeedController, error) {
	return NewAllocatedSpeedController(d, kp, ki, schedule, nil)
}

// NewAllocatedSpeedController drives the actuators named by alloc with
// their given shares. A nil alloc discovers every engine and motor.
func NewAllocatedSpeedController(d *drivetrain.Drivetrain, kp, ki float64, schedule func(t float64) float64, alloc *Allocation) (*SpeedController, error) {
	c := &SpeedController{
		Target:   defaultTarget,
		Schedule: schedule,
		d:        d,
		pid:      NewPID(kp, ki, 0),
		vMax:     defaultVMax,
	}
	c.pid.IntegralLimit = integralLimit

	for _, comp := range d.Components() {
		if a, ok := comp.(component.Actuator); ok && alloc == nil {
			c.actuators = append(c.actuators, actuator{
				name:     comp.Name(),
				dof:      comp.Name() + "." + a.ShaftPort(),
				engine:   comp.Kind() == component.KindEngine,
				actuator: a,
			})
		}
		if v, ok := comp.(*component.Vehicle); ok && v.Params.VMax > 0 {
			c.vMax = v.Params.VMax
		}
		if s, ok := component.IsShiftable(comp); ok && c.gearbox == "" {
			c.gearbox = comp.Name()
			c.nGears = s.NumGears()
		}
	}
	if alloc != nil {
		if err := c.allocate(alloc); err != nil {
			return nil, err
		}
	}
	if len(c.actuators) == 0 {
		return nil, ErrNoActuators
	}
	if alloc == nil {
		for i := range c.actuators {
			c.actuators[i].fraction = 1 / float64(len(c.actuators))
		}
	}
	return c, nil
}

func (c *SpeedController) allocate(alloc *Allocation) error {
	if err := alloc.validate(); err != nil {
		return err
	}
	for i, name := range alloc.Actuators {
		comp, ok := c.d.Component(name)
		if !ok {
			return fmt.Errorf("%w: unknown component %q", ErrInvalidAllocation, name)
		}
		a, ok := comp.(component.Actuator)
		if !ok {
			return fmt.Errorf("%w: %s is not an engine or motor", ErrInvalidAllocation, name)
		}
		engine := comp.Kind() == component.KindEngine
		if alloc.IsEngine != nil {
			engine = alloc.IsEngine[i]
		}
		c.actuators = append(c.actuators, actuator{
			name:     name,
			dof:      name + "." + a.ShaftPort(),
			engine:   engine,
			fraction: alloc.Fractions[i],
			actuator: a,
		})
	}
	return nil
}

func (c *SpeedController) target(t float64) float64 {
	if c.Schedule != nil {
		return c.Schedule(t)
	}
	return c.Target
}

// Compute is the untimed form; each call advances an internal clock by
// 0.1 s.
func (c *SpeedController) Compute(state map[string]float64, grade float64) dynamo.Control {
	u := c.ComputeAt(c.clock, state, grade)
	c.clock += untimedStep
	return u
}

func (c *SpeedController) ComputeAt(t float64, state map[string]float64, grade float64) dynamo.Control {
	x := c.d.StateToArray(state)
	v := c.d.Velocity(x)
	demand := c.pid.Update(c.target(t)-v, t)

	speeds := c.d.AllSpeeds(x)

	u := make(dynamo.Control, len(c.actuators)+1)
	for _, a := range c.actuators {
		cmd := demand * a.fraction
		if a.engine {
			cmd = math.Max(0, cmd)
		}
		rpm := math.Abs(speeds[a.dof]) * component.RadPerSecToRpm
		u["T_"+a.name] = a.actuator.ClipTorque(rpm, cmd)
	}

	if c.gearbox != "" {
		u["gear_"+c.gearbox] = float64(c.selectGear(v, grade))
	}
	return u
}

func (c *SpeedController) selectGear(v, grade float64) int {
	width := c.vMax / float64(c.nGears)
	gear := int(math.Floor(v / width))
	gear = max(0, min(gear, c.nGears-1))

	if grade > downshiftGrade {
		gear = max(0, gear-1)
	}
	if grade > firstGearGrade {
		gear = 0
	}
	return gear
}

// Reset clears the integral and the untimed clock
func (c *SpeedController) Reset() {
	c.pid.Reset()
	c.clock = 0
}

// Actuators lists the controlled actuators in allocation order.
func (c *SpeedController) Actuators() []string {
	out := make([]string, len(c.actuators))
	for i, a := range c.actuators {
		out[i] = a.name
	}
	return out
}

func (c *SpeedController) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     c.pid.Kp,
		"Ki":     c.pid.Ki,
		"Target": c.Target,
	}
}

func (c *SpeedController) SetParam(name string, value float64) {
	if name == "Target" {
		c.Target = value
		return
	}
	c.pid.SetParam(name, value)
}
