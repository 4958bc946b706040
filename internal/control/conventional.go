package control

import (
	"fmt"
	"math"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
)

// ShiftSpeeds holds the vehicle speeds (m/s) at which each gear shifts.
// Upshift[i] leaves gear i upward; Downshift[i] leaves gear i+1 downward.
type ShiftSpeeds struct {
	Upshift   []float64
	Downshift []float64
}

// NewShiftSpeeds derives shift speeds from engine rpm thresholds and the
// fixed reduction between gearbox output and wheels.
func NewShiftSpeeds(ratios []float64, upRpm, downRpm, rWheel, fixedRatio float64) ShiftSpeeds {
	wUp := upRpm / component.RadPerSecToRpm
	wDown := downRpm / component.RadPerSecToRpm

	var s ShiftSpeeds
	for i, r := range ratios {
		if i < len(ratios)-1 {
			s.Upshift = append(s.Upshift, wUp*rWheel/(r*fixedRatio))
		}
		if i > 0 {
			s.Downshift = append(s.Downshift, wDown*rWheel/(r*fixedRatio))
		}
	}
	return s
}

// ConventionalDiesel drives one engine through one powershift gearbox with
// a proportional velocity loop. Shift points scale down on climbs.
type ConventionalDiesel struct {
	Target     float64
	Kp         float64
	Hysteresis float64
	Schedule   func(t float64) float64

	d          *drivetrain.Drivetrain
	engine     *component.Engine
	engineName string
	gearbox    *component.Gearbox
	shifts     ShiftSpeeds
	fixedRatio float64
	rWheel     float64
	gear       int
}

// NewConventionalDiesel binds the controller to the named engine and
// gearbox. Every single-ratio gearbox contributes to the fixed reduction.
func NewConventionalDiesel(d *drivetrain.Drivetrain, engineName, gearboxName string) (*ConventionalDiesel, error) {
	c := &ConventionalDiesel{
		Target:     defaultTarget,
		Kp:         DefaultDieselKp,
		Hysteresis: defaultShiftHyst,
		d:          d,
		engineName: engineName,
		fixedRatio: 1,
		rWheel:     1,
	}

	comp, ok := d.Component(engineName)
	if !ok {
		return nil, fmt.Errorf("control: engine %q not found", engineName)
	}
	if c.engine, ok = comp.(*component.Engine); !ok {
		return nil, fmt.Errorf("control: %q is a %s, not an engine", engineName, comp.Kind())
	}
	comp, ok = d.Component(gearboxName)
	if !ok {
		return nil, fmt.Errorf("control: gearbox %q not found", gearboxName)
	}
	if c.gearbox, ok = comp.(*component.Gearbox); !ok {
		return nil, fmt.Errorf("control: %q is a %s, not a gearbox", gearboxName, comp.Kind())
	}

	fixed := false
	for _, comp := range d.Components() {
		switch v := comp.(type) {
		case *component.Vehicle:
			c.rWheel = v.Params.RWheel
		case *component.Gearbox:
			if v.NumGears() == 1 {
				c.fixedRatio *= v.CurrentRatio()
				fixed = true
			}
		}
	}
	if !fixed {
		c.fixedRatio = defaultFixedRatio
	}

	c.shifts = NewShiftSpeeds(c.gearbox.Params.Ratios, defaultUpshiftRpm, defaultDownshiftRpm, c.rWheel, c.fixedRatio)
	if g, ok := d.Gear(gearboxName); ok {
		c.gear = g
	}
	return c, nil
}

func (c *ConventionalDiesel) Shifts() ShiftSpeeds { return c.shifts }
func (c *ConventionalDiesel) Gear() int           { return c.gear }

func (c *ConventionalDiesel) Compute(state map[string]float64, grade float64) dynamo.Control {
	return c.ComputeAt(0, state, grade)
}

func (c *ConventionalDiesel) ComputeAt(t float64, state map[string]float64, grade float64) dynamo.Control {
	x := c.d.StateToArray(state)
	v := c.d.Velocity(x)
	c.gear = c.nextGear(v, grade)

	target := c.Target
	if c.Schedule != nil {
		target = c.Schedule(t)
	}
	demand := math.Max(0, c.Kp*(target-v))

	omega := c.d.AllSpeeds(x)[c.engineName+"."+c.engine.ShaftPort()]
	if omega < 1 {
		omega = v * c.gearbox.Ratio(c.gear) * c.fixedRatio / c.rWheel
	}
	rpm := omega * component.RadPerSecToRpm

	return dynamo.Control{
		"T_" + c.engineName:         c.engine.ClipTorque(rpm, demand),
		"gear_" + c.gearbox.Name(): float64(c.gear),
	}
}

func (c *ConventionalDiesel) nextGear(v, grade float64) int {
	factor := 1 - 5*grade
	g := c.gear
	n := c.gearbox.NumGears()

	if g < n-1 && g < len(c.shifts.Upshift) && v > c.shifts.Upshift[g]*factor+c.Hysteresis {
		g++
	}
	// The downshift check sees the gear just selected by an upshift.
	if g > 0 && g-1 < len(c.shifts.Downshift) && v < c.shifts.Downshift[g-1]*factor-c.Hysteresis {
		g--
	}
	return g
}

// Reset returns to the gearbox's compiled gear
func (c *ConventionalDiesel) Reset() {
	c.gear = 0
	if g, ok := c.d.Gear(c.gearbox.Name()); ok {
		c.gear = g
	}
}

func (c *ConventionalDiesel) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":         c.Kp,
		"Hysteresis": c.Hysteresis,
		"Target":     c.Target,
	}
}

func (c *ConventionalDiesel) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		c.Kp = value
	case "Hysteresis":
		c.Hysteresis = value
	case "Target":
		c.Target = value
	}
}
