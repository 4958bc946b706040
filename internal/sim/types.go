package sim

import (
	"github.com/san-kum/drivesim/internal/dynamo"
)

// Controller maps the named state and the current grade to control inputs.
type Controller interface {
	Compute(state map[string]float64, grade float64) dynamo.Control
}

// TimedController is a Controller that also wants the simulation time,
// e.g. to integrate an error or enforce a shift lockout.
type TimedController interface {
	Controller
	ComputeAt(t float64, state map[string]float64, grade float64) dynamo.Control
}

// Resetter is implemented by stateful controllers; Simulate resets them
// before a run.
type Resetter interface {
	Reset()
}

// ControlFunc adapts a plain function to a Controller.
type ControlFunc func(t float64, state map[string]float64, grade float64) dynamo.Control

func (f ControlFunc) Compute(state map[string]float64, grade float64) dynamo.Control {
	return f(0, state, grade)
}

func (f ControlFunc) ComputeAt(t float64, state map[string]float64, grade float64) dynamo.Control {
	return f(t, state, grade)
}

func timed(c Controller) func(t float64, state map[string]float64, grade float64) dynamo.Control {
	if tc, ok := c.(TimedController); ok {
		return tc.ComputeAt
	}
	return func(_ float64, state map[string]float64, grade float64) dynamo.Control {
		return c.Compute(state, grade)
	}
}

// Observer receives every recorded sample while a run is in progress.
type Observer interface {
	OnSample(t float64, x dynamo.State, control dynamo.Control)
}

// Progress is reported by SimulateAsync.
type Progress struct {
	Fraction float64
	Time     float64
	Velocity float64
}
