package sim

import (
	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/drivetrain"
)

// EngineStartRpm is the speed engines are spun up to before a run; below
// rpmMin a diesel produces no torque.
const EngineStartRpm = 800.0

// InitialState builds a starting state: engine shafts at EngineStartRpm,
// the first free shaft driving the output set for velocity, and batteries
// at their initial SOC. With only engine shafts independent the velocity
// follows from the engine speed and the argument is ignored.
func InitialState(d *drivetrain.Drivetrain, velocity float64) map[string]float64 {
	state := make(map[string]float64, d.NumStates())

	var free []string
	for _, dof := range d.IndependentDOFs() {
		c, _ := d.Component(dof.Component)
		if c != nil && c.Kind() == component.KindEngine {
			state[dof.Name] = EngineStartRpm / component.RadPerSecToRpm
			continue
		}
		free = append(free, dof.Name)
	}

	if expr, err := d.Expression(d.OutputDOF()); err == nil {
		residual := d.VelocityToOutputSpeed(velocity)
		for name, c := range expr {
			residual -= c * state[name]
		}
		for _, name := range free {
			if c := expr[name]; c != 0 {
				state[name] = residual / c
				break
			}
		}
	}

	for _, c := range d.Components() {
		if b, ok := c.(*component.Battery); ok {
			state[c.Name()+".SOC"] = b.Params.SocInit
		}
	}
	return state
}
