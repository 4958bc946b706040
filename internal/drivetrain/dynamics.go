package drivetrain

import (
	"fmt"
	"math"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/linalg"
)

// Evaluation is the full set of port quantities at one state and control.
type Evaluation struct {
	// Speeds and Torques are keyed by "<component>.<port>".
	Speeds  map[string]float64
	Torques map[string]float64
	// BusPower is the electrical power drawn by the machines on each
	// battery's bus, keyed by battery name. Positive is discharge.
	BusPower map[string]float64
	// LoadTorque is the road load on the output port.
	LoadTorque float64
}

func componentControls(name string, control dynamo.Control) map[string]float64 {
	out := make(map[string]float64, 2)
	if v, ok := control["T_"+name]; ok {
		out["torque"] = v
	}
	if v, ok := control["boost_"+name]; ok {
		out["boost"] = v
	}
	return out
}

func (d *Drivetrain) internalStates(c component.Component, n int, x dynamo.State) map[string]float64 {
	names := c.StateNames()
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]float64, len(names))
	for i, s := range d.internal {
		if s.component == c.Name() && n+i < len(x) {
			out[s.state] = x[n+i]
		}
	}
	return out
}

func (d *Drivetrain) evaluate(l *layout, x dynamo.State, control dynamo.Control, grade float64) *Evaluation {
	n := len(l.independent)
	ev := &Evaluation{
		Speeds:   make(map[string]float64, len(d.allDOFs)),
		Torques:  make(map[string]float64, len(d.allDOFs)),
		BusPower: make(map[string]float64, len(d.busMotors)),
	}
	for i, dof := range d.allDOFs {
		ev.Speeds[dof.Name] = dot(l.rows[i], x)
	}

	for _, c := range d.components {
		name := c.Name()
		speeds := make(map[string]float64)
		for _, p := range component.MechanicalPorts(c) {
			speeds[p.Name] = ev.Speeds[dofName(name, p.Name)]
		}
		torques := c.ComputeTorques(speeds, componentControls(name, control), d.internalStates(c, n, x))
		for p, tq := range torques {
			ev.Torques[dofName(name, p)] = tq
		}
	}

	for battery, machines := range d.busMotors {
		total := 0.0
		for _, m := range machines {
			em, ok := d.byName[m].(component.ElectricalMachine)
			if !ok {
				continue
			}
			a, ok := d.byName[m].(component.Actuator)
			if !ok {
				continue
			}
			shaft := dofName(m, a.ShaftPort())
			total += em.ElectricalPower(ev.Torques[shaft], ev.Speeds[shaft])
		}
		ev.BusPower[battery] = total
	}

	if d.load != nil {
		ev.LoadTorque = d.load.LoadTorque(ev.Speeds[d.outputDOF], grade)
	}
	return ev
}

// Evaluate computes port speeds, port torques and bus powers at state x
// without integrating anything.
func (d *Drivetrain) Evaluate(x dynamo.State, control dynamo.Control, grade float64) *Evaluation {
	return d.evaluate(d.layout(), x, control, grade)
}

// Dynamics returns dx/dt. Gear selections in control are ignored here; they
// take effect through ShiftGear.
func (d *Drivetrain) Dynamics(_ float64, x dynamo.State, control dynamo.Control, grade float64) (dynamo.State, error) {
	l := d.layout()
	n := len(l.independent)
	if len(x) != n+len(d.internal) {
		return nil, fmt.Errorf("%w: state has %d entries, drivetrain has %d", dynamo.ErrDimensionMismatch, len(x), n+len(d.internal))
	}
	dx := make(dynamo.State, len(x))
	ev := d.evaluate(l, x, control, grade)

	// Generalized forces: Cᵀ applied to the port torques.
	tau := make([]float64, n)
	for i, dof := range d.allDOFs {
		tq, ok := ev.Torques[dof.Name]
		if !ok || tq == 0 {
			continue
		}
		for k, c := range l.rows[i] {
			if math.Abs(c) > coeffEpsilon {
				tau[k] += c * tq
			}
		}
	}

	if d.load != nil {
		if i, ok := d.allIndex[d.outputDOF]; ok {
			for k, c := range l.rows[i] {
				if math.Abs(c) > coeffEpsilon {
					tau[k] -= c * ev.LoadTorque
				}
			}
		}
	}

	if n > 0 {
		omegaDot, err := linalg.SolveLinear(l.inertia, tau)
		if err != nil {
			return nil, err
		}
		copy(dx, omegaDot)
	}

	for i, s := range d.internal {
		c := d.byName[s.component]
		values := component.PortValues{}
		for _, p := range component.MechanicalPorts(c) {
			dof := dofName(s.component, p.Name)
			values[p.Name+"_speed"] = ev.Speeds[dof]
			values[p.Name+"_torque"] = ev.Torques[dof]
		}
		if pw, ok := ev.BusPower[s.component]; ok {
			values[component.ElectricalPowerKey] = pw
		}
		derivs := c.StateDerivatives(d.internalStates(c, n, x), values)
		dx[n+i] = derivs[s.state]
	}

	return dx, nil
}

// Func binds control and grade sources into an ODE right-hand side.
func (d *Drivetrain) Func(control func(t float64, x dynamo.State) dynamo.Control, grade func(t float64) float64) dynamo.Func {
	return func(t float64, x dynamo.State) (dynamo.State, error) {
		return d.Dynamics(t, x, control(t, x), grade(t))
	}
}
