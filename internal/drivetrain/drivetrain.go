// Package drivetrain compiles a validated topology into equations of motion.
//
// Compilation identifies one DOF per mechanical port, eliminates the DOFs
// fixed by connections and by component constraints, and assembles the
// reduced inertia matrix CᵀJC over the remaining independent DOFs. The state
// vector is the independent shaft speeds followed by component internal
// states (e.g. battery SOC).
//
// The compiled layout is an immutable snapshot. Gear changes build a new
// snapshot through ShiftGear and swap it in atomically; evaluating the
// dynamics never recompiles.
//
// A Drivetrain owns its components: a simulation run requires exclusive
// ownership of its Drivetrain for the duration of the run.
package drivetrain

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/port"
	"github.com/san-kum/drivesim/internal/topology"
)

type stateRef struct {
	component string
	state     string
}

// layout is one compiled configuration of the drivetrain.
type layout struct {
	independent []DOF
	indexOf     map[string]int
	eliminated  map[string]*elimination
	elimOrder   []string
	// rows[i] expresses allDOFs[i] over the independent DOFs (the rows of C).
	rows    [][]float64
	inertia [][]float64
	gears   map[string]int
}

type Drivetrain struct {
	topo       *topology.Topology
	components []component.Component
	byName     map[string]component.Component

	allDOFs  []DOF
	allIndex map[string]int
	internal []stateRef
	controls []string
	shifters []string

	outputDOF string
	load      component.Load
	// busMotors maps each battery to the electrical machines sharing its bus.
	busMotors map[string][]string

	shiftMu sync.Mutex
	current atomic.Pointer[layout]
}

// Compile validates topo and compiles it. Validation failures are returned
// as a single aggregated *topology.TopologyError.
func Compile(topo *topology.Topology) (*Drivetrain, error) {
	if err := topo.ValidationError(); err != nil {
		return nil, err
	}
	return compile(topo)
}

func compile(topo *topology.Topology) (*Drivetrain, error) {
	d := &Drivetrain{
		topo:      topo,
		byName:    make(map[string]component.Component),
		allIndex:  make(map[string]int),
		busMotors: make(map[string][]string),
	}

	for _, c := range topo.Components() {
		d.components = append(d.components, c)
		d.byName[c.Name()] = c
	}

	d.identifyDOFs()
	d.collectInternalStates()
	d.identifyControls()
	d.collectBuses()

	if comp, p, ok := topo.Output(); ok {
		d.outputDOF = dofName(comp, p)
		if l, ok := d.byName[comp].(component.Load); ok {
			d.load = l
		}
	}

	l, err := d.buildLayout()
	if err != nil {
		return nil, err
	}
	d.current.Store(l)
	return d, nil
}

func (d *Drivetrain) identifyDOFs() {
	for _, c := range d.components {
		for _, p := range component.MechanicalPorts(c) {
			name := dofName(c.Name(), p.Name)
			d.allIndex[name] = len(d.allDOFs)
			d.allDOFs = append(d.allDOFs, DOF{Name: name, Component: c.Name(), Port: p.Name, Index: len(d.allDOFs)})
		}
	}
}

func (d *Drivetrain) collectInternalStates() {
	for _, c := range d.components {
		for _, s := range c.StateNames() {
			d.internal = append(d.internal, stateRef{component: c.Name(), state: s})
		}
	}
}

func (d *Drivetrain) identifyControls() {
	for _, c := range d.components {
		if _, ok := c.(component.Actuator); ok {
			d.controls = append(d.controls, "T_"+c.Name())
		}
	}
	for _, c := range d.components {
		if _, ok := component.IsShiftable(c); ok {
			d.controls = append(d.controls, "gear_"+c.Name())
			d.shifters = append(d.shifters, c.Name())
		}
	}
}

func (d *Drivetrain) collectBuses() {
	for _, bus := range d.topo.BusNames() {
		members := d.topo.BusMembers(bus)
		var batteries, machines []string
		for _, m := range members {
			switch d.byName[m.Component].(type) {
			case *component.Battery:
				batteries = append(batteries, m.Component)
			case component.ElectricalMachine:
				machines = append(machines, m.Component)
			}
		}
		for _, b := range batteries {
			d.busMotors[b] = append(d.busMotors[b], machines...)
		}
	}
}

func (d *Drivetrain) isMechanical(comp, portName string) bool {
	c, ok := d.byName[comp]
	if !ok {
		return false
	}
	p, ok := component.FindPort(c, portName)
	return ok && p.Type == port.Mechanical
}

// buildLayout runs elimination, re-indexing and inertia assembly against the
// components' current gears.
func (d *Drivetrain) buildLayout() (*layout, error) {
	independent, eliminated, order, err := d.eliminate()
	if err != nil {
		return nil, err
	}

	l := &layout{
		indexOf:    make(map[string]int),
		eliminated: eliminated,
		elimOrder:  order,
		gears:      make(map[string]int),
	}
	for _, dof := range d.allDOFs {
		if independent[dof.Name] {
			l.indexOf[dof.Name] = len(l.independent)
			l.independent = append(l.independent, DOF{
				Name:      dof.Name,
				Component: dof.Component,
				Port:      dof.Port,
				Index:     len(l.independent),
			})
		}
	}

	n := len(l.independent)
	r := newResolver(independent, eliminated)
	l.rows = make([][]float64, len(d.allDOFs))
	for i, dof := range d.allDOFs {
		row := make([]float64, n)
		if k, ok := l.indexOf[dof.Name]; ok {
			row[k] = 1
		} else {
			resolved, err := r.resolve(dof.Name)
			if err != nil {
				return nil, err
			}
			for _, t := range resolved {
				row[l.indexOf[t.dof]] = t.coeff
			}
		}
		l.rows[i] = row
	}

	l.inertia, err = d.assembleInertia(l)
	if err != nil {
		return nil, err
	}

	for _, name := range d.shifters {
		s, _ := component.IsShiftable(d.byName[name])
		l.gears[name] = s.Gear()
	}
	return l, nil
}

func (d *Drivetrain) layout() *layout { return d.current.Load() }

func (d *Drivetrain) Topology() *topology.Topology { return d.topo }

func (d *Drivetrain) Components() []component.Component {
	out := make([]component.Component, len(d.components))
	copy(out, d.components)
	return out
}

func (d *Drivetrain) Component(name string) (component.Component, bool) {
	c, ok := d.byName[name]
	return c, ok
}

// StateNames lists the state vector entries: independent DOFs as
// "<component>.<port>", then internal states as "<component>.<state>".
func (d *Drivetrain) StateNames() []string {
	l := d.layout()
	names := make([]string, 0, len(l.independent)+len(d.internal))
	for _, dof := range l.independent {
		names = append(names, dof.Name)
	}
	for _, s := range d.internal {
		names = append(names, s.component+"."+s.state)
	}
	return names
}

func (d *Drivetrain) NumMechanicalDOFs() int { return len(d.layout().independent) }
func (d *Drivetrain) NumInternalStates() int { return len(d.internal) }
func (d *Drivetrain) NumStates() int         { return d.NumMechanicalDOFs() + d.NumInternalStates() }

// ControlNames lists T_<name> for every actuator, then gear_<name> for every
// gearbox with more than one gear.
func (d *Drivetrain) ControlNames() []string {
	out := make([]string, len(d.controls))
	copy(out, d.controls)
	return out
}

func (d *Drivetrain) Shiftables() []string {
	out := make([]string, len(d.shifters))
	copy(out, d.shifters)
	return out
}

func (d *Drivetrain) IndependentDOFs() []DOF {
	l := d.layout()
	out := make([]DOF, len(l.independent))
	copy(out, l.independent)
	return out
}

func (d *Drivetrain) AllDOFs() []DOF {
	out := make([]DOF, len(d.allDOFs))
	copy(out, d.allDOFs)
	return out
}

// InertiaMatrix returns a copy of the reduced inertia matrix.
func (d *Drivetrain) InertiaMatrix() [][]float64 {
	src := d.layout().inertia
	out := make([][]float64, len(src))
	for i := range src {
		out[i] = append([]float64(nil), src[i]...)
	}
	return out
}

// Expression returns the coefficients expressing dof over the independent
// DOFs.
func (d *Drivetrain) Expression(dof string) (map[string]float64, error) {
	l := d.layout()
	i, ok := d.allIndex[dof]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrDOFNotFound, dof)
	}
	out := make(map[string]float64)
	for k, c := range l.rows[i] {
		if c != 0 {
			out[l.independent[k].Name] = c
		}
	}
	return out, nil
}

// EliminatedBy reports which component removed dof from the independent set
// ("connection" for rigid wiring).
func (d *Drivetrain) EliminatedBy(dof string) (string, bool) {
	e, ok := d.layout().eliminated[dof]
	if !ok {
		return "", false
	}
	return e.component, true
}

func (d *Drivetrain) OutputDOF() string { return d.outputDOF }

// BusMachines maps each battery to the electrical machines on its bus.
func (d *Drivetrain) BusMachines() map[string][]string {
	out := make(map[string][]string, len(d.busMotors))
	for b, ms := range d.busMotors {
		out[b] = append([]string(nil), ms...)
	}
	return out
}

// Gear returns the active gear of a shiftable component in the current
// layout.
func (d *Drivetrain) Gear(name string) (int, bool) {
	g, ok := d.layout().gears[name]
	return g, ok
}

// StateToArray orders a named state into a state vector; missing names are
// zero.
func (d *Drivetrain) StateToArray(state map[string]float64) dynamo.State {
	names := d.StateNames()
	x := make(dynamo.State, len(names))
	for i, name := range names {
		x[i] = state[name]
	}
	return x
}

func (d *Drivetrain) ArrayToState(x dynamo.State) map[string]float64 {
	names := d.StateNames()
	out := make(map[string]float64, len(names))
	for i, name := range names {
		if i < len(x) {
			out[name] = x[i]
		}
	}
	return out
}

// AllSpeeds resolves every mechanical port speed from the state vector.
func (d *Drivetrain) AllSpeeds(x dynamo.State) map[string]float64 {
	l := d.layout()
	speeds := make(map[string]float64, len(d.allDOFs))
	for i, dof := range d.allDOFs {
		speeds[dof.Name] = dot(l.rows[i], x)
	}
	return speeds
}

// OutputSpeed is the angular speed of the output port.
func (d *Drivetrain) OutputSpeed(x dynamo.State) float64 {
	i, ok := d.allIndex[d.outputDOF]
	if !ok {
		return 0
	}
	return dot(d.layout().rows[i], x)
}

// Velocity converts the output speed to vehicle velocity when the output is
// a road load, and returns the raw speed otherwise.
func (d *Drivetrain) Velocity(x dynamo.State) float64 {
	omega := d.OutputSpeed(x)
	if d.load == nil {
		return omega
	}
	return d.load.WheelSpeedToVelocity(omega)
}

// VelocityToOutputSpeed inverts Velocity.
func (d *Drivetrain) VelocityToOutputSpeed(v float64) float64 {
	if d.load == nil {
		return v
	}
	return d.load.VelocityToWheelSpeed(v)
}

func (d *Drivetrain) String() string {
	return fmt.Sprintf("Drivetrain(dofs=%d, states=%d, controls=%d)",
		d.NumMechanicalDOFs(), d.NumInternalStates(), len(d.controls))
}

func dot(row []float64, x dynamo.State) float64 {
	sum := 0.0
	for k, c := range row {
		if c != 0 && k < len(x) {
			sum += c * x[k]
		}
	}
	return sum
}
