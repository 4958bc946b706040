package drivetrain

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/port"
	"github.com/san-kum/drivesim/internal/topology"
)

func mustCompile(t *testing.T, topo *topology.Topology) *Drivetrain {
	t.Helper()
	d, err := Compile(topo)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return d
}

func mustTopo(t *testing.T, name string, cs []component.Component, conns [][4]string, out [2]string) *topology.Topology {
	t.Helper()
	topo := topology.New(name)
	for _, c := range cs {
		if err := topo.AddComponent(c); err != nil {
			t.Fatalf("AddComponent(%s): %v", c.Name(), err)
		}
	}
	for _, c := range conns {
		if err := topo.Connect(c[0], c[1], c[2], c[3]); err != nil {
			t.Fatalf("Connect %v: %v", c, err)
		}
	}
	if err := topo.SetOutput(out[0], out[1]); err != nil {
		t.Fatal(err)
	}
	return topo
}

func dieselParts() (*component.Engine, *component.Gearbox, *component.Gearbox, *component.Vehicle) {
	return component.NewEngine("engine", component.DefaultEngineParams()),
		component.NewGearbox("gearbox", component.Diesel7SpeedParams()),
		component.NewFinalDrive("final_drive", 16, 0.96),
		component.NewVehicle("vehicle", component.DefaultVehicleParams())
}

func dieselTopo(t *testing.T) (*topology.Topology, *component.Engine, *component.Gearbox, *component.Gearbox, *component.Vehicle) {
	e, g, fd, v := dieselParts()
	topo := mustTopo(t, "diesel", []component.Component{e, g, fd, v}, [][4]string{
		{"engine", "shaft", "gearbox", "input"},
		{"gearbox", "output", "final_drive", "input"},
		{"final_drive", "output", "vehicle", "wheels"},
	}, [2]string{"vehicle", "wheels"})
	return topo, e, g, fd, v
}

func presetDrivetrain(t *testing.T, name string) *Drivetrain {
	t.Helper()
	doc, ok := topology.Preset(name)
	if !ok {
		t.Fatalf("preset %s missing", name)
	}
	topo, err := doc.Build()
	if err != nil {
		t.Fatalf("Build(%s): %v", name, err)
	}
	return mustCompile(t, topo)
}

func expectedDieselInertia(e *component.Engine, g, fd *component.Gearbox, v *component.Vehicle) float64 {
	r := g.CurrentRatio()
	k := r * fd.CurrentRatio()
	return e.Params.JEngine + g.Params.JInput +
		(g.Params.JOutput+fd.Params.JInput)/(r*r) +
		(fd.Params.JOutput+v.EffectiveInertia())/(k*k)
}

func TestCompile_DieselSingleDOF(t *testing.T) {
	topo, e, g, fd, v := dieselTopo(t)
	d := mustCompile(t, topo)

	if got := d.NumMechanicalDOFs(); got != 1 {
		t.Fatalf("NumMechanicalDOFs = %d, want 1", got)
	}
	if got := d.IndependentDOFs()[0].Name; got != "engine.shaft" {
		t.Errorf("independent DOF = %s, want engine.shaft", got)
	}
	if got := d.NumInternalStates(); got != 0 {
		t.Errorf("NumInternalStates = %d, want 0", got)
	}

	want := expectedDieselInertia(e, g, fd, v)
	got := d.InertiaMatrix()[0][0]
	if math.Abs(got-want)/want > 1e-12 {
		t.Errorf("J = %v, want %v", got, want)
	}

	names := d.ControlNames()
	if len(names) != 2 || names[0] != "T_engine" || names[1] != "gear_gearbox" {
		t.Errorf("ControlNames = %v", names)
	}
}

func TestCompile_DOFCount(t *testing.T) {
	tests := []struct {
		preset   string
		mech     int
		internal int
	}{
		{"diesel-793d", 1, 0},
		{"diesel-789d", 1, 0},
		{"ecvt-split", 2, 1},
		{"ecvt-detailed", 2, 1},
		{"electric", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			d := presetDrivetrain(t, tt.preset)
			if got := d.NumMechanicalDOFs(); got != tt.mech {
				t.Errorf("mechanical DOFs = %d, want %d (%v)", got, tt.mech, d.IndependentDOFs())
			}
			if got := d.NumInternalStates(); got != tt.internal {
				t.Errorf("internal states = %d, want %d", got, tt.internal)
			}
			if got := d.NumStates(); got != len(d.StateNames()) {
				t.Errorf("NumStates = %d, StateNames = %v", got, d.StateNames())
			}
		})
	}
}

func TestCompile_DOFCountProperty(t *testing.T) {
	// Each connection and each effective constraint removes exactly one DOF.
	for _, name := range topology.PresetNames() {
		d := presetDrivetrain(t, name)
		mechConns := 0
		for _, c := range d.Topology().Connections() {
			if d.isMechanical(c.FromComponent, c.FromPort) {
				mechConns++
			}
		}
		constraints := 0
		for _, c := range d.Components() {
			constraints += len(c.Constraints())
		}
		n := len(d.AllDOFs()) - mechConns - constraints
		if got := d.NumMechanicalDOFs(); got != n {
			t.Errorf("%s: DOFs = %d, want %d", name, got, n)
		}
	}
}

func TestCompile_ECVTKinematics(t *testing.T) {
	d := presetDrivetrain(t, "ecvt-split")
	ind := d.IndependentDOFs()
	if ind[0].Name != "engine.shaft" || ind[1].Name != "planetary.ring" {
		t.Fatalf("independent = %v", ind)
	}

	x := d.StateToArray(map[string]float64{
		"engine.shaft":   130,
		"planetary.ring": 60,
		"battery.SOC":    0.6,
	})
	speeds := d.AllSpeeds(x)

	rho := 3.0
	sun, carrier, ring := speeds["planetary.sun"], speeds["planetary.carrier"], speeds["planetary.ring"]
	if r := sun - (1+rho)*carrier + rho*ring; math.Abs(r) > 1e-9 {
		t.Errorf("Willis residual = %v", r)
	}
	if carrier != 130 {
		t.Errorf("carrier = %v, want engine speed", carrier)
	}
	if want := 3.5 * sun; math.Abs(speeds["mg1.shaft"]-want) > 1e-9 {
		t.Errorf("mg1 = %v, want %v", speeds["mg1.shaft"], want)
	}
	if speeds["mg2.shaft"] != ring {
		t.Errorf("mg2 = %v, want ring %v", speeds["mg2.shaft"], ring)
	}
	wantWheel := ring / (3.0 * 2.85 * 10.83)
	if math.Abs(speeds["vehicle.wheels"]-wantWheel) > 1e-9 {
		t.Errorf("wheels = %v, want %v", speeds["vehicle.wheels"], wantWheel)
	}

	expr, err := d.Expression("mg1.shaft")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(expr["engine.shaft"]-14) > 1e-9 || math.Abs(expr["planetary.ring"]+10.5) > 1e-9 {
		t.Errorf("mg1 expression = %v", expr)
	}
	if by, ok := d.EliminatedBy("mg1.shaft"); !ok || by != "planetary" {
		t.Errorf("EliminatedBy(mg1.shaft) = %q, %v", by, ok)
	}
}

func TestCompile_InertiaSymmetricPositive(t *testing.T) {
	for _, name := range topology.PresetNames() {
		m := presetDrivetrain(t, name).InertiaMatrix()
		for i := range m {
			if m[i][i] <= 0 {
				t.Errorf("%s: M[%d][%d] = %v", name, i, i, m[i][i])
			}
			for k := range m {
				if math.Abs(m[i][k]-m[k][i]) > 1e-9*math.Abs(m[i][i]) {
					t.Errorf("%s: M not symmetric at %d,%d", name, i, k)
				}
			}
		}
	}
}

func TestCompile_Deterministic(t *testing.T) {
	a := presetDrivetrain(t, "ecvt-detailed")
	b := presetDrivetrain(t, "ecvt-detailed")
	ma, mb := a.InertiaMatrix(), b.InertiaMatrix()
	for i := range ma {
		for k := range ma[i] {
			if ma[i][k] != mb[i][k] {
				t.Fatalf("M[%d][%d] differs: %v vs %v", i, k, ma[i][k], mb[i][k])
			}
		}
	}
}

func TestCompile_ValidationFailure(t *testing.T) {
	topo := topology.New("empty")
	_, err := Compile(topo)
	var te *topology.TopologyError
	if !errors.As(err, &te) {
		t.Fatalf("Compile(empty) = %v, want TopologyError", err)
	}
}

func TestCompile_Cycle(t *testing.T) {
	// A 1:1 gear whose output drives its own input.
	g := component.NewFixedRatio("loop", 1, 1)
	topo := topology.New("cycle")
	if err := topo.AddComponent(g); err != nil {
		t.Fatal(err)
	}
	if err := topo.Connect("loop", "output", "loop", "input"); err != nil {
		t.Fatal(err)
	}
	_, err := compile(topo)
	if !errors.Is(err, dynamo.ErrCyclicConstraintGraph) {
		t.Fatalf("compile = %v, want ErrCyclicConstraintGraph", err)
	}
}

// ghost declares a constraint over a port it does not have.
type ghost struct {
	*component.Gearbox
}

func (g ghost) Constraints() []port.Constraint {
	return []port.Constraint{port.NewRigid("input", "phantom")}
}

func TestCompile_UnknownDOF(t *testing.T) {
	topo := topology.New("ghost")
	if err := topo.AddComponent(ghost{component.NewFixedRatio("ghost", 1, 1)}); err != nil {
		t.Fatal(err)
	}
	_, err := compile(topo)
	if err == nil {
		t.Fatal("expected error")
	}
	// phantom is neither independent nor eliminated: it must surface as a
	// missing DOF rather than be silently ignored.
	if !errors.Is(err, dynamo.ErrDOFNotFound) {
		t.Errorf("compile = %v, want ErrDOFNotFound", err)
	}
}

func TestDynamics_DieselAcceleration(t *testing.T) {
	topo, e, g, fd, v := dieselTopo(t)
	d := mustCompile(t, topo)

	omega := 1200 / component.RadPerSecToRpm
	x := dynamo.State{omega}
	control := dynamo.Control{"T_engine": 8000}

	dx, err := d.Dynamics(0, x, control, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	k := g.CurrentRatio() * fd.CurrentRatio()
	load := v.LoadTorque(omega/k, 0.05)
	want := (8000 - load/k) / expectedDieselInertia(e, g, fd, v)
	if math.Abs(dx[0]-want) > 1e-9*math.Abs(want) {
		t.Errorf("dω/dt = %v, want %v", dx[0], want)
	}
}

func TestDynamics_TorqueClipped(t *testing.T) {
	topo, e, _, _, _ := dieselTopo(t)
	d := mustCompile(t, topo)

	omega := 1200 / component.RadPerSecToRpm
	ev := d.Evaluate(dynamo.State{omega}, dynamo.Control{"T_engine": 1e9}, 0)
	if got, want := ev.Torques["engine.shaft"], e.MaxTorque(1200); math.Abs(got-want) > 1e-6 {
		t.Errorf("engine torque = %v, want %v", got, want)
	}
}

func TestDynamics_DimensionMismatch(t *testing.T) {
	topo, _, _, _, _ := dieselTopo(t)
	d := mustCompile(t, topo)
	_, err := d.Dynamics(0, dynamo.State{1, 2}, nil, 0)
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestDynamics_BusPowerDrainsBattery(t *testing.T) {
	d := presetDrivetrain(t, "electric")
	x := d.StateToArray(map[string]float64{"traction.shaft": 100, "battery.SOC": 0.6})
	control := dynamo.Control{"T_traction": 3000}

	dx, err := d.Dynamics(0, x, control, 0)
	if err != nil {
		t.Fatal(err)
	}
	soc := len(dx) - 1
	if dx[soc] >= 0 {
		t.Errorf("dSOC/dt = %v, want negative while motoring", dx[soc])
	}

	ev := d.Evaluate(x, control, 0)
	if ev.BusPower["battery"] <= 3000*100 {
		t.Errorf("bus power = %v, want above mechanical %v", ev.BusPower["battery"], 3000*100)
	}

	regen, err := d.Dynamics(0, x, dynamo.Control{"T_traction": -3000}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if regen[soc] <= 0 {
		t.Errorf("dSOC/dt = %v, want positive while generating", regen[soc])
	}
}

func TestShiftGear_ConservesMomentum(t *testing.T) {
	topo, _, _, _, _ := dieselTopo(t)
	d := mustCompile(t, topo)

	x := dynamo.State{150}
	v0 := d.Velocity(x)
	before := d.layout().rows

	next, err := d.ShiftGear("gearbox", 1, x)
	if err != nil {
		t.Fatal(err)
	}
	if g, _ := d.Gear("gearbox"); g != 1 {
		t.Fatalf("Gear = %d, want 1", g)
	}

	j, err := d.portInertias()
	if err != nil {
		t.Fatal(err)
	}
	after := d.layout().rows
	p := 0.0
	for i := range j {
		p += j[i] * after[i][0] * before[i][0] * x[0]
	}
	if got := d.InertiaMatrix()[0][0] * next[0]; math.Abs(got-p)/p > 1e-9 {
		t.Errorf("momentum = %v, want %v", got, p)
	}

	if next[0] >= x[0] {
		t.Errorf("engine speed %v -> %v, want a drop on upshift", x[0], next[0])
	}
	if v1 := d.Velocity(next); math.Abs(v1-v0)/v0 > 0.05 {
		t.Errorf("velocity %v -> %v, want nearly unchanged", v0, v1)
	}
	if x[0] != 150 {
		t.Error("input state mutated")
	}
}

func TestShiftGear_KeepsInternalStates(t *testing.T) {
	d := presetDrivetrain(t, "ecvt-split")
	x := d.StateToArray(map[string]float64{"engine.shaft": 130, "planetary.ring": 60, "battery.SOC": 0.55})
	next, err := d.ShiftGear("gearbox", 1, x)
	if err != nil {
		t.Fatal(err)
	}
	if got := next[len(next)-1]; got != 0.55 {
		t.Errorf("SOC = %v, want 0.55", got)
	}
}

func TestShiftGear_Errors(t *testing.T) {
	topo, _, _, _, _ := dieselTopo(t)
	d := mustCompile(t, topo)

	if _, err := d.ShiftGear("final_drive", 1, dynamo.State{1}); err == nil {
		t.Error("shifting a single-ratio gear should fail")
	}
	if _, err := d.ShiftGear("gearbox", 1, dynamo.State{1, 2}); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestApplyGears(t *testing.T) {
	topo, _, _, _, _ := dieselTopo(t)
	d := mustCompile(t, topo)
	x := dynamo.State{150}

	next, changed, err := d.ApplyGears(dynamo.Control{"gear_gearbox": 2.7}, x)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if g, _ := d.Gear("gearbox"); g != 2 {
		t.Errorf("Gear = %d, want 2", g)
	}

	_, changed, err = d.ApplyGears(dynamo.Control{"gear_gearbox": 2}, next)
	if err != nil || changed {
		t.Errorf("repeat ApplyGears changed=%v err=%v", changed, err)
	}

	_, changed, _ = d.ApplyGears(dynamo.Control{"T_engine": 100}, next)
	if changed {
		t.Error("no gear control should not shift")
	}
}

func TestStateArrayRoundTrip(t *testing.T) {
	d := presetDrivetrain(t, "ecvt-split")
	in := map[string]float64{"engine.shaft": 1, "planetary.ring": 2, "battery.SOC": 0.5}
	out := d.ArrayToState(d.StateToArray(in))
	for k, v := range in {
		if out[k] != v {
			t.Errorf("%s = %v, want %v", k, out[k], v)
		}
	}
}

func TestVelocity(t *testing.T) {
	topo, _, g, fd, v := dieselTopo(t)
	d := mustCompile(t, topo)
	x := dynamo.State{160}
	want := 160 / (g.CurrentRatio() * fd.CurrentRatio()) * v.Params.RWheel
	if got := d.Velocity(x); math.Abs(got-want) > 1e-9 {
		t.Errorf("Velocity = %v, want %v", got, want)
	}
	if got := d.VelocityToOutputSpeed(want); math.Abs(got-d.OutputSpeed(x)) > 1e-9 {
		t.Errorf("VelocityToOutputSpeed = %v", got)
	}
}
