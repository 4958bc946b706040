package topology

import (
	"errors"
	"strings"
	"testing"

	"github.com/san-kum/drivesim/internal/component"
)

func contains(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func mustAdd(t *testing.T, topo *Topology, cs ...component.Component) {
	t.Helper()
	for _, c := range cs {
		if err := topo.AddComponent(c); err != nil {
			t.Fatalf("AddComponent(%s): %v", c.Name(), err)
		}
	}
}

func mustConnect(t *testing.T, topo *Topology, fc, fp, tc, tp string) {
	t.Helper()
	if err := topo.Connect(fc, fp, tc, tp); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func simpleDiesel(t *testing.T) *Topology {
	topo := New("diesel")
	mustAdd(t, topo,
		component.NewEngine("engine", component.DefaultEngineParams()),
		component.NewGearbox("gearbox", component.DefaultGearboxParams()),
		component.NewVehicle("vehicle", component.DefaultVehicleParams()),
	)
	mustConnect(t, topo, "engine", "shaft", "gearbox", "input")
	mustConnect(t, topo, "gearbox", "output", "vehicle", "wheels")
	if err := topo.SetOutput("vehicle", "wheels"); err != nil {
		t.Fatal(err)
	}
	return topo
}

func TestValidate_Simple(t *testing.T) {
	topo := simpleDiesel(t)
	if errs := topo.Validate(); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if err := topo.ValidationError(); err != nil {
		t.Errorf("ValidationError = %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) *Topology
		want  string
	}{
		{
			name:  "empty",
			build: func(t *testing.T) *Topology { return New("empty") },
			want:  "Topology has no components",
		},
		{
			name: "no output",
			build: func(t *testing.T) *Topology {
				topo := New("x")
				mustAdd(t, topo,
					component.NewEngine("engine", component.DefaultEngineParams()),
					component.NewVehicle("vehicle", component.DefaultVehicleParams()))
				mustConnect(t, topo, "engine", "shaft", "vehicle", "wheels")
				return topo
			},
			want: "No output port set",
		},
		{
			name: "no actuator",
			build: func(t *testing.T) *Topology {
				topo := New("x")
				mustAdd(t, topo,
					component.NewGearbox("gearbox", component.DefaultGearboxParams()),
					component.NewVehicle("vehicle", component.DefaultVehicleParams()))
				mustConnect(t, topo, "gearbox", "output", "vehicle", "wheels")
				_ = topo.SetOutput("vehicle", "wheels")
				return topo
			},
			want: "at least one actuator",
		},
		{
			name: "gap in drive chain",
			build: func(t *testing.T) *Topology {
				topo := New("x")
				mustAdd(t, topo,
					component.NewEngine("engine", component.DefaultEngineParams()),
					component.NewGearbox("gearbox", component.DefaultGearboxParams()),
					component.NewVehicle("vehicle", component.DefaultVehicleParams()))
				mustConnect(t, topo, "engine", "shaft", "gearbox", "input")
				_ = topo.SetOutput("vehicle", "wheels")
				return topo
			},
			want: "Component 'vehicle' is not connected to anything",
		},
		{
			name: "bus with one member",
			build: func(t *testing.T) *Topology {
				topo := simpleDiesel(t)
				mustAdd(t, topo, component.NewBattery("battery", component.DefaultBatteryParams()))
				_ = topo.CreateElectricalBus("dc")
				_ = topo.ConnectToBus("dc", "battery", "electrical")
				return topo
			},
			want: "Electrical bus 'dc' has fewer than 2 connections",
		},
		{
			name: "component validation",
			build: func(t *testing.T) *Topology {
				topo := New("x")
				p := component.DefaultGearboxParams()
				p.Ratios = []float64{-1}
				mustAdd(t, topo,
					component.NewEngine("engine", component.DefaultEngineParams()),
					component.NewGearbox("gearbox", p))
				mustConnect(t, topo, "engine", "shaft", "gearbox", "input")
				_ = topo.SetOutput("gearbox", "output")
				return topo
			},
			want: "Component 'gearbox': ratio 1 must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.build(t).Validate()
			if !contains(errs, tt.want) {
				t.Errorf("expected %q in %v", tt.want, errs)
			}
		})
	}
}

func TestValidate_AccumulatesAll(t *testing.T) {
	topo := New("x")
	mustAdd(t, topo,
		component.NewGearbox("gearbox", component.DefaultGearboxParams()),
		component.NewVehicle("vehicle", component.DefaultVehicleParams()),
		component.NewBattery("battery", component.DefaultBatteryParams()))
	_ = topo.CreateElectricalBus("dc")

	errs := topo.Validate()
	for _, want := range []string{"No output port set", "at least one actuator", "not connected", "fewer than 2"} {
		if !contains(errs, want) {
			t.Errorf("missing %q in %v", want, errs)
		}
	}
}

func TestMechanicalPath(t *testing.T) {
	topo := New("x")
	mustAdd(t, topo,
		component.NewEngine("engine", component.DefaultEngineParams()),
		component.NewMotor("motor", component.DefaultMotorParams()),
		component.NewGearbox("gearbox", component.DefaultGearboxParams()),
		component.NewFixedRatio("drop", 2, 0.98),
		component.NewVehicle("vehicle", component.DefaultVehicleParams()))
	mustConnect(t, topo, "engine", "shaft", "gearbox", "input")
	mustConnect(t, topo, "gearbox", "output", "vehicle", "wheels")
	mustConnect(t, topo, "motor", "shaft", "drop", "input")
	_ = topo.SetOutput("vehicle", "wheels")

	reached := topo.ConnectedMechanicalComponents()
	for _, name := range []string{"engine", "gearbox", "vehicle"} {
		if !reached[name] {
			t.Errorf("%s should be on the path to the output", name)
		}
	}
	if topo.HasMechanicalPathToOutput("motor") {
		t.Error("motor drives an isolated shaft line")
	}
	errs := topo.Validate()
	if !contains(errs, "Component 'motor': No mechanical path") {
		t.Errorf("expected path error for motor, got %v", errs)
	}
}

func TestBuilderErrors(t *testing.T) {
	topo := simpleDiesel(t)

	err := topo.AddComponent(component.NewEngine("engine", component.DefaultEngineParams()))
	var te *TopologyError
	if !errors.As(err, &te) || te.Component != "engine" {
		t.Errorf("duplicate add: %v", err)
	}

	if err := topo.Connect("ghost", "shaft", "vehicle", "wheels"); err == nil {
		t.Error("expected unknown component error")
	}
	if err := topo.Connect("engine", "crank", "vehicle", "wheels"); err == nil ||
		!strings.Contains(err.Error(), "TopologyError at component 'engine'.crank") {
		t.Errorf("unexpected error %v", err)
	}
	if err := topo.Connect("engine", "shaft", "vehicle", "wheels"); err == nil ||
		!strings.Contains(err.Error(), "Port already connected") {
		t.Errorf("expected duplicate connection error, got %v", err)
	}

	mustAdd(t, topo,
		component.NewMotor("motor", component.DefaultMotorParams()),
		component.NewBattery("battery", component.DefaultBatteryParams()))
	if err := topo.Connect("motor", "electrical", "gearbox", "input"); err == nil ||
		!strings.Contains(err.Error(), "Port type mismatch") {
		t.Errorf("expected type mismatch, got %v", err)
	}
	if err := topo.ConnectToBus("nope", "motor", "electrical"); err == nil {
		t.Error("expected unknown bus error")
	}
	_ = topo.CreateElectricalBus("dc")
	if err := topo.CreateElectricalBus("dc"); err == nil {
		t.Error("expected duplicate bus error")
	}
	if err := topo.ConnectToBus("dc", "motor", "shaft"); err == nil ||
		!strings.Contains(err.Error(), "is not electrical") {
		t.Errorf("expected non-electrical error, got %v", err)
	}
	if err := topo.SetOutput("vehicle", "axle"); err == nil {
		t.Error("expected unknown port error")
	}
}

func TestConnectedPort(t *testing.T) {
	topo := simpleDiesel(t)
	c, p, ok := topo.ConnectedPort("gearbox", "input")
	if !ok || c != "engine" || p != "shaft" {
		t.Errorf("ConnectedPort = %s.%s, %v", c, p, ok)
	}
	if got := len(topo.ConnectionsFor("gearbox")); got != 2 {
		t.Errorf("ConnectionsFor = %d", got)
	}
	if got := topo.ComponentsOfKind(component.KindEngine); len(got) != 1 || got[0] != "engine" {
		t.Errorf("ComponentsOfKind = %v", got)
	}
}
