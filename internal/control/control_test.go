package control

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/topology"
)

func preset(t *testing.T, name string) *drivetrain.Drivetrain {
	t.Helper()
	doc, ok := topology.Preset(name)
	if !ok {
		t.Fatalf("preset %s missing", name)
	}
	topo, err := doc.Build()
	if err != nil {
		t.Fatal(err)
	}
	d, err := drivetrain.Compile(topo)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// dieselState places the 793D at velocity v in its compiled first gear.
func dieselState(v float64) map[string]float64 {
	return map[string]float64{"engine.shaft": v / 1.78 * 4.59 * 16}
}

func TestPID(t *testing.T) {
	p := NewPID(2, 1, 0)
	if u := p.Update(1, 0); u != 2 {
		t.Errorf("first update = %v, want 2", u)
	}
	if u := p.Update(1, 1); math.Abs(u-3) > 1e-12 {
		t.Errorf("second update = %v, want 3", u)
	}
	if u := p.Update(1, 1); math.Abs(u-3) > 1e-12 {
		t.Errorf("same-time update integrated: %v", u)
	}

	p.SetParam("Kp", 5)
	if p.GetParams()["Kp"] != 5 {
		t.Error("SetParam did not update Kp")
	}

	p.Reset()
	if p.Integral() != 0 {
		t.Error("Reset should clear integral")
	}
}

func TestPID_IntegralLimit(t *testing.T) {
	p := NewPID(0, 1, 0)
	p.IntegralLimit = 100
	for i := 0; i < 30; i++ {
		p.Update(10, float64(i))
	}
	if p.Integral() != 100 {
		t.Errorf("integral = %v, want clamped to 100", p.Integral())
	}
}

func TestNewShiftSpeeds(t *testing.T) {
	ratios := []float64{4.59, 2.95, 1.94}
	s := NewShiftSpeeds(ratios, 1500, 1000, 1.78, 16)

	if len(s.Upshift) != 2 || len(s.Downshift) != 2 {
		t.Fatalf("got %d/%d thresholds, want 2/2", len(s.Upshift), len(s.Downshift))
	}
	want := 1500 * 2 * math.Pi / 60 * 1.78 / (4.59 * 16)
	if math.Abs(s.Upshift[0]-want) > 1e-9 {
		t.Errorf("upshift[0] = %v, want %v", s.Upshift[0], want)
	}
	want = 1000 * 2 * math.Pi / 60 * 1.78 / (2.95 * 16)
	if math.Abs(s.Downshift[0]-want) > 1e-9 {
		t.Errorf("downshift[0] = %v, want %v", s.Downshift[0], want)
	}
}

func TestConventionalDiesel_Shifting(t *testing.T) {
	d := preset(t, "diesel-793d")

	tests := []struct {
		name  string
		v     float64
		grade float64
		want  float64
	}{
		{"holds inside hysteresis", 4.5, 0, 0},
		{"upshifts above hysteresis", 5, 0, 1},
		{"climb lowers shift point", 3, 0.1, 1},
		{"flat keeps low speed in first", 3, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConventionalDiesel(d, "engine", "gearbox")
			if err != nil {
				t.Fatal(err)
			}
			u := c.Compute(dieselState(tt.v), tt.grade)
			if u["gear_gearbox"] != tt.want {
				t.Errorf("gear = %v, want %v", u["gear_gearbox"], tt.want)
			}
		})
	}
}

func TestConventionalDiesel_Downshift(t *testing.T) {
	d := preset(t, "diesel-793d")
	c, err := NewConventionalDiesel(d, "engine", "gearbox")
	if err != nil {
		t.Fatal(err)
	}

	c.Compute(dieselState(5), 0)
	if c.Gear() != 1 {
		t.Fatalf("gear = %d, want 1", c.Gear())
	}
	c.Compute(dieselState(2), 0)
	if c.Gear() != 0 {
		t.Errorf("gear = %d, want downshift to 0", c.Gear())
	}

	c.Compute(dieselState(5), 0)
	c.Reset()
	if c.Gear() != 0 {
		t.Errorf("Reset gear = %d, want 0", c.Gear())
	}
}

func TestConventionalDiesel_NextGearSameCall(t *testing.T) {
	d := preset(t, "diesel-793d")
	c, err := NewConventionalDiesel(d, "engine", "gearbox")
	if err != nil {
		t.Fatal(err)
	}
	c.Hysteresis = 0
	n := c.gearbox.NumGears()
	c.shifts = ShiftSpeeds{Upshift: make([]float64, n-1), Downshift: make([]float64, n-1)}
	for i := range c.shifts.Upshift {
		c.shifts.Upshift[i] = 2
		c.shifts.Downshift[i] = 5
	}

	c.gear = 0
	if got := c.nextGear(3, 0); got != 0 {
		t.Errorf("overlapping bands: gear = %d, want upshift undone in the same call", got)
	}
	c.gear = 1
	if got := c.nextGear(6, 0); got != 2 {
		t.Errorf("gear = %d, want 2", got)
	}
}

func TestConventionalDiesel_Torque(t *testing.T) {
	d := preset(t, "diesel-793d")
	c, err := NewConventionalDiesel(d, "engine", "gearbox")
	if err != nil {
		t.Fatal(err)
	}
	comp, _ := d.Component("engine")
	eng := comp.(*component.Engine)

	state := dieselState(2)
	rpm := state["engine.shaft"] * component.RadPerSecToRpm
	u := c.Compute(state, 0)
	if u["T_engine"] <= 0 || u["T_engine"] > eng.MaxTorque(rpm)+1e-9 {
		t.Errorf("T_engine = %v, want in (0, %v]", u["T_engine"], eng.MaxTorque(rpm))
	}

	c.Target = 1
	if u := c.Compute(state, 0); u["T_engine"] != 0 {
		t.Errorf("T_engine above target = %v, want 0", u["T_engine"])
	}
}

func TestConventionalDiesel_FixedRatio(t *testing.T) {
	d := preset(t, "diesel-793d")
	c, err := NewConventionalDiesel(d, "engine", "gearbox")
	if err != nil {
		t.Fatal(err)
	}
	if c.fixedRatio != 16 {
		t.Errorf("fixedRatio = %v, want 16", c.fixedRatio)
	}
	if c.rWheel != 1.78 {
		t.Errorf("rWheel = %v, want 1.78", c.rWheel)
	}
}

func TestNewConventionalDiesel_Errors(t *testing.T) {
	tests := []struct {
		preset, engine, gearbox string
	}{
		{"diesel-793d", "missing", "gearbox"},
		{"diesel-793d", "engine", "missing"},
		{"diesel-793d", "gearbox", "gearbox"},
		{"electric", "engine", "gearbox"},
	}
	for _, tt := range tests {
		if _, err := NewConventionalDiesel(preset(t, tt.preset), tt.engine, tt.gearbox); err == nil {
			t.Errorf("%s(%s, %s): expected error", tt.preset, tt.engine, tt.gearbox)
		}
	}
}

func TestSpeedController_Allocation(t *testing.T) {
	d := preset(t, "ecvt-split")
	c, err := NewSpeedController(d, DefaultSpeedKp, DefaultSpeedKi, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := c.Actuators(); len(got) != 3 || got[0] != "engine" {
		t.Fatalf("Actuators = %v, want engine first of 3", got)
	}

	c.Target = 1
	state := map[string]float64{"engine.shaft": 60, "planetary.ring": 3 / 1.78 * 3 * 2.85 * 10.83, "battery.SOC": 0.6}
	u := c.ComputeAt(0, state, 0)

	if u["T_engine"] != 0 {
		t.Errorf("T_engine = %v, engines never receive negative torque", u["T_engine"])
	}
	if u["T_mg2"] >= 0 {
		t.Errorf("T_mg2 = %v, want braking torque above target", u["T_mg2"])
	}

	speeds := d.AllSpeeds(d.StateToArray(state))
	for _, name := range c.Actuators() {
		comp, _ := d.Component(name)
		a := comp.(component.Actuator)
		rpm := math.Abs(speeds[name+".shaft"]) * component.RadPerSecToRpm
		if math.Abs(u["T_"+name]) > a.MaxTorque(rpm)+1e-9 {
			t.Errorf("|T_%s| = %v exceeds %v", name, u["T_"+name], a.MaxTorque(rpm))
		}
	}
}

func TestSpeedController_ExplicitAllocation(t *testing.T) {
	d := preset(t, "ecvt-split")
	alloc := &Allocation{Actuators: []string{"mg2", "mg1"}, Fractions: []float64{0.7, 0.3}}
	c, err := NewAllocatedSpeedController(d, 100, 0, nil, alloc)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Actuators(); len(got) != 2 || got[0] != "mg2" || got[1] != "mg1" {
		t.Fatalf("Actuators = %v, want [mg2 mg1]", got)
	}

	state := map[string]float64{"engine.shaft": 0, "planetary.ring": 0, "battery.SOC": 0.6}
	u := c.ComputeAt(0, state, 0)
	if math.Abs(u["T_mg2"]-700) > 1e-9 || math.Abs(u["T_mg1"]-300) > 1e-9 {
		t.Errorf("T_mg2, T_mg1 = %v, %v, want 700, 300", u["T_mg2"], u["T_mg1"])
	}
	if _, ok := u["T_engine"]; ok {
		t.Error("unallocated engine received a torque command")
	}
}

func TestSpeedController_AllocationEngineFlag(t *testing.T) {
	d := preset(t, "ecvt-split")
	alloc := &Allocation{Actuators: []string{"mg2"}, Fractions: []float64{1}, IsEngine: []bool{true}}
	c, err := NewAllocatedSpeedController(d, 100, 0, nil, alloc)
	if err != nil {
		t.Fatal(err)
	}
	c.Target = 0
	state := map[string]float64{"engine.shaft": 0, "planetary.ring": 10, "battery.SOC": 0.6}
	if u := c.ComputeAt(0, state, 0); u["T_mg2"] != 0 {
		t.Errorf("T_mg2 = %v, want 0 when flagged as engine", u["T_mg2"])
	}
}

func TestSpeedController_AllocationErrors(t *testing.T) {
	d := preset(t, "ecvt-split")
	tests := []struct {
		name  string
		alloc Allocation
	}{
		{"empty", Allocation{}},
		{"length mismatch", Allocation{Actuators: []string{"mg1", "mg2"}, Fractions: []float64{1}}},
		{"flag mismatch", Allocation{Actuators: []string{"mg1"}, Fractions: []float64{1}, IsEngine: []bool{true, false}}},
		{"negative", Allocation{Actuators: []string{"mg1"}, Fractions: []float64{-0.5}}},
		{"nan", Allocation{Actuators: []string{"mg1"}, Fractions: []float64{math.NaN()}}},
		{"duplicate", Allocation{Actuators: []string{"mg1", "mg1"}, Fractions: []float64{0.5, 0.5}}},
		{"unknown", Allocation{Actuators: []string{"mg9"}, Fractions: []float64{1}}},
		{"not actuator", Allocation{Actuators: []string{"gearbox"}, Fractions: []float64{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := tt.alloc
			if _, err := NewAllocatedSpeedController(d, 1, 0, nil, &alloc); !errors.Is(err, ErrInvalidAllocation) {
				t.Errorf("err = %v, want ErrInvalidAllocation", err)
			}
		})
	}
}

func TestNew_SpeedAllocation(t *testing.T) {
	d := preset(t, "ecvt-split")
	c, err := New(d, Spec{Kind: "speed", Allocation: &Allocation{Actuators: []string{"mg2"}, Fractions: []float64{1}}})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.(*SpeedController).Actuators(); len(got) != 1 || got[0] != "mg2" {
		t.Errorf("Actuators = %v, want [mg2]", got)
	}
}

func TestSpeedController_GearBands(t *testing.T) {
	d := preset(t, "electric")
	c, err := NewSpeedController(d, DefaultSpeedKp, DefaultSpeedKi, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		v, grade float64
		want     int
	}{
		{3, 0, 0},
		{8, 0, 1},
		{20, 0, 1},
		{8, 0.06, 0},
		{8, 0.2, 0},
	}
	for _, tt := range tests {
		if got := c.selectGear(tt.v, tt.grade); got != tt.want {
			t.Errorf("selectGear(%v, %v) = %d, want %d", tt.v, tt.grade, got, tt.want)
		}
	}
}

func TestSpeedController_UntimedClock(t *testing.T) {
	d := preset(t, "electric")
	c, err := NewSpeedController(d, 0, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	state := map[string]float64{"traction.shaft": 0, "battery.SOC": 0.6}

	c.Compute(state, 0)
	c.Compute(state, 0)
	if math.Abs(c.pid.Integral()-1) > 1e-9 {
		t.Errorf("integral = %v, want 10 m/s error over 0.1 s", c.pid.Integral())
	}

	c.Reset()
	if c.pid.Integral() != 0 || c.clock != 0 {
		t.Error("Reset should clear integral and clock")
	}
}

func TestSpeedController_Schedule(t *testing.T) {
	d := preset(t, "electric")
	c, err := NewSpeedController(d, 1, 0, func(t float64) float64 { return t })
	if err != nil {
		t.Fatal(err)
	}
	if c.target(7) != 7 {
		t.Errorf("target = %v, want schedule value", c.target(7))
	}
	c.SetParam("Target", 3)
	if c.GetParams()["Target"] != 3 {
		t.Error("SetParam(Target) ignored")
	}
}

func TestShiftSchedule_Validate(t *testing.T) {
	if _, err := NewShiftSchedule("gb", 3, []float64{5}, []float64{3, 6}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("err = %v, want ErrInvalidSchedule", err)
	}
	if _, err := NewShiftSchedule("gb", 0, nil, nil); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("err = %v, want ErrInvalidSchedule", err)
	}
}

func TestShiftSchedule_TargetGear(t *testing.T) {
	s, err := NewShiftSchedule("gb", 3, []float64{5, 10}, []float64{3, 8})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		current int
		speed   float64
		want    int
	}{
		{0, 4, 0},
		{0, 6, 1},
		{1, 11, 2},
		{2, 12, 2},
		{1, 2, 0},
		{2, 7, 1},
	}
	for _, tt := range tests {
		if got := s.TargetGear(tt.current, tt.speed, 0); got != tt.want {
			t.Errorf("TargetGear(%d, %v) = %d, want %d", tt.current, tt.speed, got, tt.want)
		}
	}

	s.Hold.Enabled = true
	if got := s.TargetGear(0, 6, 0.9); got != 0 {
		t.Errorf("held upshift = %d, want 0", got)
	}

	s.MaxGear = 1
	if got := s.TargetGear(1, 11, 0); got != 1 {
		t.Errorf("MaxGear clamp = %d, want 1", got)
	}
}

func TestShiftSchedule_Units(t *testing.T) {
	s := &ShiftSchedule{Unit: UnitKPH}
	if got := s.ToMPS(36, 1); math.Abs(got-10) > 1e-12 {
		t.Errorf("36 km/h = %v m/s", got)
	}
	s.Unit = UnitMPH
	if got := s.FromMPS(s.ToMPS(20, 1), 1); math.Abs(got-20) > 1e-12 {
		t.Errorf("mph round trip = %v", got)
	}
	s.Unit = UnitRadS
	if got := s.ToMPS(5, 2); got != 10 {
		t.Errorf("5 rad/s on r=2 = %v m/s", got)
	}
}

func TestShiftController_Lockout(t *testing.T) {
	s, _ := NewShiftSchedule("gb", 3, []float64{5, 10}, []float64{3, 8})
	c := NewShiftController(s)

	if g := c.Update(0, 12, 0); g != 1 {
		t.Fatalf("gear = %d, want 1", g)
	}
	if g := c.Update(0.2, 12, 0); g != 1 {
		t.Errorf("gear inside lockout = %d, want 1", g)
	}
	if g := c.Update(0.6, 12, 0); g != 2 {
		t.Errorf("gear after lockout = %d, want 2", g)
	}

	c.ForceGear(0, 1)
	if g := c.Update(1.1, 12, 0); g != 0 {
		t.Errorf("forced gear not held: %d", g)
	}

	c.SetGear(9)
	if c.Gear() != 2 {
		t.Errorf("SetGear clamp = %d, want 2", c.Gear())
	}

	c.Reset()
	if c.Gear() != 0 {
		t.Errorf("Reset gear = %d", c.Gear())
	}
}

func TestMultiGearboxController(t *testing.T) {
	m := NewMultiGearboxController(2, 16)
	a, _ := NewShiftSchedule("a", 2, []float64{5}, []float64{3})
	b, _ := NewShiftSchedule("b", 2, []float64{36}, []float64{20})
	b.Unit = UnitKPH
	m.Add(a)
	m.Add(b)

	u := m.UpdateAll(0, 6, 0)
	if u["gear_a"] != 1 {
		t.Errorf("gear_a = %v, want 1", u["gear_a"])
	}
	if u["gear_b"] != 0 {
		t.Errorf("gear_b = %v, want 0 at 21.6 km/h", u["gear_b"])
	}
	if m.AllGears()["a"] != 1 {
		t.Error("AllGears out of sync")
	}
	if m.VehicleSpeed(m.WheelSpeed(6)) != 6 {
		t.Error("wheel speed round trip")
	}

	m.ResetAll()
	if m.AllGears()["a"] != 0 {
		t.Error("ResetAll did not reset")
	}
}

func TestNew(t *testing.T) {
	d := preset(t, "diesel-793d")

	c, err := New(d, Spec{Kind: "diesel", Kp: 1000, Target: 8})
	if err != nil {
		t.Fatal(err)
	}
	if p := c.GetParams(); p["Kp"] != 1000 || p["Target"] != 8 {
		t.Errorf("params = %v", p)
	}

	c, err = New(d, Spec{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*SpeedController); !ok {
		t.Errorf("default kind = %T, want *SpeedController", c)
	}

	if _, err := New(d, Spec{Kind: "lqr"}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if len(Kinds()) != 2 {
		t.Errorf("Kinds = %v", Kinds())
	}
}
