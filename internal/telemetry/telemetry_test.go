package telemetry

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"go.einride.tech/can"

	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
)

func compile(t *testing.T, name string) *drivetrain.Drivetrain {
	t.Helper()
	doc, _ := topology.Preset(name)
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

type recorder struct {
	frames []can.Frame
	fail   error
}

func (r *recorder) WriteFrame(_ context.Context, _ float64, f can.Frame) error {
	if r.fail != nil {
		return r.fail
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Close() error { return nil }

func TestFrameRoundTrip(t *testing.T) {
	fd := ActuatorFrame(0, "mg2", "P_mg2_mech")
	sample := map[string]float64{"T_mg2": -2345.6, "rpm_mg2": 3100.5, "P_mg2_mech": -150000}

	f := fd.Encode(sample)
	if f.ID != ActuatorFrameID || f.Length != 8 {
		t.Fatalf("unexpected frame header %v", f)
	}
	got, err := fd.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		key string
		tol float64
	}{
		{"T_mg2", 0.05},
		{"rpm_mg2", 0.25},
		{"P_mg2_mech", 0.5},
	}
	for _, tt := range tests {
		if math.Abs(got[tt.key]-sample[tt.key]) > tt.tol {
			t.Errorf("%s: got %v, want %v", tt.key, got[tt.key], sample[tt.key])
		}
	}
}

func TestFrameSaturates(t *testing.T) {
	fd := VehicleFrame("gearbox")
	got, err := fd.Decode(fd.Encode(map[string]float64{"velocity": 1e6, "grade": -10, "gear_gearbox": 3}))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got["velocity"]-655.35) > 1e-9 {
		t.Errorf("velocity = %v, want saturation at 655.35", got["velocity"])
	}
	if math.Abs(got["grade"]+3.2768) > 1e-9 {
		t.Errorf("grade = %v, want saturation at -3.2768", got["grade"])
	}
	if got["gear_gearbox"] != 3 {
		t.Errorf("gear = %v", got["gear_gearbox"])
	}
}

func TestNewMap_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame FrameDef
	}{
		{"zero length", FrameDef{ID: 1, Name: "a"}},
		{"too long", FrameDef{ID: 1, Name: "a", Length: 9}},
		{"signal overflow", FrameDef{ID: 1, Name: "a", Length: 2, Signals: []Signal{{Name: "x", Start: 8, Length: 16, Factor: 1}}}},
		{"zero factor", FrameDef{ID: 1, Name: "a", Length: 2, Signals: []Signal{{Name: "x", Length: 8}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMap(tt.frame); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := NewMap(VehicleFrame(""), VehicleFrame("")); err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestForDrivetrain(t *testing.T) {
	m, err := ForDrivetrain(compile(t, "ecvt-split"))
	if err != nil {
		t.Fatal(err)
	}
	frames := m.Frames()
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(frames))
	}
	if frames[0].ID != VehicleFrameID {
		t.Errorf("first frame = 0x%X", frames[0].ID)
	}
	if _, err := m.FrameByName("Battery_battery"); err != nil {
		t.Error(err)
	}
	if _, err := m.FrameByID(0x7FF); err == nil {
		t.Error("expected unknown id error")
	}
}

func TestLogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLogWriter(&buf, "")
	fd := BatteryFrame(0, "battery")
	f := fd.Encode(map[string]float64{"battery.SOC": 0.6123, "P_battery": 42000})
	if err := w.WriteFrame(context.Background(), 1.5, f); err != nil {
		t.Fatal(err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "(1.500000) vcan0 300#") {
		t.Errorf("unexpected log line %q", line)
	}
	ts, back, err := ParseLogLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if ts != 1.5 || back != f {
		t.Errorf("parsed %v %v, want %v", ts, back, f)
	}
}

func TestDump(t *testing.T) {
	res := &sim.Result{
		Time:     []float64{0, 0.1},
		States:   map[string][]float64{"battery.SOC": {0.6, 0.6}},
		Controls: map[string][]float64{"T_traction": {100, 200}},
		Outputs:  map[string][]float64{"velocity": {1, 2}},
	}
	m, _ := ForDrivetrain(compile(t, "electric"))
	rec := &recorder{}
	n, err := Dump(context.Background(), res, m, rec)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2*len(m.Frames()) || len(rec.frames) != n {
		t.Errorf("wrote %d frames, recorded %d", n, len(rec.frames))
	}
	vals, _ := m.Decode(rec.frames[len(m.Frames())])
	if vals["velocity"] != 2 {
		t.Errorf("velocity = %v", vals["velocity"])
	}
}

func TestStreamer(t *testing.T) {
	d := compile(t, "electric")
	m, _ := ForDrivetrain(d)
	rec := &recorder{}
	s := NewStreamer(context.Background(), d, m, rec, sim.ConstantGrade(0.05), nil)

	x := d.StateToArray(map[string]float64{"traction.shaft": 100, "battery.SOC": 0.6})
	s.OnSample(0, x, dynamo.Control{"T_traction": 500})
	if s.Frames() != len(m.Frames()) || s.Err() != nil {
		t.Fatalf("frames = %d, err = %v", s.Frames(), s.Err())
	}
	vals, _ := m.Decode(rec.frames[0])
	if math.Abs(vals["grade"]-0.05) > 1e-4 {
		t.Errorf("grade = %v", vals["grade"])
	}

	rec.fail = errors.New("bus off")
	s.OnSample(0.1, x, dynamo.Control{"T_traction": 500})
	s.OnSample(0.2, x, dynamo.Control{"T_traction": 500})
	if !errors.Is(s.Err(), rec.fail) {
		t.Errorf("expected bus off error, got %v", s.Err())
	}
}
