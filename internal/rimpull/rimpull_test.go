package rimpull

import (
	"math"
	"strings"
	"testing"

	"github.com/san-kum/drivesim/internal/topology"
)

func preset(t *testing.T, name string) *topology.GraphDoc {
	t.Helper()
	doc, ok := topology.Preset(name)
	if !ok {
		t.Fatalf("preset %s missing", name)
	}
	return doc
}

// lockedSun drops every edge touching the planetary sun.
func lockedSun(t *testing.T) *topology.GraphDoc {
	doc := *preset(t, "ecvt-split")
	var edges []topology.Edge
	for _, e := range doc.Edges {
		if e.TargetHandle == "sun" || e.SourceHandle == "sun" {
			continue
		}
		edges = append(edges, e)
	}
	doc.Edges = edges
	return &doc
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		doc  *topology.GraphDoc
		want Archetype
	}{
		{"diesel", preset(t, "diesel-793d"), Diesel},
		{"diesel 789", preset(t, "diesel-789d"), Diesel},
		{"split", preset(t, "ecvt-split"), ECVTSplit},
		{"detailed", preset(t, "ecvt-detailed"), ECVTSplit},
		{"electric", preset(t, "electric"), Electric},
		{"locked sun", lockedSun(t), ECVTLockedSun},
		{"empty", &topology.GraphDoc{}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.doc); got != tt.want {
				t.Errorf("Detect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompute_Diesel(t *testing.T) {
	doc := preset(t, "diesel-793d")
	curves := Compute(doc)
	if len(curves) != 7+4 {
		t.Fatalf("got %d curves, want 11", len(curves))
	}

	first := curves[0]
	if first.Name != "Gear 1 (4.59:1)" || first.Color != "#ef4444" {
		t.Errorf("first curve = %q %s", first.Name, first.Color)
	}
	if len(first.Points) != 51 {
		t.Errorf("points = %d, want 51", len(first.Points))
	}

	engine := doc.NodesOfType("engine")[0]
	tPeak := engine.Param("tPeak", 11_220)
	want := tPeak * 4.59 * 16 * 0.92 / 1.78
	if got := first.Points[0].Force; math.Abs(got-want) > 1e-6 {
		t.Errorf("launch force = %v, want %v", got, want)
	}
	vIdle := 700 * math.Pi / 30 / (4.59 * 16) * 1.78
	if got := first.Points[0].Velocity; math.Abs(got-vIdle) > 1e-9 {
		t.Errorf("first velocity = %v, want %v", got, vIdle)
	}

	for i := 1; i < 7; i++ {
		if curves[i].Max() >= curves[i-1].Max() {
			t.Errorf("gear %d peak %v not below gear %d peak %v", i+1, curves[i].Max(), i, curves[i-1].Max())
		}
		if curves[i].Points[0].Gear != i+1 {
			t.Errorf("gear tag = %d, want %d", curves[i].Points[0].Gear, i+1)
		}
	}
}

func TestCompute_ECVT(t *testing.T) {
	curves := Compute(preset(t, "ecvt-split"))
	if len(curves) != 2+4 {
		t.Fatalf("got %d curves, want 6", len(curves))
	}
	if curves[0].Name != "Low Gear (3.00:1)" || curves[1].Name != "High Gear (1.00:1)" {
		t.Errorf("names = %q, %q", curves[0].Name, curves[1].Name)
	}

	for _, c := range curves[:2] {
		if len(c.Points) != 200 {
			t.Errorf("%s: %d points, want 200", c.Name, len(c.Points))
		}
		for _, p := range c.Points {
			if p.Force < 0 {
				t.Errorf("%s: negative force at %v", c.Name, p.Velocity)
			}
		}
		if last := c.Points[len(c.Points)-1]; math.Abs(last.Velocity-60/3.6) > 1e-9 {
			t.Errorf("%s ends at %v m/s", c.Name, last.Velocity)
		}
	}

	// MG2 on the ring reaches 4000 rpm well below 60 km/h in low gear.
	low := curves[0]
	if low.Points[len(low.Points)-1].Force != 0 {
		t.Error("low gear should drop to zero past the MG2 speed limit")
	}
	if low.Points[0].Force <= curves[1].Points[0].Force {
		t.Error("low gear should out-pull high gear at launch")
	}
}

func TestCompute_LockedSun(t *testing.T) {
	split := Compute(preset(t, "ecvt-split"))
	locked := Compute(lockedSun(t))

	if !strings.Contains(locked[0].Name, "Locked Sun") {
		t.Errorf("name = %q", locked[0].Name)
	}
	for i, p := range locked[0].Points {
		if p.Force+1e-9 < split[0].Points[i].Force {
			t.Errorf("v=%v: locked sun %v below split %v", p.Velocity, p.Force, split[0].Points[i].Force)
		}
	}
}

func TestCompute_Electric(t *testing.T) {
	curves := Compute(preset(t, "electric"))
	if len(curves) != 2+4 {
		t.Fatalf("got %d curves", len(curves))
	}
	want := 5400 * 3 * 16 * 0.92 / 1.78
	if got := curves[0].Points[0].Force; math.Abs(got-want) > 1e-6 {
		t.Errorf("launch force = %v, want %v", got, want)
	}
	if len(curves[0].Points) != 50 {
		t.Errorf("points = %d", len(curves[0].Points))
	}
}

func TestCompute_NoVehicle(t *testing.T) {
	doc := *preset(t, "electric")
	var nodes []topology.Node
	for _, n := range doc.Nodes {
		if n.ComponentType() != "vehicle" {
			nodes = append(nodes, n)
		}
	}
	doc.Nodes = nodes
	if curves := Compute(&doc); curves != nil {
		t.Errorf("got %d curves without a vehicle", len(curves))
	}
}

func TestResistance(t *testing.T) {
	curves := Resistance(100_000, 0.02)
	if len(curves) != 4 {
		t.Fatalf("got %d curves", len(curves))
	}
	names := []string{"Rolling Resistance (0% grade)", "Resistance (5% grade)", "Resistance (10% grade)", "Resistance (15% grade)"}
	for i, c := range curves {
		if c.Name != names[i] {
			t.Errorf("name %d = %q, want %q", i, c.Name, names[i])
		}
		if len(c.Points) != 31 {
			t.Errorf("%s: %d points", c.Name, len(c.Points))
		}
	}

	want := 100_000*9.81*0.02 + 100_000*9.81*math.Sin(math.Atan(0.10))
	if got := curves[2].At(5); math.Abs(got-want) > 1e-6 {
		t.Errorf("10%% resistance = %v, want %v", got, want)
	}
}

func TestCurveAt(t *testing.T) {
	c := Curve{Points: []Point{{Velocity: 0, Force: 0}, {Velocity: 2, Force: 10}}}
	if got := c.At(1); got != 5 {
		t.Errorf("At(1) = %v", got)
	}
	if got := c.At(3); got != 0 {
		t.Errorf("At(3) = %v, want 0 outside", got)
	}
	if c.Max() != 10 {
		t.Errorf("Max = %v", c.Max())
	}
}

func TestTransmission(t *testing.T) {
	doc := preset(t, "ecvt-split")
	if got := transmission(doc); got == nil || got.ID != "gearbox" {
		t.Fatalf("transmission = %v, want gearbox", got)
	}

	single := &topology.GraphDoc{Nodes: []topology.Node{
		{ID: "reduction", Type: "gearbox", Params: map[string]any{"ratios": []any{3.5}}},
	}}
	if got := transmission(single); got == nil || got.ID != "reduction" {
		t.Fatalf("transmission = %v, want reduction", got)
	}
	if got := transmission(&topology.GraphDoc{}); got != nil {
		t.Fatalf("transmission = %v, want nil", got)
	}
}
