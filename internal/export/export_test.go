package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/drivesim/internal/rimpull"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
)

func electricResult() *sim.Result {
	return &sim.Result{
		Time:       []float64{0, 1, 2, 3},
		StateNames: []string{"traction.shaft", "battery.SOC"},
		States: map[string][]float64{
			"traction.shaft": {10, 20, 30, 40},
			"battery.SOC":    {0.6, 0.59, 0.58, 0.57},
		},
		Controls: map[string][]float64{"T_traction": {3000, 3000, 2000, 1000}},
		Outputs: map[string][]float64{
			"velocity":        {1, 2, 3, 4},
			"rpm_traction":    {95, 190, 286, 382},
			"P_traction_mech": {3e4, 6e4, 6e4, 4e4},
			"P_battery":       {3.3e4, 6.5e4, 6.5e4, 4.4e4},
			"gearbox.gear":    {0, 0, 1, 1},
			"grade":           {0, 0, 0, 0},
		},
		Success: true,
	}
}

func TestStandardPlots(t *testing.T) {
	plots, err := StandardPlots(electricResult())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"velocity", "torque", "rpm", "soc"} {
		if _, ok := plots[name]; !ok {
			t.Errorf("missing %s plot", name)
		}
	}
}

func TestTimePlot_UnknownSeries(t *testing.T) {
	if _, err := TimePlot(electricResult(), "x", "y", "nope"); err == nil {
		t.Error("expected error for unknown series")
	}
	if _, err := TimePlot(&sim.Result{}, "x", "y", "velocity"); err == nil {
		t.Error("expected error for empty result")
	}
}

func TestWritePlots(t *testing.T) {
	dir := t.TempDir()
	for _, ext := range []string{"png", ".svg"} {
		paths, err := WritePlots(electricResult(), dir, ext)
		if err != nil {
			t.Fatalf("%s: %v", ext, err)
		}
		if len(paths) != 4 {
			t.Errorf("%s: expected 4 files, got %d", ext, len(paths))
		}
		for _, p := range paths {
			if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
				t.Errorf("%s not written", p)
			}
		}
	}
}

func TestSave_UnsupportedFormat(t *testing.T) {
	p, _ := TimePlot(electricResult(), "v", "m/s", "velocity")
	if err := Save(p, filepath.Join(t.TempDir(), "v.bmp")); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestRimpullPlot(t *testing.T) {
	doc, _ := topology.Preset("diesel-793d")
	curves := rimpull.Compute(doc)
	p, err := RimpullPlot("793D", curves)
	if err != nil {
		t.Fatal(err)
	}
	if err := Save(p, filepath.Join(t.TempDir(), "rimpull.svg")); err != nil {
		t.Fatal(err)
	}
	if _, err := RimpullPlot("none", nil); err == nil {
		t.Error("expected error without curves")
	}
}

func TestParseHex(t *testing.T) {
	if _, ok := parseHex("#8b5cf6"); !ok {
		t.Error("expected valid colour")
	}
	if _, ok := parseHex("purple"); ok {
		t.Error("expected invalid colour")
	}
}

func TestReport(t *testing.T) {
	doc, _ := topology.Preset("electric")
	var buf bytes.Buffer
	if err := Report(&buf, "electric", electricResult(), rimpull.Compute(doc)); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	for _, want := range []string{"Velocity", "Torque commands", "State of charge", "Rimpull", "Gear"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestCompareReport(t *testing.T) {
	runs := map[string]*sim.Result{"a": electricResult(), "b": electricResult()}
	metrics := map[string]map[string]float64{
		"a": {"distance_m": 7.5},
		"b": {"distance_m": 8},
	}
	var buf bytes.Buffer
	if err := CompareReport(&buf, runs, metrics); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "distance_m") {
		t.Error("comparison missing metric chart")
	}
}
