package sim

import (
	"math"
	"strings"
	"testing"
)

func sampleResult() *Result {
	r := newResult()
	r.Time = []float64{0, 1, 2, 3, 4}
	r.StateNames = []string{"traction.shaft", "battery.SOC"}
	r.States["traction.shaft"] = []float64{0, 10, 20, 30, 40}
	r.States["battery.SOC"] = []float64{0.6, 0.59, 0.58, 0.57, 0.56}
	r.Controls["T_traction"] = []float64{100, 100, 100, 100, 100}
	r.Outputs["velocity"] = []float64{0, 1, 2, 3, 4}
	r.Outputs["fuel_rate"] = []float64{1, 1, 1, 1, 1}
	r.Success = true
	return r
}

func TestResult_Stats(t *testing.T) {
	r := sampleResult()

	if r.NumPoints() != 5 || r.Duration() != 4 {
		t.Errorf("NumPoints/Duration = %d/%v", r.NumPoints(), r.Duration())
	}
	if v, ok := r.Final("velocity"); !ok || v != 4 {
		t.Errorf("Final(velocity) = %v, %v", v, ok)
	}
	if v, ok := r.Max("traction.shaft"); !ok || v != 40 {
		t.Errorf("Max = %v", v)
	}
	if v, ok := r.Min("battery.SOC"); !ok || v != 0.56 {
		t.Errorf("Min = %v", v)
	}
	if v, ok := r.Mean("T_traction"); !ok || v != 100 {
		t.Errorf("Mean = %v", v)
	}
	if _, ok := r.Final("missing"); ok {
		t.Error("Final of unknown series should report false")
	}
	if fuel, ok := r.FuelTotal(); !ok || math.Abs(fuel-4) > 1e-12 {
		t.Errorf("FuelTotal = %v, want 4", fuel)
	}
	if soc, ok := r.SOC(); !ok || soc[0] != 0.6 {
		t.Errorf("SOC = %v, %v", soc, ok)
	}

	s := r.Sample(2)
	if s["velocity"] != 2 || s["T_traction"] != 100 || s["battery.SOC"] != 0.58 {
		t.Errorf("Sample(2) = %v", s)
	}
}

func TestResult_SliceResample(t *testing.T) {
	r := sampleResult()

	s := r.Slice(1, 3)
	if s.NumPoints() != 3 || s.Outputs["velocity"][0] != 1 {
		t.Errorf("Slice = %v", s.Time)
	}
	s.Metadata["x"] = 1
	if _, ok := r.Metadata["x"]; ok {
		t.Error("Slice shares metadata with its parent")
	}

	rs := r.Resample(0.5)
	if rs.NumPoints() != 9 {
		t.Fatalf("Resample points = %d, want 9", rs.NumPoints())
	}
	if got := rs.Outputs["velocity"][3]; math.Abs(got-1.5) > 1e-12 {
		t.Errorf("resampled velocity = %v, want 1.5", got)
	}
	if got := r.Resample(0); got.NumPoints() != 0 {
		t.Errorf("Resample(0) points = %d", got.NumPoints())
	}
}

func TestResult_Summary(t *testing.T) {
	r := sampleResult()
	s := r.Summary()
	for _, want := range []string{"Duration: 4.0 s", "SOC: 60.0%", "Fuel consumed: 4.00 kg", "T_traction"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary missing %q:\n%s", want, s)
		}
	}

	r.Success = false
	r.Message = "ODE integration failed: boom"
	if !strings.Contains(r.Summary(), "Failed: ODE integration failed") {
		t.Error("Summary should report the failure")
	}
}
