package port

import (
	"math"
	"testing"
)

func TestCanConnect(t *testing.T) {
	tests := []struct {
		name string
		a, b Port
		want bool
	}{
		{"output to input", NewMechanical("a", Output), NewMechanical("b", Input), true},
		{"input to output", NewMechanical("a", Input), NewMechanical("b", Output), true},
		{"output to output", NewMechanical("a", Output), NewMechanical("b", Output), false},
		{"input to input", NewMechanical("a", Input), NewMechanical("b", Input), false},
		{"bidirectional", NewMechanical("a", Bidirectional), NewMechanical("b", Input), true},
		{"type mismatch", NewMechanical("a", Bidirectional), NewElectrical("b"), false},
		{"electrical pair", NewElectrical("a"), NewElectrical("b"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanConnect(tt.a, tt.b); got != tt.want {
				t.Errorf("CanConnect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGearRatio(t *testing.T) {
	g := NewGearRatio("input", "output", 4, 0.9)

	if got := g.TransformSpeed(40); got != 10 {
		t.Errorf("TransformSpeed(40) = %v, want 10", got)
	}
	if got := g.TransformTorque(100); math.Abs(got-27.7777777778) > 1e-6 {
		t.Errorf("TransformTorque(100) = %v, want 27.78", got)
	}
	if got := g.ReflectedInertia(32); got != 2 {
		t.Errorf("ReflectedInertia(32) = %v, want 2", got)
	}
	if g.DependentPort() != "output" {
		t.Errorf("dependent port = %s", g.DependentPort())
	}

	rel := g.SpeedRelation()
	speeds := map[string]float64{"input": 40, "output": 10}
	if r := rel.Residual(speeds); r != 0 {
		t.Errorf("residual = %v, want 0", r)
	}
}

func TestWillis(t *testing.T) {
	w := NewWillis("sun", "carrier", "ring", 3)

	sun := w.SunSpeed(100, 50)
	if sun != 250 {
		t.Errorf("SunSpeed(100, 50) = %v, want 250", sun)
	}
	if c := w.CarrierSpeed(250, 50); math.Abs(c-100) > 1e-9 {
		t.Errorf("CarrierSpeed(250, 50) = %v, want 100", c)
	}
	if r := w.RingSpeed(100, 250); math.Abs(r-50) > 1e-9 {
		t.Errorf("RingSpeed(100, 250) = %v, want 50", r)
	}

	speeds := map[string]float64{"sun": sun, "carrier": 100, "ring": 50}
	if r := w.SpeedRelation().Residual(speeds); math.Abs(r) > 1e-12 {
		t.Errorf("residual = %v", r)
	}

	s, c, r := w.TorqueRatios()
	if s != 1 || c != -4 || r != 3 {
		t.Errorf("TorqueRatios = %v:%v:%v", s, c, r)
	}

	cc, cr, rr := w.InertiaCoefficients(0.5)
	if cc != 8 || cr != -6 || rr != 4.5 {
		t.Errorf("InertiaCoefficients = %v, %v, %v", cc, cr, rr)
	}
}

func TestRigid(t *testing.T) {
	r := NewRigid("a", "b")
	rel := r.SpeedRelation()
	if rel.Coeff("a") != 1 || rel.Coeff("b") != -1 || rel.Coeff("c") != 0 {
		t.Errorf("unexpected relation %v", rel)
	}
	if r.DependentPort() != "b" || r.Kind() != KindRigid {
		t.Error("rigid constraint should eliminate b")
	}
}
