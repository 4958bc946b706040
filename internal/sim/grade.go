package sim

import "math"

// GradeProfile returns the road grade (rise over run) at time t.
type GradeProfile interface {
	Grade(t float64) float64
}

type ConstantGrade float64

func (g ConstantGrade) Grade(float64) float64 { return float64(g) }

type GradeFunc func(t float64) float64

func (f GradeFunc) Grade(t float64) float64 { return f(t) }

// HaulCycle alternates a loaded climb with an empty descent.
type HaulCycle struct {
	LoadDuration   float64
	LoadGrade      float64
	LoadSpeed      float64
	ReturnDuration float64
	ReturnGrade    float64
	ReturnSpeed    float64
}

// DefaultHaulCycle climbs +10% at 8 m/s for 300 s, then returns down -8% at
// 12 m/s for 200 s.
func DefaultHaulCycle() HaulCycle {
	return HaulCycle{
		LoadDuration:   300,
		LoadGrade:      0.10,
		LoadSpeed:      8,
		ReturnDuration: 200,
		ReturnGrade:    -0.08,
		ReturnSpeed:    12,
	}
}

func (h HaulCycle) period() float64 { return h.LoadDuration + h.ReturnDuration }

func (h HaulCycle) loading(t float64) bool {
	p := h.period()
	if p <= 0 {
		return true
	}
	return math.Mod(math.Max(t, 0), p) < h.LoadDuration
}

func (h HaulCycle) Grade(t float64) float64 {
	if h.loading(t) {
		return h.LoadGrade
	}
	return h.ReturnGrade
}

// TargetSpeed is the cycle's speed set point at t.
func (h HaulCycle) TargetSpeed(t float64) float64 {
	if h.loading(t) {
		return h.LoadSpeed
	}
	return h.ReturnSpeed
}

// StepClimb is flat until Start and climbs at Rise afterwards.
type StepClimb struct {
	Start float64
	Rise  float64
}

func (s StepClimb) Grade(t float64) float64 {
	if t < s.Start {
		return 0
	}
	return s.Rise
}

// SpeedSchedule is implemented by grade profiles that also prescribe a
// target speed.
type SpeedSchedule interface {
	TargetSpeed(t float64) float64
}
