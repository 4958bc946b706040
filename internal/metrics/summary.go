package metrics

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/san-kum/drivesim/internal/sim"
)

// DieselDensity is the fuel density used for volume reporting, kg/L.
const DieselDensity = 0.85

// SpeedMilestones are the velocities (m/s) reported by TimeTo.
var SpeedMilestones = []float64{5, 10, 15}

type FuelSummary struct {
	TotalKg     float64 `json:"total_kg"`
	TotalLiters float64 `json:"total_liters"`
	AvgRate     float64 `json:"avg_rate"`
	PerKm       float64 `json:"per_km"`
}

type PerformanceSummary struct {
	MaxVelocity float64 `json:"max_velocity"`
	AvgVelocity float64 `json:"avg_velocity"`
	Distance    float64 `json:"distance"`
	MaxAccel    float64 `json:"max_accel"`
	MaxDecel    float64 `json:"max_decel"`
	// TimeTo lists the milestones reached, in SpeedMilestones order.
	TimeTo []Milestone `json:"time_to,omitempty"`
}

type Milestone struct {
	Velocity float64 `json:"velocity"`
	Time     float64 `json:"time"`
}

// Reached returns the time velocity v was first reached.
func (p PerformanceSummary) Reached(v float64) (float64, bool) {
	for _, m := range p.TimeTo {
		if m.Velocity == v {
			return m.Time, true
		}
	}
	return 0, false
}

type BatterySummary struct {
	SOCInitial float64 `json:"soc_initial"`
	SOCFinal   float64 `json:"soc_final"`
	SOCMin     float64 `json:"soc_min"`
	SOCMax     float64 `json:"soc_max"`
	EnergyKWh  float64 `json:"energy_kwh"`
}

type Summary struct {
	Fuel        *FuelSummary       `json:"fuel,omitempty"`
	Performance PerformanceSummary `json:"performance"`
	Battery     *BatterySummary    `json:"battery,omitempty"`
}

func Summarize(res *sim.Result) Summary {
	s := Summary{Performance: Performance(res)}
	if f, ok := Fuel(res); ok {
		s.Fuel = &f
	}
	if b, ok := Battery(res); ok {
		s.Battery = &b
	}
	return s
}

func Fuel(res *sim.Result) (FuelSummary, bool) {
	total, ok := res.FuelTotal()
	if !ok {
		return FuelSummary{}, false
	}
	f := FuelSummary{
		TotalKg:     total,
		TotalLiters: total / DieselDensity,
	}
	if d := res.Duration(); d > 0 {
		f.AvgRate = total / d
	}
	if dist, ok := res.Integrate("velocity"); ok && dist > 0 {
		f.PerKm = total / (dist / 1000)
	}
	return f, true
}

func Performance(res *sim.Result) PerformanceSummary {
	var p PerformanceSummary
	v := res.Velocity()
	if len(v) == 0 {
		return p
	}
	p.MaxVelocity = slices.Max(v)
	p.AvgVelocity, _ = res.Mean("velocity")
	p.Distance, _ = res.Integrate("velocity")

	for i := 1; i < len(v) && i < len(res.Time); i++ {
		dt := res.Time[i] - res.Time[i-1]
		if dt <= 0 {
			continue
		}
		a := (v[i] - v[i-1]) / dt
		p.MaxAccel = math.Max(p.MaxAccel, a)
		p.MaxDecel = math.Max(p.MaxDecel, -a)
	}

	for _, target := range SpeedMilestones {
		for i, vel := range v {
			if vel >= target {
				p.TimeTo = append(p.TimeTo, Milestone{Velocity: target, Time: res.Time[i]})
				break
			}
		}
	}
	return p
}

func Battery(res *sim.Result) (BatterySummary, bool) {
	soc, ok := res.SOC()
	if !ok || len(soc) == 0 {
		return BatterySummary{}, false
	}
	b := BatterySummary{
		SOCInitial: soc[0],
		SOCFinal:   soc[len(soc)-1],
		SOCMin:     slices.Min(soc),
		SOCMax:     slices.Max(soc),
	}
	for name := range res.Outputs {
		if !strings.HasPrefix(name, "P_") || strings.HasSuffix(name, "_mech") || strings.HasSuffix(name, "_elec") {
			continue
		}
		battery := strings.TrimPrefix(name, "P_")
		if _, isBattery := res.States[battery+".SOC"]; !isBattery {
			continue
		}
		e, _ := res.Integrate(name)
		b.EnergyKWh += e / 3.6e6
	}
	return b, true
}

// Rows flattens a summary into label/value pairs for tables.
func (s Summary) Rows() [][2]string {
	p := s.Performance
	rows := [][2]string{
		{"max velocity", fmt.Sprintf("%.2f km/h", p.MaxVelocity*3.6)},
		{"avg velocity", fmt.Sprintf("%.2f km/h", p.AvgVelocity*3.6)},
		{"distance", fmt.Sprintf("%.1f m", p.Distance)},
		{"max accel", fmt.Sprintf("%.3f m/s²", p.MaxAccel)},
		{"max decel", fmt.Sprintf("%.3f m/s²", p.MaxDecel)},
	}
	for _, m := range p.TimeTo {
		rows = append(rows, [2]string{fmt.Sprintf("time to %.0f m/s", m.Velocity), fmt.Sprintf("%.1f s", m.Time)})
	}
	if f := s.Fuel; f != nil {
		rows = append(rows,
			[2]string{"fuel", fmt.Sprintf("%.2f kg (%.2f L)", f.TotalKg, f.TotalLiters)},
			[2]string{"fuel rate", fmt.Sprintf("%.4f kg/s", f.AvgRate)},
		)
		if f.PerKm > 0 {
			rows = append(rows, [2]string{"fuel per km", fmt.Sprintf("%.2f kg/km", f.PerKm)})
		}
	}
	if b := s.Battery; b != nil {
		rows = append(rows,
			[2]string{"SOC", fmt.Sprintf("%.1f%% -> %.1f%% (min %.1f%%)", b.SOCInitial*100, b.SOCFinal*100, b.SOCMin*100)},
			[2]string{"battery energy", fmt.Sprintf("%.2f kWh", b.EnergyKWh)},
		)
	}
	return rows
}
