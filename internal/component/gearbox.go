package component

import (
	"fmt"
	"math"

	"github.com/san-kum/drivesim/internal/port"
)

type GearboxEfficiencyParams struct {
	EtaBase float64 `yaml:"etaBase" json:"etaBase"`
	KSpeed  float64 `yaml:"kSpeed" json:"kSpeed"`
	KLoad   float64 `yaml:"kLoad" json:"kLoad"`
	PFixed  float64 `yaml:"pFixed" json:"pFixed"`
	TRated  float64 `yaml:"tRated" json:"tRated"`
}

type GearboxParams struct {
	Ratios                []float64               `yaml:"ratios" json:"ratios"`
	Efficiencies          []float64               `yaml:"efficiencies" json:"efficiencies"`
	JInput                float64                 `yaml:"jInput" json:"jInput"`
	JOutput               float64                 `yaml:"jOutput" json:"jOutput"`
	ShiftTime             float64                 `yaml:"shiftTime" json:"shiftTime"`
	UseVariableEfficiency bool                    `yaml:"useVariableEfficiency" json:"useVariableEfficiency"`
	EfficiencyMap         GearboxEfficiencyParams `yaml:"efficiencyMap" json:"efficiencyMap"`
}

func DefaultGearboxParams() GearboxParams {
	return GearboxParams{
		Ratios:       []float64{3.5, 2.0, 1.0},
		Efficiencies: []float64{0.97, 0.97, 0.97},
		JInput:       5,
		JOutput:      5,
		ShiftTime:    0.5,
		EfficiencyMap: GearboxEfficiencyParams{
			EtaBase: 0.99,
			KSpeed:  1e-8,
			KLoad:   0.03,
			PFixed:  500,
			TRated:  50_000,
		},
	}
}

// Diesel7SpeedParams is the 7-speed powershift transmission of a CAT 793D.
func Diesel7SpeedParams() GearboxParams {
	p := DefaultGearboxParams()
	p.Ratios = []float64{4.59, 2.95, 1.94, 1.40, 1.0, 0.74, 0.65}
	p.Efficiencies = nil
	return p
}

// Gearbox is an N-speed gear pair between an input and an output shaft.
// FinalDrive and FixedRatio gears are single-ratio gearboxes.
type Gearbox struct {
	base
	Params GearboxParams

	gear int
}

func NewGearbox(name string, p GearboxParams) *Gearbox {
	if len(p.Efficiencies) != len(p.Ratios) {
		p.Efficiencies = make([]float64, len(p.Ratios))
		for i := range p.Efficiencies {
			p.Efficiencies[i] = 0.97
		}
	}
	return &Gearbox{
		base: base{
			name: name,
			ports: []port.Port{
				port.NewMechanical("input", port.Input),
				port.NewMechanical("output", port.Output),
			},
		},
		Params: p,
	}
}

func NewFinalDrive(name string, ratio, efficiency float64) *Gearbox {
	p := DefaultGearboxParams()
	p.Ratios = []float64{ratio}
	p.Efficiencies = []float64{efficiency}
	p.JInput, p.JOutput = 2, 10
	return NewGearbox(name, p)
}

func NewFixedRatio(name string, ratio, efficiency float64) *Gearbox {
	p := DefaultGearboxParams()
	p.Ratios = []float64{ratio}
	p.Efficiencies = []float64{efficiency}
	p.JInput, p.JOutput = 1, 1
	return NewGearbox(name, p)
}

func (g *Gearbox) Kind() Kind    { return KindGearbox }
func (g *Gearbox) NumGears() int { return len(g.Params.Ratios) }
func (g *Gearbox) Gear() int     { return g.gear }

// SetGear selects a gear, clamped to the available range.
func (g *Gearbox) SetGear(gear int) {
	g.gear = g.clampGear(gear)
}

func (g *Gearbox) clampGear(gear int) int {
	return max(0, min(gear, g.NumGears()-1))
}

func (g *Gearbox) Ratio(gear int) float64 {
	return g.Params.Ratios[g.clampGear(gear)]
}

func (g *Gearbox) CurrentRatio() float64 { return g.Ratio(g.gear) }

func (g *Gearbox) NominalEfficiency(gear int) float64 {
	return g.Params.Efficiencies[g.clampGear(gear)]
}

// Efficiency is the mesh efficiency at the current gear; with the variable
// model it falls with input speed and load.
func (g *Gearbox) Efficiency(omegaIn, torque float64) float64 {
	if !g.Params.UseVariableEfficiency {
		return g.NominalEfficiency(g.gear)
	}
	ep := g.Params.EfficiencyMap
	load := 0.0
	if ep.TRated > 0 {
		load = math.Abs(torque) / ep.TRated
	}
	eta := ep.EtaBase - ep.KSpeed*omegaIn*omegaIn - ep.KLoad*load
	return clamp(eta, 0.85, 0.995)
}

func (g *Gearbox) Inertia(portName string) (float64, error) {
	switch portName {
	case "input":
		return g.Params.JInput, nil
	case "output":
		return g.Params.JOutput, nil
	}
	return 0, g.unknownPort(portName)
}

func (g *Gearbox) Constraints() []port.Constraint {
	return []port.Constraint{
		port.NewGearRatio("input", "output", g.CurrentRatio(), g.NominalEfficiency(g.gear)),
	}
}

func (g *Gearbox) InputToOutputSpeed(omegaIn float64) float64 {
	return omegaIn / g.CurrentRatio()
}

func (g *Gearbox) OutputToInputSpeed(omegaOut float64) float64 {
	return omegaOut * g.CurrentRatio()
}

func (g *Gearbox) InputToOutputTorque(tIn float64) float64 {
	return tIn * g.CurrentRatio() * g.NominalEfficiency(g.gear)
}

func (g *Gearbox) OutputToInputTorque(tOut float64) float64 {
	return tOut / (g.CurrentRatio() * g.NominalEfficiency(g.gear))
}

func (g *Gearbox) ReflectedInertia(jOutput float64) float64 {
	r := g.CurrentRatio()
	return jOutput / (r * r)
}

// ComputeTorques returns no torque: a gearbox only transmits.
func (g *Gearbox) ComputeTorques(_, _, _ map[string]float64) map[string]float64 {
	return nil
}

func (g *Gearbox) Validate() []string {
	var errs []string
	if len(g.Params.Ratios) == 0 {
		errs = append(errs, "gearbox needs at least one ratio")
	}
	for i, r := range g.Params.Ratios {
		if r <= 0 {
			errs = append(errs, fmt.Sprintf("ratio %d must be positive, got %g", i+1, r))
		}
	}
	for i, e := range g.Params.Efficiencies {
		if e <= 0 || e > 1 {
			errs = append(errs, fmt.Sprintf("efficiency %d must be in (0, 1], got %g", i+1, e))
		}
	}
	return errs
}
