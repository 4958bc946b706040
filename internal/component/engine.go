package component

import (
	"math"

	"github.com/san-kum/drivesim/internal/linalg"
	"github.com/san-kum/drivesim/internal/port"
)

// overspeedMargin is the rpm span above rpmMax over which torque tapers to 0.
const overspeedMargin = 200.0

// DieselLHV is the lower heating value of diesel fuel in J/kg.
const DieselLHV = 43e6

type BsfcMapParams struct {
	BsfcOptimal float64 `yaml:"bsfcOptimal" json:"bsfcOptimal"`
	RpmOptimal  float64 `yaml:"rpmOptimal" json:"rpmOptimal"`
	LoadOptimal float64 `yaml:"loadOptimal" json:"loadOptimal"`
	KLowLoad    float64 `yaml:"kLowLoad" json:"kLowLoad"`
	KSpeed      float64 `yaml:"kSpeed" json:"kSpeed"`
	KHighLoad   float64 `yaml:"kHighLoad" json:"kHighLoad"`
}

type EngineParams struct {
	RpmIdle       float64       `yaml:"rpmIdle" json:"rpmIdle"`
	RpmMin        float64       `yaml:"rpmMin" json:"rpmMin"`
	RpmMax        float64       `yaml:"rpmMax" json:"rpmMax"`
	PRated        float64       `yaml:"pRated" json:"pRated"`
	RpmRated      float64       `yaml:"rpmRated" json:"rpmRated"`
	TPeak         float64       `yaml:"tPeak" json:"tPeak"`
	RpmPeakTorque float64       `yaml:"rpmPeakTorque" json:"rpmPeakTorque"`
	JEngine       float64       `yaml:"jEngine" json:"jEngine"`
	Bsfc          float64       `yaml:"bsfc" json:"bsfc"`
	TorqueCurve   [][2]float64  `yaml:"torqueCurve" json:"torqueCurve"`
	UseBsfcMap    bool          `yaml:"useBsfcMap" json:"useBsfcMap"`
	BsfcMap       BsfcMapParams `yaml:"bsfcMap" json:"bsfcMap"`
}

// DefaultEngineParams describes a CAT 3516E class haul-truck diesel.
func DefaultEngineParams() EngineParams {
	return EngineParams{
		RpmIdle:       700,
		RpmMin:        700,
		RpmMax:        1800,
		PRated:        1_801_000,
		RpmRated:      1650,
		TPeak:         11_220,
		RpmPeakTorque: 1200,
		JEngine:       25,
		Bsfc:          54.2e-9,
		TorqueCurve: [][2]float64{
			{700, 9_500},
			{1000, 10_800},
			{1200, 11_220},
			{1400, 10_900},
			{1650, 10_420},
			{1800, 9_800},
		},
		BsfcMap: BsfcMapParams{
			BsfcOptimal: 54.2e-9,
			RpmOptimal:  1300,
			LoadOptimal: 0.70,
			KLowLoad:    0.35,
			KSpeed:      5e-7,
			KHighLoad:   0.05,
		},
	}
}

// Engine is a torque-limited diesel with a single output shaft.
type Engine struct {
	base
	Params EngineParams

	rpmPoints    []float64
	torquePoints []float64
}

func NewEngine(name string, p EngineParams) *Engine {
	e := &Engine{
		base: base{
			name:  name,
			ports: []port.Port{port.NewMechanical("shaft", port.Output)},
		},
		Params: p,
	}
	for _, pt := range p.TorqueCurve {
		e.rpmPoints = append(e.rpmPoints, pt[0])
		e.torquePoints = append(e.torquePoints, pt[1])
	}
	return e
}

func (e *Engine) Kind() Kind        { return KindEngine }
func (e *Engine) ShaftPort() string { return "shaft" }

func (e *Engine) Inertia(portName string) (float64, error) {
	if portName == "shaft" {
		return e.Params.JEngine, nil
	}
	return 0, e.unknownPort(portName)
}

// MaxTorque is zero below rpmMin, interpolated over the torque curve up to
// rpmMax, and tapers linearly to zero over the overspeed margin.
func (e *Engine) MaxTorque(rpm float64) float64 {
	if rpm < e.Params.RpmMin {
		return 0
	}
	if rpm <= e.Params.RpmMax {
		return linalg.Interp(rpm, e.rpmPoints, e.torquePoints)
	}
	tAtMax := linalg.Interp(e.Params.RpmMax, e.rpmPoints, e.torquePoints)
	taper := math.Max(0, 1-(rpm-e.Params.RpmMax)/overspeedMargin)
	return tAtMax * taper
}

func (e *Engine) ClipTorque(rpm, cmd float64) float64 {
	return clamp(cmd, 0, e.MaxTorque(rpm))
}

func (e *Engine) LoadFraction(rpm, torque float64) float64 {
	tMax := e.MaxTorque(rpm)
	if tMax <= 0 {
		return 0
	}
	return clamp(torque/tMax, 0, 1)
}

// BSFC returns brake-specific fuel consumption in kg/J.
func (e *Engine) BSFC(rpm, torque float64) float64 {
	if !e.Params.UseBsfcMap {
		return e.Params.Bsfc
	}
	bp := e.Params.BsfcMap
	load := e.LoadFraction(rpm, torque)

	penalty := bp.KSpeed * math.Pow(rpm-bp.RpmOptimal, 2)
	if load < bp.LoadOptimal {
		ratio := 0.0
		if bp.LoadOptimal > 0 {
			ratio = load / bp.LoadOptimal
		}
		penalty += bp.KLowLoad * math.Pow(1-ratio, 2)
	}
	if load > bp.LoadOptimal {
		penalty += bp.KHighLoad * math.Pow(load-bp.LoadOptimal, 2)
	}
	return clamp(bp.BsfcOptimal*(1+penalty), 50e-9, 83e-9)
}

// FuelRate returns fuel mass flow in kg/s. Motoring or stopped engines burn
// nothing.
func (e *Engine) FuelRate(torque, omega float64) float64 {
	if torque <= 0 || omega <= 0 {
		return 0
	}
	return torque * omega * e.BSFC(omega*RadPerSecToRpm, torque)
}

// Efficiency is the brake thermal efficiency at an operating point.
func (e *Engine) Efficiency(rpm, torque float64) float64 {
	return 1 / (e.BSFC(rpm, torque) * DieselLHV)
}

func (e *Engine) IsValidOperatingPoint(rpm, torque float64) bool {
	if rpm < e.Params.RpmMin || rpm > e.Params.RpmMax {
		return false
	}
	return torque >= 0 && torque <= e.MaxTorque(rpm)
}

func (e *Engine) ComputeTorques(speeds, controls, _ map[string]float64) map[string]float64 {
	return map[string]float64{
		"shaft": e.ClipTorque(rpmOf(speeds["shaft"]), controls["torque"]),
	}
}

func (e *Engine) Validate() []string {
	var errs []string
	if e.Params.RpmMax <= e.Params.RpmMin {
		errs = append(errs, "rpmMax must exceed rpmMin")
	}
	if e.Params.JEngine <= 0 {
		errs = append(errs, "jEngine must be positive")
	}
	if len(e.rpmPoints) < 2 {
		errs = append(errs, "torque curve needs at least 2 points")
	}
	for i := 1; i < len(e.rpmPoints); i++ {
		if e.rpmPoints[i] <= e.rpmPoints[i-1] {
			errs = append(errs, "torque curve rpm values must be increasing")
			break
		}
	}
	return errs
}
