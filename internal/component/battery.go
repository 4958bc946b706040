package component

import (
	"math"

	"github.com/san-kum/drivesim/internal/linalg"
	"github.com/san-kum/drivesim/internal/port"
)

// socDerateBand is the SOC span next to socMin/socMax over which the power
// limits fall linearly to zero.
const socDerateBand = 0.1

type OcvParams struct {
	Coefficients  []float64 `yaml:"coefficients" json:"coefficients"`
	UseLookup     bool      `yaml:"useLookup" json:"useLookup"`
	SocPoints     []float64 `yaml:"socPoints" json:"socPoints"`
	OcvNormalized []float64 `yaml:"ocvNormalized" json:"ocvNormalized"`
}

type ResistanceParams struct {
	RNom    float64 `yaml:"rNom" json:"rNom"`
	KLow    float64 `yaml:"kLow" json:"kLow"`
	TauLow  float64 `yaml:"tauLow" json:"tauLow"`
	KHigh   float64 `yaml:"kHigh" json:"kHigh"`
	TauHigh float64 `yaml:"tauHigh" json:"tauHigh"`
}

type BatteryParams struct {
	CapacityKWh      float64          `yaml:"capacityKwh" json:"capacityKwh"`
	VOc              float64          `yaml:"vOc" json:"vOc"`
	VNom             float64          `yaml:"vNom" json:"vNom"`
	RInt             float64          `yaml:"rInt" json:"rInt"`
	PMaxDischarge    float64          `yaml:"pMaxDischarge" json:"pMaxDischarge"`
	PMaxCharge       float64          `yaml:"pMaxCharge" json:"pMaxCharge"`
	SocMin           float64          `yaml:"socMin" json:"socMin"`
	SocMax           float64          `yaml:"socMax" json:"socMax"`
	SocInit          float64          `yaml:"socInit" json:"socInit"`
	UseSocOcv        bool             `yaml:"useSocDependentOcv" json:"useSocDependentOcv"`
	UseSocResistance bool             `yaml:"useSocDependentResistance" json:"useSocDependentResistance"`
	Ocv              OcvParams        `yaml:"ocv" json:"ocv"`
	Resistance       ResistanceParams `yaml:"resistance" json:"resistance"`
}

func DefaultBatteryParams() BatteryParams {
	return BatteryParams{
		CapacityKWh:   200,
		VOc:           750,
		VNom:          700,
		RInt:          0.05,
		PMaxDischarge: 1_000_000,
		PMaxCharge:    500_000,
		SocMin:        0.3,
		SocMax:        0.8,
		SocInit:       0.6,
		Ocv: OcvParams{
			Coefficients:  []float64{0.900, 0.400, -0.800, 1.200, -0.700},
			SocPoints:     []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			OcvNormalized: []float64{0.90, 0.92, 0.95, 0.97, 0.99, 1.00, 1.01, 1.03, 1.05, 1.08, 1.10},
		},
		Resistance: ResistanceParams{
			RNom:    0.05,
			KLow:    0.5,
			TauLow:  0.15,
			KHigh:   0.3,
			TauHigh: 0.15,
		},
	}
}

// Battery is a quadratic equivalent-circuit pack with SOC as its only state.
// Positive power is discharge.
type Battery struct {
	base
	Params BatteryParams
}

func NewBattery(name string, p BatteryParams) *Battery {
	return &Battery{
		base: base{
			name:  name,
			ports: []port.Port{port.NewElectrical("electrical")},
		},
		Params: p,
	}
}

func (b *Battery) Kind() Kind           { return KindBattery }
func (b *Battery) StateNames() []string { return []string{"SOC"} }

func (b *Battery) Inertia(portName string) (float64, error) {
	if portName == "electrical" {
		return 0, nil
	}
	return 0, b.unknownPort(portName)
}

// QCapacity is the pack energy in J.
func (b *Battery) QCapacity() float64 {
	return b.Params.CapacityKWh * 3.6e6
}

func (b *Battery) OpenCircuitVoltage(soc float64) float64 {
	if !b.Params.UseSocOcv {
		return b.Params.VOc
	}
	soc = clamp(soc, 0, 1)
	op := b.Params.Ocv
	var norm float64
	if op.UseLookup {
		norm = linalg.Interp(soc, op.SocPoints, op.OcvNormalized)
	} else {
		for i, c := range op.Coefficients {
			norm += c * math.Pow(soc, float64(i))
		}
	}
	return b.Params.VOc * norm
}

func (b *Battery) InternalResistance(soc float64) float64 {
	if !b.Params.UseSocResistance {
		return b.Params.RInt
	}
	soc = clamp(soc, 0, 1)
	rp := b.Params.Resistance
	low := rp.KLow * math.Exp(-soc/rp.TauLow)
	high := rp.KHigh * math.Exp((soc-1)/rp.TauHigh)
	return rp.RNom * (1 + low + high)
}

// CurrentFromPower solves R*I^2 - Voc*I + P = 0 for the root of smaller
// magnitude. Beyond the deliverable power it returns the voltage-limited
// current Voc/2R.
func (b *Battery) CurrentFromPower(power, soc float64) float64 {
	if math.Abs(power) < 1e-6 {
		return 0
	}
	v := b.OpenCircuitVoltage(soc)
	r := b.InternalResistance(soc)
	disc := v*v - 4*r*power
	if disc < 0 {
		if power > 0 {
			return v / (2 * r)
		}
		return -v / (2 * r)
	}
	return (v - math.Sqrt(disc)) / (2 * r)
}

func (b *Battery) TerminalVoltage(current, soc float64) float64 {
	return b.OpenCircuitVoltage(soc) - current*b.InternalResistance(soc)
}

// PowerLimits returns (min, max) power, min being the negative charge limit.
func (b *Battery) PowerLimits(soc float64) (float64, float64) {
	pDis := b.Params.PMaxDischarge
	pChg := b.Params.PMaxCharge
	if soc < b.Params.SocMin+socDerateBand {
		pDis *= math.Max(0, (soc-b.Params.SocMin)/socDerateBand)
	}
	if soc > b.Params.SocMax-socDerateBand {
		pChg *= math.Max(0, (b.Params.SocMax-soc)/socDerateBand)
	}
	return -pChg, pDis
}

func (b *Battery) ClipPower(power, soc float64) float64 {
	lo, hi := b.PowerLimits(soc)
	return clamp(power, lo, hi)
}

func (b *Battery) CanProvidePower(power, soc float64) bool {
	lo, hi := b.PowerLimits(soc)
	return power >= lo && power <= hi
}

func (b *Battery) SocDerivative(power, soc float64) float64 {
	q := b.QCapacity() / b.Params.VNom
	return -b.CurrentFromPower(power, soc) / q
}

// EnergyRemaining is the usable energy above socMin in J.
func (b *Battery) EnergyRemaining(soc float64) float64 {
	return math.Max(0, soc-b.Params.SocMin) * b.QCapacity()
}

func (b *Battery) ComputeTorques(_, _, _ map[string]float64) map[string]float64 {
	return nil
}

func (b *Battery) StateDerivatives(states map[string]float64, values PortValues) map[string]float64 {
	soc, ok := states["SOC"]
	if !ok {
		soc = b.Params.SocInit
	}
	return map[string]float64{"SOC": b.SocDerivative(values[ElectricalPowerKey], soc)}
}

func (b *Battery) Validate() []string {
	var errs []string
	if b.Params.CapacityKWh <= 0 {
		errs = append(errs, "capacityKwh must be positive")
	}
	if b.Params.VNom <= 0 || b.Params.VOc <= 0 {
		errs = append(errs, "voltages must be positive")
	}
	if b.Params.RInt <= 0 {
		errs = append(errs, "rInt must be positive")
	}
	if b.Params.SocMin >= b.Params.SocMax {
		errs = append(errs, "socMin must be below socMax")
	}
	if b.Params.SocInit < 0 || b.Params.SocInit > 1 {
		errs = append(errs, "socInit must be in [0, 1]")
	}
	return errs
}
