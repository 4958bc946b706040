package component

import (
	"math"

	"github.com/san-kum/drivesim/internal/port"
)

type MotorLossParams struct {
	KCu    float64 `yaml:"kCu" json:"kCu"`
	KIronE float64 `yaml:"kIronE" json:"kIronE"`
	KIronH float64 `yaml:"kIronH" json:"kIronH"`
	KMech  float64 `yaml:"kMech" json:"kMech"`
	PFixed float64 `yaml:"pFixed" json:"pFixed"`
	EtaInv float64 `yaml:"etaInverter" json:"etaInverter"`
}

type MotorParams struct {
	PMax       float64         `yaml:"pMax" json:"pMax"`
	PBoost     float64         `yaml:"pBoost" json:"pBoost"`
	TMax       float64         `yaml:"tMax" json:"tMax"`
	RpmMax     float64         `yaml:"rpmMax" json:"rpmMax"`
	RpmBase    float64         `yaml:"rpmBase" json:"rpmBase"`
	JRotor     float64         `yaml:"jRotor" json:"jRotor"`
	Eta        float64         `yaml:"eta" json:"eta"`
	UseLossMap bool            `yaml:"useLossMap" json:"useLossMap"`
	Losses     MotorLossParams `yaml:"losses" json:"losses"`
}

func DefaultMotorParams() MotorParams {
	return MotorParams{
		PMax:   200_000,
		TMax:   3_000,
		RpmMax: 6_000,
		JRotor: 2,
		Eta:    0.92,
		Losses: MotorLossParams{
			KCu:    0.0012,
			KIronE: 0.3,
			KIronH: 8,
			KMech:  3,
			PFixed: 800,
			EtaInv: 0.98,
		},
	}
}

// MG1Params and MG2Params are the generator and traction machines of a
// power-split haul truck.
func MG1Params() MotorParams {
	p := DefaultMotorParams()
	p.PMax, p.PBoost, p.TMax, p.RpmMax = 250_000, 450_000, 3_500, 6_000
	return p
}

func MG2Params() MotorParams {
	p := DefaultMotorParams()
	p.PMax, p.PBoost, p.TMax, p.RpmMax, p.JRotor = 500_000, 500_000, 5_400, 4_000, 4
	p.Losses.KCu, p.Losses.KIronE, p.Losses.KIronH, p.Losses.KMech = 0.0008, 0.4, 10, 4
	return p
}

// Motor is a four-quadrant electric machine: constant torque below base
// speed, constant power above it.
type Motor struct {
	base
	Params MotorParams
}

func NewMotor(name string, p MotorParams) *Motor {
	if p.RpmBase == 0 && p.TMax > 0 {
		p.RpmBase = p.PMax / p.TMax * RadPerSecToRpm
	}
	return &Motor{
		base: base{
			name: name,
			ports: []port.Port{
				port.NewMechanical("shaft", port.Bidirectional),
				port.NewElectrical("electrical"),
			},
		},
		Params: p,
	}
}

func (m *Motor) Kind() Kind        { return KindMotor }
func (m *Motor) ShaftPort() string { return "shaft" }

func (m *Motor) Inertia(portName string) (float64, error) {
	switch portName {
	case "shaft":
		return m.Params.JRotor, nil
	case "electrical":
		return 0, nil
	}
	return 0, m.unknownPort(portName)
}

func (m *Motor) MaxTorque(rpm float64) float64 {
	return m.MaxTorqueBoost(rpm, false)
}

// MaxTorqueBoost is MaxTorque with the boost power limit applied in the
// constant-power region when boost is set and configured.
func (m *Motor) MaxTorqueBoost(rpm float64, boost bool) float64 {
	rpm = math.Abs(rpm)
	if rpm > m.Params.RpmMax {
		return 0
	}
	if rpm <= m.Params.RpmBase {
		return m.Params.TMax
	}
	pMax := m.Params.PMax
	if boost && m.Params.PBoost > 0 {
		pMax = m.Params.PBoost
	}
	omega := rpm / RadPerSecToRpm
	return math.Min(pMax/omega, m.Params.TMax)
}

func (m *Motor) TorqueLimits(rpm float64, boost bool) (float64, float64) {
	t := m.MaxTorqueBoost(rpm, boost)
	return -t, t
}

func (m *Motor) ClipTorque(rpm, cmd float64) float64 {
	lo, hi := m.TorqueLimits(rpm, false)
	return clamp(cmd, lo, hi)
}

// Losses is the copper, iron, mechanical and fixed loss in W.
func (m *Motor) Losses(torque, omega float64) float64 {
	lp := m.Params.Losses
	w := math.Abs(omega)
	t := math.Abs(torque)
	return lp.KCu*t*t + lp.KIronE*w*w + lp.KIronH*w + lp.KMech*w + lp.PFixed
}

func (m *Motor) Efficiency(torque, omega float64) float64 {
	if !m.Params.UseLossMap {
		return m.Params.Eta
	}
	pMech := math.Abs(torque * omega)
	if pMech < 100 {
		return m.Params.Eta
	}
	eta := pMech / (pMech + m.Losses(torque, omega)) * m.Params.Losses.EtaInv
	return clamp(eta, 0.5, 0.98)
}

// ElectricalPower divides by efficiency when motoring and multiplies when
// generating.
func (m *Motor) ElectricalPower(torque, omega float64) float64 {
	pMech := torque * omega
	eta := m.Efficiency(torque, omega)
	if pMech > 0 {
		return pMech / eta
	}
	return pMech * eta
}

func (m *Motor) ComputeTorques(speeds, controls, _ map[string]float64) map[string]float64 {
	lo, hi := m.TorqueLimits(rpmOf(speeds["shaft"]), controls["boost"] > 0.5)
	return map[string]float64{"shaft": clamp(controls["torque"], lo, hi)}
}

func (m *Motor) Validate() []string {
	var errs []string
	if m.Params.PMax <= 0 {
		errs = append(errs, "pMax must be positive")
	}
	if m.Params.TMax <= 0 {
		errs = append(errs, "tMax must be positive")
	}
	if m.Params.JRotor <= 0 {
		errs = append(errs, "jRotor must be positive")
	}
	if m.Params.Eta <= 0 || m.Params.Eta > 1 {
		errs = append(errs, "eta must be in (0, 1]")
	}
	return errs
}
