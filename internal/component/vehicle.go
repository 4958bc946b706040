package component

import (
	"math"

	"github.com/san-kum/drivesim/internal/port"
)

type VehicleParams struct {
	MEmpty          float64 `yaml:"mEmpty" json:"mEmpty"`
	MPayload        float64 `yaml:"mPayload" json:"mPayload"`
	PayloadFraction float64 `yaml:"payloadFraction" json:"payloadFraction"`
	RWheel          float64 `yaml:"rWheel" json:"rWheel"`
	AFrontal        float64 `yaml:"aFrontal" json:"aFrontal"`
	CD              float64 `yaml:"cD" json:"cD"`
	CR              float64 `yaml:"cR" json:"cR"`
	VMax            float64 `yaml:"vMax" json:"vMax"`
	JWheels         float64 `yaml:"jWheels" json:"jWheels"`
	RhoAir          float64 `yaml:"rhoAir" json:"rhoAir"`
	G               float64 `yaml:"g" json:"g"`
}

// DefaultVehicleParams describes a fully loaded CAT 793D.
func DefaultVehicleParams() VehicleParams {
	return VehicleParams{
		MEmpty:          165_600,
		MPayload:        218_000,
		PayloadFraction: 1,
		RWheel:          1.78,
		AFrontal:        45,
		CD:              0.9,
		CR:              0.025,
		VMax:            54.2 / 3.6,
		JWheels:         500,
		RhoAir:          1.225,
		G:               9.81,
	}
}

// Vehicle lumps the truck mass onto the wheel shaft and supplies road load.
type Vehicle struct {
	base
	Params VehicleParams
}

func NewVehicle(name string, p VehicleParams) *Vehicle {
	return &Vehicle{
		base: base{
			name:  name,
			ports: []port.Port{port.NewMechanical("wheels", port.Input)},
		},
		Params: p,
	}
}

func (v *Vehicle) Kind() Kind { return KindVehicle }

func (v *Vehicle) Mass() float64 {
	return v.Params.MEmpty + v.Params.PayloadFraction*v.Params.MPayload
}

// EffectiveInertia is the wheel inertia plus the translating mass reflected
// through the rolling radius.
func (v *Vehicle) EffectiveInertia() float64 {
	r := v.Params.RWheel
	return v.Params.JWheels + v.Mass()*r*r
}

func (v *Vehicle) Inertia(portName string) (float64, error) {
	if portName == "wheels" {
		return v.EffectiveInertia(), nil
	}
	return 0, v.unknownPort(portName)
}

func (v *Vehicle) GradeForce(grade float64) float64 {
	return v.Mass() * v.Params.G * math.Sin(math.Atan(grade))
}

func (v *Vehicle) RollingResistance(grade float64) float64 {
	return v.Params.CR * v.Mass() * v.Params.G * math.Cos(math.Atan(grade))
}

// AeroDrag opposes the direction of travel; zero velocity counts as forward.
func (v *Vehicle) AeroDrag(vel float64) float64 {
	drag := 0.5 * v.Params.RhoAir * v.Params.CD * v.Params.AFrontal * vel * vel
	if vel < 0 {
		return -drag
	}
	return drag
}

// RoadLoad is the total resisting force in N. Only the drag term depends on
// the direction of travel.
func (v *Vehicle) RoadLoad(vel, grade float64) float64 {
	return v.GradeForce(grade) + v.RollingResistance(grade) + v.AeroDrag(vel)
}

func (v *Vehicle) TorqueDemand(vel, grade float64) float64 {
	return v.RoadLoad(vel, grade) * v.Params.RWheel
}

func (v *Vehicle) LoadTorque(omega, grade float64) float64 {
	return v.TorqueDemand(v.WheelSpeedToVelocity(omega), grade)
}

func (v *Vehicle) WheelSpeedToVelocity(omega float64) float64 { return omega * v.Params.RWheel }
func (v *Vehicle) VelocityToWheelSpeed(vel float64) float64   { return vel / v.Params.RWheel }

func (v *Vehicle) ComputeTorques(_, _, _ map[string]float64) map[string]float64 {
	return nil
}

func (v *Vehicle) Validate() []string {
	var errs []string
	if v.Mass() <= 0 {
		errs = append(errs, "vehicle mass must be positive")
	}
	if v.Params.RWheel <= 0 {
		errs = append(errs, "rWheel must be positive")
	}
	return errs
}
