// Package component implements the physical units of a drivetrain. Each
// component owns a fixed set of ports, optional internal states and the
// kinematic constraints between its own ports. Torque and derivative
// functions are pure: they depend only on their arguments and the component
// parameters.
package component

import (
	"fmt"
	"math"

	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/port"
)

// RadPerSecToRpm converts an angular speed in rad/s to rpm.
const RadPerSecToRpm = 30 / math.Pi

type Kind int

const (
	KindEngine Kind = iota
	KindMotor
	KindGearbox
	KindPlanetary
	KindBattery
	KindVehicle
)

func (k Kind) String() string {
	switch k {
	case KindEngine:
		return "engine"
	case KindMotor:
		return "motor"
	case KindGearbox:
		return "gearbox"
	case KindPlanetary:
		return "planetary"
	case KindBattery:
		return "battery"
	case KindVehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

// PortValues carries per-port quantities into StateDerivatives. Keys are
// "<port>_speed", "<port>_torque" and "electrical_power".
type PortValues map[string]float64

const ElectricalPowerKey = "electrical_power"

type Component interface {
	Name() string
	Kind() Kind
	Ports() []port.Port
	StateNames() []string
	Inertia(portName string) (float64, error)
	Constraints() []port.Constraint
	// ComputeTorques maps port speeds, component controls ("torque", "boost")
	// and internal states to the torque applied on each port.
	ComputeTorques(speeds, controls, states map[string]float64) map[string]float64
	StateDerivatives(states map[string]float64, values PortValues) map[string]float64
	Validate() []string
}

// Actuator is a torque source driven by a T_<name> control.
type Actuator interface {
	Component
	ShaftPort() string
	MaxTorque(rpm float64) float64
	ClipTorque(rpm, cmd float64) float64
}

// Shiftable is a component with a selectable gear.
type Shiftable interface {
	Component
	NumGears() int
	Gear() int
	SetGear(g int)
	Ratio(g int) float64
}

type FuelConsumer interface {
	FuelRate(torque, omega float64) float64
}

type ElectricalMachine interface {
	ElectricalPower(torque, omega float64) float64
}

// Load is the road-load sink attached to the topology output.
type Load interface {
	LoadTorque(omega, grade float64) float64
	WheelSpeedToVelocity(omega float64) float64
	VelocityToWheelSpeed(v float64) float64
}

// IsShiftable reports whether c has more than one selectable gear.
func IsShiftable(c Component) (Shiftable, bool) {
	s, ok := c.(Shiftable)
	if !ok || s.NumGears() < 2 {
		return nil, false
	}
	return s, true
}

func FindPort(c Component, name string) (port.Port, bool) {
	for _, p := range c.Ports() {
		if p.Name == name {
			return p, true
		}
	}
	return port.Port{}, false
}

func MechanicalPorts(c Component) []port.Port {
	var out []port.Port
	for _, p := range c.Ports() {
		if p.Type == port.Mechanical {
			out = append(out, p)
		}
	}
	return out
}

func HasMechanicalPorts(c Component) bool {
	return len(MechanicalPorts(c)) > 0
}

type base struct {
	name  string
	ports []port.Port
}

func (b *base) Name() string         { return b.name }
func (b *base) Ports() []port.Port   { return b.ports }
func (b *base) StateNames() []string { return nil }

func (b *base) Constraints() []port.Constraint { return nil }

func (b *base) StateDerivatives(map[string]float64, PortValues) map[string]float64 {
	return nil
}

func (b *base) unknownPort(name string) error {
	return fmt.Errorf("%w: %s.%s", dynamo.ErrUnknownPort, b.name, name)
}

func rpmOf(omega float64) float64 {
	return math.Abs(omega) * RadPerSecToRpm
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
