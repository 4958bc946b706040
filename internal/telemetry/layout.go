package telemetry

import (
	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/drivetrain"
)

// Frame id bases.
const (
	VehicleFrameID  uint32 = 0x100
	ActuatorFrameID uint32 = 0x200
	BatteryFrameID  uint32 = 0x300
)

// VehicleFrame carries time, velocity, grade and the gear of gearbox (may
// be empty).
func VehicleFrame(gearbox string) FrameDef {
	fd := FrameDef{
		ID:     VehicleFrameID,
		Name:   "VehicleStatus",
		Length: 8,
		Signals: []Signal{
			{Name: "Velocity", Key: "velocity", Start: 0, Length: 16, Factor: 0.01, Unit: "m/s"},
			{Name: "Grade", Key: "grade", Start: 16, Length: 16, Signed: true, Factor: 1e-4},
			{Name: "Time", Key: "time", Start: 32, Length: 24, Factor: 0.01, Unit: "s"},
		},
	}
	if gearbox != "" {
		fd.Signals = append(fd.Signals, Signal{
			Name: "Gear", Key: "gear_" + gearbox, Start: 56, Length: 8, Factor: 1,
		})
	}
	return fd
}

// ActuatorFrame carries torque command, shaft speed and the mechanical
// power output named powerKey.
func ActuatorFrame(i int, name, powerKey string) FrameDef {
	return FrameDef{
		ID:     ActuatorFrameID + uint32(i),
		Name:   "Actuator_" + name,
		Length: 8,
		Signals: []Signal{
			{Name: "Torque", Key: "T_" + name, Start: 0, Length: 24, Signed: true, Factor: 0.1, Unit: "Nm"},
			{Name: "Speed", Key: "rpm_" + name, Start: 24, Length: 16, Signed: true, Factor: 0.5, Unit: "rpm"},
			{Name: "Power", Key: powerKey, Start: 40, Length: 24, Signed: true, Factor: 1, Unit: "W"},
		},
	}
}

func BatteryFrame(i int, name string) FrameDef {
	return FrameDef{
		ID:     BatteryFrameID + uint32(i),
		Name:   "Battery_" + name,
		Length: 6,
		Signals: []Signal{
			{Name: "SOC", Key: name + ".SOC", Start: 0, Length: 16, Factor: 1e-4},
			{Name: "Power", Key: "P_" + name, Start: 16, Length: 32, Signed: true, Factor: 1, Unit: "W"},
		},
	}
}

// ForDrivetrain lays out one vehicle frame, one frame per actuator and one
// per battery, in component order.
func ForDrivetrain(d *drivetrain.Drivetrain) (*Map, error) {
	var gearbox string
	if s := d.Shiftables(); len(s) > 0 {
		gearbox = s[0]
	}
	frames := []FrameDef{VehicleFrame(gearbox)}
	var na, nb int
	for _, c := range d.Components() {
		switch c.(type) {
		case *component.Engine:
			frames = append(frames, ActuatorFrame(na, c.Name(), "P_"+c.Name()))
			na++
		case *component.Motor:
			frames = append(frames, ActuatorFrame(na, c.Name(), "P_"+c.Name()+"_mech"))
			na++
		case *component.Battery:
			frames = append(frames, BatteryFrame(nb, c.Name()))
			nb++
		}
	}
	return NewMap(frames...)
}
