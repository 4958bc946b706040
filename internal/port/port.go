// Package port defines typed component ports and the linear kinematic
// constraints that relate their speeds.
package port

type Type int

const (
	Mechanical Type = iota
	Electrical
)

func (t Type) String() string {
	switch t {
	case Mechanical:
		return "mechanical"
	case Electrical:
		return "electrical"
	default:
		return "unknown"
	}
}

type Direction int

const (
	Input Direction = iota
	Output
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	case Bidirectional:
		return "bidirectional"
	default:
		return "unknown"
	}
}

// Port is a named connection point. Mechanical ports carry speed and torque,
// electrical ports carry voltage and current.
type Port struct {
	Name      string
	Type      Type
	Direction Direction
}

func NewMechanical(name string, dir Direction) Port {
	return Port{Name: name, Type: Mechanical, Direction: dir}
}

func NewElectrical(name string) Port {
	return Port{Name: name, Type: Electrical, Direction: Bidirectional}
}

// CanConnect reports whether a and b share a port type and have compatible
// directions.
func CanConnect(a, b Port) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Direction == Bidirectional || b.Direction == Bidirectional {
		return true
	}
	return (a.Direction == Output && b.Direction == Input) ||
		(a.Direction == Input && b.Direction == Output)
}
