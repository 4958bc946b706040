package control

import (
	"errors"
	"fmt"
	"math"
)

type SpeedUnit string

const (
	UnitMPS  SpeedUnit = "m/s"
	UnitKPH  SpeedUnit = "km/h"
	UnitMPH  SpeedUnit = "mph"
	UnitRadS SpeedUnit = "rad/s"
)

const mphToMPS = 0.44704

var ErrInvalidSchedule = errors.New("control: invalid shift schedule")

// LoadHold delays upshifts while the engine is heavily loaded at low speed.
type LoadHold struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	LoadThreshold  float64 `yaml:"loadThreshold" json:"loadThreshold"`
	SpeedThreshold float64 `yaml:"speedThreshold" json:"speedThreshold"`
}

// ShiftSchedule maps a speed signal to a gear for one gearbox. Upshift and
// Downshift hold nGears-1 thresholds in Unit.
type ShiftSchedule struct {
	Gearbox     string    `yaml:"gearbox" json:"gearbox"`
	NumGears    int       `yaml:"nGears" json:"nGears"`
	Upshift     []float64 `yaml:"upshift" json:"upshift"`
	Downshift   []float64 `yaml:"downshift" json:"downshift"`
	SpeedSource string    `yaml:"speedSource" json:"speedSource"`
	Unit        SpeedUnit `yaml:"unit" json:"unit"`
	MinGear     int       `yaml:"minGear" json:"minGear"`
	MaxGear     int       `yaml:"maxGear" json:"maxGear"`
	ShiftDelay  float64   `yaml:"shiftDelay" json:"shiftDelay"`
	Hold        LoadHold  `yaml:"loadBasedHold" json:"loadBasedHold"`
}

// NewShiftSchedule fills the defaults: m/s from the vehicle, full gear
// range, 0.5 s lockout and load hold disabled.
func NewShiftSchedule(gearbox string, nGears int, upshift, downshift []float64) (*ShiftSchedule, error) {
	s := &ShiftSchedule{
		Gearbox:     gearbox,
		NumGears:    nGears,
		Upshift:     upshift,
		Downshift:   downshift,
		SpeedSource: "vehicle",
		Unit:        UnitMPS,
		MaxGear:     nGears - 1,
		ShiftDelay:  0.5,
		Hold: LoadHold{
			LoadThreshold:  0.8,
			SpeedThreshold: 15,
		},
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ShiftSchedule) Validate() error {
	if s.NumGears < 1 {
		return fmt.Errorf("%w: %s needs at least one gear", ErrInvalidSchedule, s.Gearbox)
	}
	if len(s.Upshift) != s.NumGears-1 {
		return fmt.Errorf("%w: %s has %d upshift speeds, want %d", ErrInvalidSchedule, s.Gearbox, len(s.Upshift), s.NumGears-1)
	}
	if len(s.Downshift) != s.NumGears-1 {
		return fmt.Errorf("%w: %s has %d downshift speeds, want %d", ErrInvalidSchedule, s.Gearbox, len(s.Downshift), s.NumGears-1)
	}
	return nil
}

// ToMPS converts a speed in Unit to m/s. rad/s is taken as wheel speed.
func (s *ShiftSchedule) ToMPS(speed, rWheel float64) float64 {
	switch s.Unit {
	case UnitKPH:
		return speed / 3.6
	case UnitMPH:
		return speed * mphToMPS
	case UnitRadS:
		return speed * rWheel
	default:
		return speed
	}
}

// FromMPS is the inverse of ToMPS.
func (s *ShiftSchedule) FromMPS(v, rWheel float64) float64 {
	switch s.Unit {
	case UnitKPH:
		return v * 3.6
	case UnitMPH:
		return v / mphToMPS
	case UnitRadS:
		if rWheel == 0 {
			return 0
		}
		return v / rWheel
	default:
		return v
	}
}

// TargetGear is the gear the schedule asks for from current. Downshifts win
// over upshifts, and the result is clamped to [MinGear, MaxGear].
func (s *ShiftSchedule) TargetGear(current int, speed, load float64) int {
	target := current

	hold := s.Hold.Enabled && load > s.Hold.LoadThreshold && speed < s.Hold.SpeedThreshold
	if current < s.NumGears-1 && current < len(s.Upshift) && speed > s.Upshift[current] && !hold {
		target = current + 1
	}
	if current > 0 && current-1 < len(s.Downshift) && speed < s.Downshift[current-1] {
		target = current - 1
	}
	return max(s.MinGear, min(target, s.MaxGear))
}

// ShiftController applies a ShiftSchedule with a lockout of ShiftDelay
// seconds after each shift.
type ShiftController struct {
	Schedule *ShiftSchedule

	gear      int
	lastShift float64
}

func NewShiftController(s *ShiftSchedule) *ShiftController {
	return &ShiftController{
		Schedule:  s,
		gear:      s.MinGear,
		lastShift: math.Inf(-1),
	}
}

func (c *ShiftController) Gear() int { return c.gear }

func (c *ShiftController) SetGear(g int) {
	c.gear = max(c.Schedule.MinGear, min(g, c.Schedule.MaxGear))
}

// Update returns the gear for time t. Inside the lockout window the current
// gear is kept.
func (c *ShiftController) Update(t, speed, load float64) int {
	if t-c.lastShift < c.Schedule.ShiftDelay {
		return c.gear
	}
	target := c.Schedule.TargetGear(c.gear, speed, load)
	if target != c.gear {
		c.gear = target
		c.lastShift = t
	}
	return c.gear
}

// ForceGear sets the gear immediately and starts a new lockout.
func (c *ShiftController) ForceGear(g int, t float64) {
	c.SetGear(g)
	c.lastShift = t
}

// Reset clears the lockout and returns to the lowest gear
func (c *ShiftController) Reset() {
	c.gear = c.Schedule.MinGear
	c.lastShift = math.Inf(-1)
}

// MultiGearboxController drives several gearboxes from one vehicle speed.
type MultiGearboxController struct {
	WheelRadius float64
	FinalDrive  float64

	controllers map[string]*ShiftController
	order       []string
}

func NewMultiGearboxController(wheelRadius, finalDrive float64) *MultiGearboxController {
	return &MultiGearboxController{
		WheelRadius: wheelRadius,
		FinalDrive:  finalDrive,
		controllers: make(map[string]*ShiftController),
	}
}

func (m *MultiGearboxController) Add(s *ShiftSchedule) *ShiftController {
	if _, ok := m.controllers[s.Gearbox]; !ok {
		m.order = append(m.order, s.Gearbox)
	}
	c := NewShiftController(s)
	m.controllers[s.Gearbox] = c
	return c
}

func (m *MultiGearboxController) Controller(gearbox string) (*ShiftController, bool) {
	c, ok := m.controllers[gearbox]
	return c, ok
}

// UpdateAll feeds the vehicle velocity, converted to each schedule's unit,
// to every gearbox and returns the gears as gear_<name> controls.
func (m *MultiGearboxController) UpdateAll(t, velocity, load float64) map[string]float64 {
	out := make(map[string]float64, len(m.controllers))
	for _, name := range m.order {
		c := m.controllers[name]
		speed := c.Schedule.FromMPS(velocity, m.WheelRadius)
		out["gear_"+name] = float64(c.Update(t, speed, load))
	}
	return out
}

func (m *MultiGearboxController) AllGears() map[string]int {
	out := make(map[string]int, len(m.controllers))
	for name, c := range m.controllers {
		out[name] = c.Gear()
	}
	return out
}

// WheelSpeed converts vehicle velocity to wheel angular speed.
func (m *MultiGearboxController) WheelSpeed(v float64) float64 {
	if m.WheelRadius == 0 {
		return 0
	}
	return v / m.WheelRadius
}

// VehicleSpeed converts wheel angular speed to vehicle velocity.
func (m *MultiGearboxController) VehicleSpeed(omega float64) float64 {
	return omega * m.WheelRadius
}

func (m *MultiGearboxController) ResetAll() {
	for _, c := range m.controllers {
		c.Reset()
	}
}
