package metrics

import (
	"math"
	"strings"

	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/sim"
)

// Metric accumulates a scalar over the samples of a run. A sample maps
// every state, control and output name to its value at time t.
type Metric interface {
	Name() string
	Observe(t float64, sample map[string]float64)
	Value() float64
	Reset()
}

// Evaluate resets ms and feeds them every sample of res.
func Evaluate(res *sim.Result, ms ...Metric) map[string]float64 {
	for _, m := range ms {
		m.Reset()
	}
	for k, t := range res.Time {
		sample := res.Sample(k)
		for _, m := range ms {
			m.Observe(t, sample)
		}
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

// Live feeds metrics from a running simulation. It implements sim.Observer.
type Live struct {
	d       *drivetrain.Drivetrain
	metrics []Metric
}

func NewLive(d *drivetrain.Drivetrain, ms ...Metric) *Live {
	return &Live{d: d, metrics: ms}
}

func (l *Live) OnSample(t float64, x dynamo.State, u dynamo.Control) {
	sample := l.d.ArrayToState(x)
	for k, v := range u {
		sample[k] = v
	}
	sample["velocity"] = l.d.Velocity(x)
	for _, m := range l.metrics {
		m.Observe(t, sample)
	}
}

func (l *Live) Values() map[string]float64 {
	out := make(map[string]float64, len(l.metrics))
	for _, m := range l.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// ControlEffort is the mean over samples of the summed absolute actuator
// torque commands.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(_ float64, sample map[string]float64) {
	for k, val := range sample {
		if strings.HasPrefix(k, "T_") {
			c.sum += math.Abs(val)
		}
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// SpeedError is the RMS velocity tracking error against a target schedule.
type SpeedError struct {
	name    string
	target  func(t float64) float64
	sumSq   float64
	samples int
}

func NewSpeedError(target func(t float64) float64) *SpeedError {
	return &SpeedError{
		name:   "speed_error",
		target: target,
	}
}

func (s *SpeedError) Name() string { return s.name }

func (s *SpeedError) Observe(t float64, sample map[string]float64) {
	err := sample["velocity"] - s.target(t)
	s.sumSq += err * err
	s.samples++
}

func (s *SpeedError) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return math.Sqrt(s.sumSq / float64(s.samples))
}

func (s *SpeedError) Reset() {
	s.sumSq = 0
	s.samples = 0
}

// integral is the trapezoidal integral of one named series.
type integral struct {
	name   string
	series string
	scale  float64
	total  float64
	prevT  float64
	prevV  float64
	seen   bool
}

func (i *integral) Name() string { return i.name }

func (i *integral) Observe(t float64, sample map[string]float64) {
	v, ok := sample[i.series]
	if !ok {
		return
	}
	if i.seen {
		i.total += 0.5 * (v + i.prevV) * (t - i.prevT)
	}
	i.prevT, i.prevV, i.seen = t, v, true
}

func (i *integral) Value() float64 { return i.total * i.scale }

func (i *integral) Reset() {
	i.total = 0
	i.seen = false
}

// NewFuelUsed integrates fuel_rate to kilograms.
func NewFuelUsed() Metric {
	return &integral{name: "fuel_kg", series: "fuel_rate", scale: 1}
}

// NewBatteryEnergy integrates a battery's bus power to kWh; positive is
// discharge.
func NewBatteryEnergy(battery string) Metric {
	return &integral{name: "energy_kwh_" + battery, series: "P_" + battery, scale: 1 / 3.6e6}
}

// NewDistance integrates velocity to metres.
func NewDistance() Metric {
	return &integral{name: "distance_m", series: "velocity", scale: 1}
}
