package sim

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/integrators"
	"github.com/san-kum/drivesim/internal/linalg"
)

// Simulator integrates one Drivetrain. A run requires exclusive ownership
// of the Drivetrain for its duration: gear changes mutate it.
type Simulator struct {
	d         *drivetrain.Drivetrain
	logger    *slog.Logger
	observers []Observer
}

type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.observers = append(s.observers, o) }
}

func New(d *drivetrain.Drivetrain, opts ...Option) *Simulator {
	s := &Simulator{d: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Drivetrain() *drivetrain.Drivetrain { return s.d }

// sample is what a recorded output time needs from the layout that was
// active when it was recorded.
type sample struct {
	speeds   map[string]float64
	gears    map[string]int
	velocity float64
}

// run carries the logs of a single simulation.
type run struct {
	s       *Simulator
	control func(t float64, state map[string]float64, grade float64) dynamo.Control
	grade   GradeProfile

	logT    []float64
	logU    []dynamo.Control
	logG    []float64
	latest  dynamo.Control
	samples []sample
	shifts  int
}

func (s *Simulator) newRun(ctrl Controller, grade GradeProfile) *run {
	if grade == nil {
		grade = ConstantGrade(0)
	}
	if r, ok := ctrl.(Resetter); ok {
		r.Reset()
	}
	return &run{s: s, control: timed(ctrl), grade: grade}
}

// log keeps one (t, control, grade) entry per distinct, increasing time.
// Controls are not part of the ODE state; they are rebuilt on the output
// grid from this log.
func (r *run) log(t float64, u dynamo.Control, g float64) {
	if n := len(r.logT); n > 0 && t <= r.logT[n-1] {
		return
	}
	r.logT = append(r.logT, t)
	r.logU = append(r.logU, u.Clone())
	r.logG = append(r.logG, g)
}

func (r *run) computeControl(t float64, x dynamo.State) (dynamo.Control, float64) {
	g := r.grade.Grade(t)
	u := r.control(t, r.s.d.ArrayToState(x), g)
	if u == nil {
		u = dynamo.Control{}
	}
	return u, g
}

func (r *run) dynamics(t float64, x dynamo.State) (dynamo.State, error) {
	u, g := r.computeControl(t, x)
	r.log(t, u, g)
	r.latest = u
	return r.s.d.Dynamics(t, x, u, g)
}

// beforeStep applies any gear change requested by the latest control.
func (r *run) beforeStep(t float64, x dynamo.State) (dynamo.State, error) {
	u := r.latest
	if u == nil {
		var g float64
		u, g = r.computeControl(t, x)
		r.log(t, u, g)
		r.latest = u
	}
	return r.applyGears(t, u, x)
}

func (r *run) applyGears(t float64, u dynamo.Control, x dynamo.State) (dynamo.State, error) {
	next, changed, err := r.s.d.ApplyGears(u, x)
	if err != nil {
		return nil, err
	}
	if changed {
		r.shifts++
		r.s.logger.Debug("gear shift", "t", t, "gears", r.gears())
	}
	return next, nil
}

func (r *run) gears() map[string]int {
	out := make(map[string]int)
	for _, name := range r.s.d.Shiftables() {
		g, _ := r.s.d.Gear(name)
		out[name] = g
	}
	return out
}

func (r *run) onRecord(t float64, x dynamo.State) {
	d := r.s.d
	r.samples = append(r.samples, sample{
		speeds:   d.AllSpeeds(x),
		gears:    r.gears(),
		velocity: d.Velocity(x),
	})
	for _, o := range r.s.observers {
		o.OnSample(t, x, r.latest)
	}
}

// Simulate integrates from the named initial state over cfg. On an
// integration failure the partial result is returned with Success false
// alongside the error.
func (s *Simulator) Simulate(ctx context.Context, x0 map[string]float64, ctrl Controller, grade GradeProfile, cfg dynamo.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := s.newRun(ctrl, grade)

	start := time.Now()
	s.logger.Info("simulation started",
		"topology", s.d.Topology().Name, "method", cfg.Method, "tEnd", cfg.TEnd, "states", s.d.NumStates())

	sol := integrators.SolveIVP(ctx, r.dynamics, cfg.TStart, cfg.TEnd, s.d.StateToArray(x0), integrators.Options{
		Method:     cfg.Method,
		TEval:      cfg.OutputTimes(),
		MaxStep:    cfg.MaxStep,
		BeforeStep: r.beforeStep,
		OnRecord:   r.onRecord,
	})

	res := r.build(sol.T, sol.Y, cfg)
	res.Metadata["n_function_evals"] = sol.Nfev
	res.Metadata["steps"] = sol.Steps
	res.Metadata["elapsed_ms"] = time.Since(start).Milliseconds()

	if !sol.Success {
		res.Message = "ODE integration failed: " + sol.Message
		s.logger.Error("simulation failed", "error", sol.Message, "t", lastTime(sol.T))
		return res, fmt.Errorf("ODE integration failed: %w", sol.Err)
	}
	res.Success = true
	s.logger.Info("simulation finished", "points", res.NumPoints(), "nfev", sol.Nfev, "shifts", r.shifts)
	return res, nil
}

func lastTime(t []float64) float64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1]
}

func (r *run) build(times []float64, y [][]float64, cfg dynamo.Config) *Result {
	d := r.s.d
	res := newResult()
	res.Time = times
	res.StateNames = d.StateNames()
	for i, name := range res.StateNames {
		if i < len(y) {
			res.States[name] = y[i]
		}
	}

	r.interpolateControls(res)
	r.computeOutputs(res)

	names := make([]string, 0)
	for _, c := range d.Components() {
		names = append(names, c.Name())
	}
	res.Metadata["solver_method"] = cfg.Method
	res.Metadata["drivetrain_type"] = "Drivetrain"
	res.Metadata["topology"] = d.Topology().Name
	res.Metadata["components"] = names
	res.Metadata["gear_shifts"] = r.shifts
	return res
}

func (r *run) interpolateControls(res *Result) {
	if len(r.logT) == 0 {
		return
	}
	var keys []string
	for _, u := range r.logU {
		for k := range u {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	for _, k := range keys {
		values := make([]float64, len(r.logU))
		for i, u := range r.logU {
			values[i] = u[k]
		}
		series := make([]float64, len(res.Time))
		for i, t := range res.Time {
			series[i] = linalg.Interp(t, r.logT, values)
		}
		res.Controls[k] = series
	}
}

func (r *run) computeOutputs(res *Result) {
	d := r.s.d
	n := len(res.Time)
	if len(r.samples) < n {
		n = len(r.samples)
	}

	velocity := make([]float64, n)
	for i := 0; i < n; i++ {
		velocity[i] = r.samples[i].velocity
	}
	res.Outputs["velocity"] = velocity

	if len(r.logT) > 0 {
		grade := make([]float64, n)
		for i := 0; i < n; i++ {
			grade[i] = linalg.Interp(res.Time[i], r.logT, r.logG)
		}
		res.Outputs["grade"] = grade
	}

	for _, name := range d.Shiftables() {
		gear := make([]float64, n)
		for i := 0; i < n; i++ {
			gear[i] = float64(r.samples[i].gears[name])
		}
		res.Outputs[name+".gear"] = gear
	}

	elec := make(map[string][]float64)
	var fuel []float64
	for _, c := range d.Components() {
		a, ok := c.(component.Actuator)
		if !ok {
			continue
		}
		name := c.Name()
		cmd, ok := res.Controls["T_"+name]
		if !ok {
			continue
		}
		boost := res.Controls["boost_"+name]
		shaft := name + "." + a.ShaftPort()

		omega := make([]float64, n)
		torque := make([]float64, n)
		rpm := make([]float64, n)
		for i := 0; i < n; i++ {
			omega[i] = r.samples[i].speeds[shaft]
			controls := map[string]float64{"torque": cmd[i]}
			if boost != nil {
				controls["boost"] = boost[i]
			}
			torque[i] = a.ComputeTorques(map[string]float64{a.ShaftPort(): omega[i]}, controls, nil)[a.ShaftPort()]
			rpm[i] = omega[i] * component.RadPerSecToRpm
		}
		res.Outputs["rpm_"+name] = rpm

		power := make([]float64, n)
		for i := range power {
			power[i] = torque[i] * omega[i]
		}

		if fc, ok := c.(component.FuelConsumer); ok {
			res.Outputs["P_"+name] = power
			if fuel == nil {
				fuel = make([]float64, n)
			}
			for i := range fuel {
				fuel[i] += fc.FuelRate(torque[i], omega[i])
			}
		}
		if em, ok := c.(component.ElectricalMachine); ok {
			res.Outputs["P_"+name+"_mech"] = power
			pe := make([]float64, n)
			for i := range pe {
				pe[i] = em.ElectricalPower(torque[i], omega[i])
			}
			res.Outputs["P_"+name+"_elec"] = pe
			elec[name] = pe
		}
	}
	if fuel != nil {
		res.Outputs["fuel_rate"] = fuel
	}

	for battery, machines := range d.BusMachines() {
		bus := make([]float64, n)
		for _, m := range machines {
			for i, p := range elec[m] {
				bus[i] += p
			}
		}
		res.Outputs["P_"+battery] = bus
	}
}
