// Package experiment assembles a run from a configuration: topology,
// drivetrain, controller, grade profile and metrics.
package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/drivesim/internal/config"
	"github.com/san-kum/drivesim/internal/control"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/metrics"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
)

type Experiment struct {
	cfg      config.Config
	registry *Registry

	doc        *topology.GraphDoc
	drivetrain *drivetrain.Drivetrain
	controller control.Controller
	grade      sim.GradeProfile
	simulator  *sim.Simulator
	metrics    []metrics.Metric
	values     map[string]float64
}

func New(cfg config.Config) *Experiment {
	return &Experiment{cfg: cfg, registry: NewRegistry()}
}

// WithRegistry replaces the default registry.
func (e *Experiment) WithRegistry(r *Registry) *Experiment {
	e.registry = r
	return e
}

// Setup builds and compiles the topology and attaches the controller.
// opts are passed to the simulator.
func (e *Experiment) Setup(opts ...sim.Option) error {
	method, err := e.registry.GetIntegrator(e.cfg.Sim.Method)
	if err != nil {
		return err
	}
	e.cfg.Sim.Method = method
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	doc, err := e.registry.GetTopology(e.cfg.Topology)
	if err != nil {
		return err
	}
	topo, err := doc.Build()
	if err != nil {
		return err
	}
	d, err := drivetrain.Compile(topo)
	if err != nil {
		return err
	}

	grade, err := e.cfg.GradeProfile()
	if err != nil {
		return err
	}
	ctrl, err := e.registry.controllerFor(d, e.cfg.ControllerSpec(doc), grade)
	if err != nil {
		return err
	}

	e.doc, e.drivetrain, e.controller, e.grade = doc, d, ctrl, grade
	e.simulator = sim.New(d, opts...)
	e.metrics = e.registry.DefaultMetrics(d, e.Target)
	return nil
}

// Target is the speed set point at t.
func (e *Experiment) Target(t float64) float64 {
	if sched, ok := e.grade.(sim.SpeedSchedule); ok {
		return sched.TargetSpeed(t)
	}
	return e.cfg.TargetSpeed
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	res, err := e.simulator.Simulate(ctx, e.cfg.InitialState(e.drivetrain), e.controller, e.grade, e.cfg.Sim)
	if res != nil {
		e.values = metrics.Evaluate(res, e.metrics...)
		if res.Metadata == nil {
			res.Metadata = make(map[string]any)
		}
		res.Metadata["controller"] = e.ControllerKind()
	}
	return res, err
}

// RunAsync starts the run in the background.
func (e *Experiment) RunAsync(ctx context.Context) (*sim.Job, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.SimulateAsync(ctx, e.cfg.InitialState(e.drivetrain), e.controller, e.grade, e.cfg.Sim), nil
}

// Metrics returns the metric values of the last Run.
func (e *Experiment) Metrics() map[string]float64 { return e.values }

// Evaluate computes the default metrics on res, e.g. after RunAsync.
func (e *Experiment) Evaluate(res *sim.Result) map[string]float64 {
	e.values = metrics.Evaluate(res, e.metrics...)
	return e.values
}

func (e *Experiment) Config() config.Config { return e.cfg }

func (e *Experiment) Graph() *topology.GraphDoc { return e.doc }

func (e *Experiment) Drivetrain() *drivetrain.Drivetrain { return e.drivetrain }

func (e *Experiment) Controller() control.Controller { return e.controller }

func (e *Experiment) ControllerKind() string {
	return e.cfg.ControllerSpec(e.doc).Kind
}

func (e *Experiment) Grade() sim.GradeProfile { return e.grade }

// GetSimulator returns the underlying simulator for adding observers.
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

// controllerFor builds the controller and hands it the grade profile's
// speed schedule when there is one.
func (r *Registry) controllerFor(d *drivetrain.Drivetrain, spec control.Spec, grade sim.GradeProfile) (control.Controller, error) {
	ctrl, err := r.GetController(d, spec)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", spec.Kind, err)
	}
	if sched, ok := grade.(sim.SpeedSchedule); ok {
		switch c := ctrl.(type) {
		case *control.SpeedController:
			c.Schedule = sched.TargetSpeed
		case *control.ConventionalDiesel:
			c.Schedule = sched.TargetSpeed
		}
	}
	return ctrl, nil
}

// Case turns cfg into an ensemble member. The compiled drivetrain is
// handed to onBuild so callers can evaluate metrics afterwards.
func (r *Registry) Case(name string, cfg config.Config, onBuild func(*drivetrain.Drivetrain)) (sim.Case, error) {
	method, err := r.GetIntegrator(cfg.Sim.Method)
	if err != nil {
		return sim.Case{}, err
	}
	cfg.Sim.Method = method
	if err := cfg.Validate(); err != nil {
		return sim.Case{}, err
	}
	doc, err := r.GetTopology(cfg.Topology)
	if err != nil {
		return sim.Case{}, err
	}
	grade, err := cfg.GradeProfile()
	if err != nil {
		return sim.Case{}, err
	}
	spec := cfg.ControllerSpec(doc)

	return sim.Case{
		Name: name,
		Build: func() (*drivetrain.Drivetrain, error) {
			topo, err := doc.Build()
			if err != nil {
				return nil, err
			}
			d, err := drivetrain.Compile(topo)
			if err == nil && onBuild != nil {
				onBuild(d)
			}
			return d, err
		},
		Initial: cfg.InitialState,
		Controller: func(d *drivetrain.Drivetrain) (sim.Controller, error) {
			return r.controllerFor(d, spec, grade)
		},
		Grade:  grade,
		Config: cfg.Sim,
	}, nil
}
