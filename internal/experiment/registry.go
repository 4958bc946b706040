package experiment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/control"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/metrics"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
)

// Registry names everything a run can be assembled from.
type Registry struct {
	topologies  map[string]func() *topology.GraphDoc
	integrators map[string]string
	controllers map[string]func(*drivetrain.Drivetrain, control.Spec) (control.Controller, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		topologies:  make(map[string]func() *topology.GraphDoc),
		integrators: make(map[string]string),
		controllers: make(map[string]func(*drivetrain.Drivetrain, control.Spec) (control.Controller, error)),
	}

	for _, name := range topology.PresetNames() {
		r.topologies[name] = func() *topology.GraphDoc {
			doc, _ := topology.Preset(name)
			return doc
		}
	}

	for _, m := range []string{dynamo.MethodEuler, dynamo.MethodRK4, dynamo.MethodRK45} {
		r.integrators[strings.ToLower(m)] = m
	}

	for _, kind := range control.Kinds() {
		r.controllers[kind] = func(d *drivetrain.Drivetrain, s control.Spec) (control.Controller, error) {
			s.Kind = kind
			return control.New(d, s)
		}
	}
	return r
}

// RegisterTopology adds a named topology; an existing name is replaced.
func (r *Registry) RegisterTopology(name string, build func() *topology.GraphDoc) {
	r.topologies[name] = build
}

// GetTopology returns the named topology, or loads name as a graph file.
func (r *Registry) GetTopology(name string) (*topology.GraphDoc, error) {
	if fn, ok := r.topologies[name]; ok {
		return fn(), nil
	}
	return topology.Resolve(name)
}

// GetIntegrator canonicalizes an integration method name.
func (r *Registry) GetIntegrator(name string) (string, error) {
	m, ok := r.integrators[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", dynamo.ErrUnknownMethod, name)
	}
	return m, nil
}

func (r *Registry) GetController(d *drivetrain.Drivetrain, s control.Spec) (control.Controller, error) {
	fn, ok := r.controllers[s.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", s.Kind)
	}
	return fn(d, s)
}

func (r *Registry) ListTopologies() []string { return sortedKeys(r.topologies) }

func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }

func (r *Registry) ListControllers() []string { return sortedKeys(r.controllers) }

// DefaultMetrics are evaluated on every run: control effort, speed error
// against target, distance, fuel for engine drivetrains and energy per
// battery.
func (r *Registry) DefaultMetrics(d *drivetrain.Drivetrain, target func(t float64) float64) []metrics.Metric {
	ms := []metrics.Metric{
		metrics.NewControlEffort(),
		metrics.NewSpeedError(target),
		metrics.NewDistance(),
	}
	hasEngine := false
	for _, c := range d.Components() {
		switch c.Kind() {
		case component.KindEngine:
			hasEngine = true
		case component.KindBattery:
			ms = append(ms, metrics.NewBatteryEnergy(c.Name()))
		}
	}
	if hasEngine {
		ms = append(ms, metrics.NewFuelUsed())
	}
	return ms
}

// Evaluate computes DefaultMetrics for a finished run of d.
func (r *Registry) Evaluate(d *drivetrain.Drivetrain, res *sim.Result, target func(t float64) float64) map[string]float64 {
	return metrics.Evaluate(res, r.DefaultMetrics(d, target)...)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
