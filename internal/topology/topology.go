// Package topology builds and validates the component graph of a drivetrain.
// A Topology is mutable only through its builder methods; compiling it into
// equations of motion is the job of the drivetrain package.
package topology

import (
	"fmt"
	"strings"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/port"
)

// TopologyError reports an invalid builder operation or, with no component
// set, an aggregated validation failure.
type TopologyError struct {
	Component string
	Port      string
	Message   string
}

func (e *TopologyError) Error() string {
	location := ""
	if e.Component != "" {
		location = fmt.Sprintf(" at component '%s'", e.Component)
		if e.Port != "" {
			location += "." + e.Port
		}
	}
	return fmt.Sprintf("TopologyError%s: %s", location, e.Message)
}

// Connection wires one port to another. The "to" port takes the speed of the
// "from" port.
type Connection struct {
	FromComponent string `json:"fromComponent" yaml:"fromComponent"`
	FromPort      string `json:"fromPort" yaml:"fromPort"`
	ToComponent   string `json:"toComponent" yaml:"toComponent"`
	ToPort        string `json:"toPort" yaml:"toPort"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.FromComponent, c.FromPort, c.ToComponent, c.ToPort)
}

// BusMember is one electrical port attached to a bus.
type BusMember struct {
	Component string
	Port      string
}

type Topology struct {
	Name string

	components  map[string]component.Component
	order       []string
	connections []Connection
	buses       map[string][]BusMember
	busOrder    []string

	outputComponent string
	outputPort      string
}

func New(name string) *Topology {
	return &Topology{
		Name:       name,
		components: make(map[string]component.Component),
		buses:      make(map[string][]BusMember),
	}
}

// AddComponent registers c under its own name. Components keep their
// insertion order, which fixes the DOF and state ordering of the compiled
// drivetrain.
func (t *Topology) AddComponent(c component.Component) error {
	name := c.Name()
	if _, ok := t.components[name]; ok {
		return &TopologyError{Component: name, Message: fmt.Sprintf("Component name '%s' already exists", name)}
	}
	t.components[name] = c
	t.order = append(t.order, name)
	return nil
}

func (t *Topology) lookupPort(comp, portName string) (port.Port, error) {
	c, ok := t.components[comp]
	if !ok {
		return port.Port{}, &TopologyError{Component: comp, Message: fmt.Sprintf("Unknown component '%s'", comp)}
	}
	p, ok := component.FindPort(c, portName)
	if !ok {
		return port.Port{}, &TopologyError{Component: comp, Port: portName, Message: fmt.Sprintf("No port '%s' on component", portName)}
	}
	return p, nil
}

// Connect wires fromComp.fromPort to toComp.toPort. A port may appear at most
// once as a source and once as a target, so a motor shaft can sit in the
// middle of a shaft line.
func (t *Topology) Connect(fromComp, fromPort, toComp, toPort string) error {
	from, err := t.lookupPort(fromComp, fromPort)
	if err != nil {
		return err
	}
	to, err := t.lookupPort(toComp, toPort)
	if err != nil {
		return err
	}
	if from.Type != to.Type {
		return &TopologyError{
			Component: fromComp,
			Port:      fromPort,
			Message:   fmt.Sprintf("Port type mismatch: %s != %s", from.Type, to.Type),
		}
	}
	if !port.CanConnect(from, to) {
		return &TopologyError{
			Component: fromComp,
			Port:      fromPort,
			Message:   fmt.Sprintf("Incompatible port directions: %s -> %s", from.Direction, to.Direction),
		}
	}
	for _, existing := range t.connections {
		if (existing.FromComponent == fromComp && existing.FromPort == fromPort) ||
			(existing.ToComponent == toComp && existing.ToPort == toPort) {
			return &TopologyError{Component: fromComp, Port: fromPort, Message: "Port already connected"}
		}
	}
	t.connections = append(t.connections, Connection{
		FromComponent: fromComp,
		FromPort:      fromPort,
		ToComponent:   toComp,
		ToPort:        toPort,
	})
	return nil
}

// SetOutput designates the port that carries the road load.
func (t *Topology) SetOutput(comp, portName string) error {
	if _, err := t.lookupPort(comp, portName); err != nil {
		return err
	}
	t.outputComponent = comp
	t.outputPort = portName
	return nil
}

func (t *Topology) CreateElectricalBus(name string) error {
	if _, ok := t.buses[name]; ok {
		return &TopologyError{Message: fmt.Sprintf("Electrical bus '%s' already exists", name)}
	}
	t.buses[name] = nil
	t.busOrder = append(t.busOrder, name)
	return nil
}

func (t *Topology) ConnectToBus(bus, comp, portName string) error {
	if _, ok := t.buses[bus]; !ok {
		return &TopologyError{Message: fmt.Sprintf("Unknown electrical bus '%s'", bus)}
	}
	p, err := t.lookupPort(comp, portName)
	if err != nil {
		return err
	}
	if p.Type != port.Electrical {
		return &TopologyError{Component: comp, Port: portName, Message: fmt.Sprintf("Port '%s' is not electrical", portName)}
	}
	t.buses[bus] = append(t.buses[bus], BusMember{Component: comp, Port: portName})
	return nil
}

// Components returns the components in insertion order.
func (t *Topology) Components() []component.Component {
	out := make([]component.Component, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.components[name])
	}
	return out
}

func (t *Topology) Component(name string) (component.Component, bool) {
	c, ok := t.components[name]
	return c, ok
}

func (t *Topology) Len() int { return len(t.order) }

func (t *Topology) Connections() []Connection {
	out := make([]Connection, len(t.connections))
	copy(out, t.connections)
	return out
}

func (t *Topology) BusNames() []string {
	out := make([]string, len(t.busOrder))
	copy(out, t.busOrder)
	return out
}

func (t *Topology) BusMembers(bus string) []BusMember {
	out := make([]BusMember, len(t.buses[bus]))
	copy(out, t.buses[bus])
	return out
}

// BusOf returns the bus that comp.portName is attached to.
func (t *Topology) BusOf(comp, portName string) (string, bool) {
	for _, bus := range t.busOrder {
		for _, m := range t.buses[bus] {
			if m.Component == comp && m.Port == portName {
				return bus, true
			}
		}
	}
	return "", false
}

// Output returns the load port, if one has been set.
func (t *Topology) Output() (comp, portName string, ok bool) {
	return t.outputComponent, t.outputPort, t.outputComponent != ""
}

func (t *Topology) ConnectionsFor(comp string) []Connection {
	var out []Connection
	for _, c := range t.connections {
		if c.FromComponent == comp || c.ToComponent == comp {
			out = append(out, c)
		}
	}
	return out
}

// ConnectedPort returns the port on the other end of comp.portName.
func (t *Topology) ConnectedPort(comp, portName string) (string, string, bool) {
	for _, c := range t.connections {
		if c.FromComponent == comp && c.FromPort == portName {
			return c.ToComponent, c.ToPort, true
		}
		if c.ToComponent == comp && c.ToPort == portName {
			return c.FromComponent, c.FromPort, true
		}
	}
	return "", "", false
}

func (t *Topology) isMechanical(c Connection) bool {
	p, err := t.lookupPort(c.FromComponent, c.FromPort)
	return err == nil && p.Type == port.Mechanical
}

// ConnectedMechanicalComponents walks mechanical connections outward from the
// output component and returns every component it reaches.
func (t *Topology) ConnectedMechanicalComponents() map[string]bool {
	reached := make(map[string]bool)
	if t.outputComponent == "" {
		return reached
	}
	adj := make(map[string][]string)
	for _, c := range t.connections {
		if !t.isMechanical(c) {
			continue
		}
		adj[c.FromComponent] = append(adj[c.FromComponent], c.ToComponent)
		adj[c.ToComponent] = append(adj[c.ToComponent], c.FromComponent)
	}
	queue := []string{t.outputComponent}
	reached[t.outputComponent] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reached
}

func (t *Topology) HasMechanicalPathToOutput(comp string) bool {
	return t.ConnectedMechanicalComponents()[comp]
}

// Validate returns every problem found; an empty slice means the topology can
// be compiled.
func (t *Topology) Validate() []string {
	var errs []string

	if len(t.components) == 0 {
		errs = append(errs, "Topology has no components")
	}

	for _, name := range t.order {
		for _, e := range t.components[name].Validate() {
			errs = append(errs, fmt.Sprintf("Component '%s': %s", name, e))
		}
	}

	if t.outputComponent == "" {
		errs = append(errs, "No output port set (use SetOutput)")
	}

	if len(t.components) > 0 && !t.hasActuator() {
		errs = append(errs, "Topology needs at least one actuator (engine or motor)")
	}

	connected := make(map[string]bool)
	for _, c := range t.connections {
		connected[c.FromComponent] = true
		connected[c.ToComponent] = true
	}
	reached := t.ConnectedMechanicalComponents()
	for _, name := range t.order {
		c := t.components[name]
		if !component.HasMechanicalPorts(c) {
			continue
		}
		switch {
		case !connected[name] && len(t.components) > 1:
			errs = append(errs, fmt.Sprintf("Component '%s' is not connected to anything", name))
		case connected[name] && t.outputComponent != "" && !reached[name]:
			errs = append(errs, fmt.Sprintf("Component '%s': No mechanical path to the output", name))
		}
	}

	for _, bus := range t.busOrder {
		if len(t.buses[bus]) < 2 {
			errs = append(errs, fmt.Sprintf("Electrical bus '%s' has fewer than 2 connections", bus))
		}
	}

	return errs
}

func (t *Topology) hasActuator() bool {
	for _, c := range t.components {
		if _, ok := c.(component.Actuator); ok {
			return true
		}
	}
	return false
}

// ValidationError aggregates Validate messages into one TopologyError.
func (t *Topology) ValidationError() error {
	errs := t.Validate()
	if len(errs) == 0 {
		return nil
	}
	return &TopologyError{Message: "Invalid topology: " + strings.Join(errs, "; ")}
}

// Actuators returns the engines and motors in insertion order.
func (t *Topology) Actuators() []component.Actuator {
	var out []component.Actuator
	for _, name := range t.order {
		if a, ok := t.components[name].(component.Actuator); ok {
			out = append(out, a)
		}
	}
	return out
}

// ComponentsOfKind returns the names of components of kind k in insertion
// order.
func (t *Topology) ComponentsOfKind(k component.Kind) []string {
	var out []string
	for _, name := range t.order {
		if t.components[name].Kind() == k {
			out = append(out, name)
		}
	}
	return out
}

func (t *Topology) String() string {
	return fmt.Sprintf("Topology(%s, components=[%s], connections=%d)",
		t.Name, strings.Join(t.order, ", "), len(t.connections))
}
