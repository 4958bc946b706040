package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/port"
)

// GraphDoc is the node/edge description of a drivetrain produced by an
// editor or written by hand.
type GraphDoc struct {
	Name   string     `yaml:"name" json:"name"`
	Nodes  []Node     `yaml:"nodes" json:"nodes"`
	Edges  []Edge     `yaml:"edges" json:"edges"`
	Output *OutputRef `yaml:"output,omitempty" json:"output,omitempty"`
}

type Node struct {
	ID     string         `yaml:"id" json:"id"`
	Type   string         `yaml:"type" json:"type"`
	Label  string         `yaml:"label,omitempty" json:"label,omitempty"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	// Data holds the editor's node payload; when present it takes precedence
	// over Type and Params.
	Data *NodeData `yaml:"data,omitempty" json:"data,omitempty"`
}

type NodeData struct {
	Label         string         `yaml:"label" json:"label"`
	ComponentType string         `yaml:"componentType" json:"componentType"`
	Params        map[string]any `yaml:"params" json:"params"`
}

type Edge struct {
	ID           string `yaml:"id,omitempty" json:"id,omitempty"`
	Source       string `yaml:"source" json:"source"`
	SourceHandle string `yaml:"sourceHandle" json:"sourceHandle"`
	Target       string `yaml:"target" json:"target"`
	TargetHandle string `yaml:"targetHandle" json:"targetHandle"`
	Type         string `yaml:"type,omitempty" json:"type,omitempty"`
}

type OutputRef struct {
	Component string `yaml:"component" json:"component"`
	Port      string `yaml:"port" json:"port"`
}

// Edge types.
const (
	EdgeMechanical = "mechanical"
	EdgeElectrical = "electrical"
)

var handleToPort = map[string]map[string]string{
	component.TypeEngine:     {"shaft": "shaft"},
	component.TypeMotor:      {"shaft": "shaft", "shaft-in": "shaft", "shaft-out": "shaft", "electrical": "electrical"},
	component.TypeGearbox:    {"input": "input", "output": "output"},
	component.TypeFinalDrive: {"input": "input", "output": "output"},
	component.TypeFixedRatio: {"input": "input", "output": "output"},
	component.TypePlanetary:  {"sun": "sun", "carrier": "carrier", "ring": "ring"},
	component.TypeBattery:    {"electrical": "electrical"},
	component.TypeVehicle:    {"wheels": "wheels"},
}

// graphDefaults are the inertias and aero constants applied to every node of
// a graph document before its own params.
var graphDefaults = map[string]map[string]any{
	component.TypeEngine:    {"jEngine": 200.0},
	component.TypeMotor:     {"jRotor": 10.0},
	component.TypeGearbox:   {"jInput": 50.0, "jOutput": 100.0},
	component.TypePlanetary: {"jSun": 5.0, "jCarrier": 150.0, "jRing": 10.0},
	component.TypeVehicle:   {"rhoAir": 1.225, "cD": 0.8, "aFrontal": 50.0},
}

// ComponentType returns the canonical component type of n.
func (n Node) ComponentType() string {
	if n.Data != nil && n.Data.ComponentType != "" {
		return n.Data.ComponentType
	}
	return strings.TrimSuffix(n.Type, "Node")
}

func (n Node) Parameters() map[string]any {
	if n.Data != nil && n.Data.Params != nil {
		return n.Data.Params
	}
	return n.Params
}

func (n Node) DisplayLabel() string {
	if n.Data != nil && n.Data.Label != "" {
		return n.Data.Label
	}
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Param returns a numeric parameter of n, or def when absent or zero.
func (n Node) Param(key string, def float64) float64 {
	v, ok := n.Parameters()[key]
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok || f == 0 {
		return def
	}
	return f
}

// ParamSlice returns a numeric list parameter of n, or def when absent.
func (n Node) ParamSlice(key string, def []float64) []float64 {
	var raw []any
	switch v := n.Parameters()[key].(type) {
	case []float64:
		if len(v) == 0 {
			return def
		}
		return append([]float64(nil), v...)
	case []any:
		raw = v
	}
	if len(raw) == 0 {
		return def
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			return def
		}
		out = append(out, f)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func (g *GraphDoc) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodesOfType returns the nodes of a component type in document order.
func (g *GraphDoc) NodesOfType(typ string) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.ComponentType() == typ {
			out = append(out, n)
		}
	}
	return out
}

func mergeParams(typ string, params map[string]any) map[string]any {
	merged := make(map[string]any, len(params)+len(graphDefaults[typ]))
	for k, v := range graphDefaults[typ] {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

func resolveHandle(typ, handle string) (string, bool) {
	ports, ok := handleToPort[typ]
	if !ok {
		return "", false
	}
	p, ok := ports[handle]
	return p, ok
}

// Build instantiates the components of the document and wires them into a
// Topology. Mechanical edges become connections and electrical edges are
// grouped into buses. Edges naming an unknown node or handle are rejected.
func (g *GraphDoc) Build() (*Topology, error) {
	t := New(g.Name)

	types := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		typ := n.ComponentType()
		c, err := component.New(typ, n.ID, mergeParams(typ, n.Parameters()))
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if err := t.AddComponent(c); err != nil {
			return nil, err
		}
		types[n.ID] = typ
	}

	var buses busSet
	for i, e := range g.Edges {
		label := e.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		srcType, ok := types[e.Source]
		if !ok {
			return nil, fmt.Errorf("edge %s: unknown source node %q", label, e.Source)
		}
		dstType, ok := types[e.Target]
		if !ok {
			return nil, fmt.Errorf("edge %s: unknown target node %q", label, e.Target)
		}
		srcPort, ok := resolveHandle(srcType, e.SourceHandle)
		if !ok {
			return nil, &TopologyError{Component: e.Source, Port: e.SourceHandle, Message: fmt.Sprintf("edge %s: unknown handle for %s", label, srcType)}
		}
		dstPort, ok := resolveHandle(dstType, e.TargetHandle)
		if !ok {
			return nil, &TopologyError{Component: e.Target, Port: e.TargetHandle, Message: fmt.Sprintf("edge %s: unknown handle for %s", label, dstType)}
		}

		if e.Type == EdgeElectrical || t.portType(e.Source, srcPort) == port.Electrical {
			buses.join(BusMember{e.Source, srcPort}, BusMember{e.Target, dstPort})
			continue
		}
		if err := t.Connect(e.Source, srcPort, e.Target, dstPort); err != nil {
			return nil, fmt.Errorf("edge %s: %w", label, err)
		}
	}

	for i, members := range buses.groups {
		name := fmt.Sprintf("bus%d", i+1)
		if err := t.CreateElectricalBus(name); err != nil {
			return nil, err
		}
		for _, m := range members {
			if err := t.ConnectToBus(name, m.Component, m.Port); err != nil {
				return nil, err
			}
		}
	}

	if g.Output != nil {
		if err := t.SetOutput(g.Output.Component, g.Output.Port); err != nil {
			return nil, err
		}
	} else if vehicles := g.NodesOfType(component.TypeVehicle); len(vehicles) > 0 {
		if err := t.SetOutput(vehicles[0].ID, "wheels"); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Topology) portType(comp, portName string) port.Type {
	p, err := t.lookupPort(comp, portName)
	if err != nil {
		return port.Mechanical
	}
	return p.Type
}

// busSet groups electrical endpoints joined by edges into connected sets,
// in order of first appearance.
type busSet struct {
	groups [][]BusMember
}

func (b *busSet) find(m BusMember) int {
	for i, g := range b.groups {
		for _, x := range g {
			if x == m {
				return i
			}
		}
	}
	return -1
}

func (b *busSet) join(x, y BusMember) {
	i, j := b.find(x), b.find(y)
	switch {
	case i < 0 && j < 0:
		b.groups = append(b.groups, []BusMember{x, y})
	case i >= 0 && j < 0:
		b.groups[i] = append(b.groups[i], y)
	case i < 0 && j >= 0:
		b.groups[j] = append(b.groups[j], x)
	case i != j:
		if j < i {
			i, j = j, i
		}
		b.groups[i] = append(b.groups[i], b.groups[j]...)
		b.groups = append(b.groups[:j], b.groups[j+1:]...)
	}
}

// ParseGraph decodes a graph document. JSON input is detected by its leading
// brace; anything else is read as yaml.
func ParseGraph(data []byte) (*GraphDoc, error) {
	var doc GraphDoc
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse graph json: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("graph document has no nodes")
	}
	return &doc, nil
}

func LoadGraph(path string) (*GraphDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// SaveGraph writes doc as yaml, or json when path ends in .json.
func SaveGraph(path string, doc *GraphDoc) error {
	var (
		data []byte
		err  error
	)
	if filepath.Ext(path) == ".json" {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Resolve returns the named preset, or loads ref as a graph file.
func Resolve(ref string) (*GraphDoc, error) {
	if doc, ok := Preset(ref); ok {
		return doc, nil
	}
	if _, err := os.Stat(ref); err != nil {
		return nil, fmt.Errorf("unknown topology %q: not a preset (%s) or readable file", ref, strings.Join(PresetNames(), ", "))
	}
	return LoadGraph(ref)
}

// WithParam returns a copy of g with one node parameter replaced.
func (g *GraphDoc) WithParam(nodeID, key string, value any) (*GraphDoc, error) {
	out := *g
	out.Nodes = make([]Node, len(g.Nodes))
	found := false
	for i, n := range g.Nodes {
		if n.ID == nodeID {
			params := make(map[string]any, len(n.Parameters())+1)
			for k, v := range n.Parameters() {
				params[k] = v
			}
			params[key] = value
			if n.Data != nil {
				data := *n.Data
				data.Params = params
				n.Data = &data
			} else {
				n.Params = params
			}
			found = true
		}
		out.Nodes[i] = n
	}
	if !found {
		return nil, fmt.Errorf("graph %s: no node %q", g.Name, nodeID)
	}
	out.Edges = append([]Edge(nil), g.Edges...)
	return &out, nil
}
