package config

import (
	"sort"

	"github.com/san-kum/drivesim/internal/dynamo"
)

func simFor(name string) dynamo.Config {
	c, _ := dynamo.ConfigPreset(name)
	return c
}

// Presets holds ready-made runs per topology preset.
var Presets = map[string]map[string]*Config{
	"diesel-793d": {
		"cruise": {
			Topology: "diesel-793d", Controller: "diesel", TargetSpeed: 12,
			Grade: GradeConfig{Profile: GradeConstant}, Sim: simFor("short"),
		},
		"climb": {
			Topology: "diesel-793d", Controller: "diesel", TargetSpeed: 8,
			Grade: GradeConfig{Profile: GradeConstant, Value: 0.08}, Sim: simFor("medium"),
		},
		"haul": {
			Topology: "diesel-793d", Controller: "diesel", TargetSpeed: 8,
			Grade: GradeConfig{Profile: GradeHaul}, Sim: simFor("long"),
		},
	},
	"diesel-789d": {
		"cruise": {
			Topology: "diesel-789d", Controller: "diesel", TargetSpeed: 12,
			Grade: GradeConfig{Profile: GradeConstant}, Sim: simFor("short"),
		},
		"haul": {
			Topology: "diesel-789d", Controller: "diesel", TargetSpeed: 8,
			Grade: GradeConfig{Profile: GradeHaul}, Sim: simFor("long"),
		},
	},
	"ecvt-split": {
		"cruise": {
			Topology: "ecvt-split", Controller: "speed", TargetSpeed: 10,
			Grade: GradeConfig{Profile: GradeConstant}, Sim: simFor("short"),
			Initial: InitialConfig{SOC: 0.6},
		},
		"step": {
			Topology: "ecvt-split", Controller: "speed", TargetSpeed: 8,
			Grade: GradeConfig{Profile: GradeStep, Start: 20, Value: 0.05}, Sim: simFor("medium"),
		},
		"haul": {
			Topology: "ecvt-split", Controller: "speed", TargetSpeed: 8,
			Grade: GradeConfig{Profile: GradeHaul}, Sim: simFor("long"),
		},
	},
	"ecvt-detailed": {
		"cruise": {
			Topology: "ecvt-detailed", Controller: "speed", TargetSpeed: 10,
			Grade: GradeConfig{Profile: GradeConstant}, Sim: simFor("short"),
		},
		"fidelity": {
			Topology: "ecvt-detailed", Controller: "speed", TargetSpeed: 10,
			Grade: GradeConfig{Profile: GradeConstant}, Sim: simFor("high_fidelity"),
		},
	},
	"electric": {
		"cruise": {
			Topology: "electric", Controller: "speed", TargetSpeed: 6,
			Grade: GradeConfig{Profile: GradeConstant}, Sim: simFor("short"),
			Initial: InitialConfig{Velocity: 2},
		},
		"low-soc": {
			Topology: "electric", Controller: "speed", TargetSpeed: 6,
			Grade: GradeConfig{Profile: GradeConstant, Value: 0.02}, Sim: simFor("short"),
			Initial: InitialConfig{Velocity: 2, SOC: 0.35},
		},
	},
}

// GetPreset returns a copy of the named run so callers may override it.
func GetPreset(topo, preset string) *Config {
	topoPresets, ok := Presets[topo]
	if !ok {
		return nil
	}
	cfg, ok := topoPresets[preset]
	if !ok {
		return nil
	}
	c := *cfg
	return &c
}

func ListPresets(topo string) []string {
	topoPresets, ok := Presets[topo]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(topoPresets))
	for name := range topoPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
