package component

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Type names accepted by New, as they appear in graph documents.
const (
	TypeEngine     = "engine"
	TypeMotor      = "motor"
	TypeGearbox    = "gearbox"
	TypeFinalDrive = "finalDrive"
	TypeFixedRatio = "fixedRatio"
	TypePlanetary  = "planetary"
	TypeBattery    = "battery"
	TypeVehicle    = "vehicle"
)

type singleRatioParams struct {
	Ratio      float64 `yaml:"ratio"`
	Efficiency float64 `yaml:"efficiency"`
}

type builder func(name string, params map[string]any) (Component, error)

var builders = map[string]builder{
	TypeEngine: func(name string, params map[string]any) (Component, error) {
		p := DefaultEngineParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewEngine(name, p), nil
	},
	TypeMotor: func(name string, params map[string]any) (Component, error) {
		p := DefaultMotorParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewMotor(name, p), nil
	},
	TypeGearbox: func(name string, params map[string]any) (Component, error) {
		p := DefaultGearboxParams()
		if _, ok := params["ratios"]; ok {
			p.Efficiencies = nil
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewGearbox(name, p), nil
	},
	TypeFinalDrive: func(name string, params map[string]any) (Component, error) {
		p := singleRatioParams{Ratio: 16, Efficiency: 0.96}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewFinalDrive(name, p.Ratio, p.Efficiency), nil
	},
	TypeFixedRatio: func(name string, params map[string]any) (Component, error) {
		p := singleRatioParams{Ratio: 1, Efficiency: 0.98}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewFixedRatio(name, p.Ratio, p.Efficiency), nil
	},
	TypePlanetary: func(name string, params map[string]any) (Component, error) {
		p := DefaultPlanetaryParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewPlanetary(name, p), nil
	},
	TypeBattery: func(name string, params map[string]any) (Component, error) {
		p := DefaultBatteryParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewBattery(name, p), nil
	},
	TypeVehicle: func(name string, params map[string]any) (Component, error) {
		p := DefaultVehicleParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewVehicle(name, p), nil
	},
}

// New builds a component of the named type, overlaying params on the type's
// defaults. Unknown parameter keys are ignored.
func New(typ, name string, params map[string]any) (Component, error) {
	b, ok := builders[typ]
	if !ok {
		return nil, fmt.Errorf("unknown component type: %s", typ)
	}
	c, err := b(name, params)
	if err != nil {
		return nil, fmt.Errorf("component %s (%s): %w", name, typ, err)
	}
	return c, nil
}

func Types() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeParams round-trips params through yaml so that loosely typed values
// from graph documents land on the typed parameter struct.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(params)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
