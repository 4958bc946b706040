package dynamo

import (
	"fmt"
	"math"
)

// State is a flat ODE state vector: independent shaft speeds first, then
// component internal states.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Control holds named control inputs, e.g. "T_engine" or "gear_gearbox".
type Control map[string]float64

func (c Control) Clone() Control {
	out := make(Control, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Func is an ODE right-hand side dx/dt = f(t, x).
type Func func(t float64, x State) (State, error)

// Integration method names accepted by Config.Method.
const (
	MethodEuler = "Euler"
	MethodRK4   = "RK4"
	MethodRK45  = "RK45"
)

type Config struct {
	TStart   float64 `yaml:"tStart" json:"tStart"`
	TEnd     float64 `yaml:"tEnd" json:"tEnd"`
	DtOutput float64 `yaml:"dtOutput" json:"dtOutput"`
	Method   string  `yaml:"method" json:"method"`
	Rtol     float64 `yaml:"rtol" json:"rtol"`
	Atol     float64 `yaml:"atol" json:"atol"`
	MaxStep  float64 `yaml:"maxStep" json:"maxStep"`
}

func DefaultConfig() Config {
	return Config{
		TStart:   0,
		TEnd:     60,
		DtOutput: 0.1,
		Method:   MethodRK4,
		Rtol:     1e-6,
		Atol:     1e-9,
		MaxStep:  0.005,
	}
}

func (c Config) Validate() error {
	if c.TEnd <= c.TStart {
		return fmt.Errorf("tEnd must be greater than tStart, got %f <= %f", c.TEnd, c.TStart)
	}
	if c.DtOutput <= 0 {
		return fmt.Errorf("dtOutput must be positive, got %f", c.DtOutput)
	}
	if c.MaxStep <= 0 {
		return fmt.Errorf("maxStep must be positive, got %f", c.MaxStep)
	}
	switch c.Method {
	case MethodEuler, MethodRK4, MethodRK45:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, c.Method)
	}
	return nil
}

// NumOutputPoints counts the output samples including both endpoints.
func (c Config) NumOutputPoints() int {
	return int(math.Floor((c.TEnd-c.TStart)/c.DtOutput+1e-9)) + 1
}

func (c Config) OutputTimes() []float64 {
	n := c.NumOutputPoints()
	times := make([]float64, n)
	for i := range times {
		times[i] = c.TStart + float64(i)*c.DtOutput
	}
	if times[n-1] > c.TEnd {
		times[n-1] = c.TEnd
	}
	return times
}

var configPresets = map[string]Config{
	"short":         {TStart: 0, TEnd: 30, DtOutput: 0.1, Method: MethodRK4, Rtol: 1e-6, Atol: 1e-9, MaxStep: 0.005},
	"medium":        {TStart: 0, TEnd: 120, DtOutput: 0.1, Method: MethodRK4, Rtol: 1e-6, Atol: 1e-9, MaxStep: 0.005},
	"long":          {TStart: 0, TEnd: 600, DtOutput: 0.5, Method: MethodRK4, Rtol: 1e-6, Atol: 1e-9, MaxStep: 0.01},
	"high_fidelity": {TStart: 0, TEnd: 60, DtOutput: 0.05, Method: MethodRK45, Rtol: 1e-8, Atol: 1e-10, MaxStep: 0.001},
}

// ConfigPreset returns a named simulation configuration.
func ConfigPreset(name string) (Config, bool) {
	c, ok := configPresets[name]
	return c, ok
}

func ConfigPresetNames() []string {
	return []string{"short", "medium", "long", "high_fidelity"}
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
